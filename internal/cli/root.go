package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/davidroman0O/formstage"
	"github.com/davidroman0O/formstage/config"
	"github.com/davidroman0O/formstage/store"
)

type App struct {
	ConfigPath string
	Backend    string
	DBPath     string
	Publisher  string
	PrettyJSON bool

	cfg     config.Config
	engine  *formstage.Engine
	closers []io.Closer
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "formstage",
		Short:        "Manage category stages and their versioned forms",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Create a category and its stages
  formstage categories add Infrastructure
  formstage stages add cat_... Draft

  # Build and publish a stage form
  formstage fields add stage_... text
  formstage versions publish stage_...

  # Check stored data
  formstage doctor --fail
`),
	}

	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return app.close()
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr(config.EnvConfigPath, ""), "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&app.Backend, "backend", "", "Storage backend (memory|sqlite|redis), overrides the config")
	cmd.PersistentFlags().StringVar(&app.DBPath, "db", "", "SQLite database path, overrides the config")
	cmd.PersistentFlags().StringVar(&app.Publisher, "publisher", "", "Publisher recorded on published versions")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")

	cmd.AddCommand(newCategoriesCmd(app))
	cmd.AddCommand(newStagesCmd(app))
	cmd.AddCommand(newFieldsCmd(app))
	cmd.AddCommand(newVersionsCmd(app))
	cmd.AddCommand(newSchemaCmd(app))
	cmd.AddCommand(newDoctorCmd(app))

	return cmd
}

// loadEngine opens the configured backend once per invocation.
func loadEngine(cmd *cobra.Command, app *App) (*formstage.Engine, error) {
	if app.engine != nil {
		return app.engine, nil
	}

	cfg, err := config.Load(app.ConfigPath)
	if err != nil {
		return nil, err
	}
	if app.Backend != "" {
		cfg.Backend = app.Backend
	}
	if app.DBPath != "" {
		cfg.SQLite.Path = app.DBPath
	}
	if app.Publisher != "" {
		cfg.Publisher = app.Publisher
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app.cfg = cfg

	backend, err := cfg.OpenBackend(cmd.Context())
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, backend)

	logger := formstage.NewStructuredLogger(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Level)
	opts := []formstage.Option{
		formstage.WithLogger(logger),
		formstage.WithMiddleware(formstage.LoggingMiddleware()),
		formstage.WithPublisher(cfg.Publisher),
		formstage.WithDefaultCategories(cfg.DefaultCategories...),
	}

	if cfg.AuditLog != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.AuditLog), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.AuditLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		app.closers = append(app.closers, f)
		opts = append(opts, formstage.WithAuditSink(formstage.NewJSONLinesSink(f)))
	}

	app.engine = formstage.New(backend, opts...)
	return app.engine, nil
}

func (app *App) close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil && !errors.Is(err, store.ErrClosed) {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	app.engine = nil
	return errors.Join(errs...)
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if app.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func writeErr(cmd *cobra.Command, err error) error {
	if kind := formstage.KindOf(err); kind != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", kind, err.Error())
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
