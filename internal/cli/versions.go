package cli

import (
	"github.com/spf13/cobra"

	"github.com/davidroman0O/formstage"
)

func newVersionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "versions",
		Aliases: []string{"version"},
		Short:   "Publish stage forms and browse their history",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <stage-id>",
		Short: "List a stage's published versions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			versions, err := e.Versions.ListVersions(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": versions,
				"meta": map[string]any{"count": len(versions)},
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "active <stage-id>",
		Short: "Show the active version of a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			version, ok, err := e.Versions.ActiveVersion(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			var data any
			if ok {
				data = version
			}
			return writeOut(cmd, app, map[string]any{
				"data": data,
				"meta": map[string]any{"active": ok},
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "publish <stage-id>",
		Short: "Publish the stage's current fields as a new active version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()

			session := e.NewSession()
			if _, err := session.Configure(ctx, args[0]); err != nil {
				return writeErr(cmd, err)
			}
			defer func() { _ = session.Cancel() }()

			version, err := session.Publish(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": version})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rollback <stage-id> <version-id>",
		Short: "Make an earlier version active and restore its fields",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editStage(cmd, app, args[0], func(s *formstage.Session) error {
				if _, err := s.ShowVersions(cmd.Context()); err != nil {
					return err
				}
				if _, err := s.Rollback(cmd.Context(), args[1]); err != nil {
					_ = s.CloseVersions()
					return err
				}
				return nil
			})
		},
	})

	return cmd
}
