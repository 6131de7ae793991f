package cli

import (
	"github.com/spf13/cobra"

	"github.com/davidroman0O/formstage"
)

// editStage opens a session on stageID, applies fn to the draft and saves it.
func editStage(cmd *cobra.Command, app *App, stageID string, fn func(s *formstage.Session) error) error {
	e, err := loadEngine(cmd, app)
	if err != nil {
		return writeErr(cmd, err)
	}
	ctx := cmd.Context()

	session := e.NewSession()
	if _, err := session.Configure(ctx, stageID); err != nil {
		return writeErr(cmd, err)
	}
	if err := fn(session); err != nil {
		_ = session.Cancel()
		return writeErr(cmd, err)
	}
	stage, err := session.Save(ctx)
	if err != nil {
		_ = session.Cancel()
		return writeErr(cmd, err)
	}
	return writeOut(cmd, app, map[string]any{
		"data": stage,
		"meta": map[string]any{"fields": len(stage.Fields)},
	})
}

func newFieldsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fields",
		Aliases: []string{"field"},
		Short:   "Edit the form fields of a stage",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <stage-id>",
		Short: "List a stage's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			stage, err := e.Stages.Stage(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			fields := stage.Fields
			if fields == nil {
				fields = []formstage.FormField{}
			}
			return writeOut(cmd, app, map[string]any{
				"data": fields,
				"meta": map[string]any{"count": len(fields)},
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <stage-id> <type>",
		Short: "Append a field with default settings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editStage(cmd, app, args[0], func(s *formstage.Session) error {
				_, err := s.AddField(cmd.Context(), formstage.FieldType(args[1]))
				return err
			})
		},
	})

	cmd.AddCommand(newFieldUpdateCmd(app))

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <stage-id> <field-id>",
		Short: "Remove a field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editStage(cmd, app, args[0], func(s *formstage.Session) error {
				return s.DeleteField(cmd.Context(), args[1])
			})
		},
	})

	var below bool
	move := &cobra.Command{
		Use:   "move <stage-id> <field-id> <position>",
		Short: "Drop a field onto the field at a 1-based position",
		Long: `Drop a field onto the field currently at <position>.

By default the drop targets the upper half of that field; --below targets the lower half,
which matters when the field moves up the list.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parsePosition(args[2])
			if err != nil {
				return writeErr(cmd, err)
			}
			item := formstage.Rect{Top: 0, Height: 1}
			pointerY := 0.0
			if below {
				pointerY = 1
			}
			return editStage(cmd, app, args[0], func(s *formstage.Session) error {
				_, err := s.ReorderField(cmd.Context(), args[1], index, pointerY, item)
				return err
			})
		},
	}
	move.Flags().BoolVar(&below, "below", false, "Target the lower half of the field at <position>")
	cmd.AddCommand(move)

	return cmd
}

func newFieldUpdateCmd(app *App) *cobra.Command {
	var (
		fieldType       string
		label           string
		placeholder     string
		required        bool
		options         []string
		minValue        float64
		maxValue        float64
		pattern         string
		clearValidation bool
	)

	cmd := &cobra.Command{
		Use:   "update <stage-id> <field-id>",
		Short: "Change a field's settings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			patch := formstage.FieldPatch{ClearValidation: clearValidation}
			if flags.Changed("type") {
				t := formstage.FieldType(fieldType)
				patch.Type = &t
			}
			if flags.Changed("label") {
				patch.Label = &label
			}
			if flags.Changed("placeholder") {
				patch.Placeholder = &placeholder
			}
			if flags.Changed("required") {
				patch.Required = &required
			}
			if flags.Changed("options") {
				patch.Options = options
			}
			if flags.Changed("min") || flags.Changed("max") || flags.Changed("pattern") {
				v := formstage.Validation{Pattern: pattern}
				if flags.Changed("min") {
					v.Min = &minValue
				}
				if flags.Changed("max") {
					v.Max = &maxValue
				}
				patch.Validation = &v
			}

			return editStage(cmd, app, args[0], func(s *formstage.Session) error {
				_, err := s.UpdateField(cmd.Context(), args[1], patch)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&fieldType, "type", "", "Field type")
	cmd.Flags().StringVar(&label, "label", "", "Field label")
	cmd.Flags().StringVar(&placeholder, "placeholder", "", "Placeholder text")
	cmd.Flags().BoolVar(&required, "required", false, "Whether a value is required")
	cmd.Flags().StringSliceVar(&options, "options", nil, "Choices for select and radio fields")
	cmd.Flags().Float64Var(&minValue, "min", 0, "Minimum value")
	cmd.Flags().Float64Var(&maxValue, "max", 0, "Maximum value")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Regular expression the value must match")
	cmd.Flags().BoolVar(&clearValidation, "clear-validation", false, "Remove min, max and pattern")
	return cmd
}
