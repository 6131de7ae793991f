package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/davidroman0O/formstage"
)

func newStagesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "stages",
		Aliases: []string{"stage"},
		Short:   "Manage the ordered stages of a category",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <category-id>",
		Short: "List a category's stages in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			stages, err := e.Stages.Stages(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeStages(cmd, app, stages)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <category-id> <name>",
		Short: "Append a stage to a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			stage, err := e.Stages.AddStage(cmd.Context(), args[0], args[1])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": stage})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <stage-id> <name>",
		Short: "Rename a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			stage, err := e.Stages.RenameStage(cmd.Context(), args[0], args[1])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": stage})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <stage-id>",
		Short: "Delete a stage and renumber the rest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			_, categoryID, err := e.Stages.Locate(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := e.Stages.DeleteStage(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}
			stages, err := e.Stages.Stages(cmd.Context(), categoryID)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeStages(cmd, app, stages)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "move <stage-id> <up|down>",
		Short:     "Swap a stage with its neighbor",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(formstage.DirectionUp), string(formstage.DirectionDown)},
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			stages, err := e.Stages.MoveStage(cmd.Context(), args[0], formstage.Direction(args[1]))
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeStages(cmd, app, stages)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reorder <category-id> <from-position> <to-position>",
		Short: "Move the stage at one 1-based position to another",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parsePosition(args[1])
			if err != nil {
				return writeErr(cmd, err)
			}
			to, err := parsePosition(args[2])
			if err != nil {
				return writeErr(cmd, err)
			}
			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			stages, err := e.Stages.ReorderStages(cmd.Context(), args[0], from, to)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeStages(cmd, app, stages)
		},
	})

	return cmd
}

func writeStages(cmd *cobra.Command, app *App, stages []formstage.Stage) error {
	return writeOut(cmd, app, map[string]any{
		"data": stages,
		"meta": map[string]any{"count": len(stages)},
	})
}

// parsePosition turns a 1-based position into a 0-based index.
func parsePosition(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid position %q: must be a positive integer", s)
	}
	return n - 1, nil
}
