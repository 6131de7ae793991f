package cli

import (
	"github.com/spf13/cobra"
)

func newCategoriesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category", "cats"},
		Short:   "List and create project categories",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List categories with their stages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			cats, err := e.Stages.ListCategories(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": cats,
				"meta": map[string]any{"count": len(cats)},
			})
		},
	})

	var description string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a category, or return the existing one with the same name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			cat, err := e.Stages.EnsureCategory(cmd.Context(), args[0], description)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": cat})
		},
	}
	add.Flags().StringVar(&description, "description", "", "Category description")
	cmd.AddCommand(add)

	return cmd
}
