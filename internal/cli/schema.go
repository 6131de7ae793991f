package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/davidroman0O/formstage"
)

func newSchemaCmd(app *App) *cobra.Command {
	var (
		versionID string
		documents bool
	)

	cmd := &cobra.Command{
		Use:   "schema [stage-id]",
		Short: "Print the JSON Schema of a stage form or of the stored documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if documents {
				return writeOut(cmd, app, formstage.DocumentSchemas())
			}
			if len(args) == 0 {
				return writeErr(cmd, errors.New("a stage id is required unless --documents is set"))
			}

			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()

			if versionID == "" {
				stage, err := e.Stages.Stage(ctx, args[0])
				if err != nil {
					return writeErr(cmd, err)
				}
				return writeOut(cmd, app, formstage.StageSchema(stage))
			}

			versions, err := e.Versions.ListVersions(ctx, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			for _, v := range versions {
				if v.ID == versionID {
					return writeOut(cmd, app, formstage.VersionSchema(v))
				}
			}
			return writeErr(cmd, &formstage.Error{Kind: formstage.KindNotFound, Op: "schema", Resource: "version", ID: versionID})
		},
	}

	cmd.Flags().StringVar(&versionID, "version", "", "Describe a published version instead of the live form")
	cmd.Flags().BoolVar(&documents, "documents", false, "Describe the persisted storage documents")
	return cmd
}
