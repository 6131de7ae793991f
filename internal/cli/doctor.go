package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var errDoctorIssuesFound = errors.New("doctor found issues")

func newDoctorCmd(app *App) *cobra.Command {
	var fail bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check stored categories and versions for broken invariants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}

			report, err := e.Doctor(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}

			if err := writeOut(cmd, app, map[string]any{
				"data": report,
				"meta": map[string]any{
					"issues":  len(report.Issues),
					"healthy": report.Healthy(),
				},
			}); err != nil {
				return err
			}

			if fail && !report.Healthy() {
				return errDoctorIssuesFound
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fail, "fail", false, "Exit with non-zero status if issues are found")
	return cmd
}
