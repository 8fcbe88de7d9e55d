package cli

import (
	"github.com/spf13/cobra"
)

func newSyncCmd(app *App) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the working copy, cache, and remote into a new snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return reportErr(cmd, app, "sync", err)
			}

			repo, err := app.buildRepo()
			if err != nil {
				return reportErr(cmd, app, "sync", err)
			}

			if app.DryRun {
				st, err := repo.Status(cmd.Context())
				if err != nil {
					return reportErr(cmd, app, "sync", err)
				}
				return reportPlanPreview(cmd, app, "sync", st.Plan)
			}

			res, err := repo.Sync(cmd.Context(), message)
			if err != nil {
				return reportErr(cmd, app, "sync", err)
			}
			return reportOK(cmd, app, "sync", res)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "snapshot message")
	return cmd
}
