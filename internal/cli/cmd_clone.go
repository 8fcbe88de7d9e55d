package cli

import (
	"github.com/spf13/cobra"
)

func newCloneCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Populate an empty working copy from the remote's current snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return reportErr(cmd, app, "clone", err)
			}

			repo, err := app.buildRepo()
			if err != nil {
				return reportErr(cmd, app, "clone", err)
			}

			if app.DryRun {
				plan, err := repo.PreviewClone(cmd.Context())
				if err != nil {
					return reportErr(cmd, app, "clone", err)
				}
				return reportPlanPreview(cmd, app, "clone", plan)
			}

			res, err := repo.Clone(cmd.Context())
			if err != nil {
				return reportErr(cmd, app, "clone", err)
			}
			return reportOK(cmd, app, "clone", res)
		},
	}
	return cmd
}
