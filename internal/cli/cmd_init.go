package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/HRDAG/dsg/internal/dsgerr"
)

func newInitCmd(app *App) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the first snapshot from the current working copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return reportErr(cmd, app, "init", err)
			}

			if !app.Force {
				if _, err := os.Stat(filepath.Join(app.Root, ".dsg", "last-sync.json")); err == nil {
					return reportErr(cmd, app, "init",
						dsgerr.New(dsgerr.KindConfig, "cli: repository already has a last-sync.json").
							WithHint("pass --force to re-init anyway"))
				}
			}

			repo, err := app.buildRepo()
			if err != nil {
				return reportErr(cmd, app, "init", err)
			}

			if app.DryRun {
				local, err := repo.PreviewInit(cmd.Context())
				if err != nil {
					return reportErr(cmd, app, "init", err)
				}
				return reportPlanPreview(cmd, app, "init", local)
			}

			res, err := repo.Init(cmd.Context(), message)
			if err != nil {
				return reportErr(cmd, app, "init", err)
			}
			return reportOK(cmd, app, "init", res)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "initial import", "snapshot message")
	return cmd
}
