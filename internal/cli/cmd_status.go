package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what a sync would do without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return reportErr(cmd, app, "status", err)
			}

			repo, err := app.buildRepo()
			if err != nil {
				return reportErr(cmd, app, "status", err)
			}

			st, err := repo.Status(cmd.Context())
			if err != nil {
				return reportErr(cmd, app, "status", err)
			}

			if app.JSON {
				return reportOK(cmd, app, "status", st)
			}

			w := cmd.OutOrStdout()
			if st.LockHolder != nil {
				fmt.Fprintf(w, "locked by %s (%s) since %s\n", st.LockHolder.UserID, st.LockHolder.Operation, st.LockHolder.Timestamp)
			}
			printPlanSummary(w, st.Plan)
			if st.Plan.IsEmpty() && !st.Plan.HasConflicts() {
				fmt.Fprintln(w, "up to date")
			}
			return nil
		},
	}
	return cmd
}
