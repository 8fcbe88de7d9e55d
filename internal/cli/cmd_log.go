package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HRDAG/dsg/internal/history"
)

func newLogCmd(app *App) *cobra.Command {
	var limit int
	var author string
	var since string

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List snapshot history, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := history.New(app.Root)
			entries, err := w.WalkHistory(history.LogOptions{Limit: limit, Author: author, Since: since})
			if err != nil {
				return reportErr(cmd, app, "log", err)
			}

			if app.JSON {
				return reportOK(cmd, app, "log", entries)
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s  %-12s  %s\n", e.SnapshotID, e.FormattedDatetime(), e.CreatedBy, e.SnapshotMessage)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "show at most N snapshots")
	cmd.Flags().StringVar(&author, "author", "", "filter to snapshots created by this user")
	cmd.Flags().StringVar(&since, "since", "", "filter to snapshots at or after this RFC3339 timestamp")
	return cmd
}
