package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HRDAG/dsg/internal/history"
)

func newBlameCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blame <path>",
		Short: "Show every snapshot that changed a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := history.New(app.Root)
			entries, err := w.GetFileBlame(args[0])
			if err != nil {
				return reportErr(cmd, app, "blame", err)
			}

			if app.JSON {
				return reportOK(cmd, app, "blame", entries)
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s  %-12s  %-8s  %s\n", e.SnapshotID, e.FormattedDatetime(), e.CreatedBy, e.EventType, e.FileHash)
			}
			return nil
		},
	}
	return cmd
}
