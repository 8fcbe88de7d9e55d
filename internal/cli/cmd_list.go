package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/scanner"
)

func newListFilesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-files",
		Short: "List every file the working copy would sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return reportErr(cmd, app, "list-files", err)
			}

			cfg := app.repoConfig.ScannerConfig(app.userIdentity(), true, app.Normalize)
			res, err := scanner.Scan(app.Root, &cfg)
			if err != nil {
				return reportErr(cmd, app, "list-files", dsgerr.Wrap(dsgerr.KindScan, "cli: scan working copy", err))
			}

			if app.JSON {
				return reportOK(cmd, app, "list-files", res.Manifest.SortedPaths())
			}

			out := cmd.OutOrStdout()
			for _, p := range res.Manifest.SortedPaths() {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}
	return cmd
}

// newListReposCmd stubs spec §6's list-repos: multi-repository discovery
// belongs to an external collaborator interface, not this CLI, so this
// command only reports that it isn't implemented here.
func newListReposCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list-repos",
		Short: "List repositories on a remote host (not implemented; see an external discovery service)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportErr(cmd, app, "list-repos", dsgerr.New(dsgerr.KindNotSupported,
				"cli: list-repos is not implemented; repository discovery is out of scope for dsg itself"))
		},
	}
}
