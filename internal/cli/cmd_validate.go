package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/history"
	"github.com/HRDAG/dsg/internal/manifest"
)

func printVerifyResult(cmd *cobra.Command, app *App, operation string, res *history.VerifyResult) error {
	if !res.Passed {
		err := dsgerr.New(dsgerr.KindHistory, res.Name+" failed")
		if len(res.Details) > 0 {
			err = err.WithHint(res.Details[0])
		}
		if app.JSON {
			return reportErr(cmd, app, operation, err)
		}
		printErr(cmd.ErrOrStderr(), operation, err)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: FAIL\n", res.Name)
		for _, d := range res.Details {
			fmt.Fprintf(out, "  %s\n", d)
		}
		return err
	}

	if app.JSON {
		return reportOK(cmd, app, operation, res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: PASS\n", res.Name)
	return nil
}

func newValidateConfigCmd(app *App) *cobra.Command {
	var checkBackend bool

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Check .dsgconfig.yml for structural validity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return reportErr(cmd, app, "validate-config", err)
			}

			if checkBackend {
				repo, err := app.buildRepo()
				if err != nil {
					return reportErr(cmd, app, "validate-config", err)
				}
				if _, err := repo.Remote.ReadLastSync(); err != nil {
					return reportErr(cmd, app, "validate-config",
						dsgerr.Wrap(dsgerr.KindConfig, "cli: backend is unreachable", err))
				}
			}

			return reportOK(cmd, app, "validate-config", map[string]string{"path": configPath(app.Root)})
		},
	}

	cmd.Flags().BoolVar(&checkBackend, "check-backend", false, "also confirm the configured remote backend is reachable")
	return cmd
}

func newValidateFileCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-file <path>",
		Short: "Confirm a file's live content matches its recorded hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			relPath := args[0]
			w := history.New(app.Root)
			res, err := w.VerifyFile(relPath, func(absPath string) (string, error) {
				e, err := manifest.CreateEntry(absPath, app.Root, relPath, "", true)
				if err != nil {
					return "", err
				}
				if e.Type != manifest.EntryFile || e.File == nil {
					return "", fmt.Errorf("cli: %s is not a regular file", relPath)
				}
				return e.File.Hash, nil
			})
			if err != nil {
				return reportErr(cmd, app, "validate-file", err)
			}
			return printVerifyResult(cmd, app, "validate-file", res)
		},
	}
	return cmd
}

func newValidateSnapshotCmd(app *App) *cobra.Command {
	var num int

	cmd := &cobra.Command{
		Use:   "validate-snapshot",
		Short: "Recompute a snapshot's entries_hash and compare it to the recorded value",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := history.New(app.Root)
			res, err := w.VerifySnapshot(num)
			if err != nil {
				return reportErr(cmd, app, "validate-snapshot", err)
			}
			return printVerifyResult(cmd, app, "validate-snapshot", res)
		},
	}

	cmd.Flags().IntVar(&num, "num", 0, "snapshot number to verify, 0 for the current manifest")
	return cmd
}

func newValidateChainCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-chain",
		Short: "Walk the full archive, confirming every snapshot links to its predecessor",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := history.New(app.Root)
			res, err := w.VerifyChain()
			if err != nil {
				return reportErr(cmd, app, "validate-chain", err)
			}
			return printVerifyResult(cmd, app, "validate-chain", res)
		},
	}
	return cmd
}
