// Package cli wires cobra commands onto internal/lifecycle: each
// subcommand resolves the project's .dsgconfig.yml and the user's
// layered dsg.yml, builds one lifecycle.Repo, and calls exactly one of
// its operations (spec §6's "CLI surface... thin shells").
package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/lifecycle"
	"github.com/HRDAG/dsg/internal/repocfg"
	"github.com/HRDAG/dsg/internal/userconfig"
)

// App bundles the shared flags and loaded config every subcommand needs.
type App struct {
	Root      string
	Verbose   bool
	Quiet     bool
	DryRun    bool
	Force     bool
	Normalize bool
	JSON      bool

	// LogLevel, when set, is adjusted by PersistentPreRunE to reflect
	// --verbose/--quiet; nil in tests that build an App directly.
	LogLevel *slog.LevelVar

	repoConfig *repocfg.Config
	userConfig *userconfig.Config
}

func configPath(root string) string { return filepath.Join(root, ".dsgconfig.yml") }

// load resolves the project and user config layers. Commands that only
// read .dsg/archive history (log, blame) work straight off the working
// copy and skip this; everything that needs the remote backend or the
// scanner's ignore rules calls it first.
func (a *App) load() error {
	cfg, err := repocfg.LoadFromFile(configPath(a.Root))
	if err != nil {
		return dsgerr.Wrap(dsgerr.KindConfig, "cli: load .dsgconfig.yml", err)
	}
	a.repoConfig = cfg

	uc, err := userconfig.Load()
	if err != nil {
		return err
	}
	a.userConfig = uc
	return nil
}

func (a *App) userIdentity() string {
	if a.userConfig.UserID != "" {
		return a.userConfig.UserID
	}
	if a.userConfig.UserName != "" {
		return a.userConfig.UserName
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

// buildRepo resolves the remote backend/transport/lock and returns a
// ready-to-use lifecycle.Repo for the loaded project config.
func (a *App) buildRepo() (*lifecycle.Repo, error) {
	signer, err := loadSigner()
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindAuthentication, "cli: load ssh identity", err)
	}

	remotefs, tr, lockBackend, err := resolveRemote(a.repoConfig, a.Root, signer)
	if err != nil {
		return nil, err
	}

	return &lifecycle.Repo{
		Root:             a.Root,
		User:             a.userIdentity(),
		Config:           a.repoConfig,
		Remote:           remotefs,
		Transport:        tr,
		Lock:             lockBackend,
		HashContent:      true,
		NormalizePaths:   a.Normalize,
		BackupOnConflict: a.userConfig.ShouldBackupOnConflict(),
	}, nil
}

// NewRootCmd builds the dsg command tree (spec §6: init, clone, sync,
// status, log, blame, list-files, list-repos, validate-config,
// validate-file, validate-snapshot, validate-chain). level, if non-nil,
// is adjusted from --verbose/--quiet so cmd/dsg's slog handler can react
// without cli depending on a particular handler setup.
func NewRootCmd(level *slog.LevelVar) *cobra.Command {
	app := &App{LogLevel: level}

	root := &cobra.Command{
		Use:           "dsg",
		Short:         "dsg synchronizes a data repository against a ZFS or POSIX backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			root, err := os.Getwd()
			if err != nil {
				return err
			}
			app.Root = root

			if app.LogLevel != nil {
				switch {
				case app.Verbose:
					app.LogLevel.Set(slog.LevelDebug)
				case app.Quiet:
					app.LogLevel.Set(slog.LevelWarn)
				default:
					app.LogLevel.Set(slog.LevelInfo)
				}
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "log at debug level")
	root.PersistentFlags().BoolVarP(&app.Quiet, "quiet", "q", false, "log warnings and errors only")
	root.PersistentFlags().BoolVar(&app.DryRun, "dry-run", false, "show what would happen without changing anything")
	root.PersistentFlags().BoolVar(&app.Force, "force", false, "bypass the safety checks that would otherwise refuse")
	root.PersistentFlags().BoolVar(&app.Normalize, "normalize", true, "apply NFC path normalization while scanning")
	root.PersistentFlags().BoolVar(&app.JSON, "json", false, "emit a structured JSON result instead of text")

	root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	root.AddCommand(
		newInitCmd(app),
		newCloneCmd(app),
		newSyncCmd(app),
		newStatusCmd(app),
		newLogCmd(app),
		newBlameCmd(app),
		newListFilesCmd(app),
		newListReposCmd(app),
		newValidateConfigCmd(app),
		newValidateFileCmd(app),
		newValidateSnapshotCmd(app),
		newValidateChainCmd(app),
	)

	return root
}

// ExitCode maps a command error to spec §6's process exit codes: 0
// success, 1 operational failure, 130 user interrupt.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if err == context.Canceled {
		return 130
	}
	return 1
}
