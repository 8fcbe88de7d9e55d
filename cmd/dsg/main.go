package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/HRDAG/dsg/internal/cli"
	"github.com/HRDAG/dsg/internal/transport"
	"github.com/HRDAG/dsg/internal/utils"
	"github.com/HRDAG/dsg/internal/version"
)

func defaultLogFilePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "dsg", "dsg.log")
}

func main() {
	logFile := defaultLogFilePath()
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "dsg: create log directory: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dsg: open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	level := &slog.LevelVar{}
	level.Set(slog.LevelInfo)

	stdoutHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: level})

	slog.SetDefault(slog.New(utils.NewDualHandler(stdoutHandler, fileHandler)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(level)
	root.Version = version.DetailedWithApp()

	err = root.ExecuteContext(ctx)
	transport.DefaultPool.Close(context.Background())
	os.Exit(cli.ExitCode(err))
}
