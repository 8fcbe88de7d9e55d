package zfsfs

import (
	"context"
	"os/exec"
)

// Runner executes external commands; production code shells out to the
// real zfs(8) binary, tests substitute a fake that records invocations
// (grounded on the teacher's exec.Cmd-wrapping AppProcess in
// internal/client/appsv2/app_process.go).
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner shells out via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}
