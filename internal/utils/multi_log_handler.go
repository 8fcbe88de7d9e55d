// Package utils provides small logging helpers shared by dsg's commands.
package utils

import (
	"context"
	"log/slog"
)

// DualHandler fans a log record out to exactly two sinks: the terminal
// (colored, level-filtered for a human watching the command run) and a
// persistent log file (always-on, for postmortems independent of what
// the user saw). dsg never needs more than these
// two destinations, so this stays a fixed pair rather than the
// variadic N-handler fan-out a daemon serving arbitrary log sinks would
// want.
type DualHandler struct {
	terminal slog.Handler
	file     slog.Handler
}

// NewDualHandler builds a DualHandler writing to both terminal and file.
func NewDualHandler(terminal, file slog.Handler) *DualHandler {
	return &DualHandler{terminal: terminal, file: file}
}

func (h *DualHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.terminal.Enabled(ctx, level) || h.file.Enabled(ctx, level)
}

func (h *DualHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.terminal.Enabled(ctx, r.Level) {
		if e := h.terminal.Handle(ctx, r); e != nil {
			err = e
		}
	}
	if h.file.Enabled(ctx, r.Level) {
		if e := h.file.Handle(ctx, r.Clone()); e != nil {
			err = e
		}
	}
	return err
}

func (h *DualHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewDualHandler(h.terminal.WithAttrs(attrs), h.file.WithAttrs(attrs))
}

func (h *DualHandler) WithGroup(name string) slog.Handler {
	return NewDualHandler(h.terminal.WithGroup(name), h.file.WithGroup(name))
}
