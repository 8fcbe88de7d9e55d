// Package transport implements the two transfer backends dsg can move
// file content over — Localhost (same-machine temp files) and SSH
// (pooled SFTP sessions) — both exposing the BeginSession/EndSession/
// TransferToRemote/TransferToLocal surface the transaction coordinator
// drives (spec §4.9).
package transport

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/HRDAG/dsg/internal/dsgerr"
)

// Classifier tells the retry loop whether a failed transfer is worth
// retrying at all.
type Classifier func(err error) bool

// DefaultClassifier treats a *dsgerr.Error by its own Retryable()
// verdict, and any other error as transient, since unclassified errors
// are assumed to be the transient network/timeout/I-O kind the spec
// names (spec §4.5: "network, timeout, transient I/O" retry;
// "authentication, permission, integrity mismatch" do not).
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	var de *dsgerr.Error
	if e, ok := err.(*dsgerr.Error); ok {
		de = e
		return de.Retryable()
	}
	return true
}

// BackoffConfig configures exponential backoff with optional jitter
// (spec §4.5: "base 1s, x2 per attempt, capped at a per-config
// ceiling, optional jitter"), grounded on the teacher's hand-rolled
// reconnectWithBackoff in internal/client/syftapi/ws_manager.go.
type BackoffConfig struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
	Jitter      bool
}

// DefaultBackoff matches the spec's stated defaults.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 5, Jitter: true}
}

// Retry runs fn until it succeeds, a non-retryable error surfaces, ctx
// is canceled, or MaxAttempts is exhausted.
func Retry(ctx context.Context, cfg BackoffConfig, classify Classifier, fn func(ctx context.Context) error) error {
	if classify == nil {
		classify = DefaultClassifier
	}
	delay := cfg.Base
	var lastErr error
	for attempt := 1; cfg.MaxAttempts <= 0 || attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !classify(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.Jitter {
			wait += time.Duration(rand.Int64N(int64(delay) + 1))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
		if delay > cfg.Max {
			delay = cfg.Max
		}
	}
	return lastErr
}
