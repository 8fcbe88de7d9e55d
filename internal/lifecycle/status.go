package lifecycle

import (
	"context"

	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/lock"
	"github.com/HRDAG/dsg/internal/manifest"
	"github.com/HRDAG/dsg/internal/merger"
	"github.com/HRDAG/dsg/internal/planner"
)

// StatusResult previews what a Sync would do, without locking or
// transacting against the remote (spec §6 CLI surface: "dsg status").
type StatusResult struct {
	Plan       *planner.Plan
	LockHolder *lock.Record // nil when the repository isn't currently locked
}

// GetPlan lets cli's reporting helpers print a summary without a type
// switch over every lifecycle *Result.
func (r *StatusResult) GetPlan() *planner.Plan { return r.Plan }

// Status computes the current three-way classification and plan — the
// read-only half of Sync — and reports whether the repository is
// presently locked by another operation (a supplemented feature, spec
// SPEC_FULL §6: Lock.Status introspection).
func (r *Repo) Status(ctx context.Context) (*StatusResult, error) {
	local, err := r.scanLocal()
	if err != nil {
		return nil, err
	}
	cache, err := r.readCache()
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindConfig, "lifecycle: read cache manifest", err)
	}
	if cache == nil {
		cache = manifest.New()
	}
	remote, err := r.Remote.ReadLastSync()
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindConfig, "lifecycle: read remote manifest", err)
	}
	if remote == nil {
		remote = manifest.New()
	}

	states := merger.Merge(local, cache, remote)
	plan := planner.Build(states)

	l := lock.New(r.Lock, r.User, "status")
	record, _, err := l.Status(ctx)
	if err != nil {
		return nil, err
	}

	return &StatusResult{Plan: plan, LockHolder: record}, nil
}
