package engine

import (
	"context"
	"fmt"

	"github.com/skaphos/repobar/internal/gitx"
	"github.com/skaphos/repobar/internal/model"
)

// SmartSync fetches, then fast-forwards a clean branch that is strictly
// behind its upstream or pushes one that is strictly ahead. Dirty and
// diverged copies are fetched but otherwise left alone. A copy without an
// upstream is not touched at all. Nothing is ever forced.
func (e *Engine) SmartSync(ctx context.Context, path string) (model.SyncActionResult, error) {
	unlock := e.locks.lock(path)
	defer unlock()
	return e.smartSyncLocked(ctx, path)
}

func (e *Engine) smartSyncLocked(ctx context.Context, path string) (model.SyncActionResult, error) {
	result := model.SyncActionResult{Path: path}

	before, err := e.classify(ctx, path)
	if err != nil {
		return result, err
	}
	if before.UpstreamBranch == nil {
		return result, nil
	}

	if err := gitx.Fetch(ctx, e.runner, path); err != nil {
		return result, fmt.Errorf("fetch: %w", err)
	}
	result.DidFetch = true

	after, err := e.classify(ctx, path)
	if err != nil {
		return result, err
	}
	if !after.IsClean {
		return result, nil
	}
	switch after.SyncState {
	case model.SyncStateBehind:
		if err := gitx.FastForward(ctx, e.runner, path); err != nil {
			return result, fmt.Errorf("fast-forward: %w", err)
		}
		result.DidPull = true
	case model.SyncStateAhead:
		if err := gitx.Push(ctx, e.runner, path); err != nil {
			return result, fmt.Errorf("push: %w", err)
		}
		result.DidPush = true
	}
	e.logger.Debug("sync finished", "path", path, "state", after.SyncState, "pulled", result.DidPull, "pushed", result.DidPush)
	return result, nil
}

// RebaseOntoUpstream fetches and replays local commits onto the upstream.
// A failed rebase is aborted so the working copy is left as it was.
func (e *Engine) RebaseOntoUpstream(ctx context.Context, path string) error {
	unlock := e.locks.lock(path)
	defer unlock()

	if err := e.requireCleanUpstream(ctx, path); err != nil {
		return err
	}
	if err := gitx.Fetch(ctx, e.runner, path); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if err := gitx.Rebase(ctx, e.runner, path); err != nil {
		// Abort even if the caller gave up; an in-progress rebase blocks every later command.
		if abortErr := gitx.RebaseAbort(context.WithoutCancel(ctx), e.runner, path); abortErr != nil {
			e.logger.Warn("rebase abort failed", "path", path, "err", abortErr)
		}
		return err
	}
	return nil
}

// ResetOptions configures HardResetToUpstream.
type ResetOptions struct {
	// Confirmed must be true; the reset discards local commits and changes.
	Confirmed bool
}

// HardResetToUpstream fetches and moves the current branch and working tree
// to the upstream. Without confirmation it returns ErrConfirmationRequired
// and runs no git command.
func (e *Engine) HardResetToUpstream(ctx context.Context, path string, opts ResetOptions) error {
	if !opts.Confirmed {
		return ErrConfirmationRequired
	}
	unlock := e.locks.lock(path)
	defer unlock()

	status, err := e.classify(ctx, path)
	if err != nil {
		return err
	}
	if status.UpstreamBranch == nil {
		return ErrNoUpstream
	}
	if err := gitx.Fetch(ctx, e.runner, path); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	return gitx.ResetHard(ctx, e.runner, path)
}

func (e *Engine) requireCleanUpstream(ctx context.Context, path string) error {
	status, err := e.classify(ctx, path)
	switch {
	case err != nil:
		return err
	case !status.IsClean:
		return ErrDirtyWorkingTree
	case status.UpstreamBranch == nil:
		return ErrNoUpstream
	}
	return nil
}
