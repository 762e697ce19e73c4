package engine

import (
	"context"
	"path/filepath"

	"github.com/skaphos/repobar/internal/gitx"
	"github.com/skaphos/repobar/internal/model"
)

// Classify inspects one working copy. It never fails: queries that error
// leave their fields nil, and a copy whose HEAD or working tree cannot be
// read is reported as unknown with the error recorded in-band.
func (e *Engine) Classify(ctx context.Context, path string) model.LocalRepoStatus {
	status, _ := e.classify(ctx, path)
	return status
}

// classify is Classify that also returns the error behind a failed status.
func (e *Engine) classify(ctx context.Context, path string) (model.LocalRepoStatus, error) {
	status := model.LocalRepoStatus{
		Path:      path,
		Name:      filepath.Base(path),
		SyncState: model.SyncStateUnknown,
	}

	head, err := gitx.ReadHead(ctx, e.runner, path)
	if err != nil {
		return e.failed(status, err), err
	}
	status.Branch = head.Label()
	status.Detached = head.Detached

	counts, err := gitx.ReadDirtyCounts(ctx, e.runner, path)
	if err != nil {
		return e.failed(status, err), err
	}
	status.IsClean = counts.Total() == 0
	if !status.IsClean {
		status.DirtyCounts = &counts
	}

	if !head.Detached {
		e.classifyTracking(ctx, &status, head.Branch)
	}
	status.SyncState = model.DeriveSyncState(status.IsClean, status.UpstreamBranch, status.AheadCount, status.BehindCount)

	e.classifyIdentity(ctx, &status)
	return status, nil
}

func (e *Engine) classifyTracking(ctx context.Context, status *model.LocalRepoStatus, branch string) {
	tracking, err := gitx.ReadTracking(ctx, e.runner, status.Path, branch)
	if err != nil {
		e.logger.Debug("upstream lookup failed", "path", status.Path, "err", err)
		return
	}
	if tracking.Upstream == "" {
		return
	}
	upstream := tracking.Upstream
	status.UpstreamBranch = &upstream
	if tracking.Gone {
		return
	}
	ahead, behind, err := gitx.AheadBehind(ctx, e.runner, status.Path, "HEAD", upstream)
	if err != nil {
		// Shallow clones and pruned refs land here; counts stay unknown.
		e.logger.Debug("ahead/behind failed", "path", status.Path, "upstream", upstream, "err", err)
		return
	}
	status.AheadCount = &ahead
	status.BehindCount = &behind
}

func (e *Engine) classifyIdentity(ctx context.Context, status *model.LocalRepoStatus) {
	if url, err := gitx.PrimaryRemoteURL(ctx, e.runner, status.Path); err == nil && url != "" {
		status.RemoteURL = &url
		if ref, ok := gitx.ParseRemote(url); ok {
			fullName := ref.FullName()
			status.FullName = &fullName
		}
	}
	if name, err := gitx.WorktreeName(ctx, e.runner, status.Path); err == nil && name != "" {
		status.WorktreeName = &name
	}
	if ts, err := gitx.LastFetchAt(ctx, e.runner, status.Path); err == nil {
		status.LastFetchAt = ts
	}
}

func (e *Engine) failed(status model.LocalRepoStatus, err error) model.LocalRepoStatus {
	status.SyncState = model.SyncStateUnknown
	status.Error = err.Error()
	status.ErrorClass = gitx.ClassifyError(err)
	e.logger.Warn("classify failed", "path", status.Path, "class", status.ErrorClass, "err", err)
	return status
}
