package engine

import (
	"context"

	"github.com/skaphos/repobar/internal/gitx"
	"github.com/skaphos/repobar/internal/model"
)

// Worktrees lists every worktree sharing the repository at repoPath and
// classifies each one. Bare and prunable entries are skipped.
func (e *Engine) Worktrees(ctx context.Context, repoPath string) ([]model.LocalGitWorktree, error) {
	entries, err := gitx.Worktrees(ctx, e.runner, repoPath)
	if err != nil {
		return nil, err
	}
	current := repoPath
	if top, err := gitx.TopLevel(ctx, e.runner, repoPath); err == nil {
		current = top
	}
	current = canonicalPath(current)

	worktrees := make([]model.LocalGitWorktree, 0, len(entries))
	for _, entry := range entries {
		if entry.Bare || entry.Prunable {
			continue
		}
		worktrees = append(worktrees, e.describeWorktree(ctx, entry, current))
	}
	return worktrees, nil
}

func (e *Engine) describeWorktree(ctx context.Context, entry gitx.WorktreeEntry, current string) model.LocalGitWorktree {
	status := e.Classify(ctx, entry.Path)
	wt := model.LocalGitWorktree{
		Path:        entry.Path,
		IsCurrent:   canonicalPath(entry.Path) == current,
		Upstream:    status.UpstreamBranch,
		AheadCount:  status.AheadCount,
		BehindCount: status.BehindCount,
		DirtyCounts: status.DirtyCounts,
		SyncState:   status.SyncState,
	}
	if entry.Branch != "" {
		branch := entry.Branch
		wt.Branch = &branch
	}
	if ts, author, err := gitx.LastCommit(ctx, e.runner, entry.Path, "HEAD"); err == nil {
		wt.LastCommitDate = &ts
		wt.LastCommitAuthor = &author
	}
	return wt
}
