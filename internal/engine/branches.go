package engine

import (
	"context"

	"github.com/skaphos/repobar/internal/gitx"
	"github.com/skaphos/repobar/internal/model"
)

// BranchDetails lists local branches with tracking and last-commit
// metadata. When HEAD is detached the snapshot carries the detached
// commit's date and author instead of a current branch.
func (e *Engine) BranchDetails(ctx context.Context, repoPath string) (model.LocalGitBranchSnapshot, error) {
	snapshot := model.LocalGitBranchSnapshot{Path: repoPath, Branches: []model.LocalGitBranchDetails{}}

	head, err := gitx.ReadHead(ctx, e.runner, repoPath)
	if err != nil {
		return snapshot, err
	}
	entries, err := gitx.LocalBranches(ctx, e.runner, repoPath)
	if err != nil {
		return snapshot, err
	}

	snapshot.IsDetachedHead = head.Detached
	if head.Detached {
		if ts, author, err := gitx.LastCommit(ctx, e.runner, repoPath, "HEAD"); err == nil {
			snapshot.DetachedCommitDate = &ts
			snapshot.DetachedCommitAuthor = &author
		}
	}

	for _, entry := range entries {
		details := model.LocalGitBranchDetails{
			Name:      entry.Name,
			IsCurrent: !head.Detached && entry.Name == head.Branch,
		}
		if entry.Upstream != "" {
			upstream := entry.Upstream
			details.Upstream = &upstream
			if !entry.Gone {
				ahead, behind, err := gitx.AheadBehind(ctx, e.runner, repoPath, "refs/heads/"+entry.Name, upstream)
				if err == nil {
					details.AheadCount = &ahead
					details.BehindCount = &behind
				}
			}
		}
		if !entry.CommitDate.IsZero() {
			ts := entry.CommitDate
			details.LastCommitDate = &ts
		}
		if entry.Author != "" {
			author := entry.Author
			details.LastCommitAuthor = &author
		}
		snapshot.Branches = append(snapshot.Branches, details)
	}
	return snapshot, nil
}
