package sortutil

import (
	"sort"
	"strings"

	"github.com/skaphos/repobar/internal/model"
)

// LessNamePath orders by case-insensitive display name first, then by path
// so clones sharing a name stay in a stable order.
func LessNamePath(nameI, pathI, nameJ, pathJ string) bool {
	li, lj := strings.ToLower(nameI), strings.ToLower(nameJ)
	if li == lj {
		return pathI < pathJ
	}
	return li < lj
}

// SortStatuses orders status rows by DisplayName, then Path.
func SortStatuses(statuses []model.LocalRepoStatus) {
	sort.SliceStable(statuses, func(i, j int) bool {
		return LessNamePath(statuses[i].DisplayName(), statuses[i].Path, statuses[j].DisplayName(), statuses[j].Path)
	})
}

// SortWorktrees puts the current worktree first and orders the rest by path.
func SortWorktrees(worktrees []model.LocalGitWorktree) {
	sort.SliceStable(worktrees, func(i, j int) bool {
		if worktrees[i].IsCurrent != worktrees[j].IsCurrent {
			return worktrees[i].IsCurrent
		}
		return worktrees[i].Path < worktrees[j].Path
	})
}
