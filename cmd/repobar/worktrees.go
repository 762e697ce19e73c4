package repobar

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/skaphos/repobar/internal/cliio"
	"github.com/skaphos/repobar/internal/model"
	"github.com/skaphos/repobar/internal/sortutil"
	"github.com/skaphos/repobar/internal/termstyle"
)

var worktreesCmd = &cobra.Command{
	Use:   "worktrees <path|owner/name|name>",
	Short: "List the worktrees of a repository with their sync state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, path, kind, err := prepareRepoCommand(cmd, args[0])
		if err != nil {
			return err
		}
		worktrees, err := env.engine.Worktrees(cmd.Context(), path)
		if err != nil {
			return err
		}
		sortutil.SortWorktrees(worktrees)
		if !kind.tabular() {
			logOutputWriteFailure(cmd, "worktrees", writeStructured(cmd, kind, worktrees))
			return nil
		}
		logOutputWriteFailure(cmd, "worktrees", writeWorktreeTable(cmd, worktrees, time.Now()))
		return nil
	},
}

func writeWorktreeTable(cmd *cobra.Command, worktrees []model.LocalGitWorktree, now time.Time) error {
	headers := []string{"", "BRANCH", "STATE", "AHEAD", "BEHIND", "DIRTY", "LAST_COMMIT", "PATH"}
	rows := make([][]string, 0, len(worktrees))
	for _, wt := range worktrees {
		marker := ""
		if wt.IsCurrent {
			marker = "*"
		}
		branch := "(detached)"
		if wt.Branch != nil {
			branch = *wt.Branch
		}
		dirty := "-"
		if wt.DirtyCounts != nil && wt.DirtyCounts.Total() > 0 {
			dirty = wt.DirtyCounts.Summary()
		}
		rows = append(rows, []string{
			marker,
			branch,
			termstyle.State(colorOutputEnabled, wt.SyncState),
			formatCount(wt.AheadCount),
			formatCount(wt.BehindCount),
			dirty,
			formatAge(wt.LastCommitDate, now),
			wt.Path,
		})
	}
	return cliio.WriteTable(cmd.OutOrStdout(), true, getBoolFlag(cmd, "no-headers"), headers, rows)
}

func init() {
	addScanFlags(worktreesCmd)
	addOutputFlags(worktreesCmd)
	rootCmd.AddCommand(worktreesCmd)
}
