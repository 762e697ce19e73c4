package repobar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skaphos/repobar/internal/cliio"
	"github.com/skaphos/repobar/internal/engine"
	"github.com/skaphos/repobar/internal/model"
	"github.com/skaphos/repobar/internal/sortutil"
	"github.com/skaphos/repobar/internal/termstyle"
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Scan the projects folder and report every working copy",
	Long: "Scan the configured projects folder and classify each git working copy " +
		"against its upstream. With --sync, clean copies that are behind are " +
		"fast-forwarded and clean copies that are ahead are pushed.",
	Args: cobra.NoArgs,
	RunE: runLocal,
}

func runLocal(cmd *cobra.Command, _ []string) error {
	debugf(cmd, "starting local scan")
	env, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	req, err := env.scanRequest(cmd)
	if err != nil {
		return err
	}
	req.AutoSync = env.cfg.AutoSyncEnabled
	if cmd.Flags().Changed("sync") {
		req.AutoSync = getBoolFlag(cmd, "sync")
	}
	kind, err := outputKindFor(cmd)
	if err != nil {
		return err
	}
	limit := getIntFlag(cmd, "limit")

	render := func(snapshot *model.LocalProjectsSnapshot) {
		logOutputWriteFailure(cmd, "local", writeSnapshot(cmd, kind, snapshot, limit))
		infof(cmd, "%d repos (%d discovered, %d synced) under %s",
			len(snapshot.Statuses), snapshot.DiscoveredRepoCount, len(snapshot.SyncedStatuses), snapshot.Root)
	}

	if !getBoolFlag(cmd, "watch") {
		snapshot, err := env.engine.Scan(cmd.Context(), req)
		if err != nil {
			return err
		}
		render(snapshot)
		return nil
	}

	interval := time.Duration(env.cfg.FetchIntervalSeconds) * time.Second
	if cmd.Flags().Changed("interval") {
		interval, _ = cmd.Flags().GetDuration("interval")
	}
	debugf(cmd, "watching %s every %s", req.Root, interval)
	err = env.engine.Watch(cmd.Context(), req, interval, func(snapshot *model.LocalProjectsSnapshot, err error) {
		if err != nil {
			infof(cmd, "scan failed: %v", err)
			return
		}
		render(snapshot)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func writeSnapshot(cmd *cobra.Command, kind outputKind, snapshot *model.LocalProjectsSnapshot, limit int) error {
	statuses := append([]model.LocalRepoStatus(nil), snapshot.Statuses...)
	sortutil.SortStatuses(statuses)
	if limit > 0 && len(statuses) > limit {
		statuses = statuses[:limit]
	}
	if !kind.tabular() {
		view := *snapshot
		view.Statuses = statuses
		return writeStructured(cmd, kind, &view)
	}
	return writeStatusTable(cmd, statuses, snapshot.Root, kind == outputKindWide, time.Now())
}

func writeStatusTable(cmd *cobra.Command, statuses []model.LocalRepoStatus, root string, wide bool, now time.Time) error {
	headers := []string{"NAME", "BRANCH", "STATE", "AHEAD", "BEHIND", "DIRTY", "PATH"}
	if wide {
		headers = append(headers, "UPSTREAM", "FETCHED", "ERROR")
	}
	nameMax := cellLimit(cmd, 32, 24)
	pathMax := cellLimit(cmd, 40, 24)
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		dirty := "-"
		if s.DirtyCounts != nil && s.DirtyCounts.Total() > 0 {
			dirty = termstyle.Colorize(colorOutputEnabled, s.DirtyCounts.Summary(), termstyle.Warn)
		}
		row := []string{
			truncateCell(s.DisplayName(), nameMax),
			s.Branch,
			termstyle.State(colorOutputEnabled, s.SyncState),
			formatCount(s.AheadCount),
			formatCount(s.BehindCount),
			dirty,
			truncateCell(displayRepoPath(s.Path, root), pathMax),
		}
		if wide {
			errText := "-"
			if s.Error != "" {
				errText = termstyle.Colorize(colorOutputEnabled, s.ErrorClass+": "+s.Error, termstyle.Error)
			}
			row = append(row, formatOptional(s.UpstreamBranch), formatAge(s.LastFetchAt, now), errText)
		}
		rows = append(rows, row)
	}
	return cliio.WriteTable(cmd.OutOrStdout(), true, getBoolFlag(cmd, "no-headers"), headers, rows)
}

var localSyncCmd = &cobra.Command{
	Use:   "sync <path|owner/name|name>",
	Short: "Fetch, then fast-forward or push one working copy when safe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, path, kind, err := prepareRepoCommand(cmd, args[0])
		if err != nil {
			return err
		}
		result, err := env.engine.SmartSync(cmd.Context(), path)
		if err != nil {
			return err
		}
		status := env.engine.Classify(cmd.Context(), path)
		if !kind.tabular() {
			logOutputWriteFailure(cmd, "local sync", writeStructured(cmd, kind, syncOutput{Result: result, Status: status}))
			return nil
		}
		logOutputWriteFailure(cmd, "local sync", writeSyncResult(cmd, result, status))
		return nil
	},
}

type syncOutput struct {
	Result model.SyncActionResult `json:"result" yaml:"result"`
	Status model.LocalRepoStatus  `json:"status" yaml:"status"`
}

func writeSyncResult(cmd *cobra.Command, result model.SyncActionResult, status model.LocalRepoStatus) error {
	rows := [][]string{{
		status.DisplayName(),
		yesNo(result.DidFetch),
		yesNo(result.DidPull),
		yesNo(result.DidPush),
		termstyle.State(colorOutputEnabled, status.SyncState),
		result.Path,
	}}
	headers := []string{"NAME", "FETCHED", "PULLED", "PUSHED", "STATE", "PATH"}
	return cliio.WriteTable(cmd.OutOrStdout(), true, getBoolFlag(cmd, "no-headers"), headers, rows)
}

var localRebaseCmd = &cobra.Command{
	Use:   "rebase <path|owner/name|name>",
	Short: "Fetch and rebase the current branch onto its upstream",
	Long:  "Fetch and rebase the current branch onto its upstream. A rebase that stops on conflicts is aborted and the branch is left as it was.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, path, kind, err := prepareRepoCommand(cmd, args[0])
		if err != nil {
			return err
		}
		if err := env.engine.RebaseOntoUpstream(cmd.Context(), path); err != nil {
			return err
		}
		infof(cmd, "rebased %s onto upstream", path)
		return writeSingleStatus(cmd, kind, env.engine.Classify(cmd.Context(), path))
	},
}

var localResetCmd = &cobra.Command{
	Use:   "reset <path|owner/name|name>",
	Short: "Discard local commits and changes and reset to the upstream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, path, kind, err := prepareRepoCommand(cmd, args[0])
		if err != nil {
			return err
		}
		prompt := fmt.Sprintf("Discard all local commits and changes in %s? [y/N]: ", path)
		confirmed, err := cliio.ConfirmDestructive(cmd.ErrOrStderr(), cmd.InOrStdin(), prompt, getBoolFlag(cmd, "yes"))
		if err != nil {
			return err
		}
		if !confirmed {
			infof(cmd, "reset cancelled")
			return nil
		}
		if err := env.engine.HardResetToUpstream(cmd.Context(), path, engine.ResetOptions{Confirmed: true}); err != nil {
			return err
		}
		infof(cmd, "reset %s to upstream", path)
		return writeSingleStatus(cmd, kind, env.engine.Classify(cmd.Context(), path))
	},
}

var localBranchesCmd = &cobra.Command{
	Use:   "branches <path|owner/name|name>",
	Short: "List local branches with tracking and last commit details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, path, kind, err := prepareRepoCommand(cmd, args[0])
		if err != nil {
			return err
		}
		snapshot, err := env.engine.BranchDetails(cmd.Context(), path)
		if err != nil {
			return err
		}
		if !kind.tabular() {
			logOutputWriteFailure(cmd, "local branches", writeStructured(cmd, kind, snapshot))
			return nil
		}
		logOutputWriteFailure(cmd, "local branches", writeBranchTable(cmd, snapshot, time.Now()))
		return nil
	},
}

func writeBranchTable(cmd *cobra.Command, snapshot model.LocalGitBranchSnapshot, now time.Time) error {
	headers := []string{"", "BRANCH", "UPSTREAM", "AHEAD", "BEHIND", "LAST_COMMIT", "AUTHOR"}
	rows := make([][]string, 0, len(snapshot.Branches)+1)
	if snapshot.IsDetachedHead {
		rows = append(rows, []string{"*", "(detached)", "-", "-", "-", formatAge(snapshot.DetachedCommitDate, now), formatOptional(snapshot.DetachedCommitAuthor)})
	}
	for _, b := range snapshot.Branches {
		marker := ""
		if b.IsCurrent {
			marker = "*"
		}
		rows = append(rows, []string{
			marker,
			b.Name,
			formatOptional(b.Upstream),
			formatCount(b.AheadCount),
			formatCount(b.BehindCount),
			formatAge(b.LastCommitDate, now),
			formatOptional(b.LastCommitAuthor),
		})
	}
	return cliio.WriteTable(cmd.OutOrStdout(), true, getBoolFlag(cmd, "no-headers"), headers, rows)
}

func prepareRepoCommand(cmd *cobra.Command, selector string) (*runtimeEnv, string, outputKind, error) {
	kind, err := outputKindFor(cmd)
	if err != nil {
		return nil, "", "", err
	}
	env, err := loadRuntime(cmd)
	if err != nil {
		return nil, "", "", err
	}
	path, err := env.resolveRepo(cmd, selector)
	if err != nil {
		return nil, "", "", err
	}
	return env, path, kind, nil
}

func writeSingleStatus(cmd *cobra.Command, kind outputKind, status model.LocalRepoStatus) error {
	var err error
	if kind.tabular() {
		err = writeStatusTable(cmd, []model.LocalRepoStatus{status}, "", kind == outputKindWide, time.Now())
	} else {
		err = writeStructured(cmd, kind, status)
	}
	logOutputWriteFailure(cmd, "status", err)
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func init() {
	addScanFlags(localCmd)
	addOutputFlags(localCmd)
	localCmd.Flags().Bool("sync", false, "fast-forward or push clean copies (default from config auto_sync_enabled)")
	localCmd.Flags().Int("limit", 0, "show at most N repositories (0 shows all)")
	localCmd.Flags().Bool("watch", false, "rescan periodically until interrupted")
	localCmd.Flags().Duration("interval", engine.DefaultFetchInterval, "rescan period for --watch (default from config fetch_interval_seconds)")

	for _, sub := range []*cobra.Command{localSyncCmd, localRebaseCmd, localResetCmd, localBranchesCmd} {
		addScanFlags(sub)
		addOutputFlags(sub)
		localCmd.AddCommand(sub)
	}
	localResetCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	rootCmd.AddCommand(localCmd)
}
