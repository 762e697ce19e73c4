// Package gitx provides helpers for executing git commands and parsing
// their output. It shells out to the installed git binary.
package gitx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/skaphos/repobar/internal/model"
)

// Runner executes git commands in a given repo directory.
// This interface allows mocking in tests and swapping in an embedded git
// implementation without touching the callers.
type Runner interface {
	// Run executes a git command in the given directory and returns stdout
	// with trailing newlines removed. A non-zero exit is reported as a
	// *CommandError carrying stderr and the exit code.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// DefaultTimeout bounds a single git invocation when GitRunner.Timeout is unset.
const DefaultTimeout = 60 * time.Second

// GitRunner is the default Runner implementation that shells out to git.
type GitRunner struct {
	// GitBin is the path to the git binary. Defaults to "git".
	GitBin string
	// Timeout bounds each invocation. Zero uses DefaultTimeout; negative disables it.
	Timeout time.Duration
	// Env holds extra KEY=VALUE entries appended to the process environment.
	Env []string
	// Logger receives one debug record per invocation. Nil discards.
	Logger *slog.Logger
}

// NewGitRunner returns a runner for bin with the given per-invocation timeout.
func NewGitRunner(bin string, timeout time.Duration, logger *slog.Logger) *GitRunner {
	return &GitRunner{GitBin: bin, Timeout: timeout, Logger: logger}
}

// Run executes a git command.
func (g *GitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.GitBin
	if bin == "" {
		bin = "git"
	}
	timeout := g.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
		}
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	// Never block on credential prompts and keep output parseable.
	cmd.Env = append(os.Environ(), g.Env...)
	cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0", "GIT_OPTIONAL_LOCKS=0", "LC_ALL=C")
	cmd.Stdin = nil
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	g.logger().Debug("git", "dir", dir, "args", args, "duration", time.Since(start), "err", err)

	out := strings.TrimRight(stdout.String(), "\r\n")
	if err == nil {
		return out, nil
	}
	var exitErr *exec.ExitError
	isExit := errors.As(err, &exitErr)
	if errors.Is(err, exec.ErrNotFound) || (!isExit && errors.Is(err, fs.ErrNotExist)) {
		return out, &EnvironmentError{Kind: EnvMissingBinary, Err: err}
	}
	if !isExit && isPermissionError(err) {
		return out, &EnvironmentError{Kind: EnvSandboxed, Err: err}
	}
	cmdErr := &CommandError{
		Dir:      dir,
		Args:     append([]string(nil), args...),
		Stdout:   out,
		Stderr:   strings.TrimSpace(stderr.String()),
		ExitCode: -1,
		Err:      err,
	}
	if isExit {
		cmdErr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		cmdErr.Err = ctxErr
	}
	return out, cmdErr
}

func (g *GitRunner) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return g.Logger
}

// Head describes what HEAD points at.
type Head struct {
	// Branch is the current branch name when HEAD is attached.
	Branch string
	// Commit is the abbreviated commit hash when HEAD is detached.
	Commit string
	// Detached reports whether HEAD is detached.
	Detached bool
}

// Label returns the branch name, or a synthetic "detached@<sha>" label.
func (h Head) Label() string {
	if !h.Detached {
		return h.Branch
	}
	if h.Commit == "" {
		return "detached"
	}
	return "detached@" + h.Commit
}

// ReadHead returns the current branch and detached state.
func ReadHead(ctx context.Context, r Runner, dir string) (Head, error) {
	out, err := r.Run(ctx, dir, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err == nil {
		return Head{Branch: strings.TrimSpace(out)}, nil
	}
	if IsEnvironmentError(err) {
		return Head{}, err
	}
	hash, hashErr := r.Run(ctx, dir, "rev-parse", "--short", "HEAD")
	if hashErr != nil {
		return Head{Detached: true}, fmt.Errorf("resolve HEAD: %w", hashErr)
	}
	return Head{Commit: strings.TrimSpace(hash), Detached: true}, nil
}

// ReadDirtyCounts returns the uncommitted change counts of the working tree.
func ReadDirtyCounts(ctx context.Context, r Runner, dir string) (model.DirtyCounts, error) {
	out, err := r.Run(ctx, dir, "status", "--porcelain=v1", "--untracked-files=normal")
	if err != nil {
		return model.DirtyCounts{}, fmt.Errorf("git status: %w", err)
	}
	return ParsePorcelainStatus(out), nil
}

// Tracking is the upstream configuration of one local branch.
type Tracking struct {
	// Upstream is the short upstream ref, empty when none is configured.
	Upstream string
	// Gone reports that the upstream is configured but its ref no longer exists.
	Gone bool
}

// ReadTracking returns the upstream of a local branch.
func ReadTracking(ctx context.Context, r Runner, dir, branch string) (Tracking, error) {
	if branch == "" {
		return Tracking{}, nil
	}
	out, err := r.Run(ctx, dir, "for-each-ref", "--format=%(upstream:short)%00%(upstream:track)", "refs/heads/"+branch)
	if err != nil {
		return Tracking{}, fmt.Errorf("git for-each-ref: %w", err)
	}
	upstream, track, _ := strings.Cut(strings.TrimSpace(out), "\x00")
	return Tracking{
		Upstream: strings.TrimSpace(upstream),
		Gone:     strings.Contains(track, "[gone]"),
	}, nil
}

// AheadBehind counts commits only on ref (ahead) and only on upstream (behind).
func AheadBehind(ctx context.Context, r Runner, dir, ref, upstream string) (int, int, error) {
	out, err := r.Run(ctx, dir, "rev-list", "--left-right", "--count", ref+"..."+upstream)
	if err != nil {
		return 0, 0, fmt.Errorf("git rev-list: %w", err)
	}
	return ParseRevListCount(out)
}

// Remote represents a single git remote.
type Remote struct {
	Name string
	URL  string
}

// Remotes returns all configured remotes for the repo.
func Remotes(ctx context.Context, r Runner, dir string) ([]Remote, error) {
	out, err := r.Run(ctx, dir, "remote")
	if err != nil {
		return nil, fmt.Errorf("git remote: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return nil, nil
	}
	var remotes []Remote
	for _, name := range strings.Split(strings.TrimSpace(out), "\n") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		url, err := r.Run(ctx, dir, "remote", "get-url", name)
		if err != nil {
			continue
		}
		remotes = append(remotes, Remote{Name: name, URL: strings.TrimSpace(url)})
	}
	return remotes, nil
}

// PrimaryRemoteURL returns the URL of the preferred remote, or "" when none.
func PrimaryRemoteURL(ctx context.Context, r Runner, dir string) (string, error) {
	remotes, err := Remotes(ctx, r, dir)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(remotes))
	for _, rem := range remotes {
		names = append(names, rem.Name)
	}
	primary := PrimaryRemote(names)
	for _, rem := range remotes {
		if rem.Name == primary {
			return rem.URL, nil
		}
	}
	return "", nil
}

// GitDirs returns the per-worktree git dir and the shared common dir as
// absolute paths. They differ for linked worktrees.
func GitDirs(ctx context.Context, r Runner, dir string) (string, string, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--git-dir", "--git-common-dir")
	if err != nil {
		return "", "", fmt.Errorf("git rev-parse: %w", err)
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		return "", "", fmt.Errorf("unexpected rev-parse output %q", out)
	}
	return absUnder(dir, lines[0]), absUnder(dir, lines[1]), nil
}

// TopLevel returns the root directory of the working tree containing dir.
func TopLevel(ctx context.Context, r Runner, dir string) (string, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return filepath.Clean(strings.TrimSpace(out)), nil
}

// WorktreeName returns the linked worktree name, or "" for a main checkout.
func WorktreeName(ctx context.Context, r Runner, dir string) (string, error) {
	gitDir, commonDir, err := GitDirs(ctx, r, dir)
	if err != nil {
		return "", err
	}
	if filepath.Clean(gitDir) == filepath.Clean(commonDir) {
		return "", nil
	}
	return filepath.Base(gitDir), nil
}

// LastFetchAt returns the modification time of FETCH_HEAD, or nil when the
// repository has never been fetched.
func LastFetchAt(ctx context.Context, r Runner, dir string) (*time.Time, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--git-path", "FETCH_HEAD")
	if err != nil {
		return nil, fmt.Errorf("git rev-parse: %w", err)
	}
	info, err := os.Stat(absUnder(dir, strings.TrimSpace(out)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ts := info.ModTime()
	return &ts, nil
}

// LocalBranches lists every local branch with its tracking metadata.
func LocalBranches(ctx context.Context, r Runner, dir string) ([]BranchEntry, error) {
	out, err := r.Run(ctx, dir, "for-each-ref", "--format="+branchEntryFormat, "refs/heads")
	if err != nil {
		return nil, fmt.Errorf("git for-each-ref: %w", err)
	}
	return ParseBranchEntries(out)
}

// LastCommit returns the committer date and author name of ref.
func LastCommit(ctx context.Context, r Runner, dir, ref string) (time.Time, string, error) {
	out, err := r.Run(ctx, dir, "log", "-1", "--format=%cI%x00%an", ref, "--")
	if err != nil {
		return time.Time{}, "", fmt.Errorf("git log: %w", err)
	}
	return ParseLastCommit(out)
}

// Worktrees lists all worktrees of the repository containing dir.
func Worktrees(ctx context.Context, r Runner, dir string) ([]WorktreeEntry, error) {
	out, err := r.Run(ctx, dir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git worktree list: %w", err)
	}
	return ParseWorktreeList(out), nil
}

// Version returns the installed git version string.
func Version(ctx context.Context, r Runner) (string, error) {
	return r.Run(ctx, "", "--version")
}

// Fetch runs a safe fetch with submodule recursion disabled.
func Fetch(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "-c", "fetch.recurseSubmodules=false", "fetch", "--all", "--prune", "--no-recurse-submodules")
	return err
}

// FastForward advances the current branch to its upstream, refusing to
// create a merge commit.
func FastForward(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "merge", "--ff-only", "@{upstream}")
	return err
}

// Push pushes the current branch to its upstream. It never forces.
func Push(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "push")
	return err
}

// Rebase replays local commits onto the upstream of the current branch.
func Rebase(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "rebase", "@{upstream}")
	return err
}

// RebaseAbort abandons an in-progress rebase.
func RebaseAbort(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "rebase", "--abort")
	return err
}

// ResetHard moves the current branch and working tree to its upstream,
// discarding local commits and changes.
func ResetHard(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "reset", "--hard", "@{upstream}")
	return err
}

func absUnder(dir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
