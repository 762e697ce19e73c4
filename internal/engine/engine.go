// Package engine orchestrates the core operations: discovery, per-repo
// classification, conservative synchronization, and snapshot publication.
// It coordinates between the discovery, gitx, and model packages.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skaphos/repobar/internal/gitx"
	"github.com/skaphos/repobar/internal/model"
)

var (
	// ErrConfirmationRequired is returned by destructive operations invoked
	// without explicit confirmation. No git command has run.
	ErrConfirmationRequired = errors.New("confirmation required: rerun with --yes to discard local changes")
	// ErrSuperseded is returned by Scan when a newer scan started before
	// this one could publish its snapshot.
	ErrSuperseded = errors.New("scan superseded by a newer request")
	// ErrNoUpstream is returned when an operation needs a tracking branch.
	ErrNoUpstream = errors.New("current branch has no upstream")
	// ErrDirtyWorkingTree is returned when an operation needs a clean tree.
	ErrDirtyWorkingTree = errors.New("working tree has uncommitted changes")
)

// DefaultFetchInterval is the rescan period used by Watch when none is given.
const DefaultFetchInterval = 300 * time.Second

// Options configures an Engine.
type Options struct {
	// Runner executes git. Defaults to a gitx.GitRunner built from GitBin and Timeout.
	Runner gitx.Runner
	// GitBin is the git executable used by the default runner.
	GitBin string
	// Timeout bounds each git invocation of the default runner.
	Timeout time.Duration
	// Concurrency caps parallel classification during Scan.
	Concurrency int
	// Logger receives engine diagnostics. Nil discards.
	Logger *slog.Logger
}

// Engine is the core orchestrator for workspace scans and sync actions.
type Engine struct {
	runner      gitx.Runner
	logger      *slog.Logger
	concurrency int
	locks       *pathLocks

	generation atomic.Uint64

	mu         sync.Mutex
	cancelScan context.CancelFunc
	latest     *model.LocalProjectsSnapshot
}

// New creates a new Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	runner := opts.Runner
	if runner == nil {
		runner = gitx.NewGitRunner(opts.GitBin, opts.Timeout, logger)
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency()
	}
	return &Engine{
		runner:      runner,
		logger:      logger,
		concurrency: concurrency,
		locks:       newPathLocks(),
	}
}

// DefaultConcurrency returns min(8, 2*NumCPU).
func DefaultConcurrency() int {
	return min(8, 2*runtime.NumCPU())
}

// Latest returns the most recently published snapshot, or nil before the
// first successful scan.
func (e *Engine) Latest() *model.LocalProjectsSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}
