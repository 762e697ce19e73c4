package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skaphos/repobar/internal/discovery"
	"github.com/skaphos/repobar/internal/gitx"
	"github.com/skaphos/repobar/internal/model"
)

// ScanRequest configures one scan pass.
type ScanRequest struct {
	Root     string
	MaxDepth int
	// AutoSync runs SmartSync on every clean copy with an upstream.
	AutoSync bool
	// IncludeOnly keeps only repos whose name or owner/name matches,
	// case-insensitively. Empty keeps everything.
	IncludeOnly    []string
	Exclude        []string
	FollowSymlinks bool
	// Concurrency overrides the engine default when positive.
	Concurrency int
}

type scanResult struct {
	status   model.LocalRepoStatus
	included bool
	synced   bool
}

// Scan discovers working copies under Root, classifies them in parallel,
// optionally auto-syncs eligible ones, and publishes the snapshot. Starting
// a scan cancels any scan still in flight; a scan overtaken by a newer one
// returns ErrSuperseded instead of publishing.
func (e *Engine) Scan(ctx context.Context, req ScanRequest) (*model.LocalProjectsSnapshot, error) {
	gen, ctx, cancel := e.beginScan(ctx)
	defer cancel()

	if err := gitx.ProbeEnvironment(ctx, e.runner); err != nil {
		return nil, e.scanError(gen, err)
	}
	paths, err := discovery.Scan(ctx, discovery.Options{
		Root:           req.Root,
		MaxDepth:       req.MaxDepth,
		Exclude:        req.Exclude,
		FollowSymlinks: req.FollowSymlinks,
	})
	if err != nil {
		return nil, e.scanError(gen, err)
	}
	e.logger.Debug("discovery finished", "root", req.Root, "generation", gen, "repos", len(paths))

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = e.concurrency
	}
	include := includeSet(req.IncludeOnly)
	results := make([]scanResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = e.scanOne(gctx, path, include, req.AutoSync)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, e.scanError(gen, err)
	}

	snapshot := &model.LocalProjectsSnapshot{
		Root:                req.Root,
		Generation:          gen,
		GeneratedAt:         time.Now(),
		Statuses:            []model.LocalRepoStatus{},
		SyncedStatuses:      []model.LocalRepoStatus{},
		DiscoveredRepoCount: len(paths),
	}
	for _, res := range results {
		if !res.included {
			continue
		}
		snapshot.Statuses = append(snapshot.Statuses, res.status)
		if res.synced {
			snapshot.SyncedStatuses = append(snapshot.SyncedStatuses, res.status)
		}
	}

	if !e.publish(gen, snapshot) {
		return nil, ErrSuperseded
	}
	return snapshot, nil
}

func (e *Engine) scanOne(ctx context.Context, path string, include map[string]struct{}, autoSync bool) scanResult {
	status := e.Classify(ctx, path)
	res := scanResult{status: status, included: matchesInclude(status, include)}
	if !res.included || !autoSync || !status.CanAutoSync() {
		return res
	}

	// A sync that has started runs to completion even if a newer scan
	// cancels this one; the runner timeout still bounds each command.
	syncCtx := context.WithoutCancel(ctx)
	unlock := e.locks.lock(path)
	action, err := e.smartSyncLocked(syncCtx, path)
	// A fetch moves the remote-tracking refs even when nothing else happens.
	if action.DidFetch {
		status = e.Classify(syncCtx, path)
	}
	unlock()

	if err != nil {
		status.Error = err.Error()
		status.ErrorClass = gitx.ClassifyError(err)
		e.logger.Warn("auto-sync failed", "path", path, "class", status.ErrorClass, "err", err)
	}
	res.status = status
	res.synced = err == nil && action.Changed()
	return res
}

// Watch rescans every interval until ctx is done, handing each published
// snapshot (or scan error) to onSnapshot. Superseded passes are dropped.
func (e *Engine) Watch(ctx context.Context, req ScanRequest, interval time.Duration, onSnapshot func(*model.LocalProjectsSnapshot, error)) error {
	if interval <= 0 {
		interval = DefaultFetchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		snapshot, err := e.Scan(ctx, req)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, ErrSuperseded) {
			onSnapshot(snapshot, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// beginScan starts a new generation and cancels the scan it replaces.
func (e *Engine) beginScan(parent context.Context) (uint64, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelScan != nil {
		e.cancelScan()
	}
	e.cancelScan = cancel
	return e.generation.Add(1), ctx, cancel
}

// publish stores snapshot as the latest unless a newer scan has started.
func (e *Engine) publish(gen uint64, snapshot *model.LocalProjectsSnapshot) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation.Load() {
		return false
	}
	e.latest = snapshot
	return true
}

// scanError maps a failure of a scan that was overtaken to ErrSuperseded.
func (e *Engine) scanError(gen uint64, err error) error {
	if gen != e.generation.Load() {
		return ErrSuperseded
	}
	return err
}

func includeSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

func matchesInclude(status model.LocalRepoStatus, include map[string]struct{}) bool {
	if len(include) == 0 {
		return true
	}
	if _, ok := include[strings.ToLower(status.Name)]; ok {
		return true
	}
	if status.FullName != nil {
		if _, ok := include[strings.ToLower(*status.FullName)]; ok {
			return true
		}
	}
	return false
}
