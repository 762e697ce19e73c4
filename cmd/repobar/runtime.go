package repobar

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/skaphos/repobar/internal/config"
	"github.com/skaphos/repobar/internal/discovery"
	"github.com/skaphos/repobar/internal/engine"
	"github.com/skaphos/repobar/internal/model"
	"github.com/skaphos/repobar/internal/repoindex"
	"github.com/skaphos/repobar/internal/strutil"
)

// runtimeEnv is the loaded config plus the engine built from it.
type runtimeEnv struct {
	cfg     *config.Config
	cfgPath string
	engine  *engine.Engine
}

// newEngine is overridable in tests.
var newEngine = engine.New

func loadRuntime(cmd *cobra.Command) (*runtimeEnv, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfgPath, err := config.ResolveConfigPath(flagConfig, cwd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	debugf(cmd, "using config %s", cfgPath)

	eng := newEngine(engine.Options{
		GitBin:      cfg.GitBin,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		Concurrency: cfg.Concurrency,
		Logger:      newLogger(cmd),
	})
	return &runtimeEnv{cfg: cfg, cfgPath: cfgPath, engine: eng}, nil
}

// scanRequest merges config with the scan flags present on cmd.
func (r *runtimeEnv) scanRequest(cmd *cobra.Command) (engine.ScanRequest, error) {
	root, err := r.cfg.ExpandedRoot()
	if v := getStringFlag(cmd, "root"); v != "" {
		root, err = config.ExpandPath(v)
	}
	if err != nil {
		return engine.ScanRequest{}, err
	}

	depth := r.cfg.MaxDepth
	if cmd.Flags().Changed("depth") {
		depth = getIntFlag(cmd, "depth")
		if depth < config.MinMaxDepth || depth > config.MaxMaxDepth {
			return engine.ScanRequest{}, fmt.Errorf("--depth must be between %d and %d", config.MinMaxDepth, config.MaxMaxDepth)
		}
	}

	include := r.cfg.IncludeOnly
	if v := getStringFlag(cmd, "include"); v != "" {
		include = strutil.SplitCSV(v)
	}
	exclude := append([]string(nil), r.cfg.Exclude...)
	exclude = append(exclude, strutil.SplitCSV(getStringFlag(cmd, "exclude"))...)

	return engine.ScanRequest{
		Root:           root,
		MaxDepth:       depth,
		IncludeOnly:    include,
		Exclude:        exclude,
		FollowSymlinks: r.cfg.FollowSymlinks,
		Concurrency:    r.cfg.Concurrency,
	}, nil
}

// resolveRepo turns a selector into a working copy path. A selector naming
// a working copy on disk is used as is; anything else is matched against a
// fresh scan of the configured root.
func (r *runtimeEnv) resolveRepo(cmd *cobra.Command, selector string) (string, error) {
	if path, err := config.ExpandPath(selector); err == nil && discovery.IsWorkingCopy(path) {
		return filepath.Abs(path)
	}

	req, err := r.scanRequest(cmd)
	if err != nil {
		return "", err
	}
	req.IncludeOnly = nil
	snapshot, err := r.engine.Scan(cmd.Context(), req)
	if err != nil {
		return "", err
	}
	index, err := r.index(snapshot.Statuses)
	if err != nil {
		return "", err
	}
	status, err := index.Resolve(selector)
	if err != nil {
		return "", err
	}
	debugf(cmd, "resolved %q to %s", selector, status.Path)
	return status.Path, nil
}

func (r *runtimeEnv) index(statuses []model.LocalRepoStatus) (*repoindex.Index, error) {
	preferred, err := r.cfg.ExpandedPreferredPaths()
	if err != nil {
		return nil, err
	}
	return repoindex.New(statuses, preferred), nil
}
