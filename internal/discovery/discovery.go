// Package discovery walks a root directory to a bounded depth to find git
// working copies.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaxDepth is used when Options.MaxDepth is not positive.
const DefaultMaxDepth = 2

// Options configures the discovery scan.
type Options struct {
	Root string
	// MaxDepth counts directory hops from Root to a repository directory,
	// inclusive. 1 checks only the immediate children of Root.
	MaxDepth       int
	Exclude        []string // glob patterns to skip
	FollowSymlinks bool
}

// Reason classifies a root failure.
type Reason string

const (
	ReasonNotFound     Reason = "not_found"
	ReasonNotDirectory Reason = "not_directory"
	ReasonPermission   Reason = "permission_denied"
	ReasonUnreadable   Reason = "unreadable"
)

// Error reports that the scan root itself could not be walked.
type Error struct {
	Root   string
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonNotFound:
		return fmt.Sprintf("scan root %s does not exist", e.Root)
	case ReasonNotDirectory:
		return fmt.Sprintf("scan root %s is not a directory", e.Root)
	case ReasonPermission:
		return fmt.Sprintf("scan root %s is not readable: permission denied", e.Root)
	default:
		return fmt.Sprintf("scan root %s: %v", e.Root, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// skipNames are directories not descended into unless they are working
// copies themselves.
var skipNames = map[string]struct{}{
	"node_modules": {},
	"vendor":       {},
	"DerivedData":  {},
	"Library":      {},
	"Pods":         {},
}

// Scan walks Root and returns the absolute paths of discovered working
// copies, sorted and deduplicated by resolved location. Unreadable
// subdirectories are skipped; only failures on Root itself are returned.
func Scan(ctx context.Context, opts Options) ([]string, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	root, err := checkRoot(opts.Root)
	if err != nil {
		return nil, err
	}

	w := &walker{
		opts:    opts,
		visited: make(map[string]struct{}),
		seen:    make(map[string]struct{}),
	}
	if err := w.walk(ctx, root, 0); err != nil {
		return nil, err
	}
	sort.Strings(w.results)
	return w.results, nil
}

func checkRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", &Error{Root: root, Reason: ReasonNotFound, Err: errors.New("empty root path")}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", &Error{Root: root, Reason: ReasonUnreadable, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", rootError(abs, err)
	}
	if !info.IsDir() {
		return "", &Error{Root: abs, Reason: ReasonNotDirectory}
	}
	if _, err := os.ReadDir(abs); err != nil {
		return "", rootError(abs, err)
	}
	return abs, nil
}

func rootError(root string, err error) *Error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &Error{Root: root, Reason: ReasonNotFound, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &Error{Root: root, Reason: ReasonPermission, Err: err}
	default:
		return &Error{Root: root, Reason: ReasonUnreadable, Err: err}
	}
}

type walker struct {
	opts    Options
	visited map[string]struct{} // resolved directories already walked
	seen    map[string]struct{} // resolved repositories already reported
	results []string
}

// walk descends from dir, where dir itself sits baseDepth hops below Root.
func (w *walker) walk(ctx context.Context, dir string, baseDepth int) error {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		if _, ok := w.visited[resolved]; ok {
			return nil
		}
		w.visited[resolved] = struct{}{}
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Permission problems below the root are not fatal.
			if path == dir && baseDepth == 0 {
				return rootError(dir, err)
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == dir {
			return nil
		}

		depth := baseDepth + hops(dir, path)
		isSymlink := d.Type()&fs.ModeSymlink != 0
		if !d.IsDir() && !isSymlink {
			return nil
		}
		if w.skip(path, d.Name(), depth) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if isSymlink {
			if !w.opts.FollowSymlinks {
				return nil
			}
			target, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			info, err := os.Stat(target)
			if err != nil || !info.IsDir() {
				return nil
			}
			if IsWorkingCopy(path) {
				w.add(path)
				return nil
			}
			return w.walk(ctx, target, depth)
		}

		if IsWorkingCopy(path) {
			w.add(path)
			return fs.SkipDir
		}
		return nil
	})
}

func (w *walker) skip(path, name string, depth int) bool {
	if depth > w.opts.MaxDepth {
		return true
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	if MatchesExclude(path, w.opts.Exclude) {
		return true
	}
	// A working copy named like a heavy directory is still reported.
	if _, ok := skipNames[name]; ok {
		return !IsWorkingCopy(path)
	}
	return false
}

func (w *walker) add(path string) {
	key := path
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		key = resolved
	}
	if _, ok := w.seen[key]; ok {
		return
	}
	w.seen[key] = struct{}{}
	w.results = append(w.results, path)
}

func hops(base, path string) int {
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// MatchesExclude checks whether a path matches any of the given exclude
// glob patterns.
func MatchesExclude(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	slashPath := filepath.ToSlash(path)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		match, err := doublestar.Match(pattern, slashPath)
		if err != nil {
			continue
		}
		if match {
			return true
		}
	}
	return false
}

// IsWorkingCopy reports whether dir contains a .git directory, or a .git
// file pointing at a linked worktree's git dir.
func IsWorkingCopy(dir string) bool {
	gitPath := filepath.Join(dir, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return true
	}
	if info.Mode().IsRegular() {
		_, ok := GitDirFromFile(gitPath)
		return ok
	}
	return false
}

// GitDirFromFile reads a "gitdir: <path>" pointer file and returns the
// absolute git dir it references.
func GitDirFromFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	content := strings.TrimSpace(string(data))
	if !strings.HasPrefix(content, "gitdir:") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(content, "gitdir:"))
	if raw == "" {
		return "", false
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw), true
	}
	return filepath.Clean(filepath.Join(filepath.Dir(path), raw)), true
}
