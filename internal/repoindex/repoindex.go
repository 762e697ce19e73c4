// Package repoindex maps scanned working copies to owner/name identities and
// resolves user selectors (paths, owner/name, bare names) against them.
package repoindex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/skaphos/repobar/internal/model"
)

// ErrNotFound is returned when a selector matches no repository.
var ErrNotFound = errors.New("repo not found")

// AmbiguousMatchError lists every repository a selector matched.
type AmbiguousMatchError struct {
	Selector   string
	Candidates []model.LocalRepoStatus
}

func (e *AmbiguousMatchError) Error() string {
	names := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		names = append(names, fmt.Sprintf("%s (%s)", c.DisplayName(), c.Path))
	}
	return fmt.Sprintf("selector %q is ambiguous (%d matches): %s", e.Selector, len(e.Candidates), strings.Join(names, ", "))
}

// Index is an in-memory lookup over one snapshot's statuses.
type Index struct {
	statuses   []model.LocalRepoStatus
	byName     map[string][]model.LocalRepoStatus
	byFullName map[string][]model.LocalRepoStatus
	byPath     map[string]model.LocalRepoStatus
	// preferred maps lowercased owner/name to a canonical path.
	preferred map[string]string
}

// New builds an index. preferred pins an owner/name to one local path and
// is consulted before uniqueness when resolving full names.
func New(statuses []model.LocalRepoStatus, preferred map[string]string) *Index {
	idx := &Index{
		statuses:   statuses,
		byName:     make(map[string][]model.LocalRepoStatus),
		byFullName: make(map[string][]model.LocalRepoStatus),
		byPath:     make(map[string]model.LocalRepoStatus, len(statuses)),
		preferred:  make(map[string]string, len(preferred)),
	}
	for _, status := range statuses {
		name := strings.ToLower(status.Name)
		idx.byName[name] = append(idx.byName[name], status)
		if status.FullName != nil && *status.FullName != "" {
			full := strings.ToLower(*status.FullName)
			idx.byFullName[full] = append(idx.byFullName[full], status)
		}
		idx.byPath[canonicalPath(status.Path)] = status
	}
	for fullName, path := range preferred {
		idx.preferred[strings.ToLower(strings.TrimSpace(fullName))] = canonicalPath(path)
	}
	return idx
}

// Len returns the number of indexed repositories.
func (idx *Index) Len() int { return len(idx.statuses) }

// ByNameLowercased returns repositories grouped by lowercased basename.
// The returned map is a copy.
func (idx *Index) ByNameLowercased() map[string][]model.LocalRepoStatus {
	out := make(map[string][]model.LocalRepoStatus, len(idx.byName))
	for name, statuses := range idx.byName {
		out[name] = append([]model.LocalRepoStatus(nil), statuses...)
	}
	return out
}

// Lookup returns every repository whose basename matches name, ignoring case.
func (idx *Index) Lookup(name string) []model.LocalRepoStatus {
	return append([]model.LocalRepoStatus(nil), idx.byName[strings.ToLower(strings.TrimSpace(name))]...)
}

// StatusForFullName returns the repository for owner/name. A preferred path
// wins; otherwise the match must be unique. ok is false when nothing or
// more than one repository matches.
func (idx *Index) StatusForFullName(fullName string) (model.LocalRepoStatus, bool) {
	status, candidates := idx.fullName(fullName)
	if status != nil {
		return *status, true
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return model.LocalRepoStatus{}, false
}

func (idx *Index) fullName(fullName string) (*model.LocalRepoStatus, []model.LocalRepoStatus) {
	key := strings.ToLower(strings.TrimSpace(fullName))
	if path, ok := idx.preferred[key]; ok {
		if status, ok := idx.byPath[path]; ok {
			return &status, nil
		}
	}
	return nil, idx.byFullName[key]
}

// Resolve picks one repository for selector. Path-like selectors (absolute,
// ~, ./ or ../) match by location. Selectors with a slash match owner/name,
// and anything else matches the basename. A name that is neither found nor
// unique falls back to a relative path when it names an existing directory.
func (idx *Index) Resolve(selector string) (model.LocalRepoStatus, error) {
	sel := strings.TrimSpace(selector)
	if sel == "" {
		return model.LocalRepoStatus{}, errors.New("empty selector")
	}
	if isPathLike(sel) {
		return idx.resolvePath(sel)
	}

	var candidates []model.LocalRepoStatus
	if strings.Contains(sel, "/") {
		status, matches := idx.fullName(sel)
		if status != nil {
			return *status, nil
		}
		candidates = matches
	} else {
		candidates = idx.byName[strings.ToLower(sel)]
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		if info, err := os.Stat(sel); err == nil && info.IsDir() {
			return idx.resolvePath(sel)
		}
		return model.LocalRepoStatus{}, fmt.Errorf("%w for selector %q", ErrNotFound, sel)
	default:
		return model.LocalRepoStatus{}, &AmbiguousMatchError{Selector: sel, Candidates: sortedByPath(candidates)}
	}
}

func (idx *Index) resolvePath(sel string) (model.LocalRepoStatus, error) {
	path, err := expandHome(sel)
	if err != nil {
		return model.LocalRepoStatus{}, err
	}
	if status, ok := idx.byPath[canonicalPath(path)]; ok {
		return status, nil
	}
	return model.LocalRepoStatus{}, fmt.Errorf("%w for selector %q", ErrNotFound, sel)
}

func isPathLike(sel string) bool {
	if filepath.IsAbs(sel) || sel == "." || sel == ".." || sel == "~" {
		return true
	}
	for _, prefix := range []string{"~/", "./", "../"} {
		if strings.HasPrefix(sel, prefix) {
			return true
		}
	}
	return false
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}

func canonicalPath(path string) string {
	abs, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return filepath.Clean(abs)
}

func sortedByPath(statuses []model.LocalRepoStatus) []model.LocalRepoStatus {
	out := append([]model.LocalRepoStatus(nil), statuses...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
