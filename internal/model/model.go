// Package model defines the core data types produced by the local workspace
// engine and consumed by the CLI renderers.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SyncState is the derived relationship between a working copy and its upstream.
type SyncState string

const (
	SyncStateSynced   SyncState = "synced"
	SyncStateAhead    SyncState = "ahead"
	SyncStateBehind   SyncState = "behind"
	SyncStateDiverged SyncState = "diverged"
	SyncStateDirty    SyncState = "dirty"
	SyncStateUnknown  SyncState = "unknown"
)

// DeriveSyncState classifies a working copy. Dirty state wins over any
// ahead/behind relationship; a clean copy without an upstream (or with
// unknown counts) is unknown.
func DeriveSyncState(isClean bool, upstream *string, ahead, behind *int) SyncState {
	if !isClean {
		return SyncStateDirty
	}
	if upstream == nil || ahead == nil || behind == nil {
		return SyncStateUnknown
	}
	switch {
	case *ahead > 0 && *behind > 0:
		return SyncStateDiverged
	case *ahead > 0:
		return SyncStateAhead
	case *behind > 0:
		return SyncStateBehind
	default:
		return SyncStateSynced
	}
}

// DirtyCounts buckets uncommitted changes. Untracked files count as added.
type DirtyCounts struct {
	Added    int `json:"added" yaml:"added"`
	Modified int `json:"modified" yaml:"modified"`
	Deleted  int `json:"deleted" yaml:"deleted"`
}

// Total returns the number of changed paths.
func (d DirtyCounts) Total() int {
	return d.Added + d.Modified + d.Deleted
}

// Summary renders the counts as a short human label such as "+2 ~1 -1".
func (d DirtyCounts) Summary() string {
	var parts []string
	if d.Added > 0 {
		parts = append(parts, fmt.Sprintf("+%d", d.Added))
	}
	if d.Modified > 0 {
		parts = append(parts, fmt.Sprintf("~%d", d.Modified))
	}
	if d.Deleted > 0 {
		parts = append(parts, fmt.Sprintf("-%d", d.Deleted))
	}
	return strings.Join(parts, " ")
}

// MarshalJSON includes the derived summary alongside the counts.
func (d DirtyCounts) MarshalJSON() ([]byte, error) {
	return json.Marshal(dirtyCountsWire{Added: d.Added, Modified: d.Modified, Deleted: d.Deleted, Summary: d.Summary()})
}

// MarshalYAML includes the derived summary alongside the counts.
func (d DirtyCounts) MarshalYAML() (any, error) {
	return dirtyCountsWire{Added: d.Added, Modified: d.Modified, Deleted: d.Deleted, Summary: d.Summary()}, nil
}

type dirtyCountsWire struct {
	Added    int    `json:"added" yaml:"added"`
	Modified int    `json:"modified" yaml:"modified"`
	Deleted  int    `json:"deleted" yaml:"deleted"`
	Summary  string `json:"summary" yaml:"summary"`
}

// LocalRepoStatus is the classification of one discovered working copy.
// It is created fresh on every scan pass.
type LocalRepoStatus struct {
	// Path is the absolute location of the working copy and the scan identity key.
	Path string `json:"path" yaml:"path"`
	// Name is the directory basename.
	Name string `json:"name" yaml:"name"`
	// FullName is "owner/name" parsed from the primary remote, when recognized.
	FullName *string `json:"fullName,omitempty" yaml:"fullName,omitempty"`
	// RemoteURL is the raw URL of the primary remote.
	RemoteURL *string `json:"remoteURL,omitempty" yaml:"remoteURL,omitempty"`
	// Branch is the current branch, or a synthetic label when detached.
	Branch string `json:"branch" yaml:"branch"`
	// Detached reports whether HEAD points directly at a commit.
	Detached bool `json:"detached" yaml:"detached"`
	// IsClean is true iff no staged, unstaged, or untracked changes exist.
	IsClean bool `json:"isClean" yaml:"isClean"`
	// AheadCount is nil when there is no upstream or it could not be computed.
	AheadCount *int `json:"aheadCount" yaml:"aheadCount"`
	// BehindCount is nil when there is no upstream or it could not be computed.
	BehindCount *int         `json:"behindCount" yaml:"behindCount"`
	SyncState   SyncState    `json:"syncState" yaml:"syncState"`
	DirtyCounts *DirtyCounts `json:"dirtyCounts,omitempty" yaml:"dirtyCounts,omitempty"`
	// UpstreamBranch is the tracked ref, for example "origin/main".
	UpstreamBranch *string `json:"upstreamBranch,omitempty" yaml:"upstreamBranch,omitempty"`
	// WorktreeName is set when the copy is a linked worktree.
	WorktreeName *string    `json:"worktreeName,omitempty" yaml:"worktreeName,omitempty"`
	LastFetchAt  *time.Time `json:"lastFetchAt,omitempty" yaml:"lastFetchAt,omitempty"`
	// Error holds the in-band classification or sync failure text.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
	// ErrorClass is a coarse category for Error (timeout, auth, network, ...).
	ErrorClass string `json:"errorClass,omitempty" yaml:"errorClass,omitempty"`
}

// CanAutoSync reports whether the passive scan may attempt a sync.
func (s LocalRepoStatus) CanAutoSync() bool {
	return s.UpstreamBranch != nil && s.IsClean
}

// DisplayName prefers the owner/name identity over the basename.
func (s LocalRepoStatus) DisplayName() string {
	if s.FullName != nil && *s.FullName != "" {
		return *s.FullName
	}
	return s.Name
}

// LocalGitBranchDetails describes one local branch.
type LocalGitBranchDetails struct {
	Name             string     `json:"name" yaml:"name"`
	IsCurrent        bool       `json:"isCurrent" yaml:"isCurrent"`
	Upstream         *string    `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	AheadCount       *int       `json:"aheadCount" yaml:"aheadCount"`
	BehindCount      *int       `json:"behindCount" yaml:"behindCount"`
	LastCommitDate   *time.Time `json:"lastCommitDate,omitempty" yaml:"lastCommitDate,omitempty"`
	LastCommitAuthor *string    `json:"lastCommitAuthor,omitempty" yaml:"lastCommitAuthor,omitempty"`
}

// LocalGitBranchSnapshot is the branch listing for one repository.
type LocalGitBranchSnapshot struct {
	Path                 string                  `json:"path" yaml:"path"`
	IsDetachedHead       bool                    `json:"detached" yaml:"detached"`
	DetachedCommitDate   *time.Time              `json:"detachedCommitDate,omitempty" yaml:"detachedCommitDate,omitempty"`
	DetachedCommitAuthor *string                 `json:"detachedCommitAuthor,omitempty" yaml:"detachedCommitAuthor,omitempty"`
	Branches             []LocalGitBranchDetails `json:"branches" yaml:"branches"`
}

// LocalGitWorktree is one checkout sharing a repository's object store.
type LocalGitWorktree struct {
	Path             string       `json:"path" yaml:"path"`
	Branch           *string      `json:"branch" yaml:"branch"` // nil when detached
	IsCurrent        bool         `json:"isCurrent" yaml:"isCurrent"`
	Upstream         *string      `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	AheadCount       *int         `json:"aheadCount" yaml:"aheadCount"`
	BehindCount      *int         `json:"behindCount" yaml:"behindCount"`
	LastCommitDate   *time.Time   `json:"lastCommitDate,omitempty" yaml:"lastCommitDate,omitempty"`
	LastCommitAuthor *string      `json:"lastCommitAuthor,omitempty" yaml:"lastCommitAuthor,omitempty"`
	DirtyCounts      *DirtyCounts `json:"dirtyCounts,omitempty" yaml:"dirtyCounts,omitempty"`
	SyncState        SyncState    `json:"syncState" yaml:"syncState"`
}

// LocalProjectsSnapshot is the result of one full scan pass.
type LocalProjectsSnapshot struct {
	Root string `json:"root" yaml:"root"`
	// Generation is the scan number that produced this snapshot.
	Generation  uint64    `json:"generation" yaml:"generation"`
	GeneratedAt time.Time `json:"generatedAt" yaml:"generatedAt"`
	// Statuses is the discovered set after any name filter.
	Statuses []LocalRepoStatus `json:"statuses" yaml:"statuses"`
	// SyncedStatuses is the subset that was fast-forwarded or pushed this pass.
	SyncedStatuses []LocalRepoStatus `json:"syncedStatuses" yaml:"syncedStatuses"`
	// DiscoveredRepoCount counts working copies found before filtering.
	DiscoveredRepoCount int `json:"discoveredRepoCount" yaml:"discoveredRepoCount"`
}

// SyncActionResult reports which sub-steps of a sync ran.
type SyncActionResult struct {
	Path     string `json:"path" yaml:"path"`
	DidFetch bool   `json:"didFetch" yaml:"didFetch"`
	DidPull  bool   `json:"didPull" yaml:"didPull"`
	DidPush  bool   `json:"didPush" yaml:"didPush"`
}

// Changed reports whether the sync moved a ref on either side.
func (r SyncActionResult) Changed() bool {
	return r.DidPull || r.DidPush
}
