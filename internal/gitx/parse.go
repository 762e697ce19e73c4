package gitx

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/skaphos/repobar/internal/model"
)

// ParsePorcelainStatus parses the output of `git status --porcelain=v1`
// into added/modified/deleted buckets. Each path lands in exactly one
// bucket: untracked and newly staged files are added, a deletion on
// either side is deleted, everything else is modified.
func ParsePorcelainStatus(output string) model.DirtyCounts {
	var counts model.DirtyCounts
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 2 {
			continue
		}
		x, y := line[0], line[1]
		switch {
		case x == '!' && y == '!':
			continue
		case x == '?' && y == '?':
			counts.Added++
		case x == 'D' || y == 'D':
			counts.Deleted++
		case x == 'A':
			counts.Added++
		default:
			counts.Modified++
		}
	}
	return counts
}

// BranchEntry is one local branch as reported by for-each-ref.
type BranchEntry struct {
	Name       string
	Upstream   string
	Gone       bool
	IsCurrent  bool
	CommitDate time.Time
	Author     string
}

// Fields are NUL-separated because branch and author names may contain "|".
const branchEntryFormat = "%(refname:short)%00%(upstream:short)%00%(upstream:track)%00%(HEAD)%00%(committerdate:iso-strict)%00%(authorname)"

// ParseBranchEntries parses the output of:
//
//	git for-each-ref refs/heads --format=<branchEntryFormat>
func ParseBranchEntries(output string) ([]BranchEntry, error) {
	if strings.TrimSpace(output) == "" {
		return nil, nil
	}
	var entries []BranchEntry
	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\x00")
		if len(parts) != 6 {
			return nil, fmt.Errorf("unexpected for-each-ref line %q", line)
		}
		entry := BranchEntry{
			Name:      parts[0],
			Upstream:  parts[1],
			Gone:      strings.Contains(parts[2], "[gone]"),
			IsCurrent: strings.TrimSpace(parts[3]) == "*",
			Author:    parts[5],
		}
		if parts[4] != "" {
			ts, err := time.Parse(time.RFC3339, parts[4])
			if err != nil {
				return nil, fmt.Errorf("parse commit date %q: %w", parts[4], err)
			}
			entry.CommitDate = ts
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ParseRevListCount parses the output of:
//
//	git rev-list --left-right --count <ref>...<upstream>
//
// Returns (ahead, behind).
func ParseRevListCount(output string) (int, int, error) {
	fields := strings.Fields(output)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output %q", output)
	}
	ahead, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse ahead count: %w", err)
	}
	behind, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse behind count: %w", err)
	}
	return ahead, behind, nil
}

// ParseLastCommit parses `git log -1 --format=%cI%x00%an` output.
func ParseLastCommit(output string) (time.Time, string, error) {
	date, author, ok := strings.Cut(strings.TrimSpace(output), "\x00")
	if !ok {
		return time.Time{}, "", fmt.Errorf("unexpected log output %q", output)
	}
	ts, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parse commit date %q: %w", date, err)
	}
	return ts, author, nil
}

// WorktreeEntry is one record of `git worktree list --porcelain`.
type WorktreeEntry struct {
	Path string
	Head string
	// Branch is the short branch name, empty when detached.
	Branch   string
	Detached bool
	Bare     bool
	Locked   bool
	Prunable bool
}

// ParseWorktreeList parses `git worktree list --porcelain`. Records are
// separated by blank lines and start with a "worktree <path>" line.
func ParseWorktreeList(output string) []WorktreeEntry {
	var entries []WorktreeEntry
	var current *WorktreeEntry
	flush := func() {
		if current != nil && current.Path != "" {
			entries = append(entries, *current)
		}
		current = nil
	}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			flush()
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		if key == "worktree" {
			flush()
			current = &WorktreeEntry{Path: filepath.Clean(value)}
			continue
		}
		if current == nil {
			continue
		}
		switch key {
		case "HEAD":
			current.Head = value
		case "branch":
			current.Branch = strings.TrimPrefix(value, "refs/heads/")
		case "detached":
			current.Detached = true
		case "bare":
			current.Bare = true
		case "locked":
			current.Locked = true
		case "prunable":
			current.Prunable = true
		}
	}
	flush()
	return entries
}
