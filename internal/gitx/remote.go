package gitx

import (
	"net/url"
	"sort"
	"strings"
)

// NormalizeURL converts a git remote URL into a canonical host/path form.
//
// Rules:
//   - Strip protocol (https://, git://, ssh://) and user (git@)
//   - Convert git@host:path to host/path
//   - Lowercase the host portion
//   - Strip trailing ".git"
//   - Strip trailing slashes
//
// Examples:
//
//	git@github.com:Org/Repo.git  → github.com/Org/Repo
//	https://github.com/Org/Repo.git → github.com/Org/Repo
func NormalizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	var host, path string

	// Handle SSH shorthand: git@host:path
	if i := strings.Index(rawURL, "@"); i >= 0 && !strings.Contains(rawURL[:i], "://") {
		// SSH shorthand like git@github.com:Org/Repo.git
		rest := rawURL[i+1:]
		if colonIdx := strings.Index(rest, ":"); colonIdx >= 0 {
			host = rest[:colonIdx]
			path = rest[colonIdx+1:]
		}
	} else {
		// URL with protocol
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return rawURL
		}
		host = parsed.Hostname()
		path = strings.TrimPrefix(parsed.Path, "/")
	}

	host = strings.ToLower(host)
	path = strings.TrimSuffix(path, ".git")
	path = strings.TrimRight(path, "/")

	if host == "" {
		return path
	}
	return host + "/" + path
}

// PrimaryRemote selects the preferred remote from a list.
// Prefers "origin", falls back to first alphabetically.
func PrimaryRemote(remoteNames []string) string {
	if len(remoteNames) == 0 {
		return ""
	}
	for _, name := range remoteNames {
		if name == "origin" {
			return "origin"
		}
	}
	sorted := make([]string, len(remoteNames))
	copy(sorted, remoteNames)
	sort.Strings(sorted)
	return sorted[0]
}

// RemoteRef is the hosting identity parsed from a remote URL.
type RemoteRef struct {
	Host  string
	Owner string
	Name  string
}

// FullName returns "owner/name".
func (r RemoteRef) FullName() string {
	return r.Owner + "/" + r.Name
}

// ParseRemote extracts host, owner, and repository name from a remote URL.
// Nested group paths keep every leading segment in Owner. Local filesystem
// remotes and URLs without an owner segment are not recognized.
func ParseRemote(rawURL string) (RemoteRef, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || strings.HasPrefix(rawURL, "file://") || strings.HasPrefix(rawURL, "/") || strings.HasPrefix(rawURL, ".") {
		return RemoteRef{}, false
	}
	normalized := NormalizeURL(rawURL)
	host, path, ok := strings.Cut(normalized, "/")
	if !ok || host == "" || normalized == rawURL {
		return RemoteRef{}, false
	}
	idx := strings.LastIndex(path, "/")
	if idx <= 0 || idx == len(path)-1 {
		return RemoteRef{}, false
	}
	return RemoteRef{Host: host, Owner: path[:idx], Name: path[idx+1:]}, true
}
