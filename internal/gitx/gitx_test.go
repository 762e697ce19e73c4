package gitx_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/repobar/internal/gitx"
	"github.com/skaphos/repobar/internal/model"
)

func initRepo(dir string) {
	GinkgoHelper()
	for _, args := range [][]string{
		{"init", "-q", "-b", "main"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
		{"commit", "-q", "--allow-empty", "-m", "init"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), string(out))
	}
}

var _ = Describe("GitRunner.Run", func() {
	var runner *gitx.GitRunner

	BeforeEach(func() {
		runner = &gitx.GitRunner{}
	})

	It("runs git version successfully", func() {
		out, err := runner.Run(context.Background(), "", "version")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("git version"))
	})

	It("errors for nonexistent directory", func() {
		_, err := runner.Run(context.Background(), "/nonexistent/path/xyz", "status")
		Expect(err).To(HaveOccurred())
		Expect(gitx.IsEnvironmentError(err)).To(BeFalse())
	})

	It("respects context cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := runner.Run(ctx, "", "version")
		Expect(err).To(HaveOccurred())
		Expect(gitx.ClassifyError(err)).To(Equal("timeout"))
	})

	It("returns a CommandError with stderr and exit code", func() {
		dir := GinkgoT().TempDir()
		initRepo(dir)
		_, err := runner.Run(context.Background(), dir, "rev-parse", "--verify", "does-not-exist")
		var cmdErr *gitx.CommandError
		Expect(errors.As(err, &cmdErr)).To(BeTrue())
		Expect(cmdErr.ExitCode).To(BeNumerically(">", 0))
		Expect(cmdErr.Dir).To(Equal(dir))
		Expect(cmdErr.Command()).To(Equal("git rev-parse --verify does-not-exist"))
	})

	It("reports a missing binary as an environment error", func() {
		runner.GitBin = "git-binary-that-does-not-exist-xyz"
		_, err := runner.Run(context.Background(), "", "version")
		var envErr *gitx.EnvironmentError
		Expect(errors.As(err, &envErr)).To(BeTrue())
		Expect(envErr.Kind).To(Equal(gitx.EnvMissingBinary))
		Expect(gitx.ClassifyError(err)).To(Equal("environment"))
	})

	It("keeps leading whitespace of porcelain output", func() {
		dir := GinkgoT().TempDir()
		initRepo(dir)
		Expect(os.WriteFile(filepath.Join(dir, "tracked.txt"), []byte("a"), 0o644)).To(Succeed())
		_, err := runner.Run(context.Background(), dir, "add", "tracked.txt")
		Expect(err).NotTo(HaveOccurred())
		_, err = runner.Run(context.Background(), dir, "commit", "-q", "-m", "add")
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(filepath.Join(dir, "tracked.txt"), []byte("b"), 0o644)).To(Succeed())

		out, err := runner.Run(context.Background(), dir, "status", "--porcelain=v1")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(" M tracked.txt"))
	})
})

var _ = Describe("ProbeEnvironment", func() {
	It("accepts a working git", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			":--version": {Output: "git version 2.45.0"},
		}}
		Expect(gitx.ProbeEnvironment(context.Background(), mock)).To(Succeed())
	})

	It("classifies an xcrun shim failure as sandboxed", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			":--version": {Err: &gitx.CommandError{Args: []string{"--version"}, Stderr: "xcrun: error: invalid active developer path", ExitCode: 1}},
		}}
		err := gitx.ProbeEnvironment(context.Background(), mock)
		var envErr *gitx.EnvironmentError
		Expect(errors.As(err, &envErr)).To(BeTrue())
		Expect(envErr.Kind).To(Equal(gitx.EnvSandboxed))
	})

	It("wraps other failures", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			":--version": {Err: errors.New("boom")},
		}}
		err := gitx.ProbeEnvironment(context.Background(), mock)
		var envErr *gitx.EnvironmentError
		Expect(errors.As(err, &envErr)).To(BeTrue())
		Expect(envErr.Kind).To(Equal(gitx.EnvOther))
	})
})

var _ = Describe("ReadHead", func() {
	It("returns the branch when attached", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:symbolic-ref --quiet --short HEAD": {Output: "main"},
		}}
		head, err := gitx.ReadHead(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(head.Detached).To(BeFalse())
		Expect(head.Label()).To(Equal("main"))
	})

	It("falls back to the short hash when detached", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:symbolic-ref --quiet --short HEAD": {Err: errors.New("not a symbolic ref")},
			"/repo:rev-parse --short HEAD":            {Output: "abc1234"},
		}}
		head, err := gitx.ReadHead(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(head.Detached).To(BeTrue())
		Expect(head.Label()).To(Equal("detached@abc1234"))
	})

	It("errors when HEAD cannot be resolved", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:symbolic-ref --quiet --short HEAD": {Err: errors.New("fail")},
			"/repo:rev-parse --short HEAD":            {Err: errors.New("fatal: not a git repository")},
		}}
		_, err := gitx.ReadHead(context.Background(), mock, "/repo")
		Expect(err).To(HaveOccurred())
		Expect(gitx.ClassifyError(err)).To(Equal("corrupt"))
	})
})

var _ = Describe("ReadDirtyCounts", func() {
	It("buckets porcelain output", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:status --porcelain=v1 --untracked-files=normal": {Output: " M a.go\n D b.go\n?? c.go"},
		}}
		counts, err := gitx.ReadDirtyCounts(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(counts).To(Equal(model.DirtyCounts{Added: 1, Modified: 1, Deleted: 1}))
	})

	It("wraps status failures", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:status --porcelain=v1 --untracked-files=normal": {Err: errors.New("index.lock exists")},
		}}
		_, err := gitx.ReadDirtyCounts(context.Background(), mock, "/repo")
		Expect(err).To(MatchError(ContainSubstring("git status")))
	})
})

var _ = Describe("ReadTracking", func() {
	It("returns the upstream", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:for-each-ref --format=%(upstream:short)%00%(upstream:track) refs/heads/main": {Output: "origin/main\x00[ahead 1]"},
		}}
		tracking, err := gitx.ReadTracking(context.Background(), mock, "/repo", "main")
		Expect(err).NotTo(HaveOccurred())
		Expect(tracking).To(Equal(gitx.Tracking{Upstream: "origin/main"}))
	})

	It("flags a gone upstream", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:for-each-ref --format=%(upstream:short)%00%(upstream:track) refs/heads/feature": {Output: "origin/feature\x00[gone]"},
		}}
		tracking, err := gitx.ReadTracking(context.Background(), mock, "/repo", "feature")
		Expect(err).NotTo(HaveOccurred())
		Expect(tracking.Gone).To(BeTrue())
	})

	It("returns empty tracking without a branch", func() {
		mock := &MockRunner{}
		tracking, err := gitx.ReadTracking(context.Background(), mock, "/repo", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(tracking.Upstream).To(BeEmpty())
		Expect(mock.Calls).To(BeEmpty())
	})
})

var _ = Describe("AheadBehind", func() {
	It("parses counts", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rev-list --left-right --count HEAD...origin/main": {Output: "2\t3"},
		}}
		ahead, behind, err := gitx.AheadBehind(context.Background(), mock, "/repo", "HEAD", "origin/main")
		Expect(err).NotTo(HaveOccurred())
		Expect(ahead).To(Equal(2))
		Expect(behind).To(Equal(3))
	})

	It("rejects malformed output", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rev-list --left-right --count HEAD...origin/main": {Output: "garbage"},
		}}
		_, _, err := gitx.AheadBehind(context.Background(), mock, "/repo", "HEAD", "origin/main")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Remotes", func() {
	It("returns all remotes with URLs", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:remote":                  {Output: "origin\nupstream"},
			"/repo:remote get-url origin":   {Output: "git@github.com:Org/Repo.git"},
			"/repo:remote get-url upstream": {Output: "https://github.com/Upstream/Repo.git"},
		}}
		remotes, err := gitx.Remotes(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(remotes).To(HaveLen(2))
		Expect(remotes[0]).To(Equal(gitx.Remote{Name: "origin", URL: "git@github.com:Org/Repo.git"}))
	})

	It("returns nil for no remotes", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:remote": {Output: ""},
		}}
		remotes, err := gitx.Remotes(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(remotes).To(BeNil())
	})

	It("picks the primary remote URL", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:remote":                  {Output: "upstream\nfork"},
			"/repo:remote get-url upstream": {Output: "git@github.com:up/repo.git"},
			"/repo:remote get-url fork":     {Output: "git@github.com:me/repo.git"},
		}}
		url, err := gitx.PrimaryRemoteURL(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(url).To(Equal("git@github.com:me/repo.git"))
	})
})

var _ = Describe("WorktreeName", func() {
	It("is empty for the main checkout", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rev-parse --git-dir --git-common-dir": {Output: ".git\n.git"},
		}}
		name, err := gitx.WorktreeName(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(BeEmpty())
	})

	It("uses the admin directory name for linked worktrees", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/wt:rev-parse --git-dir --git-common-dir": {Output: "/repo/.git/worktrees/feature-x\n/repo/.git"},
		}}
		name, err := gitx.WorktreeName(context.Background(), mock, "/wt")
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("feature-x"))
	})
})

var _ = Describe("LastFetchAt", func() {
	It("is nil before the first fetch", func() {
		dir := GinkgoT().TempDir()
		mock := &MockRunner{Responses: map[string]MockResponse{
			dir + ":rev-parse --git-path FETCH_HEAD": {Output: ".git/FETCH_HEAD"},
		}}
		ts, err := gitx.LastFetchAt(context.Background(), mock, dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(ts).To(BeNil())
	})

	It("returns the FETCH_HEAD mtime", func() {
		dir := GinkgoT().TempDir()
		Expect(os.MkdirAll(filepath.Join(dir, ".git"), 0o755)).To(Succeed())
		fetchHead := filepath.Join(dir, ".git", "FETCH_HEAD")
		Expect(os.WriteFile(fetchHead, nil, 0o644)).To(Succeed())
		when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		Expect(os.Chtimes(fetchHead, when, when)).To(Succeed())

		mock := &MockRunner{Responses: map[string]MockResponse{
			dir + ":rev-parse --git-path FETCH_HEAD": {Output: ".git/FETCH_HEAD"},
		}}
		ts, err := gitx.LastFetchAt(context.Background(), mock, dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(ts).NotTo(BeNil())
		Expect(ts.Equal(when)).To(BeTrue())
	})
})

var _ = Describe("mutating wrappers", func() {
	It("issue the expected git commands", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
			"/repo:merge --ff-only @{upstream}": {},
			"/repo:push":                        {},
			"/repo:rebase @{upstream}":          {},
			"/repo:rebase --abort":              {},
			"/repo:reset --hard @{upstream}":    {},
		}}
		ctx := context.Background()
		Expect(gitx.Fetch(ctx, mock, "/repo")).To(Succeed())
		Expect(gitx.FastForward(ctx, mock, "/repo")).To(Succeed())
		Expect(gitx.Push(ctx, mock, "/repo")).To(Succeed())
		Expect(gitx.Rebase(ctx, mock, "/repo")).To(Succeed())
		Expect(gitx.RebaseAbort(ctx, mock, "/repo")).To(Succeed())
		Expect(gitx.ResetHard(ctx, mock, "/repo")).To(Succeed())
		Expect(mock.Calls).To(HaveLen(6))
	})

	It("propagates failures", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:merge --ff-only @{upstream}": {Err: errors.New("fatal: Not possible to fast-forward, aborting.")},
		}}
		Expect(gitx.FastForward(context.Background(), mock, "/repo")).To(HaveOccurred())
	})
})

var _ = Describe("LocalBranches and LastCommit", func() {
	It("lists branches", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:for-each-ref --format=%(refname:short)%00%(upstream:short)%00%(upstream:track)%00%(HEAD)%00%(committerdate:iso-strict)%00%(authorname) refs/heads": {
				Output: "main\x00origin/main\x00\x00*\x002024-05-01T12:00:00Z\x00Ada\nfeature\x00\x00\x00 \x002024-04-01T08:00:00+02:00\x00Bob",
			},
		}}
		branches, err := gitx.LocalBranches(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(branches).To(HaveLen(2))
		Expect(branches[0].IsCurrent).To(BeTrue())
		Expect(branches[1].Upstream).To(BeEmpty())
	})

	It("reads the last commit", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:log -1 --format=%cI%x00%an main --": {Output: "2024-05-01T12:00:00Z\x00Ada Lovelace"},
		}}
		ts, author, err := gitx.LastCommit(context.Background(), mock, "/repo", "main")
		Expect(err).NotTo(HaveOccurred())
		Expect(author).To(Equal("Ada Lovelace"))
		Expect(ts.Year()).To(Equal(2024))
	})
})
