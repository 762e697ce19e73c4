package repoindex_test

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/repobar/internal/model"
	"github.com/skaphos/repobar/internal/repoindex"
)

func status(path, fullName string) model.LocalRepoStatus {
	s := model.LocalRepoStatus{Path: path, Name: filepath.Base(path)}
	if fullName != "" {
		s.FullName = &fullName
	}
	return s
}

var _ = Describe("Index", func() {
	var statuses []model.LocalRepoStatus

	BeforeEach(func() {
		statuses = []model.LocalRepoStatus{
			status("/src/foo/repo-a", "foo/repo-a"),
			status("/src/work/repo", "work/repo"),
			status("/src/personal/repo", "me/repo"),
			status("/src/fork1/widget", "acme/widget"),
			status("/src/fork2/widget", "acme/widget"),
			status("/src/scratch", ""),
		}
	})

	It("finds a repo by owner/name ignoring case", func() {
		idx := repoindex.New(statuses, nil)
		got, ok := idx.StatusForFullName("Foo/Repo-A")
		Expect(ok).To(BeTrue())
		Expect(got.Path).To(Equal("/src/foo/repo-a"))
	})

	It("refuses to pick among clones of the same owner/name", func() {
		idx := repoindex.New(statuses, nil)
		_, ok := idx.StatusForFullName("acme/widget")
		Expect(ok).To(BeFalse())

		_, err := idx.Resolve("acme/widget")
		var ambiguous *repoindex.AmbiguousMatchError
		Expect(errors.As(err, &ambiguous)).To(BeTrue())
		Expect(ambiguous.Candidates).To(HaveLen(2))
	})

	It("honors a preferred path for an owner/name", func() {
		idx := repoindex.New(statuses, map[string]string{"ACME/widget": "/src/fork2/widget"})
		got, ok := idx.StatusForFullName("acme/widget")
		Expect(ok).To(BeTrue())
		Expect(got.Path).To(Equal("/src/fork2/widget"))

		got, err := idx.Resolve("acme/widget")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Path).To(Equal("/src/fork2/widget"))
	})

	It("ignores a preferred path that was not scanned", func() {
		idx := repoindex.New(statuses, map[string]string{"foo/repo-a": "/elsewhere/repo-a"})
		got, ok := idx.StatusForFullName("foo/repo-a")
		Expect(ok).To(BeTrue())
		Expect(got.Path).To(Equal("/src/foo/repo-a"))
	})

	It("reports every clone sharing a bare name", func() {
		idx := repoindex.New(statuses, nil)
		_, err := idx.Resolve("repo")
		var ambiguous *repoindex.AmbiguousMatchError
		Expect(errors.As(err, &ambiguous)).To(BeTrue())
		Expect(ambiguous.Candidates).To(HaveLen(2))
		Expect(ambiguous.Candidates[0].Path).To(Equal("/src/personal/repo"))
		Expect(ambiguous.Candidates[1].Path).To(Equal("/src/work/repo"))
		Expect(err.Error()).To(ContainSubstring("me/repo (/src/personal/repo)"))
		Expect(err.Error()).To(ContainSubstring("work/repo (/src/work/repo)"))
	})

	It("resolves a unique bare name, including repos without a remote", func() {
		idx := repoindex.New(statuses, nil)
		got, err := idx.Resolve("REPO-A")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Path).To(Equal("/src/foo/repo-a"))

		got, err = idx.Resolve("scratch")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.FullName).To(BeNil())
	})

	It("groups by lowercased basename", func() {
		idx := repoindex.New(statuses, nil)
		byName := idx.ByNameLowercased()
		Expect(byName).To(HaveKey("repo"))
		Expect(byName["repo"]).To(HaveLen(2))
		Expect(idx.Lookup("Widget")).To(HaveLen(2))
		Expect(idx.Lookup("missing")).To(BeEmpty())
		Expect(idx.Len()).To(Equal(6))
	})

	It("returns ErrNotFound for unknown selectors", func() {
		idx := repoindex.New(statuses, nil)
		_, err := idx.Resolve("nobody/nothing")
		Expect(err).To(MatchError(repoindex.ErrNotFound))
		_, err = idx.Resolve("   ")
		Expect(err).To(MatchError("empty selector"))
	})

	It("resolves absolute and relative paths through symlinks", func() {
		base := GinkgoT().TempDir()
		repo := filepath.Join(base, "checkout")
		Expect(os.MkdirAll(repo, 0o755)).To(Succeed())
		link := filepath.Join(base, "link")
		Expect(os.Symlink(repo, link)).To(Succeed())

		idx := repoindex.New([]model.LocalRepoStatus{status(repo, "")}, nil)
		got, err := idx.Resolve(link)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Path).To(Equal(repo))

		wd, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(base)).To(Succeed())
		DeferCleanup(os.Chdir, wd)
		got, err = idx.Resolve("./checkout")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Path).To(Equal(repo))

		_, err = idx.Resolve(filepath.Join(base, "other"))
		Expect(err).To(MatchError(repoindex.ErrNotFound))
	})
})
