package discovery_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/repobar/internal/discovery"
)

func gitInit(path string) {
	GinkgoHelper()
	out, err := exec.Command("git", "init", "-q", path).CombinedOutput()
	Expect(err).NotTo(HaveOccurred(), string(out))
}

var _ = Describe("Discovery", func() {
	It("matches exclude patterns", func() {
		Expect(discovery.MatchesExclude("C:/code/repo/.git", []string{"**/.git/**"})).To(BeTrue())
		Expect(discovery.MatchesExclude("C:/code/repo", []string{"**/node_modules/**"})).To(BeFalse())
	})

	It("scans for git repositories", func() {
		root := GinkgoT().TempDir()
		repo := filepath.Join(root, "repo1")
		gitInit(repo)

		results, err := discovery.Scan(context.Background(), discovery.Options{Root: root, MaxDepth: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(Equal([]string{repo}))
	})

	It("returns results sorted by path", func() {
		root := GinkgoT().TempDir()
		for _, name := range []string{"zeta", "alpha", "mid"} {
			gitInit(filepath.Join(root, name))
		}
		results, err := discovery.Scan(context.Background(), discovery.Options{Root: root, MaxDepth: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(Equal([]string{
			filepath.Join(root, "alpha"),
			filepath.Join(root, "mid"),
			filepath.Join(root, "zeta"),
		}))
	})

	It("counts depth as hops from the root to the repository", func() {
		root := GinkgoT().TempDir()
		repo := filepath.Join(root, "l1", "l2", "l3", "repo")
		Expect(os.MkdirAll(filepath.Dir(repo), 0o755)).To(Succeed())
		gitInit(repo)

		results, err := discovery.Scan(context.Background(), discovery.Options{Root: root, MaxDepth: 3})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())

		results, err = discovery.Scan(context.Background(), discovery.Options{Root: root, MaxDepth: 4})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(Equal([]string{repo}))
	})

	It("checks only immediate children at depth 1", func() {
		root := GinkgoT().TempDir()
		top := filepath.Join(root, "top")
		nested := filepath.Join(root, "group", "nested")
		gitInit(top)
		Expect(os.MkdirAll(filepath.Dir(nested), 0o755)).To(Succeed())
		gitInit(nested)

		results, err := discovery.Scan(context.Background(), discovery.Options{Root: root, MaxDepth: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(Equal([]string{top}))
	})

	It("does not descend into repositories", func() {
		root := GinkgoT().TempDir()
		outer := filepath.Join(root, "outer")
		gitInit(outer)
		gitInit(filepath.Join(outer, "inner"))

		results, err := discovery.Scan(context.Background(), discovery.Options{Root: root, MaxDepth: 4})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(Equal([]string{outer}))
	})

	It("skips hidden and heavy directories", func() {
		root := GinkgoT().TempDir()
		for _, dir := range []string{".hidden", "node_modules", "Library"} {
			Expect(os.MkdirAll(filepath.Join(root, dir), 0o755)).To(Succeed())
			gitInit(filepath.Join(root, dir, "repo"))
		}

		results, err := discovery.Scan(context.Background(), discovery.Options{Root: root, MaxDepth: 3})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("reports working copies named like heavy directories", func() {
		root := GinkgoT().TempDir()
		vendor := filepath.Join(root, "vendor")
		pods := filepath.Join(root, "group", "Pods")
		gitInit(vendor)
		gitInit(pods)
		Expect(os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755)).To(Succeed())
		gitInit(filepath.Join(root, "node_modules", "pkg", "repo"))

		results, err := discovery.Scan(context.Background(), discovery.Options{Root: root, MaxDepth: 3})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(Equal([]string{filepath.Join(root, "group", "Pods"), vendor}))
	})

	It("respects exclude patterns during scan", func() {
		root := GinkgoT().TempDir()
		repo := filepath.Join(root, "archive", "repo2")
		Expect(os.MkdirAll(filepath.Dir(repo), 0o755)).To(Succeed())
		gitInit(repo)

		results, err := discovery.Scan(context.Background(), discovery.Options{
			Root:     root,
			MaxDepth: 3,
			Exclude:  []string{"**/archive/**"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("detects linked .git files", func() {
		root := GinkgoT().TempDir()
		repo := filepath.Join(root, "repo3")
		gitInit(repo)

		gitDir := filepath.Join(root, "repo3.gitdir")
		Expect(os.Rename(filepath.Join(repo, ".git"), gitDir)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(repo, ".git"), []byte("gitdir: "+gitDir), 0o644)).To(Succeed())

		results, err := discovery.Scan(context.Background(), discovery.Options{Root: root, MaxDepth: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(Equal([]string{repo}))
	})

	It("skips unreadable subdirectories", func() {
		if os.Geteuid() == 0 {
			Skip("permission bits are not enforced for root")
		}
		root := GinkgoT().TempDir()
		visible := filepath.Join(root, "visible")
		gitInit(visible)
		locked := filepath.Join(root, "locked")
		Expect(os.MkdirAll(filepath.Join(locked, "inside"), 0o755)).To(Succeed())
		Expect(os.Chmod(locked, 0o000)).To(Succeed())
		DeferCleanup(func() { _ = os.Chmod(locked, 0o755) })

		results, err := discovery.Scan(context.Background(), discovery.Options{Root: root, MaxDepth: 3})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(Equal([]string{visible}))
	})

	It("follows symlinked directories when asked", func() {
		root := GinkgoT().TempDir()
		elsewhere := GinkgoT().TempDir()
		target := filepath.Join(elsewhere, "linked")
		gitInit(target)
		link := filepath.Join(root, "linked")
		Expect(os.Symlink(target, link)).To(Succeed())

		results, err := discovery.Scan(context.Background(), discovery.Options{Root: root, MaxDepth: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())

		results, err = discovery.Scan(context.Background(), discovery.Options{Root: root, MaxDepth: 2, FollowSymlinks: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(Equal([]string{link}))
	})

	It("reports a missing root", func() {
		_, err := discovery.Scan(context.Background(), discovery.Options{Root: filepath.Join(GinkgoT().TempDir(), "missing")})
		var scanErr *discovery.Error
		Expect(errors.As(err, &scanErr)).To(BeTrue())
		Expect(scanErr.Reason).To(Equal(discovery.ReasonNotFound))
	})

	It("reports a root that is a file", func() {
		file := filepath.Join(GinkgoT().TempDir(), "file.txt")
		Expect(os.WriteFile(file, []byte("x"), 0o644)).To(Succeed())
		_, err := discovery.Scan(context.Background(), discovery.Options{Root: file})
		var scanErr *discovery.Error
		Expect(errors.As(err, &scanErr)).To(BeTrue())
		Expect(scanErr.Reason).To(Equal(discovery.ReasonNotDirectory))
	})

	It("honors context cancellation", func() {
		root := GinkgoT().TempDir()
		gitInit(filepath.Join(root, "repo"))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := discovery.Scan(ctx, discovery.Options{Root: root})
		Expect(err).To(MatchError(context.Canceled))
	})
})
