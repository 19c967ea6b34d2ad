package acceptance_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("rembrandt worktree", func() {
	var tmpDir, repoDir string

	BeforeEach(func() {
		tmpDir, repoDir = setupTestRepo("rembrandt-worktree-*", "true")
	})

	AfterEach(func() {
		cleanupTestRepo(repoDir, tmpDir)
	})

	It("creates a worktree and branch under the rembrandt namespace", func() {
		out := mustCLI(repoDir, "worktree", "create", "a1", "--base", "main")
		Expect(out).To(ContainSubstring("rembrandt/a1"))

		wtPath := filepath.Join(repoDir, ".rembrandt", "agents", "a1")
		Expect(filepath.Join(wtPath, ".git")).To(BeAnExistingFile())
		Expect(filepath.Join(wtPath, "README.md")).To(BeAnExistingFile())

		branches := runGit(repoDir, "branch", "--list", "rembrandt/a1")
		Expect(branches).To(ContainSubstring("rembrandt/a1"))
	})

	It("is idempotent across repeated creates", func() {
		first := mustCLI(repoDir, "worktree", "create", "a1", "--base", "main")
		second := mustCLI(repoDir, "worktree", "create", "a1", "--base", "main")
		Expect(second).To(Equal(first))
	})

	It("repairs a worktree whose directory was deleted from disk", func() {
		mustCLI(repoDir, "worktree", "create", "a2", "--base", "main")

		wtPath := filepath.Join(repoDir, ".rembrandt", "agents", "a2")
		Expect(os.RemoveAll(wtPath)).To(Succeed())

		mustCLI(repoDir, "worktree", "create", "a2", "--base", "main")
		Expect(filepath.Join(wtPath, ".git")).To(BeAnExistingFile())

		branches := runGit(repoDir, "branch", "--list", "rembrandt/a2")
		Expect(branches).To(ContainSubstring("rembrandt/a2"))
	})

	It("lists agent worktrees", func() {
		mustCLI(repoDir, "worktree", "create", "a1", "--base", "main")
		mustCLI(repoDir, "worktree", "create", "a2", "--base", "main")

		out := mustCLI(repoDir, "worktree", "list")
		Expect(out).To(ContainSubstring("a1"))
		Expect(out).To(ContainSubstring("a2"))
		Expect(out).To(ContainSubstring("rembrandt/a1"))
	})

	It("removes the directory and optionally the branch", func() {
		mustCLI(repoDir, "worktree", "create", "a3", "--base", "main")
		wtPath := filepath.Join(repoDir, ".rembrandt", "agents", "a3")

		mustCLI(repoDir, "worktree", "remove", "a3")
		Expect(wtPath).NotTo(BeADirectory())
		Expect(runGit(repoDir, "branch", "--list", "rembrandt/a3")).To(ContainSubstring("rembrandt/a3"))

		mustCLI(repoDir, "worktree", "create", "a3", "--base", "main")
		mustCLI(repoDir, "worktree", "remove", "a3", "--delete-branch")
		Expect(runGit(repoDir, "branch", "--list", "rembrandt/a3")).To(BeEmpty())
	})

	It("fails to create from a missing base branch", func() {
		out, err := runCLI(repoDir, "worktree", "create", "a4", "--base", "does-not-exist")
		Expect(err).To(HaveOccurred())
		Expect(out).To(ContainSubstring("does-not-exist"))
	})
})
