package acceptance_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("rembrandt spawn / agents / kill", func() {
	var tmpDir, repoDir string

	AfterEach(func() {
		cleanupTestRepo(repoDir, tmpDir)
	})

	It("spawns an agent, lists it, and kills it", func() {
		tmpDir, repoDir = setupTestRepo("rembrandt-spawn-*", "sleep 60")

		out := mustCLI(repoDir, "spawn", "a1", "--base", "main", "--mode", "worktree")
		Expect(out).To(ContainSubstring("rembrandt/a1"))

		// The persisted record starts in Starting.
		list := mustCLI(repoDir, "agents")
		Expect(list).To(ContainSubstring("a1"))
		Expect(list).To(ContainSubstring("starting"))

		// Kill marks the record Stopped; the workspace survives until
		// worktree remove is called.
		mustCLI(repoDir, "kill", "a1")
		list = mustCLI(repoDir, "agents")
		Expect(list).To(ContainSubstring("stopped"))

		Expect(filepath.Join(repoDir, ".rembrandt", "agents", "a1")).To(BeADirectory())
		Expect(runGit(repoDir, "branch", "--list", "rembrandt/a1")).To(ContainSubstring("rembrandt/a1"))

		mustCLI(repoDir, "worktree", "remove", "a1", "--delete-branch")
		Expect(filepath.Join(repoDir, ".rembrandt", "agents", "a1")).NotTo(BeADirectory())
	})

	It("records a clean exit without marking the task complete", func() {
		tmpDir, repoDir = setupTestRepo("rembrandt-exit-*", "true")

		out := mustCLI(repoDir, "spawn", "a1", "--wait", "--base", "main", "--mode", "branch", "--task", "task-1")
		Expect(out).To(ContainSubstring("exited with code 0"))

		// Exit code 0 leaves the persistent status untouched: completion is
		// an explicit caller-driven action.
		status := mustCLI(repoDir, "status", "a1")
		Expect(status).To(ContainSubstring("status:   starting"))
		Expect(status).To(ContainSubstring("task:     task-1"))
	})

	It("marks non-zero exits failed", func() {
		tmpDir, repoDir = setupTestRepo("rembrandt-fail-*", "exit 3")

		out := mustCLI(repoDir, "spawn", "a1", "--wait", "--base", "main", "--mode", "branch")
		Expect(out).To(ContainSubstring("exited with code 3"))

		status := mustCLI(repoDir, "status", "a1")
		Expect(status).To(ContainSubstring("status:   failed"))
	})

	It("treats steering an unknown agent as a no-op", func() {
		tmpDir, repoDir = setupTestRepo("rembrandt-steer-*", "true")

		out := mustCLI(repoDir, "steer", "a3", "hi")
		Expect(out).To(ContainSubstring("Sent to a3"))
	})

	It("validates agent ids", func() {
		tmpDir, repoDir = setupTestRepo("rembrandt-badid-*", "true")

		out, err := runCLI(repoDir, "spawn", "has space")
		Expect(err).To(HaveOccurred())
		Expect(out).To(ContainSubstring("agent id"))
	})

	It("persists spawn metadata in the session record", func() {
		tmpDir, repoDir = setupTestRepo("rembrandt-meta-*", "sleep 60")

		mustCLI(repoDir, "spawn", "a9", "--base", "main", "--mode", "worktree", "--model", "opus", "--task", "t-7")
		defer mustCLI(repoDir, "kill", "a9")

		status := mustCLI(repoDir, "status", "a9")
		Expect(status).To(ContainSubstring("runtime:  pty"))
		Expect(status).To(ContainSubstring("mode:     worktree"))
		Expect(status).To(ContainSubstring("model:    opus"))
		Expect(status).To(ContainSubstring("task:     t-7"))
		Expect(status).To(ContainSubstring("branch:   rembrandt/a9"))
	})
})

var _ = Describe("rembrandt init and validate", func() {
	var tmpDir, repoDir string

	BeforeEach(func() {
		tmpDir, repoDir = setupTestRepo("rembrandt-init-*", "true")
	})

	AfterEach(func() {
		cleanupTestRepo(repoDir, tmpDir)
	})

	It("accepts the repository's valid config", func() {
		// setupTestRepo already wrote a config; validate accepts it.
		out := mustCLI(repoDir, "validate")
		Expect(out).To(ContainSubstring("Configuration is valid."))
	})

	It("refuses to overwrite an existing config", func() {
		out, err := runCLI(repoDir, "init")
		Expect(err).To(HaveOccurred())
		Expect(out).To(ContainSubstring("already exists"))
	})
})
