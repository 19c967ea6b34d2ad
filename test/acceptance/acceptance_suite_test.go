package acceptance_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var binaryPath string

func TestAcceptance(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Acceptance Suite")
}

var _ = BeforeSuite(func() {
	// Build the binary once for all acceptance tests
	_, thisFile, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	binaryPath = filepath.Join(projectRoot, "bin", "rembrandt-test")

	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/rembrandt")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	Expect(err).NotTo(HaveOccurred(), "Failed to build binary: %s", string(output))
})

// setupTestRepo creates a temp dir holding a git repo with one commit on
// main and a .rembrandt.yaml whose agent runs the given shell script.
func setupTestRepo(pattern, agentScript string) (tmpDir, repoDir string) {
	tmpDir, err := os.MkdirTemp("", pattern)
	Expect(err).NotTo(HaveOccurred())
	repoDir = filepath.Join(tmpDir, "repo")
	Expect(os.MkdirAll(repoDir, 0o755)).To(Succeed())

	runGit(repoDir, "init", "-b", "main")
	runGit(repoDir, "config", "user.name", "Test")
	runGit(repoDir, "config", "user.email", "test@test.com")
	writeFile(filepath.Join(repoDir, "README.md"), "hello\n")
	runGit(repoDir, "add", "-A")
	runGit(repoDir, "commit", "-m", "initial commit")

	writeFile(filepath.Join(repoDir, ".rembrandt.yaml"), `
agent:
  command: "/bin/sh"
  args: ["-c", "`+agentScript+`"]

settings:
  poll_interval: 200ms
`)
	return tmpDir, repoDir
}

// cleanupTestRepo cleans up git worktrees and removes the temporary directory.
func cleanupTestRepo(repoDir, tmpDir string) {
	exec.Command("git", "-C", repoDir, "worktree", "prune").Run()
	os.RemoveAll(tmpDir)
}

func writeFile(path, content string) {
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
}

func runGit(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test",
		"GIT_AUTHOR_EMAIL=test@test.com",
		"GIT_COMMITTER_NAME=Test",
		"GIT_COMMITTER_EMAIL=test@test.com",
	)
	out, err := cmd.CombinedOutput()
	Expect(err).NotTo(HaveOccurred(), "git %v: %s", args, string(out))
	return strings.TrimSpace(string(out))
}

// runCLI runs the built binary in repoDir and returns combined output.
func runCLI(repoDir string, args ...string) (string, error) {
	cmd := exec.Command(binaryPath, args...)
	cmd.Dir = repoDir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// mustCLI runs the binary and asserts success.
func mustCLI(repoDir string, args ...string) string {
	out, err := runCLI(repoDir, args...)
	Expect(err).NotTo(HaveOccurred(), "rembrandt %v: %s", args, out)
	return out
}
