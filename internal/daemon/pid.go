package daemon

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/grizzdank/rembrandt/internal/fileutil"
)

// PIDPath returns the path to the daemon PID file for a repo.
func PIDPath(repoDir string) string {
	return fileutil.RembrandtSubdir(repoDir, "daemon.pid")
}

// WritePID writes the current process ID to the PID file.
func WritePID(repoDir string) error {
	if err := fileutil.EnsureDir(fileutil.RembrandtDir(repoDir)); err != nil {
		return err
	}
	return os.WriteFile(PIDPath(repoDir), []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}

// ReadPID reads the PID from the PID file. Returns 0 on any error.
func ReadPID(repoDir string) int {
	data, err := os.ReadFile(PIDPath(repoDir))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// RemovePID removes the PID file, ignoring errors.
func RemovePID(repoDir string) {
	os.Remove(PIDPath(repoDir))
}

// IsProcessAlive checks if a process with the given PID is still running.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// IsDaemonAlive checks if a daemon is alive by reading the PID file and
// probing the process.
func IsDaemonAlive(repoDir string) bool {
	return IsProcessAlive(ReadPID(repoDir))
}
