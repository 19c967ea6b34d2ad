package fileutil

import "path/filepath"

// RembrandtDir returns the .rembrandt directory path for a repository.
func RembrandtDir(repoDir string) string {
	return filepath.Join(repoDir, ".rembrandt")
}

// RembrandtSubdir builds a path to a subdirectory within .rembrandt.
func RembrandtSubdir(repoDir, subdir string) string {
	return filepath.Join(repoDir, ".rembrandt", subdir)
}

// AgentsDir returns the directory holding per-agent worktree checkouts.
func AgentsDir(repoDir string) string {
	return RembrandtSubdir(repoDir, "agents")
}

// AgentWorktreePath returns the canonical worktree path for an agent.
func AgentWorktreePath(repoDir, agentID string) string {
	return filepath.Join(AgentsDir(repoDir), agentID)
}

// LogsDir returns the directory holding persistent PTY session logs.
func LogsDir(repoDir string) string {
	return RembrandtSubdir(repoDir, "logs")
}

// SessionLogPath returns the raw PTY log path for a session.
func SessionLogPath(repoDir, sessionID string) string {
	return filepath.Join(LogsDir(repoDir), sessionID+".log")
}

// StateDBPath returns the embedded SQL store path for a repository.
func StateDBPath(repoDir string) string {
	return RembrandtSubdir(repoDir, "state.db")
}
