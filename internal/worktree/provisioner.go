// Package worktree materializes per-agent git worktrees and branches on top
// of the host repository. Creation is idempotent and repairs stale state
// left behind by crashes: half-deleted directories, orphaned registrations,
// residual branches.
package worktree

import (
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/grizzdank/rembrandt/internal/errdefs"
	"github.com/grizzdank/rembrandt/internal/fileutil"
	gitops "github.com/grizzdank/rembrandt/internal/git"
)

// BranchPrefix namespaces every agent branch.
const BranchPrefix = "rembrandt/"

// BranchName returns the canonical branch for an agent.
func BranchName(agentID string) string {
	return BranchPrefix + agentID
}

// Info describes a provisioned worktree.
type Info struct {
	AgentID string
	Path    string
	Branch  string
}

// Provisioner creates, lists, and removes agent worktrees.
type Provisioner struct {
	repoPath string
	repo     *gitops.Repo
}

// NewProvisioner opens a provisioner for the repository at repoPath and
// ensures the .rembrandt/agents directory exists.
func NewProvisioner(repoPath string) (*Provisioner, error) {
	if err := fileutil.EnsureDir(fileutil.AgentsDir(repoPath)); err != nil {
		return nil, errdefs.Io(err)
	}
	return &Provisioner{
		repoPath: repoPath,
		repo:     gitops.NewRepo(repoPath),
	}, nil
}

// CreateWorktree provisions a worktree for agentID branched from baseBranch.
// Calling it again for the same agent returns the existing worktree
// untouched. Stale directories, registrations, and branches from prior runs
// are repaired along the way.
func (p *Provisioner) CreateWorktree(agentID, baseBranch string) (Info, error) {
	wtPath := fileutil.AgentWorktreePath(p.repoPath, agentID)
	branch := BranchName(agentID)
	info := Info{AgentID: agentID, Path: wtPath, Branch: branch}

	if st, err := os.Stat(wtPath); err == nil && st.IsDir() {
		// A .git link marks a live worktree: reuse it verbatim.
		if _, err := os.Stat(filepath.Join(wtPath, ".git")); err == nil {
			return info, nil
		}
		// Residual directory that is not a worktree. Clear it.
		if err := os.RemoveAll(wtPath); err != nil {
			return Info{}, errdefs.Io(err)
		}
	}

	// Drop any stale registration git still carries for this path.
	// Best-effort: a failed prune only matters if the add below fails too.
	_ = p.repo.PruneWorktrees()

	repo, err := gogit.PlainOpen(p.repoPath)
	if err != nil {
		return Info{}, errdefs.Git(err)
	}

	baseRef, err := repo.Reference(plumbing.NewBranchReferenceName(baseBranch), true)
	if err != nil {
		return Info{}, errdefs.Worktree("base branch %q not found: %v", baseBranch, err)
	}

	// A residual branch from a previous session is stale; recreate it from
	// the base unless it is currently checked out.
	branchRefName := plumbing.NewBranchReferenceName(branch)
	_, refErr := repo.Reference(branchRefName, false)
	if refErr == nil && p.repo.CurrentBranch() != branch {
		_ = repo.Storer.RemoveReference(branchRefName)
		refErr = plumbing.ErrReferenceNotFound
	}
	if refErr != nil {
		if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRefName, baseRef.Hash())); err != nil {
			return Info{}, errdefs.Git(err)
		}
	}

	if err := p.repo.AddWorktree(wtPath, branch); err != nil {
		return Info{}, errdefs.Worktree("adding worktree for %s: %v", agentID, err)
	}

	return info, nil
}

// RemoveWorktree unregisters and deletes an agent's worktree. The on-disk
// directory is always removed, even if the git-side prune fails. Branch
// deletion is best-effort so cleanup never fails on a protected branch.
func (p *Provisioner) RemoveWorktree(agentID string, deleteBranch bool) error {
	wtPath := fileutil.AgentWorktreePath(p.repoPath, agentID)

	_ = p.repo.RemoveWorktree(wtPath)
	_ = p.repo.PruneWorktrees()

	if _, err := os.Stat(wtPath); err == nil {
		if err := os.RemoveAll(wtPath); err != nil {
			return errdefs.Io(err)
		}
	}

	if deleteBranch {
		branch := BranchName(agentID)
		if p.repo.BranchExists(branch) {
			_ = p.repo.DeleteBranch(branch)
		}
	}

	return nil
}

// ListWorktrees enumerates agent worktrees registered with git.
func (p *Provisioner) ListWorktrees() ([]Info, error) {
	entries, err := p.repo.ListWorktrees()
	if err != nil {
		return nil, errdefs.Git(err)
	}

	agentsDir := fileutil.AgentsDir(p.repoPath)
	var out []Info
	for _, e := range entries {
		if !strings.HasPrefix(e.Path, agentsDir+string(filepath.Separator)) {
			continue
		}
		out = append(out, Info{
			AgentID: filepath.Base(e.Path),
			Path:    e.Path,
			Branch:  e.Branch,
		})
	}
	return out, nil
}

// RepoPath returns the host repository path.
func (p *Provisioner) RepoPath() string {
	return p.repoPath
}
