package isolation

import (
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/grizzdank/rembrandt/internal/errdefs"
	"github.com/grizzdank/rembrandt/internal/worktree"
)

// BranchIsolation creates rembrandt/<agent_id> from the base branch and
// points the agent at the shared checkout. An existing branch is reused.
type BranchIsolation struct{}

func (BranchIsolation) Mode() Mode { return ModeBranch }

func (BranchIsolation) Prepare(repoPath, agentID, baseBranch string) (Context, error) {
	repo, err := gogit.PlainOpen(repoPath)
	if err != nil {
		return Context{}, errdefs.Git(err)
	}

	branch := worktree.BranchName(agentID)
	branchRefName := plumbing.NewBranchReferenceName(branch)

	if _, err := repo.Reference(branchRefName, false); err != nil {
		base, err := repo.Reference(plumbing.NewBranchReferenceName(baseBranch), true)
		if err != nil {
			return Context{}, errdefs.Worktree("base branch %q not found: %v", baseBranch, err)
		}
		if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRefName, base.Hash())); err != nil {
			return Context{}, errdefs.Git(err)
		}
	}

	return Context{
		AgentID:      agentID,
		Mode:         ModeBranch,
		RepoPath:     repoPath,
		CheckoutPath: repoPath,
		BranchName:   branch,
	}, nil
}

// Cleanup is a no-op: callers decide whether the branch lives on.
func (BranchIsolation) Cleanup(Context) error { return nil }
