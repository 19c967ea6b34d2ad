package isolation

import (
	"github.com/grizzdank/rembrandt/internal/worktree"
)

// WorktreeIsolation gives each agent its own working tree under
// .rembrandt/agents/<agent_id>.
type WorktreeIsolation struct{}

func (WorktreeIsolation) Mode() Mode { return ModeWorktree }

func (WorktreeIsolation) Prepare(repoPath, agentID, baseBranch string) (Context, error) {
	p, err := worktree.NewProvisioner(repoPath)
	if err != nil {
		return Context{}, err
	}
	info, err := p.CreateWorktree(agentID, baseBranch)
	if err != nil {
		return Context{}, err
	}
	return Context{
		AgentID:      agentID,
		Mode:         ModeWorktree,
		RepoPath:     repoPath,
		CheckoutPath: info.Path,
		BranchName:   info.Branch,
	}, nil
}

func (WorktreeIsolation) Cleanup(ctx Context) error {
	p, err := worktree.NewProvisioner(ctx.RepoPath)
	if err != nil {
		return err
	}
	return p.RemoveWorktree(ctx.AgentID, true)
}
