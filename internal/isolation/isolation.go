// Package isolation abstracts how an agent's workspace is provisioned:
// a dedicated git worktree, or just a new branch on the shared checkout.
package isolation

import (
	"fmt"

	"github.com/grizzdank/rembrandt/internal/errdefs"
)

// Mode selects a workspace isolation strategy.
type Mode string

const (
	ModeBranch   Mode = "branch"
	ModeWorktree Mode = "worktree"
)

// ParseMode maps the persisted tag back to a Mode.
func ParseMode(value string) (Mode, error) {
	switch value {
	case string(ModeBranch):
		return ModeBranch, nil
	case string(ModeWorktree):
		return ModeWorktree, nil
	default:
		return "", errdefs.State("unknown isolation mode %q", value)
	}
}

func (m Mode) String() string { return string(m) }

// Context describes a provisioned workspace.
type Context struct {
	AgentID      string
	Mode         Mode
	RepoPath     string
	CheckoutPath string
	BranchName   string
}

// Strategy provisions and tears down a workspace for one agent.
type Strategy interface {
	Mode() Mode

	// Prepare materializes the workspace and returns its context.
	Prepare(repoPath, agentID, baseBranch string) (Context, error)

	// Cleanup releases whatever Prepare materialized. Used for spawn
	// rollback; must tolerate partially provisioned state.
	Cleanup(ctx Context) error
}

// ForMode returns the strategy implementing the given mode.
func ForMode(mode Mode) (Strategy, error) {
	switch mode {
	case ModeWorktree:
		return WorktreeIsolation{}, nil
	case ModeBranch:
		return BranchIsolation{}, nil
	default:
		return nil, fmt.Errorf("unknown isolation mode %q", mode)
	}
}
