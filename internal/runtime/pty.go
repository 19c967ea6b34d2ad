package runtime

import (
	"strings"

	"github.com/grizzdank/rembrandt/internal/errdefs"
	"github.com/grizzdank/rembrandt/internal/isolation"
	"github.com/grizzdank/rembrandt/internal/session"
)

// PtyAdapter drives agents as PTY subprocesses through a session manager.
// The runtime session id is the PTY session id, so steering, history, and
// attach all address the same thing.
type PtyAdapter struct {
	manager *session.Manager
	command string
	args    []string
	rows    uint16
	cols    uint16
}

// NewPtyAdapter builds the default adapter. command is the agent binary to
// run in every workspace (e.g. "claude").
func NewPtyAdapter(manager *session.Manager, command string, args []string, rows, cols uint16) *PtyAdapter {
	return &PtyAdapter{
		manager: manager,
		command: command,
		args:    args,
		rows:    rows,
		cols:    cols,
	}
}

// Manager exposes the underlying session manager for I/O consumers.
func (a *PtyAdapter) Manager() *session.Manager { return a.manager }

func (a *PtyAdapter) Name() string { return "pty" }

func (a *PtyAdapter) Spawn(agentID string, workspace isolation.Context, prompt, model string) (AgentHandle, error) {
	if a.command == "" {
		return AgentHandle{}, errdefs.Runtime("no agent command configured")
	}

	id, err := a.manager.Spawn(session.SpawnSpec{
		AgentID:  agentID,
		Command:  a.command,
		Args:     a.args,
		Workdir:  workspace.CheckoutPath,
		Rows:     a.rows,
		Cols:     a.cols,
		Branch:   workspace.BranchName,
		Isolated: workspace.Mode == isolation.ModeWorktree,
	})
	if err != nil {
		return AgentHandle{}, err
	}

	// Deliver the initial prompt through the PTY so the agent starts with
	// work on its easel instead of idling on stdin.
	if prompt != "" {
		if err := a.manager.Write(id, []byte(prompt+"\n")); err != nil {
			_ = a.manager.Kill(id)
			a.manager.Remove(id)
			return AgentHandle{}, errdefs.Runtime("delivering prompt to %s: %v", agentID, err)
		}
	}

	return AgentHandle{
		RuntimeSessionID: id,
		AgentID:          agentID,
		Model:            model,
		Metadata: map[string]string{
			"command": a.command,
		},
	}, nil
}

func (a *PtyAdapter) SendMessage(runtimeSessionID, text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return a.manager.Write(runtimeSessionID, []byte(text))
}

func (a *PtyAdapter) Status(runtimeSessionID string) (Status, error) {
	s, err := a.manager.Get(runtimeSessionID)
	if err != nil {
		if errdefs.IsSessionNotFound(err) {
			// Cleaned up or never ours anymore: from the runtime's side the
			// agent is gone.
			return Status{Kind: StatusStopped}, nil
		}
		return Status{}, err
	}

	st := s.Poll()
	switch st.Kind {
	case session.StatusExited:
		switch st.ExitCode {
		case 0:
			return Status{Kind: StatusCompleted}, nil
		case -1:
			return Status{Kind: StatusStopped}, nil
		default:
			return Status{Kind: StatusFailed, Reason: st.String()}, nil
		}
	case session.StatusFailed:
		return Status{Kind: StatusFailed, Reason: st.Reason}, nil
	}

	// Running: distinguish starting / active / idle by output activity.
	drained := s.ReadAvailable()
	switch {
	case drained > 0:
		return Status{Kind: StatusRunning}, nil
	case len(s.ReadOutputRaw()) == 0:
		return Status{Kind: StatusStarting}, nil
	default:
		return Status{Kind: StatusIdle}, nil
	}
}

func (a *PtyAdapter) Stop(runtimeSessionID string) error {
	return a.manager.Kill(runtimeSessionID)
}
