// Package runtime abstracts how an agent subprocess is actually driven.
// The orchestrator only speaks this interface; the default adapter runs the
// agent command in a PTY, while other adapters may drive an agent library
// without one.
package runtime

import "github.com/grizzdank/rembrandt/internal/isolation"

// AgentHandle is what an adapter returns from Spawn: enough for the
// orchestrator to address the subprocess afterwards.
type AgentHandle struct {
	RuntimeSessionID string
	AgentID          string
	Model            string
	Metadata         map[string]string
}

// StatusKind discriminates runtime agent statuses.
type StatusKind int

const (
	StatusStarting StatusKind = iota
	StatusRunning
	StatusIdle
	StatusCompleted
	StatusFailed
	StatusStopped
)

// Status is the runtime-side lifecycle vocabulary. It is deliberately
// larger than the persistent vocabulary; the orchestrator maps it down.
type Status struct {
	Kind   StatusKind
	Reason string // set for StatusFailed
}

func (s Status) String() string {
	switch s.Kind {
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusIdle:
		return "idle"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed: " + s.Reason
	default:
		return "stopped"
	}
}

// Adapter drives agent subprocesses for the orchestrator.
type Adapter interface {
	// Name identifies the adapter; it is persisted as runtime_kind.
	Name() string

	// Spawn starts an agent in the prepared workspace. Implementations must
	// not leak resources on failure.
	Spawn(agentID string, workspace isolation.Context, prompt, model string) (AgentHandle, error)

	// SendMessage delivers a steering message to the agent.
	SendMessage(runtimeSessionID, text string) error

	// Status reports the agent's current lifecycle state.
	Status(runtimeSessionID string) (Status, error)

	// Stop requests orderly termination.
	Stop(runtimeSessionID string) error
}
