// Package orchestrator binds isolation, runtime, and persistent state into
// the public API the CLI and UI call.
package orchestrator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/grizzdank/rembrandt/internal/errdefs"
	"github.com/grizzdank/rembrandt/internal/isolation"
	"github.com/grizzdank/rembrandt/internal/runtime"
	"github.com/grizzdank/rembrandt/internal/state"
)

// SpawnRequest carries everything needed to start an agent session.
type SpawnRequest struct {
	AgentID       string
	BaseBranch    string
	IsolationMode isolation.Mode
	Prompt        string
	Model         string
	TaskID        string
}

// SpawnResult is returned after a successful spawn.
type SpawnResult struct {
	Session   state.SessionRecord
	Workspace isolation.Context
}

// Orchestrator coordinates runtime, isolation, and the state store.
type Orchestrator struct {
	repoPath string
	runtime  runtime.Adapter
	store    *state.Store
}

// New opens the repository's state store and builds an orchestrator around
// the given runtime adapter.
func New(repoPath string, rt runtime.Adapter) (*Orchestrator, error) {
	store, err := state.Open(repoPath)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		repoPath: repoPath,
		runtime:  rt,
		store:    store,
	}, nil
}

// Store exposes the state store for read-side consumers.
func (o *Orchestrator) Store() *state.Store { return o.store }

// Close releases the state store.
func (o *Orchestrator) Close() error { return o.store.Close() }

// SpawnAgent provisions a workspace, spawns the agent in it, and persists
// the session record. If the runtime spawn fails the workspace is cleaned
// up before the error returns, so the repository is left without orphan
// branches or worktrees.
func (o *Orchestrator) SpawnAgent(req SpawnRequest) (SpawnResult, error) {
	if req.AgentID == "" {
		return SpawnResult{}, errdefs.Agent("agent id is required")
	}
	strategy, err := isolation.ForMode(req.IsolationMode)
	if err != nil {
		return SpawnResult{}, err
	}

	workspace, err := strategy.Prepare(o.repoPath, req.AgentID, req.BaseBranch)
	if err != nil {
		return SpawnResult{}, err
	}

	handle, err := o.runtime.Spawn(req.AgentID, workspace, req.Prompt, req.Model)
	if err != nil {
		if cleanupErr := strategy.Cleanup(workspace); cleanupErr != nil {
			slog.Warn("spawn rollback cleanup failed",
				"agent", req.AgentID, "err", cleanupErr)
		}
		return SpawnResult{}, err
	}

	now := time.Now().UTC()
	rec := state.SessionRecord{
		AgentID:          req.AgentID,
		RuntimeKind:      o.runtime.Name(),
		RuntimeSessionID: handle.RuntimeSessionID,
		IsolationMode:    workspace.Mode,
		BranchName:       workspace.BranchName,
		CheckoutPath:     workspace.CheckoutPath,
		TaskID:           req.TaskID,
		Status:           state.StatusStarting,
		Model:            handle.Model,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := o.store.UpsertSession(rec); err != nil {
		return SpawnResult{}, err
	}
	if err := o.store.TouchHeartbeat(req.AgentID, "spawned"); err != nil {
		return SpawnResult{}, err
	}
	_, _ = o.store.AppendEvent(0, req.AgentID, "spawned",
		fmt.Sprintf("runtime %s session %s on %s", rec.RuntimeKind, rec.RuntimeSessionID, rec.BranchName))

	slog.Info("agent spawned",
		"agent", req.AgentID, "branch", workspace.BranchName,
		"mode", workspace.Mode, "runtime", rec.RuntimeKind)

	return SpawnResult{Session: rec, Workspace: workspace}, nil
}

// ListAgents returns every persisted session, most recently updated first.
func (o *Orchestrator) ListAgents() ([]state.SessionRecord, error) {
	return o.store.ListSessions()
}

// GetStatus returns the persisted record for agentID, or nil when absent.
func (o *Orchestrator) GetStatus(agentID string) (*state.SessionRecord, error) {
	return o.store.GetSession(agentID)
}

// RefreshRuntimeStatus asks the runtime for the agent's live status, maps
// it into the persistent vocabulary, and stores it. Returns nil when the
// agent is unknown or has no runtime session.
func (o *Orchestrator) RefreshRuntimeStatus(agentID string) (*state.Status, error) {
	rec, err := o.store.GetSession(agentID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.RuntimeSessionID == "" {
		return nil, nil
	}

	rtStatus, err := o.runtime.Status(rec.RuntimeSessionID)
	if err != nil {
		return nil, err
	}

	mapped := mapRuntimeStatus(rtStatus)
	if err := o.store.UpdateStatus(agentID, mapped); err != nil {
		return nil, err
	}
	if err := o.store.TouchHeartbeat(agentID, "status-refreshed"); err != nil {
		return nil, err
	}
	return &mapped, nil
}

// KillAgent stops the agent's runtime best-effort and marks the record
// Stopped. Intentionally tolerant: the runtime may already be dead.
func (o *Orchestrator) KillAgent(agentID string) error {
	rec, err := o.store.GetSession(agentID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	if rec.RuntimeSessionID != "" {
		if err := o.runtime.Stop(rec.RuntimeSessionID); err != nil {
			slog.Debug("runtime stop failed", "agent", agentID, "err", err)
		}
	}

	if err := o.store.UpdateStatus(agentID, state.StatusStopped); err != nil {
		return err
	}
	if err := o.store.TouchHeartbeat(agentID, "stopped"); err != nil {
		return err
	}
	_, _ = o.store.AppendEvent(0, agentID, "killed", "agent stopped by operator")

	slog.Info("agent killed", "agent", agentID)
	return nil
}

// SteerAgent delivers a message to the agent. A missing record is a no-op;
// runtime errors propagate unchanged.
func (o *Orchestrator) SteerAgent(agentID, message string) error {
	rec, err := o.store.GetSession(agentID)
	if err != nil {
		return err
	}
	if rec == nil || rec.RuntimeSessionID == "" {
		return nil
	}

	if err := o.runtime.SendMessage(rec.RuntimeSessionID, message); err != nil {
		return err
	}
	if err := o.store.TouchHeartbeat(agentID, "message-sent"); err != nil {
		return err
	}
	_, _ = o.store.AppendEvent(0, agentID, "steered", message)
	return nil
}

// RecordExit persists a session's exit edge. Non-zero exits mark the
// record Failed; a clean exit does not touch the persistent status, since
// exit 0 does not necessarily mean the task is complete — completion stays
// an explicit caller-driven action.
func (o *Orchestrator) RecordExit(agentID string, exitCode int) error {
	rec, err := o.store.GetSession(agentID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	if exitCode != 0 {
		if err := o.store.UpdateStatus(agentID, state.StatusFailed); err != nil {
			return err
		}
	}
	if err := o.store.TouchHeartbeat(agentID, "exited"); err != nil {
		return err
	}
	_, _ = o.store.AppendEvent(0, agentID, "agent-exited", fmt.Sprintf("exit code %d", exitCode))

	slog.Info("agent exited", "agent", agentID, "code", exitCode)
	return nil
}

// mapRuntimeStatus is the total map from runtime to persistent status.
// Running maps to Active to match the operator's mental model.
func mapRuntimeStatus(st runtime.Status) state.Status {
	switch st.Kind {
	case runtime.StatusStarting:
		return state.StatusStarting
	case runtime.StatusRunning:
		return state.StatusActive
	case runtime.StatusIdle:
		return state.StatusIdle
	case runtime.StatusCompleted:
		return state.StatusCompleted
	case runtime.StatusFailed:
		return state.StatusFailed
	default:
		return state.StatusStopped
	}
}
