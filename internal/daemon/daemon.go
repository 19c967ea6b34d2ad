// Package daemon runs the fan-out poll loop: it drains PTY output into
// session buffers, detects exit edges, and persists them through the
// orchestrator. One daemon per repository, guarded by a PID file.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grizzdank/rembrandt/internal/errdefs"
	"github.com/grizzdank/rembrandt/internal/orchestrator"
	"github.com/grizzdank/rembrandt/internal/session"
)

// Daemon ties a session manager and an orchestrator to a poll cadence.
type Daemon struct {
	repoPath string
	manager  *session.Manager
	orch     *orchestrator.Orchestrator
	interval time.Duration
}

// New builds a daemon polling every interval.
func New(repoPath string, manager *session.Manager, orch *orchestrator.Orchestrator, interval time.Duration) *Daemon {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Daemon{
		repoPath: repoPath,
		manager:  manager,
		orch:     orch,
		interval: interval,
	}
}

// Run polls until ctx is cancelled. A second daemon on the same repository
// refuses to start while the first one's PID is alive.
func (d *Daemon) Run(ctx context.Context) error {
	if IsDaemonAlive(d.repoPath) {
		return errdefs.Daemon("daemon already active for %s (pid %d)", d.repoPath, ReadPID(d.repoPath))
	}
	if err := WritePID(d.repoPath); err != nil {
		return errdefs.Daemon("writing PID file: %v", err)
	}
	defer RemovePID(d.repoPath)

	runID, err := d.orch.Store().BeginRun()
	if err != nil {
		return err
	}
	edgesSeen := 0
	defer func() {
		_ = d.orch.Store().CompleteRun(runID, "completed",
			fmt.Sprintf("%d exit edge(s) observed", edgesSeen))
	}()

	slog.Info("daemon started", "repo", d.repoPath, "interval", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("daemon stopped", "repo", d.repoPath)
			return nil
		case <-ticker.C:
			edgesSeen += d.Tick()
		}
	}
}

// Tick performs one fan-out pass and returns the number of exit edges
// observed. Exposed so one-shot callers can drive the loop themselves.
func (d *Daemon) Tick() int {
	d.manager.ReadAllAvailable()

	edges := d.manager.PollAll()
	for _, edge := range edges {
		slog.Info("session exited",
			"session", edge.SessionID, "agent", edge.AgentID, "code", edge.ExitCode)
		if err := d.orch.RecordExit(edge.AgentID, edge.ExitCode); err != nil {
			slog.Warn("recording exit edge failed", "agent", edge.AgentID, "err", err)
		}
	}
	return len(edges)
}
