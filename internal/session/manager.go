package session

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/grizzdank/rembrandt/internal/errdefs"
)

// DefaultBufferCapacity is the per-session history size (256 KiB).
// Interactive agents repaint aggressively, especially during startup.
const DefaultBufferCapacity = 256 * 1024

// Info is a session summary snapshot.
type Info struct {
	ID        string
	AgentID   string
	Command   string
	Workdir   string
	Status    Status
	CreatedAt string
	Branch    string
	Isolated  bool
	TaskID    string
	TaskTitle string
}

// ExitedSession records a session's first transition out of Running.
// Failed statuses are reported with exit code -1.
type ExitedSession struct {
	SessionID string
	AgentID   string
	TaskID    string
	ExitCode  int
}

// ManagerConfig tunes a Manager. Zero value is usable.
type ManagerConfig struct {
	BufferCapacity int    // 0 means DefaultBufferCapacity
	LogsDir        string // "" disables persistent PTY logs
}

// Manager is a keyed registry of PTY sessions with fan-out operations.
// The registry map is guarded by a mutex that is never held across PTY or
// child-process syscalls; sessions serialize their own state.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cfg      ManagerConfig
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.BufferCapacity == 0 {
		cfg.BufferCapacity = DefaultBufferCapacity
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
	}
}

// SpawnSpec names everything needed to start a managed session.
type SpawnSpec struct {
	AgentID   string
	Command   string
	Args      []string
	Workdir   string
	Rows      uint16
	Cols      uint16
	Branch    string
	Isolated  bool
	TaskID    string
	TaskTitle string
}

// Spawn starts a new session and registers it. The spawn itself runs
// outside the registry lock; the session is inserted only on success.
func (m *Manager) Spawn(spec SpawnSpec) (string, error) {
	id := NewSessionID()

	logPath := ""
	if m.cfg.LogsDir != "" {
		logPath = filepath.Join(m.cfg.LogsDir, id+".log")
	}

	s, err := Spawn(SpawnOptions{
		ID:             id,
		AgentID:        spec.AgentID,
		Command:        spec.Command,
		Args:           spec.Args,
		Workdir:        spec.Workdir,
		BufferCapacity: m.cfg.BufferCapacity,
		Rows:           spec.Rows,
		Cols:           spec.Cols,
		Branch:         spec.Branch,
		Isolated:       spec.Isolated,
		TaskID:         spec.TaskID,
		TaskTitle:      spec.TaskTitle,
		LogPath:        logPath,
	})
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return id, nil
}

// get looks up a session without holding the lock past the map access.
func (m *Manager) get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errdefs.SessionNotFound(id)
	}
	return s, nil
}

// Write sends bytes to a session's PTY.
func (m *Manager) Write(id string, data []byte) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.Write(data)
}

// Nudge writes a newline to a session's PTY.
func (m *Manager) Nudge(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.Nudge()
}

// Resize forwards a window size change to a session's PTY.
func (m *Manager) Resize(id string, rows, cols uint16) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.Resize(rows, cols)
}

// Kill terminates a session's child.
func (m *Manager) Kill(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.Kill()
}

// GetHistory drains pending output once, then returns the buffered history.
func (m *Manager) GetHistory(id string) ([]byte, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	s.ReadAvailable()
	return s.ReadOutputRaw(), nil
}

// TakeReader loans a session's reader to an attach consumer.
func (m *Manager) TakeReader(id string) (*Reader, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return s.TakeReader()
}

// ReturnReader ends an attach loan. Unknown ids drop the reader: the
// session is gone and the loan has nowhere to go back to.
func (m *Manager) ReturnReader(id string, r *Reader) {
	s, err := m.get(id)
	if err != nil {
		if r != nil {
			_ = r.Close()
		}
		return
	}
	s.ReturnReader(r)
}

// Get returns the session for id.
func (m *Manager) Get(id string) (*Session, error) {
	return m.get(id)
}

// snapshot copies the current session set out of the lock.
func (m *Manager) snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// List returns summaries of every session, oldest first.
func (m *Manager) List() []Info {
	sessions := m.snapshot()
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, Info{
			ID:        s.ID,
			AgentID:   s.AgentID,
			Command:   s.Command,
			Workdir:   s.Workdir,
			Status:    s.Status(),
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
			Branch:    s.Branch,
			Isolated:  s.Isolated,
			TaskID:    s.TaskID,
			TaskTitle: s.TaskTitle,
		})
	}
	return out
}

// PollAll polls every session and returns an ExitedSession record for each
// one this call transitioned out of Running. An edge is emitted exactly
// once per session across the manager's lifetime.
func (m *Manager) PollAll() []ExitedSession {
	var edges []ExitedSession
	for _, s := range m.snapshot() {
		status, edged := s.pollEdge()
		if !edged {
			continue
		}
		code := -1
		if status.Kind == StatusExited {
			code = status.ExitCode
		}
		edges = append(edges, ExitedSession{
			SessionID: s.ID,
			AgentID:   s.AgentID,
			TaskID:    s.TaskID,
			ExitCode:  code,
		})
	}
	return edges
}

// ReadAllAvailable drains every session's pending output into its buffer.
func (m *Manager) ReadAllAvailable() {
	for _, s := range m.snapshot() {
		s.ReadAvailable()
	}
}

// Cleanup removes sessions that exited cleanly (code 0). Failures stay:
// they are the signal, and the operator must see them. Successful exits
// have persisted their artifacts into git and can be reclaimed.
func (m *Manager) Cleanup() []string {
	return m.removeWhere(func(s Status) bool {
		return s.Kind == StatusExited && s.ExitCode == 0
	})
}

// CleanupAll removes every terminal session, failures included.
func (m *Manager) CleanupAll() []string {
	return m.removeWhere(func(s Status) bool {
		return !s.IsRunning()
	})
}

func (m *Manager) removeWhere(match func(Status) bool) []string {
	var victims []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if match(s.Status()) {
			victims = append(victims, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(victims))
	for _, s := range victims {
		s.Close()
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	return ids
}

// Remove drops a single session regardless of status, releasing its
// resources. Returns false when the id is unknown.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

// ActiveCount returns how many sessions are still running.
func (m *Manager) ActiveCount() int {
	n := 0
	for _, s := range m.snapshot() {
		if s.IsRunning() {
			n++
		}
	}
	return n
}

// TotalCount returns how many sessions are registered, exited included.
func (m *Manager) TotalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// FailedSessions returns ids with a non-zero exit or Failed status.
func (m *Manager) FailedSessions() []string {
	var out []string
	for _, s := range m.snapshot() {
		st := s.Status()
		if (st.Kind == StatusExited && st.ExitCode != 0) || st.Kind == StatusFailed {
			out = append(out, s.ID)
		}
	}
	sort.Strings(out)
	return out
}

// CloseAll releases every session. Used at daemon shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
