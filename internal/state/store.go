// Package state persists orchestration records in an embedded SQLite store
// at .rembrandt/state.db. Write-ahead logging is enabled at open time so a
// second process (the TUI, a CLI one-shot) can read consistently while the
// orchestrator writes.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/grizzdank/rembrandt/internal/errdefs"
	"github.com/grizzdank/rembrandt/internal/fileutil"
	"github.com/grizzdank/rembrandt/internal/isolation"
)

// timeLayout is fixed-width RFC3339 UTC with nanoseconds, so persisted
// timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, errdefs.State("invalid timestamp %q: %v", value, err)
	}
	return t.UTC(), nil
}

// Status is the persistent session status vocabulary.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusActive    Status = "active"
	StatusIdle      Status = "idle"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// ParseStatus maps a stored tag back to a Status.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusStarting, StatusActive, StatusIdle, StatusCompleted, StatusFailed, StatusStopped:
		return Status(value), nil
	default:
		return "", errdefs.State("unknown session status %q", value)
	}
}

// SessionRecord is the persisted view of an agent session.
// Optional fields use "" for NULL.
type SessionRecord struct {
	AgentID          string
	RuntimeKind      string
	RuntimeSessionID string
	IsolationMode    isolation.Mode
	BranchName       string
	CheckoutPath     string
	TaskID           string
	Status           Status
	Model            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Heartbeat records when an agent was last seen and why.
type Heartbeat struct {
	AgentID    string
	LastSeenAt time.Time
	Detail     string
}

// FileClaim is an advisory claim on a path; nothing enforces it.
type FileClaim struct {
	ID        int64
	AgentID   string
	Path      string
	CreatedAt time.Time
}

// Event is one orchestration event-log entry.
type Event struct {
	ID        int64
	RunID     int64 // 0 when unattached
	AgentID   string
	Kind      string
	Message   string
	CreatedAt time.Time
}

// Store is the SQLite-backed state store.
type Store struct {
	db   *sql.DB
	path string
}

// Open ensures .rembrandt/ exists, opens the store, enables WAL, and
// applies migrations idempotently.
func Open(repoPath string) (*Store, error) {
	if err := fileutil.EnsureDir(fileutil.RembrandtDir(repoPath)); err != nil {
		return nil, errdefs.Io(err)
	}
	path := fileutil.StateDBPath(repoPath)

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, errdefs.Database(err)
	}
	// One owning connection: readers and the single writer are serialized
	// by the engine; WAL lets other processes read concurrently.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errdefs.Database(fmt.Errorf("%s: %w", pragma, err))
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
  agent_id TEXT PRIMARY KEY,
  runtime_kind TEXT NOT NULL,
  runtime_session_id TEXT,
  isolation_mode TEXT NOT NULL,
  branch_name TEXT NOT NULL,
  checkout_path TEXT NOT NULL,
  task_id TEXT,
  status TEXT NOT NULL,
  model TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS file_claims (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  agent_id TEXT NOT NULL,
  path TEXT NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS heartbeats (
  agent_id TEXT PRIMARY KEY,
  last_seen_at TEXT NOT NULL,
  detail TEXT
);

CREATE TABLE IF NOT EXISTS event_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  started_at TEXT NOT NULL,
  completed_at TEXT,
  status TEXT NOT NULL,
  summary TEXT
);

CREATE TABLE IF NOT EXISTS events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id INTEGER,
  agent_id TEXT,
  kind TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at TEXT NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return errdefs.Database(err)
	}
	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO schema_migrations(version, applied_at) VALUES(1, ?)",
		formatTime(time.Now()),
	); err != nil {
		return errdefs.Database(err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// UpsertSession inserts or updates a session record. On conflict every
// field except created_at is replaced; updated_at is refreshed from the
// record (or to now when unset).
func (s *Store) UpsertSession(rec SessionRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err := s.db.Exec(`
INSERT INTO sessions (
  agent_id, runtime_kind, runtime_session_id, isolation_mode, branch_name,
  checkout_path, task_id, status, model, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(agent_id) DO UPDATE SET
  runtime_kind = excluded.runtime_kind,
  runtime_session_id = excluded.runtime_session_id,
  isolation_mode = excluded.isolation_mode,
  branch_name = excluded.branch_name,
  checkout_path = excluded.checkout_path,
  task_id = excluded.task_id,
  status = excluded.status,
  model = excluded.model,
  updated_at = excluded.updated_at`,
		rec.AgentID, rec.RuntimeKind, nullable(rec.RuntimeSessionID),
		rec.IsolationMode.String(), rec.BranchName, rec.CheckoutPath,
		nullable(rec.TaskID), string(rec.Status), nullable(rec.Model),
		formatTime(created), formatTime(updated),
	)
	if err != nil {
		return errdefs.Database(err)
	}
	return nil
}

const sessionColumns = `agent_id, runtime_kind, runtime_session_id, isolation_mode,
branch_name, checkout_path, task_id, status, model, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (SessionRecord, error) {
	var (
		rec                  SessionRecord
		runtimeSID, taskID   sql.NullString
		model                sql.NullString
		mode, status         string
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&rec.AgentID, &rec.RuntimeKind, &runtimeSID, &mode,
		&rec.BranchName, &rec.CheckoutPath, &taskID, &status, &model,
		&createdAt, &updatedAt,
	); err != nil {
		return SessionRecord{}, err
	}

	rec.RuntimeSessionID = runtimeSID.String
	rec.TaskID = taskID.String
	rec.Model = model.String

	var err error
	if rec.IsolationMode, err = isolation.ParseMode(mode); err != nil {
		return SessionRecord{}, err
	}
	if rec.Status, err = ParseStatus(status); err != nil {
		return SessionRecord{}, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return SessionRecord{}, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}

// GetSession returns the record for agentID, or nil when absent.
func (s *Store) GetSession(agentID string) (*SessionRecord, error) {
	row := s.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE agent_id = ?", agentID)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errdefs.Database(err)
	}
	return &rec, nil
}

// ListSessions returns every record, most recently updated first.
func (s *Store) ListSessions() ([]SessionRecord, error) {
	rows, err := s.db.Query("SELECT " + sessionColumns + " FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, errdefs.Database(err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, errdefs.Database(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Database(err)
	}
	return out, nil
}

// UpdateStatus sets a session's status and refreshes updated_at.
func (s *Store) UpdateStatus(agentID string, status Status) error {
	_, err := s.db.Exec(
		"UPDATE sessions SET status = ?, updated_at = ? WHERE agent_id = ?",
		string(status), formatTime(time.Now()), agentID,
	)
	if err != nil {
		return errdefs.Database(err)
	}
	return nil
}

// TouchHeartbeat upserts an agent's last-seen time.
func (s *Store) TouchHeartbeat(agentID, detail string) error {
	_, err := s.db.Exec(`
INSERT INTO heartbeats(agent_id, last_seen_at, detail) VALUES (?, ?, ?)
ON CONFLICT(agent_id) DO UPDATE SET
  last_seen_at = excluded.last_seen_at,
  detail = excluded.detail`,
		agentID, formatTime(time.Now()), nullable(detail),
	)
	if err != nil {
		return errdefs.Database(err)
	}
	return nil
}

// GetHeartbeat returns the heartbeat for agentID, or nil when absent.
func (s *Store) GetHeartbeat(agentID string) (*Heartbeat, error) {
	var (
		hb     Heartbeat
		seen   string
		detail sql.NullString
	)
	err := s.db.QueryRow(
		"SELECT agent_id, last_seen_at, detail FROM heartbeats WHERE agent_id = ?", agentID,
	).Scan(&hb.AgentID, &seen, &detail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errdefs.Database(err)
	}
	hb.Detail = detail.String
	if hb.LastSeenAt, err = parseTime(seen); err != nil {
		return nil, err
	}
	return &hb, nil
}

// ClaimFile records an advisory claim and returns its id.
func (s *Store) ClaimFile(agentID, path string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO file_claims(agent_id, path, created_at) VALUES (?, ?, ?)",
		agentID, path, formatTime(time.Now()),
	)
	if err != nil {
		return 0, errdefs.Database(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errdefs.Database(err)
	}
	return id, nil
}

// ListClaims returns claims for agentID, or all claims when agentID is "".
func (s *Store) ListClaims(agentID string) ([]FileClaim, error) {
	query := "SELECT id, agent_id, path, created_at FROM file_claims ORDER BY id"
	args := []any{}
	if agentID != "" {
		query = "SELECT id, agent_id, path, created_at FROM file_claims WHERE agent_id = ? ORDER BY id"
		args = append(args, agentID)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errdefs.Database(err)
	}
	defer rows.Close()

	var out []FileClaim
	for rows.Next() {
		var (
			c       FileClaim
			created string
		)
		if err := rows.Scan(&c.ID, &c.AgentID, &c.Path, &created); err != nil {
			return nil, errdefs.Database(err)
		}
		if c.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Database(err)
	}
	return out, nil
}

// ReleaseClaims drops every claim held by agentID.
func (s *Store) ReleaseClaims(agentID string) error {
	if _, err := s.db.Exec("DELETE FROM file_claims WHERE agent_id = ?", agentID); err != nil {
		return errdefs.Database(err)
	}
	return nil
}

// BeginRun opens an event run and returns its id.
func (s *Store) BeginRun() (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO event_runs(started_at, status) VALUES (?, 'running')",
		formatTime(time.Now()),
	)
	if err != nil {
		return 0, errdefs.Database(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errdefs.Database(err)
	}
	return id, nil
}

// CompleteRun closes an event run with a final status and summary.
func (s *Store) CompleteRun(runID int64, status, summary string) error {
	_, err := s.db.Exec(
		"UPDATE event_runs SET completed_at = ?, status = ?, summary = ? WHERE id = ?",
		formatTime(time.Now()), status, nullable(summary), runID,
	)
	if err != nil {
		return errdefs.Database(err)
	}
	return nil
}

// AppendEvent writes an event-log entry. runID 0 and agentID "" persist as
// NULL.
func (s *Store) AppendEvent(runID int64, agentID, kind, message string) (int64, error) {
	var run any
	if runID != 0 {
		run = runID
	}
	res, err := s.db.Exec(
		"INSERT INTO events(run_id, agent_id, kind, message, created_at) VALUES (?, ?, ?, ?, ?)",
		run, nullable(agentID), kind, message, formatTime(time.Now()),
	)
	if err != nil {
		return 0, errdefs.Database(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errdefs.Database(err)
	}
	return id, nil
}

// ListEvents returns the newest events first, at most limit of them.
func (s *Store) ListEvents(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		"SELECT id, run_id, agent_id, kind, message, created_at FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, errdefs.Database(err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e       Event
			runID   sql.NullInt64
			agentID sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &runID, &agentID, &e.Kind, &e.Message, &created); err != nil {
			return nil, errdefs.Database(err)
		}
		e.RunID = runID.Int64
		e.AgentID = agentID.String
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Database(err)
	}
	return out, nil
}
