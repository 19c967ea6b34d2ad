// Package errdefs defines the stable error taxonomy used on every public
// boundary of the orchestration core. Callers match with errors.As /
// errdefs.IsKind rather than string comparison.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for boundary consumers.
type Kind string

const (
	KindGit      Kind = "git"
	KindDatabase Kind = "database"
	KindIo       Kind = "io"
	KindAgent    Kind = "agent"
	KindWorktree Kind = "worktree"
	KindDaemon   Kind = "daemon"
	KindPty      Kind = "pty"
	KindRuntime  Kind = "runtime"
	KindState    Kind = "state"
)

// Error carries a taxonomy kind plus the underlying cause, if any.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == kind
}

// Git wraps a git operation failure.
func Git(err error) error { return &Error{Kind: KindGit, Err: err} }

// Database wraps an embedded SQL engine failure.
func Database(err error) error { return &Error{Kind: KindDatabase, Err: err} }

// Io wraps a filesystem or descriptor failure.
func Io(err error) error { return &Error{Kind: KindIo, Err: err} }

// Agent reports an agent-level failure.
func Agent(format string, args ...any) error {
	return &Error{Kind: KindAgent, Msg: fmt.Sprintf(format, args...)}
}

// Worktree reports a worktree provisioning failure.
func Worktree(format string, args ...any) error {
	return &Error{Kind: KindWorktree, Msg: fmt.Sprintf(format, args...)}
}

// Daemon reports a daemon lifecycle failure.
func Daemon(format string, args ...any) error {
	return &Error{Kind: KindDaemon, Msg: fmt.Sprintf(format, args...)}
}

// Pty reports a PTY or spawn failure.
func Pty(format string, args ...any) error {
	return &Error{Kind: KindPty, Msg: fmt.Sprintf(format, args...)}
}

// Runtime reports a runtime adapter failure.
func Runtime(format string, args ...any) error {
	return &Error{Kind: KindRuntime, Msg: fmt.Sprintf(format, args...)}
}

// State reports a state-store mapping failure.
func State(format string, args ...any) error {
	return &Error{Kind: KindState, Msg: fmt.Sprintf(format, args...)}
}

// SessionNotFoundError is returned by session-manager lookups for unknown ids.
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.ID)
}

// SessionNotFound constructs a SessionNotFoundError for id.
func SessionNotFound(id string) error { return &SessionNotFoundError{ID: id} }

// IsSessionNotFound reports whether err is a session lookup miss.
func IsSessionNotFound(err error) bool {
	var nf *SessionNotFoundError
	return errors.As(err, &nf)
}
