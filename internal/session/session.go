// Package session owns supervised PTY subprocesses: one child per session,
// a bounded output history, non-blocking incremental reads, and an
// exclusive-attach reader loan. The manager in this package adds a keyed
// registry with fan-out polling and cleanup policies.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/grizzdank/rembrandt/internal/buffer"
	"github.com/grizzdank/rembrandt/internal/errdefs"
)

// readChunkSize is how much ReadAvailable drains per syscall.
const readChunkSize = 4096

// NewSessionID returns a fresh opaque session id.
func NewSessionID() string {
	return "ses-" + uuid.NewString()
}

// StatusKind discriminates Status variants.
type StatusKind int

const (
	StatusRunning StatusKind = iota
	StatusExited
	StatusFailed
)

// Status is the session lifecycle state: Running, Exited(code), or
// Failed(reason). Failed is reserved for "could not determine status".
type Status struct {
	Kind     StatusKind
	ExitCode int
	Reason   string
}

// Running is the initial status.
func Running() Status { return Status{Kind: StatusRunning} }

// Exited marks a reaped child.
func Exited(code int) Status { return Status{Kind: StatusExited, ExitCode: code} }

// Failed marks a child whose state could not be determined.
func Failed(reason string) Status { return Status{Kind: StatusFailed, Reason: reason} }

// IsRunning reports whether the status is non-terminal.
func (s Status) IsRunning() bool { return s.Kind == StatusRunning }

func (s Status) String() string {
	switch s.Kind {
	case StatusRunning:
		return "running"
	case StatusExited:
		return fmt.Sprintf("exited(%d)", s.ExitCode)
	default:
		return "failed: " + s.Reason
	}
}

// SpawnOptions configures a new PTY session.
type SpawnOptions struct {
	ID             string // generated when empty
	AgentID        string
	Command        string
	Args           []string
	Workdir        string
	BufferCapacity int
	Rows           uint16 // 0 means 24
	Cols           uint16 // 0 means 80
	Branch         string
	Isolated       bool
	TaskID         string
	TaskTitle      string
	LogPath        string // optional raw PTY log
}

// Session is one PTY, one child process, and one history buffer.
//
// The session exclusively owns its child, master, ring buffer, and log; the
// reader may be loaned out for attach, during which ReadAvailable is inert.
type Session struct {
	ID        string
	AgentID   string
	Command   string
	Args      []string
	Workdir   string
	CreatedAt time.Time
	Branch    string
	Isolated  bool
	TaskID    string
	TaskTitle string

	mu     sync.Mutex
	master *os.File
	child  *exec.Cmd
	ring   *buffer.Ring
	reader *Reader // nil while loaned or after EOF
	log    *Logger // nil when logging is disabled
	status Status
}

// Spawn opens a PTY pair, starts command under it in workdir, and wires up
// the non-blocking reader and history buffer. No partially constructed
// session escapes: on any failure every acquired resource is released.
func Spawn(opts SpawnOptions) (*Session, error) {
	if opts.Command == "" {
		return nil, errdefs.Pty("command is required")
	}
	if opts.BufferCapacity <= 0 {
		return nil, errdefs.Pty("buffer capacity must be positive")
	}
	rows, cols := opts.Rows, opts.Cols
	if rows == 0 {
		rows = 24
	}
	if cols == 0 {
		cols = 80
	}
	id := opts.ID
	if id == "" {
		id = NewSessionID()
	}

	var log *Logger
	if opts.LogPath != "" {
		var err error
		log, err = NewLogger(opts.LogPath)
		if err != nil {
			return nil, errdefs.Io(err)
		}
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Workdir

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		if log != nil {
			_ = log.Close()
		}
		return nil, errdefs.Pty("starting %s: %v", opts.Command, err)
	}

	reader, err := newReader(int(master.Fd()))
	if err != nil {
		_ = cmd.Process.Kill()
		go func() { _ = cmd.Wait() }()
		_ = master.Close()
		if log != nil {
			_ = log.Close()
		}
		return nil, errdefs.Pty("duplicating reader fd: %v", err)
	}

	return &Session{
		ID:        id,
		AgentID:   opts.AgentID,
		Command:   opts.Command,
		Args:      opts.Args,
		Workdir:   opts.Workdir,
		CreatedAt: time.Now().UTC(),
		Branch:    opts.Branch,
		Isolated:  opts.Isolated,
		TaskID:    opts.TaskID,
		TaskTitle: opts.TaskTitle,
		master:    master,
		child:     cmd,
		ring:      buffer.NewRing(opts.BufferCapacity),
		reader:    reader,
		log:       log,
		status:    Running(),
	}, nil
}

// ReadAvailable drains pending PTY output into the ring buffer in 4 KiB
// chunks and returns the number of bytes transferred. It never blocks.
// While the reader is loaned out it is a no-op; after EOF or a fatal read
// error it permanently returns 0, leaving the buffer intact.
func (s *Session) ReadAvailable() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAvailableLocked()
}

func (s *Session) readAvailableLocked() int {
	if s.reader == nil {
		return 0
	}

	total := 0
	var buf [readChunkSize]byte
	for {
		n, err := s.reader.Read(buf[:])
		if n > 0 {
			s.ring.Write(buf[:n])
			if s.log != nil {
				_, _ = s.log.Write(buf[:n]) // best-effort; history is the source of truth
			}
			total += n
		}
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				break
			}
			// EOF or fatal: retire the reader so future calls return 0.
			_ = s.reader.Close()
			s.reader = nil
			break
		}
	}
	return total
}

// Write sends bytes to the agent's stdin through the PTY.
func (s *Session) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.master.Write(data); err != nil {
		return errdefs.Pty("writing to pty: %v", err)
	}
	return nil
}

// Nudge writes a newline to wake an agent idling on stdin.
func (s *Session) Nudge() error {
	return s.Write([]byte("\n"))
}

// Resize forwards a new window size to the PTY.
func (s *Session) Resize(rows, cols uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := pty.Setsize(s.master, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return errdefs.Pty("resizing pty: %v", err)
	}
	return nil
}

// TakeReader loans the non-blocking reader to an attach consumer. While
// taken, ReadAvailable is a no-op, so an attach consumer that never returns
// the reader stalls the history.
func (s *Session) TakeReader() (*Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return nil, errdefs.Pty("reader unavailable for session %s", s.ID)
	}
	r := s.reader
	s.reader = nil
	return r, nil
}

// ReturnReader ends an attach loan. The return is advisory: when the
// session is no longer running the reader is simply dropped.
func (s *Session) ReturnReader(r *Reader) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.IsRunning() || s.reader != nil {
		_ = r.Close()
		return
	}
	s.reader = r
}

// Poll performs a non-blocking wait on the child and returns the (possibly
// updated) status. Terminal states are sticky.
func (s *Session) Poll() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollLocked()
	return s.status
}

// pollEdge polls and additionally reports whether this call transitioned
// the session out of Running. Used by the manager's fan-out poll so edge
// detection is atomic with the status update.
func (s *Session) pollEdge() (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.IsRunning() {
		return s.status, false
	}
	s.pollLocked()
	return s.status, !s.status.IsRunning()
}

func (s *Session) pollLocked() {
	if !s.status.IsRunning() {
		return
	}

	var ws unix.WaitStatus
	pid, err := unix.Wait4(s.child.Process.Pid, &ws, unix.WNOHANG, nil)
	switch {
	case err != nil:
		s.status = Failed(fmt.Sprintf("wait4: %v", err))
	case pid == 0:
		// still running
	case ws.Exited():
		s.status = Exited(ws.ExitStatus())
	case ws.Signaled():
		s.status = Exited(128 + int(ws.Signal()))
	default:
		// Stopped/continued: not an exit, keep running.
	}
}

// Kill sends SIGKILL to the child and forces status to Exited(-1). It is
// idempotent from the caller's perspective: subsequent polls observe the
// terminal state.
func (s *Session) Kill() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsRunning() {
		_ = s.child.Process.Kill()
		// Reap in the background; Poll short-circuits on terminal status.
		child := s.child
		go func() { _ = child.Wait() }()
	}
	s.status = Exited(-1)
	return nil
}

// Status returns the last observed status without polling.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsRunning reports whether the last observed status is Running.
func (s *Session) IsRunning() bool {
	return s.Status().IsRunning()
}

// ReadOutputRaw returns a copy of the buffered history, ANSI bytes intact.
func (s *Session) ReadOutputRaw() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.ReadAll()
}

// ReadOutput returns the buffered history as a display-stripped string for
// text-only consumers.
func (s *Session) ReadOutput() string {
	return stripDisplay(s.ReadOutputRaw())
}

// ClearHistory empties the ring buffer.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring.Clear()
}

// LogPath returns the persistent log location, or "" when disabled.
func (s *Session) LogPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return ""
	}
	return s.log.Path()
}

// Close kills the child if needed and releases the master, reader, and log.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsRunning() {
		_ = s.child.Process.Kill()
		child := s.child
		go func() { _ = child.Wait() }()
		s.status = Exited(-1)
	}
	if s.reader != nil {
		_ = s.reader.Close()
		s.reader = nil
	}
	_ = s.master.Close()
	if s.log != nil {
		_ = s.log.Close()
		s.log = nil
	}
}

// stripDisplay removes ANSI escape sequences (CSI, OSC, and other ESC
// sequences such as ESC ( B) and carriage returns, keeping printable text
// and newlines.
func stripDisplay(raw []byte) string {
	var out []byte
	i := 0
	for i < len(raw) {
		b := raw[i]
		switch {
		case b == 0x1b && i+1 < len(raw) && raw[i+1] == '[':
			// CSI: ESC [ params final-byte (final in 0x40..0x7e)
			j := i + 2
			for j < len(raw) && (raw[j] < 0x40 || raw[j] > 0x7e) {
				j++
			}
			i = j + 1
		case b == 0x1b && i+1 < len(raw) && raw[i+1] == ']':
			// OSC: ESC ] ... (BEL or ESC \)
			j := i + 2
			for j < len(raw) {
				if raw[j] == 0x07 {
					j++
					break
				}
				if raw[j] == 0x1b && j+1 < len(raw) && raw[j+1] == '\\' {
					j += 2
					break
				}
				j++
			}
			i = j
		case b == 0x1b:
			// Other escapes: ESC, optional intermediates (0x20..0x2f), final
			// byte; covers two-byte forms and charset selects like ESC ( B.
			j := i + 1
			for j < len(raw) && raw[j] >= 0x20 && raw[j] <= 0x2f {
				j++
			}
			i = j + 1
		case b == '\r':
			i++
		default:
			out = append(out, b)
			i++
		}
	}
	return string(out)
}

var _ io.Reader = (*Reader)(nil)
