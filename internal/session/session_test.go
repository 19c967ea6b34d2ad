package session

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// spawnShell starts a short helper under /bin/sh.
func spawnShell(t *testing.T, script string, opts SpawnOptions) *Session {
	t.Helper()
	opts.Command = "/bin/sh"
	opts.Args = []string{"-c", script}
	if opts.Workdir == "" {
		opts.Workdir = t.TempDir()
	}
	if opts.BufferCapacity == 0 {
		opts.BufferCapacity = 64 * 1024
	}
	s, err := Spawn(opts)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// drainUntil polls ReadAvailable until the history contains want or the
// deadline passes.
func drainUntil(t *testing.T, s *Session, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s.ReadAvailable()
		if strings.Contains(string(s.ReadOutputRaw()), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("history never contained %q; got %q", want, s.ReadOutputRaw())
}

// waitExited polls until the session reaches a terminal state.
func waitExited(t *testing.T, s *Session) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st := s.Poll(); !st.IsRunning() {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session never exited")
	return Status{}
}

func TestSpawnCapturesOutput(t *testing.T) {
	s := spawnShell(t, "printf 'hello from pty'", SpawnOptions{AgentID: "a1"})
	drainUntil(t, s, "hello from pty")

	if s.AgentID != "a1" {
		t.Errorf("AgentID = %q", s.AgentID)
	}
	if !strings.HasPrefix(s.ID, "ses-") {
		t.Errorf("ID = %q, want ses- prefix", s.ID)
	}
}

func TestSpawnFailsCleanly(t *testing.T) {
	_, err := Spawn(SpawnOptions{
		AgentID:        "a1",
		Command:        "/no/such/binary",
		Workdir:        t.TempDir(),
		BufferCapacity: 1024,
	})
	if err == nil {
		t.Fatal("Spawn of missing binary succeeded")
	}
}

func TestWriteReachesChild(t *testing.T) {
	s := spawnShell(t, "read line; printf 'got:%s' \"$line\"", SpawnOptions{AgentID: "a1"})

	if err := s.Write([]byte("ping\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	drainUntil(t, s, "got:ping")
}

func TestNudgeUnblocksRead(t *testing.T) {
	s := spawnShell(t, "read line; printf 'woke'", SpawnOptions{AgentID: "a1"})

	if err := s.Nudge(); err != nil {
		t.Fatalf("Nudge: %v", err)
	}
	drainUntil(t, s, "woke")
	if st := waitExited(t, s); st.Kind != StatusExited || st.ExitCode != 0 {
		t.Errorf("status = %v, want exited(0)", st)
	}
}

func TestResize(t *testing.T) {
	s := spawnShell(t, "sleep 5", SpawnOptions{AgentID: "a1"})
	if err := s.Resize(50, 132); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	_ = s.Kill()
}

func TestPollExitCode(t *testing.T) {
	s := spawnShell(t, "exit 7", SpawnOptions{AgentID: "a1"})
	st := waitExited(t, s)
	if st.Kind != StatusExited || st.ExitCode != 7 {
		t.Errorf("status = %v, want exited(7)", st)
	}
}

func TestTerminalStatusIsSticky(t *testing.T) {
	s := spawnShell(t, "true", SpawnOptions{AgentID: "a1"})
	first := waitExited(t, s)
	for i := 0; i < 5; i++ {
		if st := s.Poll(); st != first {
			t.Fatalf("poll %d changed terminal status: %v -> %v", i, first, st)
		}
	}
}

func TestKillForcesExitedMinusOne(t *testing.T) {
	s := spawnShell(t, "sleep 60", SpawnOptions{AgentID: "a1"})

	if err := s.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	want := Exited(-1)
	if st := s.Status(); st != want {
		t.Errorf("status after kill = %v, want %v", st, want)
	}
	if s.IsRunning() {
		t.Error("IsRunning() after kill")
	}
	// The genuine SIGKILL exit must not overwrite the forced status.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if st := s.Poll(); st != want {
			t.Errorf("poll after kill = %v, want %v", st, want)
		}
	}
	// Kill is idempotent.
	if err := s.Kill(); err != nil {
		t.Errorf("second Kill: %v", err)
	}
}

func TestReaderLoan(t *testing.T) {
	s := spawnShell(t, "printf 'one'; sleep 1; printf 'two'; sleep 5", SpawnOptions{AgentID: "a1"})
	drainUntil(t, s, "one")

	r, err := s.TakeReader()
	if err != nil {
		t.Fatalf("TakeReader: %v", err)
	}

	// While loaned, ReadAvailable is a no-op.
	time.Sleep(500 * time.Millisecond)
	if n := s.ReadAvailable(); n != 0 {
		t.Errorf("ReadAvailable during loan = %d, want 0", n)
	}
	if got := string(s.ReadOutputRaw()); strings.Contains(got, "two") {
		t.Errorf("history advanced during loan: %q", got)
	}

	// A second take fails until the reader is returned.
	if _, err := s.TakeReader(); err == nil {
		t.Error("second TakeReader succeeded during loan")
	}

	// The attach consumer sees the live bytes.
	var attach []byte
	buf := make([]byte, 4096)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !bytes.Contains(attach, []byte("two")) {
		n, err := r.Read(buf)
		if n > 0 {
			attach = append(attach, buf[:n]...)
		}
		if err != nil && err != ErrWouldBlock {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !bytes.Contains(attach, []byte("two")) {
		t.Errorf("attach reader never saw %q; got %q", "two", attach)
	}

	s.ReturnReader(r)
	_ = s.Kill()
}

func TestReturnReaderAfterKillDropsIt(t *testing.T) {
	s := spawnShell(t, "sleep 60", SpawnOptions{AgentID: "a1"})

	r, err := s.TakeReader()
	if err != nil {
		t.Fatalf("TakeReader: %v", err)
	}
	_ = s.Kill()
	s.ReturnReader(r) // dropped silently

	if n := s.ReadAvailable(); n != 0 {
		t.Errorf("ReadAvailable after dropped return = %d, want 0", n)
	}
}

func TestReadAvailableAfterEOFReturnsZero(t *testing.T) {
	s := spawnShell(t, "printf 'bye'", SpawnOptions{AgentID: "a1"})
	drainUntil(t, s, "bye")
	waitExited(t, s)

	// Drain until the reader hits EOF.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.ReadAvailable() == 0 {
			break
		}
	}

	if n := s.ReadAvailable(); n != 0 {
		t.Errorf("ReadAvailable after EOF = %d, want 0", n)
	}
	// History stays intact.
	if got := string(s.ReadOutputRaw()); !strings.Contains(got, "bye") {
		t.Errorf("history lost after EOF: %q", got)
	}
}

func TestSessionLogPersistsRawBytes(t *testing.T) {
	logDir := t.TempDir()
	s := spawnShell(t, "printf 'logged line'", SpawnOptions{
		AgentID: "a1",
		LogPath: filepath.Join(logDir, "test-session.log"),
	})
	drainUntil(t, s, "logged line")
	s.Close()

	data, err := os.ReadFile(filepath.Join(logDir, "test-session.log"))
	if err != nil {
		t.Fatalf("reading session log: %v", err)
	}
	if !strings.Contains(string(data), "logged line") {
		t.Errorf("log file = %q", data)
	}
}

func TestReadOutputStripsDisplay(t *testing.T) {
	s := spawnShell(t, `printf '\033[31mred\033[0m plain\n'`, SpawnOptions{AgentID: "a1"})
	drainUntil(t, s, "plain")

	got := s.ReadOutput()
	if strings.Contains(got, "\x1b") {
		t.Errorf("ReadOutput retained escapes: %q", got)
	}
	if !strings.Contains(got, "red plain") {
		t.Errorf("ReadOutput = %q, want it to contain %q", got, "red plain")
	}
}

func TestClearHistory(t *testing.T) {
	s := spawnShell(t, "printf 'forget me'", SpawnOptions{AgentID: "a1"})
	drainUntil(t, s, "forget me")

	s.ClearHistory()
	if got := s.ReadOutputRaw(); len(got) != 0 {
		t.Errorf("history after clear = %q", got)
	}
}

func TestStripDisplay(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"\x1b[1;32mbold green\x1b[0m", "bold green"},
		{"line\r\n", "line\n"},
		{"\x1b]0;title\x07text", "text"},
		{"\x1b]8;;http://x\x1b\\link", "link"},
		{"a\x1b(Bb", "ab"},
		{"\x1b[2J\x1b[Hcleared", "cleared"},
	}
	for _, tt := range tests {
		if got := stripDisplay([]byte(tt.in)); got != tt.want {
			t.Errorf("stripDisplay(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
