package session

import (
	"os"
	"path/filepath"

	"github.com/grizzdank/rembrandt/internal/fileutil"
)

// Logger appends raw PTY bytes to a persistent log file. ANSI sequences are
// preserved so a replay can reconstruct terminal state. Logs survive
// session cleanup and daemon restarts; the file is opened in append mode.
type Logger struct {
	f            *os.File
	path         string
	bytesWritten int
}

// NewLogger opens (or creates) the log file at path.
func NewLogger(path string) (*Logger, error) {
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Logger{f: f, path: path}, nil
}

// Write appends data to the log.
func (l *Logger) Write(p []byte) (int, error) {
	n, err := l.f.Write(p)
	l.bytesWritten += n
	return n, err
}

// Path returns the log file location.
func (l *Logger) Path() string { return l.path }

// BytesWritten returns the total bytes appended through this logger.
func (l *Logger) BytesWritten() int { return l.bytesWritten }

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	return l.f.Close()
}
