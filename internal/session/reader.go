package session

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by Reader.Read when no output is pending.
var ErrWouldBlock = errors.New("pty read would block")

// Reader is a non-blocking handle on a session's PTY output.
//
// The descriptor is duplicated from the PTY master and switched to
// O_NONBLOCK, because the pty package's own *os.File reader integrates with
// the runtime poller and would park the goroutine. A Reader is owned by its
// session until loaned out via TakeReader; the loan is exclusive.
type Reader struct {
	fd int
}

// newReader duplicates masterFd into a non-blocking descriptor.
func newReader(masterFd int) (*Reader, error) {
	fd, err := unix.Dup(masterFd)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &Reader{fd: fd}, nil
}

// Read drains up to len(p) bytes without blocking. It returns ErrWouldBlock
// when the PTY has nothing pending and io.EOF once the slave side is gone
// (Linux reports EIO on a master whose slave closed).
func (r *Reader) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(r.fd, p)
		if n < 0 {
			n = 0
		}
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		case errors.Is(err, unix.EIO):
			return 0, io.EOF
		case err != nil:
			return n, err
		case n == 0:
			return 0, io.EOF
		default:
			return n, nil
		}
	}
}

// Close releases the duplicated descriptor.
func (r *Reader) Close() error {
	return unix.Close(r.fd)
}
