//go:build linux

package eventqueue

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"
)

// linuxEventfd wraps a real Linux eventfd(2), matching
// one kernel counter per registered function code.
type linuxEventfd struct {
	mu     sync.Mutex
	fd     int
	closed bool
}

func newEventCounter() (eventCounter, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &linuxEventfd{fd: fd}, nil
}

func (e *linuxEventfd) Add(n uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errClosed
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], n)

	_, err := unix.Write(e.fd, buf[:])
	if err == unix.EAGAIN {
		return errWouldBlock
	}
	return err
}

func (e *linuxEventfd) Read() (uint64, error) {
	var buf [8]byte
	for {
		n, err := unix.Read(e.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n != 8 {
			continue
		}
		return binary.LittleEndian.Uint64(buf[:]), nil
	}
}

func (e *linuxEventfd) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return unix.Close(e.fd)
}
