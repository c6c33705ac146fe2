//go:build unix && !linux

package aida

import (
	"errors"

	"golang.org/x/sys/unix"
)

// EventFd is a pollable wakeup primitive backed by a non-blocking pipe.
// Wakeup makes the read end readable until Clear drains it.
type EventFd struct {
	fds [2]int
}

// NewEventFd opens the pipe pair.
func NewEventFd() (*EventFd, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, err
		}
	}
	return &EventFd{fds: fds}, nil
}

// Fd returns the read end to poll for POLLIN.
func (e *EventFd) Fd() int { return e.fds[0] }

// Wakeup makes Fd readable.
func (e *EventFd) Wakeup() error {
	for {
		_, err := unix.Write(e.fds[1], []byte{'W'})
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		return err
	}
}

// Clear consumes pending wakeups.
func (e *EventFd) Clear() {
	var buf [64]byte
	for {
		n, err := unix.Read(e.fds[0], buf[:])
		if err == unix.EINTR || n == len(buf) {
			continue
		}
		return
	}
}

// Close releases both descriptors.
func (e *EventFd) Close() error {
	if e.fds[0] < 0 {
		return errors.New("eventfd already closed")
	}
	err := unix.Close(e.fds[0])
	if err2 := unix.Close(e.fds[1]); err == nil {
		err = err2
	}
	e.fds = [2]int{-1, -1}
	return err
}
