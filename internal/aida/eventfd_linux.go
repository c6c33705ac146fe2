//go:build linux

package aida

import (
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"
)

// EventFd is a pollable wakeup primitive. Wakeup makes the descriptor
// readable until Clear drains it.
type EventFd struct {
	fd int
}

// NewEventFd opens a non-blocking eventfd(2).
func NewEventFd() (*EventFd, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &EventFd{fd: fd}, nil
}

// Fd returns the descriptor to poll for POLLIN.
func (e *EventFd) Fd() int { return e.fd }

// Wakeup makes Fd readable.
func (e *EventFd) Wakeup() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(e.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			// counter saturated, still readable
			return nil
		}
		return err
	}
}

// Clear consumes pending wakeups.
func (e *EventFd) Clear() {
	var buf [8]byte
	for {
		_, err := unix.Read(e.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// Close releases the descriptor.
func (e *EventFd) Close() error {
	if e.fd < 0 {
		return errors.New("eventfd already closed")
	}
	err := unix.Close(e.fd)
	e.fd = -1
	return err
}
