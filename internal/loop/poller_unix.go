//go:build unix && !linux

package loop

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// poller waits with poll(2) on the registered descriptors.
type poller struct {
	mu  sync.Mutex
	fds map[int]struct{}
}

func newPoller() (*poller, error) {
	return &poller{fds: make(map[int]struct{})}, nil
}

func (p *poller) add(fd int) error {
	p.mu.Lock()
	p.fds[fd] = struct{}{}
	p.mu.Unlock()
	return nil
}

func (p *poller) remove(fd int) {
	p.mu.Lock()
	delete(p.fds, fd)
	p.mu.Unlock()
}

func (p *poller) wait(timeout int) error {
	p.mu.Lock()
	pfds := make([]unix.PollFd, 0, len(p.fds))
	for fd := range p.fds {
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	p.mu.Unlock()
	for {
		_, err := unix.Poll(pfds, timeout)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return err
	}
}

func (p *poller) close() {
	p.mu.Lock()
	p.fds = map[int]struct{}{}
	p.mu.Unlock()
}
