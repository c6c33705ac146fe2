//go:build linux

package loop

import (
	"errors"

	"golang.org/x/sys/unix"
)

// poller waits on epoll(7) for readability of the registered descriptors.
type poller struct {
	epfd   int
	events []unix.EpollEvent
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &poller{epfd: fd, events: make([]unix.EpollEvent, 64)}, nil
}

func (p *poller) add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	if errors.Is(err, unix.EEXIST) {
		return nil
	}
	return err
}

func (p *poller) remove(fd int) {
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks up to timeout milliseconds, -1 meaning forever.
func (p *poller) wait(timeout int) error {
	for {
		_, err := unix.EpollWait(p.epfd, p.events, timeout)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return err
	}
}

func (p *poller) close() {
	if p.epfd >= 0 {
		_ = unix.Close(p.epfd)
		p.epfd = -1
	}
}
