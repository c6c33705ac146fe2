// Package loop provides a single-threaded main loop that drives event
// sources through prepare, check and dispatch phases.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/orizon-lang/aida/internal/aida"
)

// Source is one unit of work the loop polls. Fd returns a descriptor to poll
// for readability or -1. Prepare and Check report whether Dispatch has work;
// Prepare runs before polling, Check after. Dispatch returns false to remove
// the source.
type Source interface {
	Fd() int
	Prepare() bool
	Check() bool
	Dispatch() bool
}

type entry struct {
	id  uint
	src Source
	fd  int
}

// MainLoop runs sources on the goroutine that calls Run. Add, Remove,
// ExecNow and Quit may be called from any goroutine.
type MainLoop struct {
	mu      sync.Mutex
	sources []*entry
	nextID  uint
	execs   []func()
	wake    *aida.EventFd
	poller  *poller
	quit    atomic.Bool
	running atomic.Bool
}

// ErrRunning is returned when Run is entered twice.
var ErrRunning = errors.New("loop: already running")

// New creates a loop with its wakeup descriptor registered.
func New() (*MainLoop, error) {
	wake, err := aida.NewEventFd()
	if err != nil {
		return nil, err
	}
	p, err := newPoller()
	if err != nil {
		wake.Close()
		return nil, err
	}
	if err := p.add(wake.Fd()); err != nil {
		p.close()
		wake.Close()
		return nil, err
	}
	return &MainLoop{wake: wake, poller: p}, nil
}

// Add registers src and returns its id.
func (l *MainLoop) Add(src Source) (uint, error) {
	fd := src.Fd()
	if fd >= 0 {
		if err := l.poller.add(fd); err != nil {
			return 0, err
		}
	}
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.sources = append(l.sources, &entry{id: id, src: src, fd: fd})
	l.mu.Unlock()
	l.wakeup()
	return id, nil
}

// Remove unregisters the source id.
func (l *MainLoop) Remove(id uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.sources {
		if e.id == id {
			if e.fd >= 0 {
				l.poller.remove(e.fd)
			}
			l.sources = append(l.sources[:i], l.sources[i+1:]...)
			return true
		}
	}
	return false
}

// Sources returns the number of registered sources.
func (l *MainLoop) Sources() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sources)
}

// ExecNow queues fn to run on the loop goroutine during the next iteration.
func (l *MainLoop) ExecNow(fn func()) {
	l.mu.Lock()
	l.execs = append(l.execs, fn)
	l.mu.Unlock()
	l.wakeup()
}

// Quit makes Run return after the current iteration.
func (l *MainLoop) Quit() {
	l.quit.Store(true)
	l.wakeup()
}

// wakeup interrupts a blocking wait; errors after Close are ignored.
func (l *MainLoop) wakeup() { _ = l.wake.Wakeup() }

// Run iterates until Quit is called or ctx is done.
func (l *MainLoop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)
	stop := context.AfterFunc(ctx, l.Quit)
	defer stop()
	for !l.quit.Load() {
		if err := l.Iterate(true); err != nil {
			return err
		}
	}
	l.quit.Store(false)
	return ctx.Err()
}

// Iterate runs one prepare, poll, check and dispatch cycle. With block set
// it waits for a descriptor to become readable when no source is ready.
func (l *MainLoop) Iterate(block bool) error {
	l.mu.Lock()
	execs := l.execs
	l.execs = nil
	sources := append([]*entry(nil), l.sources...)
	l.mu.Unlock()
	for _, fn := range execs {
		fn()
	}

	timeout := 0
	if block && len(execs) == 0 && !l.quit.Load() {
		timeout = -1
		for _, e := range sources {
			if e.src.Prepare() {
				timeout = 0
				break
			}
		}
	}
	if err := l.poller.wait(timeout); err != nil {
		return err
	}
	l.wake.Clear()

	for _, e := range sources {
		if !e.src.Check() {
			continue
		}
		if !e.src.Dispatch() {
			l.Remove(e.id)
		}
	}
	return nil
}

// Close releases the loop's descriptors. Sources are not closed.
func (l *MainLoop) Close() error {
	l.mu.Lock()
	l.sources = nil
	l.mu.Unlock()
	l.poller.close()
	return l.wake.Close()
}

// ConnectionSource drives an aida connection from a MainLoop.
type ConnectionSource struct {
	Conn aida.BaseConnection
}

func (s ConnectionSource) Fd() int        { return s.Conn.NotifyFd() }
func (s ConnectionSource) Prepare() bool  { return s.Conn.Pending() }
func (s ConnectionSource) Check() bool    { return s.Conn.Pending() }
func (s ConnectionSource) Dispatch() bool { s.Conn.Dispatch(); return true }
