package aida

import (
	"sync"
	"sync/atomic"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

// BaseConnection is the part of a connection an external event loop drives:
// poll NotifyFd for readability, check Pending and call Dispatch to process
// exactly one pending message.
type BaseConnection interface {
	Protocol() string
	ConnectionID() uint16
	HasPeer() bool
	NotifyFd() int
	Pending() bool
	Dispatch()
	RemoteOrigin() RemoteHandle
	Close() error

	exportOrbid(v anyValue) (uint64, error)
	importOrbid(orbid uint64) (Any, error)
}

var connectionCounter atomic.Uint32

func nextConnectionID() uint16 {
	for {
		id := uint16(connectionCounter.Add(1))
		if id != 0 {
			return id
		}
	}
}

// baseConnection carries what both connection sides share: identity, an
// inbox guarded by a mutex and the wakeup descriptor that mirrors whether the
// inbox is non-empty.
type baseConnection struct {
	protocol string
	id       uint16
	efd      *EventFd

	mu       sync.Mutex
	inbox    []*ProtoMsg
	closed   chan struct{}
	shutdown sync.Once
}

func (b *baseConnection) setup(protocol string) error {
	efd, err := NewEventFd()
	if err != nil {
		return orberrors.ConnectionFailure(protocol, err.Error())
	}
	b.protocol = protocol
	b.id = nextConnectionID()
	b.efd = efd
	b.closed = make(chan struct{})
	return nil
}

func (b *baseConnection) Protocol() string     { return b.protocol }
func (b *baseConnection) ConnectionID() uint16 { return b.id }
func (b *baseConnection) NotifyFd() int        { return b.efd.Fd() }

// Pending reports whether Dispatch has work.
func (b *baseConnection) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inbox) > 0
}

func (b *baseConnection) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

// enqueue appends msg to the inbox and wakes the loop; closed connections
// drop the message.
func (b *baseConnection) enqueue(msg *ProtoMsg) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isClosed() {
		return false
	}
	b.inbox = append(b.inbox, msg)
	if err := b.efd.Wakeup(); err != nil {
		warningf("%s: wakeup failed: %v", b.protocol, err)
	}
	return true
}

// pop removes the oldest message, clearing the wakeup once the inbox drains.
func (b *baseConnection) pop() *ProtoMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inbox) == 0 {
		b.efd.Clear()
		return nil
	}
	msg := b.inbox[0]
	b.inbox[0] = nil
	b.inbox = b.inbox[1:]
	if len(b.inbox) == 0 {
		b.efd.Clear()
	}
	return msg
}

// markClosed stops accepting messages and releases blocked callers. It
// returns the messages that were still queued.
func (b *baseConnection) markClosed() []*ProtoMsg {
	var dropped []*ProtoMsg
	b.shutdown.Do(func() {
		b.mu.Lock()
		close(b.closed)
		dropped, b.inbox = b.inbox, nil
		b.efd.Clear()
		b.mu.Unlock()
	})
	return dropped
}

func (b *baseConnection) releaseFd() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.efd != nil && b.efd.Fd() >= 0 {
		b.efd.Close()
	}
}

// stampIdentifier fills destination and sender into the first slot of msg.
func stampIdentifier(msg *ProtoMsg, destination, sender uint16) {
	p := ParseIdentifier(msg.FirstID())
	p.Destination, p.Sender = destination, sender
	msg.setFirstID(p.Uint64())
}
