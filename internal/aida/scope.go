package aida

import (
	"runtime"
	"sync"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

// ProtoScope makes a connection current for the calling thread until Close.
// Scopes nest; every scope must be closed on the thread that created it, in
// reverse creation order, typically with defer. Creating a scope locks the
// goroutine to its OS thread for the scope's lifetime.
//
// Call and emission scopes additionally own the outgoing message: fill
// Msg with arguments, then Invoke.
type ProtoScope struct {
	client *ClientConnection
	server *ServerConnection
	peer   *ClientConnection
	tid    int
	depth  int
	closed bool

	kind MessageId
	msg  *ProtoMsg
}

var (
	scopeMutex  sync.Mutex
	scopeStacks = map[int][]*ProtoScope{}
)

func pushScope(s *ProtoScope) *ProtoScope {
	runtime.LockOSThread()
	s.tid = threadID()
	scopeMutex.Lock()
	stack := append(scopeStacks[s.tid], s)
	scopeStacks[s.tid] = stack
	s.depth = len(stack)
	scopeMutex.Unlock()
	return s
}

// NewClientScope makes c the current client connection.
func NewClientScope(c *ClientConnection) *ProtoScope {
	return pushScope(&ProtoScope{client: c})
}

// NewServerScope makes s the current server connection.
func NewServerScope(s *ServerConnection) *ProtoScope {
	return pushScope(&ProtoScope{server: s})
}

func newDispatchScope(s *ServerConnection, peer *ClientConnection) *ProtoScope {
	return pushScope(&ProtoScope{server: s, peer: peer})
}

// Close pops the scope. Closing twice is a no-op.
func (s *ProtoScope) Close() {
	if s.closed {
		return
	}
	if err := s.pop(); err != nil {
		fatal(err)
	}
	s.closed = true
	s.msg = nil
	runtime.UnlockOSThread()
}

func (s *ProtoScope) pop() *orberrors.StandardError {
	tid := threadID()
	scopeMutex.Lock()
	defer scopeMutex.Unlock()
	stack := scopeStacks[tid]
	if tid != s.tid || len(stack) == 0 || stack[len(stack)-1] != s {
		return orberrors.ProtocolViolation("ProtoScope closed out of order or on a foreign thread",
			uint32(s.depth), uint32(len(stack)))
	}
	stack[len(stack)-1] = nil
	if stack = stack[:len(stack)-1]; len(stack) == 0 {
		delete(scopeStacks, tid)
	} else {
		scopeStacks[tid] = stack
	}
	return nil
}

// Depth returns the nesting level of s, 1 for the outermost scope.
func (s *ProtoScope) Depth() int { return s.depth }

// Msg returns the outgoing message of a call or emission scope.
func (s *ProtoScope) Msg() *ProtoMsg { return s.msg }

// Invoke sends the scope's message. Two-way calls block until the result
// arrives and return a reader positioned after the result header; all
// other kinds return nil.
func (s *ProtoScope) Invoke() *ProtoReader {
	msg := s.msg
	if msg == nil {
		fatal(orberrors.ProtocolViolation("Invoke without pending message", 0, 0))
	}
	s.msg = nil
	switch s.kind {
	case MSGID_CALL_TWOWAY, MSGID_CONNECT:
		r := NewProtoReader(s.client.CallRemote(msg))
		r.SkipHeader()
		return r
	case MSGID_CALL_ONEWAY:
		s.client.PostPeerMsg(msg)
	case MSGID_EMIT_ONEWAY, MSGID_EMIT_TWOWAY, MSGID_DISCONNECT:
		s.server.postTo(s.peer, msg)
	}
	return nil
}

// PostPeerMsg posts msg through the scope's connection: to the server for
// client scopes, to the addressed client for server scopes.
func (s *ProtoScope) PostPeerMsg(msg *ProtoMsg) {
	switch {
	case s.client != nil:
		s.client.PostPeerMsg(msg)
	case s.peer != nil:
		s.server.postTo(s.peer, msg)
	default:
		s.server.PostPeerMsg(msg)
	}
}

func callTarget(h RemoteHandle, operation string) *ClientConnection {
	if h.IsNull() {
		fatal(orberrors.NullHandle(operation))
	}
	c := h.Connection()
	if c == nil {
		fatal(orberrors.ConnectionClosed("<detached>", operation))
	}
	return c
}

func newCallScope(id MessageId, h RemoteHandle, hash TypeHash, nargs uint32) *ProtoScope {
	c := callTarget(h, id.String())
	msg := NewProtoMsg(3 + 1 + nargs)
	msg.AddHeader1(id, hash.Hi, hash.Lo)
	msg.AddOrbid(h.OrbID())
	return pushScope(&ProtoScope{client: c, kind: id, msg: msg})
}

// NewCall1WayScope prepares a one-way call of method hash on h with room for nargs arguments.
func NewCall1WayScope(h RemoteHandle, hash TypeHash, nargs uint32) *ProtoScope {
	return newCallScope(MSGID_CALL_ONEWAY, h, hash, nargs)
}

// NewCall2WayScope prepares a two-way call of method hash on h with room for nargs arguments.
func NewCall2WayScope(h RemoteHandle, hash TypeHash, nargs uint32) *ProtoScope {
	return newCallScope(MSGID_CALL_TWOWAY, h, hash, nargs)
}

// NewConnectScope prepares a signal (dis)connection request on h. A non-zero
// handlerID connects, otherwise disconnectID names the connection to remove.
func NewConnectScope(h RemoteHandle, hash TypeHash, handlerID, disconnectID uint64) *ProtoScope {
	s := newCallScope(MSGID_CONNECT, h, hash, 2)
	s.msg.AddInt64(int64(handlerID))
	s.msg.AddInt64(int64(disconnectID))
	return s
}

func newEmitScope(id MessageId, server *ServerConnection, peer *ClientConnection, hash TypeHash, nargs uint32) *ProtoScope {
	msg := NewProtoMsg(3 + nargs)
	msg.AddHeader1(id, hash.Hi, hash.Lo)
	return pushScope(&ProtoScope{server: server, peer: peer, kind: id, msg: msg})
}

// NewEmit1WayScope prepares a one-way emission to the handler handlerID of peer.
func NewEmit1WayScope(server *ServerConnection, peer *ClientConnection, hash TypeHash, handlerID uint64, nargs uint32) *ProtoScope {
	s := newEmitScope(MSGID_EMIT_ONEWAY, server, peer, hash, 1+nargs)
	s.msg.AddInt64(int64(handlerID))
	return s
}

// NewEmit2WayScope prepares a two-way emission; the result is delivered to
// the handler registered for emitID with EmitResultHandlerAdd.
func NewEmit2WayScope(server *ServerConnection, peer *ClientConnection, hash TypeHash, handlerID, emitID uint64, nargs uint32) *ProtoScope {
	s := newEmitScope(MSGID_EMIT_TWOWAY, server, peer, hash, 2+nargs)
	s.msg.AddInt64(int64(handlerID))
	s.msg.AddInt64(int64(emitID))
	return s
}

// NewDisconnectScope prepares the notification that handlerID of peer lost its signal.
func NewDisconnectScope(server *ServerConnection, peer *ClientConnection, hash TypeHash, handlerID uint64) *ProtoScope {
	s := newEmitScope(MSGID_DISCONNECT, server, peer, hash, 1)
	s.msg.AddInt64(int64(handlerID))
	return s
}

func currentStack() []*ProtoScope {
	tid := threadID()
	scopeMutex.Lock()
	defer scopeMutex.Unlock()
	return append([]*ProtoScope(nil), scopeStacks[tid]...)
}

// CurrentClientConnection returns the innermost client connection of the
// calling thread's scopes, nil outside of any.
func CurrentClientConnection() *ClientConnection {
	stack := currentStack()
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].client != nil {
			return stack[i].client
		}
	}
	return nil
}

// CurrentServerConnection returns the innermost server connection of the
// calling thread's scopes, nil outside of any.
func CurrentServerConnection() *ServerConnection {
	stack := currentStack()
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].server != nil {
			return stack[i].server
		}
	}
	return nil
}

// CurrentBaseConnection returns the connection of the innermost scope.
func CurrentBaseConnection() BaseConnection {
	stack := currentStack()
	if len(stack) == 0 {
		return nil
	}
	top := stack[len(stack)-1]
	if top.client != nil {
		return top.client
	}
	return top.server
}

// currentPeer returns the client whose message the innermost server scope handles.
func currentPeer() *ClientConnection {
	stack := currentStack()
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].server != nil {
			return stack[i].peer
		}
	}
	return nil
}

// ScopeDepth returns the number of open scopes on the calling thread.
func ScopeDepth() int { return len(currentStack()) }
