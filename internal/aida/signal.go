package aida

import "sync"

type signalConnection struct {
	server    *ServerConnection
	client    *ClientConnection
	handlerID uint64
}

// Signal is the server side of an event source. Clients connect handlers
// through a CONNECT message; Emit sends an emission to every connected
// handler.
type Signal struct {
	hash  TypeHash
	mu    sync.Mutex
	next  uint64
	conns map[uint64]signalConnection
}

// NewSignal creates a signal identified by the sigcon hash.
func NewSignal(hash TypeHash) *Signal {
	return &Signal{hash: hash, conns: make(map[uint64]signalConnection)}
}

func (s *Signal) Hash() TypeHash { return s.hash }

// Connect adds the client handler handlerID reachable through client and
// returns the connection id.
func (s *Signal) Connect(server *ServerConnection, client *ClientConnection, handlerID uint64) uint64 {
	if client == nil || handlerID == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.conns[s.next] = signalConnection{server: server, client: client, handlerID: handlerID}
	return s.next
}

// Disconnect removes the connection id.
func (s *Signal) Disconnect(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[id]; !ok {
		return false
	}
	delete(s.conns, id)
	return true
}

// Connections returns the number of connected handlers.
func (s *Signal) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// snapshot returns the live connections, forgetting those of closed clients.
func (s *Signal) snapshot() []signalConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]signalConnection, 0, len(s.conns))
	for id, sc := range s.conns {
		if sc.client.isClosed() {
			delete(s.conns, id)
			continue
		}
		out = append(out, sc)
	}
	return out
}

// Emit sends a one-way emission with nargs arguments written by fill to
// every connected handler.
func (s *Signal) Emit(nargs uint32, fill func(pm *ProtoMsg, conn *ServerConnection)) {
	for _, sc := range s.snapshot() {
		send(NewEmit1WayScope(sc.server, sc.client, s.hash, sc.handlerID, nargs), sc.server, fill)
	}
}

// EmitTwoway is Emit for two-way emissions; onResult receives each handler's
// result reader, positioned at the returned value. The reader holds no value
// if the client no longer knew the handler.
func (s *Signal) EmitTwoway(nargs uint32, fill func(pm *ProtoMsg, conn *ServerConnection), onResult func(r *ProtoReader)) {
	for _, sc := range s.snapshot() {
		emitID := sc.server.nextEmitID()
		if onResult != nil {
			sc.server.EmitResultHandlerAdd(emitID, onResult)
		}
		send(NewEmit2WayScope(sc.server, sc.client, s.hash, sc.handlerID, emitID, nargs), sc.server, fill)
	}
}

// Destroy notifies every connected handler that the signal is gone.
func (s *Signal) Destroy() {
	conns := s.snapshot()
	s.mu.Lock()
	s.conns = make(map[uint64]signalConnection)
	s.mu.Unlock()
	for _, sc := range conns {
		send(NewDisconnectScope(sc.server, sc.client, s.hash, sc.handlerID), sc.server, nil)
	}
}

func send(scope *ProtoScope, conn *ServerConnection, fill func(pm *ProtoMsg, conn *ServerConnection)) {
	defer scope.Close()
	if fill != nil {
		fill(scope.Msg(), conn)
	}
	scope.Invoke()
}

// SignalConnectDispatcher returns the dispatcher for the sigcon hash of a
// signal; lookup selects the Signal of the called instance.
func SignalConnectDispatcher(hash TypeHash, lookup func(self ImplicitBase) *Signal) DispatchFunc {
	return func(r *ProtoReader) *ProtoMsg {
		conn, self := DispatchSelf(r)
		handlerID, disconnectID := r.PopUint64(), r.PopUint64()
		var result uint64
		if sig := lookup(self); sig != nil {
			if handlerID != 0 {
				result = sig.Connect(conn, currentPeer(), handlerID)
			} else if sig.Disconnect(disconnectID) {
				result = 1
			}
		} else {
			warningf("%s: %s has no signal %s", conn.protocol, self.AidaTypeName(), hash)
		}
		rb := RenewIntoResult(r, MSGID_CONNECT_RESULT, hash.Hi, hash.Lo, 1)
		rb.AddInt64(int64(result))
		return rb
	}
}
