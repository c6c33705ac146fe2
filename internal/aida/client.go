package aida

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

// SignalEmitHandler receives a signal emission. r is positioned at the
// emission arguments; the returned value is sent back for two-way emissions.
// A nil reader tells the handler its connection went away.
type SignalEmitHandler func(r *ProtoReader, data interface{}) Any

type signalHandler struct {
	hash     TypeHash
	handle   RemoteHandle
	handler  SignalEmitHandler
	data     interface{}
	remoteID uint64
}

// ClientConnection issues calls to the objects of one ServerConnection.
type ClientConnection struct {
	baseConnection
	server  atomic.Pointer[ServerConnection]
	results chan *ProtoMsg
	callMu  sync.Mutex
	origin  RemoteHandle
	notify  atomic.Pointer[func()]

	proxyMu   sync.Mutex
	proxies   map[uint64]weak.Pointer[OrbObject]
	collected atomic.Uint64

	sigMu    sync.Mutex
	signals  map[uint64]*signalHandler
	sigCount uint64
}

// Connect attaches a client to the server bound at protocol and performs
// the META_HELLO handshake. The server's loop must be running.
func Connect(protocol string) (*ClientConnection, error) {
	s, err := lookupEndpoint(protocol)
	if err != nil {
		return nil, err
	}
	c := &ClientConnection{
		results: make(chan *ProtoMsg, 4),
		proxies: make(map[uint64]weak.Pointer[OrbObject]),
		signals: make(map[uint64]*signalHandler),
	}
	if err := c.setup(protocol); err != nil {
		return nil, err
	}
	c.server.Store(s)
	s.link(c)

	hello := NewProtoMsg(4)
	hello.AddHeader1(MSGID_META_HELLO, 0, 0)
	hello.AddString(CurrentOptions().ProtocolVersion)
	r := NewProtoReader(c.CallRemote(hello))
	r.SkipHeader()
	orbid := r.PopOrbid()
	code, reason := r.PopString(), r.PopString()
	if orbid == 0 {
		c.Close()
		if code == "" {
			code = orberrors.CodeConnectionFailure
		}
		return nil, orberrors.NewStandardError(orberrors.CategoryConnection, code, reason,
			map[string]interface{}{"protocol": protocol})
	}
	c.origin = c.handleFor(orbid)
	debugf("%s: client %d connected, origin 0x%016x", protocol, c.id, orbid)
	return c, nil
}

// RemoteOrigin returns the handle of the server's root object.
func (c *ClientConnection) RemoteOrigin() RemoteHandle { return c.origin }

// HasPeer reports whether the server is still attached.
func (c *ClientConnection) HasPeer() bool { return c.server.Load() != nil && !c.isClosed() }

// PeerConnection returns the server side, nil after Close.
func (c *ClientConnection) PeerConnection() *ServerConnection {
	if c.isClosed() {
		return nil
	}
	return c.server.Load()
}

// NotifyCallback registers fn to run whenever a non-result message arrives.
// fn runs on the sending goroutine and must not block.
func (c *ClientConnection) NotifyCallback(fn func()) {
	if fn == nil {
		c.notify.Store(nil)
		return
	}
	c.notify.Store(&fn)
}

// receive is called by the server side. Results bypass the inbox and go
// straight to the caller blocked in CallRemote.
func (c *ClientConnection) receive(msg *ProtoMsg) bool {
	if c.isClosed() {
		return false
	}
	if MsgIDIsResult(ParseIdentifier(msg.FirstID()).MessageID) {
		select {
		case c.results <- msg:
		default:
			warningf("%s: dropping unexpected result %s", c.protocol, msg.FirstIDString())
		}
		return true
	}
	if !c.enqueue(msg) {
		return false
	}
	if fn := c.notify.Load(); fn != nil {
		(*fn)()
	}
	return true
}

func (c *ClientConnection) postPeerMsg(msg *ProtoMsg) bool {
	s := c.server.Load()
	if s == nil || c.isClosed() {
		return false
	}
	stampIdentifier(msg, s.id, c.id)
	return s.enqueue(msg)
}

// PostPeerMsg sends a message that expects no result.
func (c *ClientConnection) PostPeerMsg(msg *ProtoMsg) {
	if !c.postPeerMsg(msg) {
		warningf("%s: dropping %s on closed connection", c.protocol, msg.FirstIDString())
	}
}

// CallRemote sends a two-way message and blocks until its result arrives.
// Calls on one connection are serialised. Closing either side while a call
// is outstanding makes the call panic with CONNECTION_CLOSED.
func (c *ClientConnection) CallRemote(pm *ProtoMsg) *ProtoMsg {
	want := ParseIdentifier(pm.FirstID()).MessageID | MSGID_CONNECT_RESULT
	hash := headerHash(pm)
	c.callMu.Lock()
	defer c.callMu.Unlock()
	if !c.postPeerMsg(pm) {
		fatal(orberrors.ConnectionClosed(c.protocol, "CallRemote"))
	}
	select {
	case rb := <-c.results:
		if got := ParseIdentifier(rb.FirstID()).MessageID; got != want || headerHash(rb) != hash {
			fatal(orberrors.ProtocolViolation("mismatched result "+rb.FirstIDString()+" for "+want.String(), 0, rb.Size()))
		}
		return rb
	case <-c.closed:
		warningf("%s: connection closed during two-way call %s", c.protocol, want)
		fatal(orberrors.ConnectionClosed(c.protocol, "CallRemote"))
	}
	return nil
}

// Dispatch processes one pending signal or garbage message.
func (c *ClientConnection) Dispatch() {
	msg := c.pop()
	if msg == nil {
		return
	}
	scope := NewClientScope(c)
	defer scope.Close()
	debugf("%s: dispatch %s", c.protocol, msg.FirstIDString())
	r := NewProtoReader(msg)
	switch id := ParseIdentifier(msg.FirstID()); id.MessageID {
	case MSGID_EMIT_ONEWAY:
		_, hash := r.PopHeader()
		c.emit(hash, r.PopUint64(), r)
	case MSGID_EMIT_TWOWAY:
		_, hash := r.PopHeader()
		handlerID, emitID := r.PopUint64(), r.PopUint64()
		v, ok := c.emit(hash, handlerID, r)
		rb := RenewIntoResult(r, MSGID_EMIT_RESULT, hash.Hi, hash.Lo, 2)
		rb.AddInt64(int64(emitID))
		if ok {
			rb.AddAny(v, c)
		}
		c.PostPeerMsg(rb)
	case MSGID_DISCONNECT:
		r.SkipHeader()
		handlerID := r.PopUint64()
		c.sigMu.Lock()
		h := c.signals[handlerID]
		delete(c.signals, handlerID)
		c.sigMu.Unlock()
		if h != nil {
			h.handler(nil, h.data)
		}
	case MSGID_META_GARBAGE_SWEEP:
		c.garbageSweep(r)
	default:
		warningf("%s: ignoring unexpected message %s", c.protocol, msg.FirstIDString())
	}
}

func (c *ClientConnection) emit(hash TypeHash, handlerID uint64, r *ProtoReader) (Any, bool) {
	c.sigMu.Lock()
	h := c.signals[handlerID]
	c.sigMu.Unlock()
	if h == nil || h.hash != hash {
		warningf("%s: emission %s for unknown signal handler %d", c.protocol, hash, handlerID)
		return Any{}, false
	}
	return h.handler(r, h.data), true
}

// SignalConnect registers handler for the signal hash of the object h and
// returns the local handler id, 0 if the server refused the connection.
func (c *ClientConnection) SignalConnect(hash TypeHash, h RemoteHandle, handler SignalEmitHandler, data interface{}) uint64 {
	c.sigMu.Lock()
	c.sigCount++
	id := c.sigCount
	sh := &signalHandler{hash: hash, handle: h, handler: handler, data: data}
	c.signals[id] = sh
	c.sigMu.Unlock()

	scope := NewConnectScope(h, hash, id, 0)
	defer scope.Close()
	remoteID := scope.Invoke().PopUint64()
	c.sigMu.Lock()
	defer c.sigMu.Unlock()
	if remoteID == 0 {
		delete(c.signals, id)
		return 0
	}
	sh.remoteID = remoteID
	return id
}

// SignalDisconnect removes a handler added by SignalConnect.
func (c *ClientConnection) SignalDisconnect(id uint64) bool {
	c.sigMu.Lock()
	sh := c.signals[id]
	delete(c.signals, id)
	c.sigMu.Unlock()
	if sh == nil {
		warningf("%s: SignalDisconnect: unknown handler id %d", c.protocol, id)
		return false
	}
	scope := NewConnectScope(sh.handle, sh.hash, 0, sh.remoteID)
	defer scope.Close()
	return scope.Invoke().PopUint64() != 0
}

// SignalHandlers returns the number of registered signal handlers.
func (c *ClientConnection) SignalHandlers() int {
	c.sigMu.Lock()
	defer c.sigMu.Unlock()
	return len(c.signals)
}

// handleFor returns the proxy for orbid, sharing the OrbObject with live handles.
func (c *ClientConnection) handleFor(orbid uint64) RemoteHandle {
	if orbid == 0 {
		return NullHandle()
	}
	c.proxyMu.Lock()
	defer c.proxyMu.Unlock()
	if wp, ok := c.proxies[orbid]; ok {
		if o := wp.Value(); o != nil {
			return RemoteHandle{obj: o}
		}
	}
	o := newOrbObject(orbid, c)
	c.proxies[orbid] = weak.Make(o)
	runtime.AddCleanup(o, c.proxyCollected, orbid)
	return RemoteHandle{obj: o}
}

// AddHandle appends h as TRANSITION slot; h must belong to c or be null.
func (c *ClientConnection) AddHandle(pm *ProtoMsg, h RemoteHandle) {
	orbid, err := c.exportOrbid(remoteValue{v: h})
	if err != nil {
		fatal(asStandardError(err))
	}
	pm.AddOrbid(orbid)
}

// PopHandle resolves a TRANSITION slot to a proxy.
func (c *ClientConnection) PopHandle(r *ProtoReader) RemoteHandle {
	return c.handleFor(r.PopOrbid())
}

func (c *ClientConnection) exportOrbid(v anyValue) (uint64, error) {
	switch x := v.(type) {
	case remoteValue:
		if x.v.IsNull() {
			return 0, nil
		}
		if x.v.Connection() != c {
			return 0, orberrors.ProtocolViolation("handle belongs to a different connection", 0, 0)
		}
		return x.v.OrbID(), nil
	case instanceValue:
		if x.v == nil {
			return 0, nil
		}
		return 0, orberrors.ProtocolViolation("client connection cannot export local instances", 0, 0)
	}
	return 0, orberrors.KindMismatch("exportOrbid", REMOTE, v.kind())
}

func (c *ClientConnection) importOrbid(orbid uint64) (Any, error) {
	var a Any
	a.SetHandle(c.handleFor(orbid))
	return a, nil
}

// serverGone is called when the server closes underneath c.
func (c *ClientConnection) serverGone() {
	c.markClosed()
	c.detachProxies()
}

func (c *ClientConnection) detachProxies() {
	c.proxyMu.Lock()
	defer c.proxyMu.Unlock()
	for _, wp := range c.proxies {
		if o := wp.Value(); o != nil {
			o.detach()
		}
	}
}

// Close detaches c from its server. Handles of c become detached; signal
// handlers receive a final nil reader.
func (c *ClientConnection) Close() error {
	if dropped := c.markClosed(); len(dropped) > 0 {
		warningf("%s: client %d closed with %d pending messages", c.protocol, c.id, len(dropped))
	}
	if s := c.server.Load(); s != nil {
		s.unlink(c)
	}
	c.detachProxies()
	c.sigMu.Lock()
	handlers := c.signals
	c.signals = make(map[uint64]*signalHandler)
	c.sigMu.Unlock()
	for _, h := range handlers {
		h.handler(nil, h.data)
	}
	c.releaseFd()
	return nil
}
