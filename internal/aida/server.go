package aida

import (
	"math"
	"reflect"
	"sync"
	"sync/atomic"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

// ServerConnection serves a root ImplicitBase and every instance exported
// through it to the clients connected at its address.
type ServerConnection struct {
	baseConnection
	root      ImplicitBase
	rootOrbid uint64

	objMu      sync.Mutex
	typeIndex  map[string]uint16
	counter    uint32
	byOrbid    map[uint64]ImplicitBase
	byInstance map[ImplicitBase]uint64
	exports    map[uint16]map[uint64]uint64 // client id -> orbid -> export epoch
	epoch      uint64

	peerMu sync.RWMutex
	peers  map[uint16]*ClientConnection

	emitMu       sync.Mutex
	emitHandlers map[uint64]func(*ProtoReader)
	emitCounter  atomic.Uint64
}

// Bind serves root at protocol, e.g. "inproc://name". The returned connection
// must be driven by an event loop before clients can Connect.
func Bind(protocol string, root ImplicitBase) (*ServerConnection, error) {
	if isNilInstance(root) {
		return nil, orberrors.ConnectionFailure(protocol, "nil root object")
	}
	if !reflect.TypeOf(root).Comparable() {
		return nil, orberrors.ConnectionFailure(protocol, "root type "+reflect.TypeOf(root).String()+" is not comparable")
	}
	if err := validateProtocol(protocol); err != nil {
		return nil, err
	}
	s := &ServerConnection{
		root:         root,
		typeIndex:    make(map[string]uint16),
		byOrbid:      make(map[uint64]ImplicitBase),
		byInstance:   make(map[ImplicitBase]uint64),
		exports:      make(map[uint16]map[uint64]uint64),
		peers:        make(map[uint16]*ClientConnection),
		emitHandlers: make(map[uint64]func(*ProtoReader)),
	}
	if err := s.setup(protocol); err != nil {
		return nil, err
	}
	if err := registerEndpoint(protocol, s); err != nil {
		s.releaseFd()
		return nil, err
	}
	s.rootOrbid = s.exportInstance(root)
	debugf("%s: bound %s as 0x%016x", protocol, root.AidaTypeName(), s.rootOrbid)
	return s, nil
}

// Root returns the bound root instance.
func (s *ServerConnection) Root() ImplicitBase { return s.root }

// RemoteOrigin is always null for servers.
func (s *ServerConnection) RemoteOrigin() RemoteHandle { return NullHandle() }

// HasPeer reports whether any client is connected.
func (s *ServerConnection) HasPeer() bool {
	s.peerMu.RLock()
	defer s.peerMu.RUnlock()
	return len(s.peers) > 0
}

func (s *ServerConnection) link(c *ClientConnection) {
	s.peerMu.Lock()
	s.peers[c.id] = c
	s.peerMu.Unlock()
}

func (s *ServerConnection) unlink(c *ClientConnection) {
	s.peerMu.Lock()
	delete(s.peers, c.id)
	s.peerMu.Unlock()
	s.forgetExports(c.id)
}

func (s *ServerConnection) peer(id uint16) *ClientConnection {
	s.peerMu.RLock()
	defer s.peerMu.RUnlock()
	return s.peers[id]
}

func (s *ServerConnection) peerList() []*ClientConnection {
	s.peerMu.RLock()
	defer s.peerMu.RUnlock()
	out := make([]*ClientConnection, 0, len(s.peers))
	for _, c := range s.peers {
		out = append(out, c)
	}
	return out
}

// exportInstance returns the orbid of ibase, assigning one on first export.
// Nil instances, typed nil pointers included, map to orbid 0. Instances are
// keyed by identity, so their dynamic type must be comparable.
func (s *ServerConnection) exportInstance(ibase ImplicitBase) uint64 {
	if isNilInstance(ibase) {
		return 0
	}
	if !reflect.TypeOf(ibase).Comparable() {
		fatal(orberrors.KindMismatch("exportInstance", INSTANCE, LOCAL))
	}
	s.objMu.Lock()
	defer s.objMu.Unlock()
	if orbid, ok := s.byInstance[ibase]; ok {
		return orbid
	}
	name := ibase.AidaTypeName()
	ti, ok := s.typeIndex[name]
	if !ok {
		if len(s.typeIndex) >= math.MaxUint16 {
			fatal(orberrors.OrbidExhausted(s.protocol, "type index", math.MaxUint16))
		}
		ti = uint16(len(s.typeIndex) + 1)
		s.typeIndex[name] = ti
	}
	if s.counter == math.MaxUint32 {
		fatal(orberrors.OrbidExhausted(s.protocol, "counter", math.MaxUint32))
	}
	s.counter++
	orbid := OrbObjectMake(s.id, ti, s.counter)
	s.byOrbid[orbid] = ibase
	s.byInstance[ibase] = orbid
	return orbid
}

// Instance returns the served instance for orbid.
func (s *ServerConnection) Instance(orbid uint64) (ImplicitBase, bool) {
	s.objMu.Lock()
	defer s.objMu.Unlock()
	ibase, ok := s.byOrbid[orbid]
	return ibase, ok
}

// Instances returns the number of exported instances, the root included.
func (s *ServerConnection) Instances() int {
	s.objMu.Lock()
	defer s.objMu.Unlock()
	return len(s.byOrbid)
}

// AddInterface appends ibase as TRANSITION slot.
func (s *ServerConnection) AddInterface(pm *ProtoMsg, ibase ImplicitBase) {
	pm.AddOrbid(s.exportInstance(ibase))
}

// PopInterface resolves a TRANSITION slot to a served instance, nil if unknown.
func (s *ServerConnection) PopInterface(r *ProtoReader) ImplicitBase {
	orbid := r.PopOrbid()
	if orbid == 0 {
		return nil
	}
	ibase, ok := s.Instance(orbid)
	if !ok {
		warningf("%s: unknown orbid 0x%016x", s.protocol, orbid)
		return nil
	}
	return ibase
}

func (s *ServerConnection) exportOrbid(v anyValue) (uint64, error) {
	switch x := v.(type) {
	case instanceValue:
		return s.exportInstance(x.v), nil
	case remoteValue:
		if x.v.IsNull() {
			return 0, nil
		}
		return 0, orberrors.ProtocolViolation("server connection cannot forward remote handles", 0, 0)
	}
	return 0, orberrors.KindMismatch("exportOrbid", INSTANCE, v.kind())
}

func (s *ServerConnection) importOrbid(orbid uint64) (Any, error) {
	var a Any
	if orbid == 0 {
		a.SetInstance(nil)
		return a, nil
	}
	ibase, ok := s.Instance(orbid)
	if !ok {
		return a, orberrors.NullHandle("import of unknown orbid")
	}
	a.SetInstance(ibase)
	return a, nil
}

// EmitResultHandlerAdd registers fn to receive the EMIT_RESULT carrying id.
func (s *ServerConnection) EmitResultHandlerAdd(id uint64, fn func(*ProtoReader)) {
	s.emitMu.Lock()
	s.emitHandlers[id] = fn
	s.emitMu.Unlock()
}

func (s *ServerConnection) nextEmitID() uint64 { return s.emitCounter.Add(1) }

func (s *ServerConnection) popEmitHandler(id uint64) func(*ProtoReader) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	fn := s.emitHandlers[id]
	delete(s.emitHandlers, id)
	return fn
}

// postTo sends msg to the client c.
func (s *ServerConnection) postTo(c *ClientConnection, msg *ProtoMsg) bool {
	if c == nil {
		warningf("%s: dropping %s without receiver", s.protocol, msg.FirstIDString())
		return false
	}
	stampIdentifier(msg, c.id, s.id)
	s.noteExports(c.id, msg)
	if !c.receive(msg) {
		warningf("%s: dropping %s for closed client %d", s.protocol, msg.FirstIDString(), c.id)
		return false
	}
	return true
}

// PostPeerMsg sends msg to the client named by the destination of its first slot.
func (s *ServerConnection) PostPeerMsg(msg *ProtoMsg) {
	p := ParseIdentifier(msg.FirstID())
	s.postTo(s.peer(p.Destination), msg)
}

// Dispatch processes one pending message.
func (s *ServerConnection) Dispatch() {
	msg := s.pop()
	if msg == nil {
		return
	}
	id := ParseIdentifier(msg.FirstID())
	sender := s.peer(id.Sender)
	scope := newDispatchScope(s, sender)
	defer scope.Close()
	debugf("%s: dispatch %s", s.protocol, msg.FirstIDString())
	r := NewProtoReader(msg)
	switch id.MessageID {
	case MSGID_META_HELLO:
		s.welcome(sender, r)
	case MSGID_CALL_ONEWAY, MSGID_CALL_TWOWAY, MSGID_CONNECT:
		hash := headerHash(msg)
		fn := FindMethod(hash.Hi, hash.Lo)
		if fn == nil {
			fatal(orberrors.MethodNotFound(hash.Hi, hash.Lo))
		}
		rb := fn(r)
		if id.MessageID == MSGID_CALL_ONEWAY {
			if rb != nil {
				warningf("%s: one-way method %s produced a result", s.protocol, hash)
			}
			return
		}
		if rb == nil {
			fatal(orberrors.ProtocolViolation("two-way method returned no result", 0, msg.Size()))
		}
		s.postTo(sender, rb)
	case MSGID_EMIT_RESULT:
		r.SkipHeader()
		emitID := r.PopUint64()
		if fn := s.popEmitHandler(emitID); fn != nil {
			fn(r)
		} else {
			warningf("%s: EMIT_RESULT for unknown emission %d", s.protocol, emitID)
		}
	case MSGID_META_GARBAGE_REPORT:
		s.garbageReport(sender, r)
	case MSGID_META_SEEN_GARBAGE:
		if sender != nil {
			s.sweep(sender)
		}
	default:
		warningf("%s: ignoring unexpected message %s", s.protocol, msg.FirstIDString())
	}
}

func (s *ServerConnection) welcome(sender *ClientConnection, r *ProtoReader) {
	r.SkipHeader()
	version := r.PopString()
	rb := RenewIntoResult(r, MSGID_META_WELCOME, 0, 0, 3)
	if err := checkProtocolVersion(version); err != nil {
		se := asStandardError(err)
		warningf("%s: refusing client: %s", s.protocol, se.Message)
		rb.AddOrbid(0)
		rb.AddString(se.Code)
		rb.AddString(se.Message)
	} else {
		rb.AddOrbid(s.rootOrbid)
		rb.AddString("")
		rb.AddString("")
	}
	s.postTo(sender, rb)
}

func headerHash(msg *ProtoMsg) TypeHash {
	r := NewProtoReader(msg)
	r.Skip()
	return r.PopTypeHash()
}

// Close unbinds the address and closes all connected clients. Calls blocked
// in CallRemote on those clients fail with CONNECTION_CLOSED.
func (s *ServerConnection) Close() error {
	unregisterEndpoint(s.protocol, s)
	if dropped := s.markClosed(); len(dropped) > 0 {
		warningf("%s: closed with %d pending messages", s.protocol, len(dropped))
	}
	for _, c := range s.peerList() {
		c.serverGone()
		s.unlink(c)
	}
	s.releaseFd()
	return nil
}
