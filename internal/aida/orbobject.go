package aida

import (
	"fmt"
	"sync/atomic"
)

// OrbObjectMake composes an orbid from the serving connection id, the
// per-connection type index and an instance counter.
func OrbObjectMake(conn, typeIndex uint16, counter uint32) uint64 {
	return uint64(conn)<<48 | uint64(typeIndex)<<32 | uint64(counter)
}

// OrbIDParts is the inverse of OrbObjectMake.
func OrbIDParts(orbid uint64) (conn, typeIndex uint16, counter uint32) {
	return uint16(orbid >> 48), uint16(orbid >> 32), uint32(orbid)
}

// OrbObject is the client side identity of an object served by a remote
// connection. Proxies for the same orbid on one connection share an OrbObject.
type OrbObject struct {
	orbid uint64
	conn  atomic.Pointer[ClientConnection]
}

func newOrbObject(orbid uint64, conn *ClientConnection) *OrbObject {
	o := &OrbObject{orbid: orbid}
	o.conn.Store(conn)
	return o
}

func (o *OrbObject) OrbID() uint64 { return o.orbid }

// ClientConnection returns the connection the object is reachable through,
// nil once detached.
func (o *OrbObject) ClientConnection() *ClientConnection { return o.conn.Load() }

func (o *OrbObject) detach() { o.conn.Store(nil) }

func (o *OrbObject) String() string { return fmt.Sprintf("OrbObject(0x%016x)", o.orbid) }

// nullOrbObject backs every null handle so they all compare equal.
var nullOrbObject = &OrbObject{}

// RemoteHandle is the client proxy value for a remote object. The zero
// value is the null handle.
type RemoteHandle struct {
	obj *OrbObject
}

// NullHandle returns the canonical null handle.
func NullHandle() RemoteHandle { return RemoteHandle{obj: nullOrbObject} }

func (h RemoteHandle) object() *OrbObject {
	if h.obj == nil {
		return nullOrbObject
	}
	return h.obj
}

func (h RemoteHandle) OrbID() uint64         { return h.object().orbid }
func (h RemoteHandle) IsNull() bool          { return h.object().orbid == 0 }
func (h RemoteHandle) OrbObject() *OrbObject { return h.object() }

// Handle returns h; typed handles embedding RemoteHandle inherit it so Any.Set
// stores them as REMOTE values.
func (h RemoteHandle) Handle() RemoteHandle { return h }

// Connection returns the client connection of the object, nil for null or
// detached handles.
func (h RemoteHandle) Connection() *ClientConnection { return h.object().ClientConnection() }

// Equal reports whether both handles reference the same remote object.
func (h RemoteHandle) Equal(o RemoteHandle) bool {
	a, b := h.object(), o.object()
	if a == b {
		return true
	}
	return a.orbid == b.orbid && a.ClientConnection() == b.ClientConnection()
}

// UpgradeFrom makes h reference the object of other. Typed handles use it
// after a successful DownCast.
func (h *RemoteHandle) UpgradeFrom(other RemoteHandle) { h.obj = other.object() }

func (h RemoteHandle) String() string {
	if h.IsNull() {
		return "RemoteHandle(null)"
	}
	return fmt.Sprintf("RemoteHandle(0x%016x)", h.OrbID())
}

// DownCast returns h if the remote object implements target according to its
// type list, and the null handle and false otherwise.
func DownCast(h RemoteHandle, target TypeHash) (RemoteHandle, bool) {
	if h.IsNull() || h.Connection() == nil {
		return NullHandle(), false
	}
	if !h.TypeList().Contains(target) {
		return NullHandle(), false
	}
	return h, true
}

// TypeList fetches the type hashes implemented by the remote object.
func (h RemoteHandle) TypeList() TypeHashList {
	scope := NewCall2WayScope(h, HashTypeList, 0)
	defer scope.Close()
	r := scope.Invoke()
	seq := NewProtoReader(r.PopSeq())
	list := make(TypeHashList, 0, seq.NTypes()/2)
	for seq.Remaining() >= 2 {
		list = append(list, seq.PopTypeHash())
	}
	return list
}

// AuxData fetches the "key=value" annotations of the remote object.
func (h RemoteHandle) AuxData() []string {
	scope := NewCall2WayScope(h, HashAuxData, 0)
	defer scope.Close()
	return scope.Invoke().PopStrings()
}

// Dir fetches the property names of the remote object.
func (h RemoteHandle) Dir() []string {
	scope := NewCall2WayScope(h, HashDir, 0)
	defer scope.Close()
	return scope.Invoke().PopStrings()
}

// GetProperty reads a property by name; unknown names yield an empty Any.
func (h RemoteHandle) GetProperty(name string) Any {
	scope := NewCall2WayScope(h, HashGet, 1)
	defer scope.Close()
	scope.Msg().AddString(name)
	return scope.Invoke().PopAny(h.Connection())
}

// SetProperty assigns a property by name and reports whether it was accepted.
func (h RemoteHandle) SetProperty(name string, v Any) bool {
	scope := NewCall2WayScope(h, HashSet, 2)
	defer scope.Close()
	scope.Msg().AddString(name)
	scope.Msg().AddAny(v, h.Connection())
	return scope.Invoke().PopBool()
}

// ImplicitBase is implemented by every object that can be served through a
// ServerConnection. The introspection methods back the built-in
// typelist/aux_data/dir/get/set dispatchers.
type ImplicitBase interface {
	AidaTypeName() string
	AidaTypeList() TypeHashList
	AidaAuxData() []string
	AidaDir() []string
	AidaGet(name string) Any
	AidaSet(name string, v Any) bool
}

type handleHolder interface {
	Handle() RemoteHandle
}
