package aida

import (
	"reflect"
	"sync"
	"sync/atomic"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

// DispatchFunc handles one CALL or CONNECT message. The reader is positioned
// at the header; the current server connection is available through
// CurrentServerConnection. Two-way handlers return the result message,
// one-way handlers return nil.
type DispatchFunc func(r *ProtoReader) *ProtoMsg

// MethodEntry binds a method, signal connection or introspection hash to its dispatcher.
type MethodEntry struct {
	Hash     TypeHash
	Dispatch DispatchFunc
}

// MethodRegistry maps TypeHashes to dispatchers. Entries are added during
// process initialization; the first lookup freezes the table, after which
// it is read without locking.
type MethodRegistry struct {
	mu      sync.Mutex
	frozen  atomic.Bool
	methods map[TypeHash]DispatchFunc
}

// NewMethodRegistry creates an empty, unfrozen registry.
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{methods: make(map[TypeHash]DispatchFunc)}
}

// Register adds entries. Registration after the first lookup, or a second
// registration of a hash with a different function, panics.
func (m *MethodRegistry) Register(entries []MethodEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if m.frozen.Load() {
			fatal(orberrors.RegistryFrozen(e.Hash.Hi, e.Hash.Lo))
		}
		if old, ok := m.methods[e.Hash]; ok {
			if reflect.ValueOf(old).Pointer() != reflect.ValueOf(e.Dispatch).Pointer() {
				fatal(orberrors.DuplicateMethod(e.Hash.Hi, e.Hash.Lo))
			}
			continue
		}
		m.methods[e.Hash] = e.Dispatch
	}
}

// Find returns the dispatcher for (hi, lo) or nil.
func (m *MethodRegistry) Find(hi, lo uint64) DispatchFunc {
	if !m.frozen.Load() {
		m.mu.Lock()
		m.frozen.Store(true)
		m.mu.Unlock()
	}
	return m.methods[TypeHash{Hi: hi, Lo: lo}]
}

// Len returns the number of registered hashes.
func (m *MethodRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.methods)
}

var methodRegistry = NewMethodRegistry()

// RegisterMethods adds entries to the process-wide registry; generated
// stubs call it from init.
func RegisterMethods(entries []MethodEntry) { methodRegistry.Register(entries) }

// FindMethod looks up the process-wide registry.
func FindMethod(hi, lo uint64) DispatchFunc { return methodRegistry.Find(hi, lo) }

// RegisteredMethods returns the size of the process-wide registry.
func RegisteredMethods() int { return methodRegistry.Len() }

func init() {
	RegisterMethods([]MethodEntry{
		{HashTypeList, dispatchTypeList},
		{HashAuxData, dispatchAuxData},
		{HashDir, dispatchDir},
		{HashGet, dispatchGet},
		{HashSet, dispatchSet},
	})
}

// DispatchSelf consumes the header and the self argument of a call and
// resolves it to the served instance.
func DispatchSelf(r *ProtoReader) (*ServerConnection, ImplicitBase) {
	conn := CurrentServerConnection()
	if conn == nil {
		fatal(orberrors.ProtocolViolation("dispatch outside of a server scope", r.Position(), r.NTypes()))
	}
	r.SkipHeader()
	self := conn.PopInterface(r)
	if self == nil {
		fatal(orberrors.NullHandle("dispatch"))
	}
	return conn, self
}

// DispatchSelfAs is DispatchSelf for stubs of a concrete interface T.
func DispatchSelfAs[T any](r *ProtoReader) (*ServerConnection, T) {
	conn, self := DispatchSelf(r)
	t, ok := self.(T)
	if !ok {
		fatal(orberrors.ProtocolViolation("dispatch on unexpected instance type "+self.AidaTypeName(), r.Position(), r.NTypes()))
	}
	return conn, t
}

func dispatchTypeList(r *ProtoReader) *ProtoMsg {
	_, self := DispatchSelf(r)
	list := self.AidaTypeList()
	rb := RenewIntoResult(r, MSGID_CALL_RESULT, HashTypeList.Hi, HashTypeList.Lo, 1)
	seq := rb.AddSeq(uint32(2 * len(list)))
	for _, h := range list {
		seq.AddTypeHash(h)
	}
	return rb
}

func dispatchAuxData(r *ProtoReader) *ProtoMsg {
	_, self := DispatchSelf(r)
	rb := RenewIntoResult(r, MSGID_CALL_RESULT, HashAuxData.Hi, HashAuxData.Lo, 1)
	rb.AddStrings(self.AidaAuxData())
	return rb
}

func dispatchDir(r *ProtoReader) *ProtoMsg {
	_, self := DispatchSelf(r)
	rb := RenewIntoResult(r, MSGID_CALL_RESULT, HashDir.Hi, HashDir.Lo, 1)
	rb.AddStrings(self.AidaDir())
	return rb
}

func dispatchGet(r *ProtoReader) *ProtoMsg {
	conn, self := DispatchSelf(r)
	name := r.PopString()
	v := self.AidaGet(name)
	rb := RenewIntoResult(r, MSGID_CALL_RESULT, HashGet.Hi, HashGet.Lo, 1)
	rb.AddAny(v, conn)
	return rb
}

func dispatchSet(r *ProtoReader) *ProtoMsg {
	conn, self := DispatchSelf(r)
	name := r.PopString()
	v := r.PopAny(conn)
	ok := self.AidaSet(name, v)
	rb := RenewIntoResult(r, MSGID_CALL_RESULT, HashSet.Hi, HashSet.Lo, 1)
	rb.AddBool(ok)
	return rb
}
