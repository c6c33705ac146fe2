package a1

import (
	"github.com/orizon-lang/aida/internal/aida"
)

// Type and method hashes of A1::MiniServer.
var (
	MiniServerTypeHash = aida.TypeHashFor(aida.HashType, "A1::MiniServer")

	hashMessage     = aida.TypeHashFor(aida.HashOneway, "A1::MiniServer::message string")
	hashQuit        = aida.TypeHashFor(aida.HashOneway, "A1::MiniServer::quit")
	hashEcho        = aida.TypeHashFor(aida.HashTwoway, "A1::MiniServer::echo string -> string")
	hashCreateChild = aida.TypeHashFor(aida.HashTwoway, "A1::MiniServer::create_child -> A1::MiniServer")
	hashNotify      = aida.TypeHashFor(aida.HashSigcon, "A1::MiniServer::notify string")

	hashVboolGet = aida.TypeHashFor(aida.HashTwoway, "A1::MiniServer::vbool -> bool")
	hashVboolSet = aida.TypeHashFor(aida.HashOneway, "A1::MiniServer::vbool= bool")
	hashVi32Get  = aida.TypeHashFor(aida.HashTwoway, "A1::MiniServer::vi32 -> int32")
	hashVi32Set  = aida.TypeHashFor(aida.HashOneway, "A1::MiniServer::vi32= int32")
	hashVi64tGet = aida.TypeHashFor(aida.HashTwoway, "A1::MiniServer::vi64t -> int64")
	hashVi64tSet = aida.TypeHashFor(aida.HashOneway, "A1::MiniServer::vi64t= int64")
	hashVf64Get  = aida.TypeHashFor(aida.HashTwoway, "A1::MiniServer::vf64 -> float64")
	hashVf64Set  = aida.TypeHashFor(aida.HashOneway, "A1::MiniServer::vf64= float64")
	hashVstrGet  = aida.TypeHashFor(aida.HashTwoway, "A1::MiniServer::vstr -> string")
	hashVstrSet  = aida.TypeHashFor(aida.HashOneway, "A1::MiniServer::vstr= string")
	hashCountGet = aida.TypeHashFor(aida.HashTwoway, "A1::MiniServer::count -> A1::CountEnum")
	hashCountSet = aida.TypeHashFor(aida.HashOneway, "A1::MiniServer::count= A1::CountEnum")
)

// MiniServerIface is the server side of A1::MiniServer.
type MiniServerIface interface {
	aida.ImplicitBase

	Vbool() bool
	SetVbool(v bool)
	Vi32() int32
	SetVi32(v int32)
	Vi64t() int64
	SetVi64t(v int64)
	Vf64() float64
	SetVf64(v float64)
	Vstr() string
	SetVstr(v string)
	Count() CountEnum
	SetCount(v CountEnum)

	Message(what string)
	Quit()
	Echo(s string) string
	CreateChild() MiniServerIface

	// Notify is emitted with the property name after a property changed.
	Notify() *aida.Signal
}

// MiniServerBase implements the introspection part of MiniServerIface.
// Implementations embed it and call InitMiniServerBase with themselves.
type MiniServerBase struct {
	props  *aida.PropertyList
	notify *aida.Signal
}

func (b *MiniServerBase) InitMiniServerBase(self MiniServerIface) {
	b.notify = aida.NewSignal(hashNotify)
	b.props = aida.NewPropertyList(
		aida.Property{
			Name: "vbool",
			Aux:  []string{"blurb=Just true or false", "default=true", "hints=rw"},
			Get:  func() aida.Any { return aida.NewAny(self.Vbool()) },
			Set:  func(v aida.Any) bool { self.SetVbool(v.Bool()); return true },
		},
		aida.Property{
			Name: "vi32",
			Aux:  []string{"label=Int32 Value", "min=-2147483648", "max=2147483647", "step=256", "default=32768", "hints=rw"},
			Get:  func() aida.Any { return aida.NewAny(self.Vi32()) },
			Set:  func(v aida.Any) bool { self.SetVi32(v.Int32()); return true },
		},
		aida.Property{
			Name: "vi64t",
			Aux:  []string{"label=Int64 Value", "min=-9223372036854775808", "max=9223372036854775807", "step=65536", "default=-65536", "hints=rw"},
			Get:  func() aida.Any { return aida.NewAny(self.Vi64t()) },
			Set:  func(v aida.Any) bool { self.SetVi64t(v.AsInt64()); return true },
		},
		aida.Property{
			Name: "vf64",
			Aux:  []string{"label=Float Value", "min=0", "max=1", "step=0.1", "hints=rw"},
			Get:  func() aida.Any { return aida.NewAny(self.Vf64()) },
			Set:  func(v aida.Any) bool { self.SetVf64(v.AsFloat64()); return true },
		},
		aida.Property{
			Name: "vstr",
			Aux:  []string{"default=foobar", "hints=rw"},
			Get:  func() aida.Any { return aida.NewAny(self.Vstr()) },
			Set: func(v aida.Any) bool {
				if v.Kind() != aida.STRING {
					return false
				}
				self.SetVstr(v.GetString())
				return true
			},
		},
		aida.Property{
			Name: "count",
			Aux:  []string{"default=2", "hints=rw"},
			Get:  func() aida.Any { return aida.NewAny(self.Count()) },
			Set: func(v aida.Any) bool {
				c, err := aida.Get[CountEnum](v)
				if err != nil {
					return false
				}
				self.SetCount(c)
				return true
			},
		},
	)
}

func (b *MiniServerBase) AidaTypeName() string                 { return "A1::MiniServer" }
func (b *MiniServerBase) AidaTypeList() aida.TypeHashList      { return aida.TypeHashList{MiniServerTypeHash} }
func (b *MiniServerBase) AidaAuxData() []string                { return b.props.AuxData() }
func (b *MiniServerBase) AidaDir() []string                    { return b.props.Dir() }
func (b *MiniServerBase) AidaGet(name string) aida.Any         { return b.props.Get(name) }
func (b *MiniServerBase) AidaSet(name string, v aida.Any) bool { return b.props.Set(name, v) }
func (b *MiniServerBase) Notify() *aida.Signal                 { return b.notify }

// Properties exposes the property table, e.g. for change hooks.
func (b *MiniServerBase) Properties() *aida.PropertyList { return b.props }

func getter(hash aida.TypeHash, put func(pm *aida.ProtoMsg, self MiniServerIface)) aida.DispatchFunc {
	return func(r *aida.ProtoReader) *aida.ProtoMsg {
		_, self := aida.DispatchSelfAs[MiniServerIface](r)
		rb := aida.RenewIntoResult(r, aida.MSGID_CALL_RESULT, hash.Hi, hash.Lo, 1)
		put(rb, self)
		return rb
	}
}

func setter(take func(r *aida.ProtoReader, self MiniServerIface)) aida.DispatchFunc {
	return func(r *aida.ProtoReader) *aida.ProtoMsg {
		_, self := aida.DispatchSelfAs[MiniServerIface](r)
		take(r, self)
		return nil
	}
}

func dispatchEcho(r *aida.ProtoReader) *aida.ProtoMsg {
	_, self := aida.DispatchSelfAs[MiniServerIface](r)
	s := r.PopString()
	rb := aida.RenewIntoResult(r, aida.MSGID_CALL_RESULT, hashEcho.Hi, hashEcho.Lo, 1)
	rb.AddString(self.Echo(s))
	return rb
}

func dispatchCreateChild(r *aida.ProtoReader) *aida.ProtoMsg {
	conn, self := aida.DispatchSelfAs[MiniServerIface](r)
	child := self.CreateChild()
	rb := aida.RenewIntoResult(r, aida.MSGID_CALL_RESULT, hashCreateChild.Hi, hashCreateChild.Lo, 1)
	conn.AddInterface(rb, child)
	return rb
}

func notifySignal(self aida.ImplicitBase) *aida.Signal {
	if m, ok := self.(MiniServerIface); ok {
		return m.Notify()
	}
	return nil
}

func init() {
	aida.RegisterMethods([]aida.MethodEntry{
		{Hash: hashMessage, Dispatch: setter(func(r *aida.ProtoReader, s MiniServerIface) { s.Message(r.PopString()) })},
		{Hash: hashQuit, Dispatch: setter(func(r *aida.ProtoReader, s MiniServerIface) { s.Quit() })},
		{Hash: hashEcho, Dispatch: dispatchEcho},
		{Hash: hashCreateChild, Dispatch: dispatchCreateChild},
		{Hash: hashNotify, Dispatch: aida.SignalConnectDispatcher(hashNotify, notifySignal)},

		{Hash: hashVboolGet, Dispatch: getter(hashVboolGet, func(pm *aida.ProtoMsg, s MiniServerIface) { pm.AddBool(s.Vbool()) })},
		{Hash: hashVboolSet, Dispatch: setter(func(r *aida.ProtoReader, s MiniServerIface) { s.SetVbool(r.PopBool()) })},
		{Hash: hashVi32Get, Dispatch: getter(hashVi32Get, func(pm *aida.ProtoMsg, s MiniServerIface) { pm.AddInt64(int64(s.Vi32())) })},
		{Hash: hashVi32Set, Dispatch: setter(func(r *aida.ProtoReader, s MiniServerIface) { s.SetVi32(r.PopInt32()) })},
		{Hash: hashVi64tGet, Dispatch: getter(hashVi64tGet, func(pm *aida.ProtoMsg, s MiniServerIface) { pm.AddInt64(s.Vi64t()) })},
		{Hash: hashVi64tSet, Dispatch: setter(func(r *aida.ProtoReader, s MiniServerIface) { s.SetVi64t(r.PopInt64()) })},
		{Hash: hashVf64Get, Dispatch: getter(hashVf64Get, func(pm *aida.ProtoMsg, s MiniServerIface) { pm.AddDouble(s.Vf64()) })},
		{Hash: hashVf64Set, Dispatch: setter(func(r *aida.ProtoReader, s MiniServerIface) { s.SetVf64(r.PopDouble()) })},
		{Hash: hashVstrGet, Dispatch: getter(hashVstrGet, func(pm *aida.ProtoMsg, s MiniServerIface) { pm.AddString(s.Vstr()) })},
		{Hash: hashVstrSet, Dispatch: setter(func(r *aida.ProtoReader, s MiniServerIface) { s.SetVstr(r.PopString()) })},
		{Hash: hashCountGet, Dispatch: getter(hashCountGet, func(pm *aida.ProtoMsg, s MiniServerIface) { pm.AddEvalue(int64(s.Count())) })},
		{Hash: hashCountSet, Dispatch: setter(func(r *aida.ProtoReader, s MiniServerIface) { s.SetCount(CountEnum(r.PopEvalue())) })},
	})
}

// MiniServerHandle is the client proxy of A1::MiniServer.
type MiniServerHandle struct {
	aida.RemoteHandle
}

// MiniServerFrom down-casts h after checking the remote type list.
func MiniServerFrom(h aida.RemoteHandle) (MiniServerHandle, bool) {
	var m MiniServerHandle
	rh, ok := aida.DownCast(h, MiniServerTypeHash)
	if ok {
		m.UpgradeFrom(rh)
	}
	return m, ok
}

func (h MiniServerHandle) call2(hash aida.TypeHash, fill func(pm *aida.ProtoMsg)) *aida.ProtoReader {
	scope := aida.NewCall2WayScope(h.RemoteHandle, hash, 1)
	defer scope.Close()
	if fill != nil {
		fill(scope.Msg())
	}
	return scope.Invoke()
}

func (h MiniServerHandle) call1(hash aida.TypeHash, fill func(pm *aida.ProtoMsg)) {
	scope := aida.NewCall1WayScope(h.RemoteHandle, hash, 1)
	defer scope.Close()
	if fill != nil {
		fill(scope.Msg())
	}
	scope.Invoke()
}

func (h MiniServerHandle) Vbool() bool      { return h.call2(hashVboolGet, nil).PopBool() }
func (h MiniServerHandle) Vi32() int32      { return h.call2(hashVi32Get, nil).PopInt32() }
func (h MiniServerHandle) Vi64t() int64     { return h.call2(hashVi64tGet, nil).PopInt64() }
func (h MiniServerHandle) Vf64() float64    { return h.call2(hashVf64Get, nil).PopDouble() }
func (h MiniServerHandle) Vstr() string     { return h.call2(hashVstrGet, nil).PopString() }
func (h MiniServerHandle) Count() CountEnum { return CountEnum(h.call2(hashCountGet, nil).PopEvalue()) }

func (h MiniServerHandle) SetVbool(v bool) {
	h.call1(hashVboolSet, func(pm *aida.ProtoMsg) { pm.AddBool(v) })
}

func (h MiniServerHandle) SetVi32(v int32) {
	h.call1(hashVi32Set, func(pm *aida.ProtoMsg) { pm.AddInt64(int64(v)) })
}

func (h MiniServerHandle) SetVi64t(v int64) {
	h.call1(hashVi64tSet, func(pm *aida.ProtoMsg) { pm.AddInt64(v) })
}

func (h MiniServerHandle) SetVf64(v float64) {
	h.call1(hashVf64Set, func(pm *aida.ProtoMsg) { pm.AddDouble(v) })
}

func (h MiniServerHandle) SetVstr(v string) {
	h.call1(hashVstrSet, func(pm *aida.ProtoMsg) { pm.AddString(v) })
}

func (h MiniServerHandle) SetCount(v CountEnum) {
	h.call1(hashCountSet, func(pm *aida.ProtoMsg) { pm.AddEvalue(int64(v)) })
}

// Message asks the server to print what.
func (h MiniServerHandle) Message(what string) {
	h.call1(hashMessage, func(pm *aida.ProtoMsg) { pm.AddString(what) })
}

// Quit stops the server's loop.
func (h MiniServerHandle) Quit() { h.call1(hashQuit, nil) }

func (h MiniServerHandle) Echo(s string) string {
	return h.call2(hashEcho, func(pm *aida.ProtoMsg) { pm.AddString(s) }).PopString()
}

// CreateChild asks the server for a new MiniServer instance.
func (h MiniServerHandle) CreateChild() MiniServerHandle {
	r := h.call2(hashCreateChild, nil)
	return MiniServerHandle{RemoteHandle: h.Connection().PopHandle(r)}
}

// OnNotify connects fn to the notify signal. fn receives "" once the
// connection goes away. The result is the handler id for SignalDisconnect.
func (h MiniServerHandle) OnNotify(fn func(property string)) uint64 {
	c := h.Connection()
	if c == nil {
		return 0
	}
	return c.SignalConnect(hashNotify, h.RemoteHandle, func(r *aida.ProtoReader, _ interface{}) aida.Any {
		if r == nil {
			fn("")
		} else {
			fn(r.PopString())
		}
		return aida.Any{}
	}, nil)
}
