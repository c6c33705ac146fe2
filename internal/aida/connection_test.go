package aida

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

var (
	widgetTypeHash = TypeHashFor(HashType, "Test::Widget")
	widgetPingHash = TypeHashFor(HashSigcon, "Test::Widget::ping string -> string")
)

func init() {
	RegisterMethods([]MethodEntry{
		{widgetPingHash, SignalConnectDispatcher(widgetPingHash, func(self ImplicitBase) *Signal {
			if w, ok := self.(*widget); ok {
				return w.ping
			}
			return nil
		})},
	})
}

// widget is a small served object with a writable label, a read-only child
// reference, an assignable buddy reference and a ping signal.
type widget struct {
	props *PropertyList
	ping  *Signal

	mu    sync.Mutex
	label string
	child *widget
	buddy *widget
}

func newWidget(child *widget) *widget {
	w := &widget{child: child, ping: NewSignal(widgetPingHash)}
	w.props = NewPropertyList(
		Property{
			Name: "label",
			Aux:  []string{"label=Label", "hints=rw"},
			Get:  func() Any { return NewAny(w.Label()) },
			Set: func(v Any) bool {
				if v.Kind() != STRING {
					return false
				}
				w.mu.Lock()
				w.label = v.GetString()
				w.mu.Unlock()
				return true
			},
		},
		Property{
			Name: "child",
			Aux:  []string{"hints=r"},
			Get:  func() Any { return NewAny(w.child) },
		},
		Property{
			Name: "buddy",
			Aux:  []string{"hints=w"},
			Get:  func() Any { return Any{} },
			Set: func(v Any) bool {
				ibase, err := v.GetInstance()
				if err != nil {
					return false
				}
				b, ok := ibase.(*widget)
				if !ok {
					return false
				}
				w.mu.Lock()
				w.buddy = b
				w.mu.Unlock()
				return true
			},
		},
	)
	return w
}

func (w *widget) Label() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.label
}

func (w *widget) AidaTypeName() string            { return "Test::Widget" }
func (w *widget) AidaTypeList() TypeHashList      { return TypeHashList{widgetTypeHash} }
func (w *widget) AidaAuxData() []string           { return w.props.AuxData() }
func (w *widget) AidaDir() []string               { return w.props.Dir() }
func (w *widget) AidaGet(name string) Any         { return w.props.Get(name) }
func (w *widget) AidaSet(name string, v Any) bool { return w.props.Set(name, v) }

// listObject is served by value; its slice field makes the type unusable as
// a map key. Pointers to it are fine.
type listObject struct{ items []string }

func (l listObject) AidaTypeName() string            { return "Test::List" }
func (l listObject) AidaTypeList() TypeHashList      { return nil }
func (l listObject) AidaAuxData() []string           { return nil }
func (l listObject) AidaDir() []string               { return nil }
func (l listObject) AidaGet(name string) Any         { return Any{} }
func (l listObject) AidaSet(name string, v Any) bool { return false }

// serve dispatches s on a background goroutine until the returned stop
// function or the test cleanup runs.
func serve(t *testing.T, s *ServerConnection) (stop func()) {
	t.Helper()
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-quit:
				return
			default:
			}
			if s.Pending() {
				s.Dispatch()
				continue
			}
			time.Sleep(time.Millisecond)
		}
	}()
	var once sync.Once
	stop = func() {
		once.Do(func() {
			close(quit)
			<-done
		})
	}
	t.Cleanup(stop)
	return stop
}

func bindWidget(t *testing.T, address string) (*widget, *ServerConnection) {
	t.Helper()
	root := newWidget(newWidget(nil))
	s, err := Bind(address, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return root, s
}

func connect(t *testing.T, address string) *ClientConnection {
	t.Helper()
	c, err := Connect(address)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBindErrors(t *testing.T) {
	_, err := Bind("tcp://localhost:1", newWidget(nil))
	require.ErrorIs(t, err, orberrors.ErrConnectionFailure)
	_, err = Bind("inproc://", newWidget(nil))
	require.ErrorIs(t, err, orberrors.ErrConnectionFailure)
	_, err = Bind("inproc://aida-test-nil-root", nil)
	require.ErrorIs(t, err, orberrors.ErrConnectionFailure)
	_, err = Bind("inproc://aida-test-nil-root", (*widget)(nil))
	require.ErrorIs(t, err, orberrors.ErrConnectionFailure)
	_, err = Bind("inproc://aida-test-list-root", listObject{})
	require.ErrorIs(t, err, orberrors.ErrConnectionFailure)
	require.Contains(t, err.Error(), "not comparable")
	require.NotContains(t, Endpoints(), "inproc://aida-test-list-root")

	const addr = "inproc://aida-test-bind-twice"
	_, s := bindWidget(t, addr)
	require.Contains(t, Endpoints(), addr)
	_, err = Bind(addr, newWidget(nil))
	require.ErrorIs(t, err, orberrors.ErrConnectionFailure)
	require.Contains(t, err.Error(), "address already in use")

	require.NoError(t, s.Close())
	require.NotContains(t, Endpoints(), addr)
	s2, err := Bind(addr, newWidget(nil))
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestConnectErrors(t *testing.T) {
	_, err := Connect("inproc://aida-test-nobody-home")
	require.ErrorIs(t, err, orberrors.ErrConnectionFailure)
	_, err = Connect("udp://somewhere")
	require.ErrorIs(t, err, orberrors.ErrConnectionFailure)
}

func TestConnectVersionRefused(t *testing.T) {
	const addr = "inproc://aida-test-version"
	_, s := bindWidget(t, addr)
	serve(t, s)
	t.Cleanup(func() { require.NoError(t, Configure(DefaultOptions())) })

	require.NoError(t, Configure(Options{AcceptVersions: "^2.0"}))
	_, err := Connect(addr)
	require.ErrorIs(t, err, orberrors.ErrIncompatibleVersion)
	require.False(t, s.HasPeer())

	require.NoError(t, Configure(Options{ProtocolVersion: "2.1.0", AcceptVersions: "^2.0"}))
	c, err := Connect(addr)
	require.NoError(t, err)
	require.True(t, s.HasPeer())
	require.NoError(t, c.Close())
}

func TestIntrospection(t *testing.T) {
	const addr = "inproc://aida-test-introspection"
	root, s := bindWidget(t, addr)
	serve(t, s)
	c := connect(t, addr)

	origin := c.RemoteOrigin()
	require.False(t, origin.IsNull())
	require.Same(t, c, origin.Connection())
	require.Equal(t, TypeHashList{widgetTypeHash}, origin.TypeList())
	h, ok := DownCast(origin, widgetTypeHash)
	require.True(t, ok)
	require.True(t, h.Equal(origin))
	_, ok = DownCast(origin, TypeHashFor(HashType, "Test::Other"))
	require.False(t, ok)

	require.Equal(t, []string{"label", "child", "buddy"}, origin.Dir())
	require.Contains(t, origin.AuxData(), "label.hints=rw")
	require.True(t, origin.SetProperty("label", NewAny("root")))
	require.Equal(t, "root", origin.GetProperty("label").GetString())
	require.Equal(t, "root", root.Label())
	require.False(t, origin.SetProperty("label", NewAny(1)))
	require.False(t, origin.SetProperty("child", NewAny(1)))
	require.True(t, origin.GetProperty("lable").Empty())
}

func TestReferencesCrossTheConnection(t *testing.T) {
	const addr = "inproc://aida-test-references"
	root, s := bindWidget(t, addr)
	serve(t, s)
	c := connect(t, addr)
	origin := c.RemoteOrigin()

	child, err := origin.GetProperty("child").GetHandle()
	require.NoError(t, err)
	require.False(t, child.IsNull())
	require.False(t, child.Equal(origin))
	require.Same(t, c, child.Connection())
	require.Equal(t, 2, s.Instances())

	require.True(t, child.SetProperty("label", NewAny("leaf")))
	require.Equal(t, "leaf", root.child.Label())

	again, err := origin.GetProperty("child").GetHandle()
	require.NoError(t, err)
	require.Same(t, child.OrbObject(), again.OrbObject())
	require.Contains(t, child.String(), "RemoteHandle(0x")

	require.True(t, origin.SetProperty("buddy", NewAny(child)))
	root.mu.Lock()
	require.Same(t, root.child, root.buddy)
	root.mu.Unlock()

	conn, ti, n := OrbIDParts(child.OrbID())
	require.Equal(t, s.ConnectionID(), conn)
	oconn, oti, on := OrbIDParts(origin.OrbID())
	require.Equal(t, oconn, conn)
	require.Equal(t, oti, ti)
	require.Greater(t, n, on)
}

func TestNilChildReference(t *testing.T) {
	const addr = "inproc://aida-test-nil-child"
	_, s := bindWidget(t, addr)
	serve(t, s)
	c := connect(t, addr)

	child, err := c.RemoteOrigin().GetProperty("child").GetHandle()
	require.NoError(t, err)
	require.False(t, child.IsNull())

	grandchild, err := child.GetProperty("child").GetHandle()
	require.NoError(t, err)
	require.True(t, grandchild.IsNull())
	require.Zero(t, grandchild.OrbID())
	require.Equal(t, 2, s.Instances())

	// the server keeps serving
	require.ElementsMatch(t, []string{"label", "child", "buddy"}, child.Dir())
}

func TestExportInstanceLimits(t *testing.T) {
	_, s := bindWidget(t, "inproc://aida-test-export-limits")

	require.Zero(t, s.exportInstance((*widget)(nil)))
	requireFatal(t, orberrors.ErrKindMismatch, func() {
		s.AddInterface(NewProtoMsg(1), listObject{})
	})

	s.objMu.Lock()
	s.counter = math.MaxUint32
	s.objMu.Unlock()
	requireFatal(t, orberrors.ErrOrbidExhausted, func() { s.exportInstance(newWidget(nil)) })
	require.Equal(t, 1, s.Instances())

	s.objMu.Lock()
	s.counter = 16
	for i := len(s.typeIndex); i < math.MaxUint16; i++ {
		s.typeIndex[fmt.Sprintf("Test::Filler%d", i)] = uint16(i + 1)
	}
	s.objMu.Unlock()
	requireFatal(t, orberrors.ErrOrbidExhausted, func() { s.exportInstance(&listObject{}) })

	// known types still get fresh orbids
	orbid := s.exportInstance(newWidget(nil))
	_, _, n := OrbIDParts(orbid)
	require.Equal(t, uint32(17), n)
	require.Equal(t, 2, s.Instances())
}

func TestHandleFromForeignConnection(t *testing.T) {
	const addr = "inproc://aida-test-foreign"
	_, s := bindWidget(t, addr)
	serve(t, s)
	c1 := connect(t, addr)
	c2 := connect(t, addr)
	require.NotEqual(t, c1.ConnectionID(), c2.ConnectionID())
	require.False(t, c1.RemoteOrigin().Equal(c2.RemoteOrigin()))

	requireFatal(t, orberrors.ErrProtocolViolation, func() {
		c1.RemoteOrigin().SetProperty("buddy", NewAny(c2.RemoteOrigin()))
	})
	require.Zero(t, ScopeDepth())
}

func TestMethodNotFound(t *testing.T) {
	const addr = "inproc://aida-test-method-not-found"
	_, s := bindWidget(t, addr)
	stop := serve(t, s)
	c := connect(t, addr)
	stop()

	pm := NewProtoMsg(4)
	pm.AddHeader1(MSGID_CALL_ONEWAY, 0xdead, 0xbeef)
	pm.AddOrbid(c.RemoteOrigin().OrbID())
	c.PostPeerMsg(pm)
	require.True(t, s.Pending())
	requireFatal(t, orberrors.ErrMethodNotFound, s.Dispatch)
	require.False(t, s.Pending())
	require.Zero(t, ScopeDepth())
}

func TestCloseDuringCall(t *testing.T) {
	const addr = "inproc://aida-test-close-during-call"
	_, s := bindWidget(t, addr)
	stop := serve(t, s)
	c := connect(t, addr)
	origin := c.RemoteOrigin()
	stop()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.Close()
	}()
	requireFatal(t, orberrors.ErrConnectionClosed, func() { origin.Dir() })
	require.False(t, c.HasPeer())
	require.Nil(t, c.PeerConnection())
	require.Nil(t, origin.Connection())
	requireFatal(t, orberrors.ErrConnectionClosed, func() { origin.Dir() })
	requireFatal(t, orberrors.ErrNullHandle, func() { NullHandle().Dir() })
}

func TestClientClose(t *testing.T) {
	const addr = "inproc://aida-test-client-close"
	_, s := bindWidget(t, addr)
	serve(t, s)
	c, err := Connect(addr)
	require.NoError(t, err)
	origin := c.RemoteOrigin()
	require.True(t, s.HasPeer())
	require.Same(t, s, c.PeerConnection())

	require.NoError(t, c.Close())
	require.False(t, c.HasPeer())
	require.Nil(t, c.PeerConnection())
	require.Nil(t, origin.Connection())
	require.False(t, s.HasPeer())
	require.Equal(t, 1, s.Instances())
}

func TestSignalEmitTwoway(t *testing.T) {
	const addr = "inproc://aida-test-signal-twoway"
	root, s := bindWidget(t, addr)
	serve(t, s)
	c := connect(t, addr)

	var got []string
	disconnected := false
	id := c.SignalConnect(widgetPingHash, c.RemoteOrigin(), func(r *ProtoReader, data interface{}) Any {
		if r == nil {
			disconnected = true
			return Any{}
		}
		msg := r.PopString()
		got = append(got, msg)
		return NewAny(data.(string) + ":" + msg)
	}, "pong")
	require.NotZero(t, id)
	require.Equal(t, 1, root.ping.Connections())

	results := make(chan string, 1)
	root.ping.EmitTwoway(1, func(pm *ProtoMsg, _ *ServerConnection) {
		pm.AddString("hi")
	}, func(r *ProtoReader) {
		results <- r.PopAny(nil).GetString()
	})
	require.Eventually(t, c.Pending, 5*time.Second, time.Millisecond)
	c.Dispatch()
	require.Equal(t, []string{"hi"}, got)
	select {
	case v := <-results:
		require.Equal(t, "pong:hi", v)
	case <-time.After(5 * time.Second):
		t.Fatal("no EMIT_RESULT")
	}

	root.ping.Destroy()
	require.Zero(t, root.ping.Connections())
	require.Eventually(t, c.Pending, 5*time.Second, time.Millisecond)
	c.Dispatch()
	require.True(t, disconnected)
	require.Zero(t, c.SignalHandlers())
}

func TestNotifyCallback(t *testing.T) {
	const addr = "inproc://aida-test-notify-callback"
	root, s := bindWidget(t, addr)
	serve(t, s)
	c := connect(t, addr)

	notified := make(chan struct{}, 4)
	c.NotifyCallback(func() { notified <- struct{}{} })
	c.SignalConnect(widgetPingHash, c.RemoteOrigin(), func(r *ProtoReader, _ interface{}) Any { return Any{} }, nil)
	root.ping.Emit(1, func(pm *ProtoMsg, _ *ServerConnection) { pm.AddString("x") })
	select {
	case <-notified:
	case <-time.After(5 * time.Second):
		t.Fatal("notify callback did not run")
	}
	require.True(t, c.Pending())
	c.Dispatch()
	require.False(t, c.Pending())
	c.NotifyCallback(nil)
}
