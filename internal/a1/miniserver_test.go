package a1

import (
	"context"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/aida/internal/aida"
	"github.com/orizon-lang/aida/internal/loop"
)

func startMiniServer(t *testing.T, address string) (*MiniServer, *aida.ServerConnection) {
	t.Helper()
	l, err := loop.New()
	require.NoError(t, err)
	srv := NewMiniServer(l)
	conn, err := srv.Bind(address)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = conn.Close()
		_ = l.Close()
	})
	return srv, conn
}

func connectMiniServer(t *testing.T, address string) (*aida.ClientConnection, MiniServerHandle) {
	t.Helper()
	c, err := aida.Connect(address)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	h, ok := MiniServerFrom(c.RemoteOrigin())
	require.True(t, ok)
	return c, h
}

func pump(c *aida.ClientConnection) {
	for c.Pending() {
		c.Dispatch()
	}
}

func TestMiniServerProperties(t *testing.T) {
	srv, _ := startMiniServer(t, "inproc://aida-test-mini-server")
	_, server := connectMiniServer(t, "inproc://aida-test-mini-server")

	server.Message("  CHECK  MiniServer remote call successfull")
	params := aida.NewParameters(server.RemoteHandle)
	require.NotEmpty(t, params)
	find := func(name string) *aida.Parameter {
		p := aida.FindParameter(params, name)
		require.NotNil(t, p, name)
		return p
	}
	pBool, pI32, pI64, pF64, pStr, pCount := find("vbool"), find("vi32"), find("vi64t"), find("vf64"), find("vstr"), find("count")

	// vbool
	a := pBool.Get()
	require.Equal(t, aida.BOOL, a.Kind())
	require.False(t, a.Bool())
	a.Set(true)
	require.True(t, pBool.Set(a))
	require.True(t, server.Vbool())
	require.Equal(t, "Just true or false", pBool.GetAux("blurb"))
	b, err := strconv.ParseBool(pBool.GetAux("default"))
	require.NoError(t, err)
	require.True(t, b)
	require.Equal(t, "rw", pBool.GetAux("hints"))

	// vi32
	a = pI32.Get()
	require.Equal(t, aida.INT64, a.Kind())
	require.Equal(t, int32(0), a.Int32())
	a.Set(-750)
	require.True(t, pI32.Set(a))
	require.Equal(t, -750.0, pI32.Get().AsFloat64())
	require.Equal(t, int32(-750), server.Vi32())
	require.Equal(t, "Int32 Value", pI32.GetAux("label"))
	requireAuxInt(t, pI32, "min", -2147483648)
	requireAuxInt(t, pI32, "max", 2147483647)
	requireAuxInt(t, pI32, "step", 256)
	requireAuxInt(t, pI32, "default", 32768)
	require.Equal(t, "rw", pI32.GetAux("hints"))

	// vi64t
	a = pI64.Get()
	require.Equal(t, aida.INT64, a.Kind())
	a.Set(-750)
	require.True(t, pI64.Set(a))
	require.Equal(t, -750.0, pI64.Get().AsFloat64())
	require.Equal(t, int64(-750), server.Vi64t())
	require.Equal(t, "Int64 Value", pI64.GetAux("label"))
	requireAuxInt(t, pI64, "min", -9223372036854775808)
	requireAuxInt(t, pI64, "max", 9223372036854775807)
	requireAuxInt(t, pI64, "step", 65536)
	requireAuxInt(t, pI64, "default", -65536)

	// vf64
	a = pF64.Get()
	require.Equal(t, aida.FLOAT64, a.Kind())
	require.Zero(t, a.AsFloat64())
	a.Set(-0.75)
	require.True(t, pF64.Set(a))
	require.Equal(t, -0.75, pF64.Get().AsFloat64())
	require.Equal(t, -0.75, server.Vf64())
	require.Equal(t, "Float Value", pF64.GetAux("label"))
	step, err := strconv.ParseFloat(pF64.GetAux("step"), 64)
	require.NoError(t, err)
	require.Equal(t, 0.1, step)

	// vstr
	a = pStr.Get()
	require.Equal(t, aida.STRING, a.Kind())
	require.Empty(t, a.GetString())
	server.SetVstr("123")
	require.Equal(t, "123", pStr.Get().GetString())
	a.Set("ZOOT")
	require.True(t, pStr.Set(a))
	require.Equal(t, "ZOOT", server.Vstr())
	require.False(t, pStr.Set(aida.NewAny(17)))
	require.Equal(t, "foobar", pStr.GetAux("default"))

	// count
	server.SetCount(TWO)
	a = pCount.Get()
	require.Equal(t, aida.ENUM, a.Kind())
	c, err := aida.Get[CountEnum](a)
	require.NoError(t, err)
	require.Equal(t, TWO, c)
	require.Equal(t, int64(TWO), a.GetEnum(CountEnumInfo()))
	info, err := a.GetEnumInfo()
	require.NoError(t, err)
	require.Nil(t, info)
	a.Set(THREE)
	require.Equal(t, aida.ENUM, a.Kind())
	require.True(t, pCount.Set(a))
	require.Equal(t, THREE, server.Count())
	requireAuxInt(t, pCount, "default", 2)

	server.Message("  CHECK  MiniServer property access")
	require.Equal(t, "echo", server.Echo("echo"))
	require.Len(t, srv.Messages(), 2)
	require.Equal(t, THREE, srv.Count())
}

func requireAuxInt(t *testing.T, p *aida.Parameter, key string, want int64) {
	t.Helper()
	v, err := strconv.ParseInt(p.GetAux(key), 10, 64)
	require.NoError(t, err, key)
	require.Equal(t, want, v, key)
}

func TestMiniServerUnknownProperty(t *testing.T) {
	startMiniServer(t, "inproc://aida-test-unknown-property")
	_, server := connectMiniServer(t, "inproc://aida-test-unknown-property")

	require.True(t, server.GetProperty("vbol").Empty())
	require.False(t, server.SetProperty("nope", aida.NewAny(true)))
	require.ElementsMatch(t, []string{"vbool", "vi32", "vi64t", "vf64", "vstr", "count"}, server.Dir())
}

func TestMiniServerNotifySignal(t *testing.T) {
	startMiniServer(t, "inproc://aida-test-notify")
	c, server := connectMiniServer(t, "inproc://aida-test-notify")

	var got []string
	id := server.OnNotify(func(property string) { got = append(got, property) })
	require.NotZero(t, id)
	require.Equal(t, 1, c.SignalHandlers())

	server.SetVi32(5)
	server.SetVstr("x")
	require.Equal(t, "x", server.Vstr()) // round trip orders the emissions before the result
	pump(c)
	require.Equal(t, []string{"vi32", "vstr"}, got)

	require.True(t, c.SignalDisconnect(id))
	require.Zero(t, c.SignalHandlers())
	server.SetVi32(6)
	require.Equal(t, int32(6), server.Vi32())
	pump(c)
	require.Len(t, got, 2)
}

func TestMiniServerNotifyOnClose(t *testing.T) {
	startMiniServer(t, "inproc://aida-test-notify-close")
	c, err := aida.Connect("inproc://aida-test-notify-close")
	require.NoError(t, err)
	server, ok := MiniServerFrom(c.RemoteOrigin())
	require.True(t, ok)

	var got []string
	server.OnNotify(func(property string) { got = append(got, property) })
	require.NoError(t, c.Close())
	require.Equal(t, []string{""}, got)
	require.Nil(t, server.Connection())
}

func TestMiniServerChildInstances(t *testing.T) {
	_, conn := startMiniServer(t, "inproc://aida-test-children")
	c, server := connectMiniServer(t, "inproc://aida-test-children")

	child := server.CreateChild()
	require.False(t, child.IsNull())
	require.False(t, child.Equal(server.RemoteHandle))
	child.SetVstr("child")
	require.Equal(t, "child", child.Vstr())
	require.Empty(t, server.Vstr())
	require.Equal(t, 2, conn.Instances())

	typed, ok := MiniServerFrom(child.RemoteHandle)
	require.True(t, ok)
	require.True(t, typed.Equal(child.RemoteHandle))
	require.Same(t, c, child.Connection())
}

func createAndDropChild(server MiniServerHandle) uint64 {
	return server.CreateChild().OrbID()
}

func TestMiniServerGarbageSweep(t *testing.T) {
	_, conn := startMiniServer(t, "inproc://aida-test-garbage")
	c, server := connectMiniServer(t, "inproc://aida-test-garbage")

	orbid := createAndDropChild(server)
	require.NotZero(t, orbid)
	require.Equal(t, 2, conn.Instances())

	require.Eventually(t, func() bool {
		runtime.GC()
		c.SeenGarbage()
		server.Vbool() // let the server send its sweep
		pump(c)
		server.Vbool() // and process our report
		_, alive := conn.Instance(orbid)
		return !alive
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, conn.Instances())

	// the root survives sweeps
	root, ok := conn.Instance(server.OrbID())
	require.True(t, ok)
	require.Same(t, conn.Root(), root)
}

func TestMiniServerQuit(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()
	srv := NewMiniServer(l)
	conn, err := srv.Bind("inproc://aida-test-quit")
	require.NoError(t, err)
	defer conn.Close()

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	c, server := connectMiniServer(t, "inproc://aida-test-quit")
	require.True(t, c.HasPeer())
	server.Quit()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not quit")
	}
}
