package aida

import (
	"testing"

	"github.com/stretchr/testify/require"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

func TestScopeNesting(t *testing.T) {
	const addr = "inproc://aida-test-scopes"
	_, s := bindWidget(t, addr)
	serve(t, s)
	c := connect(t, addr)

	require.Zero(t, ScopeDepth())
	require.Nil(t, CurrentServerConnection())
	require.Nil(t, CurrentBaseConnection())

	outer := NewServerScope(s)
	require.Equal(t, 1, outer.Depth())
	require.Same(t, s, CurrentServerConnection())
	require.Nil(t, CurrentClientConnection())

	inner := NewClientScope(c)
	require.Equal(t, 2, inner.Depth())
	require.Equal(t, 2, ScopeDepth())
	require.Same(t, c, CurrentClientConnection())
	require.Same(t, s, CurrentServerConnection())
	require.Equal(t, BaseConnection(c), CurrentBaseConnection())

	requireFatal(t, orberrors.ErrProtocolViolation, outer.Close)
	inner.Close()
	inner.Close()
	require.Equal(t, BaseConnection(s), CurrentBaseConnection())
	outer.Close()
	require.Zero(t, ScopeDepth())
	require.Nil(t, CurrentServerConnection())
}

func TestScopeForeignThread(t *testing.T) {
	const addr = "inproc://aida-test-scope-thread"
	_, s := bindWidget(t, addr)

	scope := NewServerScope(s)
	recovered := make(chan interface{}, 1)
	go func() {
		defer func() { recovered <- recover() }()
		scope.Close()
	}()
	require.NotNil(t, <-recovered)
	require.Equal(t, 1, ScopeDepth())
	scope.Close()
	require.Zero(t, ScopeDepth())
}

func TestScopeInvokeWithoutMessage(t *testing.T) {
	const addr = "inproc://aida-test-scope-invoke"
	_, s := bindWidget(t, addr)

	scope := NewServerScope(s)
	defer scope.Close()
	require.Nil(t, scope.Msg())
	requireFatal(t, orberrors.ErrProtocolViolation, func() { scope.Invoke() })
}

func TestCallScopeMessage(t *testing.T) {
	const addr = "inproc://aida-test-call-scope"
	_, s := bindWidget(t, addr)
	serve(t, s)
	c := connect(t, addr)
	origin := c.RemoteOrigin()

	requireFatal(t, orberrors.ErrNullHandle, func() { NewCall1WayScope(NullHandle(), HashDir, 0) })
	require.Zero(t, ScopeDepth())

	scope := NewCall2WayScope(origin, HashGet, 1)
	msg := scope.Msg()
	require.Equal(t, uint32(5), msg.Capacity())
	r := NewProtoReader(msg)
	id, hash := r.PopHeader()
	require.Equal(t, MSGID_CALL_TWOWAY, id.MessageID)
	require.Equal(t, HashGet, hash)
	require.Equal(t, origin.OrbID(), r.PopOrbid())
	require.Same(t, c, CurrentClientConnection())

	msg.AddString("label")
	result := scope.Invoke()
	require.Equal(t, STRING, result.PopAny(c).Kind())
	require.Nil(t, scope.Msg())
	scope.Close()
	require.Zero(t, ScopeDepth())
}
