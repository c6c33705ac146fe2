package aida

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrbObjectMake(t *testing.T) {
	cases := []struct {
		conn, ti uint16
		n        uint32
		orbid    uint64
	}{
		{3, 2, 7, 0x0003000200000007},
		{0, 0, 0, 0},
		{0xffff, 0xffff, 0xffffffff, 0xffffffffffffffff},
		{0xffff, 0, 1, 0xffff000000000001},
		{1, 0xffff, 0, 0x0001ffff00000000},
	}
	for _, tc := range cases {
		orbid := OrbObjectMake(tc.conn, tc.ti, tc.n)
		require.Equal(t, tc.orbid, orbid)
		conn, ti, n := OrbIDParts(orbid)
		require.Equal(t, tc.conn, conn)
		require.Equal(t, tc.ti, ti)
		require.Equal(t, tc.n, n)
	}
}

func TestNullHandle(t *testing.T) {
	var zero RemoteHandle
	require.True(t, zero.IsNull())
	require.True(t, NullHandle().IsNull())
	require.True(t, zero.Equal(NullHandle()))
	require.Same(t, zero.OrbObject(), NullHandle().OrbObject())
	require.Nil(t, zero.Connection())
	require.Zero(t, zero.OrbID())
	require.Equal(t, "RemoteHandle(null)", zero.String())

	h, ok := DownCast(zero, HashTypeList)
	require.False(t, ok)
	require.True(t, h.IsNull())

	var up RemoteHandle
	up.UpgradeFrom(NullHandle())
	require.True(t, up.IsNull())
}

func TestOrbObjectDetach(t *testing.T) {
	o := newOrbObject(OrbObjectMake(1, 1, 1), nil)
	require.Equal(t, "OrbObject(0x0001000100000001)", o.String())
	require.Nil(t, o.ClientConnection())
	h := RemoteHandle{obj: o}
	require.False(t, h.IsNull())
	require.Nil(t, h.Connection())
	_, ok := DownCast(h, HashTypeList)
	require.False(t, ok)
}
