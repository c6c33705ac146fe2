package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type stringer string

func (s stringer) String() string { return string(s) }

func TestIsMatchesByCode(t *testing.T) {
	err := CapacityExceeded(4, 4)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.NotErrorIs(t, err, ErrProtocolViolation)

	wrapped := fmt.Errorf("post: %w", err)
	require.True(t, stderrors.Is(wrapped, ErrCapacityExceeded))

	var se *StandardError
	require.True(t, stderrors.As(wrapped, &se))
	require.Equal(t, CategoryCapacity, se.Category)
	require.Equal(t, uint32(4), se.Context["capacity"])
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		err  *StandardError
		code string
		msg  string
	}{
		{ProtocolViolation("expected INT64", 2, 5), CodeProtocolViolation, "slot 2 of 5: expected INT64"},
		{KindMismatch("GetSeq", stringer("SEQUENCE"), stringer("INT64")), CodeKindMismatch, "kind SEQUENCE requested, value holds INT64"},
		{MethodNotFound(1, 2), CodeMethodNotFound, "(0x0000000000000001,0x0000000000000002)"},
		{ConnectionFailure("inproc://x", "address already in use"), CodeConnectionFailure, "address already in use"},
		{ConnectionClosed("inproc://x", "CallRemote"), CodeConnectionClosed, "closed during CallRemote"},
		{RegistryFrozen(3, 4), CodeRegistryFrozen, "after first dispatch"},
		{DuplicateMethod(3, 4), CodeDuplicateMethod, "Conflicting registration"},
		{IncompatibleVersion("2.0.0", "^1.0"), CodeIncompatibleVersion, `"2.0.0" does not satisfy "^1.0"`},
		{NullHandle("Dir"), CodeNullHandle, "Null handle in Dir"},
		{OrbidExhausted("inproc://x", "counter", 4294967295), CodeOrbidExhausted, "ran out of orbid counter values"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.code, tc.err.Code)
		require.Contains(t, tc.err.Error(), tc.msg)
		require.Contains(t, tc.err.Caller, "TestConstructors")
	}
}

func TestUnknownNameSuggestion(t *testing.T) {
	err := UnknownName("property", "vbol", "vbool")
	require.Contains(t, err.Error(), `Unknown property "vbol", did you mean "vbool"?`)
	err = UnknownName("property", "x", "")
	require.NotContains(t, err.Error(), "did you mean")
}
