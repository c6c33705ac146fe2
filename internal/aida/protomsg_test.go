package aida

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

// requireFatal runs fn and checks that it panics with an error matching target.
func requireFatal(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		require.True(t, errors.Is(err, target), "got %v", err)
	}()
	fn()
}

func TestProtoMsgRoundTrip(t *testing.T) {
	pm := NewProtoMsg(12)
	pm.AddHeader1(MSGID_CALL_TWOWAY, 1, 2)
	pm.AddBool(true)
	pm.AddInt64(-42)
	pm.AddEvalue(3)
	pm.AddDouble(0.5)
	pm.AddString("hello")
	pm.AddOrbid(0x0001000000000007)
	pm.AddStrings([]string{"a", "b"})
	rec := pm.AddRec(1)
	rec.AddInt64(9)
	require.Equal(t, uint32(11), pm.Size())

	r := NewProtoReader(pm)
	id, h := r.PopHeader()
	require.Equal(t, MSGID_CALL_TWOWAY, id.MessageID)
	require.Equal(t, TypeHash{Hi: 1, Lo: 2}, h)
	require.Equal(t, BOOL, r.GetType())
	require.True(t, r.GetBool())
	require.True(t, r.PopBool())
	require.Equal(t, int64(-42), r.PopInt64())
	require.Equal(t, int64(3), r.PopEvalue())
	require.Equal(t, 0.5, r.PopDouble())
	require.Equal(t, "hello", r.PopString())
	require.Equal(t, uint64(0x0001000000000007), r.PopOrbid())
	require.Equal(t, []string{"a", "b"}, r.PopStrings())
	sub := NewProtoReader(r.PopRec())
	require.Equal(t, int64(9), sub.PopInt64())
	require.Zero(t, r.Remaining())
	require.Equal(t, UNTYPED, r.GetType())
}

func TestProtoMsgLayout(t *testing.T) {
	pm := NewProtoMsg(9)
	require.Equal(t, uint32(3), pm.Offset())
	pm.AddInt64(1)
	require.Equal(t, uint64(1)|uint64(9)<<32, pm.HeaderWord())
	require.Equal(t, uint32(2), NewProtoMsg(8).Offset())
	require.Equal(t, uint32(1), NewProtoMsg(0).Offset())
}

func TestProtoMsgCapacityExceeded(t *testing.T) {
	pm := NewProtoMsg(2)
	pm.AddInt64(1)
	pm.AddString("x")
	requireFatal(t, orberrors.ErrCapacityExceeded, func() { pm.AddBool(true) })
	require.Equal(t, uint32(2), pm.Size())

	pm = NewProtoMsg(3)
	pm.AddInt64(0)
	pm.AddInt64(0)
	requireFatal(t, orberrors.ErrCapacityExceeded, func() { pm.AddTypeHash(TypeHash{Hi: 1, Lo: 1}) })
	require.Equal(t, uint32(2), pm.Size(), "type hash is all or nothing")

	requireFatal(t, orberrors.ErrCapacityExceeded, func() { pm.AddAny(NewAny(AnyVector{}), nil); pm.AddAny(NewAny(1), nil) })
	require.Equal(t, uint32(3), pm.Size())
}

func TestProtoReaderTagMismatch(t *testing.T) {
	pm := NewProtoMsg(2)
	pm.AddInt64(5)
	r := NewProtoReader(pm)
	requireFatal(t, orberrors.ErrProtocolViolation, func() { r.PopString() })
	require.Equal(t, uint32(0), r.Position())
	require.Equal(t, int64(5), r.PopInt64())
	requireFatal(t, orberrors.ErrProtocolViolation, func() { r.PopInt64() })
	requireFatal(t, orberrors.ErrProtocolViolation, func() { r.Skip() })
}

func TestProtoMsgHeaderPlacement(t *testing.T) {
	pm := NewProtoMsg(6)
	pm.AddBool(false)
	requireFatal(t, orberrors.ErrProtocolViolation, func() { pm.AddHeader1(MSGID_CALL_ONEWAY, 1, 1) })

	pm = NewProtoMsg(6)
	pm.AddHeader2(MSGID_CALL_RESULT, 7, 8)
	r := NewProtoReader(pm)
	r.SkipHeader()
	require.Equal(t, uint32(3), r.Position())
	requireFatal(t, orberrors.ErrProtocolViolation, func() { r.SkipHeader() })
}

func TestProtoMsgFirstID(t *testing.T) {
	pm := NewProtoMsg(3)
	require.Zero(t, pm.FirstID())
	word := MakeIdentifier(MSGID_EMIT_ONEWAY, 2, 3)
	pm.AddHeader1(MSGID_EMIT_ONEWAY, 0, 0)
	pm.setFirstID(word)
	require.Equal(t, word, pm.FirstID())
	require.Contains(t, pm.FirstIDString(), "EMIT_ONEWAY")
	require.Contains(t, pm.FirstIDString(), "dst=2 snd=3")

	var nilMsg *ProtoMsg
	require.Zero(t, nilMsg.FirstID())
}

func TestProtoMsgAnySlots(t *testing.T) {
	pm := NewProtoMsg(8)
	pm.AddAny(NewAny(true), nil)
	pm.AddAny(NewAny(12), nil)
	pm.AddAny(NewAny(1.25), nil)
	pm.AddAny(NewAny("s"), nil)
	seq := NewAny(AnyVector{NewAny(1), NewAny("two")})
	pm.AddAny(seq, nil)
	pm.AddAny(NewAny(testColor(1)), nil)
	require.Equal(t, []TypeKind{BOOL, INT64, FLOAT64, STRING, ANY, ENUM}, pm.types)

	r := NewProtoReader(pm)
	require.True(t, r.PopAny(nil).Bool())
	require.Equal(t, int64(12), r.PopAny(nil).AsInt64())
	require.Equal(t, 1.25, r.PopAny(nil).AsFloat64())
	require.Equal(t, "s", r.PopAny(nil).GetString())
	require.True(t, seq.Equal(r.PopAny(nil)))
	e := r.PopAny(nil)
	require.Equal(t, ENUM, e.Kind())
	info, err := e.GetEnumInfo()
	require.NoError(t, err)
	require.Nil(t, info, "only the ordinal is transmitted")
	c, err := Get[testColor](e)
	require.NoError(t, err)
	require.Equal(t, testColor(1), c)

	requireFatal(t, orberrors.ErrProtocolViolation, func() {
		NewProtoMsg(1).AddAny(NewAny(NullHandle()), nil)
	})
}

func TestProtoMsgReset(t *testing.T) {
	pm := NewProtoMsg(4)
	pm.AddString("a")
	pm.AddSeq(2).AddString("b")
	pm.AddAny(NewAny(AnyVector{}), nil)
	pm.Reset()
	require.Zero(t, pm.Size())
	require.Equal(t, uint32(4), pm.Capacity())
	require.Equal(t, UNTYPED, pm.TypeAt(0))
	pm.AddInt64(1)
	require.Equal(t, uint32(1), pm.Size())
}

func TestRenewIntoResult(t *testing.T) {
	pm := NewProtoMsg(8)
	pm.AddHeader1(MSGID_CALL_TWOWAY, 1, 2)
	pm.AddString("arg")
	r := NewProtoReader(pm)
	r.SkipHeader()

	res := RenewIntoResult(r, MSGID_CALL_RESULT, 1, 2, 1)
	require.Same(t, pm, res)
	require.Nil(t, r.ProtoMsg())
	require.Equal(t, uint32(3), res.Size())
	res.AddBool(true)

	small := NewProtoMsg(3)
	small.AddHeader1(MSGID_CALL_TWOWAY, 1, 2)
	r.Reset(small)
	res = RenewIntoResult(r, MSGID_CALL_RESULT, 1, 2, 4)
	require.NotSame(t, small, res)
	require.GreaterOrEqual(t, res.Capacity(), uint32(7))
	require.Equal(t, uint32(CurrentOptions().DefaultCapacity), res.Capacity())

	rr := NewProtoReader(res)
	id, h := rr.PopHeader()
	require.Equal(t, MSGID_CALL_RESULT, id.MessageID)
	require.Equal(t, TypeHash{Hi: 1, Lo: 2}, h)
}

func TestProtoMsgString(t *testing.T) {
	pm := NewProtoMsg(4)
	pm.AddInt64(3)
	pm.AddString("x")
	pm.AddSeq(1).AddDouble(1.5)
	s := pm.String()
	require.Contains(t, s, "size=3,capacity=4")
	require.Contains(t, s, `STRING: "x"`)
	require.Contains(t, s, "FLOAT64: 1.5")
	require.Contains(t, NewProtoReader(pm).DebugBits(), "l:0x3")
}
