package aida

import (
	"fmt"
	"math"
	"strings"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

// ProtoReader is a forward-only, type checked cursor over a ProtoMsg.
// Get* methods read the current slot, Pop* methods read and advance.
// Requesting a tag that does not match the buffer is a protocol violation
// and panics; the message is never modified by a reader.
type ProtoReader struct {
	msg *ProtoMsg
	nth uint32
}

// NewProtoReader creates a reader positioned at slot 0 of pm.
func NewProtoReader(pm *ProtoMsg) *ProtoReader { return &ProtoReader{msg: pm} }

// Reset rewinds the reader onto pm.
func (r *ProtoReader) Reset(pm *ProtoMsg) {
	r.msg = pm
	r.nth = 0
}

// Detach releases the message without touching it.
func (r *ProtoReader) Detach() { r.Reset(nil) }

// ProtoMsg returns the message being read.
func (r *ProtoReader) ProtoMsg() *ProtoMsg { return r.msg }

// Position returns the index of the next slot.
func (r *ProtoReader) Position() uint32 { return r.nth }

// NTypes returns the number of written slots.
func (r *ProtoReader) NTypes() uint32 {
	if r.msg == nil {
		return 0
	}
	return r.msg.Size()
}

// Remaining returns the number of unread slots.
func (r *ProtoReader) Remaining() uint32 { return r.NTypes() - r.nth }

// GetType returns the tag of the next slot, UNTYPED at the end.
func (r *ProtoReader) GetType() TypeKind {
	if r.msg == nil {
		return UNTYPED
	}
	return r.msg.TypeAt(r.nth)
}

// Skip advances by one slot regardless of its tag.
func (r *ProtoReader) Skip() {
	if r.nth >= r.NTypes() {
		fatal(orberrors.ProtocolViolation("skip past end of message", r.nth, r.NTypes()))
	}
	r.nth++
}

// SkipHeader advances past the three header slots of a call or emission.
func (r *ProtoReader) SkipHeader() {
	if r.NTypes()-r.nth < 3 || r.nth != 0 {
		fatal(orberrors.ProtocolViolation("message header missing", r.nth, r.NTypes()))
	}
	r.nth += 3
}

func (r *ProtoReader) request(kind TypeKind) *protoCell {
	if r.nth >= r.NTypes() {
		fatal(orberrors.ProtocolViolation(fmt.Sprintf("read of %s past end of message", kind), r.nth, r.NTypes()))
	}
	if got := r.msg.types[r.nth]; got != kind {
		fatal(orberrors.ProtocolViolation(fmt.Sprintf("expected %s, got %s", kind, got), r.nth, r.NTypes()))
	}
	return &r.msg.cells[r.nth]
}

func (r *ProtoReader) pop(kind TypeKind) *protoCell {
	c := r.request(kind)
	r.nth++
	return c
}

func (r *ProtoReader) GetBool() bool         { return r.request(BOOL).bits != 0 }
func (r *ProtoReader) GetInt64() int64       { return int64(r.request(INT64).bits) }
func (r *ProtoReader) GetEvalue() int64      { return int64(r.request(ENUM).bits) }
func (r *ProtoReader) GetDouble() float64    { return math.Float64frombits(r.request(FLOAT64).bits) }
func (r *ProtoReader) GetString() string     { return *r.request(STRING).str }
func (r *ProtoReader) GetOrbid() uint64      { return r.request(TRANSITION).bits }
func (r *ProtoReader) GetRec() *ProtoMsg     { return r.request(RECORD).msg }
func (r *ProtoReader) GetSeq() *ProtoMsg     { return r.request(SEQUENCE).msg }
func (r *ProtoReader) PopBool() bool         { return r.pop(BOOL).bits != 0 }
func (r *ProtoReader) PopInt64() int64       { return int64(r.pop(INT64).bits) }
func (r *ProtoReader) PopEvalue() int64      { return int64(r.pop(ENUM).bits) }
func (r *ProtoReader) PopDouble() float64    { return math.Float64frombits(r.pop(FLOAT64).bits) }
func (r *ProtoReader) PopString() string     { return *r.pop(STRING).str }
func (r *ProtoReader) PopOrbid() uint64      { return r.pop(TRANSITION).bits }
func (r *ProtoReader) PopRec() *ProtoMsg     { return r.pop(RECORD).msg }
func (r *ProtoReader) PopSeq() *ProtoMsg     { return r.pop(SEQUENCE).msg }
func (r *ProtoReader) PopInt32() int32       { return int32(r.PopInt64()) }
func (r *ProtoReader) PopUint64() uint64     { return uint64(r.PopInt64()) }
func (r *ProtoReader) PopTypeHash() TypeHash { return TypeHash{Hi: r.PopUint64(), Lo: r.PopUint64()} }

// PopHeader consumes the three header slots.
func (r *ProtoReader) PopHeader() (IdentifierParts, TypeHash) {
	if r.nth != 0 {
		fatal(orberrors.ProtocolViolation("header read at non-zero position", r.nth, r.NTypes()))
	}
	id := ParseIdentifier(r.PopUint64())
	return id, r.PopTypeHash()
}

// PopStrings consumes a SEQUENCE of STRING slots.
func (r *ProtoReader) PopStrings() []string {
	seq := NewProtoReader(r.PopSeq())
	out := make([]string, 0, seq.NTypes())
	for seq.Remaining() > 0 {
		out = append(out, seq.PopString())
	}
	return out
}

// PopAny is the read side of ProtoMsg.AddAny. TRANSITION slots are resolved
// through conn; a nil conn leaves them as TRANSITION values.
func (r *ProtoReader) PopAny(conn BaseConnection) Any {
	var a Any
	switch kind := r.GetType(); kind {
	case BOOL:
		a.SetBool(r.PopBool())
	case INT64:
		a.SetInt64(r.PopInt64())
	case FLOAT64:
		a.SetFloat64(r.PopDouble())
	case STRING:
		a.SetString(r.PopString())
	case ENUM:
		a.SetEnum(nil, r.PopEvalue())
	case TRANSITION:
		a.v = transitionValue(r.PopOrbid())
	case ANY:
		a = r.pop(ANY).any.Clone()
	case SEQUENCE:
		sub := NewProtoReader(r.PopSeq())
		seq := make(AnyVector, 0, sub.NTypes())
		for sub.Remaining() > 0 {
			seq = append(seq, sub.PopAny(conn))
		}
		a.v = seqValue{v: seq}
		return a
	case RECORD:
		sub := NewProtoReader(r.PopRec())
		rec := make(FieldVector, 0, sub.NTypes())
		for sub.Remaining() > 0 {
			rec = append(rec, Field{Any: sub.PopAny(conn)})
		}
		a.v = recValue{v: rec}
		return a
	default:
		fatal(orberrors.ProtocolViolation("PopAny: unexpected slot "+kind.String(), r.nth, r.NTypes()))
	}
	if conn != nil {
		if err := a.FromTransition(conn); err != nil {
			fatal(asStandardError(err))
		}
	}
	return a
}

// PopHandle resolves a TRANSITION slot into a proxy on conn.
func (r *ProtoReader) PopHandle(conn *ClientConnection) RemoteHandle {
	return conn.PopHandle(r)
}

// PopInstance resolves a TRANSITION slot into a local instance of T served
// by conn. The result is false for unknown orbids or a different type.
func PopInstance[T ImplicitBase](r *ProtoReader, conn *ServerConnection) (T, bool) {
	var zero T
	ibase := conn.PopInterface(r)
	if ibase == nil {
		return zero, false
	}
	t, ok := ibase.(T)
	return t, ok
}

// DebugBits renders the remaining slots; used in diagnostics only.
func (r *ProtoReader) DebugBits() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ProtoReader(%p) at %d/%d:", r.msg, r.nth, r.NTypes())
	for i := r.nth; i < r.NTypes(); i++ {
		c := &r.msg.cells[i]
		fmt.Fprintf(&sb, " %c:0x%x", byte(r.msg.types[i]), c.bits)
	}
	return sb.String()
}
