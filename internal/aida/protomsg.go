package aida

import (
	"fmt"
	"math"
	"strings"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

// ProtoMsg is the append-only, fixed-capacity slot buffer used to marshal
// calls, results and signal emissions. Every slot carries a TypeKind tag and
// readers must request exactly that tag.
//
// Layout: word 0 packs {index: size, capacity}, followed by ceil(capacity/8)
// tag bytes and one cell per slot, see HeaderWord and Offset.
type ProtoMsg struct {
	capacity uint32
	types    []TypeKind
	cells    []protoCell
}

// protoCell holds the payload of one slot; which field is valid is
// determined by the slot tag.
type protoCell struct {
	bits uint64    // BOOL, INT64, ENUM, TRANSITION, FLOAT64 bit pattern
	str  *string   // STRING
	any  *Any      // ANY
	msg  *ProtoMsg // RECORD, SEQUENCE
}

// NewProtoMsg allocates a message with room for ntypes slots.
func NewProtoMsg(ntypes uint32) *ProtoMsg {
	return &ProtoMsg{
		capacity: ntypes,
		types:    make([]TypeKind, 0, ntypes),
		cells:    make([]protoCell, 0, ntypes),
	}
}

// Size returns the number of written slots.
func (m *ProtoMsg) Size() uint32 { return uint32(len(m.types)) }

// Capacity returns the fixed maximum slot count.
func (m *ProtoMsg) Capacity() uint32 { return m.capacity }

// Offset returns the word index at which the data area starts.
func (m *ProtoMsg) Offset() uint32 { return 1 + (m.capacity+7)/8 }

// HeaderWord returns word 0 of the layout: size in the low, capacity in the high 32 bits.
func (m *ProtoMsg) HeaderWord() uint64 { return uint64(m.Size()) | uint64(m.capacity)<<32 }

// TypeAt returns the tag of slot n, UNTYPED for unwritten slots.
func (m *ProtoMsg) TypeAt(n uint32) TypeKind {
	if n >= m.Size() {
		return UNTYPED
	}
	return m.types[n]
}

// FirstID returns slot 0 as message id word, or 0 if slot 0 is not INT64.
func (m *ProtoMsg) FirstID() uint64 {
	if m == nil || m.Size() == 0 || m.types[0] != INT64 {
		return 0
	}
	return m.cells[0].bits
}

// FirstIDString renders FirstID with its decomposed parts.
func (m *ProtoMsg) FirstIDString() string {
	id := m.FirstID()
	p := ParseIdentifier(id)
	return fmt.Sprintf("%s(0x%016x) dst=%d snd=%d", p.MessageID, id, p.Destination, p.Sender)
}

func (m *ProtoMsg) setFirstID(id uint64) {
	if m.Size() == 0 || m.types[0] != INT64 {
		fatal(orberrors.ProtocolViolation("message lacks an INT64 id slot", 0, m.Size()))
	}
	m.cells[0].bits = id
}

func (m *ProtoMsg) addu(kind TypeKind) *protoCell {
	if m.Size() >= m.capacity {
		fatal(orberrors.CapacityExceeded(m.Size(), m.capacity))
	}
	m.types = append(m.types, kind)
	m.cells = append(m.cells, protoCell{})
	return &m.cells[len(m.cells)-1]
}

func (m *ProtoMsg) AddBool(v bool) {
	var b uint64
	if v {
		b = 1
	}
	m.addu(BOOL).bits = b
}

func (m *ProtoMsg) AddInt64(v int64)    { m.addu(INT64).bits = uint64(v) }
func (m *ProtoMsg) AddEvalue(v int64)   { m.addu(ENUM).bits = uint64(v) }
func (m *ProtoMsg) AddDouble(v float64) { m.addu(FLOAT64).bits = math.Float64bits(v) }
func (m *ProtoMsg) AddOrbid(orbid uint64) {
	m.addu(TRANSITION).bits = orbid
}

// AddString appends a STRING slot owning a copy of s.
func (m *ProtoMsg) AddString(s string) {
	m.addu(STRING).str = &s
}

// AddTypeHash appends h as two INT64 slots.
func (m *ProtoMsg) AddTypeHash(h TypeHash) {
	if m.Size()+2 > m.capacity {
		fatal(orberrors.CapacityExceeded(m.Size()+1, m.capacity))
	}
	m.AddInt64(int64(h.Hi))
	m.AddInt64(int64(h.Lo))
}

// AddHeader1 writes the three header slots of a request. Connection ids are
// filled in when the message is posted.
func (m *ProtoMsg) AddHeader1(id MessageId, hi, lo uint64) {
	m.addHeader(MakeIdentifier(id, 0, 0), hi, lo)
}

// AddHeader2 writes the three header slots of a result or emission.
func (m *ProtoMsg) AddHeader2(id MessageId, hi, lo uint64) {
	m.addHeader(MakeIdentifier(id, 0, 0), hi, lo)
}

func (m *ProtoMsg) addHeader(word, hi, lo uint64) {
	if m.Size() != 0 || m.capacity < 3 {
		fatal(orberrors.ProtocolViolation("header must occupy the first three slots", m.Size(), m.capacity))
	}
	m.AddInt64(int64(word))
	m.AddInt64(int64(hi))
	m.AddInt64(int64(lo))
}

// AddRec appends a RECORD slot and returns the nested message with room for n slots.
func (m *ProtoMsg) AddRec(n uint32) *ProtoMsg {
	c := m.addu(RECORD)
	c.msg = NewProtoMsg(n)
	return c.msg
}

// AddSeq appends a SEQUENCE slot and returns the nested message with room for n slots.
func (m *ProtoMsg) AddSeq(n uint32) *ProtoMsg {
	c := m.addu(SEQUENCE)
	c.msg = NewProtoMsg(n)
	return c.msg
}

// AddStrings appends a SEQUENCE of STRING slots.
func (m *ProtoMsg) AddStrings(strs []string) {
	seq := m.AddSeq(uint32(len(strs)))
	for _, s := range strs {
		seq.AddString(s)
	}
}

// AddAny appends v. Scalars use their plain slot kinds, enums go out as bare
// ordinals, instances and handles become TRANSITION slots. Everything else is
// stored as ANY after converting contained values for conn.
func (m *ProtoMsg) AddAny(v Any, conn BaseConnection) {
	switch x := v.v.(type) {
	case boolValue:
		m.AddBool(bool(x))
	case int64Value:
		m.AddInt64(int64(x))
	case float64Value:
		m.AddDouble(float64(x))
	case stringValue:
		m.AddString(string(x))
	case enumValue:
		m.AddEvalue(x.value)
	case instanceValue, remoteValue:
		if conn == nil {
			fatal(orberrors.ProtocolViolation("AddAny: reference value without connection", m.Size(), m.capacity))
		}
		orbid, err := conn.exportOrbid(x)
		if err != nil {
			fatal(asStandardError(err))
		}
		m.AddOrbid(orbid)
	default:
		if m.Size() >= m.capacity {
			fatal(orberrors.CapacityExceeded(m.Size(), m.capacity))
		}
		c := v.Clone()
		if conn != nil {
			if err := c.ToTransition(conn); err != nil {
				fatal(asStandardError(err))
			}
		}
		m.addu(ANY).any = &c
	}
}

// AddHandle appends the orbid of h as TRANSITION slot.
func (m *ProtoMsg) AddHandle(h RemoteHandle) { m.AddOrbid(h.OrbID()) }

// Reset releases all slots from last to first; the capacity is kept.
func (m *ProtoMsg) Reset() {
	for n := len(m.types) - 1; n >= 0; n-- {
		c := &m.cells[n]
		switch m.types[n] {
		case STRING:
			c.str = nil
		case ANY:
			c.any = nil
		case RECORD, SEQUENCE:
			c.msg.Reset()
			c.msg = nil
		}
		m.types = m.types[:n]
		m.cells = m.cells[:n]
	}
}

// TypeName returns the name of a slot tag.
func TypeName(kind TypeKind) string { return TypeKindName(kind) }

// String renders all slots for debugging.
func (m *ProtoMsg) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ProtoMsg(%p,size=%d,capacity=%d):", m, m.Size(), m.capacity)
	m.appendSlots(&sb, "  ")
	return sb.String()
}

func (m *ProtoMsg) appendSlots(sb *strings.Builder, indent string) {
	for i, t := range m.types {
		c := &m.cells[i]
		fmt.Fprintf(sb, "\n%s%s: ", indent, t)
		switch t {
		case BOOL, INT64, ENUM:
			fmt.Fprintf(sb, "%d", int64(c.bits))
		case TRANSITION:
			fmt.Fprintf(sb, "0x%016x", c.bits)
		case FLOAT64:
			fmt.Fprintf(sb, "%g", math.Float64frombits(c.bits))
		case STRING:
			fmt.Fprintf(sb, "%q", *c.str)
		case ANY:
			sb.WriteString(c.any.Repr(""))
		case RECORD, SEQUENCE:
			fmt.Fprintf(sb, "(%d/%d)", c.msg.Size(), c.msg.capacity)
			c.msg.appendSlots(sb, indent+"  ")
		}
	}
}

// NewResult creates a result message carrying header (m, h, l) and room for n values.
func NewResult(id MessageId, hi, lo uint64, n uint32) *ProtoMsg {
	pm := NewProtoMsg(3 + n)
	pm.AddHeader2(id, hi, lo)
	return pm
}

// RenewIntoResult reuses the message read by r for a result if its capacity
// suffices, otherwise a new one is allocated. The reader is detached.
func RenewIntoResult(r *ProtoReader, id MessageId, hi, lo uint64, n uint32) *ProtoMsg {
	pm := r.ProtoMsg()
	r.Detach()
	if pm == nil || pm.capacity < 3+n {
		if d := uint32(CurrentOptions().DefaultCapacity); 3+n < d {
			n = d - 3
		}
		return NewResult(id, hi, lo, n)
	}
	pm.Reset()
	pm.AddHeader2(id, hi, lo)
	return pm
}

func asStandardError(err error) *orberrors.StandardError {
	if se, ok := err.(*orberrors.StandardError); ok {
		return se
	}
	return orberrors.NewStandardError(orberrors.CategoryProtocol, orberrors.CodeProtocolViolation, err.Error(), nil)
}
