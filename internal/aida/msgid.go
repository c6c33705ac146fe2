package aida

import "fmt"

// MessageId is the operation code carried in the top byte of a message's first slot.
type MessageId uint64

const (
	MSGID_CALL_ONEWAY         MessageId = 0x1000000000000000 // One-way method call (void return).
	MSGID_EMIT_ONEWAY         MessageId = 0x2000000000000000 // One-way signal emission.
	MSGID_CONNECT             MessageId = 0x4000000000000000 // Signal handler (dis-)connection, expects CONNECT_RESULT.
	MSGID_CALL_TWOWAY         MessageId = 0x5000000000000000 // Two-way method call, expects CALL_RESULT.
	MSGID_EMIT_TWOWAY         MessageId = 0x6000000000000000 // Two-way signal emission, expects EMIT_RESULT.
	MSGID_DISCONNECT          MessageId = 0xa000000000000000 // Signal destroyed, disconnect all handlers.
	MSGID_CONNECT_RESULT      MessageId = 0xc000000000000000 // Result for CONNECT.
	MSGID_CALL_RESULT         MessageId = 0xd000000000000000 // Result for CALL_TWOWAY.
	MSGID_EMIT_RESULT         MessageId = 0xe000000000000000 // Result for EMIT_TWOWAY.
	MSGID_META_HELLO          MessageId = 0x7100000000000000 // Hello from client, expects WELCOME.
	MSGID_META_WELCOME        MessageId = 0xf100000000000000 // Hello reply, carries the remote origin.
	MSGID_META_GARBAGE_SWEEP  MessageId = 0x7200000000000000 // Garbage collection cycle, expects GARBAGE_REPORT.
	MSGID_META_GARBAGE_REPORT MessageId = 0xf200000000000000 // Reports expired/retained references.
	MSGID_META_SEEN_GARBAGE   MessageId = 0x3300000000000000 // Client indicates a sweep may be useful.
)

// ConnectionMask extracts a 16bit connection id.
const ConnectionMask = 0x0000ffff

const msgidMask = 0xff00000000000000

// MsgIDIsResult reports whether id is a reply to a two-way message,
// i.e. the top two bits are set.
func MsgIDIsResult(id MessageId) bool {
	return id&0xc000000000000000 == 0xc000000000000000
}

// Opcode strips connection ids, leaving only the message id byte.
func (id MessageId) Opcode() MessageId { return id & msgidMask }

func (id MessageId) String() string {
	switch id.Opcode() {
	case MSGID_CALL_ONEWAY:
		return "CALL_ONEWAY"
	case MSGID_EMIT_ONEWAY:
		return "EMIT_ONEWAY"
	case MSGID_CONNECT:
		return "CONNECT"
	case MSGID_CALL_TWOWAY:
		return "CALL_TWOWAY"
	case MSGID_EMIT_TWOWAY:
		return "EMIT_TWOWAY"
	case MSGID_DISCONNECT:
		return "DISCONNECT"
	case MSGID_CONNECT_RESULT:
		return "CONNECT_RESULT"
	case MSGID_CALL_RESULT:
		return "CALL_RESULT"
	case MSGID_EMIT_RESULT:
		return "EMIT_RESULT"
	case MSGID_META_HELLO:
		return "META_HELLO"
	case MSGID_META_WELCOME:
		return "META_WELCOME"
	case MSGID_META_GARBAGE_SWEEP:
		return "META_GARBAGE_SWEEP"
	case MSGID_META_GARBAGE_REPORT:
		return "META_GARBAGE_REPORT"
	case MSGID_META_SEEN_GARBAGE:
		return "META_SEEN_GARBAGE"
	}
	return fmt.Sprintf("MSGID_0x%02x", uint64(id)>>56)
}

// IdentifierParts is the decomposed form of a message id word:
// message id in bits 56-63, destination connection in bits 32-47,
// sender connection in bits 0-15. Bits 48-55 and 16-31 are zero.
type IdentifierParts struct {
	MessageID   MessageId
	Destination uint16
	Sender      uint16
}

// Uint64 packs the parts into a message id word.
func (p IdentifierParts) Uint64() uint64 {
	return uint64(p.MessageID.Opcode()) | uint64(p.Destination)<<32 | uint64(p.Sender)
}

// MakeIdentifier packs id, destination and sender into one word.
func MakeIdentifier(id MessageId, destination, sender uint16) uint64 {
	return IdentifierParts{MessageID: id, Destination: destination, Sender: sender}.Uint64()
}

// ParseIdentifier splits a message id word into its parts.
func ParseIdentifier(v uint64) IdentifierParts {
	return IdentifierParts{
		MessageID:   MessageId(v & msgidMask),
		Destination: uint16(v >> 32 & ConnectionMask),
		Sender:      uint16(v & ConnectionMask),
	}
}
