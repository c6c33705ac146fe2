// Package aida implements an in-process object request broker: a tagged value
// type, a typed slot buffer used as wire format, remote object identities and
// the client/server connection protocol that carries calls and signals.
package aida

// TypeKind classifies the value held by an Any or stored in a ProtoMsg slot.
type TypeKind byte

const (
	UNTYPED    TypeKind = 0   // Unused Any instances.
	VOID       TypeKind = 'v' // 'void' type.
	BOOL       TypeKind = 'b' // Boolean type.
	INT32      TypeKind = 'i' // Signed numeric type for 32bit.
	INT64      TypeKind = 'l' // Signed numeric type for 64bit.
	FLOAT64    TypeKind = 'd' // IEEE-754 double precision.
	STRING     TypeKind = 's' // UTF-8 character sequence.
	ENUM       TypeKind = 'E' // Enumeration choices.
	SEQUENCE   TypeKind = 'Q' // Sequence of another type.
	RECORD     TypeKind = 'R' // Named fields.
	INSTANCE   TypeKind = 'C' // Interface instance.
	REMOTE     TypeKind = 'r' // RemoteHandle.
	TRANSITION TypeKind = 'T' // Instance or RemoteHandle crossing a connection.
	LOCAL      TypeKind = 'L' // Local object.
	ANY        TypeKind = 'Y' // Nested Any.
)

var typeKindInfo = RegisterEnum("Aida::TypeKind", false,
	EnumValue{Value: int64(UNTYPED), Ident: "UNTYPED"},
	EnumValue{Value: int64(VOID), Ident: "VOID"},
	EnumValue{Value: int64(BOOL), Ident: "BOOL"},
	EnumValue{Value: int64(INT32), Ident: "INT32"},
	EnumValue{Value: int64(INT64), Ident: "INT64"},
	EnumValue{Value: int64(FLOAT64), Ident: "FLOAT64"},
	EnumValue{Value: int64(STRING), Ident: "STRING"},
	EnumValue{Value: int64(ENUM), Ident: "ENUM"},
	EnumValue{Value: int64(SEQUENCE), Ident: "SEQUENCE"},
	EnumValue{Value: int64(RECORD), Ident: "RECORD"},
	EnumValue{Value: int64(INSTANCE), Ident: "INSTANCE"},
	EnumValue{Value: int64(REMOTE), Ident: "REMOTE"},
	EnumValue{Value: int64(TRANSITION), Ident: "TRANSITION"},
	EnumValue{Value: int64(LOCAL), Ident: "LOCAL"},
	EnumValue{Value: int64(ANY), Ident: "ANY"},
)

// TypeKindInfo returns the enum descriptor of TypeKind itself.
func TypeKindInfo() *EnumInfo { return typeKindInfo }

// String returns the upper-case kind name, e.g. "INT64".
func (k TypeKind) String() string { return TypeKindName(k) }

// TypeKindName returns the name of k, or "<invalid:0xNN>" for unknown tags.
func TypeKindName(k TypeKind) string {
	if ev, ok := typeKindInfo.FindValue(int64(k)); ok {
		return ev.Ident
	}
	return "<invalid:0x" + hexByte(byte(k)) + ">"
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0xf]})
}
