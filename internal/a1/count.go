// Package a1 holds the A1 test interfaces: client and server stubs for
// A1::MiniServer plus a reference implementation of it.
package a1

import "github.com/orizon-lang/aida/internal/aida"

// CountEnum is A1::CountEnum.
type CountEnum int64

const (
	ZERO CountEnum = iota
	ONE
	TWO
	THREE
)

var countEnumInfo = aida.RegisterEnum("A1::CountEnum", false,
	aida.EnumValue{Value: int64(ZERO), Ident: "ZERO", Label: "Zero"},
	aida.EnumValue{Value: int64(ONE), Ident: "ONE", Label: "One"},
	aida.EnumValue{Value: int64(TWO), Ident: "TWO", Label: "Two"},
	aida.EnumValue{Value: int64(THREE), Ident: "THREE", Label: "Three"},
)

// CountEnumInfo returns the introspection data of CountEnum.
func CountEnumInfo() *aida.EnumInfo { return countEnumInfo }

func (c CountEnum) EnumInfo() *aida.EnumInfo  { return countEnumInfo }
func (c CountEnum) EnumValue() int64          { return int64(c) }
func (CountEnum) FromInt64(v int64) CountEnum { return CountEnum(v) }
func (c CountEnum) String() string            { return countEnumInfo.ValueToString(int64(c)) }
