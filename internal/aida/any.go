package aida

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

// AnyVector is the payload of a SEQUENCE Any.
type AnyVector []Any

// Field is an Any with a name attached, as used in RECORD values.
type Field struct {
	Name string
	Any
}

// FieldVector is the payload of a RECORD Any.
type FieldVector []Field

// NewField creates a named field holding v.
func NewField(name string, v interface{}) Field { return Field{Name: name, Any: NewAny(v)} }

// Find returns the value of the first field called name.
func (fv FieldVector) Find(name string) (Any, bool) {
	for _, f := range fv {
		if f.Name == name {
			return f.Any, true
		}
	}
	return Any{}, false
}

// Any is a generic value that holds exactly one value of any TypeKind.
// The zero Any is UNTYPED and Empty.
type Any struct {
	v anyValue
}

// anyValue is the closed set of alternatives an Any can hold.
type anyValue interface{ kind() TypeKind }

type (
	voidValue    struct{}
	boolValue    bool
	int64Value   int64
	float64Value float64
	stringValue  string
	enumValue    struct {
		info  *EnumInfo
		value int64
	}
	seqValue        struct{ v AnyVector }
	recValue        struct{ v FieldVector }
	instanceValue   struct{ v ImplicitBase }
	remoteValue     struct{ v RemoteHandle }
	transitionValue uint64
	localValue      struct{ v interface{} }
	nestedValue     struct{ v *Any }
)

func (voidValue) kind() TypeKind       { return VOID }
func (boolValue) kind() TypeKind       { return BOOL }
func (int64Value) kind() TypeKind      { return INT64 }
func (float64Value) kind() TypeKind    { return FLOAT64 }
func (stringValue) kind() TypeKind     { return STRING }
func (enumValue) kind() TypeKind       { return ENUM }
func (seqValue) kind() TypeKind        { return SEQUENCE }
func (recValue) kind() TypeKind        { return RECORD }
func (instanceValue) kind() TypeKind   { return INSTANCE }
func (remoteValue) kind() TypeKind     { return REMOTE }
func (transitionValue) kind() TypeKind { return TRANSITION }
func (localValue) kind() TypeKind      { return LOCAL }
func (nestedValue) kind() TypeKind     { return ANY }

// NewAny creates an Any holding v, see Set.
func NewAny(v interface{}) Any {
	var a Any
	a.Set(v)
	return a
}

// Kind returns the kind of the held value.
func (a Any) Kind() TypeKind {
	if a.v == nil {
		return UNTYPED
	}
	return a.v.kind()
}

// Empty reports whether a is newly constructed or cleared.
func (a Any) Empty() bool { return a.v == nil }

// Clear releases the held value; afterwards a is UNTYPED.
func (a *Any) Clear() { a.v = nil }

// Swap exchanges the contents of a and other.
func (a *Any) Swap(other *Any) { a.v, other.v = other.v, a.v }

func (a *Any) SetVoid()             { a.v = voidValue{} }
func (a *Any) SetBool(v bool)       { a.v = boolValue(v) }
func (a *Any) SetInt64(v int64)     { a.v = int64Value(v) }
func (a *Any) SetInt32(v int32)     { a.v = int64Value(v) }
func (a *Any) SetFloat64(v float64) { a.v = float64Value(v) }
func (a *Any) SetString(v string)   { a.v = stringValue(v) }

// SetEnum stores an enum value together with its descriptor.
func (a *Any) SetEnum(info *EnumInfo, v int64) { a.v = enumValue{info: info, value: v} }

// SetSeq stores a copy of seq.
func (a *Any) SetSeq(seq AnyVector) { a.v = seqValue{v: seq.clone()} }

// SetRec stores a copy of rec.
func (a *Any) SetRec(rec FieldVector) { a.v = recValue{v: rec.clone()} }

// SetInstance stores a local interface instance. A nil pointer behind the
// interface is stored as the nil instance.
func (a *Any) SetInstance(ibase ImplicitBase) {
	if isNilInstance(ibase) {
		ibase = nil
	}
	a.v = instanceValue{v: ibase}
}

// isNilInstance reports whether ibase is nil or wraps a nil pointer, map,
// slice, func or channel.
func isNilInstance(ibase ImplicitBase) bool {
	if ibase == nil {
		return true
	}
	switch rv := reflect.ValueOf(ibase); rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// SetHandle stores a remote handle.
func (a *Any) SetHandle(h RemoteHandle) { a.v = remoteValue{v: h} }

// SetAny stores a copy of v as nested Any.
func (a *Any) SetAny(v Any) {
	c := v.Clone()
	a.v = nestedValue{v: &c}
}

// SetLocal stores an arbitrary Go value of local significance.
func (a *Any) SetLocal(v interface{}) { a.v = localValue{v: v} }

// Set selects the alternative matching the dynamic type of v.
func (a *Any) Set(v interface{}) {
	switch x := v.(type) {
	case nil:
		a.Clear()
	case Any:
		a.SetAny(x)
	case *Any:
		a.SetAny(*x)
	case bool:
		a.SetBool(x)
	case int:
		a.SetInt64(int64(x))
	case int8:
		a.SetInt64(int64(x))
	case int16:
		a.SetInt64(int64(x))
	case int32:
		a.SetInt64(int64(x))
	case int64:
		a.SetInt64(x)
	case uint:
		a.SetInt64(int64(x))
	case uint8:
		a.SetInt64(int64(x))
	case uint16:
		a.SetInt64(int64(x))
	case uint32:
		a.SetInt64(int64(x))
	case uint64:
		a.SetInt64(int64(x))
	case float32:
		a.SetFloat64(float64(x))
	case float64:
		a.SetFloat64(x)
	case string:
		a.SetString(x)
	case Enumerator:
		a.SetEnum(x.EnumInfo(), x.EnumValue())
	case AnyVector:
		a.SetSeq(x)
	case []Any:
		a.SetSeq(x)
	case FieldVector:
		a.SetRec(x)
	case []Field:
		a.SetRec(x)
	case handleHolder:
		a.SetHandle(x.Handle())
	case ImplicitBase:
		a.SetInstance(x)
	default:
		a.SetLocal(x)
	}
}

// Bool coerces numbers, strings and references to a truth value.
func (a Any) Bool() bool {
	switch v := a.v.(type) {
	case boolValue:
		return bool(v)
	case int64Value:
		return v != 0
	case float64Value:
		return v != 0
	case enumValue:
		return v.value != 0
	case stringValue:
		return v != ""
	case instanceValue:
		return v.v != nil
	case remoteValue:
		return !v.v.IsNull()
	case nestedValue:
		return v.v.Bool()
	}
	return false
}

// AsInt64 coerces bool, numeric and enum values; other kinds yield 0.
func (a Any) AsInt64() int64 {
	switch v := a.v.(type) {
	case boolValue:
		if v {
			return 1
		}
		return 0
	case int64Value:
		return int64(v)
	case float64Value:
		f := float64(v)
		switch {
		case math.IsNaN(f):
			return 0
		case f >= math.MaxInt64:
			return math.MaxInt64
		case f <= math.MinInt64:
			return math.MinInt64
		}
		return int64(f)
	case enumValue:
		return v.value
	case nestedValue:
		return v.v.AsInt64()
	}
	return 0
}

// Int32 is AsInt64 truncated to 32 bits.
func (a Any) Int32() int32 { return int32(a.AsInt64()) }

// AsFloat64 coerces bool, numeric and enum values; other kinds yield 0.
func (a Any) AsFloat64() float64 {
	switch v := a.v.(type) {
	case float64Value:
		return float64(v)
	case nestedValue:
		return v.v.AsFloat64()
	}
	return float64(a.AsInt64())
}

// GetString returns the held string; non-STRING kinds yield "".
func (a Any) GetString() string {
	if v, ok := a.v.(stringValue); ok {
		return string(v)
	}
	return ""
}

// GetEnum returns the enum ordinal. Numeric kinds are coerced.
func (a Any) GetEnum(info *EnumInfo) int64 {
	if v, ok := a.v.(enumValue); ok && info != nil && v.info != nil && v.info != info {
		warningf("Any.GetEnum: %s requested, value holds %s", info.Name(), v.info.Name())
	}
	return a.AsInt64()
}

// GetEnumInfo returns the descriptor of an ENUM value.
func (a Any) GetEnumInfo() (*EnumInfo, error) {
	if v, ok := a.v.(enumValue); ok {
		return v.info, nil
	}
	return nil, orberrors.KindMismatch("Any.GetEnumInfo", ENUM, a.Kind())
}

// GetSeq returns a copy of the held sequence.
func (a Any) GetSeq() (AnyVector, error) {
	if v, ok := a.v.(seqValue); ok {
		return append(AnyVector(nil), v.v...), nil
	}
	return nil, orberrors.KindMismatch("Any.GetSeq", SEQUENCE, a.Kind())
}

// GetRec returns a copy of the held record fields.
func (a Any) GetRec() (FieldVector, error) {
	if v, ok := a.v.(recValue); ok {
		return append(FieldVector(nil), v.v...), nil
	}
	return nil, orberrors.KindMismatch("Any.GetRec", RECORD, a.Kind())
}

// GetInstance returns the held interface instance.
func (a Any) GetInstance() (ImplicitBase, error) {
	if v, ok := a.v.(instanceValue); ok {
		return v.v, nil
	}
	return nil, orberrors.KindMismatch("Any.GetInstance", INSTANCE, a.Kind())
}

// GetHandle returns the held remote handle.
func (a Any) GetHandle() (RemoteHandle, error) {
	if v, ok := a.v.(remoteValue); ok {
		return v.v, nil
	}
	return RemoteHandle{}, orberrors.KindMismatch("Any.GetHandle", REMOTE, a.Kind())
}

// GetAny returns a copy of the nested Any.
func (a Any) GetAny() (Any, error) {
	if v, ok := a.v.(nestedValue); ok {
		return v.v.Clone(), nil
	}
	return Any{}, orberrors.KindMismatch("Any.GetAny", ANY, a.Kind())
}

// GetLocal returns the held local Go value.
func (a Any) GetLocal() (interface{}, error) {
	if v, ok := a.v.(localValue); ok {
		return v.v, nil
	}
	return nil, orberrors.KindMismatch("Any.GetLocal", LOCAL, a.Kind())
}

// AsAny unwraps one level of nesting: for ANY it returns the inner value, otherwise a itself.
func (a Any) AsAny() Any {
	if v, ok := a.v.(nestedValue); ok {
		return *v.v
	}
	return a
}

// Get extracts a T from a. Scalar targets are coerced like the As* accessors,
// reference targets require a matching kind and return a KIND_MISMATCH error otherwise.
func Get[T any](a Any) (T, error) {
	var zero T
	var r interface{}
	var err error
	switch any(zero).(type) {
	case bool:
		r = a.Bool()
	case int:
		r = int(a.AsInt64())
	case int32:
		r = a.Int32()
	case int64:
		r = a.AsInt64()
	case uint32:
		r = uint32(a.AsInt64())
	case uint64:
		r = uint64(a.AsInt64())
	case float32:
		r = float32(a.AsFloat64())
	case float64:
		r = a.AsFloat64()
	case string:
		r = a.GetString()
	case AnyVector:
		r, err = a.GetSeq()
	case FieldVector:
		r, err = a.GetRec()
	case RemoteHandle:
		r, err = a.GetHandle()
	case Any:
		r, err = a.GetAny()
	case *EnumInfo:
		r, err = a.GetEnumInfo()
	default:
		switch v := a.v.(type) {
		case instanceValue:
			if t, ok := v.v.(T); ok {
				return t, nil
			}
		case localValue:
			if t, ok := v.v.(T); ok {
				return t, nil
			}
		case enumValue, int64Value:
			if e, ok := any(zero).(interface{ FromInt64(int64) T }); ok {
				return e.FromInt64(a.AsInt64()), nil
			}
		}
		return zero, orberrors.KindMismatch("Get", kindOfGoType(zero), a.Kind())
	}
	if err != nil {
		return zero, err
	}
	return r.(T), nil
}

func kindOfGoType(v interface{}) TypeKind {
	switch v.(type) {
	case ImplicitBase:
		return INSTANCE
	case Enumerator:
		return ENUM
	}
	return LOCAL
}

// Clone returns a deep copy of a. Instances, handles and local values are shared.
func (a Any) Clone() Any {
	switch v := a.v.(type) {
	case seqValue:
		return Any{v: seqValue{v: v.v.clone()}}
	case recValue:
		return Any{v: recValue{v: v.v.clone()}}
	case nestedValue:
		c := v.v.Clone()
		return Any{v: nestedValue{v: &c}}
	}
	return a
}

func (s AnyVector) clone() AnyVector {
	if s == nil {
		return nil
	}
	c := make(AnyVector, len(s))
	for i := range s {
		c[i] = s[i].Clone()
	}
	return c
}

func (fv FieldVector) clone() FieldVector {
	if fv == nil {
		return nil
	}
	c := make(FieldVector, len(fv))
	for i := range fv {
		c[i] = Field{Name: fv[i].Name, Any: fv[i].Any.Clone()}
	}
	return c
}

// Equal reports whether a and b hold the same kind and equal values.
func (a Any) Equal(b Any) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch v := a.v.(type) {
	case nil, voidValue:
		return true
	case boolValue, int64Value, float64Value, stringValue, transitionValue:
		return a.v == b.v
	case enumValue:
		w := b.v.(enumValue)
		return v.value == w.value && v.info == w.info
	case seqValue:
		w := b.v.(seqValue)
		if len(v.v) != len(w.v) {
			return false
		}
		for i := range v.v {
			if !v.v[i].Equal(w.v[i]) {
				return false
			}
		}
		return true
	case recValue:
		w := b.v.(recValue)
		if len(v.v) != len(w.v) {
			return false
		}
		for i := range v.v {
			if v.v[i].Name != w.v[i].Name || !v.v[i].Any.Equal(w.v[i].Any) {
				return false
			}
		}
		return true
	case instanceValue:
		return comparableEqual(v.v, b.v.(instanceValue).v)
	case remoteValue:
		return v.v.Equal(b.v.(remoteValue).v)
	case localValue:
		return comparableEqual(v.v, b.v.(localValue).v)
	case nestedValue:
		return v.v.Equal(*b.v.(nestedValue).v)
	}
	return false
}

func comparableEqual(x, y interface{}) bool {
	if x == nil || y == nil {
		return x == nil && y == nil
	}
	tx, ty := reflect.TypeOf(x), reflect.TypeOf(y)
	if tx != ty || !tx.Comparable() {
		return false
	}
	return x == y
}

// String renders a for printouts.
func (a Any) String() string {
	switch v := a.v.(type) {
	case nil:
		return "<untyped>"
	case voidValue:
		return "void"
	case boolValue:
		return strconv.FormatBool(bool(v))
	case int64Value:
		return strconv.FormatInt(int64(v), 10)
	case float64Value:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case stringValue:
		return strconv.Quote(string(v))
	case enumValue:
		if v.info == nil {
			return strconv.FormatInt(v.value, 10)
		}
		return v.info.Name() + "::" + v.info.ValueToString(v.value)
	case seqValue:
		parts := make([]string, len(v.v))
		for i := range v.v {
			parts[i] = v.v[i].String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case recValue:
		parts := make([]string, len(v.v))
		for i := range v.v {
			parts[i] = v.v[i].Name + "=" + v.v[i].Any.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case instanceValue:
		if v.v == nil {
			return "<instance null>"
		}
		return "<instance " + v.v.AidaTypeName() + ">"
	case remoteValue:
		return fmt.Sprintf("<remote orbid=0x%016x>", v.v.OrbID())
	case transitionValue:
		return fmt.Sprintf("<transition orbid=0x%016x>", uint64(v))
	case localValue:
		return fmt.Sprintf("<local %T>", v.v)
	case nestedValue:
		return "Any(" + v.v.String() + ")"
	}
	return "<invalid>"
}

// Repr is String prefixed by kind and an optional field name.
func (a Any) Repr(fieldName string) string {
	s := "(" + a.Kind().String() + ") " + a.String()
	if fieldName != "" {
		s = fieldName + ": " + s
	}
	return s
}

// AnyFromStrings creates a SEQUENCE of STRING values.
func AnyFromStrings(strs []string) Any {
	seq := make(AnyVector, len(strs))
	for i, s := range strs {
		seq[i].SetString(s)
	}
	var a Any
	a.v = seqValue{v: seq}
	return a
}

// AnyToStrings renders every element of a SEQUENCE as string; STRING
// elements are taken verbatim.
func (a Any) AnyToStrings() []string {
	v, ok := a.v.(seqValue)
	if !ok {
		return nil
	}
	out := make([]string, len(v.v))
	for i := range v.v {
		if s, ok := v.v[i].v.(stringValue); ok {
			out[i] = string(s)
		} else {
			out[i] = v.v[i].String()
		}
	}
	return out
}

// ToTransition replaces instances and remote handles, recursively, by the
// orbids under which they are reachable through conn. Enum values keep only
// their ordinal.
func (a *Any) ToTransition(conn BaseConnection) error {
	switch v := a.v.(type) {
	case enumValue:
		a.v = enumValue{value: v.value}
	case instanceValue, remoteValue:
		orbid, err := conn.exportOrbid(v)
		if err != nil {
			return err
		}
		a.v = transitionValue(orbid)
	case seqValue:
		for i := range v.v {
			if err := v.v[i].ToTransition(conn); err != nil {
				return err
			}
		}
	case recValue:
		for i := range v.v {
			if err := v.v[i].Any.ToTransition(conn); err != nil {
				return err
			}
		}
	case nestedValue:
		return v.v.ToTransition(conn)
	}
	return nil
}

// FromTransition is the inverse of ToTransition on the receiving side: a
// server resolves orbids to its instances, a client to remote handles.
func (a *Any) FromTransition(conn BaseConnection) error {
	switch v := a.v.(type) {
	case transitionValue:
		r, err := conn.importOrbid(uint64(v))
		if err != nil {
			return err
		}
		*a = r
	case seqValue:
		for i := range v.v {
			if err := v.v[i].FromTransition(conn); err != nil {
				return err
			}
		}
	case recValue:
		for i := range v.v {
			if err := v.v[i].Any.FromTransition(conn); err != nil {
				return err
			}
		}
	case nestedValue:
		return v.v.FromTransition(conn)
	}
	return nil
}
