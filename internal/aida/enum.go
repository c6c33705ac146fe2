package aida

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

// EnumValue describes one value of an enumeration.
type EnumValue struct {
	Value int64
	Ident string
	Label string
	Blurb string
}

// EnumInfo provides introspection for an enumeration type. Enum values travel
// as raw ordinals; the EnumInfo stays in the process and is only referenced
// from Any values.
type EnumInfo struct {
	name   string
	flags  bool
	values []EnumValue
}

// Enumerator is implemented by generated enum types so Any.Set can locate
// their EnumInfo.
type Enumerator interface {
	EnumInfo() *EnumInfo
	EnumValue() int64
}

var (
	enumMutex    sync.RWMutex
	enumRegistry = make(map[string]*EnumInfo)
)

// RegisterEnum returns the cached EnumInfo for name, creating it from values on
// first use. Later registrations of the same name return the cached descriptor.
func RegisterEnum(name string, flags bool, values ...EnumValue) *EnumInfo {
	enumMutex.Lock()
	defer enumMutex.Unlock()
	if info, ok := enumRegistry[name]; ok {
		return info
	}
	info := &EnumInfo{name: name, flags: flags, values: append([]EnumValue(nil), values...)}
	enumRegistry[name] = info
	return info
}

// LookupEnum finds a registered EnumInfo by type name.
func LookupEnum(name string) (*EnumInfo, bool) {
	enumMutex.RLock()
	defer enumMutex.RUnlock()
	info, ok := enumRegistry[name]
	return info, ok
}

func (e *EnumInfo) Name() string    { return e.name }
func (e *EnumInfo) FlagsEnum() bool { return e.flags }
func (e *EnumInfo) HasValues() bool { return len(e.values) > 0 }

// ValueVector returns a copy of the enum values in declaration order.
func (e *EnumInfo) ValueVector() []EnumValue {
	return append([]EnumValue(nil), e.values...)
}

// FindValue returns the first value equal to v.
func (e *EnumInfo) FindValue(v int64) (EnumValue, bool) {
	for _, ev := range e.values {
		if ev.Value == v {
			return ev, true
		}
	}
	return EnumValue{}, false
}

// FindIdent returns the first value whose identifier matches name, ignoring case.
func (e *EnumInfo) FindIdent(name string) (EnumValue, bool) {
	for _, ev := range e.values {
		if identMatch(ev.Ident, name) {
			return ev, true
		}
	}
	return EnumValue{}, false
}

func identMatch(ident, name string) bool {
	if strings.EqualFold(ident, name) {
		return true
	}
	// accept trailing component matches like "CountEnum::TWO" vs "TWO"
	if i := strings.LastIndex(ident, "::"); i >= 0 && strings.EqualFold(ident[i+2:], name) {
		return true
	}
	return false
}

// ValueToString renders v as identifier. Flags enums join the identifiers of
// all contained bits with "|" and append unnamed residue bits in hex.
func (e *EnumInfo) ValueToString(v int64) string {
	return e.ValueToStringJoin(v, "|")
}

// ValueToStringJoin is ValueToString with a custom joiner for flags.
func (e *EnumInfo) ValueToStringJoin(v int64, joiner string) string {
	if ev, ok := e.FindValue(v); ok {
		return ev.Ident
	}
	if !e.flags {
		return strconv.FormatInt(v, 10)
	}
	bits := make([]EnumValue, 0, len(e.values))
	for _, ev := range e.values {
		if ev.Value != 0 {
			bits = append(bits, ev)
		}
	}
	sort.SliceStable(bits, func(i, j int) bool { return uint64(bits[i].Value) > uint64(bits[j].Value) })
	var parts []string
	rest := uint64(v)
	for _, ev := range bits {
		b := uint64(ev.Value)
		if rest&b == b {
			parts = append(parts, ev.Ident)
			rest &^= b
		}
	}
	sort.Strings(parts)
	if rest != 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("0x%x", rest))
	}
	return strings.Join(parts, joiner)
}

// ValueFromString parses identifiers or numeric literals. For flags enums,
// several terms may be combined with "|" or "+".
func (e *EnumInfo) ValueFromString(s string) (int64, error) {
	terms := []string{s}
	if e.flags {
		terms = strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == '+' })
	}
	var result int64
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if ev, ok := e.FindIdent(term); ok {
			result |= ev.Value
			continue
		}
		if n, err := strconv.ParseInt(term, 0, 64); err == nil {
			result |= n
			continue
		}
		return 0, orberrors.UnknownName(e.name+" value", term, e.suggest(term))
	}
	return result, nil
}

func (e *EnumInfo) suggest(term string) string {
	best, bestDist := "", -1
	lower := strings.ToLower(term)
	for _, ev := range e.values {
		d := levenshtein.ComputeDistance(lower, strings.ToLower(ev.Ident))
		if bestDist < 0 || d < bestDist {
			best, bestDist = ev.Ident, d
		}
	}
	if bestDist < 0 || bestDist > len(term)/2+1 {
		return ""
	}
	return best
}
