package aida

import (
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

// Property describes one introspectable property of a served object.
// Aux holds "key=value" annotations such as "label=Int32 Value" or "hints=rw".
// A nil Set makes the property read-only.
type Property struct {
	Name string
	Aux  []string
	Get  func() Any
	Set  func(v Any) bool
}

// AuxValue returns the annotation for key.
func (p *Property) AuxValue(key string) (string, bool) {
	return auxLookup(p.Aux, key+"=")
}

func auxLookup(aux []string, prefix string) (string, bool) {
	for _, kv := range aux {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):], true
		}
	}
	return "", false
}

// PropertyList implements the property part of ImplicitBase for a set of
// Property descriptors.
type PropertyList struct {
	props []Property

	mu      sync.Mutex
	changed []func(name string)
}

// NewPropertyList keeps props in declaration order.
func NewPropertyList(props ...Property) *PropertyList {
	return &PropertyList{props: props}
}

// OnChange registers fn to run after a property was set successfully.
func (pl *PropertyList) OnChange(fn func(name string)) {
	pl.mu.Lock()
	pl.changed = append(pl.changed, fn)
	pl.mu.Unlock()
}

// Lookup finds a property by name, suggesting the nearest name on failure.
func (pl *PropertyList) Lookup(name string) (*Property, error) {
	for i := range pl.props {
		if pl.props[i].Name == name {
			return &pl.props[i], nil
		}
	}
	best, dist := "", -1
	for i := range pl.props {
		if d := levenshtein.ComputeDistance(name, pl.props[i].Name); dist < 0 || d < dist {
			best, dist = pl.props[i].Name, d
		}
	}
	if dist > len(name)/2+1 {
		best = ""
	}
	return nil, orberrors.UnknownName("property", name, best)
}

// Dir returns the property names.
func (pl *PropertyList) Dir() []string {
	names := make([]string, len(pl.props))
	for i := range pl.props {
		names[i] = pl.props[i].Name
	}
	return names
}

// AuxData returns all annotations qualified by property name, "name.key=value".
func (pl *PropertyList) AuxData() []string {
	var out []string
	for i := range pl.props {
		for _, kv := range pl.props[i].Aux {
			out = append(out, pl.props[i].Name+"."+kv)
		}
	}
	return out
}

// Get reads a property; unknown names yield an empty Any.
func (pl *PropertyList) Get(name string) Any {
	p, err := pl.Lookup(name)
	if err != nil {
		warningf("%v", err)
		return Any{}
	}
	return p.Get()
}

// Set assigns a property and runs the change hooks.
func (pl *PropertyList) Set(name string, v Any) bool {
	p, err := pl.Lookup(name)
	if err != nil {
		warningf("%v", err)
		return false
	}
	if p.Set == nil || !p.Set(v) {
		return false
	}
	pl.mu.Lock()
	hooks := append([]func(string){}, pl.changed...)
	pl.mu.Unlock()
	for _, fn := range hooks {
		fn(name)
	}
	return true
}

// Parameter is the client side accessor for one property of a remote object.
type Parameter struct {
	handle RemoteHandle
	name   string
	aux    []string
}

// NewParameters fetches the property names and annotations of h.
func NewParameters(h RemoteHandle) []Parameter {
	names := h.Dir()
	aux := h.AuxData()
	params := make([]Parameter, 0, len(names))
	for _, name := range names {
		p := Parameter{handle: h, name: name}
		prefix := name + "."
		for _, kv := range aux {
			if strings.HasPrefix(kv, prefix) {
				p.aux = append(p.aux, kv[len(prefix):])
			}
		}
		params = append(params, p)
	}
	return params
}

// FindParameter returns the parameter called name or nil.
func FindParameter(params []Parameter, name string) *Parameter {
	for i := range params {
		if params[i].name == name {
			return &params[i]
		}
	}
	return nil
}

func (p *Parameter) FieldName() string { return p.name }
func (p *Parameter) Get() Any          { return p.handle.GetProperty(p.name) }
func (p *Parameter) Set(v Any) bool    { return p.handle.SetProperty(p.name, v) }

// GetAux returns the annotation for key, "" if absent.
func (p *Parameter) GetAux(key string) string {
	v, _ := auxLookup(p.aux, key+"=")
	return v
}
