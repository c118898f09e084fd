package vm

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Behaviour contract
// ---------------------------------------------------------------------------

// Behaviour is a statement-level operation configured at compile time from
// its parameter names. Invoking it pops one value per parameter, pushed in
// written order, so parameters may be written in any order.
//
// The set of behaviours is closed; ConfigureBehaviour is the only constructor.
type Behaviour interface {
	Name() string
	Params() []string
	invoke(f *Frame) error
}

// behaviourDef describes one behaviour: which parameters it accepts and
// what it does with them.
type behaviourDef struct {
	name     string
	doc      string
	required []string
	optional []string
	oneOf    [][]string // exactly one of each group
	atMost   [][]string // at most one of each group
	repeat   bool       // accepts any number of %Param
	spawns   bool
	run      func(f *Frame, p *params) error
}

var behaviours = make(map[string]*behaviourDef)

func defineBehaviour(d *behaviourDef) { behaviours[d.name] = d }

// configured is a behaviour bound to a validated parameter list.
type configured struct {
	def    *behaviourDef
	params []string
}

func (c *configured) Name() string     { return c.def.name }
func (c *configured) Params() []string { return slices.Clone(c.params) }

func (c *configured) invoke(f *Frame) error {
	vals, err := f.PopN(len(c.params))
	if err != nil {
		return err
	}
	p := &params{behaviour: c.def.name, values: make(map[string]Value, len(vals)), sys: f.System}
	for i, name := range c.params {
		if name == "Param" {
			p.extra = append(p.extra, vals[i])
			continue
		}
		p.values[name] = vals[i]
	}
	return c.def.run(f, p)
}

// ConfigureBehaviour validates a parameter list for the named behaviour.
func ConfigureBehaviour(name string, paramNames []string) (Behaviour, error) {
	d, ok := behaviours[name]
	if !ok {
		return nil, BehaviourError(name, "no such behaviour.")
	}
	allowed := d.allowed()
	seen := make(map[string]bool, len(paramNames))
	for _, p := range paramNames {
		if p == "Param" && d.repeat {
			continue
		}
		if !slices.Contains(allowed, p) {
			return nil, BehaviourError(name, "unknown parameter %%%s.", p)
		}
		if seen[p] {
			return nil, BehaviourError(name, "parameter %%%s given more than once.", p)
		}
		seen[p] = true
	}
	for _, r := range d.required {
		if !seen[r] {
			return nil, BehaviourError(name, "missing required parameter %%%s.", r)
		}
	}
	for _, group := range d.oneOf {
		if n := countSeen(seen, group); n != 1 {
			return nil, BehaviourError(name, "exactly one of %s must be given.", joinParams(group))
		}
	}
	for _, group := range d.atMost {
		if countSeen(seen, group) > 1 {
			return nil, BehaviourError(name, "cannot have more than one of %s defined.", joinParams(group))
		}
	}
	return &configured{def: d, params: slices.Clone(paramNames)}, nil
}

func (d *behaviourDef) allowed() []string {
	var out []string
	out = append(out, d.required...)
	out = append(out, d.optional...)
	for _, g := range d.oneOf {
		out = append(out, g...)
	}
	for _, g := range d.atMost {
		out = append(out, g...)
	}
	if d.repeat {
		out = append(out, "Param")
	}
	return out
}

func countSeen(seen map[string]bool, group []string) int {
	n := 0
	for _, g := range group {
		if seen[g] {
			n++
		}
	}
	return n
}

func joinParams(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = "%" + n
	}
	return strings.Join(parts, ", ")
}

// IsBehaviour reports whether name is a behaviour.
func IsBehaviour(name string) bool {
	_, ok := behaviours[name]
	return ok
}

// IsSpawnBehaviour reports whether name creates bullets. Only these
// behaviours may run in timeline code.
func IsSpawnBehaviour(name string) bool {
	d, ok := behaviours[name]
	return ok && d.spawns
}

// BehaviourNames returns all behaviour names, sorted.
func BehaviourNames() []string {
	names := make([]string, 0, len(behaviours))
	for n := range behaviours {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BehaviourParams returns the parameter names a behaviour accepts.
func BehaviourParams(name string) []string {
	d, ok := behaviours[name]
	if !ok {
		return nil
	}
	return d.allowed()
}

// BehaviourDoc describes a behaviour for editor hovers.
func BehaviourDoc(name string) string {
	d, ok := behaviours[name]
	if !ok {
		return ""
	}
	var parts []string
	for _, r := range d.required {
		parts = append(parts, "%"+r)
	}
	for _, g := range d.oneOf {
		parts = append(parts, strings.Join(prefixAll(g), " | "))
	}
	for _, g := range d.atMost {
		parts = append(parts, "["+strings.Join(prefixAll(g), " | ")+"]")
	}
	for _, o := range d.optional {
		parts = append(parts, "[%"+o+"]")
	}
	if d.repeat {
		parts = append(parts, "%Param*")
	}
	return fmt.Sprintf("%s | %s;\n\n%s", d.name, strings.Join(parts, ", "), d.doc)
}

func prefixAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "%" + n
	}
	return out
}

// ---------------------------------------------------------------------------
// Bound parameter values
// ---------------------------------------------------------------------------

type params struct {
	behaviour string
	values    map[string]Value
	extra     []Value // %Param values, in written order
	sys       *System
}

func (p *params) has(name string) bool {
	_, ok := p.values[name]
	return ok
}

func (p *params) mismatch(name string, want Kind, got Value) error {
	return BehaviourError(p.behaviour, "parameter %%%s must be of type %s, got %s.", name, want, got.Kind())
}

// number reads a numeric parameter. A UniformDistribution option is
// sampled with the system RNG.
func (p *params) number(name string) (float64, error) {
	switch v := p.values[name].(type) {
	case Number:
		return float64(v), nil
	case Option:
		return p.sample(name, v)
	case nil:
		return 0, BehaviourError(p.behaviour, "missing parameter %%%s.", name)
	default:
		return 0, p.mismatch(name, KindNumber, v)
	}
}

func (p *params) sample(name string, o Option) (float64, error) {
	if o.Name != "UniformDistribution" {
		return 0, BehaviourError(p.behaviour, "parameter %%%s cannot sample %s.", name, o.Name)
	}
	lo, ok1 := o.Fields["Min"].(Number)
	hi, ok2 := o.Fields["Max"].(Number)
	if !ok1 || !ok2 {
		return 0, BehaviourError(p.behaviour, "malformed distribution for %%%s.", name)
	}
	return p.sys.Uniform(float64(lo), float64(hi)), nil
}

func (p *params) vector(name string) (Vector, error) {
	v, ok := p.values[name].(Vector)
	if !ok {
		return Vector{}, p.mismatch(name, KindVector, p.get(name))
	}
	return v, nil
}

func (p *params) boolean(name string) (bool, error) {
	v, ok := p.values[name].(Bool)
	if !ok {
		return false, p.mismatch(name, KindBool, p.get(name))
	}
	return bool(v), nil
}

func (p *params) list(name string) (List, error) {
	v, ok := p.values[name].(List)
	if !ok {
		return nil, p.mismatch(name, KindList, p.get(name))
	}
	return v, nil
}

func (p *params) factory(name string) (*Factory, error) {
	v, ok := p.values[name].(FactoryRef)
	if !ok || v.Factory == nil {
		return nil, p.mismatch(name, KindFactory, p.get(name))
	}
	return v.Factory, nil
}

// span reads a [min, max] pair given as a two-element list or a vector.
func (p *params) span(name string) (lo, hi float64, err error) {
	switch v := p.values[name].(type) {
	case Vector:
		return v.X, v.Y, nil
	case List:
		if len(v) == 2 {
			a, ok1 := v[0].(Number)
			b, ok2 := v[1].(Number)
			if ok1 && ok2 {
				return float64(a), float64(b), nil
			}
		}
	}
	return 0, 0, BehaviourError(p.behaviour, "parameter %%%s must be a pair of numbers.", name)
}

// angle reads whichever of the radian or degree parameter is present and
// returns it in radians.
func (p *params) angle(rad, deg string) (float64, bool, error) {
	if p.has(rad) {
		a, err := p.number(rad)
		return a, true, err
	}
	if p.has(deg) {
		a, err := p.number(deg)
		return a * degToRad, true, err
	}
	return 0, false, nil
}

func (p *params) get(name string) Value {
	if v, ok := p.values[name]; ok {
		return v
	}
	return Null{}
}

// bindings decodes the %Param values, each an Array(name, value).
func (p *params) bindings() ([]binding, error) {
	out := make([]binding, 0, len(p.extra))
	for _, v := range p.extra {
		l, ok := v.(List)
		if !ok || len(l) != 2 {
			return nil, BehaviourError(p.behaviour, "%%Param must be Array(name, value), got %s.", v)
		}
		name, ok := l[0].(String)
		if !ok {
			return nil, BehaviourError(p.behaviour, "%%Param name must be a String, got %s.", l[0].Kind())
		}
		out = append(out, binding{name: string(name), value: l[1]})
	}
	return out, nil
}

type binding struct {
	name  string
	value Value
}

func requireBullet(f *Frame, behaviour string) (*Bullet, error) {
	if f.Bullet == nil {
		return nil, NoBulletContext(behaviour)
	}
	return f.Bullet, nil
}
