package vm

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Kinds
// ---------------------------------------------------------------------------

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindString
	KindNumber
	KindVector
	KindColour
	KindList
	KindFunction
	KindBullet
	KindFactory
	KindStruct
	KindOption

	// KindAny never tags a value; function signatures use it as a wildcard.
	KindAny Kind = 0xFF
)

var kindNames = map[Kind]string{
	KindNull:     "Null",
	KindBool:     "Bool",
	KindString:   "String",
	KindNumber:   "Number",
	KindVector:   "Vector",
	KindColour:   "Colour",
	KindList:     "List",
	KindFunction: "Function",
	KindBullet:   "Bullet",
	KindFactory:  "BulletFactory",
	KindStruct:   "Struct",
	KindOption:   "Option",
	KindAny:      "Any",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ---------------------------------------------------------------------------
// Value: closed sum type
// ---------------------------------------------------------------------------

// Value is a DML runtime value. The set of implementations is closed:
// only the types in this file satisfy it.
type Value interface {
	Kind() Kind
	String() string
	value()
}

type (
	// Null is the absent value.
	Null struct{}

	Bool   bool
	Number float64
	String string

	// Vector is a 2D vector. +Y points down the screen.
	Vector struct{ X, Y float64 }

	// Colour components range over 0..255.
	Colour struct{ R, G, B, A float64 }

	List []Value

	// Func wraps a callable.
	Func struct{ Fn Function }

	// BulletRef refers to a bullet through its arena handle.
	BulletRef struct{ ID BulletID }

	FactoryRef struct{ Factory *Factory }

	// Struct is a record of named fields.
	Struct struct{ Fields map[string]Value }

	// Option is a named record built by an option factory such as
	// UniformDistribution. Consumers interpret it by Name.
	Option struct {
		Name   string
		Fields map[string]Value
	}
)

func (Null) Kind() Kind       { return KindNull }
func (Bool) Kind() Kind       { return KindBool }
func (String) Kind() Kind     { return KindString }
func (Number) Kind() Kind     { return KindNumber }
func (Vector) Kind() Kind     { return KindVector }
func (Colour) Kind() Kind     { return KindColour }
func (List) Kind() Kind       { return KindList }
func (Func) Kind() Kind       { return KindFunction }
func (BulletRef) Kind() Kind  { return KindBullet }
func (FactoryRef) Kind() Kind { return KindFactory }
func (Struct) Kind() Kind     { return KindStruct }
func (Option) Kind() Kind     { return KindOption }

func (Null) value()       {}
func (Bool) value()       {}
func (String) value()     {}
func (Number) value()     {}
func (Vector) value()     {}
func (Colour) value()     {}
func (List) value()       {}
func (Func) value()       {}
func (BulletRef) value()  {}
func (FactoryRef) value() {}
func (Struct) value()     {}
func (Option) value()     {}

func (Null) String() string { return "Null" }

func (b Bool) String() string {
	if b {
		return "True"
	}
	return "False"
}

func (s String) String() string { return string(s) }

func (n Number) String() string {
	return strconv.FormatFloat(float64(n), 'g', -1, 64)
}

func (v Vector) String() string {
	return fmt.Sprintf("(%s, %s)", Number(v.X), Number(v.Y))
}

func (c Colour) String() string {
	return fmt.Sprintf("Colour(%s, %s, %s, %s)", Number(c.R), Number(c.G), Number(c.B), Number(c.A))
}

func (l List) String() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (f Func) String() string {
	if f.Fn == nil {
		return "<function>"
	}
	return "<function " + f.Fn.Name() + ">"
}

func (r BulletRef) String() string { return "<bullet " + r.ID.String() + ">" }

func (f FactoryRef) String() string {
	if f.Factory == nil {
		return "<bullet factory>"
	}
	return "<bullet factory @" + f.Factory.Name + ">"
}

func (s Struct) String() string { return "{" + formatFields(s.Fields) + "}" }

func (o Option) String() string { return o.Name + "{" + formatFields(o.Fields) + "}" }

func formatFields(fields map[string]Value) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + fields[name].String()
	}
	return strings.Join(parts, ", ")
}

// ---------------------------------------------------------------------------
// Vector and colour arithmetic
// ---------------------------------------------------------------------------

var (
	ZeroVector = Vector{}
	White      = Colour{255, 255, 255, 255}
)

func (v Vector) Add(o Vector) Vector             { return Vector{v.X + o.X, v.Y + o.Y} }
func (v Vector) Sub(o Vector) Vector             { return Vector{v.X - o.X, v.Y - o.Y} }
func (v Vector) Scale(f float64) Vector          { return Vector{v.X * f, v.Y * f} }
func (v Vector) Dot(o Vector) float64            { return v.X*o.X + v.Y*o.Y }
func (v Vector) LenSqr() float64                 { return v.X*v.X + v.Y*v.Y }
func (v Vector) Len() float64                    { return math.Hypot(v.X, v.Y) }
func (v Vector) Angle() float64                  { return math.Atan2(v.Y, v.X) }
func (v Vector) Lerp(o Vector, t float64) Vector { return v.Add(o.Sub(v).Scale(t)) }

// Normalized returns v scaled to unit length. The zero vector stays zero.
func (v Vector) Normalized() Vector {
	l := v.Len()
	if l == 0 {
		return v
	}
	return Vector{v.X / l, v.Y / l}
}

// Rotate rotates v by angle radians about the origin.
func (v Vector) Rotate(angle float64) Vector {
	sin, cos := math.Sincos(angle)
	return Vector{v.X*cos - v.Y*sin, v.X*sin + v.Y*cos}
}

// RotateAround rotates v by angle radians about pivot.
func (v Vector) RotateAround(pivot Vector, angle float64) Vector {
	return v.Sub(pivot).Rotate(angle).Add(pivot)
}

// Polar returns the unit vector at angle radians.
func Polar(angle float64) Vector {
	sin, cos := math.Sincos(angle)
	return Vector{cos, sin}
}

func (c Colour) Add(o Colour) Colour {
	return Colour{c.R + o.R, c.G + o.G, c.B + o.B, c.A + o.A}
}

func (c Colour) Sub(o Colour) Colour {
	return Colour{c.R - o.R, c.G - o.G, c.B - o.B, c.A - o.A}
}

func (c Colour) Scale(f float64) Colour {
	return Colour{c.R * f, c.G * f, c.B * f, c.A * f}
}

// Clamped limits every component to 0..255.
func (c Colour) Clamped() Colour {
	cl := func(x float64) float64 { return math.Max(0, math.Min(255, x)) }
	return Colour{cl(c.R), cl(c.G), cl(c.B), cl(c.A)}
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// Equal reports structural equality. Values of different kinds are never equal.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Number:
		y, ok := b.(Number)
		return ok && x == y
	case Vector:
		y, ok := b.(Vector)
		return ok && x == y
	case Colour:
		y, ok := b.(Colour)
		return ok && x == y
	case List:
		y, ok := b.(List)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Func:
		y, ok := b.(Func)
		return ok && x.Fn == y.Fn
	case BulletRef:
		y, ok := b.(BulletRef)
		return ok && x.ID == y.ID
	case FactoryRef:
		y, ok := b.(FactoryRef)
		return ok && x.Factory == y.Factory
	case Struct:
		y, ok := b.(Struct)
		return ok && fieldsEqual(x.Fields, y.Fields)
	case Option:
		y, ok := b.(Option)
		return ok && x.Name == y.Name && fieldsEqual(x.Fields, y.Fields)
	}
	return false
}

func fieldsEqual(a, b map[string]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for name, v := range a {
		w, ok := b[name]
		if !ok || !Equal(v, w) {
			return false
		}
	}
	return true
}

// KindOf returns v's kind, treating a nil interface as Null.
func KindOf(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}

// Unquote strips one pair of surrounding double quotes.
func Unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
