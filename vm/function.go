package vm

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Frame: per-invocation execution state
// ---------------------------------------------------------------------------

// Frame is the state of one CodeBlock invocation: operand stack, locals,
// instruction pointer and the two external contexts. Frames are never shared,
// which is what lets one CodeBlock serve many bullets.
type Frame struct {
	stack  []Value
	locals map[string]Value
	ip     int

	Bullet *Bullet // nil in global and timeline code
	System *System
}

func newFrame(b *Bullet, sys *System) *Frame {
	return &Frame{
		stack:  make([]Value, 0, 16),
		locals: make(map[string]Value),
		Bullet: b,
		System: sys,
	}
}

// Push pushes v onto the operand stack.
func (f *Frame) Push(v Value) {
	if v == nil {
		v = Null{}
	}
	f.stack = append(f.stack, v)
}

// Pop removes and returns the top of the operand stack.
func (f *Frame) Pop() (Value, error) {
	n := len(f.stack)
	if n == 0 {
		return nil, StackUnderflow()
	}
	v := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return v, nil
}

// PopN removes the top n values and returns them in push order.
func (f *Frame) PopN(n int) ([]Value, error) {
	if n > len(f.stack) {
		return nil, StackUnderflow()
	}
	start := len(f.stack) - n
	out := make([]Value, n)
	copy(out, f.stack[start:])
	f.stack = f.stack[:start]
	return out, nil
}

// Depth returns the operand stack height.
func (f *Frame) Depth() int { return len(f.stack) }

// topKinds returns the kinds of the top n values in push order.
func (f *Frame) topKinds(n int) []Kind {
	if n > len(f.stack) {
		return nil
	}
	kinds := make([]Kind, n)
	for i, v := range f.stack[len(f.stack)-n:] {
		kinds[i] = v.Kind()
	}
	return kinds
}

// Local returns a local variable of this invocation.
func (f *Frame) Local(name string) (Value, bool) {
	v, ok := f.locals[name]
	return v, ok
}

// ---------------------------------------------------------------------------
// Function contract
// ---------------------------------------------------------------------------

// Function is a callable DML value.
//
// CallDynamic validates every argument and reports BadArgumentType on a
// mismatch. CallTypeSafe assumes CompatibleWithArgTypes already accepted the
// argument kinds and skips the checks.
type Function interface {
	Name() string
	IsPure() bool
	CompatibleWithArgCount(argc int) bool
	CompatibleWithArgTypes(kinds ...Kind) bool
	CallDynamic(argc int, f *Frame) (Value, error)
	CallTypeSafe(argc int, f *Frame) (Value, error)
}

// Builtin is a Function described by a list of accepted signatures.
type Builtin struct {
	name     string
	pure     bool
	sigs     [][]Kind
	variadic bool // any count, any kinds
	fn       func(f *Frame, args []Value) (Value, error)
}

// NewBuiltin returns a Function accepting the given signatures.
func NewBuiltin(name string, pure bool, sigs [][]Kind, fn func(f *Frame, args []Value) (Value, error)) *Builtin {
	return &Builtin{name: name, pure: pure, sigs: sigs, fn: fn}
}

// NewVariadic returns a Function accepting any number of arguments of any kind.
func NewVariadic(name string, pure bool, fn func(f *Frame, args []Value) (Value, error)) *Builtin {
	return &Builtin{name: name, pure: pure, variadic: true, fn: fn}
}

func (b *Builtin) Name() string { return b.name }
func (b *Builtin) IsPure() bool { return b.pure }

func (b *Builtin) CompatibleWithArgCount(argc int) bool {
	if b.variadic {
		return true
	}
	return b.signature(argc) != nil
}

func (b *Builtin) CompatibleWithArgTypes(kinds ...Kind) bool {
	if b.variadic {
		return true
	}
	sig := b.signature(len(kinds))
	if sig == nil {
		return false
	}
	for i, want := range sig {
		if want != KindAny && want != kinds[i] {
			return false
		}
	}
	return true
}

func (b *Builtin) CallDynamic(argc int, f *Frame) (Value, error) {
	args, err := f.PopN(argc)
	if err != nil {
		return nil, err
	}
	if !b.variadic {
		sig := b.signature(argc)
		if sig == nil {
			return nil, BadArgumentCount(b.name, argc)
		}
		for i, want := range sig {
			if want != KindAny && args[i].Kind() != want {
				return nil, BadArgumentType(b.name, i+1, want, args[i].Kind())
			}
		}
	}
	return b.fn(f, args)
}

func (b *Builtin) CallTypeSafe(argc int, f *Frame) (Value, error) {
	args, err := f.PopN(argc)
	if err != nil {
		return nil, err
	}
	return b.fn(f, args)
}

// signature returns the first accepted signature of length argc.
// The first match decides the expected kinds.
func (b *Builtin) signature(argc int) []Kind {
	for _, sig := range b.sigs {
		if len(sig) == argc {
			return sig
		}
	}
	return nil
}

// Signatures renders the accepted call shapes, e.g. "Max(List) | Max(Number, Number)".
func (b *Builtin) Signatures() string {
	if b.variadic {
		return b.name + "(...)"
	}
	forms := make([]string, len(b.sigs))
	for i, sig := range b.sigs {
		parts := make([]string, len(sig))
		for j, k := range sig {
			parts[j] = k.String()
		}
		forms[i] = fmt.Sprintf("%s(%s)", b.name, strings.Join(parts, ", "))
	}
	return strings.Join(forms, " | ")
}

// call invokes fn with argc stacked arguments, taking the type-safe path when
// the runtime kinds allow it.
func call(fn Function, argc int, f *Frame) (Value, error) {
	if !fn.CompatibleWithArgCount(argc) {
		return nil, BadArgumentCount(fn.Name(), argc)
	}
	if kinds := f.topKinds(argc); kinds != nil && fn.CompatibleWithArgTypes(kinds...) {
		return fn.CallTypeSafe(argc, f)
	}
	return fn.CallDynamic(argc, f)
}

// ---------------------------------------------------------------------------
// Builtin registry
// ---------------------------------------------------------------------------

type builtinEntry struct {
	value   Value
	dynamic func(*System) Value // values that depend on the system configuration
	doc     string
}

var builtins = make(map[string]builtinEntry)

func register(name, doc string, v Value) {
	builtins[name] = builtinEntry{value: v, doc: doc}
}

func registerFunc(b *Builtin, doc string) {
	register(b.name, doc, Func{b})
}

func registerDynamic(name, doc string, fn func(*System) Value) {
	builtins[name] = builtinEntry{dynamic: fn, doc: doc}
}

// Register adds or replaces a builtin. Scripts compiled afterwards see name
// as a builtin rather than a local variable.
func Register(name string, v Value) {
	register(name, "", v)
}

// IsBuiltin reports whether name is a builtin function or constant.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// LookupBuiltin resolves name. sys may be nil, in which case
// configuration-dependent builtins use the default options.
func LookupBuiltin(name string, sys *System) (Value, bool) {
	e, ok := builtins[name]
	if !ok {
		return nil, false
	}
	if e.dynamic != nil {
		return e.dynamic(sys), true
	}
	return e.value, true
}

// BuiltinNames returns all builtin names, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuiltinDoc describes a builtin for editor hovers.
func BuiltinDoc(name string) string {
	e, ok := builtins[name]
	if !ok {
		return ""
	}
	var head string
	switch v := e.value.(type) {
	case Func:
		if b, ok := v.Fn.(*Builtin); ok {
			head = b.Signatures()
		} else {
			head = v.Fn.Name() + "(...)"
		}
	case nil:
		head = name
	default:
		head = fmt.Sprintf("%s = %s", name, v)
	}
	if e.doc == "" {
		return head
	}
	return head + "\n\n" + e.doc
}

// IsPureBuiltin reports whether name is a pure function whose value does not
// depend on the system.
func IsPureBuiltin(name string) bool {
	e, ok := builtins[name]
	if !ok || e.dynamic != nil {
		return false
	}
	fn, ok := e.value.(Func)
	return ok && fn.Fn.IsPure()
}
