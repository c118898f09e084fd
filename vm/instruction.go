package vm

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode selects the operation an Instruction performs.
type Opcode uint8

// Structure
const (
	OpNop   Opcode = iota // no operation
	OpLabel               // jump target marker, no effect at run time
)

// Loads and stores
const (
	OpLoadConst      Opcode = iota + 0x10 // push Value
	OpLoadBuiltin                         // push builtin Name
	OpLoadLocal                           // push local Name
	OpLoadGlobal                          // push global Name
	OpLoadBound                           // push instance-bound Name
	OpLoadIntrinsic                       // push bullet Property
	OpStoreLocal                          // pop into local Name
	OpStoreGlobal                         // pop into global Name
	OpStoreBound                          // pop into instance-bound Name
	OpStoreIntrinsic                      // pop into bullet Property
)

// Operators
const (
	OpAdd Opcode = iota + 0x30
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpNeg // unary minus
	OpAbs // unary ~
	OpNot
	OpAnd
	OpOr
	OpEq
	OpNeq
	OpLt
	OpGt
	OpLtEq
	OpGtEq
)

// Control flow
const (
	OpCall              Opcode = iota + 0x50 // pop callee, call with Argc arguments
	OpJump                                   // unconditional jump to Target
	OpJumpIfFalse                            // pop Bool, jump when false
	OpJumpIfLessOrEqual                      // pop b, pop a, jump when a <= b
	OpBehave                                 // invoke the configured Behaviour
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string // human-readable name
	StackEffect int    // net effect on stack (-1 = variable)
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:   {"NOP", 0},
	OpLabel: {"LABEL", 0},

	OpLoadConst:      {"LOAD_CONST", 1},
	OpLoadBuiltin:    {"LOAD_BUILTIN", 1},
	OpLoadLocal:      {"LOAD_LOCAL", 1},
	OpLoadGlobal:     {"LOAD_GLOBAL", 1},
	OpLoadBound:      {"LOAD_BOUND", 1},
	OpLoadIntrinsic:  {"LOAD_INTRINSIC", 1},
	OpStoreLocal:     {"STORE_LOCAL", -1},
	OpStoreGlobal:    {"STORE_GLOBAL", -1},
	OpStoreBound:     {"STORE_BOUND", -1},
	OpStoreIntrinsic: {"STORE_INTRINSIC", -1},

	OpAdd:  {"ADD", -1},
	OpSub:  {"SUB", -1},
	OpMul:  {"MUL", -1},
	OpDiv:  {"DIV", -1},
	OpMod:  {"MOD", -1},
	OpPow:  {"POW", -1},
	OpNeg:  {"NEG", 0},
	OpAbs:  {"ABS", 0},
	OpNot:  {"NOT", 0},
	OpAnd:  {"AND", -1},
	OpOr:   {"OR", -1},
	OpEq:   {"EQ", -1},
	OpNeq:  {"NEQ", -1},
	OpLt:   {"LT", -1},
	OpGt:   {"GT", -1},
	OpLtEq: {"LT_EQ", -1},
	OpGtEq: {"GT_EQ", -1},

	OpCall:              {"CALL", -1},
	OpJump:              {"JUMP", 0},
	OpJumpIfFalse:       {"JUMP_IF_FALSE", -1},
	OpJumpIfLessOrEqual: {"JUMP_IF_LESS_OR_EQUAL", -2},
	OpBehave:            {"BEHAVE", -1},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

func (op Opcode) String() string {
	return op.Info().Name
}

// IsJump reports whether op carries a Target.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpIfFalse || op == OpJumpIfLessOrEqual
}

// ---------------------------------------------------------------------------
// Intrinsic bullet properties
// ---------------------------------------------------------------------------

// Intrinsic names a built-in bullet attribute addressed by $Name.
type Intrinsic uint8

const (
	IntrinsicDirection Intrinsic = iota
	IntrinsicSpeed
	IntrinsicColour
	IntrinsicOrigin
	IntrinsicPosition
	IntrinsicVelocity
	IntrinsicTime
	IntrinsicSprite
)

var intrinsicNames = map[Intrinsic]string{
	IntrinsicDirection: "Direction",
	IntrinsicSpeed:     "Speed",
	IntrinsicColour:    "Colour",
	IntrinsicOrigin:    "Origin",
	IntrinsicPosition:  "Position",
	IntrinsicVelocity:  "Velocity",
	IntrinsicTime:      "Time",
	IntrinsicSprite:    "Sprite",
}

var intrinsicsByName = func() map[string]Intrinsic {
	m := make(map[string]Intrinsic, len(intrinsicNames))
	for p, name := range intrinsicNames {
		m[name] = p
	}
	return m
}()

func (p Intrinsic) String() string {
	if name, ok := intrinsicNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Intrinsic(%d)", p)
}

// LookupIntrinsic maps a $name to its intrinsic property.
func LookupIntrinsic(name string) (Intrinsic, bool) {
	p, ok := intrinsicsByName[name]
	return p, ok
}

// IntrinsicNames returns the intrinsic property names, sorted.
func IntrinsicNames() []string {
	names := make([]string, 0, len(intrinsicNames))
	for _, name := range intrinsicNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Assignable reports whether scripts may store into p.
func (p Intrinsic) Assignable() bool {
	return p != IntrinsicVelocity && p != IntrinsicTime
}

// ---------------------------------------------------------------------------
// Jump targets
// ---------------------------------------------------------------------------

// Target is the destination of a jump. It is either Unresolved, naming a
// label, or Resolved, holding the label's instruction index.
type Target struct {
	label    string
	index    int
	resolved bool
}

// Unresolved returns a target naming label.
func Unresolved(label string) Target {
	return Target{label: label, index: -1}
}

func (t Target) Label() string  { return t.label }
func (t Target) Index() int     { return t.index }
func (t Target) Resolved() bool { return t.resolved }

func (t Target) String() string {
	if t.resolved {
		return fmt.Sprintf("%s@%d", t.label, t.index)
	}
	return t.label + "@?"
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Instruction is one operation. Which operand fields are meaningful depends on Op.
type Instruction struct {
	Op        Opcode
	Value     Value     // OpLoadConst
	Name      string    // variable, builtin or label name
	Argc      int       // OpCall
	Property  Intrinsic // OpLoadIntrinsic, OpStoreIntrinsic
	Target    Target    // jumps
	Behaviour Behaviour // OpBehave
}

func Op(op Opcode) Instruction                  { return Instruction{Op: op} }
func Const(v Value) Instruction                 { return Instruction{Op: OpLoadConst, Value: v} }
func Named(op Opcode, name string) Instruction  { return Instruction{Op: op, Name: name} }
func Call(argc int) Instruction                 { return Instruction{Op: OpCall, Argc: argc} }
func Label(name string) Instruction             { return Instruction{Op: OpLabel, Name: name} }
func Jump(op Opcode, label string) Instruction  { return Instruction{Op: op, Target: Unresolved(label)} }
func Behave(b Behaviour) Instruction            { return Instruction{Op: OpBehave, Behaviour: b} }
func LoadIntrinsic(p Intrinsic) Instruction     { return Instruction{Op: OpLoadIntrinsic, Property: p} }
func StoreIntrinsic(p Intrinsic) Instruction    { return Instruction{Op: OpStoreIntrinsic, Property: p} }

func (in Instruction) String() string {
	switch in.Op {
	case OpLoadConst:
		if s, ok := in.Value.(String); ok {
			return fmt.Sprintf("%s %q", in.Op, string(s))
		}
		return fmt.Sprintf("%s %s", in.Op, in.Value)
	case OpLoadBuiltin, OpLoadLocal, OpLoadGlobal, OpLoadBound,
		OpStoreLocal, OpStoreGlobal, OpStoreBound, OpLabel:
		return fmt.Sprintf("%s %s", in.Op, in.Name)
	case OpLoadIntrinsic, OpStoreIntrinsic:
		return fmt.Sprintf("%s %s", in.Op, in.Property)
	case OpCall:
		return fmt.Sprintf("%s %d", in.Op, in.Argc)
	case OpJump, OpJumpIfFalse, OpJumpIfLessOrEqual:
		return fmt.Sprintf("%s %s", in.Op, in.Target)
	case OpBehave:
		if in.Behaviour == nil {
			return in.Op.String()
		}
		return fmt.Sprintf("%s %s(%s)", in.Op, in.Behaviour.Name(), strings.Join(in.Behaviour.Params(), ", "))
	}
	return in.Op.String()
}

// ---------------------------------------------------------------------------
// Label resolution
// ---------------------------------------------------------------------------

// Resolve returns a copy of code with every jump target rewritten from its
// label name to the index of the matching OpLabel. It is the only producer of
// Resolved targets.
func Resolve(code []Instruction) ([]Instruction, error) {
	labels := make(map[string]int)
	for i, in := range code {
		if in.Op != OpLabel {
			continue
		}
		if _, dup := labels[in.Name]; dup {
			return nil, ParserError(fmt.Sprintf("duplicate label %q", in.Name))
		}
		labels[in.Name] = i
	}

	out := make([]Instruction, len(code))
	copy(out, code)
	for i := range out {
		if !out[i].Op.IsJump() {
			continue
		}
		name := out[i].Target.label
		idx, ok := labels[name]
		if !ok {
			return nil, ParserError(fmt.Sprintf("jump to undefined label %q", name))
		}
		out[i].Target = Target{label: name, index: idx, resolved: true}
	}
	return out, nil
}

// Disassemble renders code one instruction per line.
func Disassemble(code []Instruction) string {
	var b strings.Builder
	for i, in := range code {
		fmt.Fprintf(&b, "%04d  %s\n", i, in)
	}
	return b.String()
}
