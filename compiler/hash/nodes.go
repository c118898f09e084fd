package hash

import "github.com/chazu/dml/vm"

// ---------------------------------------------------------------------------
// Frozen hashing program types.
//
// These are stripped-down parallels of vm.Program with local variables and
// labels renumbered by first use, so two programs that differ only in local
// names or in the compiler's label numbering produce identical trees.
// Globals, bound variables and factory names are part of a script's
// interface and keep their names.
// ---------------------------------------------------------------------------

// HNode is the interface implemented by all hashing nodes.
type HNode interface {
	hnode() // marker method
}

// HProgram is a whole script. Factories are sorted by name; timestamps keep
// their declared order, which breaks ties between equal start times.
type HProgram struct {
	Global     *HCode
	Factories  []*HFactory
	Timestamps []*HTimestamp
	Setup      *HCode // timeline-level code
}

type HFactory struct {
	Name   string
	Init   *HCode
	Update *HCode
}

type HTimestamp struct {
	Kind     vm.TimeKind
	Start    float64
	End      float64
	Interval float64
	Code     *HCode
}

// HCode is one code block. NumLocals and NumLabels count the distinct slots
// its instructions refer to.
type HCode struct {
	NumLocals    int
	NumLabels    int
	Instructions []*HInstr
}

// HInstr is one instruction. Which fields are meaningful depends on Op, as
// in vm.Instruction; Slot holds the local or label slot for instructions
// that name one.
type HInstr struct {
	Op       vm.Opcode
	Value    HNode
	Name     string
	Slot     uint16
	Argc     int
	Property vm.Intrinsic
	Params   []string
}

func (*HProgram) hnode()   {}
func (*HFactory) hnode()   {}
func (*HTimestamp) hnode() {}
func (*HCode) hnode()      {}
func (*HInstr) hnode()     {}

// ---------------------------------------------------------------------------
// Constant nodes
// ---------------------------------------------------------------------------

type HNull struct{}
type HBool struct{ Value bool }
type HNumber struct{ Value float64 }
type HString struct{ Value string }
type HVector struct{ X, Y float64 }
type HColour struct{ R, G, B, A float64 }
type HList struct{ Elements []HNode }

// HFunction is a constant callable, by name.
type HFunction struct{ Name string }

// HFactoryRef is a constant factory reference, by name.
type HFactoryRef struct{ Name string }

// HField is one named field of a struct or option, in sorted order.
type HField struct {
	Name  string
	Value HNode
}

type HStruct struct{ Fields []HField }

type HOption struct {
	Name   string
	Fields []HField
}

// HOpaque is any other value, by kind and printed form.
type HOpaque struct {
	Kind vm.Kind
	Text string
}

func (*HNull) hnode()       {}
func (*HBool) hnode()       {}
func (*HNumber) hnode()     {}
func (*HString) hnode()     {}
func (*HVector) hnode()     {}
func (*HColour) hnode()     {}
func (*HList) hnode()       {}
func (*HFunction) hnode()   {}
func (*HFactoryRef) hnode() {}
func (*HStruct) hnode()     {}
func (*HOption) hnode()     {}
func (*HOpaque) hnode()     {}
