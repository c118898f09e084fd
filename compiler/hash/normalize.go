package hash

import (
	"sort"

	"github.com/chazu/dml/vm"
)

// ---------------------------------------------------------------------------
// Normalization: vm.Program → frozen hashing program
//
// Local variables and labels are renumbered by first use within each code
// block. Everything else is copied as is.
// ---------------------------------------------------------------------------

// slots assigns slot numbers to names in order of first use.
type slots struct {
	index map[string]uint16
}

func (s *slots) slot(name string) uint16 {
	if s.index == nil {
		s.index = make(map[string]uint16)
	}
	if i, ok := s.index[name]; ok {
		return i
	}
	i := uint16(len(s.index))
	s.index[name] = i
	return i
}

func (s *slots) len() int { return len(s.index) }

// NormalizeProgram transforms a compiled program into a frozen HProgram.
func NormalizeProgram(prog *vm.Program) *HProgram {
	hp := &HProgram{Global: NormalizeCode(prog.Global)}

	names := make([]string, 0, len(prog.Factories))
	for name := range prog.Factories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := prog.Factories[name]
		hp.Factories = append(hp.Factories, &HFactory{
			Name:   name,
			Init:   NormalizeCode(f.Init),
			Update: NormalizeCode(f.Update),
		})
	}

	var setup *vm.CodeBlock
	if prog.Timeline != nil {
		setup = prog.Timeline.Setup()
		for _, ts := range prog.Timeline.Timestamps() {
			hp.Timestamps = append(hp.Timestamps, &HTimestamp{
				Kind:     ts.Kind,
				Start:    ts.Start,
				End:      ts.End,
				Interval: ts.Interval,
				Code:     NormalizeCode(ts.Code),
			})
		}
	}
	hp.Setup = NormalizeCode(setup)
	return hp
}

// NormalizeCode transforms one code block. A nil block normalizes like an
// empty one.
func NormalizeCode(c *vm.CodeBlock) *HCode {
	hc := &HCode{}
	if c == nil {
		return hc
	}
	var locals, labels slots
	for _, in := range c.Instructions() {
		hi := &HInstr{Op: in.Op}
		switch in.Op {
		case vm.OpLoadConst:
			hi.Value = normalizeValue(in.Value)
		case vm.OpLoadLocal, vm.OpStoreLocal:
			hi.Slot = locals.slot(in.Name)
		case vm.OpLabel:
			hi.Slot = labels.slot(in.Name)
		case vm.OpJump, vm.OpJumpIfFalse, vm.OpJumpIfLessOrEqual:
			hi.Slot = labels.slot(in.Target.Label())
		case vm.OpLoadBuiltin, vm.OpLoadGlobal, vm.OpLoadBound, vm.OpStoreGlobal, vm.OpStoreBound:
			hi.Name = in.Name
		case vm.OpLoadIntrinsic, vm.OpStoreIntrinsic:
			hi.Property = in.Property
		case vm.OpCall:
			hi.Argc = in.Argc
		case vm.OpBehave:
			if in.Behaviour != nil {
				hi.Name = in.Behaviour.Name()
				hi.Params = in.Behaviour.Params()
			}
		}
		hc.Instructions = append(hc.Instructions, hi)
	}
	hc.NumLocals = locals.len()
	hc.NumLabels = labels.len()
	return hc
}

// ---------------------------------------------------------------------------
// Constant normalization
// ---------------------------------------------------------------------------

func normalizeValue(v vm.Value) HNode {
	switch x := v.(type) {
	case nil, vm.Null:
		return &HNull{}
	case vm.Bool:
		return &HBool{Value: bool(x)}
	case vm.Number:
		return &HNumber{Value: float64(x)}
	case vm.String:
		return &HString{Value: string(x)}
	case vm.Vector:
		return &HVector{X: x.X, Y: x.Y}
	case vm.Colour:
		return &HColour{R: x.R, G: x.G, B: x.B, A: x.A}
	case vm.List:
		elems := make([]HNode, len(x))
		for i, el := range x {
			elems[i] = normalizeValue(el)
		}
		return &HList{Elements: elems}
	case vm.Func:
		return &HFunction{Name: x.Fn.Name()}
	case vm.FactoryRef:
		return &HFactoryRef{Name: x.Factory.Name}
	case vm.Struct:
		return &HStruct{Fields: normalizeFields(x.Fields)}
	case vm.Option:
		return &HOption{Name: x.Name, Fields: normalizeFields(x.Fields)}
	}
	return &HOpaque{Kind: v.Kind(), Text: v.String()}
}

func normalizeFields(fields map[string]vm.Value) []HField {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]HField, len(names))
	for i, name := range names {
		out[i] = HField{Name: name, Value: normalizeValue(fields[name])}
	}
	return out
}
