package snapshot

import (
	"fmt"

	"github.com/chazu/dml/vm"
)

// Value is the wire form of a vm.Value. Kind selects which fields are set.
type Value struct {
	Kind   vm.Kind          `cbor:"1,keyasint"`
	Num    []float64        `cbor:"2,keyasint,omitempty"` // Number, Vector, Colour, Bool
	Str    string           `cbor:"3,keyasint,omitempty"` // String, function, factory or option name
	List   []Value          `cbor:"4,keyasint,omitempty"`
	Fields map[string]Value `cbor:"5,keyasint,omitempty"`
	Ref    Handle           `cbor:"6,keyasint,omitempty"`
}

func encodeValue(v vm.Value) (Value, error) {
	switch x := v.(type) {
	case nil, vm.Null:
		return Value{Kind: vm.KindNull}, nil
	case vm.Bool:
		n := 0.0
		if x {
			n = 1
		}
		return Value{Kind: vm.KindBool, Num: []float64{n}}, nil
	case vm.Number:
		return Value{Kind: vm.KindNumber, Num: []float64{float64(x)}}, nil
	case vm.String:
		return Value{Kind: vm.KindString, Str: string(x)}, nil
	case vm.Vector:
		return Value{Kind: vm.KindVector, Num: []float64{x.X, x.Y}}, nil
	case vm.Colour:
		return Value{Kind: vm.KindColour, Num: []float64{x.R, x.G, x.B, x.A}}, nil
	case vm.List:
		out := Value{Kind: vm.KindList, List: make([]Value, len(x))}
		for i, el := range x {
			ev, err := encodeValue(el)
			if err != nil {
				return Value{}, err
			}
			out.List[i] = ev
		}
		return out, nil
	case vm.Func:
		return Value{Kind: vm.KindFunction, Str: x.Fn.Name()}, nil
	case vm.BulletRef:
		return Value{Kind: vm.KindBullet, Ref: handleOf(x.ID)}, nil
	case vm.FactoryRef:
		return Value{Kind: vm.KindFactory, Str: x.Factory.Name}, nil
	case vm.Struct:
		fields, err := encodeFields(x.Fields)
		return Value{Kind: vm.KindStruct, Fields: fields}, err
	case vm.Option:
		fields, err := encodeFields(x.Fields)
		return Value{Kind: vm.KindOption, Str: x.Name, Fields: fields}, err
	}
	return Value{}, fmt.Errorf("cannot encode %s value", v.Kind())
}

func encodeFields(fields map[string]vm.Value) (map[string]Value, error) {
	out := make(map[string]Value, len(fields))
	for name, v := range fields {
		ev, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		out[name] = ev
	}
	return out, nil
}

func decodeValue(w Value, prog *vm.Program, sys *vm.System) (vm.Value, error) {
	need := func(n int) error {
		if len(w.Num) != n {
			return fmt.Errorf("%s value needs %d components, got %d", w.Kind, n, len(w.Num))
		}
		return nil
	}
	switch w.Kind {
	case vm.KindNull:
		return vm.Null{}, nil
	case vm.KindBool:
		if err := need(1); err != nil {
			return nil, err
		}
		return vm.Bool(w.Num[0] != 0), nil
	case vm.KindNumber:
		if err := need(1); err != nil {
			return nil, err
		}
		return vm.Number(w.Num[0]), nil
	case vm.KindString:
		return vm.String(w.Str), nil
	case vm.KindVector:
		if err := need(2); err != nil {
			return nil, err
		}
		return vm.Vector{X: w.Num[0], Y: w.Num[1]}, nil
	case vm.KindColour:
		if err := need(4); err != nil {
			return nil, err
		}
		return vm.Colour{R: w.Num[0], G: w.Num[1], B: w.Num[2], A: w.Num[3]}, nil
	case vm.KindList:
		out := make(vm.List, len(w.List))
		for i, el := range w.List {
			v, err := decodeValue(el, prog, sys)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case vm.KindFunction:
		v, ok := vm.LookupBuiltin(w.Str, sys)
		if !ok {
			return nil, fmt.Errorf("unknown function %s", w.Str)
		}
		return v, nil
	case vm.KindBullet:
		return vm.BulletRef{ID: w.Ref.id()}, nil
	case vm.KindFactory:
		f, ok := prog.Factories[w.Str]
		if !ok {
			return nil, fmt.Errorf("unknown factory @%s", w.Str)
		}
		return vm.FactoryRef{Factory: f}, nil
	case vm.KindStruct:
		fields, err := decodeFields(w.Fields, prog, sys)
		if err != nil {
			return nil, err
		}
		return vm.Struct{Fields: fields}, nil
	case vm.KindOption:
		fields, err := decodeFields(w.Fields, prog, sys)
		if err != nil {
			return nil, err
		}
		return vm.Option{Name: w.Str, Fields: fields}, nil
	}
	return nil, fmt.Errorf("unknown value kind %d", w.Kind)
}

func decodeFields(fields map[string]Value, prog *vm.Program, sys *vm.System) (map[string]vm.Value, error) {
	out := make(map[string]vm.Value, len(fields))
	for name, w := range fields {
		v, err := decodeValue(w, prog, sys)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
