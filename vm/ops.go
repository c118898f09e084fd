package vm

import "math"

var opSymbols = map[Opcode]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%", OpPow: "^",
	OpNeg: "-", OpAbs: "~", OpNot: "!", OpAnd: "&&", OpOr: "||",
	OpEq: "==", OpNeq: "!=", OpLt: "<", OpGt: ">", OpLtEq: "<=", OpGtEq: ">=",
}

// Binary applies a binary operator to two values.
func Binary(op Opcode, a, b Value) (Value, error) {
	switch op {
	case OpAdd:
		return add(a, b)
	case OpSub:
		return sub(a, b)
	case OpMul:
		return mul(a, b)
	case OpDiv:
		return div(a, b)
	case OpMod, OpPow, OpLt, OpGt, OpLtEq, OpGtEq:
		x, ok1 := a.(Number)
		y, ok2 := b.(Number)
		if !ok1 || !ok2 {
			return nil, BadBinaryOperandTypes(opSymbols[op], a.Kind(), b.Kind())
		}
		return numeric(op, float64(x), float64(y)), nil
	case OpAnd, OpOr:
		x, ok1 := a.(Bool)
		y, ok2 := b.(Bool)
		if !ok1 || !ok2 {
			return nil, BadBinaryOperandTypes(opSymbols[op], a.Kind(), b.Kind())
		}
		if op == OpAnd {
			return x && y, nil
		}
		return x || y, nil
	case OpEq:
		return Bool(Equal(a, b)), nil
	case OpNeq:
		return Bool(!Equal(a, b)), nil
	}
	return nil, runtimef("%s is not a binary operator.", op)
}

func numeric(op Opcode, x, y float64) Value {
	switch op {
	case OpMod:
		return Number(math.Mod(x, y))
	case OpPow:
		return Number(math.Pow(x, y))
	case OpLt:
		return Bool(x < y)
	case OpGt:
		return Bool(x > y)
	case OpLtEq:
		return Bool(x <= y)
	}
	return Bool(x >= y)
}

func add(a, b Value) (Value, error) {
	if s, ok := a.(String); ok {
		return s + String(b.String()), nil
	}
	if s, ok := b.(String); ok {
		return String(a.String()) + s, nil
	}
	if l, ok := a.(List); ok {
		out := make(List, len(l), len(l)+1)
		copy(out, l)
		return append(out, b), nil
	}
	if l, ok := b.(List); ok {
		out := make(List, 0, len(l)+1)
		out = append(out, a)
		return append(out, l...), nil
	}
	switch x := a.(type) {
	case Number:
		if y, ok := b.(Number); ok {
			return x + y, nil
		}
	case Vector:
		if y, ok := b.(Vector); ok {
			return x.Add(y), nil
		}
	case Colour:
		if y, ok := b.(Colour); ok {
			return x.Add(y), nil
		}
	}
	return nil, BadBinaryOperandTypes("+", a.Kind(), b.Kind())
}

func sub(a, b Value) (Value, error) {
	switch x := a.(type) {
	case Number:
		if y, ok := b.(Number); ok {
			return x - y, nil
		}
	case Vector:
		if y, ok := b.(Vector); ok {
			return x.Sub(y), nil
		}
	case Colour:
		if y, ok := b.(Colour); ok {
			return x.Sub(y), nil
		}
	}
	return nil, BadBinaryOperandTypes("-", a.Kind(), b.Kind())
}

func mul(a, b Value) (Value, error) {
	switch x := a.(type) {
	case Number:
		switch y := b.(type) {
		case Number:
			return x * y, nil
		case Vector:
			return y.Scale(float64(x)), nil
		case Colour:
			return y.Scale(float64(x)), nil
		}
	case Vector:
		switch y := b.(type) {
		case Number:
			return x.Scale(float64(y)), nil
		case Vector:
			return Number(x.Dot(y)), nil
		}
	case Colour:
		if y, ok := b.(Number); ok {
			return x.Scale(float64(y)), nil
		}
	}
	return nil, BadBinaryOperandTypes("*", a.Kind(), b.Kind())
}

func div(a, b Value) (Value, error) {
	y, ok := b.(Number)
	if !ok {
		return nil, BadBinaryOperandTypes("/", a.Kind(), b.Kind())
	}
	switch x := a.(type) {
	case Number:
		return x / y, nil
	case Vector:
		return x.Scale(1 / float64(y)), nil
	case Colour:
		return x.Scale(1 / float64(y)), nil
	}
	return nil, BadBinaryOperandTypes("/", a.Kind(), b.Kind())
}

// Unary applies a prefix operator.
func Unary(op Opcode, a Value) (Value, error) {
	switch op {
	case OpNeg:
		switch x := a.(type) {
		case Number:
			return -x, nil
		case Vector:
			return x.Scale(-1), nil
		}
	case OpAbs:
		switch x := a.(type) {
		case Number:
			return Number(math.Abs(float64(x))), nil
		case Vector:
			return Number(x.Len()), nil
		}
	case OpNot:
		if x, ok := a.(Bool); ok {
			return !x, nil
		}
	default:
		return nil, runtimef("%s is not a unary operator.", op)
	}
	return nil, BadUnaryOperandType(opSymbols[op], a.Kind())
}
