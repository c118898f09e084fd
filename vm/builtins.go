package vm

import (
	"fmt"
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Signature helpers
// ---------------------------------------------------------------------------

func sig(kinds ...Kind) []Kind { return kinds }

func sigs(s ...[]Kind) [][]Kind { return s }

var (
	sigNum  = sig(KindNumber)
	sigNum2 = sig(KindNumber, KindNumber)
	sigNum3 = sig(KindNumber, KindNumber, KindNumber)
	sigVec  = sig(KindVector)
)

func num(v Value) float64 { return float64(v.(Number)) }

func vec(v Value) Vector { return v.(Vector) }

// unaryMath wraps a one-argument numeric function.
func unaryMath(name string, fn func(float64) float64) *Builtin {
	return NewBuiltin(name, true, sigs(sigNum), func(_ *Frame, args []Value) (Value, error) {
		return Number(fn(num(args[0]))), nil
	})
}

// binaryMath wraps a two-argument numeric function.
func binaryMath(name string, fn func(float64, float64) float64) *Builtin {
	return NewBuiltin(name, true, sigs(sigNum2), func(_ *Frame, args []Value) (Value, error) {
		return Number(fn(num(args[0]), num(args[1]))), nil
	})
}

// ---------------------------------------------------------------------------
// Core builtins
// ---------------------------------------------------------------------------

func init() {
	registerFunc(NewVariadic("ConsoleOutput", false, consoleOutput),
		"Writes its arguments to the console separated by spaces.")

	registerFunc(NewBuiltin("Vector", true, sigs(sigNum2), func(_ *Frame, args []Value) (Value, error) {
		return Vector{num(args[0]), num(args[1])}, nil
	}), "Vector(x, y) builds a 2D vector.")

	registerFunc(NewVariadic("Array", true, func(_ *Frame, args []Value) (Value, error) {
		return List(args), nil
	}), "Array(a, b, ...) builds a list.")

	registerFunc(NewBuiltin("Colour", true, sigs(sigNum3, sig(KindNumber, KindNumber, KindNumber, KindNumber)),
		func(_ *Frame, args []Value) (Value, error) {
			c := Colour{R: num(args[0]), G: num(args[1]), B: num(args[2]), A: 255}
			if len(args) == 4 {
				c.A = num(args[3])
			}
			return c.Clamped(), nil
		}), "Colour(r, g, b[, a]) builds a colour from 0..255 channels.")

	registerFunc(NewBuiltin("UniformDistribution", true, sigs(sigNum2), func(_ *Frame, args []Value) (Value, error) {
		lo, hi := num(args[0]), num(args[1])
		if hi < lo {
			lo, hi = hi, lo
		}
		return Option{Name: "UniformDistribution", Fields: map[string]Value{
			"Min": Number(lo),
			"Max": Number(hi),
		}}, nil
	}), "UniformDistribution(min, max) can be passed to a numeric behaviour parameter; each invocation samples it.")

	registerFunc(NewBuiltin("Random", false, sigs(sigNum2), func(f *Frame, args []Value) (Value, error) {
		lo, hi := num(args[0]), num(args[1])
		return Number(f.System.Uniform(lo, hi)), nil
	}), "Random(min, max) returns a uniformly distributed number in [min, max).")

	register("Pi", "", Number(math.Pi))
	register("E", "", Number(math.E))
	register("Infinity", "", Number(math.Inf(1)))
	register("ZeroVector", "", ZeroVector)
	register("Up", "", Vector{0, -1})
	register("Down", "", Vector{0, 1})
	register("Left", "", Vector{-1, 0})
	register("Right", "", Vector{1, 0})
	register("Ones", "", Vector{1, 1})
	registerDynamic("ScreenCenter", "The centre of the configured screen resolution.", func(sys *System) Value {
		if sys == nil {
			d := DefaultOptions()
			return Vector{d.Width / 2, d.Height / 2}
		}
		return sys.ScreenCenter()
	})
}

func consoleOutput(f *Frame, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	line := strings.Join(parts, " ")
	if f.System != nil {
		fmt.Fprintln(f.System.opts.Console, line)
	} else {
		fmt.Println(line)
	}
	return Null{}, nil
}
