package vm

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mathext"
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

func init() {
	registerFunc(unaryMath("Sign", func(x float64) float64 {
		if x < 0 {
			return -1
		}
		return 1
	}), "Sign(x) is -1 for negative x and 1 otherwise.")
	registerFunc(unaryMath("Floor", math.Floor), "")
	registerFunc(unaryMath("Ceil", math.Ceil), "")
	registerFunc(unaryMath("Round", math.Round), "Round(x) rounds half away from zero.")
	registerFunc(unaryMath("Abs", math.Abs), "")
	registerFunc(unaryMath("Sqrt", math.Sqrt), "")
	registerFunc(unaryMath("Log", math.Log), "Log(x) is the natural logarithm.")
	registerFunc(binaryMath("LogB", func(x, b float64) float64 { return math.Log(x) / math.Log(b) }),
		"LogB(x, b) is the base b logarithm of x.")
	registerFunc(unaryMath("Exp", math.Exp), "")
	registerFunc(NewBuiltin("Factorial", true, sigs(sigNum), factorial),
		"Factorial(n) for a non-negative integer n.")

	registerFunc(NewBuiltin("Max", true, sigs(sig(KindList), sigNum2), extremum("Max", math.Max)),
		"Max(list) or Max(a, b).")
	registerFunc(NewBuiltin("Min", true, sigs(sig(KindList), sigNum2), extremum("Min", math.Min)),
		"Min(list) or Min(a, b).")

	// Trigonometry, radians and degrees.
	for _, t := range []struct {
		name string
		fn   func(float64) float64
	}{
		{"Sin", math.Sin},
		{"Cos", math.Cos},
		{"Tan", math.Tan},
		{"Sec", func(x float64) float64 { return 1 / math.Cos(x) }},
		{"Csc", func(x float64) float64 { return 1 / math.Sin(x) }},
		{"Cot", func(x float64) float64 { return 1 / math.Tan(x) }},
	} {
		fn := t.fn
		registerFunc(unaryMath(t.name, fn), "")
		registerFunc(unaryMath(t.name+"D", func(x float64) float64 { return fn(x * degToRad) }), "")
	}
	for _, t := range []struct {
		name string
		fn   func(float64) float64
	}{
		{"Arcsin", math.Asin},
		{"Arccos", math.Acos},
		{"Arctan", math.Atan},
		{"Arcsec", func(x float64) float64 { return math.Acos(1 / x) }},
		{"Arccsc", func(x float64) float64 { return math.Asin(1 / x) }},
		{"Arccot", func(x float64) float64 { return math.Atan(1 / x) }},
	} {
		fn := t.fn
		registerFunc(unaryMath(t.name, fn), "")
		registerFunc(unaryMath(t.name+"D", func(x float64) float64 { return fn(x) * radToDeg }), "")
	}
	registerFunc(binaryMath("Atan2", math.Atan2), "Atan2(y, x) in radians.")
	registerFunc(binaryMath("Atan2D", func(y, x float64) float64 { return math.Atan2(y, x) * radToDeg }),
		"Atan2D(y, x) in degrees.")

	// Hyperbolic functions and their inverses.
	registerFunc(unaryMath("Sinh", math.Sinh), "")
	registerFunc(unaryMath("Cosh", math.Cosh), "")
	registerFunc(unaryMath("Tanh", math.Tanh), "")
	registerFunc(unaryMath("Sech", func(x float64) float64 { return 1 / math.Cosh(x) }), "")
	registerFunc(unaryMath("Csch", func(x float64) float64 { return 1 / math.Sinh(x) }), "")
	registerFunc(unaryMath("Coth", func(x float64) float64 { return 1 / math.Tanh(x) }), "")
	registerFunc(unaryMath("Arsinh", math.Asinh), "")
	registerFunc(unaryMath("Arcosh", math.Acosh), "")
	registerFunc(unaryMath("Artanh", math.Atanh), "")
	registerFunc(unaryMath("Arsech", func(x float64) float64 { return math.Acosh(1 / x) }), "")
	registerFunc(unaryMath("Arcsch", func(x float64) float64 { return math.Asinh(1 / x) }), "")
	registerFunc(unaryMath("Arcoth", func(x float64) float64 { return math.Atanh(1 / x) }), "")

	// Special functions.
	registerFunc(unaryMath("Sinc", func(x float64) float64 {
		if x == 0 {
			return 1
		}
		return math.Sin(x) / x
	}), "Sinc(x) is sin(x)/x, with Sinc(0) = 1.")
	registerFunc(unaryMath("Tanhc", func(x float64) float64 {
		if x == 0 {
			return 1
		}
		return math.Tanh(x) / x
	}), "Tanhc(x) is tanh(x)/x, with Tanhc(0) = 1.")
	registerFunc(unaryMath("Erf", math.Erf), "")
	registerFunc(unaryMath("Gudermannian", func(x float64) float64 { return math.Asin(math.Tanh(x)) }), "")
	registerFunc(unaryMath("InverseGudermannian", func(x float64) float64 { return math.Atanh(math.Sin(x)) }), "")
	registerFunc(unaryMath("Gamma", math.Gamma), "")
	registerFunc(unaryMath("Digamma", mathext.Digamma), "")
	registerFunc(binaryMath("Beta", mathext.Beta), "Beta(a, b) is the complete beta function.")
	registerFunc(NewBuiltin("IncompleteBeta", true, sigs(sigNum3), func(_ *Frame, args []Value) (Value, error) {
		return Number(mathext.RegIncBeta(num(args[0]), num(args[1]), num(args[2]))), nil
	}), "IncompleteBeta(a, b, x) is the regularized incomplete beta function.")
	registerFunc(unaryMath("AiryA", airyAi), "AiryA(x) is the Airy function Ai.")
	registerFunc(unaryMath("AiryB", airyBi), "AiryB(x) is the Airy function Bi.")

	registerFunc(unaryMath("BesselJ0", math.J0), "")
	registerFunc(unaryMath("BesselJ1", math.J1), "")
	registerFunc(unaryMath("BesselY0", math.Y0), "")
	registerFunc(unaryMath("BesselY1", math.Y1), "")
	registerFunc(NewBuiltin("BesselJ", true, sigs(sigNum2), bessel("BesselJ", math.Jn)),
		"BesselJ(n, x) is the order n Bessel function of the first kind.")
	registerFunc(NewBuiltin("BesselY", true, sigs(sigNum2), bessel("BesselY", math.Yn)),
		"BesselY(n, x) is the order n Bessel function of the second kind.")

	// Waveforms over time.
	waveSig := sigs(sig(KindNumber, KindNumber, KindNumber, KindNumber, KindNumber))
	registerFunc(NewBuiltin("SquareWave", true, waveSig, wave(squareWave)),
		"SquareWave(min, max, start, period, time) is min for the first period after start and max for the next.")
	registerFunc(NewBuiltin("TriangleWave", true, waveSig, wave(triangleWave)),
		"TriangleWave(min, max, start, period, time) rises from min to max over one period and falls back over the next.")
	registerFunc(NewBuiltin("SawtoothWave", true, waveSig, wave(sawtoothWave)),
		"SawtoothWave(min, max, start, period, time) rises from min to max once per period.")
}

func factorial(_ *Frame, args []Value) (Value, error) {
	n := num(args[0])
	if n < 0 || n != math.Trunc(n) {
		return nil, syntaxf("`Factorial` requires that argument one be a non-negative integer.")
	}
	r := 1.0
	for i := 2.0; i <= n; i++ {
		r *= i
	}
	return Number(r), nil
}

func extremum(name string, pick func(float64, float64) float64) func(*Frame, []Value) (Value, error) {
	return func(_ *Frame, args []Value) (Value, error) {
		if len(args) == 2 {
			return Number(pick(num(args[0]), num(args[1]))), nil
		}
		list := args[0].(List)
		if len(list) == 0 {
			return nil, syntaxf("`%s` of an empty list.", name)
		}
		var r float64
		for i, v := range list {
			n, ok := v.(Number)
			if !ok {
				return nil, BadArgumentType(name, 1, KindNumber, v.Kind())
			}
			if i == 0 {
				r = float64(n)
				continue
			}
			r = pick(r, float64(n))
		}
		return Number(r), nil
	}
}

func bessel(name string, fn func(int, float64) float64) func(*Frame, []Value) (Value, error) {
	return func(_ *Frame, args []Value) (Value, error) {
		n := num(args[0])
		if n != math.Trunc(n) {
			return nil, syntaxf("`%s` requires that argument one be an integer.", name)
		}
		return Number(fn(int(n), num(args[1]))), nil
	}
}

func airyAi(x float64) float64 {
	return real(mathext.AiryAi(complex(x, 0)))
}

// airyBi uses Bi(z) = e^(iπ/6) Ai(zω) + e^(-iπ/6) Ai(zω̄) with ω = e^(2πi/3).
func airyBi(x float64) float64 {
	w := cmplx.Exp(complex(0, 2*math.Pi/3))
	p := cmplx.Exp(complex(0, math.Pi/6))
	z := complex(x, 0)
	return real(p*mathext.AiryAi(z*w) + cmplx.Conj(p)*mathext.AiryAi(z*cmplx.Conj(w)))
}

func wave(fn func(lo, hi, start, period, t float64) float64) func(*Frame, []Value) (Value, error) {
	return func(_ *Frame, args []Value) (Value, error) {
		return Number(fn(num(args[0]), num(args[1]), num(args[2]), num(args[3]), num(args[4]))), nil
	}
}

// phase returns (t-start) mod m, shifted into [0, m).
func phase(t, start, m float64) float64 {
	p := math.Mod(t-start, m)
	if p < 0 {
		p += m
	}
	return p
}

func squareWave(lo, hi, start, period, t float64) float64 {
	if phase(t, start, 2*period) < period {
		return lo
	}
	return hi
}

func triangleWave(lo, hi, start, period, t float64) float64 {
	p := phase(t, start, 2*period)
	if p < period {
		return lo + (hi-lo)*p/period
	}
	return hi - (hi-lo)*(p-period)/period
}

func sawtoothWave(lo, hi, start, period, t float64) float64 {
	return lo + (hi-lo)*phase(t, start, period)/period
}
