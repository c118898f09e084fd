package vm

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

// callBuiltin evaluates name(args...) through the VM.
func callBuiltin(t *testing.T, sys *System, b *Bullet, name string, args ...Value) (Value, error) {
	t.Helper()
	code := make([]Instruction, 0, len(args)+2)
	for _, a := range args {
		code = append(code, Const(a))
	}
	code = append(code, Named(OpLoadBuiltin, name), Call(len(args)))
	cb, err := NewCodeBlock(code)
	if err != nil {
		t.Fatalf("NewCodeBlock failed: %v", err)
	}
	return cb.Evaluate(b, sys)
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestBuiltinRegistry(t *testing.T) {
	for _, name := range []string{
		"ConsoleOutput", "Vector", "Array", "Colour", "Sign", "Max", "Min", "LogB",
		"Sin", "SinD", "Arccot", "ArccotD", "ArcsecD", "ArccscD", "Arcoth",
		"Digamma", "IncompleteBeta", "AiryA", "BesselY", "SquareWave",
		"At", "AtGlobal", "DuringIntervalsGlobal", "RotateVectorD", "Lerp",
		"Pi", "ScreenCenter", "UniformDistribution",
	} {
		if !IsBuiltin(name) {
			t.Errorf("%s is not registered", name)
		}
	}
	if IsBuiltin("Spawn") {
		t.Error("behaviours are not builtins")
	}

	names := BuiltinNames()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("BuiltinNames not sorted at %d: %q >= %q", i, names[i-1], names[i])
		}
	}
}

func TestBuiltinPurity(t *testing.T) {
	if !IsPureBuiltin("Sqrt") {
		t.Error("Sqrt should be pure")
	}
	for _, name := range []string{"Random", "At", "ConsoleOutput", "ScreenCenter", "Pi"} {
		if IsPureBuiltin(name) {
			t.Errorf("%s should not be foldable", name)
		}
	}
}

func TestBuiltinDoc(t *testing.T) {
	if got := BuiltinDoc("Max"); !strings.HasPrefix(got, "Max(List) | Max(Number, Number)") {
		t.Errorf("BuiltinDoc(Max) = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Math
// ---------------------------------------------------------------------------

func TestMathBuiltins(t *testing.T) {
	tests := []struct {
		name string
		args []Value
		want float64
	}{
		{"Sign", []Value{Number(-2)}, -1},
		{"Sign", []Value{Number(0)}, 1},
		{"Floor", []Value{Number(1.7)}, 1},
		{"Ceil", []Value{Number(1.2)}, 2},
		{"Round", []Value{Number(2.5)}, 3},
		{"Max", []Value{Number(3), Number(8)}, 8},
		{"Max", []Value{List{Number(3), Number(9), Number(1)}}, 9},
		{"Min", []Value{List{Number(3), Number(9), Number(1)}}, 1},
		{"LogB", []Value{Number(8), Number(2)}, 3},
		{"Factorial", []Value{Number(5)}, 120},
		{"Factorial", []Value{Number(0)}, 1},
		{"SinD", []Value{Number(90)}, 1},
		{"ArcsinD", []Value{Number(1)}, 90},
		{"Atan2D", []Value{Number(1), Number(1)}, 45},
		{"Sinc", []Value{Number(0)}, 1},
		{"Gamma", []Value{Number(5)}, 24},
		{"Beta", []Value{Number(1), Number(1)}, 1},
		{"IncompleteBeta", []Value{Number(1), Number(1), Number(0.25)}, 0.25},
		{"BesselJ", []Value{Number(0), Number(0)}, 1},
		{"Digamma", []Value{Number(1)}, -0.5772156649015329},
		{"SquareWave", []Value{Number(0), Number(1), Number(0), Number(10), Number(5)}, 0},
		{"SquareWave", []Value{Number(0), Number(1), Number(0), Number(10), Number(15)}, 1},
		{"TriangleWave", []Value{Number(0), Number(10), Number(0), Number(10), Number(15)}, 5},
		{"SawtoothWave", []Value{Number(0), Number(10), Number(0), Number(10), Number(12.5)}, 2.5},
	}

	for _, tt := range tests {
		got, err := callBuiltin(t, nil, nil, tt.name, tt.args...)
		if err != nil {
			t.Errorf("%s%v error: %v", tt.name, tt.args, err)
			continue
		}
		n, ok := got.(Number)
		if !ok || !approx(float64(n), tt.want) {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.args, got, tt.want)
		}
	}
}

func TestAiryFunctions(t *testing.T) {
	ai, err := callBuiltin(t, nil, nil, "AiryA", Number(0))
	if err != nil {
		t.Fatalf("AiryA failed: %v", err)
	}
	if math.Abs(float64(ai.(Number))-0.3550280538878172) > 1e-6 {
		t.Errorf("AiryA(0) = %v", ai)
	}
	bi, err := callBuiltin(t, nil, nil, "AiryB", Number(0))
	if err != nil {
		t.Fatalf("AiryB failed: %v", err)
	}
	if math.Abs(float64(bi.(Number))-0.6149266274460007) > 1e-6 {
		t.Errorf("AiryB(0) = %v", bi)
	}
}

func TestFactorialRejectsFractions(t *testing.T) {
	if _, err := callBuiltin(t, nil, nil, "Factorial", Number(2.5)); err == nil {
		t.Error("Factorial(2.5) should fail")
	}
}

func TestRandomIsSeeded(t *testing.T) {
	draw := func() []Value {
		sys := NewSystem(nil, DefaultOptions())
		var out []Value
		for i := 0; i < 3; i++ {
			v, err := callBuiltin(t, sys, nil, "Random", Number(0), Number(10))
			if err != nil {
				t.Fatalf("Random failed: %v", err)
			}
			if n := float64(v.(Number)); n < 0 || n >= 10 {
				t.Errorf("Random(0, 10) = %v, out of range", n)
			}
			out = append(out, v)
		}
		return out
	}
	a, b := draw(), draw()
	if !Equal(List(a), List(b)) {
		t.Errorf("same seed gave %v and %v", a, b)
	}
}

// ---------------------------------------------------------------------------
// Bullet handles
// ---------------------------------------------------------------------------

func TestBulletHandleBuiltins(t *testing.T) {
	if v, err := callBuiltin(t, nil, nil, "Self"); err != nil || v != (Null{}) {
		t.Errorf("Self() outside a bullet = %v, %v, want Null", v, err)
	}

	sys := NewSystem(nil, DefaultOptions())
	b := &Bullet{Speed: 2, Direction: Vector{1, 0}, Vars: map[string]Value{}}
	sys.AddBullet(b, NoBullet)

	v, err := callBuiltin(t, sys, b, "Self")
	if err != nil || v != (BulletRef{b.ID}) {
		t.Fatalf("Self() = %v, %v, want %v", v, err, BulletRef{b.ID})
	}
	if p, _ := callBuiltin(t, sys, b, "Parent"); p != (Null{}) {
		t.Errorf("Parent() of a top-level bullet = %v, want Null", p)
	}
	if alive, _ := callBuiltin(t, sys, nil, "Alive", v); alive != Bool(true) {
		t.Errorf("Alive = %v, want True", alive)
	}

	info, err := callBuiltin(t, sys, nil, "Inspect", v)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := info.(Struct)
	if !ok {
		t.Fatalf("Inspect = %v, want a Struct", info)
	}
	if s.Fields["Speed"] != Number(2) || s.Fields["Direction"] != (Vector{1, 0}) {
		t.Errorf("Inspect fields = %v", s.Fields)
	}
	if f, _ := callBuiltin(t, nil, nil, "Field", s, String("Speed")); f != Number(2) {
		t.Errorf("Field(Speed) = %v, want 2", f)
	}
	if f, _ := callBuiltin(t, nil, nil, "Field", s, String("Mass")); f != (Null{}) {
		t.Errorf("Field(Mass) = %v, want Null", f)
	}

	b.Kill()
	if alive, _ := callBuiltin(t, sys, nil, "Alive", v); alive != Bool(false) {
		t.Errorf("Alive after Kill = %v, want False", alive)
	}
	if gone, _ := callBuiltin(t, sys, nil, "Inspect", v); gone != (Null{}) {
		t.Errorf("Inspect after Kill = %v, want Null", gone)
	}
}

// ---------------------------------------------------------------------------
// Constructors and vectors
// ---------------------------------------------------------------------------

func TestConstructors(t *testing.T) {
	v, err := callBuiltin(t, nil, nil, "Vector", Number(1), Number(2))
	if err != nil || v != (Vector{1, 2}) {
		t.Errorf("Vector(1, 2) = %v, %v", v, err)
	}
	l, err := callBuiltin(t, nil, nil, "Array", String("a"), Number(1))
	if err != nil || !Equal(l, List{String("a"), Number(1)}) {
		t.Errorf("Array = %v, %v", l, err)
	}
	c, err := callBuiltin(t, nil, nil, "Colour", Number(300), Number(0), Number(10))
	if err != nil || c != (Colour{255, 0, 10, 255}) {
		t.Errorf("Colour = %v, %v", c, err)
	}
	o, err := callBuiltin(t, nil, nil, "UniformDistribution", Number(5), Number(1))
	if err != nil {
		t.Fatalf("UniformDistribution failed: %v", err)
	}
	opt := o.(Option)
	if opt.Fields["Min"] != Number(1) || opt.Fields["Max"] != Number(5) {
		t.Errorf("UniformDistribution fields = %v", opt.Fields)
	}
}

func TestVectorBuiltins(t *testing.T) {
	tests := []struct {
		name string
		args []Value
		want Vector
	}{
		{"LeftNormal", []Value{Vector{1, 0}}, Vector{0, 1}},
		{"RightNormal", []Value{Vector{1, 0}}, Vector{0, -1}},
		{"Normalized", []Value{Vector{0, 5}}, Vector{0, 1}},
		{"Polar", []Value{Number(0)}, Vector{1, 0}},
		{"PolarD", []Value{Number(2), Number(90)}, Vector{0, 2}},
		{"RotateVectorD", []Value{Vector{2, 0}, Number(90)}, Vector{0, 1}},
		{"Lerp", []Value{Vector{0, 0}, Vector{10, 20}, Number(0.5)}, Vector{5, 10}},
	}
	for _, tt := range tests {
		got, err := callBuiltin(t, nil, nil, tt.name, tt.args...)
		if err != nil {
			t.Errorf("%s error: %v", tt.name, err)
			continue
		}
		v := got.(Vector)
		if !approx(v.X, tt.want.X) || !approx(v.Y, tt.want.Y) {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.args, v, tt.want)
		}
	}

	m, _ := callBuiltin(t, nil, nil, "Magnitude", Vector{3, 4})
	if m != Number(5) {
		t.Errorf("Magnitude = %v, want 5", m)
	}
	a, _ := callBuiltin(t, nil, nil, "AngleOfD", Vector{0, 1})
	if !approx(float64(a.(Number)), 90) {
		t.Errorf("AngleOfD = %v, want 90", a)
	}
}

func TestScreenCenterFollowsOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Width, opts.Height = 800, 600
	sys := NewSystem(nil, opts)
	v, ok := LookupBuiltin("ScreenCenter", sys)
	if !ok || v != (Vector{400, 300}) {
		t.Errorf("ScreenCenter = %v, want (400, 300)", v)
	}
	v, _ = LookupBuiltin("ScreenCenter", nil)
	if v != (Vector{640, 360}) {
		t.Errorf("default ScreenCenter = %v, want (640, 360)", v)
	}
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Console = &buf
	sys := NewSystem(nil, opts)
	if _, err := callBuiltin(t, sys, nil, "ConsoleOutput", String("x ="), Number(2), Bool(true)); err != nil {
		t.Fatalf("ConsoleOutput failed: %v", err)
	}
	if got := buf.String(); got != "x = 2 True\n" {
		t.Errorf("console = %q, want %q", got, "x = 2 True\n")
	}
}

// ---------------------------------------------------------------------------
// Time predicates
// ---------------------------------------------------------------------------

func TestTimePredicates(t *testing.T) {
	b := newBullet(Vector{}, nil)
	tests := []struct {
		name string
		time float64
		args []Value
		want bool
	}{
		{"At", 100, []Value{Number(100)}, true},
		{"At", 112, []Value{Number(100)}, true},
		{"At", 116, []Value{Number(100)}, false},
		{"At", 99, []Value{Number(100)}, false},
		{"Before", 99, []Value{Number(100)}, true},
		{"Before", 100, []Value{Number(100)}, false},
		{"After", 100, []Value{Number(100)}, true},
		{"From", 50, []Value{Number(50), Number(60)}, true},
		{"From", 60, []Value{Number(50), Number(60)}, false},
		{"Outside", 40, []Value{Number(50), Number(60)}, true},
		{"Outside", 55, []Value{Number(50), Number(60)}, false},
		{"Outside", 60, []Value{Number(50), Number(60)}, true},
		{"AtIntervals", 200, []Value{Number(100)}, true},
		{"AtIntervals", 216, []Value{Number(100)}, false},
		{"AtIntervals", 150, []Value{Number(100), Number(50), Number(500)}, true},
		{"AtIntervals", 40, []Value{Number(100), Number(50), Number(500)}, false},
		{"AtIntervals", 650, []Value{Number(100), Number(50), Number(500)}, false},
		{"DuringIntervals", 50, []Value{Number(100)}, true},
		{"DuringIntervals", 150, []Value{Number(100)}, false},
		{"DuringIntervals", 260, []Value{Number(100), Number(10), Number(1000)}, true},
	}

	sys := NewSystem(nil, DefaultOptions())
	for _, tt := range tests {
		b.LocalTime = tt.time
		got, err := callBuiltin(t, sys, b, tt.name, tt.args...)
		if err != nil {
			t.Errorf("%s%v error: %v", tt.name, tt.args, err)
			continue
		}
		if got != Bool(tt.want) {
			t.Errorf("%s%v at t=%v = %v, want %v", tt.name, tt.args, tt.time, got, tt.want)
		}
	}
}

func TestGlobalTimePredicates(t *testing.T) {
	sys := NewSystem(nil, DefaultOptions())
	sys.time = 500
	b := newBullet(Vector{}, nil)

	got, _ := callBuiltin(t, sys, b, "AtGlobal", Number(500))
	if got != Bool(true) {
		t.Errorf("AtGlobal(500) = %v, want True", got)
	}
	got, _ = callBuiltin(t, sys, b, "At", Number(500))
	if got != Bool(false) {
		t.Errorf("At(500) with bullet time 0 = %v, want False", got)
	}
	// Without a bullet the plain form falls back to the global clock.
	got, _ = callBuiltin(t, sys, nil, "At", Number(500))
	if got != Bool(true) {
		t.Errorf("At(500) without bullet = %v, want True", got)
	}
}
