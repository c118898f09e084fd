package vm

import (
	"errors"
	"testing"
)

func mustBlock(t *testing.T, code ...Instruction) *CodeBlock {
	t.Helper()
	cb, err := NewCodeBlock(code)
	if err != nil {
		t.Fatalf("NewCodeBlock failed: %v", err)
	}
	return cb
}

// ---------------------------------------------------------------------------
// Label resolution
// ---------------------------------------------------------------------------

func TestResolveTargetsPointAtLabels(t *testing.T) {
	code := []Instruction{
		Jump(OpJump, "end"),
		Const(Number(1)),
		Label("end"),
		Jump(OpJump, "end"),
	}
	resolved, err := Resolve(code)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for _, i := range []int{0, 3} {
		tgt := resolved[i].Target
		if !tgt.Resolved() || tgt.Index() != 2 {
			t.Errorf("instruction %d target = %v, want resolved index 2", i, tgt)
		}
	}
	if code[0].Target.Resolved() {
		t.Error("Resolve modified its input")
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		code []Instruction
	}{
		{"duplicate", []Instruction{Label("a"), Label("a")}},
		{"undefined", []Instruction{Jump(OpJumpIfFalse, "missing")}},
	}
	for _, tt := range tests {
		_, err := Resolve(tt.code)
		var e *Error
		if !errors.As(err, &e) || e.Kind != ErrParser {
			t.Errorf("%s: error = %v, want a parser error", tt.name, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

func TestEvaluateArithmetic(t *testing.T) {
	// 2 + 3 * 4
	cb := mustBlock(t,
		Const(Number(2)),
		Const(Number(3)),
		Const(Number(4)),
		Op(OpMul),
		Op(OpAdd),
	)
	got, err := cb.Evaluate(nil, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != Number(14) {
		t.Errorf("got %v, want 14", got)
	}
}

func TestEvaluateEmptyIsNull(t *testing.T) {
	got, err := EmptyCodeBlock().Evaluate(nil, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != (Null{}) {
		t.Errorf("got %v, want Null", got)
	}
}

func TestJumpIfFalseSkipsBody(t *testing.T) {
	visits := make(map[int]int)
	cb := mustBlock(t,
		Const(Bool(false)),
		Jump(OpJumpIfFalse, "skip"),
		Const(Number(1)),
		Named(OpStoreLocal, "x"),
		Label("skip"),
	)
	err := cb.Trace(nil, nil, func(ip int, _ Instruction) { visits[ip]++ })
	if err != nil {
		t.Fatalf("Trace failed: %v", err)
	}
	for ip, want := range map[int]int{0: 1, 1: 1, 2: 0, 3: 0, 4: 1} {
		if visits[ip] != want {
			t.Errorf("instruction %d visited %d times, want %d", ip, visits[ip], want)
		}
	}
}

func TestJumpIfFalseRequiresBool(t *testing.T) {
	cb := mustBlock(t, Const(Number(0)), Jump(OpJumpIfFalse, "l"), Label("l"))
	if err := cb.Execute(nil, nil); err == nil {
		t.Error("expected an error for a non-Bool condition")
	}
}

// A do-while loop: i = 0; n = 0; do { n = n + 1; i = i + 1 } while i <= 4.
// The label is instruction 4, the jump 15 and the final load 16.
func TestJumpIfLessOrEqualLoop(t *testing.T) {
	visits := make(map[int]int)
	cb := mustBlock(t,
		Const(Number(0)), Named(OpStoreLocal, "i"),
		Const(Number(0)), Named(OpStoreLocal, "n"),
		Label("top"),
		Named(OpLoadLocal, "n"), Const(Number(1)), Op(OpAdd),
		Named(OpStoreLocal, "n"),
		Named(OpLoadLocal, "i"), Const(Number(1)), Op(OpAdd),
		Named(OpStoreLocal, "i"),
		Named(OpLoadLocal, "i"), Const(Number(4)),
		Jump(OpJumpIfLessOrEqual, "top"),
		Named(OpLoadLocal, "n"),
	)
	var got Value
	err := cb.Trace(nil, nil, func(ip int, _ Instruction) { visits[ip]++ })
	if err != nil {
		t.Fatalf("Trace failed: %v", err)
	}
	got, err = cb.Evaluate(nil, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != Number(5) {
		t.Errorf("n = %v, want 5", got)
	}
	if visits[4] != 5 || visits[15] != 5 || visits[16] != 1 {
		t.Errorf("visits label=%d jump=%d tail=%d, want 5, 5, 1", visits[4], visits[15], visits[16])
	}
}

func TestFrameIsPerCall(t *testing.T) {
	// Each run sees a fresh local scope: loading x before storing it fails.
	cb := mustBlock(t,
		Named(OpLoadLocal, "x"),
	)
	if err := cb.Execute(nil, nil); err == nil {
		t.Fatal("expected undefined variable error")
	}
	store := mustBlock(t, Const(Number(1)), Named(OpStoreLocal, "x"))
	if err := store.Execute(nil, nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if err := cb.Execute(nil, nil); err == nil {
		t.Error("locals leaked between invocations")
	}
}

func TestGlobalsAndBound(t *testing.T) {
	sys := NewSystem(nil, DefaultOptions())
	b := newBullet(Vector{}, nil)

	set := mustBlock(t,
		Const(Number(7)), Named(OpStoreGlobal, "g"),
		Const(String("v")), Named(OpStoreBound, "tag"),
	)
	if err := set.Execute(b, sys); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if sys.Globals["g"] != Number(7) {
		t.Errorf("global g = %v, want 7", sys.Globals["g"])
	}
	if b.Vars["tag"] != String("v") {
		t.Errorf("bound tag = %v, want v", b.Vars["tag"])
	}

	get := mustBlock(t, Named(OpLoadGlobal, "g"), Named(OpLoadBound, "tag"), Op(OpAdd))
	got, err := get.Evaluate(b, sys)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != String("7v") {
		t.Errorf("got %v, want 7v", got)
	}
}

func TestIntrinsicsNeedBullet(t *testing.T) {
	cb := mustBlock(t, LoadIntrinsic(IntrinsicSpeed))
	_, err := cb.Evaluate(nil, NewSystem(nil, DefaultOptions()))
	var e *Error
	if !errors.As(err, &e) || e.Kind != ErrRuntime {
		t.Errorf("error = %v, want a runtime error", err)
	}
}

func TestIntrinsicStores(t *testing.T) {
	var sprites []string
	opts := DefaultOptions()
	opts.OnSprite = func(_ BulletID, s string) { sprites = append(sprites, s) }
	sys := NewSystem(nil, opts)
	b := newBullet(Vector{10, 10}, nil)

	cb := mustBlock(t,
		Const(Number(3)), StoreIntrinsic(IntrinsicSpeed),
		Const(Vector{1, 0}), StoreIntrinsic(IntrinsicDirection),
		Const(Vector{15, 10}), StoreIntrinsic(IntrinsicPosition),
		Const(String("orb")), StoreIntrinsic(IntrinsicSprite),
		LoadIntrinsic(IntrinsicVelocity),
	)
	got, err := cb.Evaluate(b, sys)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != (Vector{3, 0}) {
		t.Errorf("velocity = %v, want (3, 0)", got)
	}
	if b.RelativePosition != (Vector{5, 0}) {
		t.Errorf("relative position = %v, want (5, 0)", b.RelativePosition)
	}
	if len(sprites) != 1 || sprites[0] != "orb" {
		t.Errorf("sprite callback = %v, want [orb]", sprites)
	}

	bad := mustBlock(t, Const(String("fast")), StoreIntrinsic(IntrinsicSpeed))
	if err := bad.Execute(b, sys); err == nil {
		t.Error("storing a String into $Speed should fail")
	}
}

func TestCallBuiltin(t *testing.T) {
	cb := mustBlock(t,
		Const(Number(3)), Const(Number(9)),
		Named(OpLoadBuiltin, "Max"),
		Call(2),
	)
	got, err := cb.Evaluate(nil, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != Number(9) {
		t.Errorf("Max(3, 9) = %v, want 9", got)
	}
}

func TestCallErrors(t *testing.T) {
	tests := []struct {
		name string
		code []Instruction
	}{
		{"uncallable", []Instruction{Const(Number(1)), Call(0)}},
		{"arg count", []Instruction{Const(Number(1)), Named(OpLoadBuiltin, "Vector"), Call(1)}},
		{"arg type", []Instruction{Const(String("a")), Named(OpLoadBuiltin, "Sqrt"), Call(1)}},
		{"unknown builtin", []Instruction{Named(OpLoadBuiltin, "NoSuchThing")}},
		{"underflow", []Instruction{Op(OpAdd)}},
	}
	for _, tt := range tests {
		cb := mustBlock(t, tt.code...)
		if _, err := cb.Evaluate(nil, nil); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestBehaveInstruction(t *testing.T) {
	kill, err := ConfigureBehaviour("Kill", nil)
	if err != nil {
		t.Fatalf("ConfigureBehaviour failed: %v", err)
	}
	b := newBullet(Vector{}, nil)
	cb := mustBlock(t, Behave(kill))
	if err := cb.Execute(b, NewSystem(nil, DefaultOptions())); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !b.Dead {
		t.Error("Kill did not mark the bullet dead")
	}
}

func TestDisassemble(t *testing.T) {
	cb := mustBlock(t, Const(String("hi")), Label("l"), Jump(OpJump, "l"))
	want := "0000  LOAD_CONST \"hi\"\n0001  LABEL l\n0002  JUMP l@1\n"
	if got := cb.String(); got != want {
		t.Errorf("disassembly = %q, want %q", got, want)
	}
}
