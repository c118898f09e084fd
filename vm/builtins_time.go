package vm

import "math"

// Time predicates test the current tick against a window. The plain forms
// use the executing bullet's local time; the Global forms, and the plain
// forms in code without a bullet, use the system clock.

type timePredicate struct {
	name string
	sigs [][]Kind
	test func(t, dt float64, args []Value) bool
	doc  string
}

var timePredicates = []timePredicate{
	{"At", sigs(sigNum), func(t, dt float64, a []Value) bool {
		T := num(a[0])
		return T <= t && t < T+dt
	}, "At(T) holds for the single tick containing T."},
	{"Before", sigs(sigNum), func(t, _ float64, a []Value) bool {
		return t < num(a[0])
	}, "Before(T) holds while time < T."},
	{"After", sigs(sigNum), func(t, _ float64, a []Value) bool {
		return t >= num(a[0])
	}, "After(T) holds once time >= T."},
	{"From", sigs(sigNum2), func(t, _ float64, a []Value) bool {
		return num(a[0]) <= t && t < num(a[1])
	}, "From(a, b) holds for a <= time < b."},
	{"Outside", sigs(sigNum2), func(t, _ float64, a []Value) bool {
		return t < num(a[0]) || t >= num(a[1])
	}, "Outside(a, b) holds when From(a, b) does not."},
	{"AtIntervals", sigs(sigNum, sigNum3), func(t, dt float64, a []Value) bool {
		i := num(a[0])
		if len(a) == 1 {
			return math.Mod(t, i) < dt
		}
		t2 := t - num(a[1])
		return t2 >= 0 && t <= num(a[2]) && math.Mod(t2, i) < dt
	}, "AtIntervals(i[, start, end]) holds for one tick every i milliseconds."},
	{"DuringIntervals", sigs(sigNum, sigNum3), func(t, _ float64, a []Value) bool {
		i := num(a[0])
		if len(a) == 1 {
			return math.Mod(t, 2*i) < i
		}
		t2 := t - num(a[1])
		return t2 >= 0 && t <= num(a[2]) && math.Mod(t2, 2*i) < i
	}, "DuringIntervals(i[, start, end]) alternates i milliseconds on and i off."},
}

func init() {
	for _, p := range timePredicates {
		test := p.test
		registerFunc(NewBuiltin(p.name, false, p.sigs, func(f *Frame, args []Value) (Value, error) {
			t, dt := frameClock(f, false)
			return Bool(test(t, dt, args)), nil
		}), p.doc)
		registerFunc(NewBuiltin(p.name+"Global", false, p.sigs, func(f *Frame, args []Value) (Value, error) {
			t, dt := frameClock(f, true)
			return Bool(test(t, dt, args)), nil
		}), p.doc+" Uses the global clock.")
	}
}

// frameClock returns the time and tick length a predicate tests against.
func frameClock(f *Frame, global bool) (t, dt float64) {
	dt = DefaultOptions().Delta
	if f.System != nil {
		dt = f.System.Delta()
		t = f.System.GlobalTime()
	}
	if !global && f.Bullet != nil {
		t = f.Bullet.LocalTime
	}
	return t, dt
}
