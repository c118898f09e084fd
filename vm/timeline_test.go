package vm

import (
	"math"
	"testing"
)

func timestamp(t *testing.T, kind TimeKind, code *CodeBlock, args ...float64) *Timestamp {
	t.Helper()
	ts, err := NewTimestamp(kind, args, code)
	if err != nil {
		t.Fatalf("NewTimestamp(%s) failed: %v", kind, err)
	}
	return ts
}

// fires runs a system with one timestamp for n ticks and returns the ticks
// on which the timestamp's code ran.
func fires(t *testing.T, kind TimeKind, n int, args ...float64) []int {
	t.Helper()
	tl := NewTimeline()
	if err := tl.Add(timestamp(t, kind, counter(t, "hits"), args...)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	sys := NewSystem(&Program{
		Global:   mustBlock(t, Const(Number(0)), Named(OpStoreGlobal, "hits")),
		Timeline: tl,
	}, DefaultOptions())
	if err := sys.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	var ticks []int
	for i := 0; i < n; i++ {
		before := sys.Globals["hits"]
		if err := sys.Update(); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if !Equal(before, sys.Globals["hits"]) {
			ticks = append(ticks, i)
		}
	}
	return ticks
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Timestamps
// ---------------------------------------------------------------------------

func TestTimestampFiring(t *testing.T) {
	// Ticks are 16 ms: tick i runs at global time 16*i.
	tests := []struct {
		kind TimeKind
		args []float64
		want []int
	}{
		{TimeAt, []float64{32}, []int{2}},
		{TimeAt, []float64{40}, []int{3}},
		{TimeBefore, []float64{48}, []int{0, 1, 2}},
		{TimeAfter, []float64{80}, []int{5, 6, 7}},
		{TimeFrom, []float64{16, 64}, []int{1, 2, 3}},
		{TimeOutside, []float64{16, 64}, []int{0, 4, 5, 6, 7}},
		{TimeAtIntervals, []float64{48}, []int{0, 3, 6}},
		{TimeAtIntervals, []float64{32, 16, 80}, []int{1, 3}},
		{TimeDuringIntervals, []float64{32}, []int{0, 1, 4, 5}},
	}
	for _, tt := range tests {
		got := fires(t, tt.kind, 8, tt.args...)
		if !equalInts(got, tt.want) {
			t.Errorf("%s%v fired on ticks %v, want %v", tt.kind, tt.args, got, tt.want)
		}
	}
}

func TestAtFiresExactlyOnce(t *testing.T) {
	for _, at := range []float64{0, 5, 16, 100, 333} {
		got := fires(t, TimeAt, 40, at)
		if len(got) != 1 {
			t.Errorf("At(%v) fired %d times, want 1", at, len(got))
		}
	}
}

func TestTimestampArgumentCounts(t *testing.T) {
	tests := []struct {
		kind TimeKind
		args []float64
	}{
		{TimeAt, nil},
		{TimeFrom, []float64{1}},
		{TimeAtIntervals, []float64{1, 2}},
	}
	for _, tt := range tests {
		if _, err := NewTimestamp(tt.kind, tt.args, nil); err == nil {
			t.Errorf("NewTimestamp(%s, %v) should fail", tt.kind, tt.args)
		}
	}
}

func TestTimestampBounds(t *testing.T) {
	at := timestamp(t, TimeAt, nil, 100)
	if at.Start != 100 || at.End != 150 {
		t.Errorf("At bounds = [%v, %v], want [100, 150]", at.Start, at.End)
	}
	after := timestamp(t, TimeAfter, nil, 10)
	if !math.IsInf(after.End, 1) {
		t.Errorf("After end = %v, want +Inf", after.End)
	}
	before := timestamp(t, TimeBefore, nil, 10)
	if before.Start != 0 || before.End != 10 {
		t.Errorf("Before bounds = [%v, %v], want [0, 10]", before.Start, before.End)
	}
}

// ---------------------------------------------------------------------------
// Timeline
// ---------------------------------------------------------------------------

func TestTimelineSortsAndRetires(t *testing.T) {
	tl := NewTimeline()
	late := timestamp(t, TimeFrom, nil, 64, 80)
	early := timestamp(t, TimeFrom, nil, 0, 16)
	tl.Add(late)
	tl.Add(early)

	sys := NewSystem(&Program{Timeline: tl}, DefaultOptions())
	if err := sys.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	own := sys.Timeline()
	if own == tl {
		t.Fatal("system shares the program's timeline")
	}
	if pending := own.Timestamps(); pending[0] != early {
		t.Error("timestamps not sorted by start")
	}
	if err := own.Add(early); err == nil {
		t.Error("Add after Begin should fail")
	}

	if err := sys.Run(3); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// early ended at 16 and was retired at time 32.
	if own.Len() != 1 {
		t.Errorf("timeline holds %d timestamps, want 1", own.Len())
	}
	if tl.Len() != 2 {
		t.Errorf("program timeline holds %d timestamps, want 2", tl.Len())
	}
}

func TestTimelineSpawnsWithoutParent(t *testing.T) {
	f := NewFactory("Orb", nil, nil)
	tl := NewTimeline()
	tl.Add(timestamp(t, TimeAt, mustBlock(t,
		Named(OpLoadGlobal, "Orb"), Const(Vector{1, 2}),
		behave(t, "Spawn", "BulletType", "Origin"),
	), 0))
	sys := NewSystem(&Program{Timeline: tl, Factories: map[string]*Factory{"Orb": f}}, DefaultOptions())
	if err := sys.Run(2); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	bullets := sys.Bullets()
	if len(bullets) != 1 {
		t.Fatalf("bullets = %d, want 1", len(bullets))
	}
	if bullets[0].Parent != NoBullet || bullets[0].Origin != (Vector{1, 2}) {
		t.Errorf("bullet parent %v origin %v", bullets[0].Parent, bullets[0].Origin)
	}
}
