package vm

import (
	"fmt"
	"math"
	"sort"
)

// ---------------------------------------------------------------------------
// Timestamps
// ---------------------------------------------------------------------------

// TimeKind selects a timestamp predicate.
type TimeKind uint8

const (
	TimeAt TimeKind = iota
	TimeBefore
	TimeAfter
	TimeFrom
	TimeOutside
	TimeAtIntervals
	TimeDuringIntervals
)

var timeKindNames = map[TimeKind]string{
	TimeAt:              "At",
	TimeBefore:          "Before",
	TimeAfter:           "After",
	TimeFrom:            "From",
	TimeOutside:         "Outside",
	TimeAtIntervals:     "AtIntervals",
	TimeDuringIntervals: "DuringIntervals",
}

var timeKindsByName = func() map[string]TimeKind {
	m := make(map[string]TimeKind, len(timeKindNames))
	for k, name := range timeKindNames {
		m[name] = k
	}
	return m
}()

func (k TimeKind) String() string {
	if name, ok := timeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TimeKind(%d)", k)
}

// LookupTimeKind maps a time command name to its kind.
func LookupTimeKind(name string) (TimeKind, bool) {
	k, ok := timeKindsByName[name]
	return k, ok
}

// atWindow is how long an At timestamp stays in the active set.
const atWindow = 50

// Timestamp is a timeline entry: code that runs on every tick its predicate
// holds. Start and End bound the period during which it is considered.
type Timestamp struct {
	Kind     TimeKind
	Start    float64
	End      float64
	Interval float64
	Code     *CodeBlock
}

// NewTimestamp builds a timestamp from a time command's literal arguments.
func NewTimestamp(kind TimeKind, args []float64, code *CodeBlock) (*Timestamp, error) {
	ts := &Timestamp{Kind: kind, Code: code, End: math.Inf(1)}
	bad := func() (*Timestamp, error) {
		return nil, BadArgumentCount(kind.String(), len(args))
	}
	switch kind {
	case TimeAt:
		if len(args) != 1 {
			return bad()
		}
		ts.Start, ts.End = args[0], args[0]+atWindow
	case TimeBefore:
		if len(args) != 1 {
			return bad()
		}
		ts.Start, ts.End = 0, args[0]
	case TimeAfter:
		if len(args) != 1 {
			return bad()
		}
		ts.Start = args[0]
	case TimeFrom:
		if len(args) != 2 {
			return bad()
		}
		ts.Start, ts.End = args[0], args[1]
	case TimeOutside:
		if len(args) != 2 {
			return bad()
		}
		ts.Start, ts.End = args[0], args[1]
	case TimeAtIntervals, TimeDuringIntervals:
		switch len(args) {
		case 1:
			ts.Interval = args[0]
		case 3:
			ts.Interval, ts.Start, ts.End = args[0], args[1], args[2]
		default:
			return bad()
		}
	default:
		return nil, BadTimeCommandSyntax()
	}
	if ts.Code == nil {
		ts.Code = EmptyCodeBlock()
	}
	return ts, nil
}

// activation is the global time at which the timestamp enters the active
// set. Outside holds before its window, so it is active from zero.
func (ts *Timestamp) activation() float64 {
	if ts.Kind == TimeOutside {
		return 0
	}
	return ts.Start
}

// expired reports whether the timestamp can never hold again after t.
func (ts *Timestamp) expired(t float64) bool {
	if ts.Kind == TimeOutside {
		return false
	}
	return ts.End < t
}

// Active reports whether the predicate holds at time t for tick length dt.
func (ts *Timestamp) Active(t, dt float64) bool {
	switch ts.Kind {
	case TimeAt:
		return ts.Start <= t && t < ts.Start+dt
	case TimeBefore:
		return t < ts.End
	case TimeAfter:
		return ts.Start <= t
	case TimeFrom:
		return ts.Start <= t && t < ts.End
	case TimeOutside:
		return t < ts.Start || t >= ts.End
	case TimeAtIntervals:
		t2 := t - ts.Start
		return t2 >= 0 && t < ts.End && math.Mod(t2, ts.Interval) < dt
	case TimeDuringIntervals:
		t2 := t - ts.Start
		return t2 >= 0 && t < ts.End && math.Mod(t2, 2*ts.Interval) < ts.Interval
	}
	return false
}

func (ts *Timestamp) String() string {
	switch ts.Kind {
	case TimeAt, TimeAfter:
		return fmt.Sprintf("%s(%g)", ts.Kind, ts.Start)
	case TimeBefore:
		return fmt.Sprintf("%s(%g)", ts.Kind, ts.End)
	case TimeFrom, TimeOutside:
		return fmt.Sprintf("%s(%g, %g)", ts.Kind, ts.Start, ts.End)
	}
	return fmt.Sprintf("%s(%g, %g, %g)", ts.Kind, ts.Interval, ts.Start, ts.End)
}

// ---------------------------------------------------------------------------
// Timeline
// ---------------------------------------------------------------------------

// Timeline holds timestamps ordered by start time. Timestamps move from the
// pending list to the active set once their start time is reached and leave
// it when their end time has passed. Setup code, if any, runs once when the
// system begins.
type Timeline struct {
	setup   *CodeBlock
	pending []*Timestamp
	active  []*Timestamp
	begun   bool
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline { return &Timeline{} }

// Add appends a timestamp. Timestamps cannot be added once the timeline has begun.
func (tl *Timeline) Add(ts *Timestamp) error {
	if tl.begun {
		return runtimef("cannot add a timestamp to a timeline that has begun.")
	}
	tl.pending = append(tl.pending, ts)
	return nil
}

// SetSetup sets the timeline-level code: the assignments and loops outside
// any time command.
func (tl *Timeline) SetSetup(code *CodeBlock) { tl.setup = code }

// Setup returns the timeline-level code, or nil when there is none.
func (tl *Timeline) Setup() *CodeBlock { return tl.setup }

// Timestamps returns the timestamps not yet activated, in order.
func (tl *Timeline) Timestamps() []*Timestamp {
	return append([]*Timestamp(nil), tl.pending...)
}

// Active returns the number of timestamps in the active set.
func (tl *Timeline) Active() int { return len(tl.active) }

// Len returns the number of timestamps not yet retired.
func (tl *Timeline) Len() int { return len(tl.pending) + len(tl.active) }

func (tl *Timeline) begin() {
	tl.begun = true
	sort.SliceStable(tl.pending, func(i, j int) bool {
		return tl.pending[i].activation() < tl.pending[j].activation()
	})
}

// update runs one tick of the timeline at the system's global clock.
func (tl *Timeline) update(sys *System) error {
	t, dt := sys.GlobalTime(), sys.Delta()
	tl.activate(t)
	for _, ts := range tl.active {
		if ts.Active(t, dt) {
			if err := ts.Code.Execute(nil, sys); err != nil {
				return err
			}
		}
	}
	tl.retire(t)
	return nil
}

// advance brings the pending and active sets to where an update at t
// leaves them, without running any code.
func (tl *Timeline) advance(t float64) {
	tl.activate(t)
	tl.retire(t)
}

func (tl *Timeline) activate(t float64) {
	n := 0
	for n < len(tl.pending) && tl.pending[n].activation() <= t {
		n++
	}
	tl.active = append(tl.active, tl.pending[:n]...)
	tl.pending = tl.pending[n:]
}

func (tl *Timeline) retire(t float64) {
	live := tl.active[:0]
	for _, ts := range tl.active {
		if !ts.expired(t) {
			live = append(live, ts)
		}
	}
	clear(tl.active[len(live):])
	tl.active = live
}
