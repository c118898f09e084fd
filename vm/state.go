package vm

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Exported system state, for snapshots
// ---------------------------------------------------------------------------

// State is the dynamic state of a System: everything that changes as it
// runs. The code it runs comes from the Program and is not part of State.
type State struct {
	Time    float64
	Tick    int
	Begun   bool
	Globals map[string]Value
	Bullets []*Bullet // live bullets in arena order, IDs as issued
	Gens    []int     // generation of every arena slot, free ones included
	Free    []int     // free slot indices, next reused last
	Rand    []byte    // PCG state
}

// ComponentState is the exported form of an in-progress transition.
type ComponentState struct {
	Kind    string // "speed" or "move"
	EndTime float64
	End     Vector // a speed transition's target is End.X
	Inc     Vector
}

// NewBulletID rebuilds a handle from its index and generation.
func NewBulletID(index, generation int) BulletID {
	return BulletID{index: uint32(index), gen: uint32(generation)}
}

// ComponentStates returns the bullet's transitions that are still running.
func (b *Bullet) ComponentStates() []ComponentState {
	out := make([]ComponentState, 0, len(b.components))
	for _, c := range b.components {
		switch c := c.(type) {
		case *speedTransition:
			if !c.dead {
				out = append(out, ComponentState{Kind: "speed", EndTime: c.endTime, End: Vector{c.end, 0}, Inc: Vector{c.inc, 0}})
			}
		case *moveTransition:
			if !c.dead {
				out = append(out, ComponentState{Kind: "move", EndTime: c.endTime, End: c.end, Inc: c.inc})
			}
		}
	}
	return out
}

// RestoreComponent attaches a transition captured by ComponentStates.
func (b *Bullet) RestoreComponent(cs ComponentState) error {
	switch cs.Kind {
	case "speed":
		b.AddComponent(&speedTransition{end: cs.End.X, endTime: cs.EndTime, inc: cs.Inc.X})
	case "move":
		b.AddComponent(&moveTransition{end: cs.End, endTime: cs.EndTime, inc: cs.Inc})
	default:
		return fmt.Errorf("unknown component kind %q", cs.Kind)
	}
	return nil
}

// State captures the system's dynamic state. Bullets and globals are
// shared with the system, so the result must not be modified while the
// system runs.
func (s *System) State() (*State, error) {
	rng, err := s.src.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("capturing random state: %w", err)
	}
	return &State{
		Time:    s.time,
		Tick:    s.tick,
		Begun:   s.begun,
		Globals: s.Globals,
		Bullets: s.Bullets(),
		Gens:    s.bullets.generations(),
		Free:    s.bullets.freeList(),
		Rand:    rng,
	}, nil
}

// Restore replaces the system's dynamic state with st. The system must have
// been created from the program st was captured from; the timeline is
// rebuilt from that program at st's clock.
func (s *System) Restore(st *State) error {
	if err := s.src.UnmarshalBinary(st.Rand); err != nil {
		return fmt.Errorf("restoring random state: %w", err)
	}
	if err := s.bullets.restore(st.Bullets, st.Gens, st.Free); err != nil {
		return err
	}
	s.Globals = make(map[string]Value, len(st.Globals))
	for name, v := range st.Globals {
		s.Globals[name] = v
	}
	s.pending = s.pending[:0]
	s.time, s.tick, s.begun = st.Time, st.Tick, st.Begun

	s.timeline.active = nil
	s.timeline.pending = append([]*Timestamp(nil), s.timestamps...)
	s.timeline.begun = false
	if s.begun {
		s.timeline.begin()
		if s.tick > 0 {
			s.timeline.advance(s.time - s.opts.Delta)
		}
	}
	log.Debugf("system restored at tick %d: %d bullets", s.tick, s.bullets.len())
	return nil
}

// restore rebuilds the arena with each bullet in the slot its ID names.
// Slots missing from gens start at generation 1; free, when empty, is
// derived from the unused slots.
func (a *arena) restore(bullets []*Bullet, gens []int, free []int) error {
	n := len(gens)
	for _, b := range bullets {
		if i := b.ID.Index(); i >= n {
			n = i + 1
		}
	}
	slots := make([]slot, n)
	for i := range slots {
		slots[i].gen = 1
		if i < len(gens) && gens[i] > 0 {
			slots[i].gen = uint32(gens[i])
		}
	}
	for _, b := range bullets {
		i := b.ID.Index()
		if !b.ID.Valid() || slots[i].bullet != nil {
			return fmt.Errorf("invalid or duplicate bullet id %s", b.ID)
		}
		slots[i] = slot{gen: b.ID.gen, bullet: b}
	}

	var list []uint32
	if len(free) > 0 {
		for _, i := range free {
			if i < 0 || i >= n || slots[i].bullet != nil {
				return fmt.Errorf("invalid free slot %d", i)
			}
			list = append(list, uint32(i))
		}
	} else {
		for i := n - 1; i >= 0; i-- {
			if slots[i].bullet == nil {
				list = append(list, uint32(i))
			}
		}
	}
	a.slots, a.free, a.live = slots, list, len(bullets)
	return nil
}

func (a *arena) generations() []int {
	out := make([]int, len(a.slots))
	for i, s := range a.slots {
		out[i] = int(s.gen)
	}
	return out
}

// freeList returns the free slot indices in reuse order, next reused last.
func (a *arena) freeList() []int {
	out := make([]int, len(a.free))
	for i, x := range a.free {
		out[i] = int(x)
	}
	return out
}

// GlobalNames returns the names of the system's globals, sorted.
func (s *System) GlobalNames() []string {
	names := make([]string, 0, len(s.Globals))
	for name := range s.Globals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
