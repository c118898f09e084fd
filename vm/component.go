package vm

// Component is per-tick state attached to a bullet by a behaviour. A
// component runs after the bullet has moved and is dropped once done.
type Component interface {
	update(b *Bullet, sys *System)
	done() bool
}

// speedTransition linearly moves a bullet's speed to a target over a duration.
type speedTransition struct {
	end     float64
	endTime float64 // bullet local time at which the transition completes
	inc     float64 // speed change per millisecond
	dead    bool
}

func newSpeedTransition(b *Bullet, end, duration float64) *speedTransition {
	c := &speedTransition{end: end, endTime: b.LocalTime + duration}
	if duration > 0 {
		c.inc = (end - b.Speed) / duration
	}
	return c
}

func (c *speedTransition) update(b *Bullet, sys *System) {
	b.Speed += c.inc * sys.Delta()
	if b.LocalTime >= c.endTime {
		b.Speed = c.end
		c.dead = true
	}
}

func (c *speedTransition) done() bool { return c.dead }

// moveTransition linearly moves a bullet's relative position to a target.
type moveTransition struct {
	end     Vector // final relative position
	endTime float64
	inc     Vector // displacement per millisecond
	dead    bool
}

func newMoveTransition(b *Bullet, end Vector, duration float64, absolute bool) *moveTransition {
	target := b.RelativePosition.Add(end)
	if absolute {
		target = end.Sub(b.Origin)
	}
	c := &moveTransition{end: target, endTime: b.LocalTime + duration}
	if duration > 0 {
		c.inc = target.Sub(b.RelativePosition).Scale(1 / duration)
	}
	return c
}

func (c *moveTransition) update(b *Bullet, sys *System) {
	b.RelativePosition = b.RelativePosition.Add(c.inc.Scale(sys.Delta()))
	if b.LocalTime >= c.endTime {
		b.RelativePosition = c.end
		c.dead = true
	}
}

func (c *moveTransition) done() bool { return c.dead }
