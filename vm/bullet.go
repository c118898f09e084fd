package vm

import "fmt"

// ---------------------------------------------------------------------------
// Bullet handles
// ---------------------------------------------------------------------------

// BulletID is a generation-stamped handle into a System's arena. A handle
// to a removed bullet never resolves, even after its slot is reused.
type BulletID struct {
	index uint32
	gen   uint32
}

// NoBullet is the zero handle. It never resolves.
var NoBullet = BulletID{}

// Valid reports whether id was issued by an arena.
func (id BulletID) Valid() bool { return id.gen != 0 }

// Index returns the arena slot of id.
func (id BulletID) Index() int { return int(id.index) }

// Generation returns the slot generation id was issued for.
func (id BulletID) Generation() int { return int(id.gen) }

func (id BulletID) String() string {
	if !id.Valid() {
		return "none"
	}
	return fmt.Sprintf("%d.%d", id.index, id.gen)
}

// ---------------------------------------------------------------------------
// Bullet instances
// ---------------------------------------------------------------------------

// Bullet is one live projectile. Position is Origin + RelativePosition;
// behaviours that move a bullet move its relative position.
type Bullet struct {
	ID       BulletID
	Parent   BulletID
	Children []BulletID
	Factory  *Factory

	Origin           Vector
	RelativePosition Vector
	Direction        Vector
	Speed            float64
	Colour           Colour
	Sprite           string

	LocalTime float64
	Dead      bool

	Vars map[string]Value

	components []Component
}

func newBullet(origin Vector, factory *Factory) *Bullet {
	return &Bullet{
		Factory:   factory,
		Origin:    origin,
		Direction: Vector{0, 1},
		Colour:    White,
		Vars:      make(map[string]Value),
	}
}

// Position returns the absolute position.
func (b *Bullet) Position() Vector { return b.Origin.Add(b.RelativePosition) }

// SetPosition moves the bullet so that Position returns p.
func (b *Bullet) SetPosition(p Vector) { b.RelativePosition = p.Sub(b.Origin) }

// Velocity returns Direction * Speed.
func (b *Bullet) Velocity() Vector { return b.Direction.Scale(b.Speed) }

// Kill marks the bullet for removal at the end of the tick.
func (b *Bullet) Kill() { b.Dead = true }

// SetVar binds an instance variable.
func (b *Bullet) SetVar(name string, v Value) {
	if b.Vars == nil {
		b.Vars = make(map[string]Value)
	}
	b.Vars[name] = v
}

// AddComponent attaches a per-tick component.
func (b *Bullet) AddComponent(c Component) {
	b.components = append(b.components, c)
}

// Components returns the number of live components.
func (b *Bullet) Components() int { return len(b.components) }

// Intrinsic reads a built-in property.
func (b *Bullet) Intrinsic(p Intrinsic) Value {
	switch p {
	case IntrinsicDirection:
		return b.Direction
	case IntrinsicSpeed:
		return Number(b.Speed)
	case IntrinsicColour:
		return b.Colour
	case IntrinsicOrigin:
		return b.Origin
	case IntrinsicPosition:
		return b.Position()
	case IntrinsicVelocity:
		return b.Velocity()
	case IntrinsicTime:
		return Number(b.LocalTime)
	case IntrinsicSprite:
		return String(b.Sprite)
	}
	return Null{}
}

// SetIntrinsic writes a built-in property. Sprite changes are reported to
// the system's sprite callback when one is configured. A bullet without an
// ID yet, such as one running Init, is reported when the system adds it.
func (b *Bullet) SetIntrinsic(p Intrinsic, v Value, sys *System) error {
	if !p.Assignable() {
		return runtimef("$%s cannot be assigned.", p)
	}
	what := "$" + p.String()
	switch p {
	case IntrinsicDirection, IntrinsicOrigin, IntrinsicPosition:
		vec, ok := v.(Vector)
		if !ok {
			return TypeMismatch(what, KindVector, v.Kind())
		}
		switch p {
		case IntrinsicDirection:
			b.Direction = vec
		case IntrinsicOrigin:
			b.Origin = vec
		default:
			b.SetPosition(vec)
		}
	case IntrinsicSpeed:
		n, ok := v.(Number)
		if !ok {
			return TypeMismatch(what, KindNumber, v.Kind())
		}
		b.Speed = float64(n)
	case IntrinsicColour:
		c, ok := v.(Colour)
		if !ok {
			return TypeMismatch(what, KindColour, v.Kind())
		}
		b.Colour = c.Clamped()
	case IntrinsicSprite:
		s, ok := v.(String)
		if !ok {
			return TypeMismatch(what, KindString, v.Kind())
		}
		b.Sprite = string(s)
		if b.ID.Valid() {
			sys.notifySprite(b)
		}
	}
	return nil
}

// update advances the bullet by one tick.
func (b *Bullet) update(sys *System) error {
	if b.Factory != nil {
		if err := b.Factory.Update.Execute(b, sys); err != nil {
			return err
		}
	}
	b.LocalTime += sys.Delta()
	b.RelativePosition = b.RelativePosition.Add(b.Velocity())

	for _, c := range b.components {
		c.update(b, sys)
	}
	live := b.components[:0]
	for _, c := range b.components {
		if !c.done() {
			live = append(live, c)
		}
	}
	clear(b.components[len(live):])
	b.components = live
	return nil
}
