package vm

import "math"

// Spawn behaviours create bullets. Spawned bullets become children of the
// executing bullet; in timeline code they have no parent and need %Origin,
// defaulting to the screen centre.

func init() {
	defineBehaviour(&behaviourDef{
		name:     "Spawn",
		doc:      "Spawns one bullet. %Direction is normalized; %Angle and %AngleD give the direction as an angle.",
		required: []string{"BulletType"},
		optional: []string{"Origin", "Speed"},
		atMost:   [][]string{{"Direction", "Angle", "AngleD"}},
		repeat:   true,
		spawns:   true,
		run:      runSpawn,
	})
	defineBehaviour(&behaviourDef{
		name:     "RadialSpawn",
		doc:      "Spawns %Streams bullets evenly spaced around a circle, starting at %AngleOffset.",
		required: []string{"BulletType", "Streams", "Speed"},
		optional: []string{"Origin"},
		atMost:   [][]string{{"AngleOffset", "AngleOffsetD"}},
		repeat:   true,
		spawns:   true,
		run:      runRadialSpawn,
	})
	defineBehaviour(&behaviourDef{
		name:     "BurstSpawn",
		doc:      "Spawns %Amount bullets with random speeds in %SpeedRange and random angles in %AngleRange (default a full turn).",
		required: []string{"BulletType", "Amount", "SpeedRange"},
		optional: []string{"Origin"},
		atMost:   [][]string{{"AngleRange", "AngleRangeD"}},
		repeat:   true,
		spawns:   true,
		run:      runBurstSpawn,
	})
	defineBehaviour(&behaviourDef{
		name:     "MultiSpawn",
		doc:      "Spawns one bullet per element of the plural parameters, which must share one length.",
		required: []string{"BulletType"},
		atMost:   [][]string{{"Origin", "Origins"}, {"Direction", "Directions"}, {"Speed", "Speeds"}},
		repeat:   true,
		spawns:   true,
		run:      runMultiSpawn,
	})
}

// spawnOrigin returns %Origin, or the fallback position for the context.
func spawnOrigin(f *Frame, p *params, fromParent func(*Bullet) Vector) (Vector, error) {
	if p.has("Origin") {
		return p.vector("Origin")
	}
	if f.Bullet != nil {
		return fromParent(f.Bullet), nil
	}
	return f.System.ScreenCenter(), nil
}

func bulletPosition(b *Bullet) Vector { return b.Position() }
func bulletOrigin(b *Bullet) Vector   { return b.Origin }

// emit instantiates one bullet, lets setup adjust it, applies the %Param
// bindings and hands it to the system.
func emit(f *Frame, factory *Factory, origin Vector, binds []binding, setup func(*Bullet)) error {
	b, err := factory.Instantiate(origin, f.System)
	if err != nil {
		return err
	}
	if setup != nil {
		setup(b)
	}
	for _, bd := range binds {
		b.SetVar(bd.name, bd.value)
	}
	parent := NoBullet
	if f.Bullet != nil {
		parent = f.Bullet.ID
	}
	f.System.AddBullet(b, parent)
	return nil
}

// spawnParams decodes the parameters every spawn behaviour shares.
func spawnParams(f *Frame, p *params) (*Factory, []binding, error) {
	if f.System == nil {
		return nil, nil, NoBulletContext(p.behaviour)
	}
	factory, err := p.factory("BulletType")
	if err != nil {
		return nil, nil, err
	}
	binds, err := p.bindings()
	if err != nil {
		return nil, nil, err
	}
	return factory, binds, nil
}

func runSpawn(f *Frame, p *params) error {
	factory, binds, err := spawnParams(f, p)
	if err != nil {
		return err
	}
	origin, err := spawnOrigin(f, p, bulletPosition)
	if err != nil {
		return err
	}

	var dir Vector
	hasDir := false
	if p.has("Direction") {
		d, err := p.vector("Direction")
		if err != nil {
			return err
		}
		dir, hasDir = d.Normalized(), true
	} else {
		a, ok, err := p.angle("Angle", "AngleD")
		if err != nil {
			return err
		}
		dir, hasDir = Polar(a), ok
	}
	var speed float64
	hasSpeed := p.has("Speed")
	if hasSpeed {
		if speed, err = p.number("Speed"); err != nil {
			return err
		}
	}

	return emit(f, factory, origin, binds, func(b *Bullet) {
		if hasDir {
			b.Direction = dir
		}
		if hasSpeed {
			b.Speed = speed
		}
	})
}

func runRadialSpawn(f *Frame, p *params) error {
	factory, binds, err := spawnParams(f, p)
	if err != nil {
		return err
	}
	streamsF, err := p.number("Streams")
	if err != nil {
		return err
	}
	streams := int(streamsF)
	if streams <= 0 {
		return BehaviourError(p.behaviour, "%%Streams must be positive, got %d.", streams)
	}
	speed, err := p.number("Speed")
	if err != nil {
		return err
	}
	angle, _, err := p.angle("AngleOffset", "AngleOffsetD")
	if err != nil {
		return err
	}
	origin, err := spawnOrigin(f, p, bulletOrigin)
	if err != nil {
		return err
	}

	step := 2 * math.Pi / float64(streams)
	for i := 0; i < streams; i++ {
		dir := Polar(angle + float64(i)*step)
		if err := emit(f, factory, origin, binds, func(b *Bullet) {
			b.Direction = dir
			b.Speed = speed
		}); err != nil {
			return err
		}
	}
	return nil
}

func runBurstSpawn(f *Frame, p *params) error {
	factory, binds, err := spawnParams(f, p)
	if err != nil {
		return err
	}
	amount, err := p.number("Amount")
	if err != nil {
		return err
	}
	speedLo, speedHi, err := p.span("SpeedRange")
	if err != nil {
		return err
	}
	angleLo, angleHi := 0.0, 2*math.Pi
	switch {
	case p.has("AngleRange"):
		if angleLo, angleHi, err = p.span("AngleRange"); err != nil {
			return err
		}
	case p.has("AngleRangeD"):
		if angleLo, angleHi, err = p.span("AngleRangeD"); err != nil {
			return err
		}
		angleLo, angleHi = angleLo*degToRad, angleHi*degToRad
	}
	origin, err := spawnOrigin(f, p, bulletPosition)
	if err != nil {
		return err
	}

	for i := 0; float64(i) < amount; i++ {
		angle := f.System.Uniform(angleLo, angleHi)
		speed := f.System.Uniform(speedLo, speedHi)
		if err := emit(f, factory, origin, binds, func(b *Bullet) {
			b.Direction = Polar(angle)
			b.Speed = speed
		}); err != nil {
			return err
		}
	}
	return nil
}

// spread is a MultiSpawn parameter: either one value for every bullet or a
// list with one value per bullet.
type spread[T any] struct {
	one  T
	many []T
	set  bool
}

func (s spread[T]) at(i int) T {
	if s.many != nil {
		return s.many[i]
	}
	return s.one
}

func readSpread[T any](p *params, single, plural string, one func(string) (T, error), elem func(Value) (T, bool), want Kind) (spread[T], error) {
	var s spread[T]
	switch {
	case p.has(single):
		v, err := one(single)
		if err != nil {
			return s, err
		}
		s.one, s.set = v, true
	case p.has(plural):
		l, err := p.list(plural)
		if err != nil {
			return s, err
		}
		s.many = make([]T, len(l))
		for i, x := range l {
			v, ok := elem(x)
			if !ok {
				return s, BehaviourError(p.behaviour, "element %d of %%%s must be of type %s, got %s.", i+1, plural, want, x.Kind())
			}
			s.many[i] = v
		}
		s.set = true
	}
	return s, nil
}

func runMultiSpawn(f *Frame, p *params) error {
	factory, binds, err := spawnParams(f, p)
	if err != nil {
		return err
	}

	asVector := func(v Value) (Vector, bool) {
		x, ok := v.(Vector)
		return x, ok
	}
	asNumber := func(v Value) (float64, bool) {
		x, ok := v.(Number)
		return float64(x), ok
	}

	origins, err := readSpread(p, "Origin", "Origins", p.vector, asVector, KindVector)
	if err != nil {
		return err
	}
	dirs, err := readSpread(p, "Direction", "Directions", p.vector, asVector, KindVector)
	if err != nil {
		return err
	}
	speeds, err := readSpread(p, "Speed", "Speeds", p.number, asNumber, KindNumber)
	if err != nil {
		return err
	}
	if !origins.set {
		if origins.one, err = spawnOrigin(f, p, bulletPosition); err != nil {
			return err
		}
	}

	count := -1
	for _, n := range []struct {
		name string
		len  int
		many bool
	}{
		{"Origins", len(origins.many), origins.many != nil},
		{"Directions", len(dirs.many), dirs.many != nil},
		{"Speeds", len(speeds.many), speeds.many != nil},
	} {
		if !n.many {
			continue
		}
		if count >= 0 && n.len != count {
			return BehaviourError(p.behaviour, "Origins, Directions and Speeds must all have the same number of elements.")
		}
		count = n.len
	}
	if count < 0 {
		count = 1
	}

	for i := 0; i < count; i++ {
		if err := emit(f, factory, origins.at(i), binds, func(b *Bullet) {
			if dirs.set {
				b.Direction = dirs.at(i)
			}
			if speeds.set {
				b.Speed = speeds.at(i)
			}
		}); err != nil {
			return err
		}
	}
	return nil
}
