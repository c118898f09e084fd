package vm

// Bullet handles. Self and Parent give bullet code a BulletRef it can keep
// in a variable; the rest resolve a ref against the running system, so a
// ref to a removed bullet reads as gone rather than as whichever bullet
// reused its slot.

var sigBullet = sig(KindBullet)

func init() {
	registerFunc(NewBuiltin("Self", false, sigs(sig()), func(f *Frame, _ []Value) (Value, error) {
		if f.Bullet == nil || !f.Bullet.ID.Valid() {
			return Null{}, nil
		}
		return BulletRef{f.Bullet.ID}, nil
	}), "Self() is the executing bullet, or Null outside bullet code and during Init.")

	registerFunc(NewBuiltin("Parent", false, sigs(sig()), func(f *Frame, _ []Value) (Value, error) {
		if f.Bullet == nil || !f.Bullet.Parent.Valid() {
			return Null{}, nil
		}
		return BulletRef{f.Bullet.Parent}, nil
	}), "Parent() is the bullet that spawned the executing bullet. It is Null for top-level bullets and during Init.")

	registerFunc(NewBuiltin("Alive", false, sigs(sigBullet), func(f *Frame, a []Value) (Value, error) {
		return Bool(resolve(f, a[0]) != nil), nil
	}), "Alive(b) reports whether the bullet b refers to is still in the system.")

	registerFunc(NewBuiltin("Inspect", false, sigs(sigBullet), func(f *Frame, a []Value) (Value, error) {
		b := resolve(f, a[0])
		if b == nil {
			return Null{}, nil
		}
		return Struct{Fields: map[string]Value{
			"Position":  b.Position(),
			"Direction": b.Direction,
			"Speed":     Number(b.Speed),
			"Time":      Number(b.LocalTime),
			"Type":      FactoryRef{b.Factory},
		}}, nil
	}), "Inspect(b) returns a Struct with the Position, Direction, Speed, Time and Type of bullet b, or Null once it is gone.")

	registerFunc(NewBuiltin("Field", false, sigs(sig(KindStruct, KindString)), func(_ *Frame, a []Value) (Value, error) {
		v, ok := a[0].(Struct).Fields[string(a[1].(String))]
		if !ok {
			return Null{}, nil
		}
		return v, nil
	}), "Field(s, name) reads a field of a Struct, or Null when it has none.")
}

// resolve returns the live bullet v refers to, or nil.
func resolve(f *Frame, v Value) *Bullet {
	ref, ok := v.(BulletRef)
	if !ok || f.System == nil {
		return nil
	}
	b := f.System.Bullet(ref.ID)
	if b == nil || b.Dead {
		return nil
	}
	return b
}
