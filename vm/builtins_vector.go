package vm

func init() {
	registerFunc(NewBuiltin("LeftNormal", true, sigs(sigVec), func(_ *Frame, a []Value) (Value, error) {
		v := vec(a[0])
		return Vector{-v.Y, v.X}, nil
	}), "LeftNormal(v) is v rotated a quarter turn counter-clockwise on screen.")
	registerFunc(NewBuiltin("RightNormal", true, sigs(sigVec), func(_ *Frame, a []Value) (Value, error) {
		v := vec(a[0])
		return Vector{v.Y, -v.X}, nil
	}), "RightNormal(v) is v rotated a quarter turn clockwise on screen.")
	registerFunc(NewBuiltin("Normalized", true, sigs(sigVec), func(_ *Frame, a []Value) (Value, error) {
		return vec(a[0]).Normalized(), nil
	}), "")
	registerFunc(NewBuiltin("Magnitude", true, sigs(sigVec), func(_ *Frame, a []Value) (Value, error) {
		return Number(vec(a[0]).Len()), nil
	}), "")
	registerFunc(NewBuiltin("MagnitudeSqrd", true, sigs(sigVec), func(_ *Frame, a []Value) (Value, error) {
		return Number(vec(a[0]).LenSqr()), nil
	}), "")
	registerFunc(NewBuiltin("AngleOf", true, sigs(sigVec), func(_ *Frame, a []Value) (Value, error) {
		return Number(vec(a[0]).Angle()), nil
	}), "AngleOf(v) in radians.")
	registerFunc(NewBuiltin("AngleOfD", true, sigs(sigVec), func(_ *Frame, a []Value) (Value, error) {
		return Number(vec(a[0]).Angle() * radToDeg), nil
	}), "AngleOfD(v) in degrees.")
	registerFunc(NewBuiltin("Polar", true, sigs(sigNum, sigNum2), polar(1)),
		"Polar(theta) is the unit vector at theta radians; Polar(r, theta) scales it by r.")
	registerFunc(NewBuiltin("PolarD", true, sigs(sigNum, sigNum2), polar(degToRad)),
		"PolarD(theta) is the unit vector at theta degrees; PolarD(r, theta) scales it by r.")
	registerFunc(NewBuiltin("RotateVector", true, sigs(sig(KindVector, KindNumber)), func(_ *Frame, a []Value) (Value, error) {
		return vec(a[0]).Rotate(num(a[1])).Normalized(), nil
	}), "RotateVector(v, theta) returns the unit vector of v rotated by theta radians.")
	registerFunc(NewBuiltin("RotateVectorD", true, sigs(sig(KindVector, KindNumber)), func(_ *Frame, a []Value) (Value, error) {
		return vec(a[0]).Rotate(num(a[1]) * degToRad).Normalized(), nil
	}), "RotateVectorD(v, theta) returns the unit vector of v rotated by theta degrees.")
	registerFunc(NewBuiltin("Lerp", true, sigs(sig(KindVector, KindVector, KindNumber), sigNum3), func(_ *Frame, a []Value) (Value, error) {
		if x, ok := a[0].(Number); ok {
			y := num(a[1])
			return Number(float64(x) + (y-float64(x))*num(a[2])), nil
		}
		return vec(a[0]).Lerp(vec(a[1]), num(a[2])), nil
	}), "Lerp(a, b, t) interpolates between two vectors or two numbers.")
}

func polar(unit float64) func(*Frame, []Value) (Value, error) {
	return func(_ *Frame, a []Value) (Value, error) {
		if len(a) == 1 {
			return Polar(num(a[0]) * unit), nil
		}
		return Polar(num(a[1]) * unit).Scale(num(a[0])), nil
	}
}
