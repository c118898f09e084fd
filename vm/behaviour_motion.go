package vm

// Motion behaviours act on the executing bullet.

func init() {
	defineBehaviour(&behaviourDef{
		name:     "TransitionSpeed",
		doc:      "Changes $Speed linearly to %End over %Duration milliseconds.",
		required: []string{"End", "Duration"},
		run: func(f *Frame, p *params) error {
			b, err := requireBullet(f, p.behaviour)
			if err != nil {
				return err
			}
			end, err := p.number("End")
			if err != nil {
				return err
			}
			d, err := p.number("Duration")
			if err != nil {
				return err
			}
			b.AddComponent(newSpeedTransition(b, end, d))
			return nil
		},
	})
	defineBehaviour(&behaviourDef{
		name:     "MoveTo",
		doc:      "Moves the bullet by %End, or to %End when %AbsolutePosition is True, over %Duration milliseconds.",
		required: []string{"End", "Duration"},
		optional: []string{"AbsolutePosition"},
		run: func(f *Frame, p *params) error {
			b, err := requireBullet(f, p.behaviour)
			if err != nil {
				return err
			}
			end, err := p.vector("End")
			if err != nil {
				return err
			}
			d, err := p.number("Duration")
			if err != nil {
				return err
			}
			absolute := false
			if p.has("AbsolutePosition") {
				if absolute, err = p.boolean("AbsolutePosition"); err != nil {
					return err
				}
			}
			b.AddComponent(newMoveTransition(b, end, d, absolute))
			return nil
		},
	})
	defineBehaviour(&behaviourDef{
		name:  "RotateDirection",
		doc:   "Rotates $Direction by %Angle radians or %AngleD degrees.",
		oneOf: [][]string{{"Angle", "AngleD"}},
		run: func(f *Frame, p *params) error {
			b, err := requireBullet(f, p.behaviour)
			if err != nil {
				return err
			}
			a, _, err := p.angle("Angle", "AngleD")
			if err != nil {
				return err
			}
			b.Direction = b.Direction.Rotate(a)
			return nil
		},
	})
	defineBehaviour(&behaviourDef{
		name:     "RotateAround",
		doc:      "Rotates $Position around %Point by %Angle radians or %AngleD degrees.",
		required: []string{"Point"},
		oneOf:    [][]string{{"Angle", "AngleD"}},
		run: func(f *Frame, p *params) error {
			b, err := requireBullet(f, p.behaviour)
			if err != nil {
				return err
			}
			pt, err := p.vector("Point")
			if err != nil {
				return err
			}
			a, _, err := p.angle("Angle", "AngleD")
			if err != nil {
				return err
			}
			b.SetPosition(b.Position().RotateAround(pt, a))
			return nil
		},
	})
	defineBehaviour(&behaviourDef{
		name:     "Gravity",
		doc:      "Pulls $Direction towards %Direction: Direction += Weight * Direction / 100.",
		required: []string{"Direction", "Weight"},
		run: func(f *Frame, p *params) error {
			b, err := requireBullet(f, p.behaviour)
			if err != nil {
				return err
			}
			d, err := p.vector("Direction")
			if err != nil {
				return err
			}
			w, err := p.number("Weight")
			if err != nil {
				return err
			}
			b.Direction = b.Direction.Add(d.Scale(w / 100))
			return nil
		},
	})
	defineBehaviour(&behaviourDef{
		name: "Kill",
		doc:  "Removes the bullet at the end of the tick.",
		run: func(f *Frame, p *params) error {
			b, err := requireBullet(f, p.behaviour)
			if err != nil {
				return err
			}
			b.Kill()
			return nil
		},
	})
	defineBehaviour(&behaviourDef{
		name:     "KillIfOffscreen",
		doc:      "Kills the bullet once it is more than %Leeway pixels outside the screen.",
		optional: []string{"Leeway"},
		run: func(f *Frame, p *params) error {
			b, err := requireBullet(f, p.behaviour)
			if err != nil {
				return err
			}
			var leeway float64
			if p.has("Leeway") {
				if leeway, err = p.number("Leeway"); err != nil {
					return err
				}
			}
			size := DefaultOptions()
			w, h := size.Width, size.Height
			if f.System != nil {
				w, h = f.System.opts.Width, f.System.opts.Height
			}
			pos := b.Position()
			if pos.X < -leeway || pos.X > w+leeway || pos.Y < -leeway || pos.Y > h+leeway {
				b.Kill()
			}
			return nil
		},
	})
}
