package vm

// Factory is a compiled bullet type: it creates bullets and supplies the
// code they run. One Factory's CodeBlocks are shared by all its bullets.
type Factory struct {
	Name   string
	Init   *CodeBlock
	Update *CodeBlock
}

// NewFactory returns a factory. Nil blocks are treated as empty.
func NewFactory(name string, init, update *CodeBlock) *Factory {
	if init == nil {
		init = EmptyCodeBlock()
	}
	if update == nil {
		update = EmptyCodeBlock()
	}
	return &Factory{Name: name, Init: init, Update: update}
}

// Instantiate creates a bullet at origin and runs its Init code once. The
// bullet is not added to the system.
func (f *Factory) Instantiate(origin Vector, sys *System) (*Bullet, error) {
	b := newBullet(origin, f)
	if err := f.Init.Execute(b, sys); err != nil {
		return nil, err
	}
	return b, nil
}
