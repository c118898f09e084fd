package vm

// CodeBlock is an immutable, resolved instruction array. Each call to
// Evaluate or Execute runs on its own Frame starting at instruction zero, so a
// CodeBlock can be shared freely between bullets, ticks and goroutines.
type CodeBlock struct {
	code []Instruction
}

// NewCodeBlock resolves code's labels and wraps the result.
func NewCodeBlock(code []Instruction) (*CodeBlock, error) {
	resolved, err := Resolve(code)
	if err != nil {
		return nil, err
	}
	return &CodeBlock{code: resolved}, nil
}

// EmptyCodeBlock returns a block that does nothing.
func EmptyCodeBlock() *CodeBlock {
	return &CodeBlock{}
}

// Len returns the number of instructions.
func (c *CodeBlock) Len() int { return len(c.code) }

// Instructions returns a copy of the resolved instructions.
func (c *CodeBlock) Instructions() []Instruction {
	out := make([]Instruction, len(c.code))
	copy(out, c.code)
	return out
}

func (c *CodeBlock) String() string { return Disassemble(c.code) }

// Evaluate runs the block and returns the value left on top of the stack,
// or Null when the stack is empty.
func (c *CodeBlock) Evaluate(b *Bullet, sys *System) (Value, error) {
	f := newFrame(b, sys)
	if err := c.run(f, nil); err != nil {
		return nil, err
	}
	if f.Depth() == 0 {
		return Null{}, nil
	}
	return f.stack[f.Depth()-1], nil
}

// Execute runs the block for its side effects.
func (c *CodeBlock) Execute(b *Bullet, sys *System) error {
	return c.run(newFrame(b, sys), nil)
}

// Trace executes the block, calling visit before each instruction runs.
func (c *CodeBlock) Trace(b *Bullet, sys *System, visit func(ip int, in Instruction)) error {
	return c.run(newFrame(b, sys), visit)
}

func (c *CodeBlock) run(f *Frame, visit func(int, Instruction)) error {
	for f.ip < len(c.code) {
		in := &c.code[f.ip]
		if visit != nil {
			visit(f.ip, *in)
		}
		jumped, err := step(in, f)
		if err != nil {
			return err
		}
		if !jumped {
			f.ip++
		}
	}
	return nil
}

// step executes one instruction and reports whether it moved the instruction pointer.
func step(in *Instruction, f *Frame) (bool, error) {
	switch in.Op {
	case OpNop, OpLabel:

	case OpLoadConst:
		f.Push(in.Value)

	case OpLoadBuiltin:
		v, ok := LookupBuiltin(in.Name, f.System)
		if !ok {
			return false, UndefinedVariable("builtin", in.Name)
		}
		f.Push(v)

	case OpLoadLocal:
		v, ok := f.locals[in.Name]
		if !ok {
			return false, UndefinedVariable("local", in.Name)
		}
		f.Push(v)

	case OpLoadGlobal:
		if f.System == nil {
			return false, UndefinedVariable("global", in.Name)
		}
		v, ok := f.System.Globals[in.Name]
		if !ok {
			return false, UndefinedVariable("global", in.Name)
		}
		f.Push(v)

	case OpLoadBound:
		if f.Bullet == nil {
			return false, NoBulletContext("$" + in.Name)
		}
		v, ok := f.Bullet.Vars[in.Name]
		if !ok {
			return false, UndefinedVariable("instance bound", in.Name)
		}
		f.Push(v)

	case OpLoadIntrinsic:
		if f.Bullet == nil {
			return false, NoBulletContext("$" + in.Property.String())
		}
		f.Push(f.Bullet.Intrinsic(in.Property))

	case OpStoreLocal:
		v, err := f.Pop()
		if err != nil {
			return false, err
		}
		f.locals[in.Name] = v

	case OpStoreGlobal:
		v, err := f.Pop()
		if err != nil {
			return false, err
		}
		if f.System == nil {
			return false, runtimef("cannot assign global `%s` without a system.", in.Name)
		}
		f.System.Globals[in.Name] = v

	case OpStoreBound:
		v, err := f.Pop()
		if err != nil {
			return false, err
		}
		if f.Bullet == nil {
			return false, NoBulletContext("$" + in.Name)
		}
		f.Bullet.SetVar(in.Name, v)

	case OpStoreIntrinsic:
		v, err := f.Pop()
		if err != nil {
			return false, err
		}
		if f.Bullet == nil {
			return false, NoBulletContext("$" + in.Property.String())
		}
		if err := f.Bullet.SetIntrinsic(in.Property, v, f.System); err != nil {
			return false, err
		}

	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow, OpAnd, OpOr,
		OpEq, OpNeq, OpLt, OpGt, OpLtEq, OpGtEq:
		b, err := f.Pop()
		if err != nil {
			return false, err
		}
		a, err := f.Pop()
		if err != nil {
			return false, err
		}
		r, err := Binary(in.Op, a, b)
		if err != nil {
			return false, err
		}
		f.Push(r)

	case OpNeg, OpAbs, OpNot:
		a, err := f.Pop()
		if err != nil {
			return false, err
		}
		r, err := Unary(in.Op, a)
		if err != nil {
			return false, err
		}
		f.Push(r)

	case OpCall:
		callee, err := f.Pop()
		if err != nil {
			return false, err
		}
		fn, ok := callee.(Func)
		if !ok || fn.Fn == nil {
			return false, UncallableObject(callee.Kind())
		}
		r, err := call(fn.Fn, in.Argc, f)
		if err != nil {
			return false, err
		}
		f.Push(r)

	case OpJump:
		f.ip = in.Target.index
		return true, nil

	case OpJumpIfFalse:
		v, err := f.Pop()
		if err != nil {
			return false, err
		}
		cond, ok := v.(Bool)
		if !ok {
			return false, TypeMismatch("conditional jump", KindBool, v.Kind())
		}
		if !cond {
			f.ip = in.Target.index
			return true, nil
		}

	case OpJumpIfLessOrEqual:
		b, err := f.Pop()
		if err != nil {
			return false, err
		}
		a, err := f.Pop()
		if err != nil {
			return false, err
		}
		x, ok1 := a.(Number)
		y, ok2 := b.(Number)
		if !ok1 || !ok2 {
			return false, BadBinaryOperandTypes("<=", a.Kind(), b.Kind())
		}
		if x <= y {
			f.ip = in.Target.index
			return true, nil
		}

	case OpBehave:
		if in.Behaviour == nil {
			return false, runtimef("behaviour instruction without a behaviour.")
		}
		if err := in.Behaviour.invoke(f); err != nil {
			return false, err
		}

	default:
		return false, runtimef("unknown opcode %s.", in.Op)
	}
	return false, nil
}
