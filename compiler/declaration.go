package compiler

import (
	"strconv"

	"github.com/chazu/dml/vm"
)

// ---------------------------------------------------------------------------
// Bullet declarations
// ---------------------------------------------------------------------------

// bulletDecl compiles "Bullet @Name < Init < ... > Update < ... > >" and
// leaves the cursor on the closing ">".
func (fc *fileCompiler) bulletDecl(c *Cursor) (*vm.Factory, error) {
	c.SetExpecting("@")
	if err := c.Next(); err != nil {
		return nil, vm.BadBulletDeclaration()
	}
	if err := c.Next(); err != nil {
		return nil, vm.BadBulletDeclaration()
	}
	name := c.Current()
	if name.Type != TokenName {
		return nil, vm.BadBulletDeclaration()
	}
	if err := c.Next(); err != nil || c.Current().Type != TokenLAngle {
		return nil, vm.BadBulletDeclaration()
	}
	body, err := c.ReadBlock(false)
	if err != nil {
		return nil, err
	}

	var init, update *vm.CodeBlock
	bc := NewCursor(body)
	for !bc.Done() {
		line := bc.Line()
		tok := bc.Current()

		var kind blockKind
		var dst **vm.CodeBlock
		switch tok.Type {
		case TokenInit:
			kind, dst = blockInit, &init
		case TokenUpdate:
			kind, dst = blockUpdate, &update
		case TokenAssign:
			return nil, vm.BadAssignmentNamespace().AtLine(line)
		default:
			return nil, vm.InvalidTokenForContext(tok.String(), "bullet").AtLine(line)
		}
		if *dst != nil {
			return nil, vm.DuplicateNamespaceInBullet(tok.Literal).AtLine(line)
		}

		code, err := fc.subBlock(bc, kind, tok.Literal)
		if err != nil {
			return nil, vm.WithLine(err, line)
		}
		*dst = code
		if err := bc.Advance(1, true, false); err != nil {
			return nil, err
		}
	}
	return vm.NewFactory(name.Literal, init, update), nil
}

// subBlock compiles the "< ... >" following the keyword at the cursor.
func (fc *fileCompiler) subBlock(c *Cursor, kind blockKind, keyword string) (*vm.CodeBlock, error) {
	c.SetExpecting("<")
	if err := c.Next(); err != nil {
		return nil, vm.BlockMissingDelimiters(keyword)
	}
	tokens, err := c.ReadBlock(false)
	if err != nil {
		return nil, err
	}
	b := newBlock(fc.u, kind)
	if err := b.compile(tokens); err != nil {
		return nil, err
	}
	return b.codeBlock()
}

// ---------------------------------------------------------------------------
// Timeline
// ---------------------------------------------------------------------------

// timelineDecl compiles "Timeline < ... >". Time commands become timestamps;
// the Assign and Range statements around them become the timeline's setup
// code. A time command inside a Range body is registered once.
func (fc *fileCompiler) timelineDecl(c *Cursor) (*vm.Timeline, error) {
	c.SetExpecting("<")
	if err := c.Next(); err != nil {
		return nil, vm.BlockMissingDelimiters("Timeline")
	}
	body, err := c.ReadBlock(false)
	if err != nil {
		return nil, err
	}

	tl := vm.NewTimeline()
	b := newBlock(fc.u, blockTimeline)
	b.onTime = func(c *Cursor, kind vm.TimeKind) error {
		ts, err := fc.timeCommand(c, kind)
		if err != nil {
			return err
		}
		return tl.Add(ts)
	}
	if err := b.compile(body); err != nil {
		return nil, err
	}
	if len(b.code) > 0 {
		setup, err := b.codeBlock()
		if err != nil {
			return nil, err
		}
		tl.SetSetup(setup)
	}
	return tl, nil
}

// timeCommand compiles "Kind(n, ...) < body >" with literal numeric
// arguments, leaving the cursor on the closing ">".
func (fc *fileCompiler) timeCommand(c *Cursor, kind vm.TimeKind) (*vm.Timestamp, error) {
	c.SetExpecting("(")
	if err := c.Next(); err != nil {
		return nil, vm.BadTimeCommandSyntax()
	}

	var args []float64
	for {
		if err := c.Next(); err != nil {
			return nil, vm.BadTimeCommandSyntax()
		}
		if len(args) == 0 && c.Current().Type == TokenRParen {
			break
		}
		sign := 1.0
		if t := c.Current().Type; t == TokenNeg || t == TokenMinus {
			sign = -1
			if err := c.Next(); err != nil {
				return nil, vm.BadTimeCommandSyntax()
			}
		}
		num := c.Current()
		if num.Type != TokenNumber {
			return nil, vm.BadTimeCommandSyntax()
		}
		v, err := strconv.ParseFloat(num.Literal, 64)
		if err != nil {
			return nil, vm.BadTimeCommandSyntax()
		}
		args = append(args, sign*v)

		if err := c.Next(); err != nil {
			return nil, vm.BadTimeCommandSyntax()
		}
		if c.Current().Type == TokenRParen {
			break
		}
		if c.Current().Type != TokenComma {
			return nil, vm.BadTimeCommandSyntax()
		}
	}

	if err := c.Next(); err != nil || c.Current().Type != TokenLAngle {
		return nil, vm.BadTimeCommandSyntax()
	}
	tokens, err := c.ReadBlock(false)
	if err != nil {
		return nil, err
	}
	b := newBlock(fc.u, blockTimestamp)
	if err := b.compile(tokens); err != nil {
		return nil, err
	}
	code, err := b.codeBlock()
	if err != nil {
		return nil, err
	}
	return vm.NewTimestamp(kind, args, code)
}
