package compiler

import (
	"errors"
	"fmt"
	"slices"

	"github.com/chazu/dml/vm"
)

// ---------------------------------------------------------------------------
// Statement compilation
// ---------------------------------------------------------------------------

// blockKind selects which statements a block accepts.
type blockKind int

const (
	blockGlobal    blockKind = iota // top level of a file
	blockInit                       // bullet Init
	blockUpdate                     // bullet Update
	blockTimestamp                  // body of a timeline time command
	blockTimeline                   // Timeline block outside any time command
)

var blockNames = map[blockKind]string{
	blockGlobal:    "global",
	blockInit:      "bullet init",
	blockUpdate:    "bullet update",
	blockTimestamp: "timeline",
	blockTimeline:  "timeline",
}

func (k blockKind) String() string { return blockNames[k] }

// bound reports whether instance-bound variables are visible.
func (k blockKind) bound() bool { return k == blockInit || k == blockUpdate }

// unit is the state shared by every block compiled from one file.
type unit struct {
	labels int
}

// label returns a fresh label name. Names start with '#', which the lexer
// never produces inside a name, so they cannot collide with user variables.
func (u *unit) label(prefix string) string {
	u.labels++
	return fmt.Sprintf("#%s%d", prefix, u.labels)
}

// block accumulates the instructions of one code block.
type block struct {
	u    *unit
	kind blockKind
	code []vm.Instruction

	// onTime compiles a time command found in a blockTimeline block. The
	// command becomes a timestamp, not code in this block.
	onTime func(c *Cursor, kind vm.TimeKind) error
}

func newBlock(u *unit, kind blockKind) *block {
	return &block{u: u, kind: kind}
}

func (b *block) emit(in ...vm.Instruction) {
	b.code = append(b.code, in...)
}

// compile compiles every statement in tokens into b.
func (b *block) compile(tokens []Token) error {
	c := NewCursor(tokens)
	for !c.Done() {
		line := c.Line()
		if err := b.statement(c); err != nil {
			return vm.WithLine(err, line)
		}
		if err := c.Advance(1, true, false); err != nil {
			return vm.WithLine(err, line)
		}
	}
	return nil
}

// codeBlock resolves the accumulated instructions.
func (b *block) codeBlock() (*vm.CodeBlock, error) {
	return vm.NewCodeBlock(b.code)
}

// statement compiles the statement at the cursor and leaves the cursor on
// its final token.
func (b *block) statement(c *Cursor) error {
	if b.kind == blockTimeline {
		return b.timelineStatement(c)
	}
	tok := c.Current()
	switch tok.Type {
	case TokenSemicolon:
		return nil
	case TokenAssign:
		return b.assignment(c)
	case TokenRange:
		return b.rangeLoop(c)
	case TokenName:
		if next, ok := c.Peek(); ok && next.Type == TokenBar && vm.IsBehaviour(tok.Literal) {
			return b.behaviour(c)
		}
	case TokenBullet, TokenTimeline, TokenPattern, TokenLambda, TokenChildren, TokenInit, TokenUpdate:
		return vm.InvalidTokenForContext(tok.Literal, b.kind.String())
	}

	if c.terminator() == TokenLAngle {
		return b.window(c)
	}
	return b.expressionStatement(c)
}

// timelineStatement compiles a statement of a Timeline block: Assign and
// Range in the global namespace, or a time command.
func (b *block) timelineStatement(c *Cursor) error {
	tok := c.Current()
	switch tok.Type {
	case TokenSemicolon:
		return nil
	case TokenAssign:
		return b.assignment(c)
	case TokenRange:
		return b.rangeLoop(c)
	case TokenName:
		if kind, ok := vm.LookupTimeKind(tok.Literal); ok && b.onTime != nil {
			return b.onTime(c, kind)
		}
		if vm.IsSpawnBehaviour(tok.Literal) {
			return vm.InvalidSpawnPlacement()
		}
	}
	return vm.InvalidTokenForContext(tok.String(), b.kind.String())
}

func (b *block) expression(tokens []Token, line int) error {
	code, err := CompileExpression(tokens, line)
	if err != nil {
		return err
	}
	b.emit(code...)
	return nil
}

// expressionStatement compiles "expr ;". The value is left on the stack and
// discarded when the block returns.
func (b *block) expressionStatement(c *Cursor) error {
	line := c.Line()
	tokens, err := readValue(c, TokenSemicolon)
	if err != nil {
		return err
	}
	return b.expression(tokens, line)
}

// ---------------------------------------------------------------------------
// Assign
// ---------------------------------------------------------------------------

// assignment compiles "Assign target expr ;" where target is @global,
// $bound, $Intrinsic or a local name.
func (b *block) assignment(c *Cursor) error {
	if err := c.Next(); err != nil {
		return vm.BadAssignmentStatement()
	}

	var store vm.Instruction
	tok := c.Current()
	switch tok.Type {
	case TokenAt:
		if err := c.Next(); err != nil {
			return vm.BadAssignmentStatement()
		}
		name := c.Current()
		if name.Type != TokenName {
			return vm.BadGlobalName(name.String())
		}
		store = vm.Named(vm.OpStoreGlobal, name.Literal)

	case TokenDollar:
		if !b.kind.bound() {
			return vm.BadAssignmentNamespace()
		}
		if err := c.Next(); err != nil {
			return vm.BadAssignmentStatement()
		}
		name := c.Current()
		if name.Type != TokenName {
			return vm.BadVariableName(name.String())
		}
		store = vm.Named(vm.OpStoreBound, name.Literal)
		if p, ok := vm.LookupIntrinsic(name.Literal); ok {
			if !p.Assignable() {
				return vm.BadVariableName(name.Literal)
			}
			store = vm.StoreIntrinsic(p)
		}

	case TokenName:
		if vm.IsBuiltin(tok.Literal) {
			return vm.BadVariableName(tok.Literal)
		}
		store = vm.Named(vm.OpStoreLocal, tok.Literal)

	default:
		return vm.BadVariableName(tok.String())
	}

	if err := c.Next(); err != nil {
		return vm.BadAssignmentStatement()
	}
	line := c.Line()
	tokens, err := readValue(c, TokenSemicolon)
	if err != nil {
		return err
	}
	if err := b.expression(tokens, line); err != nil {
		return err
	}
	b.emit(store)
	return nil
}

// ---------------------------------------------------------------------------
// Range
// ---------------------------------------------------------------------------

// rangeLoop compiles "Range v start...end[\>step] < body >". The body runs
// at least once; the loop variable is compared after each increment.
func (b *block) rangeLoop(c *Cursor) error {
	if err := c.Next(); err != nil {
		return vm.BadRangeStatement()
	}
	v := c.Current()
	if v.Type != TokenName || vm.IsBuiltin(v.Literal) {
		return vm.BadRangeStatement()
	}
	if err := c.Next(); err != nil {
		return vm.BadRangeStatement()
	}

	line := c.Line()
	startTokens, err := c.ReadUntil(TokenEllipsis, false, false)
	if err != nil || len(startTokens) == 0 {
		return vm.BadRangeStatement()
	}
	if err := c.Next(); err != nil {
		return vm.BadRangeStatement()
	}
	rest, err := c.ReadUntil(TokenLAngle, false, false)
	if err != nil || len(rest) == 0 {
		return vm.BadRangeStatement()
	}

	endTokens, stepTokens := rest, []Token{{Type: TokenNumber, Literal: "1", Line: line}}
	for i, tok := range rest {
		if tok.Type == TokenStep {
			if i == 0 || i == len(rest)-1 {
				return vm.BadRangeStatement()
			}
			endTokens, stepTokens = rest[:i], rest[i+1:]
			break
		}
	}

	loop := b.u.label("range")
	endName, stepName := loop+".end", loop+".step"

	if err := b.expression(startTokens, line); err != nil {
		return err
	}
	b.emit(vm.Named(vm.OpStoreLocal, v.Literal))
	if err := b.expression(endTokens, line); err != nil {
		return err
	}
	b.emit(vm.Named(vm.OpStoreLocal, endName))
	if err := b.expression(stepTokens, line); err != nil {
		return err
	}
	b.emit(vm.Named(vm.OpStoreLocal, stepName))
	b.emit(vm.Label(loop))

	body, err := c.ReadBlock(false)
	if err != nil {
		return err
	}
	if err := b.compile(body); err != nil {
		return err
	}

	b.emit(
		vm.Named(vm.OpLoadLocal, v.Literal),
		vm.Named(vm.OpLoadLocal, stepName),
		vm.Op(vm.OpAdd),
		vm.Named(vm.OpStoreLocal, v.Literal),
		vm.Named(vm.OpLoadLocal, v.Literal),
		vm.Named(vm.OpLoadLocal, endName),
		vm.Jump(vm.OpJumpIfLessOrEqual, loop),
	)
	return nil
}

// ---------------------------------------------------------------------------
// Conditional windows
// ---------------------------------------------------------------------------

// window compiles "predicate < body >": the body runs on ticks where the
// predicate is True.
func (b *block) window(c *Cursor) error {
	first := c.Current()
	if _, isTime := vm.LookupTimeKind(first.Literal); isTime && b.kind == blockTimestamp {
		return vm.BadTimeCommandPlacement()
	}
	if b.kind != blockUpdate && b.kind != blockTimestamp {
		return vm.InvalidTokenForContext("<", b.kind.String())
	}

	line := c.Line()
	pred, err := c.ReadUntil(TokenLAngle, false, false)
	if err != nil {
		return err
	}
	if len(pred) == 0 {
		return vm.BadTimeCommandSyntax()
	}
	if err := b.expression(pred, line); err != nil {
		return err
	}

	skip := b.u.label("when")
	b.emit(vm.Jump(vm.OpJumpIfFalse, skip))
	body, err := c.ReadBlock(false)
	if err != nil {
		return err
	}
	if err := b.compile(body); err != nil {
		return err
	}
	b.emit(vm.Label(skip))
	return nil
}

// ---------------------------------------------------------------------------
// Behaviours
// ---------------------------------------------------------------------------

// behaviour compiles "Name | %P expr, %Q expr ;" or "Name | ;". Parameter
// names configure the behaviour now; the value expressions run in written
// order before the behaviour is invoked.
func (b *block) behaviour(c *Cursor) error {
	name := c.Current().Literal
	switch {
	case b.kind == blockTimestamp && !vm.IsSpawnBehaviour(name):
		return vm.InvalidTokenForContext(name, b.kind.String())
	case b.kind == blockGlobal || b.kind == blockInit:
		return vm.InvalidTokenForContext(name, b.kind.String())
	}

	c.SetExpecting("|")
	if err := c.Advance(2, false, true); err != nil {
		var e *vm.Error
		if errors.As(err, &e) && e.Kind == vm.ErrSyntax {
			return err
		}
		return vm.BadBehaviourSyntax()
	}

	var (
		params []string
		exprs  [][]Token
		lines  []int
	)
	for c.Current().Type != TokenSemicolon {
		if c.Current().Type != TokenPercent {
			return vm.UnexpectedToken("%", c.Current().String())
		}
		if err := c.Next(); err != nil {
			return vm.BadBehaviourSyntax()
		}
		param := c.Current()
		if param.Type != TokenName {
			return vm.BadVariableName(param.String())
		}
		if err := c.Next(); err != nil {
			return vm.BadBehaviourSyntax()
		}

		line := c.Line()
		value, err := readParamValue(c)
		if err != nil {
			return err
		}
		if len(value) == 0 {
			return vm.BadBehaviourSyntax()
		}
		params = append(params, param.Literal)
		exprs = append(exprs, value)
		lines = append(lines, line)

		if c.Current().Type == TokenComma {
			if err := c.Next(); err != nil {
				return vm.BadBehaviourSyntax()
			}
		}
	}

	configured, err := vm.ConfigureBehaviour(name, params)
	if err != nil {
		return err
	}
	for i, value := range exprs {
		if err := b.expression(value, lines[i]); err != nil {
			return err
		}
	}
	b.emit(vm.Behave(configured))
	return nil
}

// readValue collects an expression up to the first of terminators outside
// round, square and curly brackets, and leaves the cursor on it. Angle
// brackets are comparisons here, never block delimiters.
func readValue(c *Cursor, terminators ...TokenType) ([]Token, error) {
	var (
		out []Token
		n   nesting
	)
	for !c.Done() {
		tok := c.Current()
		if len(n.open) == 0 && slices.Contains(terminators, tok.Type) {
			return out, nil
		}
		if isLeftBracket(tok.Type) || isRightBracket(tok.Type) {
			if err := n.track(tok); err != nil {
				return nil, err
			}
		}
		out = append(out, tok)
		if err := c.Advance(1, true, false); err != nil {
			return nil, err
		}
	}
	return nil, vm.UnexpectedEnd(tokenNames[terminators[len(terminators)-1]])
}

// readParamValue collects a parameter value up to a top-level "," or ";".
func readParamValue(c *Cursor) ([]Token, error) {
	return readValue(c, TokenComma, TokenSemicolon)
}
