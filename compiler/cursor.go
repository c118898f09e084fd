package compiler

import (
	"github.com/chazu/dml/vm"
)

// ---------------------------------------------------------------------------
// Cursor: positional reader over a token slice
// ---------------------------------------------------------------------------

// Cursor walks a token slice. Newline tokens are skipped transparently and
// never count as steps; the current line is the line of the current token.
//
// A cursor is Done once it has been advanced past the last token. It is never
// positioned before the first token.
type Cursor struct {
	tokens    []Token
	pos       int
	expecting []string
}

// NewCursor returns a cursor on the first non-newline token of tokens.
func NewCursor(tokens []Token) *Cursor {
	c := &Cursor{tokens: tokens}
	c.pos = c.skipForward(0)
	return c
}

func (c *Cursor) skipForward(i int) int {
	for i < len(c.tokens) && c.tokens[i].Type == TokenNewline {
		i++
	}
	return i
}

func (c *Cursor) skipBackward(i int) int {
	for i >= 0 && c.tokens[i].Type == TokenNewline {
		i--
	}
	return i
}

// Done reports whether the cursor has moved past the last token.
func (c *Cursor) Done() bool { return c.pos >= len(c.tokens) }

// Current returns the current token, or an EOF token when Done.
func (c *Cursor) Current() Token {
	if c.Done() {
		return Token{Type: TokenEOF, Line: c.Line()}
	}
	return c.tokens[c.pos]
}

// Peek returns the token after the current one.
func (c *Cursor) Peek() (Token, bool) {
	if c.Done() {
		return Token{}, false
	}
	next := c.skipForward(c.pos + 1)
	if next >= len(c.tokens) {
		return Token{}, false
	}
	return c.tokens[next], true
}

// Line returns the source line of the current token. Once Done it is the
// line of the last token.
func (c *Cursor) Line() int {
	if len(c.tokens) == 0 {
		return 0
	}
	if c.Done() {
		return c.tokens[len(c.tokens)-1].Line
	}
	return c.tokens[c.pos].Line
}

// SetExpecting queues literals that the tokens reached by the next
// advances must match, one per step.
func (c *Cursor) SetExpecting(literals ...string) {
	c.expecting = append(c.expecting[:0], literals...)
}

// Advance moves forward by steps tokens. When allowEnd is false the cursor
// will not move past the last token. When strict is true, failing to move
// the full distance is a ParserError. Each step checks the head of the
// expectation queue.
func (c *Cursor) Advance(steps int, allowEnd, strict bool) error {
	taken := 0
	for taken < steps && !c.Done() {
		next := c.skipForward(c.pos + 1)
		if next >= len(c.tokens) && !allowEnd {
			break
		}
		c.pos = next
		taken++
		if len(c.expecting) > 0 {
			want := c.expecting[0]
			c.expecting = c.expecting[1:]
			if got := c.Current(); got.Literal != want {
				c.expecting = c.expecting[:0]
				return vm.UnexpectedToken(want, got.String())
			}
		}
	}
	if taken < steps && strict {
		return vm.ParserError("Cannot advance the desired amount of steps.")
	}
	return nil
}

// Next advances one token, refusing to move past the end.
func (c *Cursor) Next() error { return c.Advance(1, false, true) }

// Reverse moves back by steps tokens. When strict is true, reaching the
// first token early is a ParserError.
func (c *Cursor) Reverse(steps int, strict bool) error {
	taken := 0
	for taken < steps {
		prev := c.skipBackward(c.pos - 1)
		if c.Done() {
			prev = c.skipBackward(len(c.tokens) - 1)
		}
		if prev < 0 {
			break
		}
		c.pos = prev
		taken++
	}
	if taken < steps && strict {
		return vm.ParserError("Cannot reverse the desired amount of steps.")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Nesting
// ---------------------------------------------------------------------------

// nesting tracks bracket nesting. Round, square and curly brackets must close
// with their own kind. Angle brackets are block delimiters and only count
// when no other bracket is open and the tokens are not the value of an
// Assign or behaviour statement, so comparisons there are safe.
type nesting struct {
	open  []TokenType
	angle int
	value bool // between "Assign" or "|" and the closing ";"
}

func (n *nesting) depth() int { return len(n.open) + n.angle }

func (n *nesting) track(tok Token) error {
	switch {
	case isLeftBracket(tok.Type):
		n.open = append(n.open, tok.Type)
	case isRightBracket(tok.Type):
		if len(n.open) == 0 {
			if tok.Type == TokenRParen {
				return vm.MismatchedParentheses()
			}
			return vm.MismatchedBrackets("", tok.Literal)
		}
		top := n.open[len(n.open)-1]
		if matchingBracket(top) != tok.Type {
			return vm.MismatchedBrackets(tokenNames[top], tok.Literal)
		}
		n.open = n.open[:len(n.open)-1]
	case tok.Type == TokenAssign || tok.Type == TokenBar:
		n.value = true
	case tok.Type == TokenSemicolon && len(n.open) == 0:
		n.value = false
	case n.value:
	case len(n.open) == 0 && tok.Type == TokenLAngle:
		n.angle++
	case len(n.open) == 0 && tok.Type == TokenRAngle:
		if n.angle == 0 {
			return vm.MismatchedNamespaceDelimiters()
		}
		n.angle--
	}
	return nil
}

// ReadUntil collects tokens from the current one up to, but not including,
// the first terminator at nesting depth zero, and leaves the cursor on the
// terminator. With ignoreDepth the first terminator ends the read regardless
// of nesting. With reposition the cursor is restored afterwards.
func (c *Cursor) ReadUntil(terminator TokenType, ignoreDepth, reposition bool) ([]Token, error) {
	start := c.pos
	if reposition {
		defer func() { c.pos = start }()
	}

	var out []Token
	var n nesting
	for !c.Done() {
		tok := c.Current()
		if tok.Type == terminator && (ignoreDepth || n.depth() == 0) {
			return out, nil
		}
		if !ignoreDepth {
			if err := n.track(tok); err != nil {
				return nil, err
			}
		}
		out = append(out, tok)
		if err := c.Advance(1, true, false); err != nil {
			return nil, err
		}
	}
	return nil, vm.UnexpectedEnd(tokenNames[terminator])
}

// ReadBlock reads a block delimited by angle brackets. The cursor must be on
// the opening "<"; the interior tokens are returned and the cursor is left on
// the matching ">", or restored with reposition.
func (c *Cursor) ReadBlock(reposition bool) ([]Token, error) {
	start := c.pos
	if reposition {
		defer func() { c.pos = start }()
	}
	if c.Current().Type != TokenLAngle {
		return nil, vm.ParserError("A block must start with `<`.")
	}

	var out []Token
	n := nesting{angle: 1}
	for {
		if err := c.Advance(1, true, false); err != nil {
			return nil, err
		}
		if c.Done() {
			return nil, vm.MismatchedNamespaceDelimiters()
		}
		tok := c.Current()
		if err := n.track(tok); err != nil {
			return nil, err
		}
		if n.depth() == 0 {
			return out, nil
		}
		out = append(out, tok)
	}
}

// terminator returns the type of the first ";" or "<" at nesting depth zero
// from the current token, without moving. It returns TokenEOF when neither
// occurs.
func (c *Cursor) terminator() TokenType {
	var n nesting
	for i := c.pos; i < len(c.tokens); i++ {
		tok := c.tokens[i]
		if len(n.open) == 0 && (tok.Type == TokenSemicolon || tok.Type == TokenLAngle) {
			return tok.Type
		}
		if n.track(tok) != nil {
			return TokenEOF
		}
	}
	return TokenEOF
}
