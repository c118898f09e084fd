package compiler

import (
	"strings"
	"unicode/utf8"

	"github.com/chazu/dml/vm"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for DML source
// ---------------------------------------------------------------------------

// Lexer tokenizes DML source code. Whitespace other than newlines is a
// separator and is never emitted; newlines are tokens so that the cursor can
// count lines.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)

	// prev is the type of the last non-newline token, TokenEOF before the first.
	prev TokenType
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1, prev: TokenEOF}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// NextToken returns the next token. The only failures are an unterminated
// string and a character outside the language.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespaceAndComments()

	tok, err := l.scan()
	if err != nil {
		return tok, err
	}
	if tok.Type != TokenNewline && tok.Type != TokenEOF {
		l.prev = tok.Type
	}
	return tok, nil
}

func (l *Lexer) scan() (Token, error) {
	line := l.line
	single := func(tt TokenType) (Token, error) {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: tt, Literal: lit, Line: line}, nil
	}
	// pair consumes the current character, and the next one when it is second.
	pair := func(second rune, one, two TokenType) (Token, error) {
		first := l.ch
		l.readChar()
		if l.ch == second {
			l.readChar()
			return Token{Type: two, Literal: string(first) + string(second), Line: line}, nil
		}
		return Token{Type: one, Literal: string(first), Line: line}, nil
	}

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Line: line}, nil

	case l.ch == '\n':
		l.readChar()
		l.line++
		return Token{Type: TokenNewline, Literal: "\n", Line: line}, nil

	case l.ch == '+':
		return single(TokenPlus)
	case l.ch == '*':
		return single(TokenStar)
	case l.ch == '/':
		return single(TokenSlash)
	case l.ch == '%':
		return single(TokenPercent)
	case l.ch == '^':
		return single(TokenCaret)
	case l.ch == '@':
		return single(TokenAt)
	case l.ch == '$':
		return single(TokenDollar)
	case l.ch == '(':
		return single(TokenLParen)
	case l.ch == ')':
		return single(TokenRParen)
	case l.ch == '[':
		return single(TokenLBracket)
	case l.ch == ']':
		return single(TokenRBracket)
	case l.ch == '{':
		return single(TokenLBrace)
	case l.ch == '}':
		return single(TokenRBrace)
	case l.ch == ',':
		return single(TokenComma)
	case l.ch == ';':
		return single(TokenSemicolon)

	case l.ch == '-':
		if l.unary() {
			return pair('>', TokenNeg, TokenArrow)
		}
		return pair('>', TokenMinus, TokenArrow)

	case l.ch == '~':
		if l.unary() {
			return single(TokenAbs)
		}
		return single(TokenTilde)

	case l.ch == '\\':
		return pair('>', TokenBackslash, TokenStep)
	case l.ch == '<':
		return pair('=', TokenLAngle, TokenLtEq)
	case l.ch == '>':
		return pair('=', TokenRAngle, TokenGtEq)
	case l.ch == '=':
		return pair('=', TokenEquals, TokenEqEq)
	case l.ch == '!':
		return pair('=', TokenBang, TokenNotEq)
	case l.ch == '&':
		return pair('&', TokenAmp, TokenAndAnd)
	case l.ch == '|':
		return pair('|', TokenBar, TokenOrOr)

	case l.ch == '.':
		if strings.HasPrefix(l.input[l.pos:], "...") {
			l.readChar()
			l.readChar()
			l.readChar()
			return Token{Type: TokenEllipsis, Literal: "...", Line: line}, nil
		}
		return single(TokenPeriod)

	case l.ch == '"':
		return l.readString(line)

	case isDigit(l.ch):
		return l.readNumber(line), nil

	case isLetter(l.ch) || l.ch == '_':
		return l.readName(line), nil
	}

	ch := l.ch
	l.readChar()
	return Token{}, vm.UnexpectedCharacter(ch, line)
}

// unary reports whether a minus or tilde at this point is a prefix operator:
// it is the first token, or it follows an operator other than a closing bracket.
func (l *Lexer) unary() bool {
	if l.prev == TokenEOF {
		return true
	}
	return l.prev.IsOperator() && !isRightBracket(l.prev)
}

// skipWhitespaceAndComments skips separators and # comments. The newline
// ending a comment is kept.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\f' || l.ch == '\v' {
			l.readChar()
		}
		if l.ch != '#' {
			return
		}
		for l.ch != '\n' && l.ch != 0 {
			l.readChar()
		}
	}
}

// readString reads a double-quoted string. The literal keeps its quotes.
// Strings may span lines.
func (l *Lexer) readString(line int) (Token, error) {
	start := l.pos
	l.readChar() // opening quote
	for l.ch != '"' {
		if l.ch == 0 {
			return Token{}, vm.UnterminatedString(line)
		}
		if l.ch == '\n' {
			l.line++
		}
		l.readChar()
	}
	l.readChar() // closing quote
	return Token{Type: TokenString, Literal: l.input[start:l.pos], Line: line}, nil
}

// readNumber reads a digit run, folding "N.M" into one decimal literal.
func (l *Lexer) readNumber(line int) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Line: line}
}

// readName reads a name or keyword.
func (l *Lexer) readName(line int) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if tt, ok := keywords[lit]; ok {
		return Token{Type: tt, Literal: lit, Line: line}
	}
	return Token{Type: TokenName, Literal: lit, Line: line}
}

func isDigit(ch rune) bool  { return '0' <= ch && ch <= '9' }
func isLetter(ch rune) bool { return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' }

// ---------------------------------------------------------------------------
// Whole-source helpers
// ---------------------------------------------------------------------------

// Tokenize lexes src completely. The EOF token is not included.
func Tokenize(src string) ([]Token, error) {
	l := NewLexer(src)
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenEOF {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}

// Format renders tokens back to canonical source: one space between tokens
// on a line and no trailing whitespace. Lexing the result yields the same
// tokens.
func Format(tokens []Token) string {
	var b strings.Builder
	atLineStart := true
	for _, tok := range tokens {
		if tok.Type == TokenNewline {
			b.WriteByte('\n')
			atLineStart = true
			continue
		}
		if !atLineStart {
			b.WriteByte(' ')
		}
		b.WriteString(tok.Literal)
		atLineStart = false
	}
	return b.String()
}
