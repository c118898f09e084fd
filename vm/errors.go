package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Structured language errors
// ---------------------------------------------------------------------------

// ErrorKind classifies a language error.
type ErrorKind int

const (
	ErrSyntax    ErrorKind = iota // malformed script
	ErrLex                        // unterminated construct in the source text
	ErrRuntime                    // failure while executing a CodeBlock
	ErrBehaviour                  // behaviour configured with an invalid parameter set
	ErrParser                     // cursor misuse (reading past the end of a token range)
)

var errorKindNames = map[ErrorKind]string{
	ErrSyntax:    "syntax",
	ErrLex:       "lex",
	ErrRuntime:   "runtime",
	ErrBehaviour: "behaviour",
	ErrParser:    "parser",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// Error is the single structured error type used by the compiler and the VM.
// Line is zero until a compiler boundary that knows the source line attaches it.
type Error struct {
	Kind ErrorKind
	Msg  string
	Line int
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("An error occurred on line %d.\n%s", e.Line, e.Msg)
	}
	return e.Msg
}

// AtLine returns e with its line set, unless an inner boundary already set one.
func (e *Error) AtLine(line int) *Error {
	if e.Line == 0 {
		e.Line = line
	}
	return e
}

// WithLine attaches line to err when err is an *Error without a line.
// Other errors are returned unchanged.
func WithLine(err error, line int) error {
	if e, ok := err.(*Error); ok {
		return e.AtLine(line)
	}
	return err
}

func syntaxf(format string, args ...any) *Error {
	return &Error{Kind: ErrSyntax, Msg: "Invalid syntax; " + fmt.Sprintf(format, args...)}
}

func runtimef(format string, args ...any) *Error {
	return &Error{Kind: ErrRuntime, Msg: fmt.Sprintf(format, args...)}
}

// --- Syntax errors ---

func UnexpectedToken(want, got string) *Error {
	return syntaxf("expected `%s`, got `%s`.", want, got)
}

func UnexpectedEnd(want string) *Error {
	return syntaxf("unexpected end of input while looking for `%s`.", want)
}

func BadArgumentCount(name string, count int) *Error {
	return syntaxf("`%s` does not accept %d argument(s).", name, count)
}

func BadArgumentType(name string, position int, want, got Kind) *Error {
	return syntaxf("argument %d of `%s` must be of type %s, got %s.", position, name, want, got)
}

func BadBinaryOperandTypes(op string, left, right Kind) *Error {
	return syntaxf("cannot apply `%s` to operands of type %s and %s.", op, left, right)
}

func BadUnaryOperandType(op string, operand Kind) *Error {
	return syntaxf("cannot apply unary `%s` to an operand of type %s.", op, operand)
}

func BadAssignmentNamespace() *Error {
	return syntaxf("instance bound variables can only be assigned inside Init or Update blocks.")
}

func BadAssignmentStatement() *Error {
	return syntaxf("malformed assignment statement.")
}

func BadGlobalName(name string) *Error {
	return syntaxf("`%s` is not a valid global variable name.", name)
}

func BadVariableName(name string) *Error {
	return syntaxf("`%s` is not a valid variable name.", name)
}

func BadBulletDeclaration() *Error {
	return syntaxf("malformed bullet declaration.")
}

func BadRangeStatement() *Error {
	return syntaxf("malformed range statement.")
}

func InvalidTokenForContext(token, context string) *Error {
	return syntaxf("invalid token `%s` in %s.", token, context)
}

func MismatchedParentheses() *Error {
	return syntaxf("mismatched parentheses detected.")
}

func MismatchedBrackets(open, close string) *Error {
	return syntaxf("bracket `%s` closed by `%s`.", open, close)
}

func MismatchedNamespaceDelimiters() *Error {
	return syntaxf("mismatched namespace delimiters detected.")
}

func BadTimeCommandSyntax() *Error {
	return syntaxf("malformed time command.")
}

func BadTimeCommandPlacement() *Error {
	return syntaxf("time commands cannot be nested inside a timeline time command.")
}

func BlockMissingDelimiters(name string) *Error {
	return syntaxf("block `%s` is missing its namespace delimiters.", name)
}

func DuplicateNamespaceInBullet(name string) *Error {
	return syntaxf("bullet declares more than one `%s` block.", name)
}

func DuplicateTimeline() *Error {
	return syntaxf("a script can only declare one Timeline.")
}

func BadBehaviourSyntax() *Error {
	return syntaxf("malformed behaviour statement.")
}

func InvalidSpawnPlacement() *Error {
	return syntaxf("spawn behaviours in a Timeline must be placed inside a time command.")
}

func BadExpression(detail string) *Error {
	return syntaxf("malformed expression: %s.", detail)
}

func UnterminatedString(line int) *Error {
	return &Error{Kind: ErrLex, Msg: "Unterminated string literal.", Line: line}
}

// UnexpectedCharacter reports a character outside the DML alphabet.
func UnexpectedCharacter(ch rune, line int) *Error {
	return &Error{Kind: ErrLex, Msg: fmt.Sprintf("Unexpected character %q.", ch), Line: line}
}

func ParserError(msg string) *Error {
	return &Error{Kind: ErrParser, Msg: msg}
}

// --- Runtime errors ---

func UncallableObject(k Kind) *Error {
	return runtimef("attempt to call uncallable object of type %s.", k)
}

func UndefinedVariable(scope, name string) *Error {
	return runtimef("undefined %s variable `%s`.", scope, name)
}

func NoBulletContext(what string) *Error {
	return runtimef("`%s` requires a bullet and none is executing.", what)
}

func StackUnderflow() *Error {
	return runtimef("operand stack underflow.")
}

func TypeMismatch(what string, want, got Kind) *Error {
	return runtimef("%s expects a value of type %s, got %s.", what, want, got)
}

// BehaviourError reports an invalid configuration or invocation of a behaviour.
func BehaviourError(name string, format string, args ...any) *Error {
	return &Error{Kind: ErrBehaviour, Msg: fmt.Sprintf("%s: %s", name, fmt.Sprintf(format, args...))}
}

// FirstLine returns the first line of an error message, without the
// "An error occurred on line N." prefix.
func FirstLine(err error) string {
	msg := err.Error()
	if e, ok := err.(*Error); ok {
		msg = e.Msg
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
