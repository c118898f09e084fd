package compiler

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Token types for the DML lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenNewline

	// Literals
	TokenNumber // 42, 1.5
	TokenString // "hello"
	TokenName   // foo, Bar_2

	// Arithmetic
	TokenPlus      // +
	TokenMinus     // -
	TokenNeg       // u- (unary minus)
	TokenStar      // *
	TokenSlash     // /
	TokenBackslash // \
	TokenPercent   // %
	TokenCaret     // ^
	TokenTilde     // ~
	TokenAbs       // u~ (unary magnitude)

	// Comparison and logic
	TokenBang   // !
	TokenEqEq   // ==
	TokenNotEq  // !=
	TokenLtEq   // <=
	TokenGtEq   // >=
	TokenAndAnd // &&
	TokenOrOr   // ||

	// Sigils
	TokenAt     // @
	TokenDollar // $
	TokenAmp    // &
	TokenBar    // |

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLAngle    // <
	TokenRAngle    // >
	TokenComma     // ,
	TokenPeriod    // .
	TokenSemicolon // ;
	TokenEquals    // =
	TokenArrow     // ->
	TokenStep      // \>
	TokenEllipsis  // ...

	// Keywords
	TokenTrue
	TokenFalse
	TokenNull
	TokenAssign
	TokenRange
	TokenBullet
	TokenPattern
	TokenTimeline
	TokenInit
	TokenUpdate
	TokenChildren
	TokenLambda
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenNewline:   "NEWLINE",
	TokenNumber:    "NUMBER",
	TokenString:    "STRING",
	TokenName:      "NAME",
	TokenPlus:      "+",
	TokenMinus:     "-",
	TokenNeg:       "u-",
	TokenStar:      "*",
	TokenSlash:     "/",
	TokenBackslash: "\\",
	TokenPercent:   "%",
	TokenCaret:     "^",
	TokenTilde:     "~",
	TokenAbs:       "u~",
	TokenBang:      "!",
	TokenEqEq:      "==",
	TokenNotEq:     "!=",
	TokenLtEq:      "<=",
	TokenGtEq:      ">=",
	TokenAndAnd:    "&&",
	TokenOrOr:      "||",
	TokenAt:        "@",
	TokenDollar:    "$",
	TokenAmp:       "&",
	TokenBar:       "|",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenLAngle:    "<",
	TokenRAngle:    ">",
	TokenComma:     ",",
	TokenPeriod:    ".",
	TokenSemicolon: ";",
	TokenEquals:    "=",
	TokenArrow:     "->",
	TokenStep:      "\\>",
	TokenEllipsis:  "...",
	TokenTrue:      "True",
	TokenFalse:     "False",
	TokenNull:      "Null",
	TokenAssign:    "Assign",
	TokenRange:     "Range",
	TokenBullet:    "Bullet",
	TokenPattern:   "Pattern",
	TokenTimeline:  "Timeline",
	TokenInit:      "Init",
	TokenUpdate:    "Update",
	TokenChildren:  "Children",
	TokenLambda:    "Lambda",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// IsOperator reports whether t is punctuation rather than a value, a name
// or a keyword.
func (t TokenType) IsOperator() bool {
	return t >= TokenPlus && t < TokenTrue
}

// Token represents a lexical token with its source line.
type Token struct {
	Type    TokenType
	Literal string
	Line    int
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "\\n"
	case TokenNeg, TokenAbs:
		return t.Type.String()
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%.20q...", t.Literal)
	}
	return t.Literal
}

// Is reports whether the token has type tt.
func (t Token) Is(tt TokenType) bool { return t.Type == tt }

// keywords maps reserved words to their token types.
var keywords = map[string]TokenType{
	"True":     TokenTrue,
	"False":    TokenFalse,
	"Null":     TokenNull,
	"Assign":   TokenAssign,
	"Range":    TokenRange,
	"Bullet":   TokenBullet,
	"Pattern":  TokenPattern,
	"Timeline": TokenTimeline,
	"Init":     TokenInit,
	"Update":   TokenUpdate,
	"Children": TokenChildren,
	"Lambda":   TokenLambda,
}

// IsKeyword reports whether name is reserved.
func IsKeyword(name string) bool {
	_, ok := keywords[name]
	return ok
}

// Keywords returns the reserved words, sorted.
func Keywords() []string {
	out := make([]string, 0, len(keywords))
	for k := range keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isLeftBracket(t TokenType) bool {
	return t == TokenLParen || t == TokenLBracket || t == TokenLBrace
}

func isRightBracket(t TokenType) bool {
	return t == TokenRParen || t == TokenRBracket || t == TokenRBrace
}

func matchingBracket(t TokenType) TokenType {
	switch t {
	case TokenLParen:
		return TokenRParen
	case TokenLBracket:
		return TokenRBracket
	case TokenLBrace:
		return TokenRBrace
	}
	return TokenEOF
}
