package compiler

import (
	"strconv"

	"github.com/chazu/dml/vm"
)

// ---------------------------------------------------------------------------
// Expression compiler: shunting-yard over a token slice
// ---------------------------------------------------------------------------

// operator describes a binary or prefix operator.
type operator struct {
	op         vm.Opcode
	prec       int
	rightAssoc bool
	unary      bool
}

var binaryOperators = map[TokenType]operator{
	TokenOrOr:    {op: vm.OpOr, prec: 0},
	TokenAndAnd:  {op: vm.OpAnd, prec: 1},
	TokenEqEq:    {op: vm.OpEq, prec: 3},
	TokenNotEq:   {op: vm.OpNeq, prec: 3},
	TokenLAngle:  {op: vm.OpLt, prec: 3},
	TokenRAngle:  {op: vm.OpGt, prec: 3},
	TokenLtEq:    {op: vm.OpLtEq, prec: 3},
	TokenGtEq:    {op: vm.OpGtEq, prec: 3},
	TokenPlus:    {op: vm.OpAdd, prec: 4},
	TokenMinus:   {op: vm.OpSub, prec: 4},
	TokenStar:    {op: vm.OpMul, prec: 5},
	TokenSlash:   {op: vm.OpDiv, prec: 5},
	TokenPercent: {op: vm.OpMod, prec: 5},
	TokenCaret:   {op: vm.OpPow, prec: 6, rightAssoc: true},
}

// prefixOperators apply in operand position. A plain "-" or "~" is accepted
// there as well, so an expression cut from the middle of a statement may
// start with a sign.
var prefixOperators = map[TokenType]operator{
	TokenBang:  {op: vm.OpNot, prec: 2, rightAssoc: true, unary: true},
	TokenNeg:   {op: vm.OpNeg, prec: 7, rightAssoc: true, unary: true},
	TokenMinus: {op: vm.OpNeg, prec: 7, rightAssoc: true, unary: true},
	TokenAbs:   {op: vm.OpAbs, prec: 7, rightAssoc: true, unary: true},
	TokenTilde: {op: vm.OpAbs, prec: 7, rightAssoc: true, unary: true},
}

// stackEntry is an operator waiting on the shunting-yard stack, or a "("
// marker when paren is set.
type stackEntry struct {
	operator
	paren bool
}

// exprCompiler emits instructions for one expression and tracks the
// compile-time stack depth.
type exprCompiler struct {
	out   []vm.Instruction
	depth int
}

// CompileExpression compiles tokens into instructions that leave exactly one
// value on the stack. line is attached to errors that carry none.
func CompileExpression(tokens []Token, line int) ([]vm.Instruction, error) {
	e := &exprCompiler{}
	if err := e.expression(tokens); err != nil {
		return nil, vm.WithLine(err, line)
	}
	return e.out, nil
}

func (e *exprCompiler) expression(tokens []Token) error {
	tokens = withoutNewlines(tokens)
	if len(tokens) == 0 {
		return vm.BadExpression("empty expression")
	}

	start := e.depth
	var ops []stackEntry
	expectOperand := true

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if expectOperand {
			if op, ok := prefixOperators[tok.Type]; ok {
				ops = append(ops, stackEntry{operator: op})
				continue
			}
			if tok.Type == TokenLParen {
				ops = append(ops, stackEntry{paren: true})
				continue
			}
			n, err := e.operand(tokens, i)
			if err != nil {
				return err
			}
			i += n - 1
			expectOperand = false
			continue
		}

		if tok.Type == TokenRParen {
			found := false
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				ops = ops[:len(ops)-1]
				if top.paren {
					found = true
					break
				}
				if err := e.apply(top.operator); err != nil {
					return err
				}
			}
			if !found {
				return vm.MismatchedParentheses()
			}
			continue
		}

		op, ok := binaryOperators[tok.Type]
		if !ok {
			return vm.InvalidTokenForContext(tok.String(), "expression")
		}
		for len(ops) > 0 {
			top := ops[len(ops)-1]
			if top.paren {
				break
			}
			if op.rightAssoc && top.prec <= op.prec || !op.rightAssoc && top.prec < op.prec {
				break
			}
			ops = ops[:len(ops)-1]
			if err := e.apply(top.operator); err != nil {
				return err
			}
		}
		ops = append(ops, stackEntry{operator: op})
		expectOperand = true
	}

	if expectOperand {
		return vm.InvalidTokenForContext(tokens[len(tokens)-1].String(), "expression")
	}
	for len(ops) > 0 {
		top := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		if top.paren {
			return vm.MismatchedParentheses()
		}
		if err := e.apply(top.operator); err != nil {
			return err
		}
	}

	if e.depth-start != 1 {
		return vm.BadExpression("expression must produce exactly one value")
	}
	return nil
}

// operand compiles the operand starting at tokens[i] and returns the number
// of tokens it consumed.
func (e *exprCompiler) operand(tokens []Token, i int) (int, error) {
	tok := tokens[i]
	switch tok.Type {
	case TokenNumber:
		n, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return 0, vm.InvalidTokenForContext(tok.Literal, "expression")
		}
		e.push(vm.Const(vm.Number(n)))
		return 1, nil
	case TokenString:
		e.push(vm.Const(vm.String(vm.Unquote(tok.Literal))))
		return 1, nil
	case TokenTrue:
		e.push(vm.Const(vm.Bool(true)))
		return 1, nil
	case TokenFalse:
		e.push(vm.Const(vm.Bool(false)))
		return 1, nil
	case TokenNull:
		e.push(vm.Const(vm.Null{}))
		return 1, nil

	case TokenAt, TokenDollar:
		if i+1 >= len(tokens) || tokens[i+1].Type != TokenName {
			next := "end of expression"
			if i+1 < len(tokens) {
				next = tokens[i+1].String()
			}
			if tok.Type == TokenAt {
				return 0, vm.BadGlobalName(next)
			}
			return 0, vm.BadVariableName(next)
		}
		load := loadSigil(tok.Type, tokens[i+1].Literal)
		return e.callOrLoad(tokens, i+1, load, 2)

	case TokenName:
		load := vm.Named(vm.OpLoadLocal, tok.Literal)
		if vm.IsBuiltin(tok.Literal) {
			load = vm.Named(vm.OpLoadBuiltin, tok.Literal)
		}
		return e.callOrLoad(tokens, i, load, 1)
	}
	return 0, vm.InvalidTokenForContext(tok.String(), "expression")
}

func loadSigil(sigil TokenType, name string) vm.Instruction {
	if sigil == TokenAt {
		return vm.Named(vm.OpLoadGlobal, name)
	}
	if p, ok := vm.LookupIntrinsic(name); ok {
		return vm.LoadIntrinsic(p)
	}
	return vm.Named(vm.OpLoadBound, name)
}

// callOrLoad emits load for the name at tokens[i], or a call when the name is
// followed by "(". consumed is the length of the operand without arguments,
// including any sigil.
func (e *exprCompiler) callOrLoad(tokens []Token, i int, load vm.Instruction, consumed int) (int, error) {
	if i+1 >= len(tokens) || tokens[i+1].Type != TokenLParen {
		e.push(load)
		return consumed, nil
	}

	args, end, err := splitArguments(tokens, i+1)
	if err != nil {
		return 0, err
	}
	for _, arg := range args {
		if err := e.expression(arg); err != nil {
			return 0, err
		}
	}
	e.push(load)
	e.call(len(args))
	return consumed + end - i, nil
}

// splitArguments splits the parenthesised list opening at tokens[open] on
// top-level commas. It returns the argument token runs and the index of the
// closing ")".
func splitArguments(tokens []Token, open int) ([][]Token, int, error) {
	var (
		args  [][]Token
		cur   []Token
		n     nesting
		comma bool
	)
	for j := open + 1; j < len(tokens); j++ {
		tok := tokens[j]
		if len(n.open) == 0 {
			switch tok.Type {
			case TokenRParen:
				if len(cur) > 0 {
					args = append(args, cur)
				} else if comma {
					return nil, 0, vm.BadExpression("missing argument after `,`")
				}
				return args, j, nil
			case TokenComma:
				if len(cur) == 0 {
					return nil, 0, vm.BadExpression("missing argument before `,`")
				}
				args = append(args, cur)
				cur = nil
				comma = true
				continue
			}
		}
		if isLeftBracket(tok.Type) || isRightBracket(tok.Type) {
			if err := n.track(tok); err != nil {
				return nil, 0, err
			}
		}
		cur = append(cur, tok)
	}
	return nil, 0, vm.MismatchedParentheses()
}

// ---------------------------------------------------------------------------
// Emission with constant folding
// ---------------------------------------------------------------------------

func (e *exprCompiler) push(in vm.Instruction) {
	e.out = append(e.out, in)
	e.depth++
}

func (e *exprCompiler) apply(op operator) error {
	need := 2
	if op.unary {
		need = 1
	}
	if e.depth < need {
		return vm.BadExpression("missing operand for `" + op.op.String() + "`")
	}
	e.depth -= need - 1

	if consts, ok := e.trailingConstants(need); ok {
		var (
			v   vm.Value
			err error
		)
		if op.unary {
			v, err = vm.Unary(op.op, consts[0])
		} else {
			v, err = vm.Binary(op.op, consts[0], consts[1])
		}
		if err == nil {
			e.out = append(e.out[:len(e.out)-need], vm.Const(v))
			return nil
		}
	}
	e.out = append(e.out, vm.Op(op.op))
	return nil
}

// call emits a call of argc arguments to the callee just pushed. Calls to
// pure builtins with constant arguments are evaluated now.
func (e *exprCompiler) call(argc int) {
	e.depth -= argc
	n := len(e.out)
	callee := e.out[n-1]
	if callee.Op == vm.OpLoadBuiltin && vm.IsPureBuiltin(callee.Name) && allConstant(e.out[n-1-argc:n-1]) {
		if v, ok := foldCall(e.out[n-1-argc:], argc); ok {
			e.out = append(e.out[:n-1-argc], vm.Const(v))
			return
		}
	}
	e.out = append(e.out, vm.Call(argc))
}

// trailingConstants returns the operands of the last n instructions when all
// of them are LoadConst.
func (e *exprCompiler) trailingConstants(n int) ([]vm.Value, bool) {
	if len(e.out) < n || !allConstant(e.out[len(e.out)-n:]) {
		return nil, false
	}
	vals := make([]vm.Value, n)
	for k, in := range e.out[len(e.out)-n:] {
		vals[k] = in.Value
	}
	return vals, true
}

func allConstant(code []vm.Instruction) bool {
	for _, in := range code {
		if in.Op != vm.OpLoadConst {
			return false
		}
	}
	return true
}

func foldCall(code []vm.Instruction, argc int) (vm.Value, bool) {
	prog := append(append([]vm.Instruction(nil), code...), vm.Call(argc))
	block, err := vm.NewCodeBlock(prog)
	if err != nil {
		return nil, false
	}
	v, err := block.Evaluate(nil, nil)
	if err != nil {
		return nil, false
	}
	return v, true
}

func withoutNewlines(tokens []Token) []Token {
	for _, t := range tokens {
		if t.Type == TokenNewline {
			out := make([]Token, 0, len(tokens))
			for _, t := range tokens {
				if t.Type != TokenNewline {
					out = append(out, t)
				}
			}
			return out
		}
	}
	return tokens
}
