// Package compiler turns DML source into a vm.Program: a lexer, a token
// cursor, a shunting-yard expression compiler and the statement compilers for
// global code, bullet declarations and the timeline.
package compiler

import (
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/dml/vm"
)

var log = commonlog.GetLogger("dml.compiler")

// fileCompiler compiles the top level of one script.
type fileCompiler struct {
	u         *unit
	global    *block
	factories map[string]*vm.Factory
	timeline  *vm.Timeline
}

// Compile compiles a whole script.
func Compile(src string) (*vm.Program, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	return CompileTokens(tokens)
}

// CompileFile reads and compiles the script at path.
func CompileFile(path string) (*vm.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	prog, err := Compile(string(src))
	if err != nil {
		return nil, err
	}
	log.Debugf("compiled %s: %d factories", path, len(prog.Factories))
	return prog, nil
}

// CompileTokens compiles an already lexed script.
func CompileTokens(tokens []Token) (*vm.Program, error) {
	u := &unit{}
	fc := &fileCompiler{
		u:         u,
		global:    newBlock(u, blockGlobal),
		factories: make(map[string]*vm.Factory),
	}

	c := NewCursor(tokens)
	for !c.Done() {
		line := c.Line()
		if err := fc.topLevel(c); err != nil {
			return nil, vm.WithLine(err, line)
		}
		if err := c.Advance(1, true, false); err != nil {
			return nil, vm.WithLine(err, line)
		}
	}

	global, err := fc.global.codeBlock()
	if err != nil {
		return nil, err
	}
	tl := fc.timeline
	if tl == nil {
		tl = vm.NewTimeline()
	}
	return &vm.Program{Global: global, Timeline: tl, Factories: fc.factories}, nil
}

func (fc *fileCompiler) topLevel(c *Cursor) error {
	switch c.Current().Type {
	case TokenBullet:
		f, err := fc.bulletDecl(c)
		if err != nil {
			return err
		}
		if _, dup := fc.factories[f.Name]; dup {
			log.Warningf("line %d: bullet @%s redeclared, the later declaration wins", c.Line(), f.Name)
		}
		fc.factories[f.Name] = f
		return nil

	case TokenTimeline:
		if fc.timeline != nil {
			return vm.DuplicateTimeline()
		}
		tl, err := fc.timelineDecl(c)
		if err != nil {
			return err
		}
		fc.timeline = tl
		return nil
	}
	return fc.global.statement(c)
}
