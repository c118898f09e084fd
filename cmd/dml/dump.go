package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chazu/dml/compiler/hash"
	"github.com/chazu/dml/vm"
)

// dumpProgram writes a disassembly of prog: global code, each factory in
// name order, then the timeline setup code and timestamps in declared order.
func dumpProgram(w io.Writer, prog *vm.Program) {
	fmt.Fprintf(w, "; program %s\n", hash.Hex(hash.Program(prog)))

	section(w, "global", prog.Global)

	names := make([]string, 0, len(prog.Factories))
	for name := range prog.Factories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := prog.Factories[name]
		section(w, "bullet "+name+" init", f.Init)
		section(w, "bullet "+name+" update", f.Update)
	}

	if prog.Timeline != nil {
		if setup := prog.Timeline.Setup(); setup != nil {
			section(w, "timeline setup", setup)
		}
		for _, ts := range prog.Timeline.Timestamps() {
			section(w, "timeline "+ts.String(), ts.Code)
		}
	}
}

func section(w io.Writer, title string, code *vm.CodeBlock) {
	fmt.Fprintf(w, "\n%s:\n", title)
	if code == nil || code.Len() == 0 {
		fmt.Fprintln(w, "  (empty)")
		return
	}
	for _, line := range strings.Split(strings.TrimRight(code.String(), "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}
