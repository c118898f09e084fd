// Package vm implements the DML runtime.
//
// This package contains:
//   - the closed Value sum type
//   - the instruction set, label resolution and the CodeBlock stack machine
//   - builtin functions and the two-phase behaviour registry
//   - bullets, the bullet arena, factories, the timeline and the System tick loop
package vm
