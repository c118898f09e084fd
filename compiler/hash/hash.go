// Package hash computes content hashes of compiled DML programs. Snapshots
// and traces record the hash of the program they were taken from.
package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/dml/vm"
)

// Program computes the SHA-256 content hash of a compiled program.
//
// The hash is computed over a deterministic serialization of the program's
// normalized code, with locals and labels numbered by first use. Two
// programs that differ only in local variable names, comments or layout
// produce the same hash.
func Program(prog *vm.Program) [32]byte {
	return sha256.Sum256(Serialize(NormalizeProgram(prog)))
}

// Code computes the content hash of a single code block.
func Code(c *vm.CodeBlock) [32]byte {
	return sha256.Sum256(Serialize(NormalizeCode(c)))
}

// Hex renders a hash as lowercase hex.
func Hex(sum [32]byte) string {
	return hex.EncodeToString(sum[:])
}
