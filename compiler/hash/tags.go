package hash

import "github.com/chazu/dml/vm"

// ---------------------------------------------------------------------------
// Frozen tag bytes for the program hashing format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// all previously computed program hashes, and with them every snapshot and
// trace that records one.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing program hashes.
const HashVersion byte = 2

// Structure tags.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	TagProgram   byte = 0x01
	TagFactory   byte = 0x02
	TagTimestamp byte = 0x03
	TagCode      byte = 0x04
	TagInstr     byte = 0x05

	// Reserved 0x06-0x0F
)

// Constant value tags.
const (
	TagNull       byte = 0x10
	TagBool       byte = 0x11
	TagNumber     byte = 0x12
	TagString     byte = 0x13
	TagVector     byte = 0x14
	TagColour     byte = 0x15
	TagList       byte = 0x16
	TagFunction   byte = 0x17
	TagFactoryRef byte = 0x18
	TagStruct     byte = 0x19
	TagOption     byte = 0x1A
	TagOpaque     byte = 0x1B // any other value, by kind and printed form
)

// Opcode tags. The vm's opcode numbering is free to change; these are not.
const (
	TagOpNop   byte = 0x40
	TagOpLabel byte = 0x41

	TagOpLoadConst      byte = 0x42
	TagOpLoadBuiltin    byte = 0x43
	TagOpLoadLocal      byte = 0x44
	TagOpLoadGlobal     byte = 0x45
	TagOpLoadBound      byte = 0x46
	TagOpLoadIntrinsic  byte = 0x47
	TagOpStoreLocal     byte = 0x48
	TagOpStoreGlobal    byte = 0x49
	TagOpStoreBound     byte = 0x4A
	TagOpStoreIntrinsic byte = 0x4B

	TagOpAdd  byte = 0x50
	TagOpSub  byte = 0x51
	TagOpMul  byte = 0x52
	TagOpDiv  byte = 0x53
	TagOpMod  byte = 0x54
	TagOpPow  byte = 0x55
	TagOpNeg  byte = 0x56
	TagOpAbs  byte = 0x57
	TagOpNot  byte = 0x58
	TagOpAnd  byte = 0x59
	TagOpOr   byte = 0x5A
	TagOpEq   byte = 0x5B
	TagOpNeq  byte = 0x5C
	TagOpLt   byte = 0x5D
	TagOpGt   byte = 0x5E
	TagOpLtEq byte = 0x5F
	TagOpGtEq byte = 0x60

	TagOpCall              byte = 0x68
	TagOpJump              byte = 0x69
	TagOpJumpIfFalse       byte = 0x6A
	TagOpJumpIfLessOrEqual byte = 0x6B
	TagOpBehave            byte = 0x6C

	// Reserved 0xFE-0xFF
)

var opTags = map[vm.Opcode]byte{
	vm.OpNop:   TagOpNop,
	vm.OpLabel: TagOpLabel,

	vm.OpLoadConst:      TagOpLoadConst,
	vm.OpLoadBuiltin:    TagOpLoadBuiltin,
	vm.OpLoadLocal:      TagOpLoadLocal,
	vm.OpLoadGlobal:     TagOpLoadGlobal,
	vm.OpLoadBound:      TagOpLoadBound,
	vm.OpLoadIntrinsic:  TagOpLoadIntrinsic,
	vm.OpStoreLocal:     TagOpStoreLocal,
	vm.OpStoreGlobal:    TagOpStoreGlobal,
	vm.OpStoreBound:     TagOpStoreBound,
	vm.OpStoreIntrinsic: TagOpStoreIntrinsic,

	vm.OpAdd:  TagOpAdd,
	vm.OpSub:  TagOpSub,
	vm.OpMul:  TagOpMul,
	vm.OpDiv:  TagOpDiv,
	vm.OpMod:  TagOpMod,
	vm.OpPow:  TagOpPow,
	vm.OpNeg:  TagOpNeg,
	vm.OpAbs:  TagOpAbs,
	vm.OpNot:  TagOpNot,
	vm.OpAnd:  TagOpAnd,
	vm.OpOr:   TagOpOr,
	vm.OpEq:   TagOpEq,
	vm.OpNeq:  TagOpNeq,
	vm.OpLt:   TagOpLt,
	vm.OpGt:   TagOpGt,
	vm.OpLtEq: TagOpLtEq,
	vm.OpGtEq: TagOpGtEq,

	vm.OpCall:              TagOpCall,
	vm.OpJump:              TagOpJump,
	vm.OpJumpIfFalse:       TagOpJumpIfFalse,
	vm.OpJumpIfLessOrEqual: TagOpJumpIfLessOrEqual,
	vm.OpBehave:            TagOpBehave,
}

// Time kind tags, written inside TagTimestamp.
var timeKindTags = map[vm.TimeKind]byte{
	vm.TimeAt:              0x01,
	vm.TimeBefore:          0x02,
	vm.TimeAfter:           0x03,
	vm.TimeFrom:            0x04,
	vm.TimeOutside:         0x05,
	vm.TimeAtIntervals:     0x06,
	vm.TimeDuringIntervals: 0x07,
}

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagProgram, TagFactory, TagTimestamp, TagCode, TagInstr,
	TagNull, TagBool, TagNumber, TagString, TagVector, TagColour, TagList,
	TagFunction, TagFactoryRef, TagStruct, TagOption, TagOpaque,
	TagOpNop, TagOpLabel,
	TagOpLoadConst, TagOpLoadBuiltin, TagOpLoadLocal, TagOpLoadGlobal, TagOpLoadBound,
	TagOpLoadIntrinsic, TagOpStoreLocal, TagOpStoreGlobal, TagOpStoreBound, TagOpStoreIntrinsic,
	TagOpAdd, TagOpSub, TagOpMul, TagOpDiv, TagOpMod, TagOpPow, TagOpNeg, TagOpAbs,
	TagOpNot, TagOpAnd, TagOpOr, TagOpEq, TagOpNeq, TagOpLt, TagOpGt, TagOpLtEq, TagOpGtEq,
	TagOpCall, TagOpJump, TagOpJumpIfFalse, TagOpJumpIfLessOrEqual, TagOpBehave,
}
