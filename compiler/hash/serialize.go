package hash

import (
	"encoding/binary"
	"math"

	"github.com/chazu/dml/vm"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of the frozen hashing program.
//
// Encoding conventions:
//   - First byte: HashVersion (0x02)
//   - Integers: big-endian fixed-width (int64=8B, uint16=2B)
//   - Floats: IEEE 754 big-endian 8B
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Opcodes: their frozen tag byte
//   - Intrinsics: by name
//   - Child nodes: serialized inline (flat)
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of an HNode tree.
// The returned bytes are suitable for hashing with SHA-256.
func Serialize(node HNode) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeNode(node)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeFloat64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeInt(v int) {
	s.writeInt64(int64(v))
}

func (s *serializer) writeFields(fields []HField) {
	s.writeUint32(uint32(len(fields)))
	for _, f := range fields {
		s.writeString(f.Name)
		s.serializeNode(f.Value)
	}
}

func (s *serializer) serializeNode(node HNode) {
	switch n := node.(type) {
	case *HProgram:
		s.writeByte(TagProgram)
		s.serializeNode(n.Global)
		s.writeUint32(uint32(len(n.Factories)))
		for _, f := range n.Factories {
			s.serializeNode(f)
		}
		s.writeUint32(uint32(len(n.Timestamps)))
		for _, ts := range n.Timestamps {
			s.serializeNode(ts)
		}
		s.serializeNode(n.Setup)

	case *HFactory:
		s.writeByte(TagFactory)
		s.writeString(n.Name)
		s.serializeNode(n.Init)
		s.serializeNode(n.Update)

	case *HTimestamp:
		s.writeByte(TagTimestamp)
		s.writeByte(timeKindTags[n.Kind])
		s.writeFloat64(n.Start)
		s.writeFloat64(n.End)
		s.writeFloat64(n.Interval)
		s.serializeNode(n.Code)

	case *HCode:
		s.writeByte(TagCode)
		s.writeUint16(uint16(n.NumLocals))
		s.writeUint16(uint16(n.NumLabels))
		s.writeUint32(uint32(len(n.Instructions)))
		for _, in := range n.Instructions {
			s.serializeNode(in)
		}

	case *HInstr:
		s.serializeInstr(n)

	case *HNull:
		s.writeByte(TagNull)

	case *HBool:
		s.writeByte(TagBool)
		if n.Value {
			s.writeByte(1)
		} else {
			s.writeByte(0)
		}

	case *HNumber:
		s.writeByte(TagNumber)
		s.writeFloat64(n.Value)

	case *HString:
		s.writeByte(TagString)
		s.writeString(n.Value)

	case *HVector:
		s.writeByte(TagVector)
		s.writeFloat64(n.X)
		s.writeFloat64(n.Y)

	case *HColour:
		s.writeByte(TagColour)
		s.writeFloat64(n.R)
		s.writeFloat64(n.G)
		s.writeFloat64(n.B)
		s.writeFloat64(n.A)

	case *HList:
		s.writeByte(TagList)
		s.writeUint32(uint32(len(n.Elements)))
		for _, el := range n.Elements {
			s.serializeNode(el)
		}

	case *HFunction:
		s.writeByte(TagFunction)
		s.writeString(n.Name)

	case *HFactoryRef:
		s.writeByte(TagFactoryRef)
		s.writeString(n.Name)

	case *HStruct:
		s.writeByte(TagStruct)
		s.writeFields(n.Fields)

	case *HOption:
		s.writeByte(TagOption)
		s.writeString(n.Name)
		s.writeFields(n.Fields)

	case *HOpaque:
		s.writeByte(TagOpaque)
		s.writeByte(byte(n.Kind))
		s.writeString(n.Text)
	}
}

func (s *serializer) serializeInstr(n *HInstr) {
	s.writeByte(TagInstr)
	s.writeByte(opTags[n.Op])

	switch n.Op {
	case vm.OpLoadConst:
		s.serializeNode(n.Value)

	case vm.OpLoadLocal, vm.OpStoreLocal, vm.OpLabel,
		vm.OpJump, vm.OpJumpIfFalse, vm.OpJumpIfLessOrEqual:
		s.writeUint16(n.Slot)

	case vm.OpLoadBuiltin, vm.OpLoadGlobal, vm.OpLoadBound, vm.OpStoreGlobal, vm.OpStoreBound:
		s.writeString(n.Name)

	case vm.OpLoadIntrinsic, vm.OpStoreIntrinsic:
		s.writeString(n.Property.String())

	case vm.OpCall:
		s.writeInt(n.Argc)

	case vm.OpBehave:
		s.writeString(n.Name)
		s.writeUint32(uint32(len(n.Params)))
		for _, p := range n.Params {
			s.writeString(p)
		}
	}
}
