package bytecode

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestIsConstantAndConstantIndex(t *testing.T) {
	cases := []struct {
		reg      int
		isConst  bool
		stripped int
	}{
		{0, false, 0},
		{255, false, 255},
		{constRegFlag, true, 0},
		{constRegFlag | 5, true, 5},
	}
	for _, c := range cases {
		if got := IsConstant(c.reg); got != c.isConst {
			t.Errorf("IsConstant(%d) = %v, want %v", c.reg, got, c.isConst)
		}
		if got := ConstantIndex(c.reg); got != c.stripped {
			t.Errorf("ConstantIndex(%d) = %d, want %d", c.reg, got, c.stripped)
		}
	}
}

// TestDecodeInstructionABCLayout covers the bit-exact field order: opcode
// in the low 6 bits, then A (8 bits), C (9 bits), B (9 bits) — C packed
// below B in the word.
func TestDecodeInstructionABCLayout(t *testing.T) {
	const a, b, c = 5, 10, 20
	word := uint32(OpAdd) | uint32(a)<<6 | uint32(c)<<14 | uint32(b)<<23
	in := decodeInstruction(word)
	if in.Op != OpAdd || in.A != a || in.B != b || in.C != c || in.Layout != LayoutABC {
		t.Fatalf("decodeInstruction(%#x) = %+v, want Op=OpAdd A=%d B=%d C=%d", word, in, a, b, c)
	}
}

func TestDecodeInstructionABxLayout(t *testing.T) {
	const a, bx = 3, 131071
	word := uint32(OpLoadConst) | uint32(a)<<6 | uint32(bx)<<14
	in := decodeInstruction(word)
	if in.Op != OpLoadConst || in.A != a || in.Bx != bx || in.Layout != LayoutABx {
		t.Fatalf("decodeInstruction(%#x) = %+v, want Op=OpLoadConst A=%d Bx=%d", word, in, a, bx)
	}
}

// TestDecodeInstructionAsBxLayout covers the signed Bx field's bias
// (2^17-1): both a positive and a negative offset must round-trip through
// the same bias arithmetic splitBlocks/lualift rely on for jump targets.
func TestDecodeInstructionAsBxLayout(t *testing.T) {
	for _, sbx := range []int{100, -50, 0} {
		word := uint32(OpJump) | uint32(0)<<6 | uint32(sbx+sBxBias)<<14
		in := decodeInstruction(word)
		if in.Op != OpJump || in.SBx != sbx || in.Layout != LayoutAsBx {
			t.Fatalf("decodeInstruction(%#x) = %+v, want Op=OpJump SBx=%d", word, in, sbx)
		}
	}
}

// TestReadChunkParsesMinimalPrototype round-trips a hand-assembled single-
// instruction chunk (empty source name, no constants, no nested
// prototypes, no debug info) through ReadChunk, exercising the
// header-driven int/size_t/number width selection and decodeInstruction
// together the way a real chunk file would.
func TestReadChunkParsesMinimalPrototype(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x1b, 'L', 'u', 'a'})
	buf.Write([]byte{0, 0, 1, 4, 4, 4, 8, 0}) // version,format,LE,intSize,sizeTSize,instrSize,numberSize,integral

	putU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}

	putU32(0)   // source name length (0 => readString short-circuits, no bytes)
	putU32(0)   // LineDefined
	putU32(0)   // LastLineDefined
	buf.WriteByte(0) // nUpvalues
	buf.WriteByte(0) // NumParams
	buf.WriteByte(0) // IsVararg
	buf.WriteByte(2) // MaxStackSize

	putU32(1) // one instruction
	retWord := uint32(OpReturn) | uint32(0)<<6 | uint32(0)<<14 | uint32(1)<<23 // Return A=0,B=1,C=0
	putU32(retWord)

	putU32(0) // no constants
	putU32(0) // no nested prototypes

	putU32(0) // no line-number debug entries
	putU32(0) // no local-variable debug entries
	putU32(0) // no upvalue-name debug entries

	proto, err := ReadChunk(&buf)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if proto.MaxStackSize != 2 {
		t.Fatalf("MaxStackSize = %d, want 2", proto.MaxStackSize)
	}
	if len(proto.Instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(proto.Instructions))
	}
	got := proto.Instructions[0]
	if got.Op != OpReturn || got.A != 0 || got.B != 1 {
		t.Fatalf("unexpected decoded instruction: %+v", got)
	}
	if len(proto.Constants) != 0 || len(proto.Prototypes) != 0 || len(proto.Upvalues) != 0 {
		t.Fatalf("expected no constants/prototypes/upvalues, got %+v", proto)
	}
}

func TestReadChunkRejectsBadSignature(t *testing.T) {
	_, err := ReadChunk(bytes.NewReader([]byte("not a chunk bytes long enough")))
	if err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}
