package luadec

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"luadec/bytecode"
)

// The tests below assemble real Lua 5.1 chunks byte by byte and run them
// through the whole pipeline, asserting on the recovered source text.

func eABC(op bytecode.OpCode, a, b, c int) uint32 {
	return uint32(op) | uint32(a)<<6 | uint32(c)<<14 | uint32(b)<<23
}

func eABx(op bytecode.OpCode, a, bx int) uint32 {
	return uint32(op) | uint32(a)<<6 | uint32(bx)<<14
}

func eAsBx(op bytecode.OpCode, a, sbx int) uint32 {
	return uint32(op) | uint32(a)<<6 | uint32(sbx+(1<<17-1))<<14
}

type konst struct {
	str   string
	num   float64
	isNum bool
}

func kstr(s string) konst  { return konst{str: s} }
func knum(n float64) konst { return konst{num: n, isNum: true} }

// chunk assembles a single-prototype Lua 5.1 chunk: standard little-endian
// header (4-byte int/size_t, 8-byte double), the given code and constant
// pool, no nested prototypes, empty debug section.
func chunk(t *testing.T, maxStack int, code []uint32, consts []konst) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("\x1bLua")
	buf.Write([]byte{0x51, 0, 1, 4, 4, 4, 8, 0})

	writeInt := func(v int) {
		if err := binary.Write(&buf, binary.LittleEndian, uint32(v)); err != nil {
			t.Fatalf("writeInt: %v", err)
		}
	}

	writeInt(0) // source name: empty string
	writeInt(0) // line defined
	writeInt(0) // last line defined
	buf.Write([]byte{0, 0, 0, byte(maxStack)})

	writeInt(len(code))
	for _, w := range code {
		binary.Write(&buf, binary.LittleEndian, w)
	}

	writeInt(len(consts))
	for _, k := range consts {
		if k.isNum {
			buf.WriteByte(3)
			binary.Write(&buf, binary.LittleEndian, math.Float64bits(k.num))
		} else {
			buf.WriteByte(4)
			writeInt(len(k.str) + 1)
			buf.WriteString(k.str)
			buf.WriteByte(0)
		}
	}

	writeInt(0) // nested prototypes
	writeInt(0) // line info
	writeInt(0) // local variables
	writeInt(0) // upvalue names
	return buf.Bytes()
}

func decompileOK(t *testing.T, data []byte) string {
	t.Helper()
	src, diags, err := Decompile(data)
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	return src
}

func TestDecompileBareReturn(t *testing.T) {
	data := chunk(t, 2, []uint32{eABC(bytecode.OpReturn, 0, 1, 0)}, nil)
	if got := decompileOK(t, data); got != "return" {
		t.Fatalf("got %q, want %q", got, "return")
	}
}

func TestDecompileLocalAssignAndReturn(t *testing.T) {
	// local x = 1; return x
	data := chunk(t, 2, []uint32{
		eABx(bytecode.OpLoadConst, 0, 0),
		eABC(bytecode.OpReturn, 0, 2, 0),
	}, []konst{knum(1)})
	want := "v1 = 1\nreturn v1"
	if got := decompileOK(t, data); got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestDecompileIfThen(t *testing.T) {
	// if a then b() end
	data := chunk(t, 1, []uint32{
		eABx(bytecode.OpGetGlobal, 0, 0), // 0: r0 = a
		eABC(bytecode.OpTest, 0, 0, 0),   // 1
		eAsBx(bytecode.OpJump, 0, 2),     // 2: -> 5 when a is false
		eABx(bytecode.OpGetGlobal, 0, 1), // 3: r0 = b
		eABC(bytecode.OpCall, 0, 1, 1),   // 4: b()
		eABC(bytecode.OpReturn, 0, 1, 0), // 5
	}, []konst{kstr("a"), kstr("b")})
	got := decompileOK(t, data)
	want := "v2 = a\nif v2 then\n  v3 = b\n  v3()\nend\nreturn"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
	if strings.Contains(got, "goto") || strings.Contains(got, "::") {
		t.Fatalf("a structured if must not fall back to goto/label:\n%s", got)
	}
}

func TestDecompileWhileLoop(t *testing.T) {
	// while a do b() end
	data := chunk(t, 1, []uint32{
		eABx(bytecode.OpGetGlobal, 0, 0), // 0: r0 = a
		eABC(bytecode.OpTest, 0, 0, 0),   // 1
		eAsBx(bytecode.OpJump, 0, 3),     // 2: -> 6 when a is false
		eABx(bytecode.OpGetGlobal, 0, 1), // 3: r0 = b
		eABC(bytecode.OpCall, 0, 1, 1),   // 4: b()
		eAsBx(bytecode.OpJump, 0, -6),    // 5: -> 0
		eABC(bytecode.OpReturn, 0, 1, 0), // 6
	}, []konst{kstr("a"), kstr("b")})
	got := decompileOK(t, data)
	want := strings.Join([]string{
		"while true do",
		"  v2 = a",
		"  if v2 then",
		"    v3 = b",
		"    v3()",
		"  else",
		"    break",
		"  end",
		"end",
		"return",
	}, "\n")
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestDecompileShortCircuitAnd(t *testing.T) {
	// if a and b then c() end
	data := chunk(t, 1, []uint32{
		eABx(bytecode.OpGetGlobal, 0, 0), // 0: r0 = a
		eABC(bytecode.OpTest, 0, 0, 0),   // 1
		eAsBx(bytecode.OpJump, 0, 5),     // 2: -> 8 when a is false
		eABx(bytecode.OpGetGlobal, 0, 1), // 3: r0 = b
		eABC(bytecode.OpTest, 0, 0, 0),   // 4
		eAsBx(bytecode.OpJump, 0, 2),     // 5: -> 8 when b is false
		eABx(bytecode.OpGetGlobal, 0, 2), // 6: r0 = c
		eABC(bytecode.OpCall, 0, 1, 1),   // 7: c()
		eABC(bytecode.OpReturn, 0, 1, 0), // 8
	}, []konst{kstr("a"), kstr("b"), kstr("c")})
	got := decompileOK(t, data)
	want := "v2 = a\nif v2 and b then\n  v4 = c\n  v4()\nend\nreturn"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
	if strings.Count(got, "if ") != 1 {
		t.Fatalf("short-circuit must fold into a single if:\n%s", got)
	}
}

func TestDecompileDeterministic(t *testing.T) {
	data := chunk(t, 1, []uint32{
		eABx(bytecode.OpGetGlobal, 0, 0),
		eABC(bytecode.OpTest, 0, 0, 0),
		eAsBx(bytecode.OpJump, 0, 3),
		eABx(bytecode.OpGetGlobal, 0, 1),
		eABC(bytecode.OpCall, 0, 1, 1),
		eAsBx(bytecode.OpJump, 0, -6),
		eABC(bytecode.OpReturn, 0, 1, 0),
	}, []konst{kstr("a"), kstr("b")})

	first, _, err := Decompile(data)
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _, err := Decompile(data)
		if err != nil {
			t.Fatalf("Decompile (run %d): %v", i+2, err)
		}
		if again != first {
			t.Fatalf("output differs between runs:\n%s\n----\n%s", first, again)
		}
	}
}

func TestDecompileRejectsBadSignature(t *testing.T) {
	if _, _, err := Decompile([]byte("not a lua chunk")); err == nil {
		t.Fatalf("expected an error for a non-chunk input")
	}
}
