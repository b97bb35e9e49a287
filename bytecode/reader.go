package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

func float64frombits(b uint64) float64 { return math.Float64frombits(b) }
func float32frombits(b uint32) float32 { return math.Float32frombits(b) }

// ErrBadSignature is returned when the input does not start with Lua's
// 4-byte "\x1bLua" signature.
var ErrBadSignature = errors.New("bytecode: bad signature")

// header mirrors the fixed-size portion of a Lua 5.1 chunk header. Byte
// order, int size, size_t size and number representation are all taken
// at face value from the header itself rather than assumed. The version
// and format bytes are not checked, and instructions are always read as
// 4-byte words whatever instrSize says.
type header struct {
	littleEndian  bool
	intSize       int
	sizeTSize     int
	instrSize     int
	numberSize    int
	integralFlag  bool
}

// ReadChunk parses a Lua 5.1 bytecode chunk from r and returns its root
// Prototype.
func ReadChunk(r io.Reader) (*Prototype, error) {
	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return nil, fmt.Errorf("bytecode: reading signature: %w", err)
	}
	if sig != [4]byte{0x1b, 'L', 'u', 'a'} {
		return nil, ErrBadSignature
	}

	var rest [8]byte
	if _, err := io.ReadFull(r, rest[:]); err != nil {
		return nil, fmt.Errorf("bytecode: reading header: %w", err)
	}
	// rest: version, format, endianness, sizeof(int), sizeof(size_t),
	// sizeof(Instruction), sizeof(lua_Number), integral flag.
	h := header{
		littleEndian: rest[2] != 0,
		intSize:      int(rest[3]),
		sizeTSize:    int(rest[4]),
		instrSize:    int(rest[5]),
		numberSize:   int(rest[6]),
		integralFlag: rest[7] != 0,
	}

	cr := &chunkReader{r: r, h: h}
	proto, err := cr.readPrototype()
	if err != nil {
		return nil, fmt.Errorf("bytecode: %w", err)
	}
	return proto, nil
}

type chunkReader struct {
	r io.Reader
	h header
}

func (c *chunkReader) order() binary.ByteOrder {
	if c.h.littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (c *chunkReader) readUint32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(c.r, buf[:]); err != nil {
		return 0, err
	}
	return c.order().Uint32(buf[:]), nil
}

func (c *chunkReader) readInt() (int, error) {
	switch c.h.intSize {
	case 4:
		v, err := c.readUint32()
		return int(int32(v)), err
	case 8:
		var buf [8]byte
		if _, err := io.ReadFull(c.r, buf[:]); err != nil {
			return 0, err
		}
		return int(int64(c.order().Uint64(buf[:]))), nil
	default:
		return 0, fmt.Errorf("unsupported int size %d", c.h.intSize)
	}
}

func (c *chunkReader) readSizeT() (int, error) {
	switch c.h.sizeTSize {
	case 4:
		v, err := c.readUint32()
		return int(v), err
	case 8:
		var buf [8]byte
		if _, err := io.ReadFull(c.r, buf[:]); err != nil {
			return 0, err
		}
		return int(c.order().Uint64(buf[:])), nil
	default:
		return 0, fmt.Errorf("unsupported size_t size %d", c.h.sizeTSize)
	}
}

func (c *chunkReader) readNumber() (float64, error) {
	switch c.h.numberSize {
	case 8:
		var buf [8]byte
		if _, err := io.ReadFull(c.r, buf[:]); err != nil {
			return 0, err
		}
		bits := c.order().Uint64(buf[:])
		if c.h.integralFlag {
			return float64(int64(bits)), nil
		}
		return float64frombits(bits), nil
	case 4:
		var buf [4]byte
		if _, err := io.ReadFull(c.r, buf[:]); err != nil {
			return 0, err
		}
		bits := c.order().Uint32(buf[:])
		if c.h.integralFlag {
			return float64(int32(bits)), nil
		}
		return float64(float32frombits(bits)), nil
	default:
		return 0, fmt.Errorf("unsupported number size %d", c.h.numberSize)
	}
}

func (c *chunkReader) readString() (string, error) {
	n, err := c.readSizeT()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return "", err
	}
	// Lua strings are NUL-terminated on disk; drop the trailing NUL.
	if len(buf) > 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf), nil
}

func (c *chunkReader) readByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *chunkReader) readPrototype() (*Prototype, error) {
	p := &Prototype{}

	src, err := c.readString()
	if err != nil {
		return nil, fmt.Errorf("reading source name: %w", err)
	}
	p.Source = src

	if p.LineDefined, err = c.readInt(); err != nil {
		return nil, err
	}
	if p.LastLineDefined, err = c.readInt(); err != nil {
		return nil, err
	}

	nUpvalues, err := c.readByte()
	if err != nil {
		return nil, err
	}
	numParams, err := c.readByte()
	if err != nil {
		return nil, err
	}
	p.NumParams = int(numParams)
	isVararg, err := c.readByte()
	if err != nil {
		return nil, err
	}
	p.IsVararg = isVararg != 0
	maxStack, err := c.readByte()
	if err != nil {
		return nil, err
	}
	p.MaxStackSize = int(maxStack)

	if err := c.readInstructions(p); err != nil {
		return nil, err
	}
	if err := c.readConstants(p); err != nil {
		return nil, err
	}
	if err := c.readNestedPrototypes(p); err != nil {
		return nil, err
	}
	if err := c.skipDebugInfo(); err != nil {
		return nil, err
	}

	p.Upvalues = make([]Upvalue, nUpvalues)
	for i := range p.Upvalues {
		p.Upvalues[i] = Upvalue{}
	}
	return p, nil
}

func (c *chunkReader) readInstructions(p *Prototype) error {
	n, err := c.readInt()
	if err != nil {
		return fmt.Errorf("reading instruction count: %w", err)
	}
	p.Instructions = make([]Instruction, n)
	for i := 0; i < n; i++ {
		word, err := c.readUint32()
		if err != nil {
			return fmt.Errorf("reading instruction %d: %w", i, err)
		}
		p.Instructions[i] = decodeInstruction(word)
	}
	return nil
}

// decodeInstruction unpacks one 32-bit instruction word: low 6 bits
// opcode, then one of ABC (A:8,B:9,C:9), ABx (A:8,Bx:18), AsBx (A:8,
// sBx:18 biased by 2^17-1), in the Lua 5.1 VM's field-packing order
// (opcode, A, C, B — C below B in the word).
func decodeInstruction(word uint32) Instruction {
	op := OpCode(word & 0x3f)
	a := int((word >> 6) & 0xff)
	in := Instruction{Op: op, A: a, Layout: opLayout[op]}
	switch in.Layout {
	case LayoutABC:
		in.C = int((word >> 14) & 0x1ff)
		in.B = int((word >> 23) & 0x1ff)
	case LayoutABx:
		in.Bx = int((word >> 14) & 0x3ffff)
	case LayoutAsBx:
		in.SBx = int((word>>14)&0x3ffff) - sBxBias
	}
	return in
}

func (c *chunkReader) readConstants(p *Prototype) error {
	n, err := c.readInt()
	if err != nil {
		return fmt.Errorf("reading constant count: %w", err)
	}
	p.Constants = make([]Constant, n)
	for i := 0; i < n; i++ {
		tag, err := c.readByte()
		if err != nil {
			return fmt.Errorf("reading constant %d tag: %w", i, err)
		}
		switch tag {
		case 0: // LUA_TNIL
			p.Constants[i] = Constant{Kind: ConstNil}
		case 1: // LUA_TBOOLEAN
			b, err := c.readByte()
			if err != nil {
				return err
			}
			p.Constants[i] = Constant{Kind: ConstBool, Bool: b != 0}
		case 3: // LUA_TNUMBER
			num, err := c.readNumber()
			if err != nil {
				return fmt.Errorf("reading constant %d number: %w", i, err)
			}
			p.Constants[i] = Constant{Kind: ConstNumber, Number: num}
		case 4: // LUA_TSTRING
			s, err := c.readString()
			if err != nil {
				return fmt.Errorf("reading constant %d string: %w", i, err)
			}
			p.Constants[i] = Constant{Kind: ConstString, Str: s}
		default:
			return fmt.Errorf("unsupported constant tag %d", tag)
		}
	}
	return nil
}

func (c *chunkReader) readNestedPrototypes(p *Prototype) error {
	n, err := c.readInt()
	if err != nil {
		return fmt.Errorf("reading nested prototype count: %w", err)
	}
	p.Prototypes = make([]*Prototype, n)
	for i := 0; i < n; i++ {
		nested, err := c.readPrototype()
		if err != nil {
			return fmt.Errorf("reading nested prototype %d: %w", i, err)
		}
		p.Prototypes[i] = nested
	}
	return nil
}

// skipDebugInfo consumes the optional line-number/local-variable/upvalue
// debug section. Original local names are not recovered, so this
// information is read only far enough to stay positioned correctly for any
// sibling prototype that follows, never retained.
func (c *chunkReader) skipDebugInfo() error {
	nLines, err := c.readInt()
	if err != nil {
		return err
	}
	for i := 0; i < nLines; i++ {
		if _, err := c.readInt(); err != nil {
			return err
		}
	}

	nLocals, err := c.readInt()
	if err != nil {
		return err
	}
	for i := 0; i < nLocals; i++ {
		if _, err := c.readString(); err != nil {
			return err
		}
		if _, err := c.readInt(); err != nil {
			return err
		}
		if _, err := c.readInt(); err != nil {
			return err
		}
	}

	nUpvalNames, err := c.readInt()
	if err != nil {
		return err
	}
	for i := 0; i < nUpvalNames; i++ {
		if _, err := c.readString(); err != nil {
			return err
		}
	}
	return nil
}
