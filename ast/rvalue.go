package ast

import "fmt"

// RValue is the tagged union of expression forms: Local, Global, Call,
// Table, Literal, Index, Unary, Binary, Closure.
type RValue interface {
	fmt.Stringer
	rvalue()
	ValuesRead() []*Local
	ValuesWritten() []*Local
	HasSideEffects() bool
	// Precedence returns the Lua operator precedence of this expression,
	// used by Binary's own Display to decide whether a child needs
	// parenthesizing. Non-operator expressions report atomPrecedence,
	// which outranks every operator, so they never pick up parens.
	Precedence() int
}

// LValue is the subset of RValue that can appear on the left of an Assign:
// Local, Global, Index.
type LValue interface {
	RValue
	lvalue()
}

// Global is a reference to a Lua global variable by Name.
type Global struct {
	Name string
}

func (g *Global) rvalue()                 {}
func (g *Global) lvalue()                 {}
func (g *Global) String() string          { return g.Name }
func (g *Global) ValuesRead() []*Local    { return nil }
func (g *Global) ValuesWritten() []*Local { return nil }
func (g *Global) HasSideEffects() bool     { return false }
func (g *Global) Precedence() int          { return atomPrecedence }

// Literal wraps a constant nil/bool/number/string value.
type Literal struct {
	// Kind mirrors ir.ConstantKind's values without importing ir, keeping
	// ast free of a dependency on the IR layer: the lifter converts
	// ir.Constant into this shape at translation time.
	Kind LiteralKind
	Bool bool
	Num  float64
	Str  string
}

type LiteralKind int

const (
	LitNil LiteralKind = iota
	LitBool
	LitNumber
	LitString
)

func (l *Literal) rvalue() {}

func (l *Literal) String() string {
	switch l.Kind {
	case LitNil:
		return "nil"
	case LitBool:
		if l.Bool {
			return "true"
		}
		return "false"
	case LitNumber:
		return fmt.Sprintf("%g", l.Num)
	case LitString:
		return fmt.Sprintf("%q", l.Str)
	default:
		return "<invalid literal>"
	}
}

func (l *Literal) ValuesRead() []*Local    { return nil }
func (l *Literal) ValuesWritten() []*Local { return nil }
func (l *Literal) HasSideEffects() bool     { return false }
func (l *Literal) Precedence() int          { return atomPrecedence }

// Index is a table read: Table[Key], or Table.Key when Key is a string
// literal matching a plain Lua identifier (left to the out-of-scope
// pretty-printer to decide; this Display always uses bracket form, which
// is always valid Lua).
type Index struct {
	Table RValue
	Key   RValue
}

func (x *Index) rvalue() {}
func (x *Index) lvalue() {}

func (x *Index) String() string {
	return fmt.Sprintf("%s[%s]", parenthesize(x.Table, x), x.Key)
}

func (x *Index) ValuesRead() []*Local {
	return append(append([]*Local(nil), x.Table.ValuesRead()...), x.Key.ValuesRead()...)
}
func (x *Index) ValuesWritten() []*Local { return nil }
func (x *Index) HasSideEffects() bool {
	return x.Table.HasSideEffects() || x.Key.HasSideEffects()
}
func (x *Index) Precedence() int { return atomPrecedence }

// BinaryOp enumerates Lua 5.1's binary operators at their surface
// precedence, lowest-binding first, matching Lua's reference manual table.
type BinaryOp int

const (
	BinOr BinaryOp = iota
	BinAnd
	BinLessThan
	BinGreaterThan
	BinLessThanOrEqual
	BinGreaterThanOrEqual
	BinNotEqual
	BinEqual
	BinConcat
	BinAdd
	BinSub
	BinMul
	BinDiv
	BinMod
	BinPow
)

// atomPrecedence is the precedence of every non-operator expression (a
// name, literal, index, call or constructor): higher than any operator, so
// atoms never need grouping of their own.
const atomPrecedence = 10

// binaryPrecedence mirrors Lua's operator-precedence table (reference
// manual §3.4.8), used for Display parenthesization.
var binaryPrecedence = map[BinaryOp]int{
	BinOr:                  1,
	BinAnd:                 2,
	BinLessThan:            3,
	BinGreaterThan:         3,
	BinLessThanOrEqual:     3,
	BinGreaterThanOrEqual:  3,
	BinNotEqual:            3,
	BinEqual:               3,
	BinConcat:              4,
	BinAdd:                 5,
	BinSub:                 5,
	BinMul:                 6,
	BinDiv:                 6,
	BinMod:                 6,
	BinPow:                 8,
}

var binaryOpText = map[BinaryOp]string{
	BinOr:                 "or",
	BinAnd:                "and",
	BinLessThan:           "<",
	BinGreaterThan:        ">",
	BinLessThanOrEqual:    "<=",
	BinGreaterThanOrEqual: ">=",
	BinNotEqual:           "~=",
	BinEqual:              "==",
	BinConcat:             "..",
	BinAdd:                "+",
	BinSub:                "-",
	BinMul:                "*",
	BinDiv:                "/",
	BinMod:                "%",
	BinPow:                "^",
}

// Binary is a two-operand expression, including the short-circuit
// and/or forms the restructurer's compound-conditional fold produces.
type Binary struct {
	Op          BinaryOp
	Left, Right RValue
}

func (b *Binary) rvalue() {}

func (b *Binary) Precedence() int { return binaryPrecedence[b.Op] }

func (b *Binary) String() string {
	return fmt.Sprintf("%s %s %s", parenthesize(b.Left, b), binaryOpText[b.Op], parenthesize(b.Right, b))
}

func (b *Binary) ValuesRead() []*Local {
	return append(append([]*Local(nil), b.Left.ValuesRead()...), b.Right.ValuesRead()...)
}
func (b *Binary) ValuesWritten() []*Local { return nil }
func (b *Binary) HasSideEffects() bool {
	return b.Left.HasSideEffects() || b.Right.HasSideEffects()
}

// UnaryOp enumerates Lua 5.1's unary operators.
type UnaryOp int

const (
	UnMinus UnaryOp = iota
	UnNot
	UnLen
)

var unaryOpText = map[UnaryOp]string{
	UnMinus: "-",
	UnNot:   "not ",
	UnLen:   "#",
}

// Unary is a one-operand expression: minus, not, length.
type Unary struct {
	Op      UnaryOp
	Operand RValue
}

func (u *Unary) rvalue() {}

// Precedence gives unary operators Lua's fixed unary precedence (7), which
// binds tighter than every binary operator except exponentiation.
func (u *Unary) Precedence() int { return 7 }

func (u *Unary) String() string {
	return fmt.Sprintf("%s%s", unaryOpText[u.Op], parenthesize(u.Operand, u))
}

func (u *Unary) ValuesRead() []*Local    { return u.Operand.ValuesRead() }
func (u *Unary) ValuesWritten() []*Local { return nil }
func (u *Unary) HasSideEffects() bool     { return u.Operand.HasSideEffects() }

// parenthesize wraps child in parens if its precedence is lower than
// parent's, which is when Lua surface syntax requires explicit grouping to
// preserve the original evaluation order (`(a or b)[k]`, `(-a) ^ b`).
func parenthesize(child RValue, parent RValue) string {
	if child.Precedence() < parent.Precedence() {
		return "(" + child.String() + ")"
	}
	return child.String()
}

// Table is a table constructor. ArrayItems are positional entries;
// KeyedItems are explicit key/value entries (string or expression keys).
type Table struct {
	ArrayItems []RValue
	KeyedItems []TableField
}

// TableField is one `[Key] = Value` or `Name = Value` entry of a Table
// constructor.
type TableField struct {
	Key   RValue
	Value RValue
}

func (t *Table) rvalue() {}

func (t *Table) String() string {
	s := "{"
	first := true
	for _, it := range t.ArrayItems {
		if !first {
			s += ", "
		}
		first = false
		s += it.String()
	}
	for _, f := range t.KeyedItems {
		if !first {
			s += ", "
		}
		first = false
		s += fmt.Sprintf("[%s] = %s", f.Key, f.Value)
	}
	return s + "}"
}

func (t *Table) ValuesRead() []*Local {
	var out []*Local
	for _, it := range t.ArrayItems {
		out = append(out, it.ValuesRead()...)
	}
	for _, f := range t.KeyedItems {
		out = append(out, f.Key.ValuesRead()...)
		out = append(out, f.Value.ValuesRead()...)
	}
	return out
}
func (t *Table) ValuesWritten() []*Local { return nil }
func (t *Table) Precedence() int          { return atomPrecedence }
func (t *Table) HasSideEffects() bool {
	for _, it := range t.ArrayItems {
		if it.HasSideEffects() {
			return true
		}
	}
	for _, f := range t.KeyedItems {
		if f.Key.HasSideEffects() || f.Value.HasSideEffects() {
			return true
		}
	}
	return false
}

// Call is a function call expression: Target(Args...). A Call is also a
// Statement when used for its side effect alone (see statement.go).
type Call struct {
	Target RValue
	Args   []RValue
}

func (c *Call) rvalue() {}

func (c *Call) String() string {
	s := parenthesize(c.Target, c) + "("
	for i, a := range c.Args {
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s + ")"
}

func (c *Call) ValuesRead() []*Local {
	out := append([]*Local(nil), c.Target.ValuesRead()...)
	for _, a := range c.Args {
		out = append(out, a.ValuesRead()...)
	}
	return out
}
func (c *Call) ValuesWritten() []*Local { return nil }
func (c *Call) HasSideEffects() bool     { return true }
func (c *Call) Precedence() int          { return atomPrecedence }

// Closure is a nested function literal capturing Upvalues. Body is left
// opaque here (whatever the restructurer assembled for the nested
// prototype, if anything) since ast deliberately has no dependency on a
// "Function" type of its own — prototype structure belongs to the parser
// and lifter, not this package.
type Closure struct {
	Upvalues []*Local
	Params   []*Local
	IsVararg bool
	Body     *Block
}

func (c *Closure) rvalue() {}

func (c *Closure) String() string {
	s := "function("
	for i, p := range c.Params {
		if i > 0 {
			s += ", "
		}
		s += p.Name()
	}
	if c.IsVararg {
		if len(c.Params) > 0 {
			s += ", "
		}
		s += "..."
	}
	s += ")\n"
	if c.Body != nil {
		s += c.Body.String()
	}
	s += "\nend"
	return s
}

func (c *Closure) ValuesRead() []*Local    { return append([]*Local(nil), c.Upvalues...) }
func (c *Closure) ValuesWritten() []*Local { return nil }
func (c *Closure) HasSideEffects() bool     { return false }
func (c *Closure) Precedence() int          { return atomPrecedence }
