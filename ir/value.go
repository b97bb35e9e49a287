// Package ir defines the typed three-address CFG-IR that sits between the
// bytecode lifter and SSA construction: values, constants, instructions,
// basic blocks, functions and the def-use index.
package ir

import "fmt"

// ValueId identifies an SSA value within one Function. Zero is not a valid
// id; Function.NewValue always allocates starting at 1.
type ValueId uint32

// String renders a value id as a register-style name, so debug dumps and
// recovered source read alike.
func (v ValueId) String() string {
	return fmt.Sprintf("v%d", uint32(v))
}

// ConstantKind tags the variant held by a Constant.
type ConstantKind int

const (
	ConstNil ConstantKind = iota
	ConstBool
	ConstNumber
	ConstString
)

// Constant is the tagged union nil | bool | number | string. Lua 5.1 has a
// single numeric type (an IEEE-754 double); there is no separate integer
// constant kind.
type Constant struct {
	Kind   ConstantKind
	Bool   bool
	Number float64
	Str    string
}

func NilConstant() Constant           { return Constant{Kind: ConstNil} }
func BoolConstant(b bool) Constant    { return Constant{Kind: ConstBool, Bool: b} }
func NumberConstant(n float64) Constant { return Constant{Kind: ConstNumber, Number: n} }
func StringConstant(s string) Constant { return Constant{Kind: ConstString, Str: s} }

func (c Constant) String() string {
	switch c.Kind {
	case ConstNil:
		return "nil"
	case ConstBool:
		if c.Bool {
			return "true"
		}
		return "false"
	case ConstNumber:
		return fmt.Sprintf("%g", c.Number)
	case ConstString:
		return fmt.Sprintf("%q", c.Str)
	default:
		return "<invalid constant>"
	}
}
