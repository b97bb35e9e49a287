// Package ast is the high-level Lua AST the restructurer produces and a
// pretty-printer consumes: statements and expressions as tagged unions
// with uniform values-read/values-written/side-effect/traversal
// capabilities, plus String methods that reconstruct Lua surface syntax
// directly. The unions are closed: concrete pointer types behind an
// unexported marker method, dispatched with type switches, not an open
// virtual hierarchy.
package ast

import "fmt"

// Local is a shared, identity-comparable handle: one Local may be
// referenced from many statements, and two Locals are the same variable
// iff they are the same pointer. The display name is fixed at creation and
// never mutated afterward.
type Local struct {
	name string
}

// NewLocal allocates a fresh Local with the given display name.
func NewLocal(name string) *Local {
	return &Local{name: name}
}

// Name returns the Local's immutable display name.
func (l *Local) Name() string { return l.name }

func (l *Local) String() string { return l.name }

func (l *Local) rvalue() {}
func (l *Local) lvalue() {}

// ValuesRead/ValuesWritten give Local's behavior as an RValue: reading the
// expression `x` reads the local and writes nothing. When a Local appears
// as an LValue (an Assign target), Assign special-cases it instead of
// calling these methods — the one place the two interfaces disagree for
// this variant.
func (l *Local) ValuesRead() []*Local    { return []*Local{l} }
func (l *Local) ValuesWritten() []*Local { return nil }
func (l *Local) HasSideEffects() bool     { return false }
func (l *Local) Precedence() int          { return atomPrecedence }

var _ fmt.Stringer = (*Local)(nil)
var _ RValue = (*Local)(nil)
var _ LValue = (*Local)(nil)
