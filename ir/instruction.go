package ir

import "luadec/graph"

// BinaryOp enumerates the Lua 5.1 binary arithmetic/relational/concat ops
// the bytecode lifter can emit as a Binary instruction.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpConcat
	OpEqual
	OpLessThan
	OpLessThanOrEqual
	OpAnd
	OpOr
)

// UnaryOp enumerates the Lua 5.1 unary ops.
type UnaryOp int

const (
	OpMinus UnaryOp = iota
	OpNot
	OpLen
)

// Phi is an SSA join. It lives only in a block's phi-prefix. The invariant
// that domain(Incoming) == predecessors(block) is enforced by ssa
// construction, not by this type.
type Phi struct {
	Dest     ValueId
	Incoming map[graph.NodeId]ValueId
}

func (p *Phi) ValuesWritten() []ValueId { return []ValueId{p.Dest} }

func (p *Phi) ValuesRead() []ValueId {
	out := make([]ValueId, 0, len(p.Incoming))
	for _, v := range p.Incoming {
		out = append(out, v)
	}
	return out
}

// Inner is a straight-line instruction: one of LoadConstant, Move, Binary,
// Unary, Index, NewIndex, NewTable, Call, Concat, Closure, Close, Self,
// GetGlobal, SetGlobal, GetUpvalue, SetUpvalue, VarArg.
//
// Tagged-union dispatch via type switch, not an open interface hierarchy:
// callers type-switch on the concrete pointer type.
type Inner interface {
	ValuesRead() []ValueId
	ValuesWritten() []ValueId
	HasSideEffects() bool
}

// LoadConstant assigns a Constant to Dest.
type LoadConstant struct {
	Dest  ValueId
	Value Constant
}

func (i *LoadConstant) ValuesRead() []ValueId    { return nil }
func (i *LoadConstant) ValuesWritten() []ValueId { return []ValueId{i.Dest} }
func (i *LoadConstant) HasSideEffects() bool      { return false }

// Move copies Source into Dest. Copy elision removes every surviving Move.
type Move struct {
	Dest   ValueId
	Source ValueId
}

func (i *Move) ValuesRead() []ValueId    { return []ValueId{i.Source} }
func (i *Move) ValuesWritten() []ValueId { return []ValueId{i.Dest} }
func (i *Move) HasSideEffects() bool      { return false }

// Binary is a two-operand arithmetic, relational or logical-fold op.
type Binary struct {
	Dest  ValueId
	Op    BinaryOp
	Left  ValueId
	Right ValueId
}

func (i *Binary) ValuesRead() []ValueId    { return []ValueId{i.Left, i.Right} }
func (i *Binary) ValuesWritten() []ValueId { return []ValueId{i.Dest} }
func (i *Binary) HasSideEffects() bool      { return false }

// Unary is a one-operand op: minus, not, length.
type Unary struct {
	Dest     ValueId
	Op       UnaryOp
	Operand  ValueId
}

func (i *Unary) ValuesRead() []ValueId    { return []ValueId{i.Operand} }
func (i *Unary) ValuesWritten() []ValueId { return []ValueId{i.Dest} }
func (i *Unary) HasSideEffects() bool      { return false }

// Index is a table read: Dest = Table[Key].
type Index struct {
	Dest  ValueId
	Table ValueId
	Key   ValueId
}

func (i *Index) ValuesRead() []ValueId    { return []ValueId{i.Table, i.Key} }
func (i *Index) ValuesWritten() []ValueId { return []ValueId{i.Dest} }
func (i *Index) HasSideEffects() bool      { return false }

// NewIndex is a table write: Table[Key] = Value. It has no Dest; its effect
// is on the table it mutates.
type NewIndex struct {
	Table ValueId
	Key   ValueId
	Value ValueId
}

func (i *NewIndex) ValuesRead() []ValueId    { return []ValueId{i.Table, i.Key, i.Value} }
func (i *NewIndex) ValuesWritten() []ValueId { return nil }
func (i *NewIndex) HasSideEffects() bool      { return true }

// NewTable allocates a fresh empty table.
type NewTable struct {
	Dest ValueId
}

func (i *NewTable) ValuesRead() []ValueId    { return nil }
func (i *NewTable) ValuesWritten() []ValueId { return []ValueId{i.Dest} }
func (i *NewTable) HasSideEffects() bool      { return false }

// Self fetches Table[Key] into Dest and also prepares Table as an implicit
// first argument for a following Call (Lua's `obj:method(...)` sugar).
type Self struct {
	Dest  ValueId
	Table ValueId
	Key   ValueId
}

func (i *Self) ValuesRead() []ValueId    { return []ValueId{i.Table, i.Key} }
func (i *Self) ValuesWritten() []ValueId { return []ValueId{i.Dest} }
func (i *Self) HasSideEffects() bool      { return false }

// Call invokes Target with Args, binding results to Dests. MultiRet marks
// a call whose argument list runs to the top of the stack (a "..." spread
// as the final argument) or whose result count is open.
type Call struct {
	Dests    []ValueId
	Target   ValueId
	Args     []ValueId
	MultiRet bool
}

func (i *Call) ValuesRead() []ValueId {
	out := append([]ValueId{i.Target}, i.Args...)
	return out
}
func (i *Call) ValuesWritten() []ValueId { return i.Dests }
func (i *Call) HasSideEffects() bool      { return true }

// Concat joins Operands with Lua's `..` operator.
type Concat struct {
	Dest     ValueId
	Operands []ValueId
}

func (i *Concat) ValuesRead() []ValueId    { return i.Operands }
func (i *Concat) ValuesWritten() []ValueId { return []ValueId{i.Dest} }
func (i *Concat) HasSideEffects() bool      { return false }

// Closure creates a closure over nested prototype ProtoIndex, capturing
// Upvalues from the enclosing function.
type Closure struct {
	Dest       ValueId
	ProtoIndex int
	Upvalues   []ValueId
}

func (i *Closure) ValuesRead() []ValueId    { return i.Upvalues }
func (i *Closure) ValuesWritten() []ValueId { return []ValueId{i.Dest} }
func (i *Closure) HasSideEffects() bool      { return false }

// Close detaches the given locals from any open upvalues, corresponding to
// Lua's CLOSE instruction. It has no Dest.
type Close struct {
	Locals []ValueId
}

func (i *Close) ValuesRead() []ValueId    { return i.Locals }
func (i *Close) ValuesWritten() []ValueId { return nil }
func (i *Close) HasSideEffects() bool      { return true }

// GetGlobal reads a global variable by Name into Dest.
type GetGlobal struct {
	Dest ValueId
	Name string
}

func (i *GetGlobal) ValuesRead() []ValueId    { return nil }
func (i *GetGlobal) ValuesWritten() []ValueId { return []ValueId{i.Dest} }
func (i *GetGlobal) HasSideEffects() bool      { return false }

// SetGlobal writes Value into the global variable Name.
type SetGlobal struct {
	Name  string
	Value ValueId
}

func (i *SetGlobal) ValuesRead() []ValueId    { return []ValueId{i.Value} }
func (i *SetGlobal) ValuesWritten() []ValueId { return nil }
func (i *SetGlobal) HasSideEffects() bool      { return true }

// GetUpvalue reads upvalue slot Index into Dest.
type GetUpvalue struct {
	Dest  ValueId
	Index int
}

func (i *GetUpvalue) ValuesRead() []ValueId    { return nil }
func (i *GetUpvalue) ValuesWritten() []ValueId { return []ValueId{i.Dest} }
func (i *GetUpvalue) HasSideEffects() bool      { return false }

// SetUpvalue writes Value into upvalue slot Index.
type SetUpvalue struct {
	Index int
	Value ValueId
}

func (i *SetUpvalue) ValuesRead() []ValueId    { return []ValueId{i.Value} }
func (i *SetUpvalue) ValuesWritten() []ValueId { return nil }
func (i *SetUpvalue) HasSideEffects() bool      { return true }

// VarArg binds Lua's `...` operator results to Dests.
type VarArg struct {
	Dests []ValueId
}

func (i *VarArg) ValuesRead() []ValueId    { return nil }
func (i *VarArg) ValuesWritten() []ValueId { return i.Dests }
func (i *VarArg) HasSideEffects() bool      { return false }

// Terminator is the at-most-one, always-last instruction of a block. It
// determines the block's successors; nothing else may.
type Terminator interface {
	ValuesRead() []ValueId
	Successors() []graph.NodeId
}

// UnconditionalJump transfers control to Target unconditionally.
type UnconditionalJump struct {
	Target graph.NodeId
}

func (t *UnconditionalJump) ValuesRead() []ValueId      { return nil }
func (t *UnconditionalJump) Successors() []graph.NodeId { return []graph.NodeId{t.Target} }

// ConditionalJump transfers control to Then if Cond is truthy, else to Else.
type ConditionalJump struct {
	Cond ValueId
	Then graph.NodeId
	Else graph.NodeId
}

func (t *ConditionalJump) ValuesRead() []ValueId { return []ValueId{t.Cond} }
func (t *ConditionalJump) Successors() []graph.NodeId {
	return []graph.NodeId{t.Then, t.Else}
}

// NumericFor represents Lua's numeric for-loop control triple
// (init, limit, step) together with the loop Body and the block to resume
// at, After, once the loop is exhausted.
type NumericFor struct {
	Var       ValueId
	Init      ValueId
	Limit     ValueId
	Step      ValueId
	Body      graph.NodeId
	After     graph.NodeId
}

func (t *NumericFor) ValuesRead() []ValueId { return []ValueId{t.Init, t.Limit, t.Step} }
func (t *NumericFor) Successors() []graph.NodeId {
	return []graph.NodeId{t.Body, t.After}
}

// Return exits the function, yielding Values.
type Return struct {
	Values []ValueId
}

func (t *Return) ValuesRead() []ValueId      { return t.Values }
func (t *Return) Successors() []graph.NodeId { return nil }
