// Package lualift is the mechanical mapping from each Lua 5.1 opcode to
// IR instructions: a switch over bytecode.Instruction producing
// ir.Inner/ir.Terminator values and the ir.Function basic-block structure
// implied by Lua's jump targets.
package lualift

import (
	"luadec/bytecode"
	"luadec/graph"
	"luadec/ir"
)

// Lift translates one Lua 5.1 Prototype into an ir.Function: one ValueId
// per VM register (the pre-SSA "register as value slot" model SSA
// construction's phi insertion later splits), basic blocks split at jump
// targets and after control instructions, and a terminator recovered from
// each block's trailing Jump/Equal-family/Return/ForLoop/ForPrep/TForLoop
// instruction.
func Lift(proto *bytecode.Prototype) (*ir.Function, error) {
	l := &lifter{proto: proto, f: ir.NewFunction()}
	l.f.NumParams = proto.NumParams
	l.f.IsVararg = proto.IsVararg

	l.registers = make([]ir.ValueId, proto.MaxStackSize)
	for i := range l.registers {
		l.registers[i] = l.f.NewValue()
	}

	l.splitBlocks()
	l.buildBlocks()

	if err := l.f.CheckEntry(); err != nil {
		return nil, err
	}
	return l.f, nil
}

type lifter struct {
	proto     *bytecode.Prototype
	f         *ir.Function
	registers []ir.ValueId

	// leaders holds the instruction index of every basic block's first
	// instruction, including 0 (the entry).
	leaders []int
	// blockAt maps a leader instruction index to its NodeId, populated by
	// buildBlocks.
	blockAt map[int]graph.NodeId
}

func (l *lifter) reg(r int) ir.ValueId {
	if r < 0 || r >= len(l.registers) {
		return l.registers[0]
	}
	return l.registers[r]
}

// jumpTarget resolves a Jump/ForLoop/ForPrep's PC-relative sBx operand
// (relative to the instruction immediately after the jump, per the Lua 5.1
// VM's pc += sbx semantics) into an absolute instruction index.
func jumpTarget(idx int, sbx int) int {
	return idx + 1 + sbx
}

// splitBlocks finds every leader instruction index: 0, every jump target,
// and the instruction after any control-transfer instruction.
func (l *lifter) splitBlocks() {
	instrs := l.proto.Instructions
	leaderSet := map[int]bool{0: true}

	isJumpLike := func(op bytecode.OpCode) bool {
		switch op {
		case bytecode.OpJump, bytecode.OpForLoop, bytecode.OpForPrep, bytecode.OpTForLoop:
			return true
		}
		return false
	}
	endsBlock := func(op bytecode.OpCode) bool {
		switch op {
		case bytecode.OpJump, bytecode.OpReturn, bytecode.OpTailCall,
			bytecode.OpForLoop, bytecode.OpForPrep, bytecode.OpTForLoop:
			return true
		}
		return false
	}

	for i, in := range instrs {
		if isJumpLike(in.Op) {
			leaderSet[jumpTarget(i, in.SBx)] = true
		}
		if endsBlock(in.Op) && i+1 < len(instrs) {
			leaderSet[i+1] = true
		}
	}
	// A comparison (Equal/LessThan/LessThanOrEqual/Test/TestSet) is always
	// immediately followed by a Jump forming one conditional terminator;
	// the comparison itself never starts a new block on its own account
	// beyond what the loop above already marked via that Jump's leader set.

	leaders := make([]int, 0, len(leaderSet))
	for idx := range leaderSet {
		leaders = append(leaders, idx)
	}
	// Sort ascending (small N; instruction counts are in the thousands at
	// most for a single prototype).
	for i := 1; i < len(leaders); i++ {
		for j := i; j > 0 && leaders[j-1] > leaders[j]; j-- {
			leaders[j-1], leaders[j] = leaders[j], leaders[j-1]
		}
	}
	l.leaders = leaders
}

func (l *lifter) buildBlocks() {
	l.blockAt = make(map[int]graph.NodeId, len(l.leaders))
	for _, idx := range l.leaders {
		l.blockAt[idx] = l.f.AddBlock()
	}
	if len(l.leaders) > 0 {
		l.f.SetEntry(l.blockAt[l.leaders[0]])
	}

	instrs := l.proto.Instructions
	for li, start := range l.leaders {
		end := len(instrs)
		if li+1 < len(l.leaders) {
			end = l.leaders[li+1]
		}
		node := l.blockAt[start]
		block := l.f.Block(node)

		i := start
		for i < end {
			in := instrs[i]
			switch in.Op {
			case bytecode.OpEqual, bytecode.OpLessThan, bytecode.OpLessThanOrEqual,
				bytecode.OpTest, bytecode.OpTestSet:
				// Paired with the Jump that must follow (Lua 5.1 VM
				// convention): together they form one ConditionalJump.
				if i+1 < end && instrs[i+1].Op == bytecode.OpJump {
					jmp := instrs[i+1]
					cond := l.liftCondition(block, in)
					thenIdx := i + 2
					elseIdx := jumpTarget(i+1, jmp.SBx)
					if jumpOnTrue(in) {
						thenIdx, elseIdx = elseIdx, thenIdx
					}
					block.SetTerminator(&ir.ConditionalJump{
						Cond: cond,
						Then: l.blockFor(thenIdx),
						Else: l.blockFor(elseIdx),
					})
					i = end
					continue
				}
				block.AddInner(l.liftTestAsValue(block, in))
				i++
			case bytecode.OpJump:
				block.SetTerminator(&ir.UnconditionalJump{Target: l.blockFor(jumpTarget(i, in.SBx))})
				i = end
			case bytecode.OpReturn:
				block.SetTerminator(&ir.Return{Values: l.returnValues(in)})
				i = end
			case bytecode.OpTailCall:
				// `return f(...)`: the call still happens, so lower it as an
				// ordinary Call whose single result feeds the Return.
				nargs := in.B - 1
				var args []ir.ValueId
				for k := 0; k < nargs; k++ {
					args = append(args, l.reg(in.A+1+k))
				}
				res := l.f.NewValue()
				block.AddInner(&ir.Call{Dests: []ir.ValueId{res}, Target: l.reg(in.A), Args: args, MultiRet: true})
				block.SetTerminator(&ir.Return{Values: []ir.ValueId{res}})
				i = end
			case bytecode.OpForPrep:
				block.SetTerminator(&ir.UnconditionalJump{Target: l.blockFor(jumpTarget(i, in.SBx))})
				i = end
			case bytecode.OpForLoop:
				block.SetTerminator(&ir.NumericFor{
					Var:   l.reg(in.A + 3),
					Init:  l.reg(in.A),
					Limit: l.reg(in.A + 1),
					Step:  l.reg(in.A + 2),
					Body:  l.blockFor(jumpTarget(i, in.SBx)),
					After: l.blockFor(i + 1),
				})
				i = end
			case bytecode.OpTForLoop:
				cond := l.f.NewValue()
				block.AddInner(&ir.Call{Dests: []ir.ValueId{cond}, Target: l.reg(in.A), Args: []ir.ValueId{l.reg(in.A + 1), l.reg(in.A + 2)}})
				var jmpSBx int
				if i+1 < len(instrs) {
					jmpSBx = instrs[i+1].SBx
				}
				block.SetTerminator(&ir.ConditionalJump{
					Cond: cond,
					Then: l.blockFor(i + 2),
					Else: l.blockFor(jumpTarget(i+1, jmpSBx)),
				})
				i = end
			case bytecode.OpClosure:
				i = l.liftClosure(block, instrs, i, end)
			default:
				if inner := l.liftInner(block, in); inner != nil {
					block.AddInner(inner)
				}
				i++
			}
		}
		// A block cut short by the next leader (a jump target) falls
		// through into it; make that edge explicit so no block is left
		// without a terminator.
		if block.Terminator == nil {
			if end < len(instrs) {
				block.SetTerminator(&ir.UnconditionalJump{Target: l.blockFor(end)})
			} else {
				block.SetTerminator(&ir.Return{})
			}
		}
		l.f.SyncSuccessors(node)
	}
}

// jumpOnTrue reports whether the comparison/test's paired Jump is taken
// when the tested condition holds: A for the comparison family, C for
// Test/TestSet (the Lua 5.1 VM's sense operand). When set, the jump target
// is the then-branch and the fallthrough is the else-branch.
func jumpOnTrue(in bytecode.Instruction) bool {
	switch in.Op {
	case bytecode.OpEqual, bytecode.OpLessThan, bytecode.OpLessThanOrEqual:
		return in.A != 0
	case bytecode.OpTest, bytecode.OpTestSet:
		return in.C != 0
	}
	return false
}

// liftClosure lowers a CLOSURE instruction together with the Move/GetUpvalue
// pseudo-instructions the compiler emits right after it, one per captured
// upvalue. The VM loader consumes those pseudo-instructions instead of
// executing them, so they are skipped here rather than lowered as ordinary
// instructions; a Move names a captured register, a GetUpvalue re-captures
// one of the enclosing function's own upvalues.
func (l *lifter) liftClosure(block *ir.BasicBlock, instrs []bytecode.Instruction, i, end int) int {
	in := instrs[i]
	var proto *bytecode.Prototype
	if in.Bx >= 0 && in.Bx < len(l.proto.Prototypes) {
		proto = l.proto.Prototypes[in.Bx]
	}
	next := i + 1
	var ups []ir.ValueId
	if proto != nil {
		for k := 0; k < len(proto.Upvalues) && next < end; k++ {
			pseudo := instrs[next]
			if pseudo.Op == bytecode.OpMove {
				ups = append(ups, l.reg(pseudo.B))
			} else if pseudo.Op == bytecode.OpGetUpvalue {
				v := l.f.NewValue()
				block.AddInner(&ir.GetUpvalue{Dest: v, Index: pseudo.B})
				ups = append(ups, v)
			} else {
				break
			}
			next++
		}
	}
	block.AddInner(&ir.Closure{Dest: l.reg(in.A), ProtoIndex: in.Bx, Upvalues: ups})
	return next
}

// blockFor returns the NodeId of the block whose leader is idx, falling
// back to allocating a fresh empty block if idx never became a leader
// (defensive: should not happen given splitBlocks' coverage of every
// control-transfer target).
func (l *lifter) blockFor(idx int) graph.NodeId {
	if n, ok := l.blockAt[idx]; ok {
		return n
	}
	n := l.f.AddBlock()
	l.blockAt[idx] = n
	return n
}

// rkInto resolves a RegisterOrConstant operand into a ValueId usable
// immediately, emitting a LoadConstant into block first if the operand was
// a constant-pool index.
func (l *lifter) rkInto(block *ir.BasicBlock, operand int) ir.ValueId {
	if bytecode.IsConstant(operand) {
		idx := bytecode.ConstantIndex(operand)
		v := l.f.NewValue()
		block.AddInner(&ir.LoadConstant{Dest: v, Value: l.liftConstant(idx)})
		return v
	}
	return l.reg(operand)
}

func (l *lifter) liftConstant(idx int) ir.Constant {
	if idx < 0 || idx >= len(l.proto.Constants) {
		return ir.NilConstant()
	}
	c := l.proto.Constants[idx]
	switch c.Kind {
	case bytecode.ConstNil:
		return ir.NilConstant()
	case bytecode.ConstBool:
		return ir.BoolConstant(c.Bool)
	case bytecode.ConstNumber:
		return ir.NumberConstant(c.Number)
	case bytecode.ConstString:
		return ir.StringConstant(c.Str)
	default:
		return ir.NilConstant()
	}
}

// liftCondition emits (where needed) the Binary computing a comparison's
// truth value into block and returns the ValueId a ConditionalJump should
// test. Equal/LessThan/LessThanOrEqual compare two RK operands; Test and
// TestSet test (and, for TestSet, conditionally copy) a single register,
// per the Lua 5.1 VM's "A is the tested/copied register, C is the sense
// the following Jump is taken on" convention.
func (l *lifter) liftCondition(block *ir.BasicBlock, in bytecode.Instruction) ir.ValueId {
	switch in.Op {
	case bytecode.OpEqual:
		dest := l.f.NewValue()
		block.AddInner(&ir.Binary{Dest: dest, Op: ir.OpEqual, Left: l.rkInto(block, in.B), Right: l.rkInto(block, in.C)})
		return dest
	case bytecode.OpLessThan:
		dest := l.f.NewValue()
		block.AddInner(&ir.Binary{Dest: dest, Op: ir.OpLessThan, Left: l.rkInto(block, in.B), Right: l.rkInto(block, in.C)})
		return dest
	case bytecode.OpLessThanOrEqual:
		dest := l.f.NewValue()
		block.AddInner(&ir.Binary{Dest: dest, Op: ir.OpLessThanOrEqual, Left: l.rkInto(block, in.B), Right: l.rkInto(block, in.C)})
		return dest
	case bytecode.OpTest:
		return l.reg(in.A)
	case bytecode.OpTestSet:
		// TestSet lowers as a Move guarded by the ConditionalJump itself,
		// not an AST-level if/assign: SSA construction's phi insertion
		// reconciles the register's value across the branch and
		// fallthrough paths.
		block.AddInner(&ir.Move{Dest: l.reg(in.A), Source: l.reg(in.B)})
		return l.reg(in.B)
	default:
		return l.reg(in.A)
	}
}

// liftTestAsValue lowers a comparison/test instruction that was NOT
// immediately followed by a Jump (so it cannot be folded into a
// ConditionalJump) for whatever reads it downstream: a comparison becomes
// a Binary producing a boolean value, Test a Move of register A onto
// itself, and TestSet a Move of register B into A.
func (l *lifter) liftTestAsValue(block *ir.BasicBlock, in bytecode.Instruction) ir.Inner {
	switch in.Op {
	case bytecode.OpEqual:
		return &ir.Binary{Dest: l.reg(in.A), Op: ir.OpEqual, Left: l.rkInto(block, in.B), Right: l.rkInto(block, in.C)}
	case bytecode.OpLessThan:
		return &ir.Binary{Dest: l.reg(in.A), Op: ir.OpLessThan, Left: l.rkInto(block, in.B), Right: l.rkInto(block, in.C)}
	case bytecode.OpLessThanOrEqual:
		return &ir.Binary{Dest: l.reg(in.A), Op: ir.OpLessThanOrEqual, Left: l.rkInto(block, in.B), Right: l.rkInto(block, in.C)}
	case bytecode.OpTest:
		return &ir.Move{Dest: l.reg(in.A), Source: l.reg(in.A)}
	case bytecode.OpTestSet:
		return &ir.Move{Dest: l.reg(in.A), Source: l.reg(in.B)}
	default:
		return &ir.Move{Dest: l.reg(in.A), Source: l.reg(in.A)}
	}
}

func (l *lifter) returnValues(in bytecode.Instruction) []ir.ValueId {
	if in.B == 0 {
		return nil // multi-return: count determined at runtime, not representable statically here
	}
	n := in.B - 1
	out := make([]ir.ValueId, n)
	for i := 0; i < n; i++ {
		out[i] = l.reg(in.A + i)
	}
	return out
}

// liftInner lowers one non-control-transfer instruction into an ir.Inner,
// materializing any constant-pool (RK) operand into block via rkInto first.
func (l *lifter) liftInner(block *ir.BasicBlock, in bytecode.Instruction) ir.Inner {
	switch in.Op {
	case bytecode.OpMove:
		return &ir.Move{Dest: l.reg(in.A), Source: l.reg(in.B)}
	case bytecode.OpLoadConst:
		return &ir.LoadConstant{Dest: l.reg(in.A), Value: l.liftConstant(in.Bx)}
	case bytecode.OpLoadBool:
		return &ir.LoadConstant{Dest: l.reg(in.A), Value: ir.BoolConstant(in.B != 0)}
	case bytecode.OpLoadNil:
		return &ir.LoadConstant{Dest: l.reg(in.A), Value: ir.NilConstant()}
	case bytecode.OpGetUpvalue:
		return &ir.GetUpvalue{Dest: l.reg(in.A), Index: in.B}
	case bytecode.OpSetUpvalue:
		return &ir.SetUpvalue{Index: in.B, Value: l.reg(in.A)}
	case bytecode.OpGetGlobal:
		return &ir.GetGlobal{Dest: l.reg(in.A), Name: l.constString(in.Bx)}
	case bytecode.OpSetGlobal:
		return &ir.SetGlobal{Name: l.constString(in.Bx), Value: l.reg(in.A)}
	case bytecode.OpIndex:
		return &ir.Index{Dest: l.reg(in.A), Table: l.reg(in.B), Key: l.rkInto(block, in.C)}
	case bytecode.OpNewIndex:
		return &ir.NewIndex{Table: l.reg(in.A), Key: l.rkInto(block, in.B), Value: l.rkInto(block, in.C)}
	case bytecode.OpNewTable:
		return &ir.NewTable{Dest: l.reg(in.A)}
	case bytecode.OpSelf:
		return &ir.Self{Dest: l.reg(in.A), Table: l.reg(in.B), Key: l.rkInto(block, in.C)}
	case bytecode.OpAdd:
		return &ir.Binary{Dest: l.reg(in.A), Op: ir.OpAdd, Left: l.rkInto(block, in.B), Right: l.rkInto(block, in.C)}
	case bytecode.OpSub:
		return &ir.Binary{Dest: l.reg(in.A), Op: ir.OpSub, Left: l.rkInto(block, in.B), Right: l.rkInto(block, in.C)}
	case bytecode.OpMul:
		return &ir.Binary{Dest: l.reg(in.A), Op: ir.OpMul, Left: l.rkInto(block, in.B), Right: l.rkInto(block, in.C)}
	case bytecode.OpDiv:
		return &ir.Binary{Dest: l.reg(in.A), Op: ir.OpDiv, Left: l.rkInto(block, in.B), Right: l.rkInto(block, in.C)}
	case bytecode.OpMod:
		return &ir.Binary{Dest: l.reg(in.A), Op: ir.OpMod, Left: l.rkInto(block, in.B), Right: l.rkInto(block, in.C)}
	case bytecode.OpPow:
		return &ir.Binary{Dest: l.reg(in.A), Op: ir.OpPow, Left: l.rkInto(block, in.B), Right: l.rkInto(block, in.C)}
	case bytecode.OpUnaryMinus:
		return &ir.Unary{Dest: l.reg(in.A), Op: ir.OpMinus, Operand: l.reg(in.B)}
	case bytecode.OpNot:
		return &ir.Unary{Dest: l.reg(in.A), Op: ir.OpNot, Operand: l.reg(in.B)}
	case bytecode.OpLen:
		return &ir.Unary{Dest: l.reg(in.A), Op: ir.OpLen, Operand: l.reg(in.B)}
	case bytecode.OpConcat:
		operands := make([]ir.ValueId, 0, in.C-in.B+1)
		for r := in.B; r <= in.C; r++ {
			operands = append(operands, l.reg(r))
		}
		return &ir.Concat{Dest: l.reg(in.A), Operands: operands}
	case bytecode.OpCall:
		nargs := in.B - 1
		args := make([]ir.ValueId, 0, nargs)
		if nargs >= 0 {
			for r := in.A + 1; r <= in.A+nargs; r++ {
				args = append(args, l.reg(r))
			}
		}
		var dests []ir.ValueId
		if in.C > 0 {
			dests = make([]ir.ValueId, in.C-1)
			for i := range dests {
				dests[i] = l.reg(in.A + i)
			}
		}
		return &ir.Call{Dests: dests, Target: l.reg(in.A), Args: args, MultiRet: in.B == 0 || in.C == 0}
	case bytecode.OpSetList:
		// Table-constructor array-part fill: one NewIndex per element, at
		// the absolute positions the (B, C) pair encodes — C selects which
		// 50-element page (LFIELDS_PER_FLUSH) the batch starts at. B == 0
		// (fill to stack top) leaves the batch size to run time and C == 0
		// keeps the page in the next instruction word, which this lifter
		// does not read; both emit nothing.
		if in.B > 0 && in.C > 0 {
			base := (in.C - 1) * 50
			for k := 1; k <= in.B; k++ {
				key := l.f.NewValue()
				block.AddInner(&ir.LoadConstant{Dest: key, Value: ir.NumberConstant(float64(base + k))})
				block.AddInner(&ir.NewIndex{Table: l.reg(in.A), Key: key, Value: l.reg(in.A + k)})
			}
		}
		return nil
	case bytecode.OpClose:
		return &ir.Close{Locals: []ir.ValueId{l.reg(in.A)}}
	case bytecode.OpVarArg:
		var dests []ir.ValueId
		if in.B > 0 {
			dests = make([]ir.ValueId, in.B-1)
			for i := range dests {
				dests[i] = l.reg(in.A + i)
			}
		}
		return &ir.VarArg{Dests: dests}
	default:
		return nil
	}
}

func (l *lifter) constString(idx int) string {
	if idx < 0 || idx >= len(l.proto.Constants) {
		return ""
	}
	return l.proto.Constants[idx].Str
}
