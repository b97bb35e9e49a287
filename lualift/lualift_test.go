package lualift

import (
	"testing"

	"luadec/bytecode"
	"luadec/ir"
)

func in(op bytecode.OpCode, a, b, c int) bytecode.Instruction {
	return bytecode.Instruction{Op: op, A: a, B: b, C: c}
}

func inBx(op bytecode.OpCode, a, bx int) bytecode.Instruction {
	return bytecode.Instruction{Op: op, A: a, Bx: bx}
}

func inSBx(op bytecode.OpCode, a, sbx int) bytecode.Instruction {
	return bytecode.Instruction{Op: op, A: a, SBx: sbx}
}

func TestSplitBlocksMarksEntryJumpTargetAndPostJumpLeaders(t *testing.T) {
	proto := &bytecode.Prototype{
		Instructions: []bytecode.Instruction{
			in(bytecode.OpGetGlobal, 0, 0, 0), // 0
			inSBx(bytecode.OpJump, 0, 1),      // 1: target = 1+1+1 = 3
			in(bytecode.OpGetGlobal, 0, 0, 0), // 2
			in(bytecode.OpGetGlobal, 0, 0, 0), // 3 (jump target)
			in(bytecode.OpReturn, 0, 1, 0),    // 4
		},
		MaxStackSize: 1,
	}
	l := &lifter{proto: proto, f: ir.NewFunction()}
	l.splitBlocks()
	want := []int{0, 2, 3}
	if len(l.leaders) != len(want) {
		t.Fatalf("leaders = %v, want %v", l.leaders, want)
	}
	for i, w := range want {
		if l.leaders[i] != w {
			t.Fatalf("leaders = %v, want %v", l.leaders, want)
		}
	}
}

// TestLiftFusesComparisonAndJumpIntoConditionalJump covers the Lua 5.1 VM
// convention where a comparison is always immediately followed by the Jump
// that completes it: together they must become one ConditionalJump, not a
// standalone boolean value.
func TestLiftFusesComparisonAndJumpIntoConditionalJump(t *testing.T) {
	proto := &bytecode.Prototype{
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstString, Str: "a"},
			{Kind: bytecode.ConstString, Str: "b"},
		},
		Instructions: []bytecode.Instruction{
			inBx(bytecode.OpGetGlobal, 0, 0),        // 0: reg0 = a
			in(bytecode.OpLessThan, 0, 0, 1),        // 1: reg0 < reg1
			inSBx(bytecode.OpJump, 0, 2),            // 2: else = 2+1+2 = 5
			in(bytecode.OpReturn, 0, 1, 0),           // 3: then
			inBx(bytecode.OpGetGlobal, 0, 1),        // 4: padding in the then block
			in(bytecode.OpReturn, 0, 1, 0),           // 5: else
		},
		MaxStackSize: 2,
	}
	f, err := Lift(proto)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	entry := f.Block(f.Entry)
	if len(entry.Inner) != 2 {
		t.Fatalf("expected [GetGlobal, Binary] in the entry block, got %v", entry.Inner)
	}
	if _, ok := entry.Inner[0].(*ir.GetGlobal); !ok {
		t.Fatalf("expected entry.Inner[0] to be a GetGlobal, got %T", entry.Inner[0])
	}
	bin, ok := entry.Inner[1].(*ir.Binary)
	if !ok {
		t.Fatalf("expected entry.Inner[1] to be a Binary, got %T", entry.Inner[1])
	}
	if bin.Op != ir.OpLessThan {
		t.Fatalf("expected OpLessThan, got %v", bin.Op)
	}
	cj, ok := entry.Terminator.(*ir.ConditionalJump)
	if !ok {
		t.Fatalf("expected a ConditionalJump terminator, got %T", entry.Terminator)
	}
	if cj.Cond != bin.Dest {
		t.Fatalf("expected the ConditionalJump to test the Binary's own Dest, got %v vs %v", cj.Cond, bin.Dest)
	}
	if cj.Then == cj.Else {
		t.Fatalf("then and else must resolve to distinct blocks")
	}
	thenBlock := f.Block(cj.Then)
	elseBlock := f.Block(cj.Else)
	if _, ok := thenBlock.Terminator.(*ir.Return); !ok {
		t.Fatalf("expected the then block to end in Return, got %T", thenBlock.Terminator)
	}
	if _, ok := elseBlock.Terminator.(*ir.Return); !ok {
		t.Fatalf("expected the else block to end in Return, got %T", elseBlock.Terminator)
	}
}

// TestLiftStandaloneComparisonFallsBackToValue covers a comparison NOT
// immediately followed by a Jump: it cannot be fused into a ConditionalJump,
// so it must lower into a Binary that materializes a boolean-ish value in
// its own destination register instead.
func TestLiftStandaloneComparisonFallsBackToValue(t *testing.T) {
	proto := &bytecode.Prototype{
		Instructions: []bytecode.Instruction{
			in(bytecode.OpEqual, 0, 0, 1), // 0: not followed by a Jump
			in(bytecode.OpReturn, 0, 1, 0),
		},
		MaxStackSize: 2,
	}
	f, err := Lift(proto)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	entry := f.Block(f.Entry)
	if len(entry.Inner) != 1 {
		t.Fatalf("expected exactly one Inner instruction, got %v", entry.Inner)
	}
	bin, ok := entry.Inner[0].(*ir.Binary)
	if !ok {
		t.Fatalf("expected a Binary, got %T", entry.Inner[0])
	}
	if bin.Op != ir.OpEqual {
		t.Fatalf("expected OpEqual, got %v", bin.Op)
	}
	// Standalone lowering writes into the comparison's own A register,
	// unlike the fused case which allocates a fresh destination. Lift
	// allocates one ValueId per register up front in order, so register 0
	// is always ValueId 1.
	if bin.Dest != ir.ValueId(1) {
		t.Fatalf("expected Dest to be register A (reg0, ValueId 1), got %v", bin.Dest)
	}
}

func TestLiftTestSetLowersAsMoveGuardedByConditionalJump(t *testing.T) {
	proto := &bytecode.Prototype{
		Instructions: []bytecode.Instruction{
			in(bytecode.OpTestSet, 0, 1, 0), // 0: reg0 <- reg1 if taken
			inSBx(bytecode.OpJump, 0, 1),    // 1: else = 1+1+1 = 3
			in(bytecode.OpReturn, 0, 1, 0),  // 2: then
			in(bytecode.OpReturn, 0, 1, 0),  // 3: else
		},
		MaxStackSize: 2,
	}
	f, err := Lift(proto)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	entry := f.Block(f.Entry)
	if len(entry.Inner) != 1 {
		t.Fatalf("expected a single guarded Move, got %v", entry.Inner)
	}
	mv, ok := entry.Inner[0].(*ir.Move)
	if !ok {
		t.Fatalf("expected a Move, got %T", entry.Inner[0])
	}
	cj, ok := entry.Terminator.(*ir.ConditionalJump)
	if !ok {
		t.Fatalf("expected a ConditionalJump, got %T", entry.Terminator)
	}
	if cj.Cond != mv.Source {
		t.Fatalf("expected the branch to test the Move's own Source (reg B), got cond=%v source=%v", cj.Cond, mv.Source)
	}
}

// TestRkIntoMaterializesConstantOperand covers the RegisterOrConstant
// decoding convention: a high-bit-tagged B/C operand must emit a
// LoadConstant ahead of the instruction that consumes it, while a plain
// register operand emits nothing extra.
func TestRkIntoMaterializesConstantOperand(t *testing.T) {
	const constRegFlag = 1 << 8
	proto := &bytecode.Prototype{
		Constants: []bytecode.Constant{{Kind: bytecode.ConstNumber, Number: 5}},
		Instructions: []bytecode.Instruction{
			in(bytecode.OpAdd, 0, 0, constRegFlag|0), // reg0 = reg0 + Constants[0]
			in(bytecode.OpReturn, 0, 1, 0),
		},
		MaxStackSize: 1,
	}
	f, err := Lift(proto)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	entry := f.Block(f.Entry)
	if len(entry.Inner) != 2 {
		t.Fatalf("expected [LoadConstant, Binary], got %v", entry.Inner)
	}
	lc, ok := entry.Inner[0].(*ir.LoadConstant)
	if !ok {
		t.Fatalf("expected a LoadConstant first, got %T", entry.Inner[0])
	}
	if lc.Value.Kind != ir.ConstNumber || lc.Value.Number != 5 {
		t.Fatalf("unexpected constant: %+v", lc.Value)
	}
	bin, ok := entry.Inner[1].(*ir.Binary)
	if !ok {
		t.Fatalf("expected a Binary second, got %T", entry.Inner[1])
	}
	if bin.Right != lc.Dest {
		t.Fatalf("expected the Binary's Right operand to be the materialized constant, got %v vs %v", bin.Right, lc.Dest)
	}
}

// TestLiftForPrepAndForLoopTerminators covers the numeric-for pair: ForPrep
// is a plain unconditional jump to the loop test, and ForLoop carries the
// full (init, limit, step, body, after) control triple.
func TestLiftForPrepAndForLoopTerminators(t *testing.T) {
	proto := &bytecode.Prototype{
		Instructions: []bytecode.Instruction{
			inSBx(bytecode.OpForPrep, 0, 0), // 0: jump to 0+1+0 = 1
			inSBx(bytecode.OpForLoop, 0, -2), // 1: body = 1+1-2 = 0, after = 2
			in(bytecode.OpReturn, 0, 1, 0),   // 2
		},
		MaxStackSize: 4,
	}
	f, err := Lift(proto)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	entryJump, ok := f.Block(f.Entry).Terminator.(*ir.UnconditionalJump)
	if !ok {
		t.Fatalf("expected ForPrep to lower to an UnconditionalJump, got %T", f.Block(f.Entry).Terminator)
	}
	forLoopBlock := f.Block(entryJump.Target)
	nf, ok := forLoopBlock.Terminator.(*ir.NumericFor)
	if !ok {
		t.Fatalf("expected ForLoop to lower to a NumericFor, got %T", forLoopBlock.Terminator)
	}
	if nf.Body != f.Entry {
		t.Fatalf("expected the loop body to jump back to the ForPrep block, got %v want %v", nf.Body, f.Entry)
	}
	afterBlock := f.Block(nf.After)
	if _, ok := afterBlock.Terminator.(*ir.Return); !ok {
		t.Fatalf("expected the After block to end in Return, got %T", afterBlock.Terminator)
	}
}

// TestLiftTForLoopSynthesizesCallAndConditionalJump covers the generic-for
// iterator protocol: TForLoop itself becomes a Call into the iterator
// function plus a ConditionalJump on whether it returned a non-nil first
// value, reading the following Jump's SBx for the loop-exit target.
func TestLiftTForLoopSynthesizesCallAndConditionalJump(t *testing.T) {
	proto := &bytecode.Prototype{
		Instructions: []bytecode.Instruction{
			in(bytecode.OpTForLoop, 0, 0, 2), // 0
			inSBx(bytecode.OpJump, 0, 1),     // 1: exit = 1+1+1 = 3
			in(bytecode.OpReturn, 0, 1, 0),   // 2: continue (i+2)
			in(bytecode.OpReturn, 0, 1, 0),   // 3: exit
		},
		MaxStackSize: 4,
	}
	f, err := Lift(proto)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	entry := f.Block(f.Entry)
	if len(entry.Inner) != 1 {
		t.Fatalf("expected a single synthesized Call, got %v", entry.Inner)
	}
	call, ok := entry.Inner[0].(*ir.Call)
	if !ok {
		t.Fatalf("expected a Call, got %T", entry.Inner[0])
	}
	if len(call.Dests) != 1 || len(call.Args) != 2 {
		t.Fatalf("expected 1 dest and 2 args, got dests=%v args=%v", call.Dests, call.Args)
	}
	cj, ok := entry.Terminator.(*ir.ConditionalJump)
	if !ok {
		t.Fatalf("expected a ConditionalJump, got %T", entry.Terminator)
	}
	if cj.Cond != call.Dests[0] {
		t.Fatalf("expected the branch to test the synthesized Call's own dest, got %v vs %v", cj.Cond, call.Dests[0])
	}
	if cj.Then == cj.Else {
		t.Fatalf("continue and exit targets must be distinct")
	}
}

func TestLiftReturnMultiReturnVersusFixedCount(t *testing.T) {
	multi := &bytecode.Prototype{
		Instructions: []bytecode.Instruction{in(bytecode.OpReturn, 0, 0, 0)},
		MaxStackSize: 1,
	}
	f, err := Lift(multi)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	ret := f.Block(f.Entry).Terminator.(*ir.Return)
	if ret.Values != nil {
		t.Fatalf("expected B==0 (multi-return) to lower to nil Values, got %v", ret.Values)
	}

	fixed := &bytecode.Prototype{
		Instructions: []bytecode.Instruction{in(bytecode.OpReturn, 0, 3, 0)},
		MaxStackSize: 2,
	}
	f2, err := Lift(fixed)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	ret2 := f2.Block(f2.Entry).Terminator.(*ir.Return)
	if len(ret2.Values) != 2 {
		t.Fatalf("expected B=3 to yield 2 return values, got %v", ret2.Values)
	}
}

func TestLiftTailCallLowersAsCallFeedingReturn(t *testing.T) {
	proto := &bytecode.Prototype{
		Instructions: []bytecode.Instruction{in(bytecode.OpTailCall, 2, 2, 0)},
		MaxStackSize: 4,
	}
	f, err := Lift(proto)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	entry := f.Block(f.Entry)
	if len(entry.Inner) != 1 {
		t.Fatalf("expected a single lowered Call, got %v", entry.Inner)
	}
	call, ok := entry.Inner[0].(*ir.Call)
	if !ok {
		t.Fatalf("expected a Call, got %T", entry.Inner[0])
	}
	if len(call.Args) != 1 || !call.MultiRet {
		t.Fatalf("expected one arg and MultiRet, got %+v", call)
	}
	ret, ok := entry.Terminator.(*ir.Return)
	if !ok {
		t.Fatalf("expected a Return, got %T", entry.Terminator)
	}
	if len(ret.Values) != 1 || ret.Values[0] != call.Dests[0] {
		t.Fatalf("expected the Return to yield the Call's own result, got %v vs %v", ret.Values, call.Dests)
	}
}

func TestLiftSetListFillsArraySlotsAtAbsolutePositions(t *testing.T) {
	proto := &bytecode.Prototype{
		Instructions: []bytecode.Instruction{
			in(bytecode.OpNewTable, 0, 0, 0),
			in(bytecode.OpSetList, 0, 2, 1), // R0[1] = R1; R0[2] = R2
			in(bytecode.OpReturn, 0, 1, 0),
		},
		MaxStackSize: 3,
	}
	f, err := Lift(proto)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	entry := f.Block(f.Entry)
	// NewTable, then (LoadConstant key, NewIndex) per element.
	if len(entry.Inner) != 5 {
		t.Fatalf("expected 5 Inner instructions, got %d: %v", len(entry.Inner), entry.Inner)
	}
	k1, ok := entry.Inner[1].(*ir.LoadConstant)
	if !ok || k1.Value.Kind != ir.ConstNumber || k1.Value.Number != 1 {
		t.Fatalf("expected the first key to be the number 1, got %#v", entry.Inner[1])
	}
	ni, ok := entry.Inner[2].(*ir.NewIndex)
	if !ok || ni.Key != k1.Dest || ni.Table != ir.ValueId(1) || ni.Value != ir.ValueId(2) {
		t.Fatalf("unexpected first NewIndex shape: %#v", entry.Inner[2])
	}
	k2, ok := entry.Inner[3].(*ir.LoadConstant)
	if !ok || k2.Value.Number != 2 {
		t.Fatalf("expected the second key to be the number 2, got %#v", entry.Inner[3])
	}
}

func TestLiftSetListMultiValueBatchEmitsNothing(t *testing.T) {
	proto := &bytecode.Prototype{
		Instructions: []bytecode.Instruction{
			in(bytecode.OpSetList, 0, 0, 1), // B == 0: fill to stack top
			in(bytecode.OpReturn, 0, 1, 0),
		},
		MaxStackSize: 1,
	}
	f, err := Lift(proto)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	if got := len(f.Block(f.Entry).Inner); got != 0 {
		t.Fatalf("expected a runtime-sized SetList batch to lower to nothing, got %d instructions", got)
	}
}

func TestLiftClosureConsumesPseudoInstructions(t *testing.T) {
	nested := &bytecode.Prototype{Upvalues: make([]bytecode.Upvalue, 2)}
	proto := &bytecode.Prototype{
		Prototypes: []*bytecode.Prototype{nested},
		Instructions: []bytecode.Instruction{
			inBx(bytecode.OpClosure, 0, 0),
			in(bytecode.OpMove, 0, 1, 0),       // pseudo: capture register 1
			in(bytecode.OpGetUpvalue, 0, 3, 0), // pseudo: re-capture enclosing upvalue 3
			in(bytecode.OpReturn, 0, 1, 0),
		},
		MaxStackSize: 2,
	}
	f, err := Lift(proto)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	entry := f.Block(f.Entry)
	// The GetUpvalue pseudo-instruction materializes its capture ahead of
	// the Closure; neither pseudo survives as a standalone Move/GetUpvalue
	// of register 0.
	if len(entry.Inner) != 2 {
		t.Fatalf("expected [GetUpvalue, Closure], got %d: %v", len(entry.Inner), entry.Inner)
	}
	gu, ok := entry.Inner[0].(*ir.GetUpvalue)
	if !ok || gu.Index != 3 {
		t.Fatalf("expected a GetUpvalue of slot 3, got %#v", entry.Inner[0])
	}
	cl, ok := entry.Inner[1].(*ir.Closure)
	if !ok {
		t.Fatalf("expected a Closure, got %T", entry.Inner[1])
	}
	if len(cl.Upvalues) != 2 {
		t.Fatalf("expected both captures recorded, got %v", cl.Upvalues)
	}
	if cl.Upvalues[0] != ir.ValueId(2) {
		t.Fatalf("expected the first capture to be register 1's value, got %v", cl.Upvalues[0])
	}
	if cl.Upvalues[1] != gu.Dest {
		t.Fatalf("expected the second capture to be the materialized upvalue read, got %v vs %v", cl.Upvalues[1], gu.Dest)
	}
}

func TestLiftClosureWithOutOfRangeIndexHasNoUpvalues(t *testing.T) {
	proto := &bytecode.Prototype{
		Instructions: []bytecode.Instruction{inBx(bytecode.OpClosure, 0, 5), in(bytecode.OpReturn, 0, 1, 0)},
		MaxStackSize: 1,
	}
	f, err := Lift(proto)
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	cl := f.Block(f.Entry).Inner[0].(*ir.Closure)
	if cl.Upvalues != nil {
		t.Fatalf("expected no upvalues for an out-of-range prototype index, got %v", cl.Upvalues)
	}
}
