package ssa

import "luadec/ir"

// ElideCopies removes every Move instruction, block by block, processing
// each block's inner instructions in reverse order: for Move{dest, source},
// every existing read of dest is replaced by source and the Move is
// deleted. Reverse order matters because a later Move's source may itself
// be the dest of an earlier Move in the same block; processing in reverse
// means by the time an earlier Move is elided, every read that could have
// referenced its dest (including ones introduced by a later Move's own
// elision) has already been rewritten.
//
// Elision preserves SSA: each value is still written exactly once, it is
// just no longer written by a Move.
func ElideCopies(f *ir.Function) {
	for _, n := range f.Blocks() {
		b := f.Block(n)
		kept := make([]ir.Inner, 0, len(b.Inner))
		var moves []*ir.Move
		for i := len(b.Inner) - 1; i >= 0; i-- {
			if mv, ok := b.Inner[i].(*ir.Move); ok {
				moves = append(moves, mv)
				continue
			}
			kept = append(kept, b.Inner[i])
		}
		for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
			kept[i], kept[j] = kept[j], kept[i]
		}
		b.Inner = kept

		for _, mv := range moves {
			substituteFunctionReads(f, mv.Dest, mv.Source)
		}
	}
}

// substituteFunctionReads rewrites every read of from (in any block's phis,
// inner instructions or terminator) to to. Used by copy elision, which
// needs a function-wide rewrite since a Move's dest may be read from a
// successor block (including across a phi) even though the Move itself
// lives in one block.
func substituteFunctionReads(f *ir.Function, from, to ir.ValueId) {
	resolve := func(v ir.ValueId) ir.ValueId {
		if v == from {
			return to
		}
		return v
	}
	for _, n := range f.Blocks() {
		b := f.Block(n)
		for _, p := range b.Phis {
			for pred, v := range p.Incoming {
				p.Incoming[pred] = resolve(v)
			}
		}
		for _, in := range b.Inner {
			substituteReads(in, resolve)
		}
		if b.Terminator != nil {
			substituteTerminatorReads(b.Terminator, resolve)
		}
	}
}
