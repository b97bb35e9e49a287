package ssa

import (
	"luadec/graph"
	"luadec/ir"
)

// Prune runs iterative phi pruning to fixpoint: trivial-phi collapse and
// dead-phi elimination, repeated until a pass makes no change.
//
// Both checks run in the same pass, before any phi is actually removed: a
// phi is first classified (trivial, dead, or kept) using the DefUse state
// as it stood at the start of the pass, then all classified-for-removal
// phis are removed together and substitutions are applied, and DefUse is
// rebuilt before the next pass.
func Prune(f *ir.Function) {
	for {
		du := ir.Build(f)
		substitutions := make(map[ir.ValueId]ir.ValueId)
		var toRemove []phiRef

		for _, n := range f.Blocks() {
			b := f.Block(n)
			for _, p := range b.Phis {
				if u, ok := trivialValue(p); ok {
					if u != p.Dest {
						substitutions[p.Dest] = u
					}
					toRemove = append(toRemove, phiRef{node: n, dest: p.Dest})
					continue
				}
				if isDead(du, p, n) {
					toRemove = append(toRemove, phiRef{node: n, dest: p.Dest})
				}
			}
		}

		if len(toRemove) == 0 && len(substitutions) == 0 {
			return
		}

		removePhis(f, toRemove)
		if len(substitutions) > 0 {
			applySubstitutions(f, substitutions)
		}
	}
}

type phiRef struct {
	node graph.NodeId
	dest ir.ValueId
}

// trivialValue reports whether p's incoming values form a set of size one
// (ignoring self-references to p.Dest, which a phi may carry in a loop
// header before it is recognised as trivial), and if so returns that
// unique value.
func trivialValue(p *ir.Phi) (ir.ValueId, bool) {
	var unique ir.ValueId
	found := false
	for _, v := range p.Incoming {
		if v == p.Dest {
			continue
		}
		if !found {
			unique = v
			found = true
			continue
		}
		if v != unique {
			return 0, false
		}
	}
	if !found {
		// Every incoming value is a self-reference: degenerate, collapses
		// to itself.
		return p.Dest, true
	}
	return unique, true
}

// isDead reports whether p has no reader except (possibly) other phis in
// the same block reading it as a self-reference.
func isDead(du *ir.DefUse, p *ir.Phi, node graph.NodeId) bool {
	for _, loc := range du.Reads(p.Dest) {
		if loc.Kind == ir.LocPhi && loc.Node == node {
			continue
		}
		return false
	}
	return true
}

func removePhis(f *ir.Function, refs []phiRef) {
	byBlock := make(map[graph.NodeId][]phiRef)
	for _, r := range refs {
		byBlock[r.node] = append(byBlock[r.node], r)
	}
	for _, n := range f.Blocks() {
		rs := byBlock[n]
		if len(rs) == 0 {
			continue
		}
		b := f.Block(n)
		remove := make(map[ir.ValueId]bool, len(rs))
		for _, r := range rs {
			remove[r.dest] = true
		}
		kept := b.Phis[:0:0]
		for _, p := range b.Phis {
			if !remove[p.Dest] {
				kept = append(kept, p)
			}
		}
		b.Phis = kept
	}
}

func applySubstitutions(f *ir.Function, subs map[ir.ValueId]ir.ValueId) {
	resolve := func(v ir.ValueId) ir.ValueId {
		for {
			r, ok := subs[v]
			if !ok {
				return v
			}
			v = r
		}
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

func substituteReads(in ir.Inner, resolve func(ir.ValueId) ir.ValueId) {
	switch v := in.(type) {
	case *ir.Move:
		v.Source = resolve(v.Source)
	case *ir.Binary:
		v.Left = resolve(v.Left)
		v.Right = resolve(v.Right)
	case *ir.Unary:
		v.Operand = resolve(v.Operand)
	case *ir.Index:
		v.Table = resolve(v.Table)
		v.Key = resolve(v.Key)
	case *ir.NewIndex:
		v.Table = resolve(v.Table)
		v.Key = resolve(v.Key)
		v.Value = resolve(v.Value)
	case *ir.Self:
		v.Table = resolve(v.Table)
		v.Key = resolve(v.Key)
	case *ir.Call:
		v.Target = resolve(v.Target)
		for i := range v.Args {
			v.Args[i] = resolve(v.Args[i])
		}
	case *ir.Concat:
		for i := range v.Operands {
			v.Operands[i] = resolve(v.Operands[i])
		}
	case *ir.Closure:
		for i := range v.Upvalues {
			v.Upvalues[i] = resolve(v.Upvalues[i])
		}
	case *ir.Close:
		for i := range v.Locals {
			v.Locals[i] = resolve(v.Locals[i])
		}
	case *ir.SetGlobal:
		v.Value = resolve(v.Value)
	case *ir.SetUpvalue:
		v.Value = resolve(v.Value)
	}
}

func substituteTerminatorReads(t ir.Terminator, resolve func(ir.ValueId) ir.ValueId) {
	switch v := t.(type) {
	case *ir.ConditionalJump:
		v.Cond = resolve(v.Cond)
	case *ir.NumericFor:
		v.Init = resolve(v.Init)
		v.Limit = resolve(v.Limit)
		v.Step = resolve(v.Step)
	case *ir.Return:
		for i := range v.Values {
			v.Values[i] = resolve(v.Values[i])
		}
	}
}
