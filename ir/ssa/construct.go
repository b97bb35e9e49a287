// Package ssa converts a CFG-IR Function into SSA form: phi placement,
// dominator-tree-walk renaming, iterative phi pruning, copy elision, and
// upvalue-origin tracking across renaming.
package ssa

import (
	"sort"

	"luadec/graph"
	"luadec/ir"
)

// Construct builds SSA form in place over f: phi insertion followed by
// renaming. It does not prune or elide copies; call Prune and ElideCopies
// separately.
//
// Construct fails only with ir.ErrNoEntry or a graph error. Malformed phi
// predecessor sets are a programmer bug in this package, not a recoverable
// error.
func Construct(f *ir.Function) error {
	_, err := ConstructTrackingOrigins(f)
	return err
}

// ConstructTrackingOrigins is Construct, additionally returning the
// new-value -> original-pre-SSA-value map that the upvalues analysis needs:
// two post-rename locals are the same upvalue exactly when they trace back
// to the same pre-SSA ValueId.
func ConstructTrackingOrigins(f *ir.Function) (map[ir.ValueId]ir.ValueId, error) {
	if err := f.CheckEntry(); err != nil {
		return nil, err
	}
	idom, err := graph.ImmediateDominators(f.Graph, f.Entry)
	if err != nil {
		return nil, err
	}
	df, err := graph.DominanceFrontiers(f.Graph, f.Entry, idom)
	if err != nil {
		return nil, err
	}
	domTree, err := graph.DominatorTree(f.Graph, idom)
	if err != nil {
		return nil, err
	}

	insertPhis(f, df, liveIn(f))
	origins := make(map[ir.ValueId]ir.ValueId)
	renameValuesTrackingOrigins(f, domTree, origins)
	return origins, nil
}

// liveIn computes, per block, the set of values live on entry: read in the
// block before any write, or live out of it without an intervening write.
// Phi insertion is restricted to live-in values (pruned SSA), which is what
// makes Construct a no-op on input that is already in SSA form — a value
// defined once and consumed where its definition dominates never gains a
// phi it would only need pruning to lose again.
func liveIn(f *ir.Function) map[graph.NodeId]map[ir.ValueId]struct{} {
	gen := make(map[graph.NodeId]map[ir.ValueId]struct{})
	kill := make(map[graph.NodeId]map[ir.ValueId]struct{})
	for _, n := range f.Blocks() {
		b := f.Block(n)
		g := make(map[ir.ValueId]struct{})
		k := make(map[ir.ValueId]struct{})
		for _, p := range b.Phis {
			k[p.Dest] = struct{}{}
		}
		for _, in := range b.Inner {
			for _, r := range in.ValuesRead() {
				if _, written := k[r]; !written {
					g[r] = struct{}{}
				}
			}
			for _, w := range in.ValuesWritten() {
				k[w] = struct{}{}
			}
		}
		if b.Terminator != nil {
			for _, r := range b.Terminator.ValuesRead() {
				if _, written := k[r]; !written {
					g[r] = struct{}{}
				}
			}
		}
		gen[n], kill[n] = g, k
	}

	in := make(map[graph.NodeId]map[ir.ValueId]struct{})
	for _, n := range f.Blocks() {
		in[n] = make(map[ir.ValueId]struct{})
		for v := range gen[n] {
			in[n][v] = struct{}{}
		}
	}
	changed := true
	for changed {
		changed = false
		for _, n := range f.Blocks() {
			// liveOut(n) = union over successors s of liveIn(s), plus any
			// value a successor phi selects for the n edge.
			for _, s := range f.Graph.Successors(n) {
				for v := range in[s] {
					if _, killed := kill[n][v]; killed {
						continue
					}
					if _, ok := in[n][v]; !ok {
						in[n][v] = struct{}{}
						changed = true
					}
				}
				for _, p := range f.Block(s).Phis {
					if v, ok := p.Incoming[n]; ok {
						if _, killed := kill[n][v]; killed {
							continue
						}
						if _, present := in[n][v]; !present {
							in[n][v] = struct{}{}
							changed = true
						}
					}
				}
			}
		}
	}
	return in
}

// writtenIn returns, for every block, the set of original (pre-SSA) values
// written by some instruction in that block. Terminators never write
// values in this IR, so only phis and inner instructions are scanned; at
// construction time there are no phis yet, so only inner instructions
// matter, but the phi scan keeps the pass safe to re-run on a function
// that is already partially in SSA form.
func writtenIn(f *ir.Function) map[graph.NodeId]map[ir.ValueId]struct{} {
	out := make(map[graph.NodeId]map[ir.ValueId]struct{})
	for _, n := range f.Blocks() {
		b := f.Block(n)
		set := make(map[ir.ValueId]struct{})
		for _, p := range b.Phis {
			set[p.Dest] = struct{}{}
		}
		for _, in := range b.Inner {
			for _, w := range in.ValuesWritten() {
				set[w] = struct{}{}
			}
		}
		if len(set) > 0 {
			out[n] = set
		}
	}
	return out
}

// insertPhis implements the Cytron worklist algorithm: seed with every
// (value, block) pair where the block writes that value, then for each
// dominance-frontier block lacking a phi for that value, insert one and
// push the frontier block onto the worklist if it hadn't already written
// that value. A phi is only placed where the value is live in (see liveIn).
func insertPhis(f *ir.Function, df map[graph.NodeId]map[graph.NodeId]struct{}, live map[graph.NodeId]map[ir.ValueId]struct{}) {
	written := writtenIn(f)

	type pair struct {
		v ir.ValueId
		b graph.NodeId
	}
	var worklist []pair
	seen := make(map[pair]bool)
	hasPhiFor := make(map[graph.NodeId]map[ir.ValueId]bool)

	push := func(p pair) {
		if !seen[p] {
			seen[p] = true
			worklist = append(worklist, p)
		}
	}
	// Seed and drain in deterministic order (block insertion order, value id
	// order): the order phis are inserted fixes the order renaming allocates
	// fresh ids, and identical input must keep producing byte-identical
	// output.
	for _, b := range f.Blocks() {
		for _, v := range sortedValues(written[b]) {
			push(pair{v, b})
		}
	}

	for len(worklist) > 0 {
		p := worklist[0]
		worklist = worklist[1:]

		for _, frontier := range sortedNodes(df[p.b]) {
			if hasPhiFor[frontier][p.v] {
				continue
			}
			if _, ok := live[frontier][p.v]; !ok {
				continue
			}
			preds := f.Graph.Predecessors(frontier)
			incoming := make(map[graph.NodeId]ir.ValueId, len(preds))
			for _, pr := range preds {
				incoming[pr] = p.v
			}
			f.Block(frontier).AddPhi(&ir.Phi{Dest: p.v, Incoming: incoming})
			if hasPhiFor[frontier] == nil {
				hasPhiFor[frontier] = make(map[ir.ValueId]bool)
			}
			hasPhiFor[frontier][p.v] = true

			if _, ok := written[frontier][p.v]; !ok {
				push(pair{p.v, frontier})
			}
		}
	}
}

func sortedValues(set map[ir.ValueId]struct{}) []ir.ValueId {
	out := make([]ir.ValueId, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedNodes(set map[graph.NodeId]struct{}) []graph.NodeId {
	out := make([]graph.NodeId, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// renameFrame is one entry on the explicit dominator-tree-walk stack: the
// node to visit next, and how many stack-pushes of each original value
// this frame is responsible for popping on the way back out. Keeping the
// "pushes to undo" count instead of cloning value-stack snapshots makes
// the pop discipline explicit.
type renameFrame struct {
	node     graph.NodeId
	popCount map[ir.ValueId]int
}

// renameValuesTrackingOrigins performs the dominator-tree-walk renaming
// pass: it assigns a fresh ValueId to every write of a multiply-defined
// value, rewrites every read to the current top-of-stack name for its
// original value, and propagates renamed values into successor phis. The
// walk is iterative (an explicit stack of frames) so the pop discipline
// stays exact regardless of tree depth.
func renameValuesTrackingOrigins(f *ir.Function, domTree *graph.Graph, origins map[ir.ValueId]ir.ValueId) {
	// A value defined exactly once (counting phis) needs no splitting: its
	// name is already unique, so it keeps it. This is what makes renaming a
	// no-op on input already in SSA form; reads of a kept name fall through
	// the empty stack untouched.
	defCount := make(map[ir.ValueId]int)
	for _, n := range f.Blocks() {
		b := f.Block(n)
		for _, p := range b.Phis {
			defCount[p.Dest]++
		}
		for _, in := range b.Inner {
			for _, w := range in.ValuesWritten() {
				defCount[w]++
			}
		}
	}

	stacks := make(map[ir.ValueId][]ir.ValueId)
	top := func(v ir.ValueId) (ir.ValueId, bool) {
		s := stacks[v]
		if len(s) == 0 {
			return 0, false
		}
		return s[len(s)-1], true
	}
	push := func(orig, renamed ir.ValueId) {
		stacks[orig] = append(stacks[orig], renamed)
		root, ok := origins[orig]
		if !ok {
			root = orig
		}
		origins[renamed] = root
	}
	pop := func(orig ir.ValueId, n int) {
		s := stacks[orig]
		stacks[orig] = s[:len(s)-n]
	}

	visitStack := []renameFrame{{node: f.Entry, popCount: map[ir.ValueId]int{}}}
	visited := make(map[graph.NodeId]bool)

	for len(visitStack) > 0 {
		frame := &visitStack[len(visitStack)-1]
		if !visited[frame.node] {
			visited[frame.node] = true
			renameBlock(f, frame.node, stacks, top, push, frame.popCount, defCount)
		}

		child := nextUnvisitedChild(domTree, frame.node, visited)
		if child == 0 {
			for v, n := range frame.popCount {
				pop(v, n)
			}
			visitStack = visitStack[:len(visitStack)-1]
			continue
		}
		visitStack = append(visitStack, renameFrame{node: child, popCount: map[ir.ValueId]int{}})
	}
}

func nextUnvisitedChild(domTree *graph.Graph, n graph.NodeId, visited map[graph.NodeId]bool) graph.NodeId {
	for _, c := range domTree.Successors(n) {
		if !visited[c] {
			return c
		}
	}
	return 0
}

// renameBlock renames every write and read within block n in program
// order (phis' dest only; phi incoming values are not read-rewritten here,
// only written-to by the predecessor that defines them, which happens
// below when processing this block's successors) and propagates into
// successor phis.
func renameBlock(
	f *ir.Function,
	n graph.NodeId,
	stacks map[ir.ValueId][]ir.ValueId,
	top func(ir.ValueId) (ir.ValueId, bool),
	push func(orig, renamed ir.ValueId),
	popCount map[ir.ValueId]int,
	defCount map[ir.ValueId]int,
) {
	b := f.Block(n)

	for _, p := range b.Phis {
		orig := p.Dest
		if defCount[orig] < 2 {
			continue
		}
		fresh := f.NewValue()
		push(orig, fresh)
		popCount[orig]++
		p.Dest = fresh
	}

	for _, in := range b.Inner {
		rewriteReads(in, stacks, top)
		for _, w := range in.ValuesWritten() {
			if defCount[w] < 2 {
				continue
			}
			fresh := f.NewValue()
			push(w, fresh)
			popCount[w]++
			rewriteWrite(in, w, fresh)
		}
	}

	if b.Terminator != nil {
		rewriteTerminatorReads(b.Terminator, stacks, top)
	}

	for _, s := range f.Graph.Successors(n) {
		succBlock := f.Block(s)
		for _, p := range succBlock.Phis {
			if orig, ok := p.Incoming[n]; ok {
				if renamed, ok := top(orig); ok {
					p.Incoming[n] = renamed
				}
			}
		}
	}
}

func rewriteReads(in ir.Inner, stacks map[ir.ValueId][]ir.ValueId, top func(ir.ValueId) (ir.ValueId, bool)) {
	switch v := in.(type) {
	case *ir.Move:
		v.Source = renamed(v.Source, top)
	case *ir.Binary:
		v.Left = renamed(v.Left, top)
		v.Right = renamed(v.Right, top)
	case *ir.Unary:
		v.Operand = renamed(v.Operand, top)
	case *ir.Index:
		v.Table = renamed(v.Table, top)
		v.Key = renamed(v.Key, top)
	case *ir.NewIndex:
		v.Table = renamed(v.Table, top)
		v.Key = renamed(v.Key, top)
		v.Value = renamed(v.Value, top)
	case *ir.Self:
		v.Table = renamed(v.Table, top)
		v.Key = renamed(v.Key, top)
	case *ir.Call:
		v.Target = renamed(v.Target, top)
		for i := range v.Args {
			v.Args[i] = renamed(v.Args[i], top)
		}
	case *ir.Concat:
		for i := range v.Operands {
			v.Operands[i] = renamed(v.Operands[i], top)
		}
	case *ir.Closure:
		for i := range v.Upvalues {
			v.Upvalues[i] = renamed(v.Upvalues[i], top)
		}
	case *ir.Close:
		for i := range v.Locals {
			v.Locals[i] = renamed(v.Locals[i], top)
		}
	case *ir.SetGlobal:
		v.Value = renamed(v.Value, top)
	case *ir.SetUpvalue:
		v.Value = renamed(v.Value, top)
	}
}

func rewriteWrite(in ir.Inner, orig, fresh ir.ValueId) {
	switch v := in.(type) {
	case *ir.LoadConstant:
		v.Dest = fresh
	case *ir.Move:
		v.Dest = fresh
	case *ir.Binary:
		v.Dest = fresh
	case *ir.Unary:
		v.Dest = fresh
	case *ir.Index:
		v.Dest = fresh
	case *ir.NewTable:
		v.Dest = fresh
	case *ir.Self:
		v.Dest = fresh
	case *ir.Call:
		for i, d := range v.Dests {
			if d == orig {
				v.Dests[i] = fresh
			}
		}
	case *ir.Concat:
		v.Dest = fresh
	case *ir.Closure:
		v.Dest = fresh
	case *ir.GetGlobal:
		v.Dest = fresh
	case *ir.GetUpvalue:
		v.Dest = fresh
	case *ir.VarArg:
		for i, d := range v.Dests {
			if d == orig {
				v.Dests[i] = fresh
			}
		}
	}
}

func rewriteTerminatorReads(t ir.Terminator, stacks map[ir.ValueId][]ir.ValueId, top func(ir.ValueId) (ir.ValueId, bool)) {
	switch v := t.(type) {
	case *ir.ConditionalJump:
		v.Cond = renamed(v.Cond, top)
	case *ir.NumericFor:
		v.Init = renamed(v.Init, top)
		v.Limit = renamed(v.Limit, top)
		v.Step = renamed(v.Step, top)
	case *ir.Return:
		for i := range v.Values {
			v.Values[i] = renamed(v.Values[i], top)
		}
	}
}

func renamed(v ir.ValueId, top func(ir.ValueId) (ir.ValueId, bool)) ir.ValueId {
	if r, ok := top(v); ok {
		return r
	}
	return v
}
