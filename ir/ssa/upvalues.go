package ssa

import (
	"luadec/graph"
	"luadec/ir"
)

// openUpvalue is one still-open capture: the local captured and the
// instruction location (block, inner index) at which it was captured by a
// Closure.
type openUpvalue struct {
	local ir.ValueId
	node  graph.NodeId
	index int
}

// UpvaluesOpen tracks, per program point, which locals are currently open
// as upvalues (captured by a Closure not yet followed by a matching
// Close): a forward worklist walk over the CFG propagating each block's
// open set into its successors, with origins (the pre-SSA value each
// renamed local descends from, per ConstructTrackingOrigins) used to
// decide whether two locals denote the same upvalue across SSA renaming.
type UpvaluesOpen struct {
	open    map[graph.NodeId][]openUpvalue
	origins map[ir.ValueId]ir.ValueId
}

// NewUpvaluesOpen runs the forward propagation walk over f. origins is the
// new-value -> original-pre-SSA-value map ConstructTrackingOrigins
// produced; pass an empty map if the function was never renamed (every
// value is its own origin in that case).
func NewUpvaluesOpen(f *ir.Function, origins map[ir.ValueId]ir.ValueId) *UpvaluesOpen {
	u := &UpvaluesOpen{
		open:    make(map[graph.NodeId][]openUpvalue),
		origins: origins,
	}
	if !f.HasEntry() {
		return u
	}

	var stack []graph.NodeId
	stack = append(stack, f.Entry)
	visited := make(map[graph.NodeId]bool)

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true

		b := f.Block(n)
		blockOpen := append([]openUpvalue(nil), u.open[n]...)
		for idx, in := range b.Inner {
			closure, isClosure := in.(*ir.Closure)
			if isClosure {
				for _, captured := range closure.Upvalues {
					blockOpen = append(blockOpen, openUpvalue{local: captured, node: n, index: idx})
				}
				continue
			}
			if closeInstr, ok := in.(*ir.Close); ok {
				closed := make(map[ir.ValueId]bool, len(closeInstr.Locals))
				for _, l := range closeInstr.Locals {
					closed[u.origin(l)] = true
				}
				filtered := blockOpen[:0:0]
				for _, o := range blockOpen {
					if !closed[u.origin(o.local)] {
						filtered = append(filtered, o)
					}
				}
				blockOpen = filtered
			}
		}
		u.open[n] = blockOpen

		for _, s := range f.Graph.Successors(n) {
			if !visited[s] {
				u.open[s] = append(u.open[s], blockOpen...)
				stack = append(stack, s)
			}
		}
	}
	return u
}

func (u *UpvaluesOpen) origin(v ir.ValueId) ir.ValueId {
	if root, ok := u.origins[v]; ok {
		return root
	}
	return v
}

// FindOpen returns the open local at node/index denoting the same upvalue
// as local (matched by shared pre-SSA origin), preferring a capture earlier
// in the same block and falling back to a predecessor block's open set.
// Reports false if no such open upvalue is tracked.
func (u *UpvaluesOpen) FindOpen(f *ir.Function, node graph.NodeId, index int, local ir.ValueId) (ir.ValueId, bool) {
	want := u.origin(local)
	for _, o := range u.open[node] {
		if o.node == node && u.origin(o.local) == want && o.index < index {
			return o.local, true
		}
	}
	for _, pred := range f.Graph.Predecessors(node) {
		for _, o := range u.open[pred] {
			if u.origin(o.local) == want {
				return o.local, true
			}
		}
	}
	return 0, false
}
