package ir

import (
	"errors"
	"fmt"

	"luadec/graph"
)

// ErrNoEntry mirrors graph.ErrNoEntry at the IR layer: a Function without a
// reachable entry cannot be used by any dominance-dependent pass.
var ErrNoEntry = errors.New("ir: function has no entry block")

// Function is a CFG-IR function: a graph of basic blocks with a unique
// entry, a monotonic ValueId allocator, and a NodeId -> *BasicBlock lookup.
// It owns every ValueId and BasicBlock it hands out; they do not outlive it
// conceptually, though Go's GC does not require us to track that.
type Function struct {
	Graph   *graph.Graph
	Entry   graph.NodeId
	blocks  map[graph.NodeId]*BasicBlock
	nextVal ValueId

	NumParams int
	IsVararg  bool
}

// NewFunction returns an empty function with no blocks yet. Callers build
// the CFG with AddBlock/Graph.AddEdge and must call SetEntry before running
// any dominance-dependent pass.
func NewFunction() *Function {
	return &Function{
		Graph:  graph.New(),
		blocks: make(map[graph.NodeId]*BasicBlock),
	}
}

// NewValue allocates and returns a fresh ValueId, unique within this
// Function.
func (f *Function) NewValue() ValueId {
	f.nextVal++
	return f.nextVal
}

// AddBlock allocates a new, empty basic block and returns its NodeId.
func (f *Function) AddBlock() graph.NodeId {
	n := f.Graph.AddNode()
	f.blocks[n] = NewBasicBlock()
	return n
}

// Block returns the basic block for n, or nil if n is not a block of this
// function.
func (f *Function) Block(n graph.NodeId) *BasicBlock {
	return f.blocks[n]
}

// SetEntry designates n as the function's entry block. n must already be a
// block of this function.
func (f *Function) SetEntry(n graph.NodeId) error {
	if _, ok := f.blocks[n]; !ok {
		return fmt.Errorf("ir: SetEntry: %d is not a block of this function", n)
	}
	f.Entry = n
	return nil
}

// Blocks returns every live block NodeId in insertion order.
func (f *Function) Blocks() []graph.NodeId {
	return f.Graph.Nodes()
}

// RemoveBlock deletes a block and all edges touching it.
func (f *Function) RemoveBlock(n graph.NodeId) {
	f.Graph.RemoveNode(n)
	delete(f.blocks, n)
}

// HasEntry reports whether the function's designated entry is a live block.
func (f *Function) HasEntry() bool {
	return f.Entry != 0 && f.Graph.HasNode(f.Entry)
}

// CheckEntry returns ErrNoEntry if the function has no reachable entry.
func (f *Function) CheckEntry() error {
	if !f.HasEntry() {
		return ErrNoEntry
	}
	return nil
}

// SyncSuccessors rebuilds n's outgoing graph edges from its terminator's
// successors. Callers invoke it after setting or replacing a block's
// terminator, so the graph and the terminator never drift apart.
func (f *Function) SyncSuccessors(n graph.NodeId) {
	b := f.blocks[n]
	if b == nil || b.Terminator == nil {
		return
	}
	for _, existing := range f.Graph.Successors(n) {
		f.Graph.RemoveEdge(n, existing)
	}
	for _, s := range b.Terminator.Successors() {
		f.Graph.AddEdge(n, s)
	}
}
