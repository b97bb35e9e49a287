// Package graph provides a mutable directed graph and the dominance-family
// algorithms the rest of this module's middle end is built on: DFS
// postorder, back-edge detection, immediate dominators, dominance
// frontiers, dominator trees and post-dominator trees.
package graph

import "errors"

// ErrNoEntry is returned when an algorithm that requires a reachable entry
// node is asked to run on a graph (or Function) that lacks one.
var ErrNoEntry = errors.New("graph: no entry node")

// NodeId identifies a node within a Graph. Zero value is not a valid id;
// Graph.AddNode always returns ids starting at 1 so a zero NodeId can be
// used as a "none" sentinel by callers.
type NodeId uint32

// Edge is a directed edge between two nodes.
type Edge struct {
	Source, Target NodeId
}

// Graph is a directed graph. Removing a node deletes it and its edges;
// NodeIds are never reused, so a removed id stays dead.
// Node and edge order is insertion order among live nodes/edges, which
// keeps DFS and pattern-matching passes deterministic.
type Graph struct {
	nextID  NodeId
	alive   map[NodeId]struct{}
	order   []NodeId // insertion order of currently-alive nodes
	succs   map[NodeId][]NodeId
	preds   map[NodeId][]NodeId
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		alive: make(map[NodeId]struct{}),
		succs: make(map[NodeId][]NodeId),
		preds: make(map[NodeId][]NodeId),
	}
}

// newWithNodeIDs builds a graph whose node set is exactly ids (no more, no
// less), for algorithms that must reproduce another graph's numbering
// (dominator/post-dominator trees) instead of allocating fresh ids.
func newWithNodeIDs(ids []NodeId) *Graph {
	g := New()
	for _, id := range ids {
		g.alive[id] = struct{}{}
		g.order = append(g.order, id)
		g.succs[id] = nil
		g.preds[id] = nil
		if id > g.nextID {
			g.nextID = id
		}
	}
	return g
}

// Clone returns an independent copy of g: same node ids, same edges. The
// restructurer uses this to get its own mutable working graph; no phase
// ever reads a graph another phase is mutating.
func Clone(g *Graph) *Graph {
	c := newWithNodeIDs(g.Nodes())
	for _, n := range g.Nodes() {
		for _, s := range g.Successors(n) {
			c.AddEdge(n, s)
		}
	}
	return c
}

// AddNode allocates and returns a fresh NodeId.
func (g *Graph) AddNode() NodeId {
	g.nextID++
	id := g.nextID
	g.alive[id] = struct{}{}
	g.order = append(g.order, id)
	g.succs[id] = nil
	g.preds[id] = nil
	return id
}

// RemoveNode deletes a node and all edges touching it.
func (g *Graph) RemoveNode(n NodeId) {
	if _, ok := g.alive[n]; !ok {
		return
	}
	for _, s := range g.succs[n] {
		g.preds[s] = removeID(g.preds[s], n)
	}
	for _, p := range g.preds[n] {
		g.succs[p] = removeID(g.succs[p], n)
	}
	delete(g.succs, n)
	delete(g.preds, n)
	delete(g.alive, n)
	for i, id := range g.order {
		if id == n {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// HasNode reports whether n is currently alive in the graph.
func (g *Graph) HasNode(n NodeId) bool {
	_, ok := g.alive[n]
	return ok
}

// AddEdge adds a directed edge u->v. A duplicate edge is a no-op.
func (g *Graph) AddEdge(u, v NodeId) {
	for _, s := range g.succs[u] {
		if s == v {
			return
		}
	}
	g.succs[u] = append(g.succs[u], v)
	g.preds[v] = append(g.preds[v], u)
}

// RemoveEdge removes a directed edge u->v, if present.
func (g *Graph) RemoveEdge(u, v NodeId) {
	g.succs[u] = removeID(g.succs[u], v)
	g.preds[v] = removeID(g.preds[v], u)
}

// Nodes returns all currently-alive nodes in insertion order.
func (g *Graph) Nodes() []NodeId {
	out := make([]NodeId, len(g.order))
	copy(out, g.order)
	return out
}

// Successors returns the successors of n in edge-insertion order.
func (g *Graph) Successors(n NodeId) []NodeId {
	return append([]NodeId(nil), g.succs[n]...)
}

// Predecessors returns the predecessors of n in edge-insertion order.
func (g *Graph) Predecessors(n NodeId) []NodeId {
	return append([]NodeId(nil), g.preds[n]...)
}

// NodeCount returns the number of currently-alive nodes.
func (g *Graph) NodeCount() int {
	return len(g.order)
}

func removeID(s []NodeId, id NodeId) []NodeId {
	for i, v := range s {
		if v == id {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// DFSPostorder returns the nodes reachable from entry in DFS postorder:
// a node appears only after all of its (first-visited) descendants.
func DFSPostorder(g *Graph, entry NodeId) []NodeId {
	visited := make(map[NodeId]bool)
	var order []NodeId
	var visit func(NodeId)
	visit = func(n NodeId) {
		visited[n] = true
		for _, s := range g.Successors(n) {
			if !visited[s] {
				visit(s)
			}
		}
		order = append(order, n)
	}
	if g.HasNode(entry) {
		visit(entry)
	}
	return order
}

// reversePostorder is DFSPostorder reversed: a node appears before its
// descendants, which is the iteration order the dominance algorithms need.
func reversePostorder(g *Graph, entry NodeId) []NodeId {
	po := DFSPostorder(g, entry)
	for i, j := 0, len(po)-1; i < j; i, j = i+1, j-1 {
		po[i], po[j] = po[j], po[i]
	}
	return po
}

// BackEdges returns the DFS back edges found by a depth-first search from
// entry: edges u->v where v is an ancestor of u on the active DFS stack.
// v is a loop header.
func BackEdges(g *Graph, entry NodeId) ([]Edge, error) {
	if !g.HasNode(entry) {
		return nil, ErrNoEntry
	}
	var edges []Edge
	onStack := make(map[NodeId]bool)
	visited := make(map[NodeId]bool)
	var visit func(NodeId)
	visit = func(n NodeId) {
		visited[n] = true
		onStack[n] = true
		for _, s := range g.Successors(n) {
			if onStack[s] {
				edges = append(edges, Edge{Source: n, Target: s})
			} else if !visited[s] {
				visit(s)
			}
		}
		onStack[n] = false
	}
	visit(entry)
	return edges, nil
}
