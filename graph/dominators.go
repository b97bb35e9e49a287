package graph

// ImmediateDominators computes, for each node reachable from entry, its
// immediate dominator. The entry maps to itself; that is the convention
// this package fixes.
//
// Uses the iterative Cooper-Harvey-Kennedy algorithm over reverse
// postorder.
func ImmediateDominators(g *Graph, entry NodeId) (map[NodeId]NodeId, error) {
	if !g.HasNode(entry) {
		return nil, ErrNoEntry
	}
	rpo := reversePostorder(g, entry)
	rpoPos := make(map[NodeId]int, len(rpo))
	for i, n := range rpo {
		rpoPos[n] = i
	}

	idom := make(map[NodeId]NodeId)
	idom[entry] = entry

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == entry {
				continue
			}
			var newIdom NodeId
			found := false
			for _, p := range g.Predecessors(b) {
				if _, ok := idom[p]; !ok {
					continue
				}
				if !found {
					newIdom = p
					found = true
					continue
				}
				newIdom = intersect(idom, rpoPos, p, newIdom)
			}
			if !found {
				continue
			}
			if cur, ok := idom[b]; !ok || cur != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	return idom, nil
}

func intersect(idom map[NodeId]NodeId, rpoPos map[NodeId]int, a, b NodeId) NodeId {
	for a != b {
		for rpoPos[a] > rpoPos[b] {
			a = idom[a]
		}
		for rpoPos[b] > rpoPos[a] {
			b = idom[b]
		}
	}
	return a
}

// DominanceFrontiers computes the dominance frontier of every node with a
// non-empty frontier: DF(B) = { X : B dominates a predecessor of X but does
// not strictly dominate X }.
func DominanceFrontiers(g *Graph, entry NodeId, idom map[NodeId]NodeId) (map[NodeId]map[NodeId]struct{}, error) {
	if idom == nil {
		var err error
		idom, err = ImmediateDominators(g, entry)
		if err != nil {
			return nil, err
		}
	}
	df := make(map[NodeId]map[NodeId]struct{})
	for _, b := range g.Nodes() {
		preds := g.Predecessors(b)
		if len(preds) < 2 {
			continue
		}
		for _, p := range preds {
			if _, ok := idom[p]; !ok {
				continue
			}
			runner := p
			for runner != idom[b] {
				if df[runner] == nil {
					df[runner] = make(map[NodeId]struct{})
				}
				df[runner][b] = struct{}{}
				if runner == idom[runner] {
					break // reached entry (self-idom); avoid infinite loop
				}
				runner = idom[runner]
			}
		}
	}
	return df, nil
}

// DominatorTree builds the dominator tree as a Graph: an edge idom[n] -> n
// for every node except entry. Node ids are preserved from the source
// graph's Nodes(), and edges are inserted in node order so tree walks are
// deterministic.
func DominatorTree(g *Graph, idom map[NodeId]NodeId) (*Graph, error) {
	tree := newWithNodeIDs(g.Nodes())
	for _, n := range g.Nodes() {
		d, ok := idom[n]
		if !ok || n == d {
			continue
		}
		tree.AddEdge(d, n)
	}
	return tree, nil
}

// PostDominatorTree computes the post-dominator tree: a synthetic exit node
// is linked from every node with no successors, immediate dominators are
// computed on the reversed graph rooted at that synthetic exit, and the
// synthetic node is then stripped back out so it never reaches downstream
// consumers.
//
// The third parameter (a DFS tree) is accepted for interface symmetry with
// callers that already have one; it is not used.
func PostDominatorTree(g *Graph, entry NodeId, _ []NodeId) (*Graph, error) {
	ipdom, err := ImmediatePostDominators(g, entry)
	if err != nil {
		return nil, err
	}
	tree := newWithNodeIDs(g.Nodes())
	for _, n := range g.Nodes() {
		d, ok := ipdom[n]
		if !ok || n == d {
			continue
		}
		tree.AddEdge(d, n)
	}
	return tree, nil
}

// ImmediatePostDominators computes, for every node that can reach an exit
// (a node with no successors), its immediate post-dominator. Nodes that
// cannot reach any exit (e.g. inside an infinite loop with no break) are
// omitted from the result.
func ImmediatePostDominators(g *Graph, entry NodeId) (map[NodeId]NodeId, error) {
	if !g.HasNode(entry) {
		return nil, ErrNoEntry
	}
	nodes := g.Nodes()
	var maxID NodeId
	for _, n := range nodes {
		if n > maxID {
			maxID = n
		}
	}
	synthetic := maxID + 1 // guaranteed fresh: larger than every real id

	var exits []NodeId
	for _, n := range nodes {
		if len(g.Successors(n)) == 0 {
			exits = append(exits, n)
		}
	}
	if len(exits) == 0 {
		// No node reaches an exit: nothing post-dominates anything.
		return map[NodeId]NodeId{}, nil
	}

	rev := newWithNodeIDs(append(append([]NodeId(nil), nodes...), synthetic))
	for _, n := range nodes {
		for _, s := range g.Successors(n) {
			rev.AddEdge(s, n) // reversed
		}
	}
	for _, e := range exits {
		rev.AddEdge(synthetic, e)
	}

	idom, err := ImmediateDominators(rev, synthetic)
	if err != nil {
		return nil, err
	}
	out := make(map[NodeId]NodeId, len(idom))
	for n, d := range idom {
		if n == synthetic {
			continue
		}
		if d == synthetic {
			continue // post-dominated only by the synthetic exit: no real ipdom
		}
		out[n] = d
	}
	return out, nil
}

// DFSTree returns the DFS-discovery-order node list from entry, suitable
// for passing to PostDominatorTree's dfsTree parameter.
func DFSTree(g *Graph, entry NodeId) ([]NodeId, error) {
	if !g.HasNode(entry) {
		return nil, ErrNoEntry
	}
	visited := make(map[NodeId]bool)
	var order []NodeId
	var visit func(NodeId)
	visit = func(n NodeId) {
		visited[n] = true
		order = append(order, n)
		for _, s := range g.Successors(n) {
			if !visited[s] {
				visit(s)
			}
		}
	}
	visit(entry)
	return order, nil
}

// Dominates reports whether a dominates b (inclusive: a dominates a).
func Dominates(idom map[NodeId]NodeId, a, b NodeId) bool {
	for {
		if a == b {
			return true
		}
		d, ok := idom[b]
		if !ok || d == b {
			return a == b
		}
		b = d
	}
}
