// Package restructure is the post-dominance-guided structurer: it
// converts a CFG of AST blocks (package lift's output) into a single
// structured ast.Block by pattern-matching and contracting subgraphs to a
// fixpoint — compound conditionals, loop collapse, jump collapse, and
// simple if/else (with branch-swap and break rewriting), tried in that
// order whenever more than one rule is eligible at a node in the same sweep.
package restructure

import (
	"fmt"

	"luadec/ast"
	"luadec/graph"
	"luadec/ir"
)

// branch records the unresolved Then/Else targets of the *ast.If that
// package lift left as the last statement of a node's body, for nodes
// whose terminator was a ConditionalJump. Entries are removed once a rule
// folds the branches in.
type branch struct {
	then, els graph.NodeId
}

// structurer holds the mutable working state of one restructuring run: its
// own graph clone (never the ir.Function's graph, which later phases may
// still read), per-node AST bodies, and the unresolved-conditional side
// table.
type structurer struct {
	g           *graph.Graph
	root        graph.NodeId
	bodies      map[graph.NodeId]*ast.Block
	branches    map[graph.NodeId]branch
	loopHeaders map[graph.NodeId]bool
	loopExit    map[graph.NodeId]graph.NodeId // header -> designated exit
	diagnostics []string
}

// Lift converts f's CFG (with per-block AST already produced by package
// lift) into a single structured ast.Block. It fails only when f has no
// entry block: on non-convergence it returns a partial block prefixed with a diagnostic
// Comment; the second return value carries that diagnostic in structured
// form for callers that want more than the inline comment.
func Lift(f *ir.Function, blocks map[graph.NodeId]*ast.Block) (*ast.Block, []string, error) {
	if err := f.CheckEntry(); err != nil {
		return nil, nil, err
	}

	s := &structurer{
		g:        graph.Clone(f.Graph),
		root:     f.Entry,
		bodies:   make(map[graph.NodeId]*ast.Block),
		branches: make(map[graph.NodeId]branch),
	}
	for n, b := range blocks {
		s.bodies[n] = b
		if t, ok := f.Block(n).Terminator.(*ir.ConditionalJump); ok {
			s.branches[n] = branch{then: t.Then, els: t.Else}
		}
	}

	s.collapse()

	nodes := s.g.Nodes()
	if len(nodes) == 1 {
		return s.bodies[nodes[0]], s.diagnostics, nil
	}

	msg := fmt.Sprintf("failed to collapse, total nodes: %d", len(nodes))
	s.diagnostics = append(s.diagnostics, msg)
	out := ast.BlockOf(ast.NewComment(msg))
	for _, n := range s.dfsFromRoot() {
		out.Extend(s.bodies[n])
	}
	return out, s.diagnostics, nil
}

func (s *structurer) dfsFromRoot() []graph.NodeId {
	visited := make(map[graph.NodeId]bool)
	var order []graph.NodeId
	var visit func(graph.NodeId)
	visit = func(n graph.NodeId) {
		if visited[n] || !s.g.HasNode(n) {
			return
		}
		visited[n] = true
		order = append(order, n)
		for _, succ := range s.g.Successors(n) {
			visit(succ)
		}
	}
	visit(s.root)
	for _, n := range s.g.Nodes() {
		visit(n) // catch any node unreachable from root (irreducible tail)
	}
	return order
}

// collapse repeats matchBlocks until a sweep makes no change. Each
// successful rule application strictly reduces node count or conditional
// count, or (loop collapse of a header with no conditional) removes the
// header's self-edge, so this loop runs O(N) sweeps over O(N) nodes.
func (s *structurer) collapse() {
	for s.matchBlocks() {
	}
}

// matchBlocks does one post-order sweep from root: it prunes unreachable
// nodes, recomputes loop-header/exit bookkeeping (the prior sweep may have
// collapsed headers or shifted post-dominance), then attempts
// tryMatchPattern at each live node.
func (s *structurer) matchBlocks() bool {
	reachable := make(map[graph.NodeId]bool)
	var order []graph.NodeId
	visited := make(map[graph.NodeId]bool)
	var visitPost func(graph.NodeId)
	visitPost = func(n graph.NodeId) {
		if visited[n] {
			return
		}
		visited[n] = true
		reachable[n] = true
		for _, succ := range s.g.Successors(n) {
			visitPost(succ)
		}
		order = append(order, n)
	}
	visitPost(s.root)

	for _, n := range s.g.Nodes() {
		if !reachable[n] {
			s.removeNode(n)
		}
	}

	s.refreshLoopInfo()

	changed := false
	for _, n := range order {
		if !s.g.HasNode(n) {
			continue
		}
		if s.tryMatchPattern(n) {
			changed = true
		}
	}
	return changed
}

// refreshLoopInfo recomputes loop headers (destinations of DFS back edges
// from root) and, for each, its designated loop exit: the header's nearest
// predecessor in the post-dominator tree, i.e. its immediate
// post-dominator.
func (s *structurer) refreshLoopInfo() {
	backEdges, err := graph.BackEdges(s.g, s.root)
	if err != nil {
		s.loopHeaders = map[graph.NodeId]bool{}
		s.loopExit = map[graph.NodeId]graph.NodeId{}
		return
	}
	s.loopHeaders = make(map[graph.NodeId]bool, len(backEdges))
	for _, e := range backEdges {
		s.loopHeaders[e.Target] = true
	}

	ipdom, err := graph.ImmediatePostDominators(s.g, s.root)
	s.loopExit = make(map[graph.NodeId]graph.NodeId, len(s.loopHeaders))
	if err != nil {
		return
	}
	for h := range s.loopHeaders {
		if x, ok := ipdom[h]; ok {
			s.loopExit[h] = x
		}
	}
}

// isLoopExit reports whether n is the designated exit of any currently
// tracked loop header.
func (s *structurer) isLoopExit(n graph.NodeId) bool {
	for _, x := range s.loopExit {
		if x == n {
			return true
		}
	}
	return false
}

// tryMatchPattern applies the first eligible rule at n, in a fixed
// tie-break order: compound conditional, then loop collapse, then jump
// collapse, then plain if-match. The order is observable in the output
// shape and must not change.
func (s *structurer) tryMatchPattern(n graph.NodeId) bool {
	succs := s.g.Successors(n)

	if len(succs) == 2 {
		if s.matchCompoundConditional(n) {
			return true
		}
		// The sweep is post-order, so the inner half of a short-circuit
		// pair is visited before its outer conditional; try the fold at the
		// sole predecessor before a simple-if match here can tear the pair
		// apart.
		if preds := s.g.Predecessors(n); len(preds) == 1 && preds[0] != n {
			if s.matchCompoundConditional(preds[0]) {
				return true
			}
		}
	}

	if s.tryCollapseLoop(n) {
		return true
	}

	switch len(succs) {
	case 1:
		return s.matchJump(n, succs[0])
	case 2:
		if br, ok := s.branches[n]; ok {
			return s.matchConditional(n, br)
		}
		return false
	default:
		return false
	}
}

// matchCompoundConditional folds `if A then (if B ... ) else E` /
// `if A then T else (if B ...)` into a single If on A with a
// Binary(and|or) condition, when the inner conditional is solely entered
// from A and one of its own branches rejoins A's other branch target —
// Lua's `cond1 and cond2` / `cond1 or cond2` compilation pattern. The
// four shapes:
//
//	then-side, inner's else rejoins:  cond1 and cond2
//	then-side, inner's then rejoins:  cond1 and not cond2
//	else-side, inner's then rejoins:  cond1 or cond2
//	else-side, inner's else rejoins:  cond1 or not cond2
func (s *structurer) matchCompoundConditional(n graph.NodeId) bool {
	br, ok := s.branches[n]
	if !ok {
		return false
	}

	fold := func(inner, outer graph.NodeId, op ast.BinaryOp) bool {
		if !s.g.HasNode(inner) || inner == outer || inner == n {
			return false
		}
		preds := s.g.Predecessors(inner)
		if len(preds) != 1 || preds[0] != n {
			return false
		}
		innerBr, ok := s.branches[inner]
		if !ok || innerBr.then == inner || innerBr.els == inner {
			return false
		}

		outerCond := s.condExprOf(n)
		innerCond, ok := s.condWithPrelude(inner)
		if outerCond == nil || !ok {
			return false
		}

		second := innerCond
		var newThen, newElse graph.NodeId
		if op == ast.BinAnd {
			switch outer {
			case innerBr.els:
				newThen, newElse = innerBr.then, outer
			case innerBr.then:
				second = &ast.Unary{Op: ast.UnNot, Operand: innerCond}
				newThen, newElse = innerBr.els, outer
			default:
				return false
			}
		} else {
			switch outer {
			case innerBr.then:
				newThen, newElse = outer, innerBr.els
			case innerBr.els:
				second = &ast.Unary{Op: ast.UnNot, Operand: innerCond}
				newThen, newElse = outer, innerBr.then
			default:
				return false
			}
		}

		s.setCondExpr(n, &ast.Binary{Op: op, Left: outerCond, Right: second})
		s.branches[n] = branch{then: newThen, els: newElse}

		s.g.RemoveEdge(n, inner)
		s.g.RemoveEdge(inner, innerBr.then)
		s.g.RemoveEdge(inner, innerBr.els)
		s.g.AddEdge(n, newThen)
		s.g.AddEdge(n, newElse)
		s.removeNode(inner)
		return true
	}

	if fold(br.then, br.els, ast.BinAnd) {
		return true
	}
	if fold(br.els, br.then, ast.BinOr) {
		return true
	}
	return false
}

// condWithPrelude returns the condition of the unresolved If shell ending
// inner's body, with the block's leading straight-line assignments folded
// into it by substitution. Folding a compound conditional moves the inner
// block's evaluation under short-circuit: that is only sound when every
// statement ahead of the shell is a pure single-local assignment feeding
// the condition, so anything else refuses the fold.
func (s *structurer) condWithPrelude(inner graph.NodeId) (ast.RValue, bool) {
	body := s.bodies[inner]
	if body.IsEmpty() {
		return nil, false
	}
	ifStmt, ok := body.Statements[len(body.Statements)-1].(*ast.If)
	if !ok {
		return nil, false
	}
	cond := ifStmt.Cond
	reads := func(rv ast.RValue, l *ast.Local) bool {
		for _, r := range rv.ValuesRead() {
			if r == l {
				return true
			}
		}
		return false
	}
	for i := len(body.Statements) - 2; i >= 0; i-- {
		asg, ok := body.Statements[i].(*ast.Assign)
		if !ok || len(asg.Vars) != 1 || len(asg.Values) != 1 {
			return nil, false
		}
		target, ok := asg.Vars[0].(*ast.Local)
		if !ok || asg.Values[0].HasSideEffects() || !reads(cond, target) {
			return nil, false
		}
		cond = substituteLocal(cond, target, asg.Values[0])
		if reads(cond, target) {
			return nil, false
		}
	}
	return cond, true
}

// substituteLocal rebuilds rv with every occurrence of l replaced by rep.
func substituteLocal(rv ast.RValue, l *ast.Local, rep ast.RValue) ast.RValue {
	switch v := rv.(type) {
	case *ast.Local:
		if v == l {
			return rep
		}
		return v
	case *ast.Unary:
		return &ast.Unary{Op: v.Op, Operand: substituteLocal(v.Operand, l, rep)}
	case *ast.Binary:
		return &ast.Binary{Op: v.Op, Left: substituteLocal(v.Left, l, rep), Right: substituteLocal(v.Right, l, rep)}
	case *ast.Index:
		return &ast.Index{Table: substituteLocal(v.Table, l, rep), Key: substituteLocal(v.Key, l, rep)}
	default:
		return rv
	}
}

// condExprOf returns the condition expression of the unresolved *ast.If
// that package lift left as n's last statement, or nil if n's body
// doesn't end in one.
func (s *structurer) condExprOf(n graph.NodeId) ast.RValue {
	body := s.bodies[n]
	if body.IsEmpty() {
		return nil
	}
	if ifStmt, ok := body.Statements[len(body.Statements)-1].(*ast.If); ok {
		return ifStmt.Cond
	}
	return nil
}

func (s *structurer) setCondExpr(n graph.NodeId, cond ast.RValue) {
	body := s.bodies[n]
	if ifStmt, ok := body.Statements[len(body.Statements)-1].(*ast.If); ok {
		ifStmt.Cond = cond
	}
}

// matchConditional implements simple if/else: for conditional n with
// branches then/els and immediate post-dominator x,
// either branch equal to x is dropped (swapping to `if not cond` when it
// was the then-branch), each remaining branch is inlined when n is its
// sole entry and it exits only through x (or back to a loop header), a
// branch that reaches an enclosing loop's designated exit is emitted as
// `break` instead of inlined, and x itself is folded back into n once n
// is its only predecessor.
func (s *structurer) matchConditional(n graph.NodeId, br branch) bool {
	ipdom, err := graph.ImmediatePostDominators(s.g, s.root)
	if err != nil {
		return false
	}
	exit, hasExit := ipdom[n]

	cond := s.condExprOf(n)
	if cond == nil {
		return false
	}
	ifStmt := s.bodies[n].Statements[len(s.bodies[n].Statements)-1].(*ast.If)

	then, els := br.then, br.els
	if then == els {
		return false
	}
	thenHeader, thenBreaks := s.breaksFrom(n, then)
	elsHeader, elsBreaks := s.breaksFrom(n, els)

	// A branch target is inlinable when n is its sole entry and every way
	// out of it is the reconvergence point or a back edge to a loop header
	// (a single-predecessor target is by construction dominated by n).
	resolve := func(target graph.NodeId) (*ast.Block, bool) {
		if target == s.root {
			return nil, false
		}
		preds := s.g.Predecessors(target)
		if len(preds) != 1 || preds[0] != n {
			return nil, false
		}
		for _, succ := range s.g.Successors(target) {
			if hasExit && succ == exit {
				continue
			}
			if s.loopHeaders[succ] {
				continue
			}
			return nil, false
		}
		return s.bodies[target], true
	}

	switch {
	case thenBreaks && elsBreaks:
		return false
	case thenBreaks:
		if elsBody, ok := resolve(els); ok {
			// `if cond then break end; rest`: once the break runs nothing
			// after the If does, so the fallthrough is equally correct as
			// the else branch — and inlining it here is what reduces a
			// header-owned conditional to the self-loop shape the loop
			// collapse needs.
			ifStmt.Then = ast.BlockOf(&ast.Break{})
			ifStmt.Else = elsBody
			delete(s.branches, n)
			s.g.RemoveEdge(n, els)
			s.absorb(n, els)
			s.g.RemoveEdge(n, then)
			s.g.AddEdge(thenHeader, then)
			return true
		}
		if n == thenHeader {
			// The loop body hasn't shrunk to an inlinable shape yet; let
			// jump collapse work on it first.
			return false
		}
		// Breaking out of an enclosing loop from inside its body: the else
		// edge is n's fallthrough and stays in the graph for a later jump
		// collapse; the exit the break leaves for is re-anchored at the
		// loop header so the code after the loop stays reachable.
		ifStmt.Then = ast.BlockOf(&ast.Break{})
		ifStmt.Else = nil
		delete(s.branches, n)
		s.g.RemoveEdge(n, then)
		s.g.AddEdge(thenHeader, then)
		return true
	case elsBreaks:
		if thenBody, ok := resolve(then); ok {
			ifStmt.Then = thenBody
			ifStmt.Else = ast.BlockOf(&ast.Break{})
			delete(s.branches, n)
			s.g.RemoveEdge(n, then)
			s.absorb(n, then)
			s.g.RemoveEdge(n, els)
			s.g.AddEdge(elsHeader, els)
			return true
		}
		if n == elsHeader {
			return false
		}
		ifStmt.Cond = &ast.Unary{Op: ast.UnNot, Operand: cond}
		ifStmt.Then = ast.BlockOf(&ast.Break{})
		ifStmt.Else = nil
		delete(s.branches, n)
		s.g.RemoveEdge(n, els)
		s.g.AddEdge(elsHeader, els)
		return true
	}

	swap := hasExit && then == exit
	if swap {
		then, els = els, then
	}
	elseIsExit := hasExit && els == exit

	thenBody, ok := resolve(then)
	if !ok {
		return false
	}
	var elseBody *ast.Block
	if !elseIsExit {
		eb, ok := resolve(els)
		if !ok {
			return false
		}
		elseBody = eb
	}

	if swap {
		ifStmt.Cond = &ast.Unary{Op: ast.UnNot, Operand: cond}
	}
	ifStmt.Then = thenBody
	ifStmt.Else = elseBody

	delete(s.branches, n)
	s.g.RemoveEdge(n, br.then)
	s.g.RemoveEdge(n, br.els)
	s.absorb(n, then)
	if !elseIsExit {
		s.absorb(n, els)
	}
	if hasExit && s.g.HasNode(exit) {
		s.g.AddEdge(n, exit)
		// Fold x back in when n is now its only predecessor — keeps the
		// fixpoint moving without waiting for a separate jump-collapse
		// sweep. Never while n is a loop header: the fold would drag the
		// post-loop code inside the body the loop collapse is about to
		// wrap.
		if !s.loopHeaders[n] {
			preds := s.g.Predecessors(exit)
			if len(preds) == 1 && preds[0] == n {
				s.bodies[n].Extend(s.bodies[exit])
				s.g.RemoveEdge(n, exit)
				for _, succ := range s.g.Successors(exit) {
					s.g.AddEdge(n, succ)
				}
				s.removeNode(exit)
			}
		}
	}
	return true
}

// absorb transfers target's outgoing edges to n and deletes target, after
// target's body has been inlined into n's AST. A back edge out of target
// becomes n's own (possibly a self-edge, which is what arms the loop
// collapse).
func (s *structurer) absorb(n, target graph.NodeId) {
	for _, succ := range s.g.Successors(target) {
		s.g.AddEdge(n, succ)
	}
	s.removeNode(target)
}

// breaksFrom reports whether jumping from n to t leaves a loop enclosing
// n — t is some header's designated exit and n sits on that loop's cycle —
// returning that header. Deterministic: headers are scanned in node order.
func (s *structurer) breaksFrom(n, t graph.NodeId) (graph.NodeId, bool) {
	for _, h := range s.g.Nodes() {
		if !s.loopHeaders[h] {
			continue
		}
		x, ok := s.loopExit[h]
		if !ok || x != t {
			continue
		}
		if n == h || (s.reaches(h, n) && s.reaches(n, h)) {
			return h, true
		}
	}
	return 0, false
}

func (s *structurer) reaches(from, to graph.NodeId) bool {
	if from == to {
		return true
	}
	visited := make(map[graph.NodeId]bool)
	stack := []graph.NodeId{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, succ := range s.g.Successors(n) {
			if succ == to {
				return true
			}
			if !visited[succ] {
				visited[succ] = true
				stack = append(stack, succ)
			}
		}
	}
	return false
}

// matchJump implements jump collapse: a node with exactly one successor
// whose sole entry it is (and therefore dominates) gets that
// successor's statements appended and the edge/node removed. The entry
// node is never absorbed into a predecessor.
func (s *structurer) matchJump(n, target graph.NodeId) bool {
	if !s.g.HasNode(target) || target == n || target == s.root {
		return false
	}
	preds := s.g.Predecessors(target)
	if len(preds) != 1 || preds[0] != n {
		return false
	}

	s.bodies[n].Extend(s.bodies[target])
	s.g.RemoveEdge(n, target)
	for _, succ := range s.g.Successors(target) {
		s.g.AddEdge(n, succ)
	}
	if br, ok := s.branches[target]; ok {
		s.branches[n] = br
		delete(s.branches, target)
	}
	s.removeNode(target)
	return true
}

// tryCollapseLoop implements loop collapse for the direct-self-loop case:
// a loop header whose back edge is a self-edge repeats its own body
// unconditionally, so it is wrapped as `while true do body end` with the
// back edge dropped. A loop whose body spans more than one node is reduced
// to this shape by the other rules first, which is why this check alone,
// run to fixpoint alongside them, suffices.
//
// A header still carrying its own unresolved conditional (a repeat/until
// latch: one branch re-enters, the other leaves) has the conditional
// resolved into `if cond then break end` before wrapping.
func (s *structurer) tryCollapseLoop(n graph.NodeId) bool {
	if !s.loopHeaders[n] {
		return false
	}
	selfLoop := false
	for _, succ := range s.g.Successors(n) {
		if succ == n {
			selfLoop = true
			break
		}
	}
	if !selfLoop {
		return false
	}

	if br, ok := s.branches[n]; ok {
		body := s.bodies[n]
		if body.IsEmpty() {
			return false
		}
		ifStmt, isIf := body.Statements[len(body.Statements)-1].(*ast.If)
		if !isIf {
			return false
		}
		switch {
		case br.then == n && br.els != n:
			// Loop continues while the condition holds; leaving means it
			// failed.
			ifStmt.Cond = &ast.Unary{Op: ast.UnNot, Operand: ifStmt.Cond}
			ifStmt.Then = ast.BlockOf(&ast.Break{})
			ifStmt.Else = nil
		case br.els == n && br.then != n:
			ifStmt.Then = ast.BlockOf(&ast.Break{})
			ifStmt.Else = nil
		default:
			return false
		}
		delete(s.branches, n)
	}

	s.g.RemoveEdge(n, n)
	delete(s.loopHeaders, n)
	delete(s.loopExit, n)
	s.bodies[n] = ast.BlockOf(ast.NewInfiniteWhile(s.bodies[n]))
	return true
}

func (s *structurer) removeNode(n graph.NodeId) {
	s.g.RemoveNode(n)
	delete(s.bodies, n)
	delete(s.branches, n)
	delete(s.loopHeaders, n)
	delete(s.loopExit, n)
}
