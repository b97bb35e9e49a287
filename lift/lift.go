// Package lift is the CFG->AST lifter: it maps each CFG-IR basic block's
// inner instructions to AST statements and each block's terminator to an
// AST shell (an If with empty branches for ConditionalJump, a Return, or
// nothing for an UnconditionalJump), leaving a CFG whose nodes carry AST
// Block bodies. Restructuring the resulting graph into a single structured
// Block is package restructure's job, not this one.
package lift

import (
	"fmt"

	"luadec/ast"
	"luadec/graph"
	"luadec/ir"
	"luadec/ir/ssa"
)

// Result is the per-block lifted AST, keyed by the CFG-IR NodeId it came
// from, plus any diagnostics produced along the way.
type Result struct {
	Blocks      map[graph.NodeId]*ast.Block
	Diagnostics []string
}

// Lift translates every block of f into an AST Block, using locals to name
// each ValueId consistently across blocks (one *ast.Local per ValueId, so
// the same SSA/pruned value reads as the same Lua local everywhere it's
// referenced). opens is the upvalue-open analysis from ir/ssa (pass nil to
// skip it, e.g. when lifting a function Construct/Prune never ran on); it
// resolves a Closure's captured ValueIds to the locals the analysis tracks
// as actually open at that program point.
func Lift(f *ir.Function, locals *LocalNamer, opens *ssa.UpvaluesOpen) *Result {
	res := &Result{Blocks: make(map[graph.NodeId]*ast.Block)}
	for _, n := range f.Blocks() {
		res.Blocks[n] = liftBlock(n, f, f.Block(n), locals, opens, res)
	}
	// Phis that survived pruning are real joins; destruct them into copies:
	// each predecessor assigns the phi's destination its incoming value at
	// the end of that predecessor's body, ahead of any branch shell, so the
	// join block reads an ordinary local.
	for _, n := range f.Blocks() {
		for _, p := range f.Block(n).Phis {
			for _, pred := range f.Graph.Predecessors(n) {
				v, ok := p.Incoming[pred]
				if !ok || v == p.Dest {
					continue
				}
				insertBeforeBranch(res.Blocks[pred], ast.NewAssignLocal(locals.Local(p.Dest), locals.Local(v)))
			}
		}
	}
	return res
}

// insertBeforeBranch places stmt at the end of b, but ahead of a trailing
// If shell: a value flowing into a successor must be assigned before the
// branch that chooses the successor.
func insertBeforeBranch(b *ast.Block, stmt ast.Statement) {
	if n := len(b.Statements); n > 0 {
		if _, ok := b.Statements[n-1].(*ast.If); ok {
			last := b.Statements[n-1]
			b.Statements = append(b.Statements[:n-1], stmt, last)
			return
		}
	}
	b.Append(stmt)
}

// LocalNamer assigns and reuses one *ast.Local per ValueId, populated
// lazily on first reference; every ValueId that survives to this phase is
// eventually referenced by some instruction, so lazy and eager seeding
// name the same set.
type LocalNamer struct {
	byValue        map[ir.ValueId]*ast.Local
	byUpvalueIndex map[int]*ast.Local
}

// NewLocalNamer returns an empty namer.
func NewLocalNamer() *LocalNamer {
	return &LocalNamer{
		byValue:        make(map[ir.ValueId]*ast.Local),
		byUpvalueIndex: make(map[int]*ast.Local),
	}
}

// Local returns the *ast.Local standing in for v, allocating one (named
// after the ValueId, e.g. "v3") on first reference.
func (n *LocalNamer) Local(v ir.ValueId) *ast.Local {
	if l, ok := n.byValue[v]; ok {
		return l
	}
	l := ast.NewLocal(v.String())
	n.byValue[v] = l
	return l
}

// UpvalueLocal returns the *ast.Local standing in for the enclosing
// function's upvalue slot index, allocating one (named "upvalN") on first
// reference. Every GetUpvalue/SetUpvalue referencing the same Index shares
// this Local, so a read and a later write of one captured variable
// decompile as reads/writes of the same name rather than each becoming its
// own isolated reference.
func (n *LocalNamer) UpvalueLocal(index int) *ast.Local {
	if l, ok := n.byUpvalueIndex[index]; ok {
		return l
	}
	l := ast.NewLocal(fmt.Sprintf("upval%d", index))
	n.byUpvalueIndex[index] = l
	return l
}

func liftBlock(n graph.NodeId, f *ir.Function, b *ir.BasicBlock, locals *LocalNamer, opens *ssa.UpvaluesOpen, res *Result) *ast.Block {
	body := ast.NewBlock()

	for idx, in := range b.Inner {
		if stmt := liftInner(in, idx, n, f, locals, opens); stmt != nil {
			body.Append(stmt)
		}
	}

	switch t := b.Terminator.(type) {
	case nil:
		res.Diagnostics = append(res.Diagnostics, "block has no terminator")
		body.Append(ast.NewComment("block has no terminator"))
	case *ir.UnconditionalJump:
		// Nothing: the restructurer reattaches control flow by graph shape,
		// not by any statement lift emits here.
	case *ir.ConditionalJump:
		body.Append(&ast.If{Cond: locals.Local(t.Cond), Then: ast.NewBlock(), Else: ast.NewBlock()})
	case *ir.NumericFor:
		// A NumericFor surviving to this point means the block structure
		// around a numeric for-loop was not normalized; surface a
		// diagnostic and keep going rather than abort the function.
		msg := "unsupported terminator: NumericFor survived where a ConditionalJump was expected"
		res.Diagnostics = append(res.Diagnostics, msg)
		body.Append(ast.NewComment(msg))
	case *ir.Return:
		vals := make([]ast.RValue, len(t.Values))
		for i, v := range t.Values {
			vals[i] = locals.Local(v)
		}
		body.Append(&ast.Return{Values: vals})
	default:
		msg := fmt.Sprintf("unsupported terminator: %T", t)
		res.Diagnostics = append(res.Diagnostics, msg)
		body.Append(ast.NewComment(msg))
	}

	return body
}

func liftInner(in ir.Inner, idx int, node graph.NodeId, f *ir.Function, locals *LocalNamer, opens *ssa.UpvaluesOpen) ast.Statement {
	switch v := in.(type) {
	case *ir.LoadConstant:
		return ast.NewAssignLocal(locals.Local(v.Dest), liftConstant(v.Value))
	case *ir.Move:
		return ast.NewAssignLocal(locals.Local(v.Dest), locals.Local(v.Source))
	case *ir.Binary:
		return ast.NewAssignLocal(locals.Local(v.Dest), &ast.Binary{
			Op: liftBinaryOp(v.Op), Left: locals.Local(v.Left), Right: locals.Local(v.Right),
		})
	case *ir.Unary:
		return ast.NewAssignLocal(locals.Local(v.Dest), &ast.Unary{
			Op: liftUnaryOp(v.Op), Operand: locals.Local(v.Operand),
		})
	case *ir.Index:
		return ast.NewAssignLocal(locals.Local(v.Dest), &ast.Index{Table: locals.Local(v.Table), Key: locals.Local(v.Key)})
	case *ir.NewIndex:
		return &ast.Assign{
			Vars:   []ast.LValue{&ast.Index{Table: locals.Local(v.Table), Key: locals.Local(v.Key)}},
			Values: []ast.RValue{locals.Local(v.Value)},
		}
	case *ir.NewTable:
		return ast.NewAssignLocal(locals.Local(v.Dest), &ast.Table{})
	case *ir.Self:
		return ast.NewAssignLocal(locals.Local(v.Dest), &ast.Index{Table: locals.Local(v.Table), Key: locals.Local(v.Key)})
	case *ir.Call:
		args := make([]ast.RValue, len(v.Args))
		for i, a := range v.Args {
			args[i] = locals.Local(a)
		}
		call := &ast.Call{Target: locals.Local(v.Target), Args: args}
		if len(v.Dests) == 0 {
			return &ast.CallStatement{Call: call}
		}
		vars := make([]ast.LValue, len(v.Dests))
		vals := make([]ast.RValue, len(v.Dests))
		for i, d := range v.Dests {
			vars[i] = locals.Local(d)
			if i == 0 {
				vals[i] = call
			} else {
				vals[i] = &ast.Literal{Kind: ast.LitNil}
			}
		}
		return &ast.Assign{Vars: vars, Values: vals}
	case *ir.Concat:
		operands := make([]ast.RValue, len(v.Operands))
		for i, o := range v.Operands {
			operands[i] = locals.Local(o)
		}
		return ast.NewAssignLocal(locals.Local(v.Dest), concatChain(operands))
	case *ir.Closure:
		upvalues := make([]*ast.Local, len(v.Upvalues))
		for i, u := range v.Upvalues {
			captured := u
			if opens != nil {
				if open, ok := opens.FindOpen(f, node, idx, u); ok {
					captured = open
				}
			}
			upvalues[i] = locals.Local(captured)
		}
		return ast.NewAssignLocal(locals.Local(v.Dest), &ast.Closure{Upvalues: upvalues})
	case *ir.Close:
		closed := make([]*ast.Local, len(v.Locals))
		for i, l := range v.Locals {
			closed[i] = locals.Local(l)
		}
		return &ast.Close{Locals: closed}
	case *ir.GetGlobal:
		return ast.NewAssignLocal(locals.Local(v.Dest), &ast.Global{Name: v.Name})
	case *ir.SetGlobal:
		return &ast.Assign{Vars: []ast.LValue{&ast.Global{Name: v.Name}}, Values: []ast.RValue{locals.Local(v.Value)}}
	case *ir.GetUpvalue:
		return ast.NewAssignLocal(locals.Local(v.Dest), locals.UpvalueLocal(v.Index))
	case *ir.SetUpvalue:
		return &ast.Assign{
			Vars:   []ast.LValue{locals.UpvalueLocal(v.Index)},
			Values: []ast.RValue{locals.Local(v.Value)},
		}
	case *ir.VarArg:
		if len(v.Dests) == 0 {
			return nil
		}
		vars := make([]ast.LValue, len(v.Dests))
		vals := make([]ast.RValue, len(v.Dests))
		for i, d := range v.Dests {
			vars[i] = locals.Local(d)
			vals[i] = &ast.Global{Name: "..."}
		}
		return &ast.Assign{Vars: vars, Values: vals}
	default:
		return ast.NewComment(fmt.Sprintf("unsupported instruction: %T", in))
	}
}

// concatChain folds a Concat's N operands into a right-associative chain
// of Binary(BinConcat, ...) nodes, matching Lua's `..` associativity.
func concatChain(operands []ast.RValue) ast.RValue {
	if len(operands) == 0 {
		return &ast.Literal{Kind: ast.LitString, Str: ""}
	}
	result := operands[len(operands)-1]
	for i := len(operands) - 2; i >= 0; i-- {
		result = &ast.Binary{Op: ast.BinConcat, Left: operands[i], Right: result}
	}
	return result
}

func liftConstant(c ir.Constant) ast.RValue {
	switch c.Kind {
	case ir.ConstNil:
		return &ast.Literal{Kind: ast.LitNil}
	case ir.ConstBool:
		return &ast.Literal{Kind: ast.LitBool, Bool: c.Bool}
	case ir.ConstNumber:
		return &ast.Literal{Kind: ast.LitNumber, Num: c.Number}
	case ir.ConstString:
		return &ast.Literal{Kind: ast.LitString, Str: c.Str}
	default:
		return &ast.Literal{Kind: ast.LitNil}
	}
}

func liftBinaryOp(op ir.BinaryOp) ast.BinaryOp {
	switch op {
	case ir.OpAdd:
		return ast.BinAdd
	case ir.OpSub:
		return ast.BinSub
	case ir.OpMul:
		return ast.BinMul
	case ir.OpDiv:
		return ast.BinDiv
	case ir.OpMod:
		return ast.BinMod
	case ir.OpPow:
		return ast.BinPow
	case ir.OpConcat:
		return ast.BinConcat
	case ir.OpEqual:
		return ast.BinEqual
	case ir.OpLessThan:
		return ast.BinLessThan
	case ir.OpLessThanOrEqual:
		return ast.BinLessThanOrEqual
	case ir.OpAnd:
		return ast.BinAnd
	case ir.OpOr:
		return ast.BinOr
	default:
		return ast.BinAdd
	}
}

func liftUnaryOp(op ir.UnaryOp) ast.UnaryOp {
	switch op {
	case ir.OpMinus:
		return ast.UnMinus
	case ir.OpNot:
		return ast.UnNot
	case ir.OpLen:
		return ast.UnLen
	default:
		return ast.UnMinus
	}
}
