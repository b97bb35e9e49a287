package ast

import "strings"

// Block is an ordered sequence of statements, Lua's surface-syntax chunk
// or do...end body. Callers use Statements directly or the Append/IsEmpty
// helpers below.
type Block struct {
	Statements []Statement
}

// NewBlock returns an empty block.
func NewBlock() *Block {
	return &Block{}
}

// BlockOf returns a block containing exactly stmts, in order.
func BlockOf(stmts ...Statement) *Block {
	return &Block{Statements: stmts}
}

// Append adds stmt to the end of the block.
func (b *Block) Append(stmt Statement) {
	b.Statements = append(b.Statements, stmt)
}

// Extend appends every statement of other to b, in order.
func (b *Block) Extend(other *Block) {
	if other == nil {
		return
	}
	b.Statements = append(b.Statements, other.Statements...)
}

// Prepend adds stmt to the front of the block.
func (b *Block) Prepend(stmt Statement) {
	b.Statements = append([]Statement{stmt}, b.Statements...)
}

// IsEmpty reports whether the block has no statements.
func (b *Block) IsEmpty() bool { return b == nil || len(b.Statements) == 0 }

// IsNoOp reports whether every statement in the block is a Comment, i.e.
// whether eliding the block entirely would change nothing at runtime.
func (b *Block) IsNoOp() bool {
	if b == nil {
		return true
	}
	for _, s := range b.Statements {
		if _, ok := s.(*Comment); !ok {
			return false
		}
	}
	return true
}

func (b *Block) String() string {
	if b == nil {
		return ""
	}
	parts := make([]string, len(b.Statements))
	for i, s := range b.Statements {
		parts[i] = s.String()
	}
	return strings.Join(parts, "\n")
}

// ValuesRead returns every Local read by any statement in the block, in
// order, including duplicates.
func (b *Block) ValuesRead() []*Local {
	if b == nil {
		return nil
	}
	var out []*Local
	for _, s := range b.Statements {
		out = append(out, s.ValuesRead()...)
	}
	return out
}

// ValuesWritten returns every Local written by any statement in the block.
func (b *Block) ValuesWritten() []*Local {
	if b == nil {
		return nil
	}
	var out []*Local
	for _, s := range b.Statements {
		out = append(out, s.ValuesWritten()...)
	}
	return out
}

// HasSideEffects reports whether any statement in the block has a side
// effect.
func (b *Block) HasSideEffects() bool {
	if b == nil {
		return false
	}
	for _, s := range b.Statements {
		if s.HasSideEffects() {
			return true
		}
	}
	return false
}

// Traverse calls visit once for every statement in the block, in order,
// and then visitRValue for every direct RValue child of that statement.
func (b *Block) Traverse(visit func(Statement), visitRValue func(RValue)) {
	if b == nil {
		return
	}
	for _, s := range b.Statements {
		visit(s)
		if visitRValue != nil {
			s.TraverseRValues(visitRValue)
		}
	}
}
