package ast

import "testing"

func TestBlockAppendExtendPrepend(t *testing.T) {
	b := NewBlock()
	first := NewComment("first")
	b.Append(first)
	if len(b.Statements) != 1 || b.Statements[0] != Statement(first) {
		t.Fatalf("Append: got %v", b.Statements)
	}

	other := BlockOf(NewComment("a"), NewComment("b"))
	b.Extend(other)
	if len(b.Statements) != 3 {
		t.Fatalf("Extend: expected 3 statements, got %d", len(b.Statements))
	}

	lead := NewComment("lead")
	b.Prepend(lead)
	if len(b.Statements) != 4 || b.Statements[0] != Statement(lead) {
		t.Fatalf("Prepend: expected lead first, got %v", b.Statements)
	}
}

func TestBlockExtendNilIsNoOp(t *testing.T) {
	b := BlockOf(NewComment("x"))
	b.Extend(nil)
	if len(b.Statements) != 1 {
		t.Fatalf("Extend(nil): expected unchanged block, got %v", b.Statements)
	}
}

func TestBlockIsEmptyNilSafe(t *testing.T) {
	var nilBlock *Block
	if !nilBlock.IsEmpty() {
		t.Fatalf("expected a nil *Block to be empty")
	}
	if !NewBlock().IsEmpty() {
		t.Fatalf("expected a freshly built block to be empty")
	}
	if BlockOf(NewComment("x")).IsEmpty() {
		t.Fatalf("expected a block with a statement to be non-empty")
	}
}

func TestBlockIsNoOp(t *testing.T) {
	var nilBlock *Block
	if !nilBlock.IsNoOp() {
		t.Fatalf("expected a nil *Block to be a no-op")
	}
	if !BlockOf(NewComment("a"), NewComment("b")).IsNoOp() {
		t.Fatalf("expected a block of only comments to be a no-op")
	}
	local := NewLocal("v1")
	mixed := BlockOf(NewComment("a"), NewAssignLocal(local, &Literal{Kind: LitNil}))
	if mixed.IsNoOp() {
		t.Fatalf("expected a block with a non-comment statement to not be a no-op")
	}
}

func TestBlockValuesReadWrittenHasSideEffectsDelegate(t *testing.T) {
	var nilBlock *Block
	if nilBlock.ValuesRead() != nil || nilBlock.ValuesWritten() != nil || nilBlock.HasSideEffects() {
		t.Fatalf("expected nil-safe zero values from a nil *Block")
	}

	x := NewLocal("x")
	y := NewLocal("y")
	b := BlockOf(
		NewAssignLocal(x, &Literal{Kind: LitNumber, Num: 1}),
		NewAssignLocal(y, x),
		&CallStatement{Call: &Call{Target: y}},
	)

	read := b.ValuesRead()
	if len(read) != 2 || read[0] != x || read[1] != y {
		t.Fatalf("expected ValuesRead to surface x (read by the second assign) then y (read by the call), got %v", read)
	}
	written := b.ValuesWritten()
	if len(written) != 2 || written[0] != x || written[1] != y {
		t.Fatalf("expected ValuesWritten to surface x then y in order, got %v", written)
	}
	if !b.HasSideEffects() {
		t.Fatalf("expected the trailing CallStatement to make the block side-effecting")
	}
}

func TestBlockTraverseVisitsEveryStatementAndItsRValues(t *testing.T) {
	x := NewLocal("x")
	b := BlockOf(
		NewAssignLocal(x, &Literal{Kind: LitNumber, Num: 1}),
		&Return{Values: []RValue{x}},
	)

	var stmts []Statement
	var rvalues []RValue
	b.Traverse(func(s Statement) { stmts = append(stmts, s) }, func(v RValue) { rvalues = append(rvalues, v) })

	if len(stmts) != 2 {
		t.Fatalf("expected visit to be called once per statement, got %d", len(stmts))
	}
	if len(rvalues) != 3 {
		// Assign visits its one Var and one Value; Return visits its one Value.
		t.Fatalf("expected 3 direct RValue children across both statements, got %d: %v", len(rvalues), rvalues)
	}
}

func TestBlockTraverseNilVisitRValueIsOptional(t *testing.T) {
	b := BlockOf(&Return{})
	b.Traverse(func(s Statement) {}, nil) // must not panic
}

func TestBlockStringJoinsStatementsWithNewlines(t *testing.T) {
	b := BlockOf(NewComment("a"), NewComment("b"))
	want := "-- a\n-- b"
	if got := b.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
