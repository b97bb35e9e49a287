package ast

import "testing"

func TestLocalIdentityAndAsymmetricReadWrite(t *testing.T) {
	a := NewLocal("v1")
	b := NewLocal("v1") // same display name, different identity

	if a == b {
		t.Fatalf("two separately allocated Locals with the same name must not be identity-equal")
	}
	if a.Name() != "v1" || a.String() != "v1" {
		t.Fatalf("unexpected Name/String: %q / %q", a.Name(), a.String())
	}

	// As an RValue, reading `a` reads a and writes nothing.
	if read := a.ValuesRead(); len(read) != 1 || read[0] != a {
		t.Fatalf("expected a Local to read itself, got %v", read)
	}
	if a.ValuesWritten() != nil {
		t.Fatalf("a Local used as an RValue must never report itself as written")
	}
}

func TestGlobalIsInertAndIsAnLValue(t *testing.T) {
	g := &Global{Name: "print"}
	if g.String() != "print" {
		t.Fatalf("String() = %q, want %q", g.String(), "print")
	}
	if g.ValuesRead() != nil || g.ValuesWritten() != nil || g.HasSideEffects() {
		t.Fatalf("a Global reference carries no Local reads/writes and no side effect of its own")
	}
	var _ LValue = g
}

func TestLiteralStringsByKind(t *testing.T) {
	cases := []struct {
		lit  *Literal
		want string
	}{
		{&Literal{Kind: LitNil}, "nil"},
		{&Literal{Kind: LitBool, Bool: true}, "true"},
		{&Literal{Kind: LitBool, Bool: false}, "false"},
		{&Literal{Kind: LitNumber, Num: 3.5}, "3.5"},
		{&Literal{Kind: LitString, Str: "hi"}, `"hi"`},
	}
	for _, c := range cases {
		if got := c.lit.String(); got != c.want {
			t.Errorf("Literal{%+v}.String() = %q, want %q", c.lit, got, c.want)
		}
	}
}

func TestBinaryParenthesizesLowerPrecedenceChild(t *testing.T) {
	a, b, c := NewLocal("a"), NewLocal("b"), NewLocal("c")
	// An Or (precedence 1) child under an And (precedence 2) parent binds
	// looser, so it picks up parens; atoms never do.
	or := &Binary{Op: BinOr, Left: a, Right: b}
	and := &Binary{Op: BinAnd, Left: or, Right: c}
	if got, want := and.String(), "(a or b) and c"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	// And binds tighter than Or, so as a child of Or it needs no grouping.
	and2 := &Binary{Op: BinAnd, Left: a, Right: b}
	or2 := &Binary{Op: BinOr, Left: and2, Right: c}
	if got, want := or2.String(), "a and b or c"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestUnaryParenthesizesLowerPrecedenceOperand(t *testing.T) {
	a, b := NewLocal("a"), NewLocal("b")
	or := &Binary{Op: BinOr, Left: a, Right: b}
	not := &Unary{Op: UnNot, Operand: or}
	if got, want := not.String(), "not (a or b)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	// A bare atom operand outranks the unary operator: no parens.
	plain := &Unary{Op: UnMinus, Operand: a}
	if got, want := plain.String(), "-a"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestIndexParenthesizesOperatorTableOperand(t *testing.T) {
	// `a or b[k]` parses as `a or (b[k])`; indexing the result of an
	// operator expression therefore must group it.
	a, b, k := NewLocal("a"), NewLocal("b"), NewLocal("k")
	or := &Binary{Op: BinOr, Left: a, Right: b}
	idx := &Index{Table: or, Key: k}
	if got, want := idx.String(), "(a or b)[k]"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	// An atom table operand stays bare.
	plain := &Index{Table: b, Key: k}
	if got, want := plain.String(), "b[k]"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestCallAlwaysHasSideEffects(t *testing.T) {
	f := NewLocal("f")
	call := &Call{Target: f}
	if !call.HasSideEffects() {
		t.Fatalf("a Call must always report a side effect, even with no arguments")
	}
}

func TestIndexIsNeverWrittenAsALocal(t *testing.T) {
	tbl, key := NewLocal("t"), NewLocal("k")
	idx := &Index{Table: tbl, Key: key}
	if idx.ValuesWritten() != nil {
		t.Fatalf("Index must never report a written Local")
	}
	read := idx.ValuesRead()
	if len(read) != 2 || read[0] != tbl || read[1] != key {
		t.Fatalf("expected Index to read its Table then Key, got %v", read)
	}
}
