// Package luadec wires the decompiler pipeline end to end: a Lua 5.1
// bytecode chunk in, structured Lua source text and diagnostics out.
//
// Decompile is the library surface. It chains the packages that make up
// the six-phase pipeline in order:
// bytecode.ReadChunk -> lualift.Lift -> ssa.Construct -> ssa.Prune ->
// ssa.ElideCopies -> lift.Lift -> restructure.Lift -> Block.String.
package luadec

import (
	"bytes"
	"fmt"

	"luadec/bytecode"
	"luadec/ir/ssa"
	"luadec/lift"
	"luadec/lualift"
	"luadec/restructure"
)

// DiagnosticKind tags the category of a recovered Diagnostic: the
// decompiler never aborts a run over a single unsupported construct, it
// records a Diagnostic and keeps going.
type DiagnosticKind int

const (
	UnsupportedTerminator DiagnosticKind = iota
	UnstructurableCFG
)

func (k DiagnosticKind) String() string {
	switch k {
	case UnsupportedTerminator:
		return "unsupported terminator"
	case UnstructurableCFG:
		return "unstructurable CFG"
	default:
		return "diagnostic"
	}
}

// Diagnostic is a non-fatal note surfaced both inline (as a Comment in the
// returned source) and structured, for callers that want more than text.
type Diagnostic struct {
	Kind    DiagnosticKind
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// Decompile runs the full pipeline over one Lua 5.1 chunk and returns its
// recovered source text plus any diagnostics collected along the way.
//
// Only the chunk's root prototype is lowered to source; nested prototypes
// (Lua closures) are represented in the output as opaque closure
// expressions rather than recursively decompiled function literals.
func Decompile(data []byte) (string, []Diagnostic, error) {
	proto, err := bytecode.ReadChunk(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("luadec: %w", err)
	}
	return DecompilePrototype(proto)
}

// DecompilePrototype runs the pipeline over an already-parsed Prototype,
// letting callers who hold multiple nested prototypes (from one chunk)
// decompile each independently.
func DecompilePrototype(proto *bytecode.Prototype) (string, []Diagnostic, error) {
	f, err := lualift.Lift(proto)
	if err != nil {
		return "", nil, fmt.Errorf("luadec: lifting bytecode: %w", err)
	}

	origins, err := ssa.ConstructTrackingOrigins(f)
	if err != nil {
		return "", nil, fmt.Errorf("luadec: constructing SSA: %w", err)
	}
	ssa.Prune(f)
	ssa.ElideCopies(f)

	// The upvalue-open analysis needs the final, post-prune/elide
	// instruction stream, since Prune's substitutions and ElideCopies'
	// moves can retarget which ValueId a Closure's captured upvalue or a
	// Close's operand names.
	opens := ssa.NewUpvaluesOpen(f, origins)

	locals := lift.NewLocalNamer()
	liftResult := lift.Lift(f, locals, opens)

	body, structureDiags, err := restructure.Lift(f, liftResult.Blocks)
	if err != nil {
		return "", nil, fmt.Errorf("luadec: restructuring CFG: %w", err)
	}

	var diags []Diagnostic
	for _, d := range liftResult.Diagnostics {
		diags = append(diags, Diagnostic{Kind: UnsupportedTerminator, Message: d})
	}
	for _, d := range structureDiags {
		diags = append(diags, Diagnostic{Kind: UnstructurableCFG, Message: d})
	}

	return body.String(), diags, nil
}
