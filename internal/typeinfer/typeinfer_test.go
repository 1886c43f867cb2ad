package typeinfer

import (
	"testing"

	"stvm/internal/bytecode"
	"stvm/internal/cfgraph"
	"stvm/internal/object"
	"stvm/internal/ssa"
)

func newTestRoots(t *testing.T) *object.Roots {
	t.Helper()
	return object.NewRoots(func(class *object.Class, slots int) *object.Ordinary {
		return &object.Ordinary{Header: object.Header{Class: class, Size: slots}, Slots: make([]object.Ref, slots)}
	})
}

func buildGraph(t *testing.T, code []byte) *ssa.Graph {
	t.Helper()
	cfg, err := cfgraph.Parse(code)
	if err != nil {
		t.Fatalf("cfgraph.Parse: %v", err)
	}
	g, err := ssa.Build(cfg)
	if err != nil {
		t.Fatalf("ssa.Build: %v", err)
	}
	return g
}

// TestIntegerAddInfersSmallIntReturn mirrors spec.md §8 scenario 1's
// bytecode and checks the analyzer resolves the return type to
// Monotype(SmallInt) by folding two literal pushes through sendBinary +.
func TestIntegerAddInfersSmallIntReturn(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 1})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 2})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpSendBinary, Argument: uint8(bytecode.BinaryPlus)})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})

	roots := newTestRoots(t)
	g := buildGraph(t, e.Bytes())

	ctx, err := Analyze(g, nil, roots, Polytype)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if ctx.ReturnType.Kind != KindMonotype || ctx.ReturnType.Class != roots.SmallIntClass {
		t.Fatalf("return type = %+v, want Monotype(SmallInt)", ctx.ReturnType)
	}
}

// TestIsNilFoldsLiteralNilToTrue checks sendUnary isNil against a literal
// nil operand folds to the literal True, per spec.md §4.8's "result of
// isNil/notNil folded when operand type is literal."
func TestIsNilFoldsLiteralNilToTrue(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: uint8(bytecode.ConstantNil)})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpSendUnary, Argument: uint8(bytecode.UnaryIsNil)})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})

	roots := newTestRoots(t)
	g := buildGraph(t, e.Bytes())

	ctx, err := Analyze(g, nil, roots, Polytype)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if ctx.ReturnType.Kind != KindLiteral || !ctx.ReturnType.Value.Equal(roots.True) {
		t.Fatalf("return type = %+v, want Literal(true)", ctx.ReturnType)
	}
}

// TestPhiOfDisagreeingLiteralsJoinsToMonotype builds the if/then/else/join
// shape (same construction as internal/ssa's own join test): one arm
// returns SmallInt 1, the other SmallInt 2, so the phi feeding the shared
// stackReturn should join to Monotype(SmallInt), not stay a single literal.
func TestPhiOfDisagreeingLiteralsJoinsToMonotype(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: uint8(bytecode.ConstantTrue)})
	branchPos := e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialBranchIfTrue)})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 2})
	branch2Pos := e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialBranch)})
	thenStart := len(e.Bytes())
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 1})
	joinStart := len(e.Bytes())
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})
	e.PatchBranchTarget(branchPos, uint16(thenStart))
	e.PatchBranchTarget(branch2Pos, uint16(joinStart))

	roots := newTestRoots(t)
	g := buildGraph(t, e.Bytes())

	ctx, err := Analyze(g, nil, roots, Polytype)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if ctx.ReturnType.Kind != KindMonotype || ctx.ReturnType.Class != roots.SmallIntClass {
		t.Fatalf("return type = %+v, want Monotype(SmallInt) (1 and 2 share a class)", ctx.ReturnType)
	}
}

// TestMonotonicityAcrossRepeatedRuns checks spec.md §8's "repeated runs of
// the analyzer on the same graph and same argument type yield identical
// per-instruction types."
func TestMonotonicityAcrossRepeatedRuns(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushArgument, Argument: 0})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpSendUnary, Argument: uint8(bytecode.UnaryIsNil)})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})

	roots := newTestRoots(t)
	g := buildGraph(t, e.Bytes())

	args := Array([]Type{Monotype(roots.SmallIntClass)})

	ctx1, err := Analyze(g, nil, roots, args)
	if err != nil {
		t.Fatalf("Analyze (run 1): %v", err)
	}
	ctx2, err := Analyze(g, nil, roots, args)
	if err != nil {
		t.Fatalf("Analyze (run 2): %v", err)
	}
	if !typesEqual(ctx1.ReturnType, ctx2.ReturnType) {
		t.Fatalf("return type differs across runs: %+v vs %+v", ctx1.ReturnType, ctx2.ReturnType)
	}
}

// TestMoreConcreteArgumentNeverLessConcreteReturn checks the other half of
// spec.md §8's monotonicity property: feeding a strictly more concrete
// argument type (a literal SmallInt instead of a bare Monotype) must not
// make the inferred return type less concrete.
func TestMoreConcreteArgumentNeverLessConcreteReturn(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushArgument, Argument: 0})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpSendUnary, Argument: uint8(bytecode.UnaryIsNil)})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})

	roots := newTestRoots(t)
	g := buildGraph(t, e.Bytes())

	vague := Array([]Type{Monotype(roots.SmallIntClass)})
	precise := Array([]Type{Literal(object.SmallInt(5))})

	vagueCtx, err := Analyze(g, nil, roots, vague)
	if err != nil {
		t.Fatalf("Analyze (vague): %v", err)
	}
	preciseCtx, err := Analyze(g, nil, roots, precise)
	if err != nil {
		t.Fatalf("Analyze (precise): %v", err)
	}

	if MoreConcrete(vagueCtx.ReturnType, preciseCtx.ReturnType) {
		t.Fatalf("a less concrete argument produced a more concrete return: vague=%+v precise=%+v", vagueCtx.ReturnType, preciseCtx.ReturnType)
	}
}
