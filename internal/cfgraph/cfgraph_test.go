package cfgraph

import (
	"testing"

	"stvm/internal/bytecode"
)

// checkWellFormed asserts spec.md §8's "CFG well-formedness" invariants
// against every block in g, ignoring g.Nested (callers check those
// separately with their own offset space).
func checkWellFormed(t *testing.T, g *Graph, entryOffset int) {
	t.Helper()

	if g.Entry == nil {
		t.Fatal("graph has no entry block")
	}
	if g.Entry.Start != entryOffset {
		t.Fatalf("entry block starts at %d, want %d", g.Entry.Start, entryOffset)
	}

	starts := make(map[int]*BasicBlock, len(g.Blocks))
	for _, b := range g.Blocks {
		starts[b.Start] = b
	}

	for _, b := range g.Blocks {
		if len(b.Instructions) == 0 {
			t.Fatalf("block %d has no instructions", b.ID)
		}
		term := b.Terminator()
		if !term.IsTerminator() {
			t.Fatalf("block %d's terminator instruction %+v is not a terminator", b.ID, term)
		}
		if term.IsBranch() {
			if _, ok := starts[int(term.Extra)]; !ok {
				t.Fatalf("block %d branches to offset %d which is not a block start", b.ID, term.Extra)
			}
		}
		if b != g.Entry && b.Predecessors.Len() == 0 {
			t.Fatalf("non-entry block %d (start %d) has no predecessors", b.ID, b.Start)
		}
	}
}

func encodeSimpleReturn(t *testing.T) []byte {
	t.Helper()
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 1})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 2})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpSendBinary, Argument: uint8(bytecode.BinaryPlus)})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})
	return e.Bytes()
}

func TestParseStraightLineHasOneBlock(t *testing.T) {
	code := encodeSimpleReturn(t)

	g, err := Parse(code)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(g.Blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(g.Blocks))
	}
	checkWellFormed(t, g, 0)

	if len(g.Entry.Instructions) != 4 {
		t.Fatalf("entry block has %d instructions, want 4", len(g.Entry.Instructions))
	}
}

// TestParseConditionalBranchTwoSuccessors builds scenario 2 from spec.md §8
// (branch-false taken) and checks both the taken and fall-through edges are
// present.
func TestParseConditionalBranchTwoSuccessors(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: uint8(bytecode.ConstantFalse)})
	branchPos := e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialBranchIfFalse)})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 1})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})
	target := e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 2})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})
	e.PatchBranchTarget(branchPos, uint16(target))
	code := e.Bytes()

	g, err := Parse(code)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(g.Blocks) != 3 {
		t.Fatalf("got %d blocks, want 3 (entry, fall-through, taken-target)", len(g.Blocks))
	}
	checkWellFormed(t, g, 0)

	var fallThrough, taken *BasicBlock
	for _, b := range g.Blocks {
		if b.Start == target {
			taken = b
		} else if b != g.Entry {
			fallThrough = b
		}
	}
	if taken == nil || fallThrough == nil {
		t.Fatalf("expected both a fall-through and a taken-target block, got blocks: %+v", g.Blocks)
	}
	if !taken.Predecessors.Has(g.Entry.ID) {
		t.Errorf("taken-target block missing predecessor edge from entry")
	}
	if !fallThrough.Predecessors.Has(g.Entry.ID) {
		t.Errorf("fall-through block missing predecessor edge from entry")
	}
	if taken.Synthetic {
		t.Errorf("taken-target block should not be marked synthetic")
	}
}

// TestParseBackwardBranchToEntryRecordsSelfEdge builds a counting loop
// (pushTemporary, pushConstant 1, sendBinary +, assignTemporary, popTop,
// branch back to start) whose back-edge targets the entry itself, and checks
// the whole loop stays one block whose back-edge is recorded as a
// self-predecessor edge.
func TestParseBackwardBranchToEntryRecordsSelfEdge(t *testing.T) {
	e := bytecode.NewEncoder()
	loopStart := e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushTemporary, Argument: 0})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 1})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpSendBinary, Argument: uint8(bytecode.BinaryPlus)})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpAssignTemporary, Argument: 0})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialPopTop)})
	branchPos := e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialBranch)})
	e.PatchBranchTarget(branchPos, uint16(loopStart))
	code := e.Bytes()

	g, err := Parse(code)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(g.Blocks) != 1 {
		t.Fatalf("got %d blocks, want 1 (the whole loop body, since nothing but the back-edge itself targets loopStart and loopStart == entry)", len(g.Blocks))
	}
	checkWellFormed(t, g, loopStart)
	if !g.Entry.Predecessors.Has(g.Entry.ID) {
		t.Errorf("entry block missing self-predecessor edge from the back-branch")
	}
}

// TestParseFallthroughSynthesizesBranch builds a classic if/then/else/join
// shape where the "then" arm has no branch of its own and must fall
// straight through into the join block — the case spec.md §4.6 calls out
// as needing a synthesized unconditional branch. The else arm is laid out
// first (reached by falling past branchIfTrue) so that the then arm sits
// directly before the join block.
func TestParseFallthroughSynthesizesBranch(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: uint8(bytecode.ConstantTrue)})
	branchPos := e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialBranchIfTrue)})
	elseStart := len(e.Bytes())
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 2})
	branch2Pos := e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialBranch)})
	thenStart := len(e.Bytes())
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 1}) // then arm: no terminator
	joinStart := len(e.Bytes())
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})
	e.PatchBranchTarget(branchPos, uint16(thenStart))
	e.PatchBranchTarget(branch2Pos, uint16(joinStart))
	code := e.Bytes()

	g, err := Parse(code)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	checkWellFormed(t, g, 0)

	if len(g.Blocks) != 4 {
		t.Fatalf("got %d blocks, want 4 (entry, then, else, join)", len(g.Blocks))
	}

	then, ok := blockStartingAt(g, thenStart)
	if !ok {
		t.Fatalf("no block starts at the then-arm offset %d", thenStart)
	}
	join, ok := blockStartingAt(g, joinStart)
	if !ok {
		t.Fatalf("no block starts at the join offset %d", joinStart)
	}

	if !then.Synthetic {
		t.Errorf("then-arm block should have gained a synthesized fall-through branch")
	}
	term := then.Terminator()
	if !term.IsBranch() || int(term.Extra) != joinStart {
		t.Errorf("then-arm synthesized terminator = %+v, want a branch to offset %d", term, joinStart)
	}
	if !join.Predecessors.Has(then.ID) {
		t.Errorf("join block missing predecessor edge from the then-arm's synthesized branch")
	}

	elseBlk, ok := blockStartingAt(g, elseStart)
	if !ok {
		t.Fatalf("no block starts at the else-arm offset %d", elseStart)
	}
	if elseBlk.Synthetic {
		t.Errorf("else-arm block terminates with a real branch, should not be marked synthetic")
	}
	if !join.Predecessors.Has(elseBlk.ID) {
		t.Errorf("join block missing predecessor edge from the else-arm's real branch")
	}
}

func blockStartingAt(g *Graph, offset int) (*BasicBlock, bool) {
	for _, b := range g.Blocks {
		if b.Start == offset {
			return b, true
		}
	}
	return nil, false
}

// TestParseNestedBlockRecursesAndSkipsBody checks that a pushBlock literal's
// body is parsed as its own Graph in Nested, and that the outer graph's own
// instruction stream does not include the nested body's bytes.
func TestParseNestedBlockRecursesAndSkipsBody(t *testing.T) {
	e := bytecode.NewEncoder()
	blockPos := e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushBlock, Extra: 0})
	bodyStart := len(e.Bytes())
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 7})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialBlockReturn)})
	bodyStop := len(e.Bytes())
	e.PatchBranchTarget(blockPos, uint16(bodyStop))
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})
	code := e.Bytes()

	g, err := Parse(code)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	checkWellFormed(t, g, 0)
	if len(g.Nested) != 1 {
		t.Fatalf("got %d nested graphs, want 1", len(g.Nested))
	}
	for _, ins := range g.Entry.Instructions {
		if ins.Opcode == bytecode.OpDoSpecial && bytecode.Opcode(ins.Argument) == bytecode.SpecialBlockReturn {
			t.Errorf("outer block's instruction stream leaked the nested body's blockReturn")
		}
	}
	checkWellFormed(t, g.Nested[0], bodyStart)
}
