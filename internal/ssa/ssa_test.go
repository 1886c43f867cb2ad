package ssa

import (
	"testing"

	"stvm/internal/bytecode"
	"stvm/internal/cfgraph"
)

func build(t *testing.T, code []byte) *Graph {
	t.Helper()
	cfg, err := cfgraph.Parse(code)
	if err != nil {
		t.Fatalf("cfgraph.Parse: %v", err)
	}
	g, err := Build(cfg)
	if err != nil {
		t.Fatalf("ssa.Build: %v", err)
	}
	return g
}

func TestStraightLineNoPhi(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 1})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 2})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpSendBinary, Argument: uint8(bytecode.BinaryPlus)})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})

	g := build(t, e.Bytes())

	if len(g.BlockPhis) != 0 {
		t.Fatalf("straight-line code should need no phis, got %d blocks with phis", len(g.BlockPhis))
	}

	var send, ret *InstructionNode
	for _, n := range g.Nodes {
		in, ok := n.(*InstructionNode)
		if !ok {
			continue
		}
		switch in.Instruction.Opcode {
		case bytecode.OpSendBinary:
			send = in
		case bytecode.OpDoSpecial:
			ret = in
		}
	}
	if send == nil || ret == nil {
		t.Fatal("expected to find the sendBinary and stackReturn nodes")
	}
	if len(send.Args) != 2 {
		t.Fatalf("sendBinary has %d args, want 2", len(send.Args))
	}
	if len(ret.Args) != 1 || ret.Args[0] != Node(send) {
		t.Fatalf("stackReturn should read the sendBinary's result directly, got %v", ret.Args)
	}
}

// TestJoinWithDisagreeingProvidersInsertsPhi builds the if/then/else/join
// shape (same as cfgraph's fall-through test) and checks the join block
// gets exactly one phi, fed by both arms' distinct pushConstant nodes.
func TestJoinWithDisagreeingProvidersInsertsPhi(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: uint8(bytecode.ConstantTrue)})
	branchPos := e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialBranchIfTrue)})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 2}) // else: branches to join
	branch2Pos := e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialBranch)})
	thenStart := len(e.Bytes())
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 1}) // then: falls through into join
	joinStart := len(e.Bytes())
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})
	e.PatchBranchTarget(branchPos, uint16(thenStart))
	e.PatchBranchTarget(branch2Pos, uint16(joinStart))

	g := build(t, e.Bytes())

	var joinBlock *cfgraph.BasicBlock
	for b := range g.BlockPhis {
		joinBlock = b
	}
	if joinBlock == nil {
		t.Fatal("expected exactly one block with a phi (the join block)")
	}
	phis := g.BlockPhis[joinBlock]
	if len(phis) != 1 {
		t.Fatalf("join block has %d phis, want 1", len(phis))
	}
	phi := phis[0]
	if len(phi.Incoming) != 2 {
		t.Fatalf("phi has %d incoming edges, want 2", len(phi.Incoming))
	}

	seen := map[int]bool{}
	for _, v := range phi.Incoming {
		in, ok := v.(*InstructionNode)
		if !ok || in.Instruction.Opcode != bytecode.OpPushConstant {
			t.Fatalf("phi incoming value %v is not a pushConstant node", v)
		}
		seen[int(in.Instruction.Argument)] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("phi should combine the then-arm's 1 and the else-arm's 2, got %v", seen)
	}

	// The stackReturn in the join block should read the phi, not either
	// arm's constant directly.
	for _, n := range g.Nodes {
		in, ok := n.(*InstructionNode)
		if !ok || in.Instruction.Opcode != bytecode.OpDoSpecial {
			continue
		}
		if bytecode.Opcode(in.Instruction.Argument) == bytecode.SpecialStackReturn {
			if len(in.Args) != 1 || in.Args[0] != Node(phi) {
				t.Fatalf("stackReturn should read the phi, got %v", in.Args)
			}
		}
	}
}

// TestLoopBackEdgePhiPatchedAfterProcessing builds a loop that keeps one
// live value on the operand stack across iterations — pushConstant 0 feeds
// the loop header from the entry block; inside the loop, pushConstant 1 /
// sendBinary + replaces that value with its successor, and an unconditional
// branch closes the back edge. The loop header's one live stack slot must
// get a phi whose back-edge incoming value is only known once the header
// itself (its own predecessor) has finished processing.
func TestLoopBackEdgePhiPatchedAfterProcessing(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 0})
	loopStart := len(e.Bytes())
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 1})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpSendBinary, Argument: uint8(bytecode.BinaryPlus)})
	branchPos := e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialBranch)})
	e.PatchBranchTarget(branchPos, uint16(loopStart))
	code := e.Bytes()

	g := build(t, code)

	var loopHeader *cfgraph.BasicBlock
	for _, b := range g.CFG.Blocks {
		if b.Start == loopStart {
			loopHeader = b
		}
	}
	if loopHeader == nil {
		t.Fatal("expected a block starting at the loop header offset")
	}

	phis := g.BlockPhis[loopHeader]
	if len(phis) != 1 {
		t.Fatalf("loop header has %d phis, want 1", len(phis))
	}
	if len(phis[0].Incoming) != 2 {
		t.Fatalf("loop header phi has %d incoming edges, want 2 (entry + back-edge)", len(phis[0].Incoming))
	}
	if _, ok := phis[0].Incoming[loopHeader]; !ok {
		t.Fatalf("loop header phi missing its self back-edge incoming value")
	}
}

// TestIsNilBranchInsertsTauOnBothEdges checks that a sendUnary isNil
// immediately followed by a conditional branch produces a tau node on each
// successor block, with opposite WhenTrue polarity.
func TestIsNilBranchInsertsTauOnBothEdges(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushTemporary, Argument: 0})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpSendUnary, Argument: uint8(bytecode.UnaryIsNil)})
	branchPos := e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialBranchIfTrue)})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 1})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})
	target := len(e.Bytes())
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 2})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})
	e.PatchBranchTarget(branchPos, uint16(target))

	g := build(t, e.Bytes())

	var taus []*TauNode
	for _, n := range g.Nodes {
		if tau, ok := n.(*TauNode); ok {
			taus = append(taus, tau)
		}
	}
	if len(taus) != 2 {
		t.Fatalf("got %d tau nodes, want 2 (one per successor edge)", len(taus))
	}
	if taus[0].WhenTrue == taus[1].WhenTrue {
		t.Fatalf("the two tau nodes should have opposite polarity, got %v and %v", taus[0].WhenTrue, taus[1].WhenTrue)
	}
	for _, tau := range taus {
		if !tau.IsNilTau {
			t.Errorf("tau node should be an isNil tau")
		}
		if tau.Subject == nil {
			t.Errorf("tau node missing its subject")
		}
	}
}
