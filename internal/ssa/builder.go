package ssa

import (
	"fmt"

	"stvm/internal/bytecode"
	"stvm/internal/cfgraph"
)

// Build lifts cfg into SSA form. Construction assumes a reducible CFG (a
// loop has a single entry block dominating it), which every compiled
// Smalltalk method produces; an irreducible graph is outside spec.md's
// scope and is not detected here.
func Build(cfg *cfgraph.Graph) (*Graph, error) {
	bld := &builder{
		cfg:          cfg,
		g:            &Graph{CFG: cfg, BlockPhis: map[*cfgraph.BasicBlock][]*PhiNode{}, BlockTaus: map[*cfgraph.BasicBlock][]*TauNode{}},
		entryHeight:  map[*cfgraph.BasicBlock]int{},
		exitStack:    map[*cfgraph.BasicBlock][]Node{},
		pendingPhis:  map[*cfgraph.BasicBlock][]*PhiNode{},
		successorsOf: successorsOf(cfg),
	}
	if err := bld.computeHeights(); err != nil {
		return nil, err
	}
	order := reversePostorder(cfg, bld.successorsOf)
	for _, b := range order {
		if err := bld.processBlock(b); err != nil {
			return nil, err
		}
	}

	for _, nestedCFG := range cfg.Nested {
		nested, err := Build(nestedCFG)
		if err != nil {
			return nil, err
		}
		bld.g.Nested = append(bld.g.Nested, nested)
	}
	return bld.g, nil
}

type builder struct {
	cfg *cfgraph.Graph
	g   *Graph

	nextIndex int

	entryHeight  map[*cfgraph.BasicBlock]int
	exitStack    map[*cfgraph.BasicBlock][]Node
	pendingPhis  map[*cfgraph.BasicBlock][]*PhiNode
	successorsOf map[*cfgraph.BasicBlock][]*cfgraph.BasicBlock
}

// successorsOf inverts every block's Predecessors set into a forward
// adjacency map, since cfgraph only records edges in the backward
// direction.
func successorsOf(cfg *cfgraph.Graph) map[*cfgraph.BasicBlock][]*cfgraph.BasicBlock {
	out := make(map[*cfgraph.BasicBlock][]*cfgraph.BasicBlock)
	for _, b := range cfg.Blocks {
		b.Predecessors.Do(func(predID int) {
			pred := cfg.Blocks[predID]
			out[pred] = append(out[pred], b)
		})
	}
	return out
}

// reversePostorder walks cfg from its entry block and returns blocks in
// reverse-postorder, so a block is visited before any of its non-back-edge
// successors.
func reversePostorder(cfg *cfgraph.Graph, succ map[*cfgraph.BasicBlock][]*cfgraph.BasicBlock) []*cfgraph.BasicBlock {
	visited := make(map[*cfgraph.BasicBlock]bool, len(cfg.Blocks))
	var post []*cfgraph.BasicBlock

	var visit func(b *cfgraph.BasicBlock)
	visit = func(b *cfgraph.BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range succ[b] {
			visit(s)
		}
		post = append(post, b)
	}
	visit(cfg.Entry)

	// Any block unreachable from Entry (shouldn't occur given cfgraph's own
	// well-formedness, every block has a predecessor chain back to Entry)
	// is appended last so every block still gets processed.
	for _, b := range cfg.Blocks {
		visit(b)
	}

	rp := make([]*cfgraph.BasicBlock, len(post))
	for i, b := range post {
		rp[len(post)-1-i] = b
	}
	return rp
}

// stackEffect reports, for ins: reads (how many existing top-of-stack
// slots it consults, bottom-to-top), pops (how many of those it actually
// removes — duplicate and the two assigns read without removing), and
// produces (whether it pushes exactly one new value). Grounded directly on
// the interp package's handlers (handlers_usual.go, handlers_special.go,
// handlers_primitive.go), which are the authority on each opcode's
// runtime stack effect.
func stackEffect(ins bytecode.Instruction) (reads, pops int, produces bool) {
	switch ins.Opcode {
	case bytecode.OpPushInstance, bytecode.OpPushArgument, bytecode.OpPushTemporary,
		bytecode.OpPushLiteral, bytecode.OpPushConstant, bytecode.OpPushBlock:
		return 0, 0, true
	case bytecode.OpAssignInstance, bytecode.OpAssignTemporary:
		return 1, 0, false
	case bytecode.OpMarkArguments:
		n := int(ins.Argument)
		return n, n, true
	case bytecode.OpSendMessage, bytecode.OpSendUnary:
		return 1, 1, true
	case bytecode.OpSendBinary:
		return 2, 2, true
	case bytecode.OpDoPrimitive:
		// primArgs pops ins.Argument values and either pushes one result or
		// re-pushes them unchanged on soft failure; modeled here as the
		// common success shape.
		n := int(ins.Argument)
		return n, n, true
	case bytecode.OpDoSpecial:
		switch bytecode.Opcode(ins.Argument) {
		case bytecode.SpecialDuplicate:
			return 1, 0, true
		case bytecode.SpecialPopTop:
			return 1, 1, false
		case bytecode.SpecialSelfReturn, bytecode.SpecialBranch:
			return 0, 0, false
		case bytecode.SpecialStackReturn, bytecode.SpecialBlockReturn,
			bytecode.SpecialBranchIfTrue, bytecode.SpecialBranchIfFalse:
			return 1, 1, false
		case bytecode.SpecialSendToSuper:
			return 1, 1, true
		}
	}
	return 0, 0, false
}

func delta(ins bytecode.Instruction) int {
	_, pops, produces := stackEffect(ins)
	d := -pops
	if produces {
		d++
	}
	return d
}

// computeHeights runs a worklist fixpoint over operand-stack height,
// verifying every block's predecessors agree on the height they hand it —
// the invariant a bytecode verifier enforces and SSA construction depends
// on to know how many live slots a join block's phi set spans.
func (bld *builder) computeHeights() error {
	bld.entryHeight[bld.cfg.Entry] = 0
	worklist := []*cfgraph.BasicBlock{bld.cfg.Entry}

	for len(worklist) > 0 {
		b := worklist[0]
		worklist = worklist[1:]

		h := bld.entryHeight[b]
		for _, ins := range b.Instructions {
			h += delta(ins.Instruction)
		}

		for _, s := range bld.successorsOf[b] {
			if existing, ok := bld.entryHeight[s]; ok {
				if existing != h {
					return fmt.Errorf("ssa: operand stack height mismatch entering block at offset %d: %d vs %d", s.Start, existing, h)
				}
				continue
			}
			bld.entryHeight[s] = h
			worklist = append(worklist, s)
		}
	}
	return nil
}

func (bld *builder) newIndex() int {
	i := bld.nextIndex
	bld.nextIndex++
	return i
}

// resolveEntryStack builds b's entry stack by combining its predecessors'
// exit stacks slot by slot. A slot all already-processed predecessors
// agree on (and with no not-yet-processed predecessor, i.e. no open loop
// back-edge) reuses that provider directly; otherwise a PhiNode is
// inserted, filled in with whatever predecessors are already known and
// patched in later (via pendingPhis) as the rest are processed.
func (bld *builder) resolveEntryStack(b *cfgraph.BasicBlock) []Node {
	h := bld.entryHeight[b]
	if b == bld.cfg.Entry {
		return make([]Node, 0)
	}

	var preds []*cfgraph.BasicBlock
	b.Predecessors.Do(func(id int) { preds = append(preds, bld.cfg.Blocks[id]) })

	stack := make([]Node, h)
	for slot := 0; slot < h; slot++ {
		var distinct []Node
		seen := map[Node]bool{}
		complete := true
		for _, p := range preds {
			ex, ok := bld.exitStack[p]
			if !ok {
				complete = false
				continue
			}
			prov := ex[slot]
			if !seen[prov] {
				seen[prov] = true
				distinct = append(distinct, prov)
			}
		}

		if complete && len(distinct) == 1 {
			stack[slot] = distinct[0]
			continue
		}

		phi := &PhiNode{base: base{index: bld.newIndex(), block: b}, Slot: slot, Incoming: map[*cfgraph.BasicBlock]Node{}}
		for _, p := range preds {
			if ex, ok := bld.exitStack[p]; ok {
				phi.Incoming[p] = ex[slot]
			}
		}
		bld.g.Nodes = append(bld.g.Nodes, phi)
		bld.g.BlockPhis[b] = append(bld.g.BlockPhis[b], phi)
		if !complete {
			bld.pendingPhis[b] = append(bld.pendingPhis[b], phi)
		}
		stack[slot] = phi
	}
	return stack
}

// patchPending fills in any phi waiting on p's contribution, now that p's
// exit stack is known — the mechanism that lets a loop header's phis be
// created before the back-edge source has been processed.
func (bld *builder) patchPending(p *cfgraph.BasicBlock) {
	for _, s := range bld.successorsOf[p] {
		for _, phi := range bld.pendingPhis[s] {
			if _, ok := phi.Incoming[p]; !ok {
				phi.Incoming[p] = bld.exitStack[p][phi.Slot]
			}
		}
	}
}

func (bld *builder) processBlock(b *cfgraph.BasicBlock) error {
	stack := bld.resolveEntryStack(b)
	created := make([]*InstructionNode, len(b.Instructions))

	for i, pin := range b.Instructions {
		ins := pin.Instruction
		reads, pops, produces := stackEffect(ins)
		if reads > len(stack) {
			return fmt.Errorf("ssa: instruction at offset %d reads %d values, only %d on stack", pin.Pos, reads, len(stack))
		}

		args := append([]Node(nil), stack[len(stack)-reads:]...)
		node := &InstructionNode{base: base{index: bld.newIndex(), block: b}, Instruction: pin, Args: args}
		bld.g.Nodes = append(bld.g.Nodes, node)
		created[i] = node

		stack = stack[:len(stack)-pops]
		if produces {
			stack = append(stack, node)
		}

		if isConditionalSpecial(ins) && i > 0 {
			bld.maybeInsertTau(b, node, created[i-1])
		}
	}

	bld.exitStack[b] = stack
	bld.patchPending(b)
	return nil
}

func isConditionalSpecial(ins bytecode.Instruction) bool {
	return ins.Opcode == bytecode.OpDoSpecial &&
		(bytecode.Opcode(ins.Argument) == bytecode.SpecialBranchIfTrue ||
			bytecode.Opcode(ins.Argument) == bytecode.SpecialBranchIfFalse)
}

// maybeInsertTau checks whether the instruction right before a conditional
// branch was a sendUnary isNil/notNil test, and if so records a TauNode at
// the start of each of the branch's two successor blocks — spec.md §4.7
// "Tau nodes record type-assertion points (branches following
// isNil/class-checks)".
func (bld *builder) maybeInsertTau(b *cfgraph.BasicBlock, branch, prev *InstructionNode) {
	prevIns := prev.Instruction.Instruction
	if prevIns.Opcode != bytecode.OpSendUnary {
		return
	}
	isNilTau := bytecode.Opcode(prevIns.Argument) == bytecode.UnaryIsNil
	if !isNilTau && bytecode.Opcode(prevIns.Argument) != bytecode.UnaryNotNil {
		return
	}
	if len(prev.Args) == 0 {
		return
	}
	subject := prev.Args[0]

	ins := branch.Instruction.Instruction
	takenIdx := blockIndexAt(bld.cfg, int(ins.Extra))
	fallIdx := blockIndexAt(bld.cfg, branch.Instruction.End)
	if takenIdx < 0 || fallIdx < 0 {
		return
	}
	taken := bld.cfg.Blocks[takenIdx]
	fall := bld.cfg.Blocks[fallIdx]

	takenIsConditionTrue := bytecode.Opcode(ins.Argument) == bytecode.SpecialBranchIfTrue
	bld.addTau(taken, subject, prev, isNilTau, takenIsConditionTrue)
	bld.addTau(fall, subject, prev, isNilTau, !takenIsConditionTrue)
}

func (bld *builder) addTau(block *cfgraph.BasicBlock, subject Node, test *InstructionNode, isNilTau, whenTrue bool) {
	tau := &TauNode{
		base:     base{index: bld.newIndex(), block: block},
		Subject:  subject,
		Test:     test,
		IsNilTau: isNilTau,
		WhenTrue: whenTrue,
	}
	bld.g.Nodes = append(bld.g.Nodes, tau)
	bld.g.BlockTaus[block] = append(bld.g.BlockTaus[block], tau)
}

func blockIndexAt(cfg *cfgraph.Graph, offset int) int {
	for _, b := range cfg.Blocks {
		if b.Start == offset {
			return b.ID
		}
	}
	return -1
}
