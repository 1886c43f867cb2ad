// Package ssa lifts a method's control-flow graph (internal/cfgraph) into
// the data-flow form spec.md §4.7 describes: one node per bytecode
// instruction, phi nodes where control-flow joins disagree on a stack
// slot's provider, and tau nodes at isNil/notNil branch points. This is the
// intermediate representation internal/typeinfer walks.
package ssa

import (
	"stvm/internal/bytecode"
	"stvm/internal/cfgraph"
)

// Kind distinguishes the three control-node shapes spec.md §4.7 and the
// source's inference.h ControlNode::NodeType enumerate.
type Kind int

const (
	KindInstruction Kind = iota
	KindPhi
	KindTau
)

func (k Kind) String() string {
	switch k {
	case KindInstruction:
		return "instruction"
	case KindPhi:
		return "phi"
	case KindTau:
		return "tau"
	default:
		return "kind?"
	}
}

// Node is any of InstructionNode, PhiNode, TauNode. Index is this node's
// position in Graph.Nodes, the same "node index" inference.h's CallContext
// uses to store one inferred Type per node.
type Node interface {
	Index() int
	Kind() Kind
	Block() *cfgraph.BasicBlock
}

type base struct {
	index int
	block *cfgraph.BasicBlock
}

func (b *base) Index() int                   { return b.index }
func (b *base) Block() *cfgraph.BasicBlock   { return b.block }

// InstructionNode wraps one decoded instruction together with the
// producers of the operand-stack values it reads, in bottom-to-top order
// (Args[0] is the deepest value read, matching the interpreter's own
// slot order for markArguments/primArgs, where the deepest value lands in
// index 0).
type InstructionNode struct {
	base
	Instruction bytecode.PositionedInstruction
	Args        []Node
}

func (n *InstructionNode) Kind() Kind { return KindInstruction }

// PhiNode selects among predecessor-block providers for one operand-stack
// slot at a control-flow join. Slot is a position within the block's entry
// stack (0 = bottommost of the live portion), not an absolute stack depth.
type PhiNode struct {
	base
	Slot     int
	Incoming map[*cfgraph.BasicBlock]Node
}

func (n *PhiNode) Kind() Kind { return KindPhi }

// TauNode records a type assertion that holds from the start of its Block
// onward: Subject is known to be nil (or not nil) because Test, the
// sendUnary isNil/notNil instruction that precedes the branch into this
// block, evaluated the way WhenTrue says it did.
type TauNode struct {
	base
	Subject  Node
	Test     *InstructionNode
	IsNilTau bool // Test tested isNil (true) or notNil (false)
	WhenTrue bool // this block is the edge taken when Test's result was true
}

func (n *TauNode) Kind() Kind { return KindTau }

// Graph is one method's (or one block literal's) SSA form over its CFG.
type Graph struct {
	CFG   *cfgraph.Graph
	Nodes []Node

	BlockPhis map[*cfgraph.BasicBlock][]*PhiNode
	BlockTaus map[*cfgraph.BasicBlock][]*TauNode

	// Nested holds one Graph per cfgraph.Graph.Nested entry, each built
	// independently against its own, separately-tracked operand stack
	// (spec.md §4.7 applies block-by-block; a block literal's body does
	// not share its enclosing method's stack state).
	Nested []*Graph
}
