package typeinfer

import (
	"fmt"

	"stvm/internal/bytecode"
	"stvm/internal/object"
	"stvm/internal/ssa"
)

// maxPasses bounds the fixpoint loop spec.md §4.8 describes ("fixpoint is
// reached when a full walk changes no instruction type"): the lattice is
// finite-height per node (Undefined < {Literal,Monotype,Array,Composite} <
// Polytype, and Composite/Array only grow by the number of distinct
// operand kinds reaching a join), so a bounded number of passes over the
// node list is enough to either converge or prove this graph doesn't.
const maxPasses = 64

// Analyze runs the forward walker to fixpoint over graph, producing one
// CallContext per graph (recursively, one per nested block-literal graph
// too — spec.md §4.7 treats each block body as its own stack-and-node
// space, so it gets its own type analysis). method supplies the literal
// pool pushLiteral reads from; it may be nil, in which case pushLiteral
// resolves to Undefined rather than a concrete value.
func Analyze(graph *ssa.Graph, method *object.Method, roots *object.Roots, arguments Type) (*CallContext, error) {
	ctx := newCallContext(arguments)
	a := &analyzer{ctx: ctx, method: method, roots: roots}

	changed := true
	for pass := 0; changed; pass++ {
		if pass >= maxPasses {
			return nil, fmt.Errorf("typeinfer: did not converge after %d passes", maxPasses)
		}
		changed = false
		for _, n := range graph.Nodes {
			if a.visit(n) {
				changed = true
			}
		}
	}

	for _, nestedGraph := range graph.Nested {
		nestedCtx, err := Analyze(nestedGraph, method, roots, Polytype)
		if err != nil {
			return nil, err
		}
		ctx.Nested = append(ctx.Nested, nestedCtx)
	}
	return ctx, nil
}

type analyzer struct {
	ctx    *CallContext
	method *object.Method
	roots  *object.Roots
}

func (a *analyzer) visit(n ssa.Node) bool {
	switch n.Kind() {
	case ssa.KindInstruction:
		return a.processInstruction(n.(*ssa.InstructionNode))
	case ssa.KindPhi:
		return a.processPhi(n.(*ssa.PhiNode))
	case ssa.KindTau:
		return a.processTau(n.(*ssa.TauNode))
	default:
		return false
	}
}

func (a *analyzer) typeOf(n ssa.Node) Type {
	if n == nil {
		return Undefined
	}
	return a.ctx.InstructionType(n.Index())
}

// processInstruction dispatches per opcode — spec.md §4.8's "mark-arguments
// → Array(subtypes of consumed nodes); send-unary → result of isNil/notNil
// folded when operand type is literal; send-binary → result type derived
// from operand types" plus the push-constant/push-literal/push-argument
// handling inference.h's declared-but-unbodied doPushConstant/doPushLiteral
// imply, and the pass-through/default rules for everything else the source
// leaves unspecialized.
func (a *analyzer) processInstruction(n *ssa.InstructionNode) bool {
	ins := n.Instruction.Instruction
	var t Type

	switch ins.Opcode {
	case bytecode.OpPushConstant:
		t = Literal(a.pushConstantValue(ins))
	case bytecode.OpPushLiteral:
		t = a.pushLiteralType(ins)
	case bytecode.OpPushArgument:
		t = a.ctx.ArgumentAt(int(ins.Argument))
	case bytecode.OpMarkArguments:
		elems := make([]Type, len(n.Args))
		for i, arg := range n.Args {
			elems[i] = a.typeOf(arg)
		}
		t = Array(elems)
	case bytecode.OpSendUnary:
		t = a.doSendUnary(n, ins)
	case bytecode.OpSendBinary:
		t = a.doSendBinary(n, ins)
	case bytecode.OpDoSpecial:
		t = a.doSpecial(n, ins)
	default:
		// pushInstance, pushTemporary, assignInstance, assignTemporary,
		// sendMessage, doPrimitive, pushBlock: no per-opcode rule is
		// specified anywhere in the retrieval pack, so these stay at
		// whatever they already joined to (Undefined until something
		// says otherwise).
		t = a.typeOf(n)
	}

	return a.ctx.setInstructionType(n.Index(), t)
}

func (a *analyzer) pushConstantValue(ins bytecode.Instruction) object.Ref {
	switch bytecode.Opcode(ins.Argument) {
	case bytecode.ConstantNil:
		return a.roots.Nil
	case bytecode.ConstantTrue:
		return a.roots.True
	case bytecode.ConstantFalse:
		return a.roots.False
	default:
		return object.SmallInt(int64(ins.Argument))
	}
}

func (a *analyzer) pushLiteralType(ins bytecode.Instruction) Type {
	if a.method == nil {
		return Undefined
	}
	i := int(ins.Argument)
	if i < 0 || i >= len(a.method.Literals) {
		return Undefined
	}
	return Literal(a.method.Literals[i])
}

func (a *analyzer) booleanType() Type {
	return Composite(Monotype(a.roots.ClassOf(a.roots.True)), Monotype(a.roots.ClassOf(a.roots.False)))
}

// doSendUnary folds isNil/notNil to a concrete boolean literal when the
// operand's type is already a concrete literal value; otherwise the result
// is simply "some boolean."
func (a *analyzer) doSendUnary(n *ssa.InstructionNode, ins bytecode.Instruction) Type {
	operand := a.typeOf(n.Args[0])
	if operand.Kind == KindLiteral {
		isNil := operand.Value.Equal(a.roots.Nil)
		result := isNil
		if bytecode.Opcode(ins.Argument) == bytecode.UnaryNotNil {
			result = !isNil
		}
		if result {
			return Literal(a.roots.True)
		}
		return Literal(a.roots.False)
	}
	return a.booleanType()
}

// doSendBinary derives the result type from both operands' types when both
// resolve to SmallInt; otherwise the result is a generic send whose return
// type this pass doesn't know (the interpreter's own inline fast path only
// fires for SmallInt/SmallInt — see internal/interp's usualSendBinary).
func (a *analyzer) doSendBinary(n *ssa.InstructionNode, ins bytecode.Instruction) Type {
	lhs, rhs := a.typeOf(n.Args[0]), a.typeOf(n.Args[1])
	if !a.isSmallInt(lhs) || !a.isSmallInt(rhs) {
		return Undefined
	}
	switch bytecode.Opcode(ins.Argument) {
	case bytecode.BinaryPlus:
		return Monotype(a.roots.SmallIntClass)
	case bytecode.BinaryLess, bytecode.BinaryLessOrEqual:
		return a.booleanType()
	default:
		return Undefined
	}
}

func (a *analyzer) isSmallInt(t Type) bool {
	switch t.Kind {
	case KindLiteral:
		return t.Value.IsSmallInt()
	case KindMonotype:
		return sameClass(t.Class, a.roots.SmallIntClass)
	default:
		return false
	}
}

// doSpecial handles duplicate (pass-through) and the three returns (fold
// into the call context's return type, spec.md §4.8 "a call context
// holds... the return type"). Every other special (popTop, the branches,
// sendToSuper) has no declared rule and stays Undefined.
func (a *analyzer) doSpecial(n *ssa.InstructionNode, ins bytecode.Instruction) Type {
	switch bytecode.Opcode(ins.Argument) {
	case bytecode.SpecialDuplicate:
		return a.typeOf(n.Args[0])
	case bytecode.SpecialSelfReturn:
		t := a.ctx.ArgumentAt(0)
		a.ctx.ReturnType = Join(a.ctx.ReturnType, t, a.classOfValue)
		return Undefined
	case bytecode.SpecialStackReturn, bytecode.SpecialBlockReturn:
		t := a.typeOf(n.Args[0])
		a.ctx.ReturnType = Join(a.ctx.ReturnType, t, a.classOfValue)
		return Undefined
	default:
		return Undefined
	}
}

func (a *analyzer) classOfValue(v object.Ref) *object.Class { return a.roots.ClassOf(v) }

// processPhi joins every incoming edge's current type — spec.md §4.7 "on
// PhiNode it joins incomings."
func (a *analyzer) processPhi(n *ssa.PhiNode) bool {
	t := Undefined
	for _, in := range n.Incoming {
		t = Join(t, a.typeOf(in), a.classOfValue)
	}
	return a.ctx.setInstructionType(n.Index(), t)
}

// processTau refines Subject's type along this edge when the preceding
// test was isNil/notNil and this is the edge where that held — spec.md
// §4.7 "on TauNode it refines the asserted operand's type along that
// edge." The refined type is recorded only as the tau node's own
// per-instruction type (internal/ssa never rewires a consumer's Args to
// point at a TauNode, so there is no further propagation to do).
func (a *analyzer) processTau(n *ssa.TauNode) bool {
	assertedNil := n.IsNilTau == n.WhenTrue
	var t Type
	if assertedNil {
		t = Literal(a.roots.Nil)
	} else {
		t = a.typeOf(n.Subject)
	}
	return a.ctx.setInstructionType(n.Index(), t)
}
