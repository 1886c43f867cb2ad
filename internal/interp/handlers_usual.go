package interp

import (
	"stvm/internal/bytecode"
	"stvm/internal/object"
)

// installStandardUsualHandlers wires the 12 usual opcodes (spec.md §4.5's
// one-line semantics table) into in.usual.
func installStandardUsualHandlers(in *Interpreter) {
	in.usual[bytecode.OpPushInstance] = usualPushInstance
	in.usual[bytecode.OpPushArgument] = usualPushArgument
	in.usual[bytecode.OpPushTemporary] = usualPushTemporary
	in.usual[bytecode.OpPushLiteral] = usualPushLiteral
	in.usual[bytecode.OpPushConstant] = usualPushConstant
	in.usual[bytecode.OpAssignInstance] = usualAssignInstance
	in.usual[bytecode.OpAssignTemporary] = usualAssignTemporary
	in.usual[bytecode.OpMarkArguments] = usualMarkArguments
	in.usual[bytecode.OpSendMessage] = usualSendMessage
	in.usual[bytecode.OpSendUnary] = usualSendUnary
	in.usual[bytecode.OpSendBinary] = usualSendBinary
	in.usual[bytecode.OpPushBlock] = usualPushBlock
}

func usualPushInstance(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	rt.Push(rt.InstanceVar(int(ins.Argument)))
	return nil
}

func usualPushArgument(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	rt.Push(rt.ArgumentVar(int(ins.Argument)))
	return nil
}

func usualPushTemporary(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	rt.Push(rt.TemporaryVar(int(ins.Argument)))
	return nil
}

func usualPushLiteral(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	rt.Push(rt.LiteralVar(int(ins.Argument)))
	return nil
}

// usualPushConstant pushes one of {0..9, nil, true, false} (spec.md §4.5,
// opcodes.h's pushConstants enum: nil=10, trueObject=11, falseObject=12).
func usualPushConstant(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	switch bytecode.Opcode(ins.Argument) {
	case bytecode.ConstantNil:
		rt.Push(rt.roots.Nil)
	case bytecode.ConstantTrue:
		rt.Push(rt.roots.True)
	case bytecode.ConstantFalse:
		rt.Push(rt.roots.False)
	default:
		rt.Push(object.SmallInt(int64(ins.Argument)))
	}
	return nil
}

func usualAssignInstance(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	rt.SetInstanceVar(int(ins.Argument), rt.Top(0))
	return nil
}

func usualAssignTemporary(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	rt.SetTemporaryVar(int(ins.Argument), rt.Top(0))
	return nil
}

// usualMarkArguments pops n values into a new Array and pushes the Array
// (spec.md §4.5). Values are popped highest-index-first, so the receiver
// (argument 0 of the eventual send, pushed first) is the last value popped
// and lands in slot 0 — matching the stack layout a send-message expects.
func usualMarkArguments(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	n := int(ins.Argument)
	arr, err := rt.NewOrdinary(rt.roots.ArrayClass, n)
	if err != nil {
		return err
	}
	for i := n - 1; i >= 0; i-- {
		arr.Slots[i] = rt.Pop()
	}
	rt.Push(object.FromHeap(arr))
	return nil
}

// usualSendMessage pops the arguments Array, looks up literal[i] (the
// selector) on the class of Array[0] (the receiver), and activates.
func usualSendMessage(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	selector := rt.LiteralVar(int(ins.Argument)).Heap().(*object.Symbol)
	args := rt.Pop().Heap().(*object.Ordinary)
	return activate(rt, in, selector, args)
}

// usualSendUnary pops the receiver, pushes isNil/notNil (opcodes.h's
// unaryBuiltIns enum).
func usualSendUnary(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	receiver := rt.Pop()
	isNil := receiver.Equal(rt.roots.Nil)
	switch bytecode.Opcode(ins.Argument) {
	case bytecode.UnaryIsNil:
		rt.Push(boolRef(rt, isNil))
	case bytecode.UnaryNotNil:
		rt.Push(boolRef(rt, !isNil))
	}
	return nil
}

func boolRef(rt *Runtime, b bool) object.Ref {
	if b {
		return rt.roots.True
	}
	return rt.roots.False
}

// usualSendBinary pops rhs then lhs; for tagged SmallInts it evaluates
// <, <=, + inline (the interpreter's own fast path, spec.md §4.5); for
// anything else it synthesizes a 2-element argument array and performs a
// real message send on the operator symbol.
func usualSendBinary(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	rhs := rt.Pop()
	lhs := rt.Pop()

	if lhs.IsSmallInt() && rhs.IsSmallInt() {
		a, b := lhs.SmallIntValue(), rhs.SmallIntValue()
		switch bytecode.Opcode(ins.Argument) {
		case bytecode.BinaryLess:
			rt.Push(boolRef(rt, a < b))
			return nil
		case bytecode.BinaryLessOrEqual:
			rt.Push(boolRef(rt, a <= b))
			return nil
		case bytecode.BinaryPlus:
			rt.Push(object.SmallInt(a + b))
			return nil
		}
	}

	selector := binarySelector(rt, bytecode.Opcode(ins.Argument))
	args, err := rt.NewOrdinary(rt.roots.ArrayClass, 2)
	if err != nil {
		return err
	}
	args.Slots[0] = lhs
	args.Slots[1] = rhs
	return activate(rt, in, selector, args)
}

func binarySelector(rt *Runtime, op bytecode.Opcode) *object.Symbol {
	switch op {
	case bytecode.BinaryLess:
		return rt.roots.OperatorLess
	case bytecode.BinaryLessOrEqual:
		return rt.roots.OperatorLessEq
	default:
		return rt.roots.OperatorPlus
	}
}

// usualPushBlock allocates a Block capturing the current context, then
// skips over the block's own bytecode range by jumping PC to ins.Extra
// (the offset past the block), matching "push-block al+pc" in spec.md's
// table: argumentLocation=al, startPC is the PC *before* the skip — the
// first bytecode of the block's body, where invocation resumes.
func usualPushBlock(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	startPC := rt.PC()
	blk, gc, err := rt.mgr.AllocateBlock(rt.CurrentContext(), int(ins.Argument), startPC)
	if err != nil {
		return err
	}
	if gc && rt.log != nil {
		rt.log.Debugf("collection occurred during pushBlock")
	}
	rt.SetPC(int(ins.Extra))
	rt.Push(object.FromHeap(blk))
	return nil
}
