package interp

import (
	"stvm/internal/bytecode"
	"stvm/internal/mm"
	"stvm/internal/object"
)

// Primitive numbers from opcodes.h's `primitive` namespace, restricted to
// the subset spec.md §1 says the interpreter invokes inline: integer
// arithmetic, object allocation, equality. I/O, string/array primitives,
// and process control are peripheral and not implemented here.
const (
	primObjectsAreEqual = 1
	primGetClass        = 2
	primAllocateObject  = 7
	primBlockInvoke     = 8

	primSmallIntAdd   = 10
	primSmallIntDiv   = 11
	primSmallIntMod   = 12
	primSmallIntLess  = 13
	primSmallIntEqual = 14
	primSmallIntMul   = 15
	primSmallIntSub   = 16

	primSmallIntBitOr    = 36
	primSmallIntBitAnd   = 37
	primSmallIntBitShift = 39
)

func installStandardPrimitiveHandlers(in *Interpreter) {
	in.primitive[primObjectsAreEqual] = primitiveObjectsAreEqual
	in.primitive[primGetClass] = primitiveGetClass
	in.primitive[primAllocateObject] = primitiveAllocateObject
	in.primitive[primBlockInvoke] = primitiveBlockInvoke

	in.primitive[primSmallIntAdd] = smallIntArith(func(a, b int64) (int64, bool) { return a + b, true })
	in.primitive[primSmallIntSub] = smallIntArith(func(a, b int64) (int64, bool) { return a - b, true })
	in.primitive[primSmallIntMul] = smallIntArith(func(a, b int64) (int64, bool) { return a * b, true })
	in.primitive[primSmallIntDiv] = smallIntArith(func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		return a / b, true
	})
	in.primitive[primSmallIntMod] = smallIntArith(func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		return a % b, true
	})
	in.primitive[primSmallIntBitOr] = smallIntArith(func(a, b int64) (int64, bool) { return a | b, true })
	in.primitive[primSmallIntBitAnd] = smallIntArith(func(a, b int64) (int64, bool) { return a & b, true })
	in.primitive[primSmallIntBitShift] = smallIntArith(func(a, b int64) (int64, bool) {
		if b >= 0 {
			return a << uint(b), true
		}
		return a >> uint(-b), true
	})

	in.primitive[primSmallIntLess] = smallIntCompare(func(a, b int64) bool { return a < b })
	in.primitive[primSmallIntEqual] = smallIntCompare(func(a, b int64) bool { return a == b })
}

// primArgs pops n values, highest-index-first, so the slice keeps the
// values in the order they were pushed, preserving original order for
// a re-push on the soft-failure path (spec.md §7 PrimitiveFailure: "the
// caller pushes the primitive's arguments back and continues").
func primArgs(rt *Runtime, n int) []object.Ref {
	args := make([]object.Ref, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = rt.Pop()
	}
	return args
}

func rePush(rt *Runtime, args []object.Ref) {
	for _, a := range args {
		rt.Push(a)
	}
}

// smallIntArith builds a primitive handler for a two-argument (receiver,
// argument) SmallInt arithmetic operation. Either operand not being a
// tagged SmallInt, or op reporting failure (division by zero), is a soft
// PrimitiveFailure: the arguments go back on the stack unchanged and the
// method's own Smalltalk-level fallback runs next.
func smallIntArith(op func(a, b int64) (int64, bool)) Handler {
	return func(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
		args := primArgs(rt, int(ins.Argument))
		if len(args) != 2 || !args[0].IsSmallInt() || !args[1].IsSmallInt() {
			rePush(rt, args)
			return nil
		}
		result, ok := op(args[0].SmallIntValue(), args[1].SmallIntValue())
		if !ok {
			rePush(rt, args)
			return nil
		}
		rt.Push(object.SmallInt(result))
		return nil
	}
}

func smallIntCompare(cmp func(a, b int64) bool) Handler {
	return func(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
		args := primArgs(rt, int(ins.Argument))
		if len(args) != 2 || !args[0].IsSmallInt() || !args[1].IsSmallInt() {
			rePush(rt, args)
			return nil
		}
		rt.Push(boolRef(rt, cmp(args[0].SmallIntValue(), args[1].SmallIntValue())))
		return nil
	}
}

// primitiveObjectsAreEqual implements the interpreter's own pointer/value
// identity primitive (spec.md §3 "Equal is pointer identity for heap
// objects, value identity for SmallInts" surfaced to bytecode).
func primitiveObjectsAreEqual(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	args := primArgs(rt, int(ins.Argument))
	if len(args) != 2 {
		rePush(rt, args)
		return nil
	}
	rt.Push(boolRef(rt, args[0].Equal(args[1])))
	return nil
}

// primitiveGetClass tag-checks then reads the header class slot, the same
// rule Runtime.ClassOf applies, exposed as a primitive.
func primitiveGetClass(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	args := primArgs(rt, int(ins.Argument))
	if len(args) != 1 {
		rePush(rt, args)
		return nil
	}
	rt.Push(object.FromHeap(rt.ClassOf(args[0])))
	return nil
}

// primitiveAllocateObject allocates a new Ordinary instance of the given
// class, sized to the class's inherited instance slot count.
func primitiveAllocateObject(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	args := primArgs(rt, int(ins.Argument))
	if len(args) != 1 {
		rePush(rt, args)
		return nil
	}
	class, ok := args[0].Heap().(*object.Class)
	if !ok {
		rePush(rt, args)
		return nil
	}
	o, err := rt.NewOrdinary(class, class.InstanceSlotCount())
	if err != nil {
		return err
	}
	rt.Push(object.FromHeap(o))
	return nil
}

// primitiveBlockInvoke activates a Block: the new Context shares the
// creating context's method (a block's bytecode is just a sub-range of its
// enclosing method), starts at the block's saved startPC, and stores the
// invocation's arguments at argumentLocation in the new context's
// temporaries — exactly how push-block's companion invocation works in the
// source (TBlock::argumentLocation / creatingContext).
func primitiveBlockInvoke(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	n := int(ins.Argument)
	args := primArgs(rt, n)
	if len(args) < 1 {
		rePush(rt, args)
		return nil
	}
	blk, ok := args[0].Heap().(*object.Block)
	if !ok {
		rePush(rt, args)
		return nil
	}
	blockArgs := args[1:]

	method := blk.CreatingContext.Method
	ctx, gc, err := rt.mgr.AllocateContext(mm.ContextShape{
		Method:           method,
		Arguments:        blk.CreatingContext.Arguments,
		TempSize:         method.TempSize,
		StackSize:        method.StackSize,
		CreatingContext:  blk.CreatingContext,
		ArgumentLocation: blk.ArgumentLocation,
	})
	if err != nil {
		return err
	}
	if gc && rt.log != nil {
		rt.log.Debugf("collection occurred invoking block")
	}
	for i, v := range blockArgs {
		ctx.Temporaries[blk.ArgumentLocation+i] = v
	}
	ctx.Previous = rt.CurrentContext()
	ctx.PC = blk.StartPC
	rt.SetContext(ctx)
	return nil
}
