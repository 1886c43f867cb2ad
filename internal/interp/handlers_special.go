package interp

import (
	"stvm/internal/bytecode"
	"stvm/internal/object"
)

// installStandardSpecialHandlers wires the doSpecial arguments (spec.md
// §4.5 "Special opcode semantics").
func installStandardSpecialHandlers(in *Interpreter) {
	in.special[uint8(bytecode.SpecialSelfReturn)] = specialSelfReturn
	in.special[uint8(bytecode.SpecialStackReturn)] = specialStackReturn
	in.special[uint8(bytecode.SpecialBlockReturn)] = specialBlockReturn
	in.special[uint8(bytecode.SpecialDuplicate)] = specialDuplicate
	in.special[uint8(bytecode.SpecialPopTop)] = specialPopTop
	in.special[uint8(bytecode.SpecialBranch)] = specialBranch
	in.special[uint8(bytecode.SpecialBranchIfTrue)] = specialBranchIfTrue
	in.special[uint8(bytecode.SpecialBranchIfFalse)] = specialBranchIfFalse
	in.special[uint8(bytecode.SpecialSendToSuper)] = specialSendToSuper
}

// specialSelfReturn pops nothing and returns self (argument 0) to the
// previous context.
func specialSelfReturn(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	self := rt.ArgumentVar(0)
	previous := rt.CurrentContext().Previous
	doReturn(rt, previous, self)
	return nil
}

// specialStackReturn returns the top of stack to the previous context.
func specialStackReturn(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	top := rt.Pop()
	previous := rt.CurrentContext().Previous
	doReturn(rt, previous, top)
	return nil
}

// specialBlockReturn returns the top of stack to the *creating* context's
// previous — a block's non-local return unwinds through the context that
// lexically enclosed the block, not the block's own (dynamic) caller.
func specialBlockReturn(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	top := rt.Pop()
	ctx := rt.CurrentContext()
	creating := ctx.CreatingContext
	doReturn(rt, creating.Previous, top)
	return nil
}

func specialDuplicate(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	rt.Push(rt.Top(0))
	return nil
}

func specialPopTop(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	rt.Drop(1)
	return nil
}

func specialBranch(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	rt.SetPC(int(ins.Extra))
	return nil
}

func specialBranchIfTrue(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	top := rt.Pop()
	if top.Equal(rt.roots.True) {
		rt.SetPC(int(ins.Extra))
	}
	return nil
}

func specialBranchIfFalse(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	top := rt.Pop()
	if top.Equal(rt.roots.False) {
		rt.SetPC(int(ins.Extra))
	}
	return nil
}

// specialSendToSuper looks selector (literal[extra]) up starting at the
// current method's defining class's parent, rather than the receiver's own
// class — matching TSmalltalkInstruction's sendToSuper/SendToSuper::execute.
func specialSendToSuper(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error {
	selector := rt.LiteralVar(int(ins.Extra)).Heap().(*object.Symbol)
	args := rt.Pop().Heap().(*object.Ordinary)
	parent := rt.CurrentContext().Method.Class.Parent

	method := rt.LookupMethod(selector, parent)
	if method == nil {
		return sendDoesNotUnderstand(rt, in, selector, args)
	}
	return activateMethod(rt, method, args)
}
