package interp

import (
	"stvm/internal/mm"
	"stvm/internal/object"
)

// activate performs spec.md §4.5's "Activation (message send)" steps:
// determine the receiver's class, look up the method (re-sending
// doesNotUnderstand: once on a miss), allocate the new Context, and make it
// current. args is the already-popped arguments array, args.Slots[0] the
// receiver.
func activate(rt *Runtime, in *Interpreter, selector *object.Symbol, args *object.Ordinary) error {
	class := rt.ClassOf(args.Slots[0])
	method := rt.LookupMethod(selector, class)
	if method == nil {
		return sendDoesNotUnderstand(rt, in, selector, args)
	}
	return activateMethod(rt, method, args)
}

// sendDoesNotUnderstand re-sends with selector doesNotUnderstand: and a
// 2-element [originalSelector, argsArray] argument array (spec.md §4.5
// step 2, §8 scenario 3). If that lookup also fails, the process aborts
// with BadMethod (errFinalDoesNotUnderstand), not a second recursive
// doesNotUnderstand: send — re-sending doesNotUnderstand: to
// doesNotUnderstand: would loop forever if neither resolves.
func sendDoesNotUnderstand(rt *Runtime, in *Interpreter, selector *object.Symbol, originalArgs *object.Ordinary) error {
	class := rt.ClassOf(originalArgs.Slots[0])
	dnuMethod := rt.LookupMethod(rt.roots.DoesNotUnderstand, class)
	if dnuMethod == nil {
		return errFinalDoesNotUnderstand
	}

	wrapped, err := rt.NewOrdinary(rt.roots.ArrayClass, 2)
	if err != nil {
		return err
	}
	wrapped.Slots[0] = object.FromHeap(selector)
	wrapped.Slots[1] = object.FromHeap(originalArgs)

	dnuArgs, err := rt.NewOrdinary(rt.roots.ArrayClass, 2)
	if err != nil {
		return err
	}
	dnuArgs.Slots[0] = originalArgs.Slots[0]
	dnuArgs.Slots[1] = object.FromHeap(wrapped)

	return activateMethod(rt, dnuMethod, dnuArgs)
}

// activateMethod allocates the new Context per spec.md §4.5 step 3 and
// makes it current (step 4).
func activateMethod(rt *Runtime, method *object.Method, args *object.Ordinary) error {
	ctx, gc, err := rt.mgr.AllocateContext(mm.ContextShape{
		Method:          method,
		Arguments:       args.Slots,
		TempSize:        method.TempSize,
		StackSize:       method.StackSize,
		CreatingContext: nil,
	})
	if err != nil {
		return err
	}
	if gc && rt.log != nil {
		rt.log.Debugf("collection occurred activating %s", selectorName(method.Selector))
	}
	ctx.Previous = rt.CurrentContext()
	rt.SetContext(ctx)
	return nil
}

func selectorName(s *object.Symbol) string {
	if s == nil {
		return "?"
	}
	return s.String()
}

// doReturn implements the shared tail of self-return/stack-return/
// block-return (spec.md §4.5 "Return"): switch to target, and either
// finish the process (target nil) or push the returned value onto the
// resumed context's stack.
func doReturn(rt *Runtime, target *object.Context, value object.Ref) {
	rt.SetContext(target)
	if rt.CurrentContext() == nil {
		rt.SetProcessResult(value)
		return
	}
	rt.Push(value)
}
