// Package interp implements the interpreter runtime state of spec.md §4.4,
// the opcode dispatch tables and handlers of §4.5, and the tick-budgeted
// main loop whose result maps to the Host API's {Success, Failure,
// BadMethod, TimeExpired} (§6).
package interp

import (
	"errors"

	"stvm/internal/cache"
	"stvm/internal/mm"
	"stvm/internal/object"
	"stvm/internal/vmlog"
)

// Error kinds from spec.md §7. OutOfMemory is mm.ErrOutOfMemory, reused
// rather than redeclared so callers can errors.Is against one sentinel
// regardless of which package raised it.
var (
	ErrHaltExecution    = errors.New("interp: halt requested by host")
	ErrBadMethod        = errors.New("interp: doesNotUnderstand: itself had no method")
	ErrMalformedBytecode = errors.New("interp: malformed bytecode")
)

// Runtime is the per-interpreter execution state spec.md §4.4 describes:
// the memory manager, the current process, and the well-known-objects /
// method-cache references every opcode handler needs. It is not itself the
// dispatch loop — Interpreter owns that — matching the source's own split
// between Runtime (state + accessors) and Interpreter (tables + execute).
type Runtime struct {
	mgr   mm.Manager
	roots *object.Roots
	cache *cache.MethodCache
	log   *vmlog.Logger

	// processRef holds the running process behind a Ref, not a bare
	// *object.Process, so it is forwardable: GCRoots hands the collector
	// &processRef, and a collection walks Process -> Context -> Previous /
	// CreatingContext / Arguments / Temporaries / Stack from there (see
	// mm/collect.go's scanOne). A bare struct pointer would be invisible to
	// the collector and left dangling into the from-space after a GC.
	processRef object.Ref
}

// NewRuntime builds a Runtime over an already-initialized memory manager,
// well-known-objects registry, and method cache, and registers itself as
// the manager's RootProvider.
func NewRuntime(mgr mm.Manager, roots *object.Roots, mcache *cache.MethodCache, log *vmlog.Logger) *Runtime {
	rt := &Runtime{mgr: mgr, roots: roots, cache: mcache, log: log, processRef: object.NilRef()}
	mgr.SetRootProvider(rt)
	return rt
}

// GCRoots implements mm.RootProvider: the well-known singletons (normally
// static-allocated and so never actually moved, but harmless to list) and
// the running process, the one live root that changes every activation.
func (rt *Runtime) GCRoots() []*object.Ref {
	if rt.roots == nil {
		return []*object.Ref{&rt.processRef}
	}
	return []*object.Ref{&rt.roots.Nil, &rt.roots.True, &rt.roots.False, &rt.processRef}
}

func (rt *Runtime) Roots() *object.Roots   { return rt.roots }
func (rt *Runtime) Manager() mm.Manager    { return rt.mgr }
func (rt *Runtime) MethodCache() *cache.MethodCache { return rt.cache }

// --- Frame ---

// process returns the running process, unwrapped from processRef.
func (rt *Runtime) process() *object.Process {
	return rt.processRef.Heap().(*object.Process)
}

// CurrentContext is nil once the outermost activation has returned — the
// loop's termination condition (spec.md §4.5 "If currentContext is nil,
// write result to process.result and terminate with Success").
func (rt *Runtime) CurrentContext() *object.Context { return rt.process().Context }

func (rt *Runtime) SetContext(ctx *object.Context) { rt.process().Context = ctx }

func (rt *Runtime) PC() int { return rt.CurrentContext().PC }

func (rt *Runtime) SetPC(pc int) { rt.CurrentContext().PC = pc }

func (rt *Runtime) SetProcess(p *object.Process) { rt.processRef = object.FromHeap(p) }

func (rt *Runtime) Process() *object.Process { return rt.process() }

func (rt *Runtime) SetProcessResult(v object.Ref) { rt.process().Result = v }

// --- Stack ---

func (rt *Runtime) Push(v object.Ref) {
	ctx := rt.CurrentContext()
	ctx.Stack[ctx.StackTop] = v
	ctx.StackTop++
}

func (rt *Runtime) Pop() object.Ref {
	ctx := rt.CurrentContext()
	ctx.StackTop--
	return ctx.Stack[ctx.StackTop]
}

// Top returns the value `offset` slots below the stack top without
// popping; offset 0 is the top itself.
func (rt *Runtime) Top(offset int) object.Ref {
	ctx := rt.CurrentContext()
	return ctx.Stack[ctx.StackTop-1-offset]
}

func (rt *Runtime) Drop(n int) {
	ctx := rt.CurrentContext()
	ctx.StackTop -= n
}

// --- Variable access ---

func (rt *Runtime) InstanceVar(i int) object.Ref {
	return rt.receiver().Ordinary().Slots[i]
}

func (rt *Runtime) SetInstanceVar(i int, v object.Ref) {
	rt.receiver().Ordinary().Slots[i] = v
}

// receiver is the current context's argument 0, the message receiver.
func (rt *Runtime) receiver() object.Ref {
	return rt.CurrentContext().Arguments[0]
}

func (rt *Runtime) ArgumentVar(i int) object.Ref {
	return rt.CurrentContext().Arguments[i]
}

func (rt *Runtime) TemporaryVar(i int) object.Ref {
	return rt.CurrentContext().Temporaries[i]
}

func (rt *Runtime) SetTemporaryVar(i int, v object.Ref) {
	rt.CurrentContext().Temporaries[i] = v
}

func (rt *Runtime) LiteralVar(i int) object.Ref {
	return rt.CurrentContext().Method.Literals[i]
}

// --- Allocation helpers ---

func (rt *Runtime) NewOrdinary(class *object.Class, slotCount int) (*object.Ordinary, error) {
	o, gc, err := rt.mgr.AllocateOrdinary(class, slotCount)
	if err != nil {
		return nil, err
	}
	if gc && rt.log != nil {
		rt.log.Debugf("collection occurred during newOrdinary(%s, %d)", className(class), slotCount)
	}
	return o, nil
}

func (rt *Runtime) NewBinary(class *object.Class, byteCount int) (*object.Binary, error) {
	b, gc, err := rt.mgr.AllocateBinary(class, byteCount)
	if err != nil {
		return nil, err
	}
	if gc && rt.log != nil {
		rt.log.Debugf("collection occurred during newBinary(%s, %d)", className(class), byteCount)
	}
	return b, nil
}

func className(c *object.Class) string {
	if c == nil || c.Name == nil {
		return "?"
	}
	return c.Name.String()
}

// ClassOf tag-checks first, then reads the header's class slot, exactly as
// spec.md §3 requires ("All operations that receive an object pointer must
// first test the tag").
func (rt *Runtime) ClassOf(v object.Ref) *object.Class {
	if v.IsSmallInt() {
		return rt.roots.SmallIntClass
	}
	return v.Header().Class
}

// LookupMethod consults the method cache; on a miss it walks the class
// chain's method dictionaries (binary search per dictionary, via
// Class.LookupOwn) and installs the result in the cache on success. Returns
// nil, meaning "not found," on total miss — the caller is responsible for
// re-sending doesNotUnderstand: (spec.md §4.4).
func (rt *Runtime) LookupMethod(selector *object.Symbol, class *object.Class) *object.Method {
	if m := rt.cache.Get(selector, class); m != nil {
		return m
	}
	for k := class; k != nil; k = k.Parent {
		if m := k.LookupOwn(selector); m != nil {
			rt.cache.Set(selector, class, m)
			return m
		}
	}
	return nil
}
