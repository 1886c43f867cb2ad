// Package mm implements the memory manager described in spec.md §4.1: the
// allocate/staticAllocate/collectGarbage API, a Cheney-style copying
// collector, and the scoped-handle root-registration mechanism.
package mm

import (
	"errors"
	"fmt"

	"stvm/internal/object"
	"stvm/internal/vmlog"
)

// ErrOutOfMemory is returned by the Allocate* methods when a collection
// frees no usable space (spec.md §4.1 "Failure model"). StaticAllocate*
// does not return it: running out of static arena panics instead.
var ErrOutOfMemory = errors.New("mm: out of memory")

// RootProvider is implemented by the interpreter runtime so the collector
// can enumerate and update the live root set (spec.md §4.1 step 2) without
// mm depending on the interp package.
//
// GCRoots returns pointers to the provider's own root-holding fields (the
// well-known constants registry's Ref fields, the current-process Ref,
// ...), not copies — the collector writes the forwarded Ref back through
// each pointer in place, which is how a root set that lives outside any
// Handle still gets updated by a collection.
type RootProvider interface {
	GCRoots() []*object.Ref
}

// Manager is the memory-manager interface every opcode handler and the
// image loader program against. Both CopyingManager and NonCollectManager
// implement it (spec.md §4.1 names the NonCollect variant explicitly, "for
// test scenarios").
type Manager interface {
	// AllocateOrdinary and AllocateBinary are the typed equivalent of
	// spec.md's `allocate(bytes, &gcOccurred) -> address`: they bump
	// allocate in the active semi-space, collecting and retrying once on
	// exhaustion.
	AllocateOrdinary(class *object.Class, slots int) (obj *object.Ordinary, gcOccurred bool, err error)
	AllocateBinary(class *object.Class, byteLen int) (obj *object.Binary, gcOccurred bool, err error)
	AllocateContext(slots ContextShape) (ctx *object.Context, gcOccurred bool, err error)
	AllocateBlock(creating *object.Context, argLoc, startPC int) (blk *object.Block, gcOccurred bool, err error)

	// StaticAllocate* never move or get reclaimed (spec.md: "a separate
	// arena that is treated as a root set but never moved or reclaimed").
	StaticAllocateOrdinary(class *object.Class, slots int) *object.Ordinary
	StaticAllocateBinary(class *object.Class, byteLen int) *object.Binary

	// CollectGarbage runs an explicit collection.
	CollectGarbage()

	// SetRootProvider wires in the interpreter's root set; must be called
	// before the first allocation that could trigger a collection.
	SetRootProvider(p RootProvider)

	// NewHandle registers v as a GC root until the returned Handle is
	// released (spec.md "Scoped handles").
	NewHandle(v object.Ref) *Handle

	Stats() Stats
}

// ContextShape carries the slot sizes AllocateContext needs; defined here
// (not in object) to keep object free of allocation concerns.
type ContextShape struct {
	Method           *object.Method
	Arguments        []object.Ref
	TempSize         int
	StackSize        int
	CreatingContext  *object.Context // nil for a plain method activation
	ArgumentLocation int
}

// Stats is a point-in-time snapshot of allocator/collector activity.
type Stats struct {
	Collections   int
	BytesInUse    int
	BytesCapacity int
	LastGCFreed   int
}

// wordBytes is the accounting unit AllocateOrdinary/AllocateBinary debit
// from the active arena: one machine word per Ref slot or per 8 raw bytes,
// matching spec.md's "size field... counting data slots in units of
// machine-pointer width" / "size field counts bytes rounded up to machine-
// word".
const wordBytes = 8

// CopyingManager implements the Cheney-style collector of spec.md §4.1.
type CopyingManager struct {
	active, inactive *arena
	staticArena      *arena
	roots            RootProvider
	handles          []*Handle // stack-disciplined; see handle.go
	log              *vmlog.Logger
	stats            Stats

	// toScan is the Cheney worklist: objects already copied into the
	// active (to-)space whose internal Refs have not yet been forwarded.
	toScan []object.HeapObject
}

// NewCopyingManager allocates two semi-spaces of size bytes each and a
// static arena of staticSize bytes (spec.md: initializeHeap(size, maxSize) /
// initializeStaticHeap(size); maxSize is enforced by the caller deciding how
// many times to grow — this constructor takes one fixed size per space,
// which is sufficient for the core interpreter's needs).
func NewCopyingManager(semiSpaceSize, staticSize int, log *vmlog.Logger) (*CopyingManager, error) {
	a, err := newArena(semiSpaceSize)
	if err != nil {
		return nil, err
	}
	b, err := newArena(semiSpaceSize)
	if err != nil {
		return nil, err
	}
	s, err := newArena(staticSize)
	if err != nil {
		return nil, err
	}
	return &CopyingManager{active: a, inactive: b, staticArena: s, log: log}, nil
}

func (m *CopyingManager) SetRootProvider(p RootProvider) { m.roots = p }

func (m *CopyingManager) Stats() Stats {
	s := m.stats
	s.BytesInUse = m.active.used()
	s.BytesCapacity = m.active.size()
	return s
}

func ordinaryBytes(slots int) int { return slots * wordBytes }
func binaryBytes(byteLen int) int {
	return (byteLen + wordBytes - 1) / wordBytes * wordBytes
}

func (m *CopyingManager) AllocateOrdinary(class *object.Class, slots int) (*object.Ordinary, bool, error) {
	n := ordinaryBytes(slots)
	_, gcOccurred, err := m.allocate(n)
	if err != nil {
		return nil, gcOccurred, err
	}
	o := &object.Ordinary{
		Header: object.Header{Size: slots, Class: class},
		Slots:  make([]object.Ref, slots),
	}
	return o, gcOccurred, nil
}

func (m *CopyingManager) AllocateBinary(class *object.Class, byteLen int) (*object.Binary, bool, error) {
	n := binaryBytes(byteLen)
	_, gcOccurred, err := m.allocate(n)
	if err != nil {
		return nil, gcOccurred, err
	}
	b := &object.Binary{
		Header: object.Header{Size: n, Class: class, Flags: object.FlagIsBinary},
		Bytes:  make([]byte, byteLen),
	}
	return b, gcOccurred, nil
}

func (m *CopyingManager) AllocateContext(shape ContextShape) (*object.Context, bool, error) {
	n := ordinaryBytes(shape.TempSize + shape.StackSize + len(shape.Arguments) + 4)
	_, gcOccurred, err := m.allocate(n)
	if err != nil {
		return nil, gcOccurred, err
	}
	ctx := &object.Context{
		Header:           object.Header{Class: nil},
		Method:           shape.Method,
		Arguments:        append([]object.Ref(nil), shape.Arguments...),
		Temporaries:      make([]object.Ref, shape.TempSize),
		Stack:            make([]object.Ref, shape.StackSize),
		CreatingContext:  shape.CreatingContext,
		ArgumentLocation: shape.ArgumentLocation,
	}
	return ctx, gcOccurred, nil
}

func (m *CopyingManager) AllocateBlock(creating *object.Context, argLoc, startPC int) (*object.Block, bool, error) {
	_, gcOccurred, err := m.allocate(wordBytes * 3)
	if err != nil {
		return nil, gcOccurred, err
	}
	return &object.Block{
		CreatingContext:  creating,
		ArgumentLocation: argLoc,
		StartPC:          startPC,
	}, gcOccurred, nil
}

// allocate implements spec.md's `allocate(bytes, &gcOccurred) -> address`:
// bump in the active space, collect-and-retry once on exhaustion, fail with
// ErrOutOfMemory if still exhausted.
func (m *CopyingManager) allocate(n int) (offset int, gcOccurred bool, err error) {
	if off, ok := m.active.bump(n); ok {
		return off, false, nil
	}
	m.CollectGarbage()
	if off, ok := m.active.bump(n); ok {
		return off, true, nil
	}
	return 0, true, ErrOutOfMemory
}

func (m *CopyingManager) StaticAllocateOrdinary(class *object.Class, slots int) *object.Ordinary {
	n := ordinaryBytes(slots)
	if _, ok := m.staticArena.bump(n); !ok {
		panic(fmt.Sprintf("mm: static arena exhausted allocating %d bytes", n))
	}
	return &object.Ordinary{Header: object.Header{Size: slots, Class: class}, Slots: make([]object.Ref, slots)}
}

func (m *CopyingManager) StaticAllocateBinary(class *object.Class, byteLen int) *object.Binary {
	n := binaryBytes(byteLen)
	if _, ok := m.staticArena.bump(n); !ok {
		panic(fmt.Sprintf("mm: static arena exhausted allocating %d bytes", n))
	}
	return &object.Binary{Header: object.Header{Size: n, Class: class, Flags: object.FlagIsBinary}, Bytes: make([]byte, byteLen)}
}

// Close releases the mmap'd arenas. Not part of the Manager interface (the
// host API in spec.md §6 has no teardown call); provided for tests.
func (m *CopyingManager) Close() error {
	err1 := m.active.close()
	err2 := m.inactive.close()
	err3 := m.staticArena.close()
	return errors.Join(err1, err2, err3)
}
