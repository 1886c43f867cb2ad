package mm

import (
	"stvm/internal/object"
)

// NonCollectManager never collects: when the current chunk is exhausted it
// appends a fresh chunk instead, exactly as spec.md §4.1 describes ("A
// NonCollect variant keeps appending fresh chunks instead of collecting,
// for test scenarios"). Objects returned from it are never moved, so tests
// can hold raw Refs across allocations without a Handle.
type NonCollectManager struct {
	chunkSize int
	chunks    []*arena
	static    *arena
	roots     RootProvider
	handles   []*Handle
	stats     Stats
}

// NewNonCollectManager creates a manager whose dynamic allocations draw from
// chunkSize-byte arenas, appending a new one whenever the current one is
// full, and whose static arena is a fixed staticSize bytes.
func NewNonCollectManager(chunkSize, staticSize int) (*NonCollectManager, error) {
	first, err := newArena(chunkSize)
	if err != nil {
		return nil, err
	}
	static, err := newArena(staticSize)
	if err != nil {
		return nil, err
	}
	return &NonCollectManager{chunkSize: chunkSize, chunks: []*arena{first}, static: static}, nil
}

func (m *NonCollectManager) SetRootProvider(p RootProvider) { m.roots = p }

func (m *NonCollectManager) bump(n int) (int, error) {
	last := m.chunks[len(m.chunks)-1]
	if off, ok := last.bump(n); ok {
		return off, nil
	}
	size := m.chunkSize
	if n > size {
		size = n
	}
	fresh, err := newArena(size)
	if err != nil {
		return 0, ErrOutOfMemory
	}
	m.chunks = append(m.chunks, fresh)
	off, ok := fresh.bump(n)
	if !ok {
		return 0, ErrOutOfMemory
	}
	return off, nil
}

func (m *NonCollectManager) AllocateOrdinary(class *object.Class, slots int) (*object.Ordinary, bool, error) {
	if _, err := m.bump(ordinaryBytes(slots)); err != nil {
		return nil, false, err
	}
	return &object.Ordinary{Header: object.Header{Size: slots, Class: class}, Slots: make([]object.Ref, slots)}, false, nil
}

func (m *NonCollectManager) AllocateBinary(class *object.Class, byteLen int) (*object.Binary, bool, error) {
	if _, err := m.bump(binaryBytes(byteLen)); err != nil {
		return nil, false, err
	}
	return &object.Binary{Header: object.Header{Size: binaryBytes(byteLen), Class: class, Flags: object.FlagIsBinary}, Bytes: make([]byte, byteLen)}, false, nil
}

func (m *NonCollectManager) AllocateContext(shape ContextShape) (*object.Context, bool, error) {
	n := ordinaryBytes(shape.TempSize + shape.StackSize + len(shape.Arguments) + 4)
	if _, err := m.bump(n); err != nil {
		return nil, false, err
	}
	return &object.Context{
		Method:           shape.Method,
		Arguments:        append([]object.Ref(nil), shape.Arguments...),
		Temporaries:      make([]object.Ref, shape.TempSize),
		Stack:            make([]object.Ref, shape.StackSize),
		CreatingContext:  shape.CreatingContext,
		ArgumentLocation: shape.ArgumentLocation,
	}, false, nil
}

func (m *NonCollectManager) AllocateBlock(creating *object.Context, argLoc, startPC int) (*object.Block, bool, error) {
	if _, err := m.bump(wordBytes * 3); err != nil {
		return nil, false, err
	}
	return &object.Block{CreatingContext: creating, ArgumentLocation: argLoc, StartPC: startPC}, false, nil
}

func (m *NonCollectManager) StaticAllocateOrdinary(class *object.Class, slots int) *object.Ordinary {
	if _, ok := m.static.bump(ordinaryBytes(slots)); !ok {
		panic("mm: NonCollectManager static arena exhausted")
	}
	return &object.Ordinary{Header: object.Header{Size: slots, Class: class}, Slots: make([]object.Ref, slots)}
}

func (m *NonCollectManager) StaticAllocateBinary(class *object.Class, byteLen int) *object.Binary {
	if _, ok := m.static.bump(binaryBytes(byteLen)); !ok {
		panic("mm: NonCollectManager static arena exhausted")
	}
	return &object.Binary{Header: object.Header{Size: binaryBytes(byteLen), Class: class, Flags: object.FlagIsBinary}, Bytes: make([]byte, byteLen)}
}

// CollectGarbage is a deliberate no-op: this manager exists precisely so
// tests can observe allocator behavior without collection interference.
func (m *NonCollectManager) CollectGarbage() {}

func (m *NonCollectManager) Stats() Stats {
	s := m.stats
	for _, c := range m.chunks {
		s.BytesInUse += c.used()
		s.BytesCapacity += c.size()
	}
	return s
}

// Close releases every mmap'd chunk.
func (m *NonCollectManager) Close() error {
	var firstErr error
	for _, c := range m.chunks {
		if err := c.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.static.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
