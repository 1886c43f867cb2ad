package mm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// arena is a single semi-space: a bump-allocated byte budget backed by an
// anonymous mmap region. The VM's objects are ordinary Go values (see
// internal/object) — Go's own runtime owns their storage — but every
// allocation still has to debit a byte budget from a real mapped region, the
// same way spec.md §3 describes the object memory as "raw byte layout,
// small-integer tagging, heap regions": the mmap region is the heap region;
// the bump cursor inside it is what allocate/collect actually reason about.
type arena struct {
	mem    []byte // the mmap'd region
	cursor int
}

func newArena(size int) (*arena, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mm: arena size must be positive, got %d", size)
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mm: mmap %d bytes: %w", size, err)
	}
	return &arena{mem: mem}, nil
}

func (a *arena) close() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}

func (a *arena) size() int { return len(a.mem) }
func (a *arena) used() int { return a.cursor }
func (a *arena) free() int { return len(a.mem) - a.cursor }

// bump debits n bytes from the arena, returning false if it doesn't fit.
// The returned offset is only useful as a distinct, monotonically
// increasing "address" for accounting and profiling — no Go value is ever
// actually stored at mem[offset].
func (a *arena) bump(n int) (offset int, ok bool) {
	if a.cursor+n > len(a.mem) {
		return 0, false
	}
	offset = a.cursor
	a.cursor += n
	return offset, true
}

func (a *arena) reset() { a.cursor = 0 }
