// Package vmconfig is the dependency-free settings bag spec.md §6's CLI
// surface ("--heap N, --heap_max N, --image PATH, --mm_type {copy|nc},
// --help, --version, trailing positional image path") would populate, were
// the flag parser itself in scope (it isn't — spec.md's Non-goals name the
// command-line front-end an external collaborator). This package documents
// the settings the host passes into the runtime, the role
// cmd_local/go/internal/cfg plays for the teacher's own command tree: a
// small struct many packages read, owned by none of them.
package vmconfig

import "fmt"

// MMType selects the memory manager implementation spec.md §4.1 allows:
// a copying collector or a non-collecting bump allocator (the teacher's
// source names these "copy" and "nc").
type MMType string

const (
	MMCopying    MMType = "copy"
	MMNonCollect MMType = "nc"
)

// Config mirrors spec.md §6's CLI flags, minus the parser itself: heap
// size and max size for the copying manager (or chunk/static size for the
// non-collecting one, reusing the same two fields), which manager to
// build, the image path to boot from (empty means build fresh roots
// in-process), and the tick quantum each Interpreter.Execute call is
// handed.
type Config struct {
	HeapSize    int
	HeapMaxSize int
	ImagePath   string
	MMType      MMType
	TickQuantum int
}

// Default returns the configuration spec.md's CLI section implies absent
// any flags: a modest copying heap, no image to load, and an unbounded
// tick quantum (Interpreter.Execute's ticks<=0 convention).
func Default() Config {
	return Config{
		HeapSize:    1 << 20,
		HeapMaxSize: 1 << 24,
		MMType:      MMCopying,
		TickQuantum: 0,
	}
}

// Validate checks the invariants the memory manager constructors assume
// (spec.md §4.1: "initializeHeap(size, maxSize)" implies size <= maxSize)
// before a caller wires Config into internal/mm, matching the teacher's
// habit of validating a cfg struct once at the boundary instead of
// scattering checks through every consumer.
func (c Config) Validate() error {
	if c.HeapSize <= 0 {
		return fmt.Errorf("vmconfig: heap size must be positive, got %d", c.HeapSize)
	}
	if c.HeapMaxSize > 0 && c.HeapMaxSize < c.HeapSize {
		return fmt.Errorf("vmconfig: heap max size %d is smaller than heap size %d", c.HeapMaxSize, c.HeapSize)
	}
	switch c.MMType {
	case MMCopying, MMNonCollect:
	default:
		return fmt.Errorf("vmconfig: unknown mm type %q, want %q or %q", c.MMType, MMCopying, MMNonCollect)
	}
	if c.TickQuantum < 0 {
		return fmt.Errorf("vmconfig: tick quantum must be >= 0 (0 means unbounded), got %d", c.TickQuantum)
	}
	return nil
}
