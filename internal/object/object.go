// Package object implements the tagged-pointer object memory described in
// spec.md §3: object headers, small-integer tagging, ordinary and binary
// objects, and the well-known-objects registry.
//
// There is no real machine pointer here — this is a hosted VM, so an
// "address" is a *Header, and the tag bit is a boolean field of Ref that
// sits beside the heap-object pointer. Code that
// would, in the original C++, test the low bit of a raw pointer instead
// calls Ref.IsSmallInt.
package object

import "fmt"

// Class flags, stored on the header.
const (
	FlagIsBinary   = 1 << 0
	FlagRelocated  = 1 << 1
)

// Header is the fixed prefix of every heap object (spec.md §3 "Object header").
//
// During GC the separate Forward field holds the forwarding address: when
// Flags has FlagRelocated set, Forward holds the new location and Class is no
// longer meaningful.
type Header struct {
	Size    int        // data slots (ordinary) or bytes rounded up to word (binary)
	Class   *Class     // nil only during construction or while forwarded
	Flags   int
	Forward HeapObject // the relocated object, set only while FlagRelocated
}

func (h *Header) IsBinary() bool    { return h.Flags&FlagIsBinary != 0 }
func (h *Header) IsRelocated() bool { return h.Flags&FlagRelocated != 0 }

func (h *Header) SetForward(to HeapObject) {
	h.Forward = to
	h.Flags |= FlagRelocated
}

// Hdr lets Header itself satisfy HeapObject, and is promoted to every type
// that embeds Header (directly or, for Symbol, via Binary).
func (h *Header) Hdr() *Header { return h }

// HeapObject is any object-memory value with a header: Ordinary, Binary,
// Method, Context, Process, Block, Class, Symbol. A *Header obtained this
// way is the "address" GC and the method cache compare by identity.
type HeapObject interface {
	Hdr() *Header
}

// Ordinary is a header followed by N tagged slots (spec.md "Ordinary objects").
type Ordinary struct {
	Header
	Slots []Ref
}

// Binary is a header followed by raw bytes (spec.md "Binary objects").
// Used for bytecode arrays, strings, symbols.
type Binary struct {
	Header
	Bytes []byte
}

// Ref is a tagged reference: either a SmallInt immediate or a pointer to a
// heap object. The zero Ref is untagged with a nil pointer, so it is the same
// value as NilRef() and IsNilRef reports true for it, just as a zeroed memory
// word has its tag bit absent in the original encoding; SmallInt(0) is a
// different, tagged value.
type Ref struct {
	smallInt int64
	ptr      HeapObject // nil for the object-pointer nil case
	tagged   bool
}

// SmallInt constructs a tagged immediate integer.
func SmallInt(v int64) Ref { return Ref{smallInt: v, tagged: true} }

// FromHeap wraps any heap object as a Ref. Passing a nil interface value of
// a concrete pointer type (e.g. a nil *Ordinary) is the caller's mistake: use
// NilRef for the well-known nil object instead.
func FromHeap(o HeapObject) Ref { return Ref{ptr: o} }

// NilRef is the distinguished object-pointer nil. It is the same value as
// the zero Ref and is distinct from SmallInt(0).
func NilRef() Ref { return Ref{ptr: nil, tagged: false} }

func (r Ref) IsSmallInt() bool { return r.tagged }

func (r Ref) SmallIntValue() int64 {
	if !r.tagged {
		panic("object: SmallIntValue on non-tagged Ref")
	}
	return r.smallInt
}

// Header returns the object's header. Panics if r is a tagged immediate —
// callers must test IsSmallInt first, exactly as spec.md requires ("All
// operations that receive an object pointer must first test the tag").
func (r Ref) Header() *Header {
	if r.tagged {
		panic("object: Header on a SmallInt Ref")
	}
	if r.ptr == nil {
		panic("object: Header on the nil Ref")
	}
	return r.ptr.Hdr()
}

func (r Ref) Ordinary() *Ordinary {
	o, ok := r.ptr.(*Ordinary)
	if !ok {
		panic(fmt.Sprintf("object: not an ordinary object: %T", r.ptr))
	}
	return o
}

func (r Ref) Binary() *Binary {
	b, ok := r.ptr.(*Binary)
	if !ok {
		panic(fmt.Sprintf("object: not a binary object: %T", r.ptr))
	}
	return b
}

// Heap returns the underlying heap object for use in type switches (e.g. to
// recognize *Method, *Context, *Block, *Class). Panics for SmallInt refs.
func (r Ref) Heap() HeapObject {
	if r.tagged {
		panic("object: Heap on SmallInt Ref")
	}
	return r.ptr
}

// Addr exposes the underlying heap pointer as an opaque, comparable identity
// for use as a map key or a GC root — the closest thing to "the address" in
// a hosted model. Panics for SmallInt refs.
func (r Ref) Addr() interface{} {
	if r.tagged {
		panic("object: Addr on SmallInt Ref")
	}
	return r.ptr
}

// Equal is pointer identity for heap objects, value identity for SmallInts —
// the equality primitive the interpreter invokes inline for objectsAreEqual.
func (r Ref) Equal(o Ref) bool {
	if r.tagged != o.tagged {
		return false
	}
	if r.tagged {
		return r.smallInt == o.smallInt
	}
	return r.ptr == o.ptr
}

func (r Ref) IsNilRef() bool { return !r.tagged && r.ptr == nil }
