// Package abi documents the trampoline calling convention spec.md §9's
// Design Notes carve out of the interpreter's scope: "Trampolines via
// pointer-to-member-function... model an external code-generation concern
// — not required for the core interpreter; specify only the ABI between
// runtime and generated code." No JIT lives in this module; this package
// pins down the contract a future one would have to satisfy, and a table
// of hand-written stub bytes machine-verified (via x86asm, in abi_test.go)
// to honor it.
package abi

import "stvm/internal/object"

// Trampoline is the Go-level shape of the ABI contract spec.md §9 names:
// "(context*) → returnValue". ctx is the activation a generated method
// body runs against; the returned Ref is what the interpreter's own
// doSpecial return handlers (internal/interp's specialSelfReturn and
// friends) push back onto the caller's stack.
type Trampoline func(ctx *object.Context) object.Ref

// Stub is one hand-written x86-64 machine-code sequence satisfying
// Trampoline's calling convention under the System V AMD64 ABI (first
// integer argument — the *Context — arrives in RDI). Bytes holds the raw
// encoding; Summary says in one line what the stub calls through.
type Stub struct {
	Name    string
	Bytes   []byte
	Summary string
}

// Mode64 is the x86asm processor-mode argument for 64-bit decoding
// (x86asm.Decode's mode parameter; see abi_test.go).
const Mode64 = 64

// Stubs is the fixed set of trampoline shapes documented against the ABI
// contract. Each ends with a CALL through a register holding an address
// derived from the context pointer, followed by a RET — the shape §9
// describes as the source's pointer-to-member-function wrapper compiles
// down to once inlined.
var Stubs = []Stub{
	{
		Name: "direct",
		// mov rax, rdi      ; rdi holds *Context per the SysV ABI
		// call rax          ; call the generated method body directly
		// ret
		Bytes:   []byte{0x48, 0x89, 0xF8, 0xFF, 0xD0, 0xC3},
		Summary: "calls the context pointer itself as the generated body's entry point",
	},
	{
		Name: "vtable-slot",
		// mov rax, [rdi]    ; load a code pointer stored at offset 0 of *Context
		// call rax          ; call through it
		// ret
		Bytes:   []byte{0x48, 0x8B, 0x07, 0xFF, 0xD0, 0xC3},
		Summary: "calls through a code pointer stored at the context's first slot",
	},
}
