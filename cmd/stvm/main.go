// Command stvm is a thin demonstration of the Host API spec.md §6 names
// (initializeHeap/initializeStaticHeap, install a method, run a process to
// completion or tick expiry) — not the CLI spec.md's Non-goals exclude
// ("the command-line front-end and its flag parser... treated as an
// external collaborator"). It wires internal/vmconfig, internal/mm,
// internal/object, internal/cache and internal/interp together the way a
// real front-end would, then runs one hand-assembled method to show the
// assembly works end to end.
package main

import (
	"fmt"
	"log"
	"os"

	"stvm/internal/bytecode"
	"stvm/internal/cache"
	"stvm/internal/interp"
	"stvm/internal/mm"
	"stvm/internal/object"
	"stvm/internal/vmconfig"
	"stvm/internal/vmlog"
)

func main() {
	if err := run(); err != nil {
		log.SetFlags(0)
		log.SetPrefix("stvm: ")
		log.Fatal(err)
	}
}

func run() error {
	cfg := vmconfig.Default()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("stvm: invalid configuration: %w", err)
	}

	vmLog := vmlog.New("stvm", os.Stderr, false)

	mgr, roots, rt, in, err := bootVM(cfg, vmLog)
	if err != nil {
		return err
	}
	if closer, ok := mgr.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	result, err := runDemoMethod(rt, in, roots)
	if err != nil {
		return fmt.Errorf("stvm: %w", err)
	}

	vmLog.Infof("demo method returned %v", result)
	return nil
}

// bootVM performs the Host API's startup sequence (spec.md §6:
// initializeHeap(size, maxSize) / initializeStaticHeap(size), followed by
// constructing the well-known-objects registry, the method cache, and the
// runtime) according to cfg.MMType.
func bootVM(cfg vmconfig.Config, vmLog *vmlog.Logger) (mm.Manager, *object.Roots, *interp.Runtime, *interp.Interpreter, error) {
	var mgr mm.Manager
	switch cfg.MMType {
	case vmconfig.MMCopying:
		copying, err := mm.NewCopyingManager(cfg.HeapSize, cfg.HeapMaxSize, vmlog.New("mm", os.Stderr, false))
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("stvm: initializing copying heap: %w", err)
		}
		mgr = copying
	case vmconfig.MMNonCollect:
		nonCollect, err := mm.NewNonCollectManager(cfg.HeapSize, cfg.HeapMaxSize)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("stvm: initializing non-collecting heap: %w", err)
		}
		mgr = nonCollect
	default:
		return nil, nil, nil, nil, fmt.Errorf("stvm: unknown mm type %q", cfg.MMType)
	}

	roots := object.NewRoots(mgr.StaticAllocateOrdinary)

	mcache := cache.New()
	// NewRuntime registers itself as mgr's RootProvider, exposing
	// roots.Nil/True/False and the running process (see Runtime.GCRoots).
	rt := interp.NewRuntime(mgr, roots, mcache, vmLog)
	in := interp.NewInterpreter(rt)
	return mgr, roots, rt, in, nil
}

// runDemoMethod assembles "3 + 4" as a single top-level method body and
// executes it to completion, exercising the full pipeline (bytecode encode
// → activation → dispatch → return) the way spec.md §8 scenario 1 does.
func runDemoMethod(rt *interp.Runtime, in *interp.Interpreter, roots *object.Roots) (object.Ref, error) {
	class := &object.Class{
		Header:  object.Header{Class: roots.ClassClass},
		Name:    roots.Symbols.Intern("Demo"),
		Parent:  roots.ObjectClass,
		Methods: object.NewDictionary(),
	}

	e := bytecode.NewEncoder()
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 3})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpPushConstant, Argument: 4})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpSendBinary, Argument: uint8(bytecode.BinaryPlus)})
	e.Emit(bytecode.Instruction{Opcode: bytecode.OpDoSpecial, Argument: uint8(bytecode.SpecialStackReturn)})

	method := &object.Method{
		Bytecode:  &object.Binary{Bytes: e.Bytes()},
		TempSize:  0,
		StackSize: 4,
		Class:     class,
		ArgCount:  1,
	}

	self := object.FromHeap(&object.Ordinary{Header: object.Header{Class: class}})
	ctx := &object.Context{
		Method:      method,
		Arguments:   []object.Ref{self},
		Temporaries: make([]object.Ref, method.TempSize),
		Stack:       make([]object.Ref, method.StackSize),
	}
	process := &object.Process{Context: ctx}

	if _, err := in.Execute(process, 0); err != nil {
		return object.Ref{}, err
	}
	return rt.Process().Result, nil
}
