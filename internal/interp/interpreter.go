package interp

import (
	"errors"
	"fmt"

	"stvm/internal/bytecode"
	"stvm/internal/object"
)

// Result is the Host API's execute() outcome (spec.md §6).
type Result int

const (
	Success Result = iota
	Failure
	BadMethod
	TimeExpired
)

func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case Failure:
		return "Failure"
	case BadMethod:
		return "BadMethod"
	case TimeExpired:
		return "TimeExpired"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// errNoHandler is raised internally when a usual/special/primitive slot has
// no installed handler; it propagates like any other non-primitive error
// and maps to Failure, matching the source's generic
// `catch (const std::exception&) { ...; return Failure; }`.
var errNoHandler = errors.New("interp: no handler installed for instruction")

// errFinalDoesNotUnderstand marks that doesNotUnderstand: itself could not
// be resolved — the one error that maps to BadMethod rather than Failure.
var errFinalDoesNotUnderstand = errors.New("interp: doesNotUnderstand: unresolved")

// Handler is the single operation every opcode handler implements
// (spec.md §4.5: "a polymorphic object with a single execute(runtime, …)
// operation"). ins carries the already-decoded argument/extra; Handlers
// that branch call rt.SetPC themselves.
type Handler func(rt *Runtime, in *Interpreter, ins bytecode.Instruction) error

// Interpreter owns the dispatch tables and the main execute loop. Runtime
// holds the state the handlers mutate; Interpreter holds the behavior,
// matching the source's own Interpreter/Runtime split.
type Interpreter struct {
	runtime   *Runtime
	usual     [16]Handler
	special   map[uint8]Handler
	primitive map[uint16]Handler
	halted    bool
}

// NewInterpreter builds an Interpreter over rt with the standard usual,
// special, and primitive handlers pre-installed (spec.md: "handlers are
// registered at VM start").
func NewInterpreter(rt *Runtime) *Interpreter {
	in := &Interpreter{
		runtime:   rt,
		special:   make(map[uint8]Handler),
		primitive: make(map[uint16]Handler),
	}
	installStandardUsualHandlers(in)
	installStandardSpecialHandlers(in)
	installStandardPrimitiveHandlers(in)
	return in
}

// InstallUsual registers (or overrides) the handler for a usual opcode.
func (in *Interpreter) InstallUsual(op bytecode.Opcode, h Handler) { in.usual[op] = h }

// InstallSpecial registers the handler for a doSpecial argument value.
func (in *Interpreter) InstallSpecial(arg uint8, h Handler) { in.special[arg] = h }

// InstallPrimitive registers the handler for a doPrimitive number.
func (in *Interpreter) InstallPrimitive(number uint16, h Handler) { in.primitive[number] = h }

// Runtime exposes the interpreter's runtime state for callers assembling a
// process (building the initial Context, registering the root provider).
func (in *Interpreter) Runtime() *Runtime { return in.runtime }

// RequestHalt asks the running interpreter to stop at the next instruction
// boundary (spec.md §6: a host aborts a runaway or misbehaving process
// without waiting for its tick budget to expire). Safe to call from a
// handler; Execute notices it before decoding the next instruction.
func (in *Interpreter) RequestHalt() { in.halted = true }

// dispatch selects and runs the handler for ins, matching
// Interpreter::execute(instruction)'s three-way opcode/argument/extra
// split.
func (in *Interpreter) dispatch(ins bytecode.Instruction) error {
	switch ins.Opcode {
	case bytecode.OpDoSpecial:
		h, ok := in.special[ins.Argument]
		if !ok {
			return fmt.Errorf("%w: special %d", errNoHandler, ins.Argument)
		}
		return h(in.runtime, in, ins)
	case bytecode.OpDoPrimitive:
		h, ok := in.primitive[ins.Extra]
		if !ok {
			return fmt.Errorf("%w: primitive %d", errNoHandler, ins.Extra)
		}
		return h(in.runtime, in, ins)
	default:
		h := in.usual[ins.Opcode]
		if h == nil {
			return fmt.Errorf("%w: usual opcode %d", errNoHandler, ins.Opcode)
		}
		return h(in.runtime, in, ins)
	}
}

// Execute runs process until it terminates, the host's tick budget expires,
// or an error halts it (spec.md §4.5 "Tick budget", §6 Host API). ticks<=0
// means unbounded — mirroring the source's `if (ticks && --ticks == 0)`,
// which never fires when ticks starts at 0, since 0 is the C truthiness
// sentinel for "no budget was given."
func (in *Interpreter) Execute(process *object.Process, ticks int) (Result, error) {
	rt := in.runtime
	rt.SetProcess(process)
	in.halted = false

	for rt.CurrentContext() != nil {
		if in.halted {
			return Failure, ErrHaltExecution
		}
		if err := in.step(); err != nil {
			if errors.Is(err, errFinalDoesNotUnderstand) {
				return BadMethod, ErrBadMethod
			}
			return Failure, err
		}

		if ticks > 0 {
			ticks--
			if ticks == 0 {
				return TimeExpired, nil
			}
		}
	}
	return Success, nil
}

// step decodes and executes exactly one instruction at the current
// context's program counter. A truncated or otherwise corrupt bytecode
// stream panics out of the decoder (decoder.go: "no recovery path worth the
// complexity"); step is the one place that recovers it, turning it into
// ErrMalformedBytecode rather than crashing the host process.
func (in *Interpreter) step() (err error) {
	rt := in.runtime
	ctx := rt.CurrentContext()
	code := ctx.Method.Bytecode.Bytes

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrMalformedBytecode, r)
		}
	}()

	d := bytecode.NewDecoder(code)
	d.SetPos(ctx.PC)
	ins := d.Next()
	ctx.PC = d.Pos()

	return in.dispatch(ins)
}
