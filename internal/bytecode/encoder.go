package bytecode

// Encoder serializes Instructions back into the variable-width wire format
// Decoder reads, for tests and for any tooling that synthesizes bytecode
// (cmd/stvm's demo method is built with it).
type Encoder struct {
	code []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) writeByte(b byte) { e.code = append(e.code, b) }

func (e *Encoder) write16(v uint16) {
	e.writeByte(byte(v))
	e.writeByte(byte(v >> 8))
}

// Emit appends ins's wire encoding, choosing the compact single-byte form
// when the argument fits four bits and falling back to the extended form
// otherwise. Returns the byte offset Emit started writing at, for callers
// that need to record branch targets.
func (e *Encoder) Emit(ins Instruction) int {
	start := len(e.code)

	if ins.Argument <= 0x0F {
		e.writeByte(byte(ins.Opcode)<<4 | ins.Argument)
	} else {
		e.writeByte(byte(OpExtended)<<4 | byte(ins.Opcode))
		e.writeByte(ins.Argument)
	}

	switch ins.Opcode {
	case OpPushBlock:
		e.write16(ins.Extra)
	case OpDoPrimitive:
		e.writeByte(byte(ins.Extra))
	case OpDoSpecial:
		switch Opcode(ins.Argument) {
		case SpecialBranch, SpecialBranchIfTrue, SpecialBranchIfFalse:
			e.write16(ins.Extra)
		case SpecialSendToSuper:
			e.writeByte(byte(ins.Extra))
		}
	}

	return start
}

// Bytes returns the accumulated wire-format bytecode.
func (e *Encoder) Bytes() []byte { return e.code }

// PatchBranchTarget overwrites the 16-bit extra field of the branch
// instruction that starts at pos (the offset Emit returned for it) with a
// new target — used once a forward branch's destination becomes known
// during a single-pass compile.
func (e *Encoder) PatchBranchTarget(pos int, target uint16) {
	// The opcode (high) nibble tells us whether this was emitted in extended
	// form (2 header bytes) or compact form (1 header byte).
	headerLen := 1
	if e.code[pos]>>4 == byte(OpExtended) {
		headerLen = 2
	}
	off := pos + headerLen
	e.code[off] = byte(target)
	e.code[off+1] = byte(target >> 8)
}
