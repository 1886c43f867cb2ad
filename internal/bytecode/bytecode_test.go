package bytecode

import (
	"reflect"
	"testing"
)

func TestRoundTripCompactForm(t *testing.T) {
	tests := []Instruction{
		{Opcode: OpPushArgument, Argument: 2},
		{Opcode: OpPushTemporary, Argument: 0},
		{Opcode: OpSendBinary, Argument: uint8(BinaryPlus)},
		{Opcode: OpDoSpecial, Argument: uint8(SpecialStackReturn)},
		{Opcode: OpDoSpecial, Argument: uint8(SpecialPopTop)},
	}
	for _, ins := range tests {
		e := NewEncoder()
		e.Emit(ins)
		got := NewDecoder(e.Bytes()).Next()
		if got != ins {
			t.Fatalf("round trip %+v -> %+v", ins, got)
		}
	}
}

func TestRoundTripExtendedArgument(t *testing.T) {
	ins := Instruction{Opcode: OpPushLiteral, Argument: 200}
	e := NewEncoder()
	e.Emit(ins)
	if len(e.Bytes()) != 2 {
		t.Fatalf("expected extended form to take 2 bytes, got %d", len(e.Bytes()))
	}
	got := NewDecoder(e.Bytes()).Next()
	if got != ins {
		t.Fatalf("round trip %+v -> %+v", ins, got)
	}
}

func TestRoundTripPushBlockExtra(t *testing.T) {
	ins := Instruction{Opcode: OpPushBlock, Argument: 1, Extra: 0x1234}
	e := NewEncoder()
	e.Emit(ins)
	got := NewDecoder(e.Bytes()).Next()
	if got != ins {
		t.Fatalf("round trip %+v -> %+v", ins, got)
	}
}

func TestRoundTripBranchExtra(t *testing.T) {
	ins := Instruction{Opcode: OpDoSpecial, Argument: uint8(SpecialBranchIfTrue), Extra: 0x00AB}
	e := NewEncoder()
	e.Emit(ins)
	got := NewDecoder(e.Bytes()).Next()
	if got != ins {
		t.Fatalf("round trip %+v -> %+v", ins, got)
	}
}

func TestDecodeAllSequence(t *testing.T) {
	e := NewEncoder()
	e.Emit(Instruction{Opcode: OpPushArgument, Argument: 0})
	e.Emit(Instruction{Opcode: OpPushArgument, Argument: 1})
	e.Emit(Instruction{Opcode: OpSendBinary, Argument: uint8(BinaryPlus)})
	e.Emit(Instruction{Opcode: OpDoSpecial, Argument: uint8(SpecialStackReturn)})

	all := DecodeAll(e.Bytes())
	if len(all) != 4 {
		t.Fatalf("DecodeAll len = %d, want 4", len(all))
	}
	var got []Instruction
	for _, pi := range all {
		got = append(got, pi.Instruction)
	}
	want := []Instruction{
		{Opcode: OpPushArgument, Argument: 0},
		{Opcode: OpPushArgument, Argument: 1},
		{Opcode: OpSendBinary, Argument: uint8(BinaryPlus)},
		{Opcode: OpDoSpecial, Argument: uint8(SpecialStackReturn)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DecodeAll = %+v, want %+v", got, want)
	}
}

func TestPatchBranchTarget(t *testing.T) {
	e := NewEncoder()
	pos := e.Emit(Instruction{Opcode: OpDoSpecial, Argument: uint8(SpecialBranch), Extra: 0})
	e.PatchBranchTarget(pos, 42)
	got := NewDecoder(e.Bytes()).Next()
	if got.Extra != 42 {
		t.Fatalf("patched extra = %d, want 42", got.Extra)
	}
}

func TestInstructionClassification(t *testing.T) {
	branch := Instruction{Opcode: OpDoSpecial, Argument: uint8(SpecialBranchIfFalse)}
	if !branch.IsBranch() || !branch.IsTerminator() {
		t.Fatalf("conditional branch must be branch and terminator")
	}
	if !branch.IsValueConsumer() {
		t.Fatalf("conditional branch pops its boolean receiver")
	}

	ret := Instruction{Opcode: OpDoSpecial, Argument: uint8(SpecialStackReturn)}
	if ret.IsBranch() || !ret.IsTerminator() {
		t.Fatalf("stackReturn is a terminator but not a branch")
	}

	push := Instruction{Opcode: OpPushArgument, Argument: 0}
	if !push.IsValueProvider() || !push.IsTrivial() || push.IsValueConsumer() {
		t.Fatalf("pushArgument should provide a value, be trivial, and consume nothing")
	}

	send := Instruction{Opcode: OpSendMessage}
	if !send.MayCauseGC() {
		t.Fatalf("sendMessage may allocate/activate and so may cause gc")
	}
}
