package object

// Block is a closure-like object created by a push-block instruction
// (spec.md §4.5 "push-block"). It holds the context that was active when
// the block literal was pushed, the temporary-array index at which its own
// arguments are stored, and the PC within its creating method's bytecode at
// which the block body starts.
type Block struct {
	Header
	CreatingContext  *Context
	ArgumentLocation int
	StartPC          int
}

// Array is just an Ordinary object whose Class is the well-known Array
// class; mark-arguments and the primitive array operations build it as a
// plain Ordinary via Runtime.NewOrdinary, so there is no distinct Go type —
// this helper only documents the convention used throughout the interpreter
// and CFG/SSA layers when they need to recognize "the array the send
// consumed".
func NewArraySlots(class *Class, slots []Ref) *Ordinary {
	return &Ordinary{
		Header: Header{Size: len(slots), Class: class},
		Slots:  slots,
	}
}
