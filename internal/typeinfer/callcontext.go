package typeinfer

// CallContext holds, for one method evaluated against one argument
// signature, the argument type, the return type, and a type for every SSA
// node (spec.md §4.8). Grounded directly on inference.h's CallContext,
// down to ArgumentAt's polytype fallback for an out-of-range index when the
// whole argument vector itself collapsed to Polytype.
type CallContext struct {
	Arguments  Type
	ReturnType Type

	// Nested holds one CallContext per ssa.Graph.Nested entry, each
	// analyzed independently (a block literal's body is its own node
	// space, evaluated with its argument vector unknown to this pass).
	Nested []*CallContext

	instructions map[int]Type
}

func newCallContext(arguments Type) *CallContext {
	return &CallContext{Arguments: arguments, ReturnType: Undefined, instructions: map[int]Type{}}
}

// ArgumentAt mirrors inference.h's CallContext::getArgument: indexes into
// the argument vector when it's an Array of per-argument types, otherwise
// (the caller passed a bare Polytype for "no information") every argument
// reads back as Polytype.
func (c *CallContext) ArgumentAt(index int) Type {
	if c.Arguments.Kind != KindArray {
		return Polytype
	}
	if index < 0 || index >= len(c.Arguments.Elements) {
		return Polytype
	}
	return c.Arguments.Elements[index]
}

// InstructionType returns the current type of the SSA node at index, or
// Undefined if the analyzer hasn't visited it yet.
func (c *CallContext) InstructionType(index int) Type {
	if t, ok := c.instructions[index]; ok {
		return t
	}
	return Undefined
}

func (c *CallContext) setInstructionType(index int, t Type) bool {
	old, had := c.instructions[index]
	if had && typesEqual(old, t) {
		return false
	}
	c.instructions[index] = t
	return true
}

func typesEqual(a, b Type) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindLiteral:
		return a.Value.Equal(b.Value)
	case KindMonotype:
		return sameClass(a.Class, b.Class)
	case KindArray:
		if len(a.Elements) != len(b.Elements) {
			return false
		}
		for i := range a.Elements {
			if !typesEqual(a.Elements[i], b.Elements[i]) {
				return false
			}
		}
		return true
	case KindComposite:
		if len(a.Members) != len(b.Members) {
			return false
		}
		for i := range a.Members {
			if !typesEqual(a.Members[i], b.Members[i]) {
				return false
			}
		}
		return true
	default:
		return true // Undefined and Polytype are singletons of their kind
	}
}
