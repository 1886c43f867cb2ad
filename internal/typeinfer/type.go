// Package typeinfer implements spec.md §4.8's type lattice and forward
// dataflow analysis over an internal/ssa.Graph. Grounded on
// _examples/original_source/include/inference.h's Type/CallContext/
// TypeSystem/TypeAnalyzer shapes — the only original-source file in the
// retrieval pack that discusses type inference.
package typeinfer

import "stvm/internal/object"

// Kind is one of the six type-lattice members spec.md §4.8 names.
type Kind int

const (
	KindUndefined Kind = iota
	KindLiteral
	KindMonotype
	KindComposite
	KindArray
	KindPolytype
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindLiteral:
		return "literal"
	case KindMonotype:
		return "monotype"
	case KindComposite:
		return "composite"
	case KindArray:
		return "array"
	case KindPolytype:
		return "polytype"
	default:
		return "kind?"
	}
}

// Type is one value in the lattice. Only the fields relevant to Kind are
// meaningful: Literal carries Value, Monotype carries Class, Composite
// carries Members (a deduplicated class set, represented as Monotype
// values), Array carries Elements (one Type per element slot).
type Type struct {
	Kind     Kind
	Value    object.Ref
	Class    *object.Class
	Members  []Type
	Elements []Type
}

// Undefined is the lattice's bottom element: no information yet.
var Undefined = Type{Kind: KindUndefined}

// Polytype is the lattice's top element: no useful information ever will
// be available (an argument position the caller leaves fully open).
var Polytype = Type{Kind: KindPolytype}

func Literal(v object.Ref) Type { return Type{Kind: KindLiteral, Value: v} }

func Monotype(c *object.Class) Type { return Type{Kind: KindMonotype, Class: c} }

func Array(elements []Type) Type { return Type{Kind: KindArray, Elements: elements} }

func Composite(members ...Type) Type { return Type{Kind: KindComposite, Members: dedupMembers(members)} }

// sameClass reports whether a and b are the same *object.Class pointer;
// object.Class instances are interned once during image construction, so
// pointer identity is class identity (spec.md §4.4).
func sameClass(a, b *object.Class) bool { return a == b }

func dedupMembers(members []Type) []Type {
	var out []Type
	for _, m := range members {
		found := false
		for _, o := range out {
			if classOf(o) != nil && classOf(m) != nil && sameClass(classOf(o), classOf(m)) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, m)
		}
	}
	return out
}

// classOf returns the class a Monotype type denotes, or nil for any other
// kind (Literal included) — used only to dedupe Composite members by class
// identity.
func classOf(t Type) *object.Class {
	switch t.Kind {
	case KindMonotype:
		return t.Class
	default:
		return nil
	}
}

// Join implements spec.md §4.8's lattice join (⊔). classOf resolves a
// Literal value to its defining class, the step "Literal(a) ⊔ Literal(b) =
// Monotype(classOf(a)) if classes equal" needs but the C++ source leaves to
// the surrounding runtime — here it is the caller-supplied roots.ClassOf.
func Join(a, b Type, classOfValue func(object.Ref) *object.Class) Type {
	if a.Kind == KindPolytype || b.Kind == KindPolytype {
		return Polytype
	}
	if a.Kind == KindUndefined {
		return b
	}
	if b.Kind == KindUndefined {
		return a
	}

	if a.Kind == KindLiteral && b.Kind == KindLiteral {
		if a.Value.Equal(b.Value) {
			return a
		}
		ca, cb := classOfValue(a.Value), classOfValue(b.Value)
		if sameClass(ca, cb) {
			return Monotype(ca)
		}
		return Composite(Monotype(ca), Monotype(cb))
	}

	if a.Kind == KindLiteral {
		a = Monotype(classOfValue(a.Value))
	}
	if b.Kind == KindLiteral {
		b = Monotype(classOfValue(b.Value))
	}

	if a.Kind == KindArray && b.Kind == KindArray {
		if len(a.Elements) == len(b.Elements) {
			joined := make([]Type, len(a.Elements))
			for i := range joined {
				joined[i] = Join(a.Elements[i], b.Elements[i], classOfValue)
			}
			return Array(joined)
		}
		return Composite(a, b)
	}

	if a.Kind == KindMonotype && b.Kind == KindMonotype {
		if sameClass(a.Class, b.Class) {
			return a
		}
		return Composite(a, b)
	}

	if a.Kind == KindComposite || b.Kind == KindComposite {
		var members []Type
		if a.Kind == KindComposite {
			members = append(members, a.Members...)
		} else {
			members = append(members, a)
		}
		if b.Kind == KindComposite {
			members = append(members, b.Members...)
		} else {
			members = append(members, b)
		}
		return Composite(members...)
	}

	return Composite(a, b)
}

// MoreConcrete reports whether a carries strictly more information than b —
// used by the monotonicity test (spec.md §8) to check that a more concrete
// argument type never yields a less concrete return type.
func MoreConcrete(a, b Type) bool {
	rank := func(t Type) int {
		switch t.Kind {
		case KindPolytype:
			return 0
		case KindComposite, KindArray:
			return 1
		case KindMonotype:
			return 2
		case KindLiteral:
			return 3
		default:
			return -1
		}
	}
	return rank(a) > rank(b)
}
