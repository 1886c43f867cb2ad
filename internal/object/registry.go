package object

// Roots holds the well-known objects and classes spec.md §3 requires every
// component obtain from "a single registry": nil, true, false, SmallInt
// class, Array class, String class, Symbol class, Block class, Context
// class, Method class, Process class, the doesNotUnderstand: symbol, and
// the three binary-operator symbols. These are GC roots (spec.md §4.1 step
// 2) and are mutated only during image construction.
type Roots struct {
	Symbols *SymbolTable

	// Object instances.
	Nil   Ref
	True  Ref
	False Ref

	// Classes.
	ObjectClass  *Class
	SmallIntClass *Class
	ArrayClass    *Class
	StringClass   *Class
	SymbolClass   *Class
	BlockClass    *Class
	ContextClass  *Class
	MethodClass   *Class
	ProcessClass  *Class
	ClassClass    *Class // the metaclass: class-of-class

	// Distinguished symbols.
	DoesNotUnderstand *Symbol
	OperatorPlus      *Symbol
	OperatorLess      *Symbol
	OperatorLessEq    *Symbol
}

// NewRoots constructs the well-known registry: its classes are plain Go
// values, and its singleton instances (nil, true, false) are allocated
// through allocOrdinary. allocOrdinary is the memory manager's
// staticAllocate-backed constructor for ordinary objects (spec.md §4.1: the
// static heap "holds objects allocated during image boot; those are never
// collected").
func NewRoots(allocOrdinary func(class *Class, slots int) *Ordinary) *Roots {
	r := &Roots{Symbols: NewSymbolTable()}

	r.ClassClass = &Class{Header: Header{}, Name: r.Symbols.Intern("Class")}
	r.ClassClass.Class = r.ClassClass // class-of-class is itself

	mkClass := func(name string, parent *Class, instances int) *Class {
		c := &Class{
			Header:    Header{Class: r.ClassClass},
			Name:      r.Symbols.Intern(name),
			Parent:    parent,
			Methods:   NewDictionary(),
			Instances: instances,
		}
		return c
	}

	r.ObjectClass = mkClass("Object", nil, 0)
	r.SmallIntClass = mkClass("SmallInt", r.ObjectClass, 0)
	r.ArrayClass = mkClass("Array", r.ObjectClass, 0)
	r.StringClass = mkClass("String", r.ObjectClass, 0)
	r.SymbolClass = mkClass("Symbol", r.StringClass, 0)
	r.BlockClass = mkClass("Block", r.ObjectClass, 0)
	r.ContextClass = mkClass("Context", r.ObjectClass, 0)
	r.MethodClass = mkClass("Method", r.ObjectClass, 0)
	r.ProcessClass = mkClass("Process", r.ObjectClass, 0)

	boolClass := mkClass("Boolean", r.ObjectClass, 0)
	trueClass := mkClass("True", boolClass, 0)
	falseClass := mkClass("False", boolClass, 0)
	nilClass := mkClass("UndefinedObject", r.ObjectClass, 0)

	r.Nil = FromHeap(allocOrdinary(nilClass, 0))
	r.True = FromHeap(allocOrdinary(trueClass, 0))
	r.False = FromHeap(allocOrdinary(falseClass, 0))

	r.DoesNotUnderstand = r.Symbols.Intern("doesNotUnderstand:")
	r.OperatorPlus = r.Symbols.Intern("+")
	r.OperatorLess = r.Symbols.Intern("<")
	r.OperatorLessEq = r.Symbols.Intern("<=")

	return r
}

// ClassOf implements spec.md §4.4 "Class of object: tag-check first, then
// header class slot." v must not be the sentinel zero-value Ref (IsNilRef);
// every live slot holds either a SmallInt or r.Nil, never the Go zero value.
func (r *Roots) ClassOf(v Ref) *Class {
	if v.IsSmallInt() {
		return r.SmallIntClass
	}
	return v.Header().Class
}
