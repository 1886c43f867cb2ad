package object

// Class is the runtime representation of a Smalltalk class: a name, a
// parent (nil at the root), and a method dictionary. It is itself an
// ordinary heap object in the source VM; here it is a distinguished Go type
// so the interpreter can switch on it without a cast, matching how the
// teacher's compiler distinguishes *types.Type from other IR values.
type Class struct {
	Header
	Name       *Symbol
	Parent     *Class
	Methods    *Dictionary // selector (*Symbol) -> *Method, sorted
	Instances  int         // instance variable count (own, not counting Parent's)
}

// InstanceSlotCount returns the total instance-variable slot count,
// including inherited slots, the way LLST's TClass::instanceCount walks the
// parent chain.
func (c *Class) InstanceSlotCount() int {
	n := 0
	for k := c; k != nil; k = k.Parent {
		n += k.Instances
	}
	return n
}

// LookupOwn looks up selector only in this class's own method dictionary
// (no parent walk). Returns nil if absent.
func (c *Class) LookupOwn(selector *Symbol) *Method {
	v, ok := c.Methods.Find(selector)
	if !ok {
		return nil
	}
	return v.(*Method)
}

// Symbol is an interned binary object holding selector or literal text.
// Interning (see SymbolTable) guarantees equal text implies equal pointer,
// which is what makes MethodCache's XOR-of-addresses hash valid (spec.md
// §4.2).
type Symbol struct {
	Binary
	text string
}

func (s *Symbol) String() string { return s.text }

// SymbolTable interns symbol text to a single, stable *Symbol per distinct
// string — grounded on TSymbol's intern table in LLST's symbol init.
type SymbolTable struct {
	table map[string]*Symbol
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{table: make(map[string]*Symbol)}
}

// Intern returns the canonical *Symbol for text, allocating a new Binary
// payload the first time text is seen.
func (t *SymbolTable) Intern(text string) *Symbol {
	if s, ok := t.table[text]; ok {
		return s
	}
	s := &Symbol{
		Binary: Binary{
			Header: Header{Size: wordRoundedBytes(len(text)), Flags: FlagIsBinary},
			Bytes:  []byte(text),
		},
		text: text,
	}
	t.table[text] = s
	return s
}

func wordRoundedBytes(n int) int {
	const word = 8
	return (n + word - 1) / word * word
}

// Dictionary is the sorted parallel-array (keys, values) structure spec.md
// §3 describes for class method dictionaries: lookup is binary search over
// lexicographically-sorted symbol keys, grounded on LLST's
// TDictionary::find (std::lower_bound over symbol byte spans).
type Dictionary struct {
	keys   []*Symbol
	values []interface{}
}

func NewDictionary() *Dictionary { return &Dictionary{} }

// Find performs the binary search described in spec.md §3. Returns
// (value, true) on an exact match, (nil, false) otherwise.
func (d *Dictionary) Find(key *Symbol) (interface{}, bool) {
	i := d.lowerBound(key.text)
	if i < len(d.keys) && d.keys[i].text == key.text {
		return d.values[i], true
	}
	return nil, false
}

// lowerBound returns the first index whose key is >= text, lexicographically,
// the same insertion point std::lower_bound would return.
func (d *Dictionary) lowerBound(text string) int {
	lo, hi := 0, len(d.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if d.keys[mid].text < text {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Set installs or overwrites the value for key, keeping keys sorted. A
// class-mutating Set must be followed by clearing the method cache (spec.md
// §3 invariant: "every method dictionary mutation... clears the cache");
// nothing in this package clears it, so enforcing that is the caller's job.
func (d *Dictionary) Set(key *Symbol, value interface{}) {
	i := d.lowerBound(key.text)
	if i < len(d.keys) && d.keys[i].text == key.text {
		d.values[i] = value
		return
	}
	d.keys = append(d.keys, nil)
	d.values = append(d.values, nil)
	copy(d.keys[i+1:], d.keys[i:])
	copy(d.values[i+1:], d.values[i:])
	d.keys[i] = key
	d.values[i] = value
}

func (d *Dictionary) Len() int { return len(d.keys) }

func (d *Dictionary) At(i int) (*Symbol, interface{}) { return d.keys[i], d.values[i] }
