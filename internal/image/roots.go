package image

import (
	"encoding/binary"
	"fmt"

	"stvm/internal/object"
)

// rootsPayloadVersion is the version string EncodeRoots stamps onto the
// image; it is independent of CodecVersion (a payload-grammar bump here
// doesn't require a container-format bump, and vice versa).
const rootsPayloadVersion = "v1.0.0"

// wellKnownClasses lists, in a fixed order, every class spec.md §3's
// registry names or that is otherwise reachable off object.Roots: 9 of the
// 10 exported *Class fields (ClassClass is not in the table), plus the 4
// recoverable only via
// ClassOf(roots.True/False/Nil) — boolClass, trueClass, falseClass and
// nilClass are local to NewRoots and never stored on Roots itself.
func wellKnownClasses(r *object.Roots) []*object.Class {
	trueClass := r.ClassOf(r.True)
	falseClass := r.ClassOf(r.False)
	nilClass := r.ClassOf(r.Nil)
	boolClass := trueClass.Parent
	return []*object.Class{
		r.ObjectClass,
		r.SmallIntClass,
		r.ArrayClass,
		r.StringClass,
		r.SymbolClass,
		r.BlockClass,
		r.ContextClass,
		r.MethodClass,
		r.ProcessClass,
		boolClass,
		trueClass,
		falseClass,
		nilClass,
	}
}

// EncodeRoots serializes roots' well-known-objects table (spec.md §6:
// "Load reconstructs the static heap and registers each well-known object at
// its documented offset") as an image: each class's name, its parent's name
// (empty for the root), and its own instance-variable count, in the fixed
// order wellKnownClasses defines.
func EncodeRoots(roots *object.Roots) ([]byte, error) {
	classes := wellKnownClasses(roots)

	var payload []byte
	var countBytes [4]byte
	binary.BigEndian.PutUint32(countBytes[:], uint32(len(classes)))
	payload = append(payload, countBytes[:]...)

	for _, c := range classes {
		payload = appendLengthPrefixed(payload, []byte(c.Name.String()))
		parentName := ""
		if c.Parent != nil {
			parentName = c.Parent.Name.String()
		}
		payload = appendLengthPrefixed(payload, []byte(parentName))

		var instBytes [4]byte
		binary.BigEndian.PutUint32(instBytes[:], uint32(c.Instances))
		payload = append(payload, instBytes[:]...)
	}

	return Encode(rootsPayloadVersion, payload)
}

// classRecord is one decoded row of the well-known-objects table.
type classRecord struct {
	name       string
	parentName string
	instances  int
}

func decodeClassTable(payload []byte) ([]classRecord, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("image: truncated class table")
	}
	count := binary.BigEndian.Uint32(payload[:4])
	rest := payload[4:]

	records := make([]classRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		var name, parentName []byte
		var err error

		name, rest, err = readLengthPrefixed(rest)
		if err != nil {
			return nil, fmt.Errorf("image: class %d name: %w", i, err)
		}
		parentName, rest, err = readLengthPrefixed(rest)
		if err != nil {
			return nil, fmt.Errorf("image: class %d parent: %w", i, err)
		}
		if len(rest) < 4 {
			return nil, fmt.Errorf("image: class %d: truncated instance count", i)
		}
		instances := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]

		records = append(records, classRecord{
			name:       string(name),
			parentName: string(parentName),
			instances:  int(instances),
		})
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("image: %d trailing bytes after class table", len(rest))
	}
	return records, nil
}

func classTable(classes []*object.Class) []classRecord {
	records := make([]classRecord, len(classes))
	for i, c := range classes {
		parentName := ""
		if c.Parent != nil {
			parentName = c.Parent.Name.String()
		}
		records[i] = classRecord{name: c.Name.String(), parentName: parentName, instances: c.Instances}
	}
	return records
}

// DecodeRoots verifies data's checksum and version, decodes its
// well-known-objects table, and checks it against a freshly constructed
// registry built by calling object.NewRoots(allocOrdinary) — this VM's
// registry layout is fixed, so a well-formed image's table must match it
// exactly, name-for-name, parent-for-parent, slot-count-for-slot-count.
// Any mismatch means data was produced by an incompatible build and is
// rejected rather than silently loaded against the wrong layout.
func DecodeRoots(data []byte, allocOrdinary func(class *object.Class, slots int) *object.Ordinary) (*object.Roots, error) {
	_, payload, err := Decode(data)
	if err != nil {
		return nil, err
	}

	decoded, err := decodeClassTable(payload)
	if err != nil {
		return nil, err
	}

	roots := object.NewRoots(allocOrdinary)
	want := classTable(wellKnownClasses(roots))

	if len(decoded) != len(want) {
		return nil, fmt.Errorf("image: incompatible image layout: got %d well-known classes, want %d", len(decoded), len(want))
	}
	for i := range want {
		if decoded[i] != want[i] {
			return nil, fmt.Errorf("image: incompatible image layout at entry %d: got %+v, want %+v", i, decoded[i], want[i])
		}
	}

	return roots, nil
}
