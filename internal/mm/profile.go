package mm

import (
	"io"
	"time"

	"github.com/google/pprof/profile"

	"stvm/internal/object"
)

// HeapProfile walks the live object graph reachable from roots and handles
// and renders it as a pprof heap profile: one sample per class name, valued
// in object count and bytes. This gives spec.md's allocator something
// a reader can open in `go tool pprof` to see where semi-space bytes went,
// the same way cmd_local/trace consumes google/pprof/profile to render
// execution traces.
func (m *CopyingManager) HeapProfile() *profile.Profile {
	return buildHeapProfile(m.active.used(), m.roots, m.handles)
}

// HeapProfile is the NonCollectManager equivalent; BytesInUse sums every
// chunk since there are no semi-spaces to choose between.
func (m *NonCollectManager) HeapProfile() *profile.Profile {
	total := 0
	for _, c := range m.chunks {
		total += c.used()
	}
	return buildHeapProfile(total, m.roots, m.handles)
}

func buildHeapProfile(bytesInUse int, roots RootProvider, handles []*Handle) *profile.Profile {
	byClass := map[string]*classTally{}
	order := []string{}

	visited := map[object.HeapObject]bool{}
	tally := func(r object.Ref) {
		if r.IsSmallInt() || r.IsNilRef() {
			return
		}
		walkHeapObject(r.Heap(), visited, func(name string, size int) {
			t, ok := byClass[name]
			if !ok {
				t = &classTally{}
				byClass[name] = t
				order = append(order, name)
			}
			t.count++
			t.bytes += int64(size)
		})
	}

	if roots != nil {
		for _, p := range roots.GCRoots() {
			tally(*p)
		}
	}
	for _, h := range handles {
		tally(h.ref)
	}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "objects", Unit: "count"},
			{Type: "space", Unit: "bytes"},
		},
		TimeNanos: 0,
	}

	funcs := map[string]*profile.Function{}
	locs := map[string]*profile.Location{}
	nextID := uint64(1)
	funcFor := func(name string) *profile.Function {
		if f, ok := funcs[name]; ok {
			return f
		}
		f := &profile.Function{ID: nextID, Name: name}
		nextID++
		funcs[name] = f
		p.Function = append(p.Function, f)
		return f
	}
	locFor := func(name string) *profile.Location {
		if l, ok := locs[name]; ok {
			return l
		}
		f := funcFor(name)
		l := &profile.Location{
			ID:   nextID,
			Line: []profile.Line{{Function: f}},
		}
		nextID++
		locs[name] = l
		p.Location = append(p.Location, l)
		return l
	}

	for _, name := range order {
		t := byClass[name]
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{locFor(name)},
			Value:    []int64{t.count, t.bytes},
		})
	}

	_ = bytesInUse // retained for callers that want it via Stats() instead
	return p
}

type classTally struct {
	count int64
	bytes int64
}

// walkHeapObject visits obj and everything it reaches, invoking record once
// per distinct object with the class-ish name to bucket it under and its
// accounted size.
func walkHeapObject(obj object.HeapObject, visited map[object.HeapObject]bool, record func(name string, size int)) {
	if obj == nil || visited[obj] {
		return
	}
	visited[obj] = true

	switch v := obj.(type) {
	case *object.Ordinary:
		record(className(v.Class), ordinaryBytes(v.Size))
		for _, s := range v.Slots {
			if !s.IsSmallInt() && !s.IsNilRef() {
				walkHeapObject(s.Heap(), visited, record)
			}
		}
	case *object.Binary:
		record(className(v.Class), v.Size)
	case *object.Context:
		record("Context", 0)
		for _, s := range v.Arguments {
			if !s.IsSmallInt() && !s.IsNilRef() {
				walkHeapObject(s.Heap(), visited, record)
			}
		}
		for _, s := range v.Temporaries {
			if !s.IsSmallInt() && !s.IsNilRef() {
				walkHeapObject(s.Heap(), visited, record)
			}
		}
		for _, s := range v.Stack {
			if !s.IsSmallInt() && !s.IsNilRef() {
				walkHeapObject(s.Heap(), visited, record)
			}
		}
		if v.Previous != nil {
			walkHeapObject(v.Previous, visited, record)
		}
		if v.CreatingContext != nil {
			walkHeapObject(v.CreatingContext, visited, record)
		}
	case *object.Block:
		record("Block", wordBytes*3)
		if v.CreatingContext != nil {
			walkHeapObject(v.CreatingContext, visited, record)
		}
	case *object.Process:
		record("Process", 0)
		if v.Context != nil {
			walkHeapObject(v.Context, visited, record)
		}
		if !v.Result.IsSmallInt() && !v.Result.IsNilRef() {
			walkHeapObject(v.Result.Heap(), visited, record)
		}
	default:
		record("static", 0)
	}
}

func className(c *object.Class) string {
	if c == nil || c.Name == nil {
		return "?"
	}
	return c.Name.String()
}

// WriteHeapProfile renders p in pprof's gzip-protobuf wire format.
func WriteHeapProfile(w io.Writer, p *profile.Profile) error {
	p.TimeNanos = time.Now().UnixNano()
	return p.Write(w)
}
