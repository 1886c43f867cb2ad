package mm

import "stvm/internal/object"

// CollectGarbage runs the Cheney-style copying collection of spec.md §4.1:
//
//  1. Swap active/inactive semi-space.
//  2. Scan the root set.
//  3. Forward each root pointer (copy on first visit, reuse forwarding
//     after).
//  4. Cheney-scan the to-space, forwarding every non-binary object's slots.
//  5. Zero (here: reset the bump cursor of) the from-space.
//
// Only Ordinary, Binary, Context, Block and Process objects are ever
// copied — Class, Method and Symbol are always static-heap objects in this
// implementation (see DESIGN.md), so they need no forwarding logic.
func (m *CopyingManager) CollectGarbage() {
	m.active, m.inactive = m.inactive, m.active
	m.active.reset()
	m.toScan = m.toScan[:0]

	if m.roots != nil {
		for _, p := range m.roots.GCRoots() {
			*p = m.forwardRef(*p)
		}
	}
	// Handles are updated in place: the Handle's own Ref is the root.
	for _, h := range m.handles {
		h.ref = m.forwardRef(h.ref)
	}

	freedBefore := m.inactive.used()
	for len(m.toScan) > 0 {
		n := len(m.toScan) - 1
		obj := m.toScan[n]
		m.toScan = m.toScan[:n]
		m.scanOne(obj)
	}
	m.inactive.reset()

	m.stats.Collections++
	m.stats.LastGCFreed = freedBefore
}

// forwardRef forwards a single Ref: SmallInts and the nil Ref pass through
// unchanged; a heap Ref is copied (on first visit) or redirected to its
// existing forwarding address.
func (m *CopyingManager) forwardRef(r object.Ref) object.Ref {
	if r.IsSmallInt() || r.IsNilRef() {
		return r
	}
	return object.FromHeap(m.forward(r.Heap()))
}

// forward copies obj into the active (to-)space on first visit and installs
// forwarding on the old header; subsequent calls for the same obj return the
// already-forwarded copy. Returns obj unchanged for object kinds this
// collector treats as permanently static (Class, Method, Symbol).
func (m *CopyingManager) forward(obj object.HeapObject) object.HeapObject {
	if obj == nil {
		return nil
	}
	hdr := obj.Hdr()
	if hdr.IsRelocated() {
		return hdr.Forward
	}

	var fresh object.HeapObject
	switch v := obj.(type) {
	case *object.Ordinary:
		n := &object.Ordinary{Header: v.Header, Slots: append([]object.Ref(nil), v.Slots...)}
		n.Flags &^= object.FlagRelocated
		fresh = n
	case *object.Binary:
		n := &object.Binary{Header: v.Header, Bytes: append([]byte(nil), v.Bytes...)}
		n.Flags &^= object.FlagRelocated
		fresh = n
	case *object.Context:
		n := &object.Context{
			Header:           v.Header,
			Method:           v.Method,
			Arguments:        append([]object.Ref(nil), v.Arguments...),
			Temporaries:      append([]object.Ref(nil), v.Temporaries...),
			Stack:            append([]object.Ref(nil), v.Stack...),
			StackTop:         v.StackTop,
			Previous:         v.Previous,
			PC:               v.PC,
			CreatingContext:  v.CreatingContext,
			ArgumentLocation: v.ArgumentLocation,
		}
		n.Flags &^= object.FlagRelocated
		fresh = n
	case *object.Block:
		n := &object.Block{Header: v.Header, CreatingContext: v.CreatingContext, ArgumentLocation: v.ArgumentLocation, StartPC: v.StartPC}
		n.Flags &^= object.FlagRelocated
		fresh = n
	case *object.Process:
		n := &object.Process{Header: v.Header, Context: v.Context, Result: v.Result}
		n.Flags &^= object.FlagRelocated
		fresh = n
	default:
		// Class, Method, Symbol, or anything else: static, never moved.
		return obj
	}

	hdr.SetForward(fresh)
	m.toScan = append(m.toScan, fresh)
	return fresh
}

// scanOne forwards every pointer-valued field reachable from obj, which is
// already resident in the to-space. This is the Cheney scan step: it turns
// pointers-to-old-copies into pointers-to-new-copies one object at a time.
func (m *CopyingManager) scanOne(obj object.HeapObject) {
	switch v := obj.(type) {
	case *object.Ordinary:
		for i, s := range v.Slots {
			v.Slots[i] = m.forwardRef(s)
		}
	case *object.Binary:
		// binary objects carry no pointers; spec.md step 4: "for each
		// object that is not binary, forward each slot."
	case *object.Context:
		for i, s := range v.Arguments {
			v.Arguments[i] = m.forwardRef(s)
		}
		for i, s := range v.Temporaries {
			v.Temporaries[i] = m.forwardRef(s)
		}
		for i, s := range v.Stack {
			v.Stack[i] = m.forwardRef(s)
		}
		if v.Previous != nil {
			v.Previous = m.forward(v.Previous).(*object.Context)
		}
		if v.CreatingContext != nil {
			v.CreatingContext = m.forward(v.CreatingContext).(*object.Context)
		}
	case *object.Block:
		if v.CreatingContext != nil {
			v.CreatingContext = m.forward(v.CreatingContext).(*object.Context)
		}
	case *object.Process:
		if v.Context != nil {
			v.Context = m.forward(v.Context).(*object.Context)
		}
		v.Result = m.forwardRef(v.Result)
	}
}
