package mm

import "stvm/internal/object"

// handleOwner is implemented by every Manager that supports scoped handles,
// letting Handle.Release pop the right manager's stack without Handle
// itself being tied to one concrete Manager implementation.
type handleOwner interface {
	releaseHandle(h *Handle)
}

// Handle is a scoped acquisition of a GC root slot (spec.md "Scoped
// handles"): code holding a raw Ref across an allocation point registers it
// as a Handle on construction and releases it on every exit path. Handles
// nest with stack discipline — Release must happen in the reverse order of
// NewHandle, matching LLST's hptr<T>.
type Handle struct {
	owner handleOwner
	ref   object.Ref
}

// Get returns the handle's current value, which may have been repointed by
// an intervening collection.
func (h *Handle) Get() object.Ref { return h.ref }

// Set updates the value the handle protects without changing its scope.
func (h *Handle) Set(v object.Ref) { h.ref = v }

// Release unregisters the handle. Handles must be released in LIFO order;
// releasing out of order panics, the same stack-discipline violation LLST's
// hptr destructor ordering would catch via its own assertion.
func (h *Handle) Release() { h.owner.releaseHandle(h) }

func releaseFromStack(stack []*Handle, h *Handle) []*Handle {
	last := len(stack) - 1
	if last < 0 || stack[last] != h {
		panic("mm: handle released out of stack order")
	}
	return stack[:last]
}

func (m *CopyingManager) NewHandle(v object.Ref) *Handle {
	h := &Handle{owner: m, ref: v}
	m.handles = append(m.handles, h)
	return h
}

func (m *CopyingManager) releaseHandle(h *Handle) { m.handles = releaseFromStack(m.handles, h) }

func (m *NonCollectManager) NewHandle(v object.Ref) *Handle {
	h := &Handle{owner: m, ref: v}
	m.handles = append(m.handles, h)
	return h
}

func (m *NonCollectManager) releaseHandle(h *Handle) { m.handles = releaseFromStack(m.handles, h) }
