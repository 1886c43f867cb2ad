// Package cache implements the fixed-size direct-mapped method lookup
// cache described in spec.md §4.2: a 512-entry table keyed by a XOR hash of
// selector and class identity, with hit/miss statistics.
package cache

import (
	"unsafe"

	"stvm/internal/object"
)

// lookupCacheSize matches LLST's MethodCache::LOOKUP_CACHE_SIZE.
const lookupCacheSize = 512

type entry struct {
	selector *object.Symbol
	class    *object.Class
	method   *object.Method
}

// Stat mirrors MethodCache::Stat: running hit/miss counters plus a ratio.
type Stat struct {
	Hits   uint64
	Misses uint64
}

// Ratio returns the hit percentage, 0 when the cache has never been
// queried — getRatio()'s "if (hits+misses)==0 return 0.0" guard.
func (s Stat) Ratio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return 100 * float64(s.Hits) / float64(total)
}

// MethodCache is a direct-mapped cache from (selector, class) to the
// resolved *object.Method. Entries are identity-keyed: two distinct Symbol
// or Class values with equal contents never collide as a hit, matching the
// original's address-based hash — which is why object.SymbolTable interning
// matters: equal selector text must share one *Symbol for Get to ever hit.
type MethodCache struct {
	entries [lookupCacheSize]entry
	stat    Stat
}

// New returns a cleared method cache.
func New() *MethodCache { return &MethodCache{} }

func hash(selector *object.Symbol, class *object.Class) uintptr {
	s := uintptr(unsafe.Pointer(selector))
	c := uintptr(unsafe.Pointer(class))
	return (s ^ c) % lookupCacheSize
}

// Get returns the cached method for (selector, class), or nil on a miss.
// Every call updates the running Stat.
func (c *MethodCache) Get(selector *object.Symbol, class *object.Class) *object.Method {
	e := &c.entries[hash(selector, class)]
	if e.selector == selector && e.class == class && e.selector != nil {
		c.stat.Hits++
		return e.method
	}
	c.stat.Misses++
	return nil
}

// Set installs method as the resolution for (selector, class), evicting
// whatever previously occupied that slot.
func (c *MethodCache) Set(selector *object.Symbol, class *object.Class, method *object.Method) {
	c.entries[hash(selector, class)] = entry{selector: selector, class: class, method: method}
}

// Clear empties every entry and resets the statistics, for use after a
// method dictionary mutation invalidates prior lookups (spec.md §4.2:
// "invalidation... clearing the whole cache is always correct").
func (c *MethodCache) Clear() {
	c.entries = [lookupCacheSize]entry{}
	c.stat = Stat{}
}

// Stat returns a snapshot of the cache's hit/miss counters.
func (c *MethodCache) Stat() Stat { return c.stat }
