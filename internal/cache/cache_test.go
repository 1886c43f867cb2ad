package cache

import (
	"testing"

	"stvm/internal/object"
)

func TestMethodCacheHitAfterSet(t *testing.T) {
	c := New()
	sym := &object.Symbol{}
	class := &object.Class{}
	method := &object.Method{}

	if got := c.Get(sym, class); got != nil {
		t.Fatalf("expected miss before Set, got %v", got)
	}
	c.Set(sym, class, method)
	if got := c.Get(sym, class); got != method {
		t.Fatalf("Get after Set = %v, want %v", got, method)
	}

	stat := c.Stat()
	if stat.Hits != 1 || stat.Misses != 1 {
		t.Fatalf("stat = %+v, want 1 hit 1 miss", stat)
	}
}

func TestMethodCacheDistinctKeysDontCollideAsHits(t *testing.T) {
	c := New()
	sym1, sym2 := &object.Symbol{}, &object.Symbol{}
	class := &object.Class{}
	m1 := &object.Method{}

	c.Set(sym1, class, m1)
	if got := c.Get(sym2, class); got != nil {
		t.Fatalf("different selector must miss, got %v", got)
	}
}

func TestMethodCacheClearResetsStatsAndEntries(t *testing.T) {
	c := New()
	sym := &object.Symbol{}
	class := &object.Class{}
	c.Set(sym, class, &object.Method{})
	c.Get(sym, class)

	c.Clear()
	if got := c.Get(sym, class); got != nil {
		t.Fatalf("expected miss after Clear, got %v", got)
	}
	if stat := c.Stat(); stat.Hits != 0 || stat.Misses != 1 {
		t.Fatalf("stat after Clear+one Get = %+v, want 0 hits 1 miss", stat)
	}
}

func TestStatRatio(t *testing.T) {
	tests := []struct {
		name       string
		hits, miss uint64
		want       float64
	}{
		{"empty", 0, 0, 0},
		{"all hits", 10, 0, 100},
		{"all misses", 0, 10, 0},
		{"half", 5, 5, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Stat{Hits: tt.hits, Misses: tt.miss}
			if got := s.Ratio(); got != tt.want {
				t.Fatalf("Ratio() = %v, want %v", got, tt.want)
			}
		})
	}
}
