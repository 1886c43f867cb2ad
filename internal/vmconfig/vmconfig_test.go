package vmconfig

import "testing"

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate(): %v", err)
	}
}

func TestValidateRejectsNonPositiveHeapSize(t *testing.T) {
	c := Default()
	c.HeapSize = 0
	if err := c.Validate(); err == nil {
		t.Fatalf("Validate(): expected error for zero heap size")
	}
}

func TestValidateRejectsMaxSmallerThanSize(t *testing.T) {
	c := Default()
	c.HeapSize = 1 << 20
	c.HeapMaxSize = 1 << 10
	if err := c.Validate(); err == nil {
		t.Fatalf("Validate(): expected error for heap_max < heap size")
	}
}

func TestValidateAllowsZeroHeapMaxSize(t *testing.T) {
	c := Default()
	c.HeapMaxSize = 0 // unset: no cap
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate(): unexpected error for unset heap max: %v", err)
	}
}

func TestValidateRejectsUnknownMMType(t *testing.T) {
	c := Default()
	c.MMType = "bogus"
	if err := c.Validate(); err == nil {
		t.Fatalf("Validate(): expected error for unknown mm type")
	}
}

func TestValidateAcceptsBothMMTypes(t *testing.T) {
	for _, mm := range []MMType{MMCopying, MMNonCollect} {
		c := Default()
		c.MMType = mm
		if err := c.Validate(); err != nil {
			t.Fatalf("Validate() with mm type %q: %v", mm, err)
		}
	}
}

func TestValidateRejectsNegativeTickQuantum(t *testing.T) {
	c := Default()
	c.TickQuantum = -1
	if err := c.Validate(); err == nil {
		t.Fatalf("Validate(): expected error for negative tick quantum")
	}
}
