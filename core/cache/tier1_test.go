package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestTier1InsertionOrderEviction(t *testing.T) {
	evicted := 0
	c := newTier1(3, func() { evicted++ })
	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), []byte{byte(i)}, 0)
	}
	// Touch k0 so an LRU would keep it; insertion-order eviction must not.
	if _, ok := c.Get("k0"); !ok {
		t.Fatalf("k0 missing before overflow")
	}
	c.Set("k3", []byte{3}, 0)

	if _, ok := c.Get("k0"); ok {
		t.Fatalf("oldest-inserted k0 should have been evicted")
	}
	if _, ok := c.Get("k1"); !ok {
		t.Fatalf("k1 should survive")
	}
	if evicted != 1 {
		t.Fatalf("eviction callback fired %d times, want 1", evicted)
	}
	if c.Len() != 3 {
		t.Fatalf("len = %d, want 3", c.Len())
	}
}

func TestTier1ReplaceDoesNotEvict(t *testing.T) {
	c := newTier1(2, nil)
	c.Set("a", []byte("1"), 0)
	c.Set("b", []byte("2"), 0)
	c.Set("a", []byte("3"), 0)
	if got, _ := c.Get("a"); string(got) != "3" {
		t.Fatalf("replacement lost: %q", got)
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("replace evicted an unrelated key")
	}
}

func TestTier1TTLExpiry(t *testing.T) {
	c := newTier1(10, nil)
	c.Set("short", []byte("v"), 10*time.Millisecond)
	if _, ok := c.Get("short"); !ok {
		t.Fatalf("entry missing before expiry")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Fatalf("expired entry still readable")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not removed, len=%d", c.Len())
	}
}

func TestTier1DeletePrefix(t *testing.T) {
	c := newTier1(10, nil)
	c.Set("crew:cosmetics:1:sales", []byte("a"), 0)
	c.Set("crew:cosmetics:2:sales", []byte("b"), 0)
	c.Set("crew:retail:1:sales", []byte("c"), 0)
	c.DeletePrefix("crew:cosmetics:")
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
	if _, ok := c.Get("crew:retail:1:sales"); !ok {
		t.Fatalf("unrelated key removed")
	}
}
