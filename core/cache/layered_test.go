package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) (*Layered, *miniredis.Miniredis) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	tier2, err := NewRedisTier("redis://" + srv.Addr())
	if err != nil {
		t.Fatalf("new redis tier: %v", err)
	}
	t.Cleanup(func() { tier2.Close() })
	return New(Options{MaxLocalEntries: 8, Redis: tier2}), srv
}

type binding struct {
	Domain  string `json:"domain"`
	Account string `json:"account"`
}

func TestLayeredWriteThenRead(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	want := binding{Domain: "cosmetics", Account: "acc-1"}
	if err := c.Set(ctx, "bind:c1", want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got binding
	if err := c.Get(ctx, "bind:c1", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}

func TestLayeredTier2BackfillsTier1(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", binding{Domain: "retail"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	// Simulate a fresh process: local tier empty, shared tier populated.
	c.DropLocal("k", false)
	if c.LocalLen() != 0 {
		t.Fatalf("local not empty")
	}
	var got binding
	if err := c.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Domain != "retail" {
		t.Fatalf("unexpected value: %#v", got)
	}
	if c.LocalLen() != 1 {
		t.Fatalf("tier2 hit did not backfill tier1")
	}
}

func TestLayeredTTLExpiryIsMiss(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", binding{Domain: "retail"}, 50*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	c.DropLocal("k", false)
	srv.FastForward(time.Second)
	var got binding
	if err := c.Get(ctx, "k", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestLayeredLegacyEntryReadable(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	legacy, err := EncodeLegacy(map[string]any{"domain": "cosmetics", "account": "acc-9"})
	if err != nil {
		t.Fatalf("encode legacy: %v", err)
	}
	srv.Set("bind:old", string(legacy))

	var got binding
	if err := c.Get(ctx, "bind:old", &got); err != nil {
		t.Fatalf("get legacy: %v", err)
	}
	if got.Domain != "cosmetics" || got.Account != "acc-9" {
		t.Fatalf("legacy value mismatch: %#v", got)
	}
}

func TestLayeredUnreadableEntryIsMiss(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	srv.Set("k", "\xde\xad\xbe\xef")
	var got binding
	if err := c.Get(ctx, "k", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss for unreadable entry, got %v", err)
	}
	// The corrupt entry must be gone so the caller's rebuild sticks.
	if srv.Exists("k") {
		t.Fatalf("unreadable entry not dropped from tier2")
	}
}

func TestLayeredInvalidatePrefix(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	for _, key := range []string{"crew:cosmetics:1:a", "crew:cosmetics:1:b", "crew:retail:2:a"} {
		if err := c.Set(ctx, key, binding{Domain: "x"}, time.Minute); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := c.InvalidatePrefix(ctx, "crew:cosmetics:"); err != nil {
		t.Fatalf("invalidate prefix: %v", err)
	}
	var got binding
	if err := c.Get(ctx, "crew:cosmetics:1:a", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after invalidation, got %v", err)
	}
	if err := c.Get(ctx, "crew:retail:2:a", &got); err != nil {
		t.Fatalf("unrelated key invalidated: %v", err)
	}
	if srv.Exists("crew:cosmetics:1:b") {
		t.Fatalf("tier2 prefix delete incomplete")
	}
}

func TestLayeredTier1OnlyWithoutRedis(t *testing.T) {
	c := New(Options{MaxLocalEntries: 4})
	ctx := context.Background()
	if err := c.Set(ctx, "k", binding{Domain: "d"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got binding
	if err := c.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := c.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := c.Get(ctx, "k", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}
