package configstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	store, err := New("redis://" + srv.Addr())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSetGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := &Document{
		Scope:   ScopeDomain,
		ScopeID: "cosmetics",
		Data:    map[string]any{"domain_name": "Cosmetics"},
	}
	if err := store.Set(ctx, doc); err != nil {
		t.Fatalf("set: %v", err)
	}
	if doc.Revision != 1 {
		t.Fatalf("revision = %d, want 1", doc.Revision)
	}

	got, err := store.Get(ctx, ScopeDomain, "cosmetics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Data["domain_name"] != "Cosmetics" {
		t.Fatalf("round trip mismatch: %#v", got.Data)
	}

	if _, err := store.Get(ctx, ScopeDomain, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRejectsInvalidDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := &Document{
		Scope:   ScopeDomain,
		ScopeID: "cosmetics",
		Data: map[string]any{
			"handlers": map[string]any{
				"sales": map[string]any{"process": "sequential"},
			},
		},
	}
	if err := store.Set(ctx, doc); err == nil {
		t.Fatalf("handler without agents/tasks should fail schema validation")
	}
}

func TestMergedLayering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustSet := func(doc *Document) {
		t.Helper()
		if err := store.Set(ctx, doc); err != nil {
			t.Fatalf("set %s/%s: %v", doc.Scope, doc.ScopeID, err)
		}
	}
	mustSet(&Document{Scope: ScopeBase, Data: map[string]any{
		"agent_defaults": map[string]any{"verbose": true, "allow_delegation": false},
		"tone":           "neutral",
	}})
	mustSet(&Document{Scope: ScopeDomain, ScopeID: "cosmetics", Data: map[string]any{
		"domain_name": "Cosmetics",
		"tone":        "friendly",
	}})
	mustSet(&Document{Scope: ScopeAccount, ScopeID: AccountScopeID("cosmetics", "acc-1"), Data: map[string]any{
		"agent_defaults": map[string]any{"allow_delegation": true},
	}})

	merged, err := store.Merged(ctx, "cosmetics", "acc-1")
	if err != nil {
		t.Fatalf("merged: %v", err)
	}
	if merged["domain_name"] != "Cosmetics" || merged["tone"] != "friendly" {
		t.Fatalf("domain layer not applied: %#v", merged)
	}
	defaults := merged["agent_defaults"].(map[string]any)
	if defaults["allow_delegation"] != true {
		t.Fatalf("account layer must win: %#v", defaults)
	}
	if defaults["verbose"] != true {
		t.Fatalf("base layer lost under account override: %#v", defaults)
	}

	// Another account of the same domain must not see acc-1's override.
	merged2, err := store.Merged(ctx, "cosmetics", "acc-2")
	if err != nil {
		t.Fatalf("merged acc-2: %v", err)
	}
	if merged2["agent_defaults"].(map[string]any)["allow_delegation"] != false {
		t.Fatalf("cross-account leak: %#v", merged2)
	}
}

func TestMergedMissingDomain(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Merged(context.Background(), "ghost", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing domain, got %v", err)
	}
}

func TestSeedFromDir(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	seed := `scope: domain
scope_id: cosmetics
data:
  domain_name: Cosmetics
  agents:
    advisor:
      role: Beauty Advisor
      goal: Help customers pick products
`
	if err := os.WriteFile(filepath.Join(dir, "cosmetics.yaml"), []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	n, err := store.SeedFromDir(ctx, dir)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 1 {
		t.Fatalf("seeded %d docs, want 1", n)
	}

	doc, err := store.Get(ctx, ScopeDomain, "cosmetics")
	if err != nil {
		t.Fatalf("get seeded: %v", err)
	}
	agents := doc.Data["agents"].(map[string]any)
	if agents["advisor"].(map[string]any)["role"] != "Beauty Advisor" {
		t.Fatalf("seeded data mismatch: %#v", doc.Data)
	}

	// Seeding again must not clobber the stored revision.
	if n, err := store.SeedFromDir(ctx, dir); err != nil || n != 0 {
		t.Fatalf("re-seed wrote %d docs (err %v), want 0", n, err)
	}
}
