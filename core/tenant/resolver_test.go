package tenant

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/crewmux/crewmux/core/cache"
	"github.com/crewmux/crewmux/core/infra/config"
)

func testTable(t *testing.T, yaml string) *config.ChannelTable {
	t.Helper()
	table, err := config.ParseChannelTable([]byte(yaml))
	if err != nil {
		t.Fatalf("parse channel table: %v", err)
	}
	return table
}

func TestResolveViaChannelTable(t *testing.T) {
	table := testTable(t, `channels:
  - channel: whatsapp
    account_id: "42"
    domain: cosmetics
`)
	r := NewResolver(cache.New(cache.Options{}), table)

	binding, err := r.Resolve(context.Background(), Request{
		ConversationID:   "C1",
		Channel:          "whatsapp",
		ChannelAccountID: "42",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if binding.DomainName != "cosmetics" {
		t.Fatalf("domain = %q, want cosmetics", binding.DomainName)
	}
	if binding.InternalAccountID == "" {
		t.Fatalf("internal account id not minted")
	}
	if binding.Source != SourceChannelTable {
		t.Fatalf("source = %q, want %q", binding.Source, SourceChannelTable)
	}
}

func TestResolveIsIdempotentPerConversation(t *testing.T) {
	table := testTable(t, `channels:
  - account_id: "42"
    domain: cosmetics
`)
	r := NewResolver(cache.New(cache.Options{}), table)
	req := Request{ConversationID: "C1", Channel: "whatsapp", ChannelAccountID: "42"}

	first, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if first.DomainName != second.DomainName || first.InternalAccountID != second.InternalAccountID {
		t.Fatalf("resolution not idempotent: %+v vs %+v", first, second)
	}
}

func TestBindingOutlivesTableChange(t *testing.T) {
	c := cache.New(cache.Options{})
	r := NewResolver(c, testTable(t, `channels:
  - account_id: "42"
    domain: cosmetics
`))
	req := Request{ConversationID: "C1", Channel: "whatsapp", ChannelAccountID: "42"}

	first, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	// Operator remaps account 42. The bound conversation must not move.
	r2 := NewResolver(c, testTable(t, `channels:
  - account_id: "42"
    domain: retail
`))
	second, err := r2.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.DomainName != first.DomainName {
		t.Fatalf("binding moved after table change: %q -> %q", first.DomainName, second.DomainName)
	}

	// A brand-new conversation from the same account follows the client
	// binding written during the first resolution, not the new table row.
	third, err := r2.Resolve(context.Background(), Request{
		ConversationID: "C2", Channel: "whatsapp", ChannelAccountID: "42",
	})
	if err != nil {
		t.Fatalf("third resolve: %v", err)
	}
	if third.DomainName != "cosmetics" {
		t.Fatalf("client binding ignored: %q", third.DomainName)
	}
	if third.InternalAccountID != first.InternalAccountID {
		t.Fatalf("internal id not stable across conversations")
	}
}

func TestBindingTTLLadder(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	tier, err := cache.NewRedisTier("redis://" + srv.Addr())
	if err != nil {
		t.Fatalf("redis tier: %v", err)
	}
	t.Cleanup(func() { tier.Close() })

	r := NewResolver(cache.New(cache.Options{Redis: tier}), testTable(t, `channels:
  - channel: whatsapp
    account_id: "42"
    domain: cosmetics
`))
	binding, err := r.Resolve(context.Background(), Request{
		ConversationID:   "C1",
		Channel:          "whatsapp",
		ChannelAccountID: "42",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if got := srv.TTL(convKey("C1")); got != ConversationTTL {
		t.Fatalf("conversation binding TTL = %v, want %v", got, ConversationTTL)
	}
	if got := srv.TTL(clientKey("whatsapp", "42")); got != IdentityTTL {
		t.Fatalf("identity mapping TTL = %v, want %v", got, IdentityTTL)
	}
	if got := srv.TTL(domainKey(binding.InternalAccountID)); got != ClientDomainTTL {
		t.Fatalf("client domain binding TTL = %v, want %v", got, ClientDomainTTL)
	}
}

func TestResolveUnresolvedFailsClosed(t *testing.T) {
	r := NewResolver(cache.New(cache.Options{}), testTable(t, `channels:
  - account_id: "42"
    domain: cosmetics
`))
	_, err := r.Resolve(context.Background(), Request{
		ConversationID:   "C9",
		Channel:          "whatsapp",
		ChannelAccountID: "unmapped",
	})
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestResolveFallbackOnlyWhenConfigured(t *testing.T) {
	r := NewResolver(cache.New(cache.Options{}), testTable(t, `channels:
  - account_id: "42"
    domain: cosmetics
default_domain: concierge
`))
	binding, err := r.Resolve(context.Background(), Request{
		ConversationID:   "C3",
		Channel:          "web",
		ChannelAccountID: "unmapped",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if binding.DomainName != "concierge" || binding.Source != SourceFallback {
		t.Fatalf("fallback not applied: %+v", binding)
	}
}

func TestResolveExplicitHints(t *testing.T) {
	r := NewResolver(cache.New(cache.Options{}), testTable(t, `channels:
  - account_id: "42"
    domain: cosmetics
`))
	binding, err := r.Resolve(context.Background(), Request{
		ConversationID:  "C4",
		ExplicitDomain:  "retail",
		ExplicitAccount: "acct-internal-7",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if binding.DomainName != "retail" || binding.InternalAccountID != "acct-internal-7" {
		t.Fatalf("explicit hints ignored: %+v", binding)
	}
	if binding.Source != SourceExplicit {
		t.Fatalf("source = %q", binding.Source)
	}
}

func TestInvalidateConversationForcesReResolve(t *testing.T) {
	c := cache.New(cache.Options{})
	r := NewResolver(c, testTable(t, `channels:
  - account_id: "42"
    domain: cosmetics
`))
	req := Request{ConversationID: "C5", Channel: "whatsapp", ChannelAccountID: "42"}
	first, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := r.InvalidateConversation(context.Background(), "C5"); err != nil {
		t.Fatalf("invalidate conversation: %v", err)
	}
	if err := r.InvalidateClient(context.Background(), first.InternalAccountID); err != nil {
		t.Fatalf("invalidate client: %v", err)
	}
	if _, err := r.Lookup(context.Background(), "C5"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("binding survived invalidation: %v", err)
	}

	binding, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if binding.DomainName != "cosmetics" {
		t.Fatalf("re-resolve domain = %q", binding.DomainName)
	}
}
