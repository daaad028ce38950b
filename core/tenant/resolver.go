package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crewmux/crewmux/core/cache"
	"github.com/crewmux/crewmux/core/infra/config"
	"github.com/crewmux/crewmux/core/infra/logging"
)

const component = "tenant"

// ErrUnresolved reports that no resolution step produced a domain. The
// resolver never invents a default: serving an unresolvable identity from a
// guessed domain would hand one tenant's crew to another tenant's
// conversation.
var ErrUnresolved = errors.New("tenant unresolved")

// Request carries the channel identity of one inbound message.
type Request struct {
	ConversationID   string
	Channel          string
	ChannelAccountID string
	InboxID          string

	// ExplicitDomain/ExplicitAccount short-circuit resolution. Used by
	// internal tooling and tests, never set from external channel metadata.
	ExplicitDomain  string
	ExplicitAccount string
}

// Resolver maps channel identities to tenants. All persistent state lives in
// the layered cache; the static channel table is the operator-provided floor
// of the resolution chain.
type Resolver struct {
	cache *cache.Layered
	table *config.ChannelTable
}

// NewResolver builds a resolver over a layered cache and a channel table.
// The table may be nil when a deployment resolves purely via bindings and
// explicit hints.
func NewResolver(c *cache.Layered, table *config.ChannelTable) *Resolver {
	return &Resolver{cache: c, table: table}
}

// Resolve determines the (domain, internal account) pair for a message and
// binds the conversation to it. Resolution order, first hit wins: explicit
// hints, existing conversation binding, client-level binding, static channel
// table, operator-enabled fallback domain. Once a conversation is bound, the
// binding wins over every later step on subsequent messages.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Binding, error) {
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id required")
	}

	if req.ExplicitDomain != "" {
		account := req.ExplicitAccount
		if account == "" {
			var err error
			account, err = r.ensureClient(ctx, req.Channel, req.ChannelAccountID)
			if err != nil {
				return nil, err
			}
		}
		return r.bind(ctx, conversationID, req.ExplicitDomain, account, SourceExplicit)
	}

	var existing Binding
	err := r.cache.Get(ctx, convKey(conversationID), &existing)
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		return nil, err
	}

	account, err := r.ensureClient(ctx, req.Channel, req.ChannelAccountID)
	if err != nil {
		return nil, err
	}

	if account != "" {
		var bound domainRecord
		err := r.cache.Get(ctx, domainKey(account), &bound)
		if err == nil && bound.DomainName != "" {
			return r.bind(ctx, conversationID, bound.DomainName, account, SourceClient)
		}
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			return nil, err
		}
	}

	if domain, ok := r.table.DomainFor(req.Channel, req.ChannelAccountID, req.InboxID); ok {
		return r.bind(ctx, conversationID, domain, account, SourceChannelTable)
	}

	if domain, ok := r.table.Fallback(); ok {
		return r.bind(ctx, conversationID, domain, account, SourceFallback)
	}

	logging.Warn(component, "no resolution step matched",
		"conversation_id", conversationID,
		"channel", req.Channel,
		"account_id", req.ChannelAccountID,
		"inbox_id", req.InboxID)
	return nil, fmt.Errorf("channel %q account %q inbox %q: %w",
		req.Channel, req.ChannelAccountID, req.InboxID, ErrUnresolved)
}

// bind writes the conversation binding, check-then-set. A concurrent
// resolution that lost the race reads back the winner's binding instead of
// installing its own, so two racing resolutions can never split one
// conversation across domains.
func (r *Resolver) bind(ctx context.Context, conversationID, domain, account, source string) (*Binding, error) {
	var existing Binding
	err := r.cache.Get(ctx, convKey(conversationID), &existing)
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		return nil, err
	}

	binding := &Binding{
		ConversationID:    conversationID,
		DomainName:        domain,
		InternalAccountID: account,
		Source:            source,
		CreatedAt:         time.Now().UTC(),
	}
	if err := r.cache.Set(ctx, convKey(conversationID), binding, ConversationTTL); err != nil {
		return nil, err
	}
	if account != "" {
		r.recordClientDomain(ctx, account, domain)
	}
	logging.Info(component, "conversation bound",
		"conversation_id", conversationID,
		"domain", domain,
		"account", account,
		"source", source)
	return binding, nil
}

// ensureClient returns the stable internal id for an external channel
// account, minting and persisting one on first contact. An empty external id
// yields an empty internal id: anonymous conversations carry no client-level
// state.
func (r *Resolver) ensureClient(ctx context.Context, channel, externalAccountID string) (string, error) {
	externalAccountID = strings.TrimSpace(externalAccountID)
	if externalAccountID == "" {
		return "", nil
	}
	key := clientKey(channel, externalAccountID)

	var record clientRecord
	err := r.cache.Get(ctx, key, &record)
	if err == nil && record.InternalID != "" {
		return record.InternalID, nil
	}
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		return "", err
	}

	record = clientRecord{
		InternalID: uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.cache.Set(ctx, key, &record, IdentityTTL); err != nil {
		return "", err
	}
	logging.Info(component, "client id minted",
		"channel", channel, "account_id", externalAccountID, "internal_id", record.InternalID)
	return record.InternalID, nil
}

// recordClientDomain remembers which domain serves a client so future
// conversations of the same client resolve without the channel table.
// Failures are absorbed: the conversation binding already holds.
func (r *Resolver) recordClientDomain(ctx context.Context, internalID, domain string) {
	var bound domainRecord
	err := r.cache.Get(ctx, domainKey(internalID), &bound)
	if err == nil && bound.DomainName != "" {
		return
	}
	record := domainRecord{DomainName: domain, CreatedAt: time.Now().UTC()}
	if err := r.cache.Set(ctx, domainKey(internalID), &record, ClientDomainTTL); err != nil {
		logging.Warn(component, "failed to record client domain",
			"internal_id", internalID, "domain", domain, "error", err)
	}
}

// InvalidateConversation drops a conversation binding. The next message on
// the conversation re-resolves from scratch.
func (r *Resolver) InvalidateConversation(ctx context.Context, conversationID string) error {
	return r.cache.Invalidate(ctx, convKey(conversationID))
}

// InvalidateClient drops a client's domain binding. Existing conversation
// bindings stay in force until they are invalidated or expire.
func (r *Resolver) InvalidateClient(ctx context.Context, internalID string) error {
	return r.cache.Invalidate(ctx, domainKey(internalID))
}

// Lookup returns the current binding of a conversation without creating one.
func (r *Resolver) Lookup(ctx context.Context, conversationID string) (*Binding, error) {
	var binding Binding
	if err := r.cache.Get(ctx, convKey(conversationID), &binding); err != nil {
		return nil, err
	}
	return &binding, nil
}
