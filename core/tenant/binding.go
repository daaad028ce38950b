// Package tenant resolves inbound channel identities to a (domain,
// internal-account-id) pair and persists the resulting bindings through the
// layered cache so a conversation keeps routing to the same tenant for its
// whole lifetime.
package tenant

import "time"

// Binding ties a conversation to the tenant that serves it. Bindings are
// written once on first resolution and never mutated in place; changing a
// conversation's tenant requires an administrative invalidation.
type Binding struct {
	ConversationID    string    `json:"conversation_id"`
	DomainName        string    `json:"domain_name"`
	InternalAccountID string    `json:"internal_account_id"`
	Source            string    `json:"source"`
	CreatedAt         time.Time `json:"created_at"`
}

// clientRecord maps an external channel account id to a stable internal
// client id, minted on first contact.
type clientRecord struct {
	InternalID string    `json:"internal_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// domainRecord holds a client's bound domain.
type domainRecord struct {
	DomainName string    `json:"domain_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Binding sources, recorded for audit.
const (
	SourceExplicit     = "explicit"
	SourceConversation = "conversation"
	SourceClient       = "client"
	SourceChannelTable = "channel_table"
	SourceFallback     = "fallback"
)

// TTL ladder: conversations are the shortest-lived bindings, a client's
// domain binding outlives them, and the channel-account to client identity
// mapping outlives both.
const (
	ConversationTTL = 30 * 24 * time.Hour
	ClientDomainTTL = 90 * 24 * time.Hour
	IdentityTTL     = 365 * 24 * time.Hour
)

const (
	convKeyPrefix   = "bind:conv:"
	clientKeyPrefix = "bind:client:"
	domainKeyPrefix = "bind:domain:"
)

func convKey(conversationID string) string {
	return convKeyPrefix + conversationID
}

func clientKey(channel, externalAccountID string) string {
	return clientKeyPrefix + channel + ":" + externalAccountID
}

func domainKey(internalID string) string {
	return domainKeyPrefix + internalID
}
