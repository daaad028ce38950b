// Package configstore persists the hierarchical domain configuration:
// a cross-domain base layer, one document per domain, and optional
// per-account override documents. Documents are validated against a JSON
// Schema when written, so malformed configuration fails at load time rather
// than inside handler construction.
package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crewmux/crewmux/core/infra/redisutil"
)

// Scope levels for configuration inheritance.
type Scope string

const (
	ScopeBase    Scope = "base"
	ScopeDomain  Scope = "domain"
	ScopeAccount Scope = "account"
)

// BaseScopeID is the fixed scope id of the base layer.
const BaseScopeID = "default"

var (
	// ErrNotFound reports a missing document.
	ErrNotFound = errors.New("config document not found")
)

// Document is a config fragment at a given scope.
type Document struct {
	Scope    Scope             `json:"scope"`
	ScopeID  string            `json:"scope_id"`
	Data     map[string]any    `json:"data"`
	Revision int64             `json:"revision"`
	Updated  time.Time         `json:"updated_at"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Store persists config documents and resolves merged domain config.
type Store struct {
	client redis.UniversalClient
}

// New creates a config store backed by Redis.
func New(url string) (*Store, error) {
	if url == "" {
		url = "redis://localhost:6379"
	}
	client, err := redisutil.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Store{client: client}, nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Close shuts down the Redis client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Set stores/overwrites a config document after schema validation.
func (s *Store) Set(ctx context.Context, doc *Document) error {
	if doc == nil || doc.Scope == "" {
		return fmt.Errorf("scope required")
	}
	if doc.Scope != ScopeBase && doc.ScopeID == "" {
		return fmt.Errorf("scope_id required for non-base scope")
	}
	if doc.Scope == ScopeBase {
		doc.ScopeID = BaseScopeID
	}
	if err := validateDocument(doc); err != nil {
		return err
	}
	doc.Revision++
	doc.Updated = time.Now().UTC()
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}
	return s.client.Set(ctx, cfgKey(doc.Scope, doc.ScopeID), payload, 0).Err()
}

// Get fetches a config document at a given scope/id.
func (s *Store) Get(ctx context.Context, scope Scope, id string) (*Document, error) {
	if scope == "" {
		return nil, fmt.Errorf("scope required")
	}
	if scope == ScopeBase {
		id = BaseScopeID
	}
	data, err := s.client.Get(ctx, cfgKey(scope, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal doc: %w", err)
	}
	return &doc, nil
}

// Exists reports whether a document is present without fetching it.
func (s *Store) Exists(ctx context.Context, scope Scope, id string) (bool, error) {
	if scope == ScopeBase {
		id = BaseScopeID
	}
	n, err := s.client.Exists(ctx, cfgKey(scope, id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, scope Scope, id string) error {
	if scope == ScopeBase {
		id = BaseScopeID
	}
	return s.client.Del(ctx, cfgKey(scope, id)).Err()
}

// Merged resolves the effective config for (domain, account):
// base ⊳ domain ⊳ account, recursive merge for nested maps, replacement
// for scalars and lists. The domain document is mandatory; base and
// account layers are optional.
func (s *Store) Merged(ctx context.Context, domain, accountID string) (map[string]any, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain required")
	}

	result := map[string]any{}
	base, err := s.Get(ctx, ScopeBase, BaseScopeID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if base != nil {
		result = DeepMerge(result, base.Data)
	}

	domainDoc, err := s.Get(ctx, ScopeDomain, domain)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("domain %q: %w", domain, ErrNotFound)
		}
		return nil, err
	}
	result = DeepMerge(result, domainDoc.Data)

	if accountID != "" {
		account, err := s.Get(ctx, ScopeAccount, AccountScopeID(domain, accountID))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if account != nil {
			result = DeepMerge(result, account.Data)
		}
	}
	return result, nil
}

// AccountScopeID builds the scope id of a per-account override document.
func AccountScopeID(domain, accountID string) string {
	return domain + "/" + accountID
}

func cfgKey(scope Scope, id string) string {
	return fmt.Sprintf("cfg:%s:%s", scope, id)
}
