// Package cache implements the two-tier layered cache shared by the tenant
// resolver and the handler factory: a process-local bounded map in front of
// a Redis TTL store. Values round-trip through a self-describing envelope
// with a legacy binary fallback on reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/crewmux/crewmux/core/infra/logging"
	"github.com/crewmux/crewmux/core/infra/metrics"
)

const component = "cache"

var (
	// ErrMiss reports that neither tier holds a live entry for the key.
	ErrMiss = errors.New("cache miss")
)

// Options configures a layered cache.
type Options struct {
	// MaxLocalEntries bounds Tier 1; zero means the default (1024).
	MaxLocalEntries int
	// Redis is the shared Tier 2. Nil runs Tier-1-only (tests, dev).
	Redis *RedisTier
	// Metrics defaults to metrics.Noop.
	Metrics metrics.CacheMetrics
}

// Layered composes the two tiers behind get/set/invalidate.
type Layered struct {
	local   *tier1
	shared  *RedisTier
	metrics metrics.CacheMetrics
}

// New builds a layered cache from options.
func New(opts Options) *Layered {
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	return &Layered{
		local:   newTier1(opts.MaxLocalEntries, m.IncEviction),
		shared:  opts.Redis,
		metrics: m,
	}
}

// Get reads key into dest. Tier 1 is consulted first; on miss, Tier 2 is
// read and a hit backfills Tier 1 with the remaining TTL. An entry readable
// under neither encoding counts as a miss and is deleted so the caller
// rebuilds it. A Tier-2 outage degrades to Tier-1-only instead of failing.
func (c *Layered) Get(ctx context.Context, key string, dest any) error {
	if data, ok := c.local.Get(key); ok {
		c.metrics.IncHit("tier1")
		return c.decodeInto(key, data, dest)
	}
	c.metrics.IncMiss("tier1")

	if c.shared == nil {
		return ErrMiss
	}
	data, ttl, err := c.shared.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			c.metrics.IncMiss("tier2")
			return ErrMiss
		}
		logging.Warn(component, "tier2 read failed, degrading to tier1-only", "key", key, "error", err)
		return ErrMiss
	}
	c.metrics.IncHit("tier2")
	if err := c.decodeInto(key, data, dest); err != nil {
		return err
	}
	c.local.Set(key, data, ttl)
	return nil
}

// Set writes the value through both tiers synchronously. A Tier-2 write
// failure is logged and absorbed: the entry stays live locally and the
// request proceeds.
func (c *Layered) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := Encode(value)
	if err != nil {
		return err
	}
	c.local.Set(key, data, ttl)
	if c.shared == nil {
		return nil
	}
	if err := c.shared.Set(ctx, key, data, ttl); err != nil {
		logging.Warn(component, "tier2 write failed, entry is tier1-only", "key", key, "error", err)
	}
	return nil
}

// Invalidate removes a single key from both tiers.
func (c *Layered) Invalidate(ctx context.Context, key string) error {
	c.local.Delete(key)
	if c.shared == nil {
		return nil
	}
	return c.shared.Delete(ctx, key)
}

// InvalidatePrefix removes every key with the given prefix from both tiers.
func (c *Layered) InvalidatePrefix(ctx context.Context, prefix string) error {
	c.local.DeletePrefix(prefix)
	if c.shared == nil {
		return nil
	}
	return c.shared.DeletePrefix(ctx, prefix)
}

// DropLocal removes Tier-1 state only. Used by the invalidation broadcast
// listener: the sender already cleared Tier 2.
func (c *Layered) DropLocal(keyOrPrefix string, prefix bool) {
	if prefix {
		c.local.DeletePrefix(keyOrPrefix)
		return
	}
	c.local.Delete(keyOrPrefix)
}

// LocalLen reports Tier-1 occupancy.
func (c *Layered) LocalLen() int {
	return c.local.Len()
}

func (c *Layered) decodeInto(key string, data []byte, dest any) error {
	raw, legacy, err := Decode(data)
	if err != nil {
		c.metrics.IncUnreadable()
		logging.Warn(component, "unreadable cache entry dropped", "key", key)
		c.local.Delete(key)
		if c.shared != nil {
			if derr := c.shared.Delete(context.Background(), key); derr != nil {
				logging.Warn(component, "failed to drop unreadable entry", "key", key, "error", derr)
			}
		}
		return ErrMiss
	}
	if legacy {
		c.metrics.IncLegacyDecode()
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.metrics.IncUnreadable()
		return ErrMiss
	}
	return nil
}
