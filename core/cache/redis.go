package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crewmux/crewmux/core/infra/redisutil"
)

const (
	defaultRedisURL       = "redis://localhost:6379"
	defaultRedisOpTimeout = 2 * time.Second
	scanBatch             = 256
)

// RedisTier is the shared Tier-2 store: plain key/value/TTL operations on Redis.
type RedisTier struct {
	client    redis.UniversalClient
	opTimeout time.Duration
}

// NewRedisTier dials Redis at the given URL and verifies connectivity.
func NewRedisTier(url string) (*RedisTier, error) {
	if url == "" {
		url = defaultRedisURL
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
	return &RedisTier{client: client, opTimeout: defaultRedisOpTimeout}, nil
}

// NewRedisTierWithClient wraps an existing client (shared across stores).
func NewRedisTierWithClient(client redis.UniversalClient) *RedisTier {
	return &RedisTier{client: client, opTimeout: defaultRedisOpTimeout}
}

// Get returns the raw entry bytes and its remaining TTL.
// A zero TTL means the key has no expiry; ErrMiss reports absence.
func (s *RedisTier) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	cctx, cancel := s.opContext(ctx)
	defer cancel()
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(cctx, key)
	ttlCmd := pipe.PTTL(cctx, key)
	if _, err := pipe.Exec(cctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, ErrMiss
		}
		return nil, 0, err
	}
	data, err := getCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, ErrMiss
		}
		return nil, 0, err
	}
	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return data, ttl, nil
}

// Set writes entry bytes under key with the given TTL.
func (s *RedisTier) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	cctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.client.Set(cctx, key, data, ttl).Err()
}

// Delete removes the given keys.
func (s *RedisTier) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	cctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.client.Del(cctx, keys...).Err()
}

// DeletePrefix removes every key matching prefix via SCAN, never KEYS.
func (s *RedisTier) DeletePrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return errors.New("empty prefix")
	}
	var cursor uint64
	for {
		cctx, cancel := s.opContext(ctx)
		keys, next, err := s.client.Scan(cctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			cancel()
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(cctx, keys...).Err(); err != nil {
				cancel()
				return err
			}
		}
		cancel()
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close shuts down the underlying Redis client.
func (s *RedisTier) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisTier) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
}
