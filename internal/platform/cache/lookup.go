package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"collecthive/internal/platform/openlibrary"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "collecthive:lookup:"

// Fetcher is the lookup being cached.
type Fetcher interface {
	LookupISBN(ctx context.Context, isbn string) (*openlibrary.Edition, error)
}

// LookupCache is a read-through Redis cache in front of a Fetcher. Failed
// lookups are never cached.
type LookupCache struct {
	client *redis.Client
	next   Fetcher
	ttl    time.Duration
}

func NewLookupCache(client *redis.Client, next Fetcher, ttl time.Duration) *LookupCache {
	return &LookupCache{client: client, next: next, ttl: ttl}
}

func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		PoolSize:     10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func (c *LookupCache) LookupISBN(ctx context.Context, isbn string) (*openlibrary.Edition, error) {
	key := keyPrefix + isbn

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var edition openlibrary.Edition
		if err := json.Unmarshal(raw, &edition); err == nil {
			return &edition, nil
		}
		log.Warn().Str("key", key).Msg("discarding undecodable cached edition")
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("key", key).Msg("lookup cache read failed")
	}

	edition, err := c.next.LookupISBN(ctx, isbn)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(edition)
	if err != nil {
		return edition, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("lookup cache write failed")
	}
	return edition, nil
}

// Ping verifies the Redis connection.
func (c *LookupCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
