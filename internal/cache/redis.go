// Package cache holds the Redis-backed, generation-versioned cache used for
// pending payout summaries.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Versioned stores values under a generation counter. Writers bump the
// counter; entries written under an older generation are never read again
// and expire with their TTL.
type Versioned struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewVersioned creates a Versioned cache. Keys are namespaced by prefix.
func NewVersioned(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *Versioned {
	return &Versioned{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Connect opens a Redis client and verifies it with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (c *Versioned) genKey() string {
	return c.prefix + ":gen"
}

func (c *Versioned) entryKey(gen int64, key string) string {
	return c.prefix + ":" + strconv.FormatInt(gen, 10) + ":" + key
}

// Generation returns the current generation; 0 before the first bump.
func (c *Versioned) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get generation: %w", err)
	}
	return gen, nil
}

// Get returns the value stored for key under gen.
func (c *Versioned) Get(ctx context.Context, gen int64, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, c.entryKey(gen, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value for key under gen with the cache TTL.
func (c *Versioned) Set(ctx context.Context, gen int64, key string, value []byte) error {
	if err := c.rdb.Set(ctx, c.entryKey(gen, key), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Bump advances the generation, invalidating every entry.
func (c *Versioned) Bump(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, c.genKey()).Err(); err != nil {
		return fmt.Errorf("bump generation: %w", err)
	}
	return nil
}
