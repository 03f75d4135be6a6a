package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const defaultCacheTTL = 24 * time.Hour

// Cache memoizes upstream answers in redis and coalesces identical in-flight calls.
// A Cache without a client still coalesces; a nil *Cache does neither.
type Cache struct {
	client *Client
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

func NewCache(client *Client, prefix string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Key hashes parts into a fixed-length cache key under namespace.
func Key(namespace string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// Remember returns the cached value for key, or calls fn and stores its result.
// Redis failures are logged and never fail the call.
func Remember[T any](ctx context.Context, c *Cache, key string, fn func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return fn(ctx)
	}
	fullKey := key
	if c.prefix != "" {
		fullKey = c.prefix + ":" + key
	}
	if v, ok := load[T](ctx, c, fullKey); ok {
		return v, nil
	}
	res, err, _ := c.group.Do(fullKey, func() (interface{}, error) {
		v, err := fn(ctx)
		if err != nil {
			return v, err
		}
		c.store(ctx, fullKey, v)
		return v, nil
	})
	v, _ := res.(T)
	return v, err
}

func load[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	if c.client == nil {
		return zero, false
	}
	raw, err := c.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("cache load %s failed: %v", key, err)
		}
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Printf("cache decode %s failed: %v", key, err)
		return zero, false
	}
	return v, true
}

func (c *Cache) store(ctx context.Context, key string, v interface{}) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("cache marshal %s failed: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		log.Printf("cache store %s failed: %v", key, err)
	}
}
