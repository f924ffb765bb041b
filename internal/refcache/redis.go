package refcache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rcarls/ghast/internal/indieweb"
)

// DefaultPrefix namespaces cache keys.
const DefaultPrefix = "ghast:ref:"

const scanBatch = 100

// RedisCache stores each document in a hash under prefix + kind + ":" +
// canonical URL.
type RedisCache struct {
	client *redis.Client
	prefix string
	codec  Codec
}

// NewRedisCache wraps an existing client. A nil codec selects TaggedCodec.
func NewRedisCache(client *redis.Client, prefix string, codec Codec) *RedisCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if codec == nil {
		codec = TaggedCodec{}
	}
	return &RedisCache{client: client, prefix: prefix, codec: codec}
}

// Dial parses redisURL, connects and verifies the server answers.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func (c *RedisCache) key(kind indieweb.ReferenceKind, rawURL string) (string, error) {
	key, err := entryKey(kind, rawURL)
	if err != nil {
		return "", err
	}
	return c.prefix + key, nil
}

// entryKey scopes a canonical URL by kind. One page can carry both an entry
// and a representative card, and each is extracted separately.
func entryKey(kind indieweb.ReferenceKind, rawURL string) (string, error) {
	if kind == "" {
		return "", fmt.Errorf("cache key for %s: kind is required", rawURL)
	}
	canonical, err := indieweb.CanonicalURL(rawURL)
	if err != nil {
		return "", err
	}
	return string(kind) + ":" + canonical, nil
}

// Get implements indieweb.ReferenceCache.
func (c *RedisCache) Get(ctx context.Context, kind indieweb.ReferenceKind, rawURL string) (indieweb.Properties, bool, error) {
	key, err := c.key(kind, rawURL)
	if err != nil {
		return nil, false, err
	}
	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	doc, err := c.codec.Decode(fields)
	if err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return doc, true, nil
}

// Put replaces the kind's entry for rawURL.
func (c *RedisCache) Put(ctx context.Context, kind indieweb.ReferenceKind, rawURL string, doc indieweb.Properties) error {
	key, err := c.key(kind, rawURL)
	if err != nil {
		return err
	}
	fields, err := c.codec.Encode(doc)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	values := make(map[string]any, len(fields))
	for field, value := range fields {
		values[field] = value
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		pipe.HSet(ctx, key, values)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry under the cache prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
