// Package rediscache stores crawler responses in Redis so several crawler
// processes can share one response cache.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
	"github.com/JakeFAU/announcement-crawler/internal/metrics"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "announcement:"

type storedEntry struct {
	Metadata crawler.CacheMetadata `json:"metadata"`
	Data     json.RawMessage       `json:"data"`
}

// Cache is a crawler.ResponseCache on top of a Redis client. Entries carry a
// Redis TTL matching the configured lifetime.
type Cache struct {
	client     *redis.Client
	prefix     string
	namespace  string
	expireDays int
	ttl        time.Duration
	clock      crawler.Clock
	logger     *zap.Logger
}

var _ crawler.ResponseCache = (*Cache)(nil)

// Options configures a Cache.
type Options struct {
	Prefix     string
	Namespace  string
	ExpireDays int
}

// New returns a Cache. It panics when client is nil.
func New(client *redis.Client, opts Options, clock crawler.Clock, logger *zap.Logger) *Cache {
	if client == nil {
		panic("rediscache: redis client must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{
		client:     client,
		prefix:     prefix,
		namespace:  crawler.SafeComponent(opts.Namespace, "unknown"),
		expireDays: opts.ExpireDays,
		ttl:        time.Duration(opts.ExpireDays) * 24 * time.Hour,
		clock:      clock,
		logger:     logger.Named("rediscache"),
	}
}

// Key returns the Redis key for sig.
func (c *Cache) Key(sig crawler.Signature) string {
	if sig.Kind == crawler.KindOther {
		return fmt.Sprintf("%s%s", c.prefix, sig.String())
	}
	return fmt.Sprintf("%s%s:%s", c.prefix, c.namespace, sig.String())
}

// Lookup returns the payload stored for sig.
func (c *Cache) Lookup(ctx context.Context, sig crawler.Signature) (json.RawMessage, bool) {
	kind := string(sig.Kind)
	key := c.Key(sig)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		metrics.ObserveCacheLookup(kind, "miss")
		return nil, false
	}

	var entry storedEntry
	if err := json.Unmarshal(raw, &entry); err != nil || len(entry.Data) == 0 {
		c.logger.Warn("redis entry unreadable", zap.String("key", key), zap.Error(err))
		metrics.ObserveCacheLookup(kind, "corrupt")
		return nil, false
	}

	if c.expired(entry.Metadata) {
		c.client.Del(ctx, key)
		metrics.ObserveCacheLookup(kind, "expired")
		return nil, false
	}

	metrics.ObserveCacheLookup(kind, "hit")
	return entry.Data, true
}

// Store writes payload for sig with the configured TTL.
func (c *Cache) Store(ctx context.Context, sig crawler.Signature, payload json.RawMessage, sourceURL string) {
	key := c.Key(sig)
	entry := storedEntry{
		Metadata: crawler.CacheMetadata{
			CacheTime:   c.clock.Now().Format(time.RFC3339Nano),
			OriginalURL: sourceURL,
			CacheFile:   key,
			ExpireDays:  c.expireDays,
			Signature:   sig.String(),
			Format:      crawler.CacheFormatEnveloped,
		},
		Data: payload,
	}

	data, err := json.Marshal(entry)
	if err == nil {
		err = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	metrics.ObserveCacheWrite(string(sig.Kind), err)
	if err != nil {
		c.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Sweep deletes entries whose recorded capture time is past the lifetime.
// Redis expires keys on its own, so this only catches entries written with a
// longer TTL or none at all.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	removed := 0
	err := c.scan(ctx, func(key string, entry *storedEntry) error {
		if entry != nil && !c.expired(entry.Metadata) {
			return nil
		}
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		removed++
		return nil
	})
	metrics.ObserveCacheSwept(removed)
	return removed, err
}

// List describes every entry under the prefix.
func (c *Cache) List(ctx context.Context) ([]crawler.CacheEntryInfo, error) {
	var out []crawler.CacheEntryInfo
	err := c.scan(ctx, func(key string, entry *storedEntry) error {
		if entry == nil {
			return nil
		}
		cachedAt, _ := time.Parse(time.RFC3339Nano, entry.Metadata.CacheTime)
		out = append(out, crawler.CacheEntryInfo{
			Namespace: c.namespaceOf(key),
			Name:      strings.TrimPrefix(key, c.prefix),
			Location:  key,
			CachedAt:  cachedAt,
			Expired:   c.expired(entry.Metadata),
			Metadata:  entry.Metadata,
		})
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out, err
}

// scan visits every key under the prefix. entry is nil for undecodable values.
func (c *Cache) scan(ctx context.Context, visit func(key string, entry *storedEntry) error) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis get %s: %w", key, err)
		}
		var entry storedEntry
		var visitErr error
		if json.Unmarshal(raw, &entry) != nil {
			visitErr = visit(key, nil)
		} else {
			visitErr = visit(key, &entry)
		}
		if visitErr != nil {
			return visitErr
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

func (c *Cache) namespaceOf(key string) string {
	rest := strings.TrimPrefix(key, c.prefix)
	if ns, _, ok := strings.Cut(rest, ":"); ok && ns != string(crawler.KindOther) {
		return ns
	}
	return crawler.RootNamespace
}

func (c *Cache) expired(meta crawler.CacheMetadata) bool {
	created, err := time.Parse(time.RFC3339Nano, meta.CacheTime)
	if err != nil {
		return true
	}
	return !c.clock.Now().Before(created.Add(c.ttl))
}
