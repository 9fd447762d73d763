// Package memory provides an in-process crawler.ResponseCache.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
	"github.com/JakeFAU/announcement-crawler/internal/metrics"
)

type entry struct {
	kind      crawler.RequestKind
	payload   json.RawMessage
	sourceURL string
	storedAt  time.Time
}

// Cache keeps entries in a map for the life of the process.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	namespace  string
	expireDays int
	clock      crawler.Clock
}

var _ crawler.ResponseCache = (*Cache)(nil)

// New returns an empty Cache whose entries live for expireDays days.
func New(namespace string, expireDays int, clock crawler.Clock) *Cache {
	return &Cache{
		entries:    make(map[string]entry),
		namespace:  namespace,
		expireDays: expireDays,
		clock:      clock,
	}
}

// Lookup returns the live payload stored for sig.
func (c *Cache) Lookup(_ context.Context, sig crawler.Signature) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := sig.String()
	e, ok := c.entries[key]
	if !ok {
		metrics.ObserveCacheLookup(string(sig.Kind), "miss")
		return nil, false
	}
	if c.expired(e.storedAt) {
		delete(c.entries, key)
		metrics.ObserveCacheLookup(string(sig.Kind), "expired")
		return nil, false
	}
	metrics.ObserveCacheLookup(string(sig.Kind), "hit")
	return append(json.RawMessage(nil), e.payload...), true
}

// Store records payload for sig.
func (c *Cache) Store(_ context.Context, sig crawler.Signature, payload json.RawMessage, sourceURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := sig.String()
	c.entries[key] = entry{
		kind:      sig.Kind,
		payload:   append(json.RawMessage(nil), payload...),
		sourceURL: sourceURL,
		storedAt:  c.clock.Now(),
	}
	metrics.ObserveCacheWrite(string(sig.Kind), nil)
}

// Sweep drops expired entries.
func (c *Cache) Sweep(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if c.expired(e.storedAt) {
			delete(c.entries, key)
			removed++
		}
	}
	metrics.ObserveCacheSwept(removed)
	return removed, nil
}

// List describes every entry, sorted by signature. Entries of the other kind
// are reported under crawler.RootNamespace.
func (c *Cache) List(_ context.Context) ([]crawler.CacheEntryInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]crawler.CacheEntryInfo, 0, len(c.entries))
	for key, e := range c.entries {
		ns := c.namespace
		if e.kind == crawler.KindOther {
			ns = crawler.RootNamespace
		}
		out = append(out, crawler.CacheEntryInfo{
			Namespace: ns,
			Name:      key,
			Location:  "memory://" + key,
			CachedAt:  e.storedAt,
			Expired:   c.expired(e.storedAt),
			Metadata: crawler.CacheMetadata{
				CacheTime:   e.storedAt.Format(time.RFC3339Nano),
				OriginalURL: e.sourceURL,
				ExpireDays:  c.expireDays,
				Signature:   key,
				Format:      crawler.CacheFormatEnveloped,
			},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) expired(storedAt time.Time) bool {
	lifetime := time.Duration(c.expireDays) * 24 * time.Hour
	return !c.clock.Now().Before(storedAt.Add(lifetime))
}
