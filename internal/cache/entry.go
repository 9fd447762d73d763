package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

// fileEntry is the current on-disk shape: {metadata: {...}, data: <payload>}.
type fileEntry struct {
	Metadata crawler.CacheMetadata `json:"metadata"`
	Data     json.RawMessage       `json:"data"`
}

// loadedEntry is resolved once per read: either a legacy bare payload or an
// enveloped payload with metadata.
type loadedEntry interface {
	payload() json.RawMessage
	// capturedAt reports when the payload was fetched; fallback is the file
	// modification time.
	capturedAt(fallback time.Time) time.Time
	metadata(location string, fallback time.Time) crawler.CacheMetadata
}

type legacyPayload struct {
	data json.RawMessage
}

func (l legacyPayload) payload() json.RawMessage { return l.data }

func (l legacyPayload) capturedAt(fallback time.Time) time.Time { return fallback }

func (l legacyPayload) metadata(location string, fallback time.Time) crawler.CacheMetadata {
	return crawler.CacheMetadata{
		CacheTime: fallback.Format(time.RFC3339Nano),
		CacheFile: location,
		Format:    crawler.CacheFormatLegacy,
	}
}

type envelopedPayload struct {
	meta crawler.CacheMetadata
	data json.RawMessage
}

func (e envelopedPayload) payload() json.RawMessage { return e.data }

func (e envelopedPayload) capturedAt(fallback time.Time) time.Time {
	if ts, ok := parseCacheTime(e.meta.CacheTime); ok {
		return ts
	}
	return fallback
}

func (e envelopedPayload) metadata(location string, _ time.Time) crawler.CacheMetadata {
	meta := e.meta
	if meta.CacheFile == "" {
		meta.CacheFile = location
	}
	if meta.Format == "" {
		meta.Format = crawler.CacheFormatEnveloped
	}
	return meta
}

var errEmptyEntry = errors.New("empty cache entry")

// decodeEntry resolves raw file content into one of the two entry shapes. A
// document is enveloped only when it carries both metadata and data keys;
// bare endpoint payloads also have a data key and must stay legacy.
func decodeEntry(raw []byte) (loadedEntry, error) {
	if len(raw) == 0 {
		return nil, errEmptyEntry
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("cache entry is not valid json")
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err == nil {
		metaRaw, hasMeta := probe["metadata"]
		data, hasData := probe["data"]
		if hasMeta && hasData {
			var meta crawler.CacheMetadata
			if err := json.Unmarshal(metaRaw, &meta); err != nil {
				return nil, fmt.Errorf("decode cache metadata: %w", err)
			}
			return envelopedPayload{meta: meta, data: data}, nil
		}
	}
	return legacyPayload{data: json.RawMessage(raw)}, nil
}

// cacheTimeLayouts covers timestamps written by this package and the naive
// ISO-8601 timestamps found in older cache files.
var cacheTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseCacheTime(raw string) (time.Time, bool) {
	for i, layout := range cacheTimeLayouts {
		var (
			ts  time.Time
			err error
		)
		if i == 0 {
			ts, err = time.Parse(layout, raw)
		} else {
			ts, err = time.ParseInLocation(layout, raw, time.Local)
		}
		if err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
