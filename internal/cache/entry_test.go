package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

func TestDecodeEntry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		legacy  bool
		payload string
		wantErr bool
	}{
		{
			name:    "enveloped",
			raw:     `{"metadata":{"cache_time":"2025-01-02T03:04:05Z"},"data":{"success":1}}`,
			payload: `{"success":1}`,
		},
		{
			name:    "bare payload with data key stays legacy",
			raw:     `{"success":1,"data":{"list":[]}}`,
			legacy:  true,
			payload: `{"success":1,"data":{"list":[]}}`,
		},
		{
			name:    "array payload",
			raw:     `[1,2]`,
			legacy:  true,
			payload: `[1,2]`,
		},
		{name: "empty", raw: ``, wantErr: true},
		{name: "invalid", raw: `{"a":`, wantErr: true},
		{name: "bad metadata", raw: `{"metadata":"x","data":{}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			entry, err := decodeEntry([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.JSONEq(t, tt.payload, string(entry.payload()))
			_, isLegacy := entry.(legacyPayload)
			require.Equal(t, tt.legacy, isLegacy)
		})
	}
}

func TestEnvelopedCapturedAt(t *testing.T) {
	t.Parallel()

	fallback := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := envelopedPayload{meta: crawler.CacheMetadata{CacheTime: "2025-01-02T03:04:05Z"}}
	require.True(t, entry.capturedAt(fallback).Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)))

	entry = envelopedPayload{meta: crawler.CacheMetadata{CacheTime: "garbage"}}
	require.True(t, entry.capturedAt(fallback).Equal(fallback))

	meta := entry.metadata("/tmp/x.json", fallback)
	require.Equal(t, "/tmp/x.json", meta.CacheFile)
	require.Equal(t, crawler.CacheFormatEnveloped, meta.Format)
}

func TestLegacyMetadata(t *testing.T) {
	t.Parallel()

	mod := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	meta := legacyPayload{}.metadata("/c/a.json", mod)
	require.Equal(t, crawler.CacheFormatLegacy, meta.Format)
	require.Equal(t, "/c/a.json", meta.CacheFile)
	ts, ok := parseCacheTime(meta.CacheTime)
	require.True(t, ok)
	require.True(t, ts.Equal(mod))
}
