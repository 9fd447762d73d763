package crawler

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// ResponseCache maps request signatures to previously fetched payloads.
// Lookup never fails: unreadable, unparsable and expired entries are misses.
// Store never fails outward either; write errors are logged by the
// implementation and leave the signature effectively uncached.
type ResponseCache interface {
	Lookup(ctx context.Context, sig Signature) (json.RawMessage, bool)
	Store(ctx context.Context, sig Signature, payload json.RawMessage, sourceURL string)
	Sweep(ctx context.Context) (int, error)
	List(ctx context.Context) ([]CacheEntryInfo, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RemoteFetcher resolves a request URL to its decoded JSON payload.
type RemoteFetcher interface {
	FetchJSON(ctx context.Context, rawURL string) (json.RawMessage, error)
}

// Downloader writes the document at url to dest.
type Downloader interface {
	Download(ctx context.Context, url string, dest string) error
}

// Archive mirrors retrieved documents and returns a URI.
type Archive interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Ledger persists one row per retrieved document.
type Ledger interface {
	RecordDocument(ctx context.Context, record DocumentRecord) error
}

// Publisher pushes retrieval events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for retrieved documents.
type Hasher interface {
	Hash(data []byte) (string, error)
	HashReader(r io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper pauses between requests and retry attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
