package crawler

import (
	"net/http"
	"time"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// CacheFormat distinguishes the two on-disk cache entry shapes.
type CacheFormat string

// Cache entry formats.
const (
	CacheFormatEnveloped CacheFormat = "enveloped"
	CacheFormatLegacy    CacheFormat = "legacy"
)

// CacheMetadata is stored alongside every enveloped cache payload.
type CacheMetadata struct {
	CacheTime   string      `json:"cache_time"`
	OriginalURL string      `json:"original_url,omitempty"`
	CacheFile   string      `json:"cache_file,omitempty"`
	ExpireDays  int         `json:"cache_expire_days"`
	Signature   string      `json:"signature,omitempty"`
	Format      CacheFormat `json:"format,omitempty"`
}

// RootNamespace labels cache entries of the other kind, which are not scoped
// to an issuer.
const RootNamespace = "root"

// CacheEntryInfo describes one cache entry for listing.
type CacheEntryInfo struct {
	Namespace string        `json:"namespace"`
	Name      string        `json:"name"`
	Location  string        `json:"location"`
	CachedAt  time.Time     `json:"cached_at"`
	Expired   bool          `json:"expired"`
	Metadata  CacheMetadata `json:"metadata"`
}

// DocumentRecord is persisted for each retrieved document.
type DocumentRecord struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	ArtCode     string    `json:"art_code"`
	StockCode   string    `json:"stock_code"`
	ShortName   string    `json:"short_name"`
	Title       string    `json:"title"`
	Column      string    `json:"column"`
	NoticeDate  string    `json:"notice_date"`
	SourceURL   string    `json:"source_url"`
	LocalPath   string    `json:"local_path"`
	DeclaredKB  int64     `json:"declared_kb"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentHash string    `json:"content_hash"`
	ArchiveURI  string    `json:"archive_uri,omitempty"`
	Attempts    int       `json:"attempts"`
	RetrievedAt time.Time `json:"retrieved_at"`
}
