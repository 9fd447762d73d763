package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
	"github.com/JakeFAU/announcement-crawler/internal/metrics"
)

// Remote implements crawler.RemoteFetcher on top of a crawler.Fetcher and a
// crawler.ResponseCache.
type Remote struct {
	fetcher   crawler.Fetcher
	cache     crawler.ResponseCache
	userAgent string
	validate  func(json.RawMessage) error
	logger    *zap.Logger
}

// Option customizes a Remote.
type Option func(*Remote)

// WithValidator rejects payloads for which validate returns an error. Rejected
// payloads are returned as that error and never cached.
func WithValidator(validate func(json.RawMessage) error) Option {
	return func(r *Remote) {
		r.validate = validate
	}
}

var _ crawler.RemoteFetcher = (*Remote)(nil)

// NewRemote wires a Remote. userAgent is sent with every network request.
func NewRemote(
	fetcher crawler.Fetcher,
	cache crawler.ResponseCache,
	userAgent string,
	logger *zap.Logger,
	opts ...Option,
) (*Remote, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cache == nil {
		return nil, errors.New("response cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Remote{
		fetcher:   fetcher,
		cache:     cache,
		userAgent: userAgent,
		logger:    logger.Named("remote"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// FetchJSON returns the payload for rawURL, from cache when a live entry
// exists and from the network otherwise. Fresh payloads are written back to
// the cache; a failed write does not fail the fetch.
func (r *Remote) FetchJSON(ctx context.Context, rawURL string) (json.RawMessage, error) {
	sig, err := crawler.DeriveSignature(rawURL)
	if err != nil {
		return nil, &crawler.Failure{Kind: crawler.ErrTransport, Op: "fetch json", URL: rawURL, Err: err}
	}
	kind := string(sig.Kind)

	if payload, ok := r.cache.Lookup(ctx, sig); ok {
		r.logger.Debug("served from cache", zap.String("signature", sig.String()))
		return payload, nil
	}

	headers := http.Header{}
	if r.userAgent != "" {
		headers.Set("User-Agent", r.userAgent)
	}
	start := time.Now()
	resp, err := r.fetcher.Fetch(ctx, crawler.FetchRequest{URL: rawURL, Headers: headers})
	if err != nil {
		metrics.ObserveRemoteFetch(kind, "error", time.Since(start))
		r.logger.Warn("remote fetch failed", zap.String("url", rawURL), zap.Error(err))
		return nil, &crawler.Failure{Kind: crawler.ErrTransport, Op: "fetch json", URL: rawURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveRemoteFetch(kind, "status", time.Since(start))
		r.logger.Warn("remote fetch returned non-success status",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &crawler.Failure{
			Kind:       crawler.ErrTransport,
			Op:         "fetch json",
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	payload, err := UnwrapJSONP(resp.Body)
	if err != nil {
		metrics.ObserveRemoteFetch(kind, "parse", time.Since(start))
		r.logger.Warn("remote payload unparsable", zap.String("url", rawURL), zap.Error(err))
		return nil, &crawler.Failure{Kind: crawler.ErrParse, Op: "fetch json", URL: rawURL, Err: err}
	}

	if r.validate != nil {
		if err := r.validate(payload); err != nil {
			metrics.ObserveRemoteFetch(kind, "rejected", time.Since(start))
			r.logger.Warn("remote payload rejected", zap.String("url", rawURL), zap.Error(err))
			return nil, err
		}
	}

	metrics.ObserveRemoteFetch(kind, "ok", time.Since(start))
	r.logger.Debug("fetched remote payload",
		zap.String("signature", sig.String()),
		zap.Duration("duration", resp.Duration),
		zap.Int("bytes", len(payload)),
	)
	r.cache.Store(ctx, sig, payload, rawURL)
	return payload, nil
}
