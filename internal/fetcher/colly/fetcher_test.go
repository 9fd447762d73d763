package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second})
	collector := f.buildCollector(crawler.FetchRequest{URL: "https://example.com"}, time.Unix(0, 0), &crawler.FetchResponse{}, new(error))

	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.True(t, collector.AllowURLRevisit)
	require.True(t, collector.ParseHTTPErrorResponse)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}, "User-Agent": {"edge"}},
	}
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{"User-Agent": {"colly"}}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))
	require.Equal(t, []string{"edge"}, (*collyReq.Headers)["User-Agent"])

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com"),
		},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{}, collyReq)
	require.Empty(t, *collyReq.Headers)
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	var seenUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUA.Store(r.UserAgent())
		if r.URL.Path == "/missing" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`cb({"success":1})`))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "default-agent", Timeout: 5 * time.Second})

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/ok"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, `cb({"success":1})`, string(resp.Body))
	require.Equal(t, "default-agent", seenUA.Load())

	// Same URL twice must not be suppressed as a revisit.
	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/ok"})
	require.NoError(t, err)

	resp, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/missing"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(Config{Timeout: 5 * time.Second}).Fetch(ctx, crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDownloaderWritesBody(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 64*1024)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	var seenUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUA.Store(r.UserAgent())
		if r.URL.Path == "/gone.pdf" {
			w.WriteHeader(http.StatusGone)
			return
		}
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	d := NewDownloader(New(Config{}), "download-agent")
	dest := filepath.Join(t.TempDir(), "nested", "doc.pdf")

	require.NoError(t, d.Download(context.Background(), srv.URL+"/doc.pdf", dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.Equal(t, "download-agent", seenUA.Load())

	err = d.Download(context.Background(), srv.URL+"/gone.pdf", filepath.Join(t.TempDir(), "gone.pdf"))
	require.ErrorIs(t, err, crawler.ErrTransport)
	var failure *crawler.Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, http.StatusGone, failure.StatusCode)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

type refusingLimiter struct{ calls atomic.Int32 }

func (l *refusingLimiter) Wait(context.Context, string) error {
	l.calls.Add(1)
	return errors.New("limited")
}

func TestFetchWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	limiter := &refusingLimiter{}
	f := New(Config{Limiter: limiter})
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})
	require.ErrorContains(t, err, "limited")
	require.EqualValues(t, 1, limiter.calls.Load())
	require.Zero(t, hits.Load())
}
