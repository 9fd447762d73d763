package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
	"github.com/JakeFAU/announcement-crawler/internal/progress"
	"github.com/JakeFAU/announcement-crawler/internal/progress/sinks"
)

type fakeCacheLister struct {
	entries []crawler.CacheEntryInfo
	err     error
}

func (f *fakeCacheLister) List(context.Context) ([]crawler.CacheEntryInfo, error) {
	return f.entries, f.err
}

func sampleEntries() []crawler.CacheEntryInfo {
	now := time.Date(2024, 3, 28, 10, 0, 0, 0, time.UTC)
	return []crawler.CacheEntryInfo{
		{Namespace: "601225", Name: "announcement_list_page_1.json", CachedAt: now},
		{Namespace: "601225", Name: "announcement_detail_AN1.json", CachedAt: now, Expired: true},
		{Namespace: "root", Name: "other_abc.json", CachedAt: now},
	}
}

func serve(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, zap.NewNop()), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	ok := NewServer(nil, nil, zap.NewNop(), WithReadinessCheck("cache", func(context.Context) error { return nil }))
	require.Equal(t, http.StatusOK, serve(t, ok, "/readyz").Code)

	failing := NewServer(nil, nil, zap.NewNop(),
		WithReadinessCheck("redis", func(context.Context) error { return errors.New("dial refused") }))
	rec := serve(t, failing, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "dial refused")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, zap.NewNop())
	serve(t, s, "/healthz")
	rec := serve(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_ListCache(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeCacheLister{entries: sampleEntries()}, nil, zap.NewNop())

	tests := []struct {
		name      string
		target    string
		wantTotal int
		wantNames []string
	}{
		{"all", "/v1/cache", 3, []string{"announcement_list_page_1.json", "announcement_detail_AN1.json", "other_abc.json"}},
		{"namespace", "/v1/cache?namespace=root", 1, []string{"other_abc.json"}},
		{"expired", "/v1/cache?expired=true", 1, []string{"announcement_detail_AN1.json"}},
		{"paged", "/v1/cache?limit=1&offset=1", 3, []string{"announcement_detail_AN1.json"}},
		{"offset past end", "/v1/cache?offset=10", 3, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(t, s, tt.target)
			require.Equal(t, http.StatusOK, rec.Code)

			var body struct {
				Entries []crawler.CacheEntryInfo `json:"entries"`
				Total   int                      `json:"total"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tt.wantTotal, body.Total)
			names := make([]string, 0, len(body.Entries))
			for _, e := range body.Entries {
				names = append(names, e.Name)
			}
			require.Equal(t, tt.wantNames, names)
		})
	}
}

func TestServer_ListCacheErrors(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusServiceUnavailable, serve(t, NewServer(nil, nil, zap.NewNop()), "/v1/cache").Code)

	s := NewServer(&fakeCacheLister{err: errors.New("disk")}, nil, zap.NewNop())
	require.Equal(t, http.StatusInternalServerError, serve(t, s, "/v1/cache").Code)

	s = NewServer(&fakeCacheLister{}, nil, zap.NewNop())
	require.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/cache?limit=0").Code)
	require.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/cache?offset=-1").Code)
	require.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/cache?expired=maybe").Code)
}

func TestServer_Progress(t *testing.T) {
	t.Parallel()

	tracker := sinks.NewTracker()
	ts := time.Date(2024, 3, 28, 10, 0, 0, 0, time.UTC)
	require.NoError(t, tracker.Consume(context.Background(), []progress.Event{
		{RunID: "run-1", TS: ts, Stage: progress.StageRunStart},
		{RunID: "run-1", TS: ts, Stage: progress.StagePageDone, Page: 1, TotalHits: 7, Records: 7},
		{RunID: "run-1", TS: ts, Stage: progress.StageRecordDone, Page: 1, Outcome: "downloaded", Bytes: 10},
	}))
	s := NewServer(nil, tracker, zap.NewNop())

	rec := serve(t, s, "/v1/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run sinks.RunSnapshot `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "run-1", body.Run.RunID)
	require.Equal(t, sinks.StateRunning, body.Run.State)
	require.Equal(t, 1, body.Run.Outcomes["downloaded"])

	require.Equal(t, http.StatusOK, serve(t, s, "/v1/progress/run-1").Code)
	require.Equal(t, http.StatusNotFound, serve(t, s, "/v1/progress/run-2").Code)
}

func TestServer_ProgressUnavailable(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusServiceUnavailable, serve(t, NewServer(nil, nil, zap.NewNop()), "/v1/progress").Code)
	require.Equal(t, http.StatusNotFound, serve(t, NewServer(nil, sinks.NewTracker(), zap.NewNop()), "/v1/progress").Code)
}
