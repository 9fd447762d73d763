package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/announcement-crawler/internal/cache"
	memorycache "github.com/JakeFAU/announcement-crawler/internal/cache/memory"
	"github.com/JakeFAU/announcement-crawler/internal/clock/system"
	"github.com/JakeFAU/announcement-crawler/internal/config"
	"github.com/JakeFAU/announcement-crawler/internal/discovery"
)

const documentBytes = 2000

type announcementServer struct {
	*httptest.Server
	pdfHits atomic.Int32
}

func jsonp(w http.ResponseWriter, r *http.Request, body string) {
	w.Header().Set("Content-Type", "application/javascript")
	_, _ = fmt.Fprintf(w, "%s(%s);", r.URL.Query().Get("cb"), body)
}

func newAnnouncementServer(t *testing.T) *announcementServer {
	t.Helper()
	s := &announcementServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/security/ann", func(w http.ResponseWriter, r *http.Request) {
		jsonp(w, r, `{"success":1,"data":{"total_hits":2,"list":[
			{"art_code":"AN1","title":"陕西煤业2023年年度报告","notice_date":"2024-03-28 00:00:00","columns":[{"column_name":"临时公告"}]},
			{"art_code":"AN2","title":"陕西煤业2023年年度报告摘要","notice_date":"2024-03-28 00:00:00","columns":[{"column_name":"临时公告"}]}
		]}}`)
	})
	mux.HandleFunc("/api/content/ann", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("art_code")
		title := "陕西煤业2023年年度报告"
		if code == "AN2" {
			title += "摘要"
		}
		jsonp(w, r, fmt.Sprintf(`{"success":1,"data":{"art_code":%q,"attach_url":%q,"attach_size":"2",
			"security":[{"stock":"601225","short_name":"陕西煤业"}],"notice_title":%q,"notice_date":"2024-03-28 00:00:00"}}`,
			code, s.URL+"/pdf/"+code+".pdf", title))
	})
	mux.HandleFunc("/pdf/", func(w http.ResponseWriter, _ *http.Request) {
		s.pdfHits.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(strings.Repeat("x", documentBytes)))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func testConfig(t *testing.T, srv *announcementServer) config.Config {
	t.Helper()
	return config.Config{
		Target: config.TargetConfig{
			StockCode: "601225", FNode: "0", SNode: "0", PageSize: 50, AnnType: "A", ClientSource: "web",
		},
		Endpoints: config.EndpointsConfig{
			ListingURL: srv.URL + "/api/security/ann",
			DetailURL:  srv.URL + "/api/content/ann",
		},
		HTTP:     config.HTTPConfig{UserAgent: "test-agent", TimeoutSeconds: 5},
		Download: config.DownloadConfig{OutputDir: t.TempDir(), MaxAttempts: 2, Mode: config.ModeHTTP},
		Cache:    config.CacheConfig{Dir: t.TempDir(), ExpireDays: 7, Backend: config.BackendFS, SweepOnStart: true},
		Filter:   config.FilterConfig{Exclude: []string{"摘要"}},
		Storage:  config.StorageConfig{LocalDir: t.TempDir(), Prefix: "mirror"},
	}
}

func pdfFiles(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	require.NoError(t, filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".pdf") {
			out = append(out, path)
		}
		return nil
	}))
	return out
}

func TestCrawlEndToEnd(t *testing.T) {
	srv := newAnnouncementServer(t)
	cfg := testConfig(t, srv)
	ctx := context.Background()

	a, err := Build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	summary, err := a.Crawl(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Close(ctx))

	require.Equal(t, 1, summary.Pages)
	require.Equal(t, 2, summary.Records)
	require.Equal(t, 1, summary.Downloaded)
	require.Equal(t, 1, summary.Filtered)
	require.Equal(t, discovery.StopLastPage, summary.StopReason)
	require.EqualValues(t, 1, srv.pdfHits.Load())

	files := pdfFiles(t, cfg.Download.OutputDir)
	require.Len(t, files, 1)
	require.Contains(t, files[0], filepath.Join("陕西煤业", "临时公告"))
	info, err := os.Stat(files[0])
	require.NoError(t, err)
	require.EqualValues(t, documentBytes, info.Size())

	require.Len(t, pdfFiles(t, cfg.Storage.LocalDir), 1)

	snap, ok := a.Tracker().Latest()
	require.True(t, ok)
	require.Equal(t, summary.RunID, snap.RunID)
	require.Equal(t, 1, snap.Outcomes[discovery.OutcomeDownloaded])
	require.Equal(t, 1, snap.Outcomes[discovery.OutcomeFiltered])

	entries, err := a.Cache().List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// A second run serves listing and details from the cache and skips the
	// verified document.
	again, err := Build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	summary, err = again.Crawl(ctx)
	require.NoError(t, err)
	require.NoError(t, again.Close(ctx))
	require.Equal(t, 1, summary.SkippedExisting)
	require.Zero(t, summary.Downloaded)
	require.EqualValues(t, 1, srv.pdfHits.Load())
}

func TestCrawlListingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonp(w, r, `{"success":0,"data":null}`)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(t, &announcementServer{Server: srv})
	cfg.Cache.Backend = config.BackendMemory
	ctx := context.Background()

	a, err := Build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close(ctx)) }()

	summary, err := a.Crawl(ctx)
	require.Error(t, err)
	require.Equal(t, discovery.StopListingFailed, summary.StopReason)

	entries, err := a.Cache().List(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDocumentFetcherUsesDownloadTimeout(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		HTTP:     config.HTTPConfig{TimeoutSeconds: 30},
		Download: config.DownloadConfig{UserAgent: "doc-agent", TimeoutSeconds: 600},
	}
	a := &App{cfg: cfg}

	got := a.documentFetcherConfig()
	require.Equal(t, 10*time.Minute, got.Timeout)
	require.NotEqual(t, cfg.FetchTimeout(), got.Timeout)
	require.Equal(t, "doc-agent", got.UserAgent)
}

func TestNewCacheBackends(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Target: config.TargetConfig{StockCode: "601225"},
		Cache:  config.CacheConfig{Dir: t.TempDir(), ExpireDays: 7, Backend: config.BackendFS},
	}
	c, client, err := NewCache(cfg, system.New(), zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, client)
	require.IsType(t, &cache.Store{}, c)

	cfg.Cache.Backend = config.BackendMemory
	c, _, err = NewCache(cfg, system.New(), zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &memorycache.Cache{}, c)

	cfg.Cache.Backend = config.BackendRedis
	cfg.Cache.RedisAddr = "localhost:6379"
	c, client, err = NewCache(cfg, system.New(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, client)
	require.NotNil(t, c)
	require.NoError(t, client.Close())
}
