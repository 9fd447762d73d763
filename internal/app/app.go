// Package app builds the long-lived services of a crawler process from
// configuration and tears them down again.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/announcement-crawler/internal/api"
	"github.com/JakeFAU/announcement-crawler/internal/cache"
	memorycache "github.com/JakeFAU/announcement-crawler/internal/cache/memory"
	"github.com/JakeFAU/announcement-crawler/internal/cache/rediscache"
	"github.com/JakeFAU/announcement-crawler/internal/clock/system"
	"github.com/JakeFAU/announcement-crawler/internal/config"
	"github.com/JakeFAU/announcement-crawler/internal/crawler"
	"github.com/JakeFAU/announcement-crawler/internal/discovery"
	"github.com/JakeFAU/announcement-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/announcement-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/announcement-crawler/internal/hash/sha256"
	"github.com/JakeFAU/announcement-crawler/internal/id/uuid"
	"github.com/JakeFAU/announcement-crawler/internal/metrics"
	"github.com/JakeFAU/announcement-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/announcement-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/announcement-crawler/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/announcement-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/announcement-crawler/internal/retriever"
	gcsstorage "github.com/JakeFAU/announcement-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/announcement-crawler/internal/storage/local"
	pgstore "github.com/JakeFAU/announcement-crawler/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

// App contains the process dependencies.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	clock   *system.Clock
	limiter *ratelimit.Limiter

	cache       crawler.ResponseCache
	redisClient *redis.Client

	crawler     *discovery.Crawler
	progressHub *progress.Hub
	tracker     *progresssinks.Tracker

	storage         *storage.Client
	ledger          *pgstore.Ledger
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher

	server *http.Server
}

// Build creates every dependency of a crawl run. Optional integrations are
// only constructed when configured.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{
		cfg:     cfg,
		logger:  logger,
		clock:   system.New(),
		limiter: ratelimit.New(ratelimit.Config{RPS: cfg.HTTP.MaxRPS, Burst: cfg.HTTP.Burst}),
	}
	a.logger.Info("building application dependencies",
		zap.String("stock_code", cfg.Target.StockCode),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("download_mode", cfg.Download.Mode),
	)

	ok := false
	defer func() {
		if !ok {
			a.closeInfrastructure(context.Background())
		}
	}()

	var err error
	a.cache, a.redisClient, err = NewCache(cfg, a.clock, logger)
	if err != nil {
		return nil, err
	}

	remote, err := a.setupRemote()
	if err != nil {
		return nil, err
	}

	deps := discovery.Dependencies{
		Remote:    remote,
		Retriever: a.setupRetriever(),
		Sleeper:   a.clock,
		Clock:     a.clock,
		IDs:       uuid.New(),
		Hasher:    sha256.New(),
	}
	if deps.Archive, err = a.setupArchive(ctx); err != nil {
		return nil, err
	}
	if err = a.setupLedger(ctx); err != nil {
		return nil, err
	}
	if a.ledger != nil {
		deps.Ledger = a.ledger
	}
	if err = a.setupPublisher(ctx); err != nil {
		return nil, err
	}
	if a.pubsubPublisher != nil {
		deps.Publisher = a.pubsubPublisher
	}
	deps.Progress = a.setupProgress(ctx)

	a.crawler, err = discovery.New(discovery.Config{
		Target: discovery.Target{
			StockCode:    cfg.Target.StockCode,
			FNode:        cfg.Target.FNode,
			SNode:        cfg.Target.SNode,
			PageSize:     cfg.Target.PageSize,
			AnnType:      cfg.Target.AnnType,
			ClientSource: cfg.Target.ClientSource,
		},
		Endpoints: discovery.Endpoints{
			ListingURL: cfg.Endpoints.ListingURL,
			DetailURL:  cfg.Endpoints.DetailURL,
		},
		OutputDir:     cfg.Download.OutputDir,
		RecordDelay:   cfg.Pacing.RecordDelay,
		PageDelay:     cfg.Pacing.PageDelay,
		Filter:        crawler.NewKeywordFilter(cfg.Filter.Include, cfg.Filter.Exclude),
		ArchivePrefix: cfg.Storage.Prefix,
		Topic:         cfg.PubSub.TopicName,
	}, deps, logger)
	if err != nil {
		return nil, fmt.Errorf("crawler init failed: %w", err)
	}

	ok = true
	return a, nil
}

// NewCache builds the configured response cache. The redis client is
// returned so the caller can close it; it is nil for other backends.
func NewCache(cfg config.Config, clock crawler.Clock, logger *zap.Logger) (crawler.ResponseCache, *redis.Client, error) {
	switch cfg.Cache.Backend {
	case config.BackendMemory:
		logger.Info("using in-memory response cache")
		return memorycache.New(cfg.Target.StockCode, cfg.Cache.ExpireDays, clock), nil, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr, DB: cfg.Cache.RedisDB})
		logger.Info("using redis response cache", zap.String("addr", cfg.Cache.RedisAddr), zap.Int("db", cfg.Cache.RedisDB))
		c := rediscache.New(client, rediscache.Options{
			Prefix:     cfg.Cache.RedisPrefix,
			Namespace:  cfg.Target.StockCode,
			ExpireDays: cfg.Cache.ExpireDays,
		}, clock, logger)
		return c, client, nil
	default:
		store, err := cache.New(cache.Config{
			Dir:        cfg.Cache.Dir,
			Namespace:  cfg.Target.StockCode,
			ExpireDays: cfg.Cache.ExpireDays,
		}, clock, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("cache init failed: %w", err)
		}
		logger.Info("using filesystem response cache", zap.String("dir", cfg.Cache.Dir))
		return store, nil, nil
	}
}

func (a *App) setupRemote() (*fetcher.Remote, error) {
	transport := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   a.cfg.FetchTimeout(),
		Limiter:   a.limiter,
	})
	remote, err := fetcher.NewRemote(transport, a.cache, a.cfg.HTTP.UserAgent, a.logger, fetcher.WithValidator(validateEnvelope))
	if err != nil {
		return nil, fmt.Errorf("remote fetcher init failed: %w", err)
	}
	return remote, nil
}

// validateEnvelope keeps logically failed responses out of the cache.
func validateEnvelope(payload json.RawMessage) error {
	_, err := crawler.DecodeEnvelope(payload)
	return err
}

func (a *App) setupRetriever() *retriever.Retriever {
	var downloader crawler.Downloader
	switch a.cfg.Download.Mode {
	case config.ModeCurl:
		a.logger.Info("using curl downloader", zap.String("path", a.cfg.Download.CurlPath))
		curl := retriever.NewCurlDownloader(a.cfg.Download.CurlPath, a.cfg.Download.UserAgent)
		curl.MaxTime = a.cfg.DownloadTimeout()
		downloader = curl
	default:
		a.logger.Info("using colly downloader", zap.Duration("timeout", a.cfg.DownloadTimeout()))
		docFetcher := collyfetcher.New(a.documentFetcherConfig())
		downloader = collyfetcher.NewDownloader(docFetcher, a.cfg.Download.UserAgent)
	}
	policy := retriever.Policy{MaxAttempts: a.cfg.Download.MaxAttempts, Backoff: a.cfg.Download.Backoff}
	return retriever.New(downloader, a.clock, policy, a.logger)
}

// documentFetcherConfig sizes the download transport for whole documents
// rather than JSON responses.
func (a *App) documentFetcherConfig() collyfetcher.Config {
	return collyfetcher.Config{
		UserAgent: a.cfg.Download.UserAgent,
		Timeout:   a.cfg.DownloadTimeout(),
		Limiter:   a.limiter,
	}
}

func (a *App) setupArchive(ctx context.Context) (crawler.Archive, error) {
	switch {
	case a.cfg.Storage.GCSBucket != "":
		var err error
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		archive, err := gcsstorage.New(a.storage, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.logger.Info("mirroring documents to GCS", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return archive, nil
	case a.cfg.Storage.LocalDir != "":
		archive, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("mirroring documents locally", zap.String("path", a.cfg.Storage.LocalDir))
		return archive, nil
	default:
		return nil, nil
	}
}

func (a *App) setupLedger(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Debug("no database DSN configured, skipping document ledger")
		return nil
	}
	var err error
	a.ledger, err = pgstore.NewLedger(ctx, pgstore.LedgerConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("ledger init failed: %w", err)
	}
	if a.cfg.DB.EnsureSchema {
		if err := a.ledger.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ledger schema failed: %w", err)
		}
	}
	a.logger.Info("document ledger initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Debug("no Pub/Sub topic configured, skipping notifications")
		return nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher = gcppublisher.New(a.pubsubClient)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupProgress(ctx context.Context) progress.Emitter {
	a.tracker = progresssinks.NewTracker()
	a.progressHub = progress.NewHub(progress.Config{
		BaseContext: context.WithoutCancel(ctx),
		Logger:      a.logger.Named("progress_hub"),
	}, a.tracker, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	return a.progressHub
}

// Cache exposes the response cache.
func (a *App) Cache() crawler.ResponseCache {
	return a.cache
}

// Tracker exposes run snapshots.
func (a *App) Tracker() *progresssinks.Tracker {
	return a.tracker
}

// Crawl runs one crawl. The status server, when configured, serves for the
// duration of the run.
func (a *App) Crawl(ctx context.Context) (discovery.Summary, error) {
	if a.cfg.Cache.SweepOnStart {
		removed, err := a.cache.Sweep(ctx)
		if err != nil {
			a.logger.Warn("cache sweep failed", zap.Error(err))
		} else {
			a.logger.Info("cache swept", zap.Int("removed", removed))
		}
	}
	a.startServer()
	return a.crawler.Run(ctx)
}

func (a *App) startServer() {
	if a.cfg.Server.Addr == "" || a.server != nil {
		return
	}
	var opts []api.Option
	if a.redisClient != nil {
		opts = append(opts, api.WithReadinessCheck("redis", func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		}))
	}
	srv := api.NewServer(a.cache, a.tracker, a.logger.Named("api"), opts...)
	a.server = &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("status server started", zap.String("addr", a.cfg.Server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("status server error", zap.Error(err))
		}
	}()
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("status server shutdown failed", zap.Error(err))
		}
	}
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
}
