package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
	"github.com/JakeFAU/announcement-crawler/internal/metrics"
	"github.com/JakeFAU/announcement-crawler/internal/progress"
	"github.com/JakeFAU/announcement-crawler/internal/retriever"
)

// DocumentRetriever downloads and verifies one document.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, ref crawler.DocumentReference, dest string) (retriever.Result, error)
}

// Config controls a crawl run.
type Config struct {
	Target    Target
	Endpoints Endpoints
	// OutputDir is the root of the destination tree.
	OutputDir string
	// RecordDelay follows every record; PageDelay precedes every page after
	// the first.
	RecordDelay time.Duration
	PageDelay   time.Duration
	Filter      crawler.KeywordFilter
	// ArchivePrefix is prepended to archive object paths.
	ArchivePrefix string
	// Topic receives one notification per retrieved document.
	Topic string
}

// Dependencies are the collaborators of a Crawler. Hasher, Archive, Ledger,
// Publisher and Progress are optional.
type Dependencies struct {
	Remote    crawler.RemoteFetcher
	Retriever DocumentRetriever
	Sleeper   crawler.Sleeper
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
	Hasher    crawler.Hasher
	Archive   crawler.Archive
	Ledger    crawler.Ledger
	Publisher crawler.Publisher
	Progress  progress.Emitter
}

// Crawler runs the discovery loop.
type Crawler struct {
	cfg     Config
	deps    Dependencies
	urls    *URLBuilder
	logger  *zap.Logger
	emitter progress.Emitter
}

type state int

const (
	stateFetchingPage state = iota
	stateProcessingRecords
	stateNextPage
	stateDone
)

// New validates cfg and deps and returns a Crawler.
func New(cfg Config, deps Dependencies, logger *zap.Logger) (*Crawler, error) {
	switch {
	case deps.Remote == nil:
		return nil, errors.New("remote fetcher is required")
	case deps.Retriever == nil:
		return nil, errors.New("retriever is required")
	case deps.Sleeper == nil:
		return nil, errors.New("sleeper is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if cfg.Target.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", cfg.Target.PageSize)
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("output dir is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := deps.Progress
	if emitter == nil {
		emitter = nopEmitter{}
	}
	return &Crawler{
		cfg:     cfg,
		deps:    deps,
		urls:    NewURLBuilder(cfg.Endpoints, cfg.Target, deps.Clock),
		logger:  logger.Named("discovery"),
		emitter: emitter,
	}, nil
}

// Run walks the listing from page 1 until the last page, an empty page, a
// listing failure or cancellation. A listing failure is returned as an error
// together with the partial summary; record failures are only counted.
func (c *Crawler) Run(ctx context.Context) (Summary, error) {
	runID, err := c.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary := Summary{RunID: runID, StartedAt: c.deps.Clock.Now()}
	logger := c.logger.With(zap.String("run_id", runID), zap.String("stock_code", c.cfg.Target.StockCode))
	logger.Info("crawl started")
	c.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart})

	var (
		page    = 1
		st      = stateFetchingPage
		listing crawler.ListingPage
	)
	for st != stateDone {
		if err := ctx.Err(); err != nil {
			return c.finish(logger, summary, StopCanceled, err)
		}
		switch st {
		case stateFetchingPage:
			lp, err := c.fetchListing(ctx, page)
			if err != nil {
				metrics.ObserveListingPage("error")
				logger.Error("listing page failed; stopping crawl", zap.Int("page", page), zap.Error(err))
				return c.finish(logger, summary, StopListingFailed, err)
			}
			metrics.ObserveListingPage("ok")
			summary.Pages++
			summary.TotalHits = lp.TotalHits
			c.emit(progress.Event{
				RunID:     runID,
				Stage:     progress.StagePageDone,
				Page:      page,
				TotalHits: lp.TotalHits,
				Records:   len(lp.List),
			})
			logger.Info("listing page fetched",
				zap.Int("page", page),
				zap.Int("records", len(lp.List)),
				zap.Int("total_hits", lp.TotalHits),
			)
			if len(lp.List) == 0 {
				summary.StopReason = StopEmptyPage
				st = stateDone
				continue
			}
			listing = lp
			st = stateProcessingRecords

		case stateProcessingRecords:
			for _, rec := range listing.List {
				outcome, bytes := c.processRecord(ctx, runID, page, rec)
				if ctx.Err() != nil {
					return c.finish(logger, summary, StopCanceled, ctx.Err())
				}
				summary.add(outcome, bytes)
				if err := c.deps.Sleeper.Sleep(ctx, c.cfg.RecordDelay); err != nil {
					return c.finish(logger, summary, StopCanceled, err)
				}
			}
			if page*c.cfg.Target.PageSize >= listing.TotalHits {
				summary.StopReason = StopLastPage
				st = stateDone
				continue
			}
			st = stateNextPage

		case stateNextPage:
			page++
			if err := c.deps.Sleeper.Sleep(ctx, c.cfg.PageDelay); err != nil {
				return c.finish(logger, summary, StopCanceled, err)
			}
			st = stateFetchingPage
		}
	}
	return c.finish(logger, summary, summary.StopReason, nil)
}

func (c *Crawler) fetchListing(ctx context.Context, page int) (crawler.ListingPage, error) {
	payload, err := c.deps.Remote.FetchJSON(ctx, c.urls.ListingURL(page))
	if err != nil {
		return crawler.ListingPage{}, fmt.Errorf("fetch listing page %d: %w", page, err)
	}
	lp, err := crawler.DecodeListing(payload)
	if err != nil {
		return crawler.ListingPage{}, fmt.Errorf("decode listing page %d: %w", page, err)
	}
	return lp, nil
}

func (c *Crawler) finish(logger *zap.Logger, summary Summary, reason string, err error) (Summary, error) {
	summary.StopReason = reason
	summary.FinishedAt = c.deps.Clock.Now()
	fields := []zap.Field{
		zap.String("stop_reason", reason),
		zap.Int("pages", summary.Pages),
		zap.Int("records", summary.Records),
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("skipped_existing", summary.SkippedExisting),
		zap.Int("filtered", summary.Filtered),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration()),
	}
	if err != nil {
		logger.Error("crawl stopped", append(fields, zap.Error(err))...)
		c.emit(progress.Event{RunID: summary.RunID, Stage: progress.StageRunError, Dur: summary.Duration(), Note: err.Error()})
		return summary, err
	}
	logger.Info("crawl finished", fields...)
	c.emit(progress.Event{RunID: summary.RunID, Stage: progress.StageRunDone, Dur: summary.Duration()})
	return summary, nil
}

func (c *Crawler) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = c.deps.Clock.Now()
	}
	c.emitter.Emit(evt)
}

type nopEmitter struct{}

func (nopEmitter) Emit(progress.Event) {}
