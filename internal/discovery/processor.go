package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
	"github.com/JakeFAU/announcement-crawler/internal/metrics"
	"github.com/JakeFAU/announcement-crawler/internal/progress"
	"github.com/JakeFAU/announcement-crawler/internal/retriever"
)

const documentContentType = "application/pdf"

// processRecord resolves one listing record and retrieves its document. Every
// failure is confined to the record.
func (c *Crawler) processRecord(ctx context.Context, runID string, page int, rec crawler.Record) (string, int64) {
	logger := c.logger.With(zap.String("run_id", runID), zap.Int("page", page), zap.String("art_code", rec.ArtCode))

	outcome, result, ref, dest, err := c.resolveAndRetrieve(ctx, logger, rec)
	metrics.ObserveRecord(outcome)

	evt := progress.Event{
		RunID:   runID,
		Stage:   progress.StageRecordDone,
		Page:    page,
		ArtCode: rec.ArtCode,
		Outcome: outcome,
	}
	if err != nil {
		evt.Note = err.Error()
		c.emit(evt)
		return outcome, 0
	}
	if outcome != OutcomeDownloaded {
		c.emit(evt)
		return outcome, 0
	}

	evt.Bytes = result.Verdict.SizeBytes
	c.emit(evt)
	c.afterRetrieval(ctx, logger, runID, ref, dest, result)
	return outcome, result.Verdict.SizeBytes
}

func (c *Crawler) resolveAndRetrieve(
	ctx context.Context,
	logger *zap.Logger,
	rec crawler.Record,
) (string, retriever.Result, crawler.DocumentReference, string, error) {
	if strings.TrimSpace(rec.ArtCode) == "" {
		err := &crawler.Failure{Kind: crawler.ErrLogical, Op: "process record", Err: errors.New("record has no art_code")}
		logger.Warn("skipping record without art_code", zap.String("title", rec.Title))
		return OutcomeFailed, retriever.Result{}, crawler.DocumentReference{}, "", err
	}

	detailURL := c.urls.DetailURL(rec.ArtCode)
	payload, err := c.deps.Remote.FetchJSON(ctx, detailURL)
	if err != nil {
		logger.Warn("detail fetch failed", zap.String("url", detailURL), zap.Error(err))
		return OutcomeFailed, retriever.Result{}, crawler.DocumentReference{}, "", err
	}
	detail, err := crawler.DecodeDetail(payload)
	if err != nil {
		logger.Warn("detail unusable", zap.String("url", detailURL), zap.Error(err))
		return OutcomeFailed, retriever.Result{}, crawler.DocumentReference{}, "", err
	}
	ref, err := crawler.NewDocumentReference(rec, detail)
	if err != nil {
		logger.Warn("record has no document", zap.Error(err))
		return OutcomeFailed, retriever.Result{}, crawler.DocumentReference{}, "", err
	}

	if ok, decision := c.cfg.Filter.Decide(ref.Title); !ok {
		logger.Info("record filtered", zap.String("title", ref.Title), zap.String("decision", decision))
		return OutcomeFiltered, retriever.Result{}, ref, "", nil
	}

	dest := crawler.DestinationPath(c.cfg.OutputDir, ref)
	logger = logger.With(zap.String("path", dest))

	needed, verdict, err := retriever.NeedsRetrieval(dest, ref.DeclaredKB)
	if err != nil {
		logger.Warn("destination check failed", zap.Error(err))
		return OutcomeFailed, retriever.Result{}, ref, dest, err
	}
	if !needed {
		logger.Debug("document already present", zap.Int64("actual_kb", verdict.ActualKB))
		return OutcomeSkippedExisting, retriever.Result{}, ref, dest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		failure := &crawler.Failure{Kind: crawler.ErrFilesystem, Op: "create destination dir", Path: dest, ArtCode: ref.ArtCode, Err: err}
		logger.Warn("cannot create destination directory", zap.Error(err))
		return OutcomeFailed, retriever.Result{}, ref, dest, failure
	}

	logger.Info("retrieving document", zap.String("url", ref.URL), zap.Int64("declared_kb", ref.DeclaredKB))
	result, err := c.deps.Retriever.Retrieve(ctx, ref, dest)
	if err != nil {
		if retriever.Exhausted(err) {
			logger.Error("document abandoned", zap.String("url", ref.URL), zap.Error(err))
		} else {
			logger.Warn("document retrieval interrupted", zap.Error(err))
		}
		return OutcomeFailed, result, ref, dest, err
	}
	return OutcomeDownloaded, result, ref, dest, nil
}

// afterRetrieval hashes, archives, records and announces a retrieved document.
// Each step is optional and none of them can fail the record.
func (c *Crawler) afterRetrieval(
	ctx context.Context,
	logger *zap.Logger,
	runID string,
	ref crawler.DocumentReference,
	dest string,
	result retriever.Result,
) {
	if c.deps.Hasher == nil && c.deps.Archive == nil && c.deps.Ledger == nil && c.deps.Publisher == nil {
		return
	}

	record := crawler.DocumentRecord{
		RunID:       runID,
		ArtCode:     ref.ArtCode,
		StockCode:   ref.StockCode,
		ShortName:   ref.ShortName,
		Title:       ref.Title,
		Column:      ref.Column,
		NoticeDate:  ref.NoticeDate,
		SourceURL:   ref.URL,
		LocalPath:   dest,
		DeclaredKB:  ref.DeclaredKB,
		SizeBytes:   result.Verdict.SizeBytes,
		Attempts:    result.Attempts,
		RetrievedAt: c.deps.Clock.Now(),
	}
	if id, err := c.deps.IDs.NewID(); err == nil {
		record.ID = id
	} else {
		logger.Warn("document id generation failed", zap.Error(err))
	}

	if c.deps.Hasher != nil {
		hash, err := c.hashFile(dest)
		if err != nil {
			logger.Warn("hash document failed", zap.Error(err))
		} else {
			record.ContentHash = hash
		}
	}

	if c.deps.Archive != nil {
		uri, err := c.archive(ctx, dest, ref, record.ContentHash)
		if err != nil {
			logger.Warn("archive document failed", zap.Error(err))
		} else {
			record.ArchiveURI = uri
		}
	}

	if c.deps.Ledger != nil {
		if err := c.deps.Ledger.RecordDocument(ctx, record); err != nil {
			logger.Warn("record document failed", zap.Error(err))
		}
	}

	if c.deps.Publisher != nil && c.cfg.Topic != "" {
		msgID, err := c.deps.Publisher.Publish(ctx, c.cfg.Topic, record)
		if err != nil {
			logger.Warn("publish document failed", zap.String("topic", c.cfg.Topic), zap.Error(err))
		} else {
			logger.Debug("document published", zap.String("topic", c.cfg.Topic), zap.String("message_id", msgID))
		}
	}
}

func (c *Crawler) hashFile(dest string) (string, error) {
	f, err := os.Open(dest)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	hash, err := c.deps.Hasher.HashReader(f)
	if err != nil {
		return "", fmt.Errorf("hash document: %w", err)
	}
	return hash, nil
}

func (c *Crawler) archive(ctx context.Context, dest string, ref crawler.DocumentReference, hash string) (string, error) {
	f, err := os.Open(dest)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	uri, err := c.deps.Archive.PutObject(ctx, c.archivePath(ref, hash), documentContentType, f)
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

// archivePath is <prefix>/<stock>/<art_code>[-<hash prefix>].pdf.
func (c *Crawler) archivePath(ref crawler.DocumentReference, hash string) string {
	name := crawler.SafeComponent(ref.ArtCode, "unknown")
	if len(hash) >= 12 {
		name += "-" + hash[:12]
	}
	parts := []string{
		crawler.SafeComponent(ref.StockCode, "unknown"),
		name + ".pdf",
	}
	if prefix := strings.Trim(c.cfg.ArchivePrefix, "/"); prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return path.Join(parts...)
}
