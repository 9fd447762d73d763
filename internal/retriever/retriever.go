package retriever

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
	"github.com/JakeFAU/announcement-crawler/internal/metrics"
)

// Policy bounds retrieval attempts for one document.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultPolicy allows three attempts one second apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Backoff: time.Second}
}

// Result describes a successful retrieval.
type Result struct {
	Attempts int
	Verdict  Verdict
}

// Retriever downloads a document and verifies it, retrying per Policy.
type Retriever struct {
	downloader crawler.Downloader
	sleeper    crawler.Sleeper
	policy     Policy
	logger     *zap.Logger
}

// New builds a Retriever. A non-positive MaxAttempts is treated as one.
func New(downloader crawler.Downloader, sleeper crawler.Sleeper, policy Policy, logger *zap.Logger) *Retriever {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		downloader: downloader,
		sleeper:    sleeper,
		policy:     policy,
		logger:     logger.Named("retriever"),
	}
}

// Retrieve downloads ref to dest until the file verifies or attempts run out.
// The returned error wraps crawler.ErrRetriesExhausted and the last cause.
func (r *Retriever) Retrieve(ctx context.Context, ref crawler.DocumentReference, dest string) (Result, error) {
	var last error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		logger := r.logger.With(
			zap.String("art_code", ref.ArtCode),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
		)

		if err := r.downloader.Download(ctx, ref.URL, dest); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{Attempts: attempt}, ctxErr
			}
			metrics.ObserveDownloadAttempt("error")
			logger.Warn("download failed", zap.String("url", ref.URL), zap.Error(err))
			last = err
		} else {
			verdict, err := Verify(dest, ref.DeclaredKB)
			switch {
			case err != nil:
				metrics.ObserveDownloadAttempt("error")
				logger.Warn("verify failed", zap.String("path", dest), zap.Error(err))
				last = err
			case verdict.Exists && verdict.Complete:
				metrics.ObserveDownloadAttempt("ok")
				metrics.ObserveDownloadBytes(verdict.SizeBytes)
				logger.Info("document retrieved",
					zap.String("path", dest),
					zap.Int64("actual_kb", verdict.ActualKB),
					zap.Int64("expected_kb", verdict.ExpectedKB),
				)
				return Result{Attempts: attempt, Verdict: verdict}, nil
			default:
				metrics.ObserveDownloadAttempt("incomplete")
				logger.Warn("document incomplete",
					zap.String("path", dest),
					zap.Int64("actual_kb", verdict.ActualKB),
					zap.Int64("expected_kb", verdict.ExpectedKB),
				)
				last = &crawler.Failure{
					Kind:    crawler.ErrIntegrity,
					Op:      "verify",
					Path:    dest,
					ArtCode: ref.ArtCode,
					Err:     fmt.Errorf("got %d KB, expected %d KB", verdict.ActualKB, verdict.ExpectedKB),
				}
			}
		}

		if attempt < r.policy.MaxAttempts && r.policy.Backoff > 0 {
			if err := r.sleeper.Sleep(ctx, r.policy.Backoff); err != nil {
				return Result{Attempts: attempt}, err
			}
		}
	}

	kind := crawler.KindOf(last)
	if kind == nil {
		kind = crawler.ErrTransport
	}
	return Result{Attempts: r.policy.MaxAttempts}, &crawler.Failure{
		Kind:    kind,
		Op:      "retrieve",
		URL:     ref.URL,
		Path:    dest,
		ArtCode: ref.ArtCode,
		Err:     fmt.Errorf("%w after %d attempts: %w", crawler.ErrRetriesExhausted, r.policy.MaxAttempts, last),
	}
}

// Exhausted reports whether err came from a document that used up its
// attempts.
func Exhausted(err error) bool {
	return errors.Is(err, crawler.ErrRetriesExhausted)
}
