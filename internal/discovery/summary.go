package discovery

import "time"

// Record outcomes.
const (
	OutcomeDownloaded      = "downloaded"
	OutcomeSkippedExisting = "skipped_existing"
	OutcomeFiltered        = "filtered"
	OutcomeFailed          = "failed"
)

// Reasons a run stopped.
const (
	StopLastPage      = "last_page"
	StopEmptyPage     = "empty_page"
	StopListingFailed = "listing_failed"
	StopCanceled      = "canceled"
)

// Summary tallies one crawl run.
type Summary struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Pages           int       `json:"pages"`
	TotalHits       int       `json:"total_hits"`
	Records         int       `json:"records"`
	Downloaded      int       `json:"downloaded"`
	SkippedExisting int       `json:"skipped_existing"`
	Filtered        int       `json:"filtered"`
	Failed          int       `json:"failed"`
	Bytes           int64     `json:"bytes"`
	StopReason      string    `json:"stop_reason"`
}

func (s *Summary) add(outcome string, bytes int64) {
	s.Records++
	switch outcome {
	case OutcomeDownloaded:
		s.Downloaded++
		s.Bytes += bytes
	case OutcomeSkippedExisting:
		s.SkippedExisting++
	case OutcomeFiltered:
		s.Filtered++
	default:
		s.Failed++
	}
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
