package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported stages.
const (
	StageRunStart   Stage = "RUN_START"
	StagePageDone   Stage = "PAGE_DONE"
	StageRecordDone Stage = "RECORD_DONE"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
)

// Terminal reports whether s ends a run.
func (s Stage) Terminal() bool {
	return s == StageRunDone || s == StageRunError
}

// Event is one crawl milestone.
type Event struct {
	// RunID identifies the crawl run.
	RunID string
	// TS is the UTC time the event was emitted.
	TS    time.Time
	Stage Stage
	// Page is the listing page index for page and record events.
	Page int
	// TotalHits is the listing total reported with a page event.
	TotalHits int
	// Records is the number of records on a page event.
	Records int
	ArtCode string
	// Outcome is the record outcome for RECORD_DONE.
	Outcome string
	// Bytes is the size of a retrieved document.
	Bytes int64
	Dur   time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StagePageDone:
		if e.Page <= 0 {
			return errors.New("page done requires page index")
		}
	case StageRecordDone:
		if e.Outcome == "" {
			return errors.New("record done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
