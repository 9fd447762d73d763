package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/announcement-crawler/internal/progress"
)

// Run states reported by the tracker.
const (
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// RunSnapshot is the aggregated view of one crawl run.
type RunSnapshot struct {
	RunID      string         `json:"run_id"`
	State      string         `json:"state"`
	StartedAt  time.Time      `json:"started_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Page       int            `json:"page"`
	TotalHits  int            `json:"total_hits"`
	Pages      int            `json:"pages"`
	Records    int            `json:"records"`
	Outcomes   map[string]int `json:"outcomes"`
	Bytes      int64          `json:"bytes"`
	LastError  string         `json:"last_error,omitempty"`
}

func (s RunSnapshot) clone() RunSnapshot {
	out := s
	out.Outcomes = make(map[string]int, len(s.Outcomes))
	for k, v := range s.Outcomes {
		out.Outcomes[k] = v
	}
	if s.FinishedAt != nil {
		ts := *s.FinishedAt
		out.FinishedAt = &ts
	}
	return out
}

// Tracker folds events into per-run snapshots held in memory.
type Tracker struct {
	mu     sync.RWMutex
	runs   map[string]*RunSnapshot
	latest string
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]*RunSnapshot)}
}

// Consume applies each event to its run snapshot.
func (t *Tracker) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		t.apply(evt)
	}
	return nil
}

func (t *Tracker) apply(evt progress.Event) {
	run, ok := t.runs[evt.RunID]
	if !ok {
		run = &RunSnapshot{
			RunID:     evt.RunID,
			State:     StateRunning,
			StartedAt: evt.TS,
			Outcomes:  make(map[string]int),
		}
		t.runs[evt.RunID] = run
		t.latest = evt.RunID
	}
	run.UpdatedAt = evt.TS

	switch evt.Stage {
	case progress.StageRunStart:
		run.StartedAt = evt.TS
		t.latest = evt.RunID
	case progress.StagePageDone:
		run.Page = evt.Page
		run.TotalHits = evt.TotalHits
		run.Pages++
	case progress.StageRecordDone:
		run.Records++
		run.Outcomes[evt.Outcome]++
		run.Bytes += evt.Bytes
		if evt.Note != "" {
			run.LastError = evt.Note
		}
	case progress.StageRunDone:
		run.State = StateDone
		ts := evt.TS
		run.FinishedAt = &ts
	case progress.StageRunError:
		run.State = StateFailed
		run.LastError = evt.Note
		ts := evt.TS
		run.FinishedAt = &ts
	}
}

// Latest returns the snapshot of the most recently started run.
func (t *Tracker) Latest() (RunSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[t.latest]
	if !ok {
		return RunSnapshot{}, false
	}
	return run.clone(), true
}

// Get returns the snapshot for runID.
func (t *Tracker) Get(runID string) (RunSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[runID]
	if !ok {
		return RunSnapshot{}, false
	}
	return run.clone(), true
}

// Close implements the Sink interface; it performs no action.
func (t *Tracker) Close(context.Context) error {
	return nil
}
