package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config tunes a Hub. Zero values pick the defaults below.
type Config struct {
	// FlushRecords is how many RECORD_DONE events of one run are held before
	// they are handed to the sinks.
	FlushRecords int
	// SinkTimeout bounds a single Consume or Close call.
	SinkTimeout time.Duration
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultFlushRecords = 10
	defaultSinkTimeout  = 5 * time.Second
)

// Hub groups the events of each crawl run and delivers them to sinks in run
// order. Record events are held until the next page event, until
// FlushRecords of them accumulate, or until the run ends. Every other stage
// is delivered immediately together with whatever the run still holds. Once
// a run has ended, further events for it are discarded.
type Hub struct {
	cfg    Config
	sinks  []Sink
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string][]Event
	order   []string
	ended   map[string]bool
	closed  bool
}

var _ Emitter = (*Hub)(nil)

// NewHub returns a Hub delivering to sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.FlushRecords <= 0 {
		cfg.FlushRecords = defaultFlushRecords
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		logger:  logger,
		pending: make(map[string][]Event),
		ended:   make(map[string]bool),
	}
}

// Emit records evt for its run, delivering the run's held events unless evt
// is a record event that still fits under FlushRecords.
func (h *Hub) Emit(evt Event) {
	if h == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.String("stage", string(evt.Stage)), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.ended[evt.RunID] {
		h.logger.Debug("discarding progress event for finished run",
			zap.String("run_id", evt.RunID), zap.String("stage", string(evt.Stage)))
		return
	}

	held, known := h.pending[evt.RunID]
	if !known {
		h.order = append(h.order, evt.RunID)
	}
	held = append(held, evt)

	switch {
	case evt.Stage.Terminal():
		h.deliver(held)
		h.ended[evt.RunID] = true
		h.forget(evt.RunID)
	case evt.Stage == StageRecordDone && countRecords(held) < h.cfg.FlushRecords:
		h.pending[evt.RunID] = held
	default:
		h.deliver(held)
		h.pending[evt.RunID] = held[:0]
	}
}

// Close delivers every held event, then closes the sinks. Later calls are
// no-ops.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, runID := range h.order {
		h.deliver(h.pending[runID])
	}
	h.pending = make(map[string][]Event)
	h.order = nil

	var errs []error
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deliver hands batch to every sink. A failing sink is logged and does not
// stop delivery to the others. Callers hold h.mu.
func (h *Hub) deliver(batch []Event) {
	if len(batch) == 0 {
		return
	}
	out := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, out); err != nil {
			h.logger.Warn("progress sink consume failed",
				zap.String("run_id", out[0].RunID), zap.Int("events", len(out)), zap.Error(err))
		}
		cancel()
	}
}

// forget drops the bookkeeping for a finished run. Callers hold h.mu.
func (h *Hub) forget(runID string) {
	delete(h.pending, runID)
	for i, id := range h.order {
		if id == runID {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

func countRecords(events []Event) int {
	n := 0
	for _, evt := range events {
		if evt.Stage == StageRecordDone {
			n++
		}
	}
	return n
}
