// Package activity is the append-only session event sink. Writes are
// buffered in memory and flushed in batches; the sink is never on a
// session's critical path, so a flush failure retries later instead of
// failing the caller.
package activity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/metriq-ai/metriq/internal/model"
	"github.com/metriq-ai/metriq/internal/telemetry"
)

// maxBufferCapacity is the hard upper limit on buffered events. Past it,
// new events are dropped and counted rather than blocking sessions.
const maxBufferCapacity = 100_000

// EventWriter persists event batches. Batches may be replayed after a
// failed flush; the writer must tolerate duplicates.
type EventWriter interface {
	InsertActivityEvents(ctx context.Context, events []model.ActivityEvent) error
}

// Sink accumulates events and flushes them to storage when either the
// batch size or the flush interval is reached.
type Sink struct {
	db           EventWriter
	logger       *slog.Logger
	maxSize      int
	flushTimeout time.Duration

	mu     sync.Mutex
	events []model.ActivityEvent

	droppedEvents atomic.Int64

	flushCh    chan struct{}
	done       chan struct{}
	cancelLoop context.CancelFunc
	drainCtx   context.Context // set by Drain so the final flush respects the caller's deadline
}

// NewSink creates an activity sink.
func NewSink(db EventWriter, logger *slog.Logger, maxSize int, flushTimeout time.Duration) *Sink {
	return &Sink{
		db:           db,
		logger:       logger,
		maxSize:      maxSize,
		flushTimeout: flushTimeout,
		flushCh:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Start begins the background flush loop and registers OTEL gauges.
// Call Drain to stop.
func (s *Sink) Start(ctx context.Context) {
	s.registerMetrics()
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancelLoop = cancel
	go s.flushLoop(loopCtx)
}

// Emit enqueues one event. Never returns an error: a full buffer drops
// the event and bumps the dropped counter.
func (s *Sink) Emit(typ model.ActivityType, sess model.Session, metadata map[string]any) {
	ev := model.ActivityEvent{
		ID:          uuid.New(),
		Type:        typ,
		SessionID:   sess.ID,
		TemplateID:  sess.TemplateID,
		ClerkUserID: sess.ClerkUserID,
		Metadata:    metadata,
		OccurredAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= maxBufferCapacity {
		s.droppedEvents.Add(1)
		s.logger.Error("activity: dropping event, buffer at capacity",
			slog.String("type", string(typ)), slog.String("session_id", sess.ID.String()))
		return
	}
	s.events = append(s.events, ev)

	if len(s.events) >= s.maxSize {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
}

func (s *Sink) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.flushTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush; ctx is already done, so use the drain context.
			if s.drainCtx != nil {
				s.flush(s.drainCtx)
			} else {
				fallbackCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				s.flush(fallbackCtx)
				cancel()
			}
			close(s.done)
			return
		case <-ticker.C:
			s.flush(ctx)
		case <-s.flushCh:
			s.flush(ctx)
		}
	}
}

func (s *Sink) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.events) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.events
	s.events = nil
	s.mu.Unlock()

	if err := s.db.InsertActivityEvents(ctx, batch); err != nil {
		s.logger.Error("activity: flush failed", "error", err, "batch_size", len(batch))
		// Put events back for retry, respecting the capacity limit.
		s.mu.Lock()
		if len(s.events)+len(batch) <= maxBufferCapacity {
			s.events = append(batch, s.events...)
		} else {
			s.droppedEvents.Add(int64(len(batch)))
			s.logger.Error("activity: dropping batch, buffer at capacity after flush failure", "dropped", len(batch))
		}
		s.mu.Unlock()
		return
	}

	s.logger.Debug("activity: batch flushed", "batch_size", len(batch))
}

// Drain signals the flush loop to stop, waits for the final flush, and
// returns. ctx bounds the wait.
func (s *Sink) Drain(ctx context.Context) {
	s.drainCtx = ctx
	if s.cancelLoop != nil {
		s.cancelLoop()
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		s.logger.Warn("activity: drain timed out waiting for flush loop")
	}
}

func (s *Sink) registerMetrics() {
	meter := telemetry.Meter("metriq/activity")

	_, _ = meter.Int64ObservableGauge("metriq.activity.buffer_depth",
		metric.WithDescription("Current number of events in the activity buffer"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(s.Len()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("metriq.activity.dropped_total",
		metric.WithDescription("Total events dropped due to buffer capacity exhaustion"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(s.DroppedEvents())
			return nil
		}),
	)
}

// Len returns the current number of buffered events.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// DroppedEvents returns the total number of events dropped. A non-zero
// value indicates data loss.
func (s *Sink) DroppedEvents() int64 {
	return s.droppedEvents.Load()
}
