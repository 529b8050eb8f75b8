// Package stats buffers presence events for an external aggregator. The
// core never reads them back: Sink only accumulates, flushes on a timer,
// and drops the oldest event when the buffer is full rather than
// blocking a session on a slow downstream.
//
// Ported from the original application::stats_collector::PresenceEventCollector
// (a VecDeque behind an RwLock, periodic flush task, re-enqueue-in-order
// on flush failure) onto a mutex-guarded slice.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/dukepan/multi-rooms-chat-back/internal/models"
	"github.com/dukepan/multi-rooms-chat-back/internal/utils"
)

// Exporter is the external aggregator's receiving side. The core ships
// with no production implementation; tests use a stub.
type Exporter interface {
	Export(ctx context.Context, events []models.PresenceEvent) error
}

type Config struct {
	MaxQueueSize  int
	FlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{MaxQueueSize: 10000, FlushInterval: 5 * time.Second}
}

type Sink struct {
	mu       sync.Mutex
	queue    []models.PresenceEvent
	maxSize  int
	exporter Exporter
	logger   *utils.Logger

	flushInterval time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
}

func New(cfg Config, exporter Exporter, logger *utils.Logger) *Sink {
	return &Sink{
		maxSize:       cfg.MaxQueueSize,
		flushInterval: cfg.FlushInterval,
		exporter:      exporter,
		logger:        logger,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Enqueue appends an event, dropping the oldest queued event if the
// buffer is already at capacity.
func (s *Sink) Enqueue(ev models.PresenceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= s.maxSize {
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, ev)
}

// Start runs the periodic flush loop until ctx is cancelled or Stop is
// called.
func (s *Sink) Start(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	defer close(s.doneCh)
	for {
		select {
		case <-ticker.C:
			s.flush(ctx)
		case <-s.stopCh:
			s.flush(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sink) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Sink) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	if err := s.exporter.Export(ctx, batch); err != nil {
		s.logger.Error(ctx, "stats export failed, re-enqueueing batch: %v", err)
		s.mu.Lock()
		s.queue = append(batch, s.queue...)
		if len(s.queue) > s.maxSize {
			s.queue = s.queue[len(s.queue)-s.maxSize:]
		}
		s.mu.Unlock()
	}
}

// Len reports the current queue depth, used by tests and health checks.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// LogExporter is the default Exporter: it ships no events anywhere, it
// just logs the batch size. A real deployment points Sink at whatever
// aggregator spec.md's external interfaces describe; this keeps the
// process runnable without one configured.
type LogExporter struct {
	logger *utils.Logger
}

func NewLogExporter(logger *utils.Logger) *LogExporter { return &LogExporter{logger: logger} }

func (e *LogExporter) Export(ctx context.Context, events []models.PresenceEvent) error {
	e.logger.Info(ctx, "stats: flushed %d presence events", len(events))
	return nil
}
