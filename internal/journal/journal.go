// Package journal records every exclusive action the bot performs.
package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind names an exclusive action.
type Kind string

const (
	// KindLoot is a loot-on-kill sequence.
	KindLoot Kind = "loot"
	// KindEscape is an escape-on-stuck sequence.
	KindEscape Kind = "escape"
)

// Action is one completed exclusive sequence.
type Action struct {
	ID    uuid.UUID
	RunID uuid.UUID
	Kind  Kind
	// Target is the matched name the sequence was triggered for.
	Target string
	// PointX and PointY locate the escape click point; zero for loot.
	PointX    int
	PointY    int
	Presses   int
	Clicks    int
	StartedAt time.Time
	Duration  time.Duration
}

// Sink persists actions.
type Sink interface {
	SaveAction(ctx context.Context, a Action) error
}

// LogSink writes actions to a logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a LogSink writing to logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// SaveAction logs a.
func (s *LogSink) SaveAction(_ context.Context, a Action) error {
	s.logger.Info("exclusive action",
		zap.String("id", a.ID.String()),
		zap.String("run_id", a.RunID.String()),
		zap.String("kind", string(a.Kind)),
		zap.String("target", a.Target),
		zap.Int("point_x", a.PointX),
		zap.Int("point_y", a.PointY),
		zap.Int("presses", a.Presses),
		zap.Int("clicks", a.Clicks),
		zap.Time("started_at", a.StartedAt),
		zap.Duration("duration", a.Duration),
	)
	return nil
}

const saveTimeout = 5 * time.Second

// Recorder hands actions to a Sink from a background goroutine so a slow sink
// never delays an input sequence.
//
// Invariant: Record never blocks; actions that do not fit in the buffer are dropped and counted.
type Recorder struct {
	sink   Sink
	runID  uuid.UUID
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan Action

	dropped atomic.Int64
	done    chan struct{}
}

// NewRecorder starts a Recorder that stamps actions with runID.
//
// Precondition: buffer must be >= 1.
// Postcondition: The drain goroutine runs until Close.
func NewRecorder(sink Sink, runID uuid.UUID, buffer int, logger *zap.Logger) *Recorder {
	if buffer < 1 {
		panic("journal.NewRecorder: buffer must be >= 1")
	}
	r := &Recorder{
		sink:   sink,
		runID:  runID,
		logger: logger,
		ch:     make(chan Action, buffer),
		done:   make(chan struct{}),
	}
	go r.drain()
	return r
}

// RunID returns the run every recorded action is stamped with, or uuid.Nil
// for a nil Recorder.
func (r *Recorder) RunID() uuid.UUID {
	if r == nil {
		return uuid.Nil
	}
	return r.runID
}

// Record queues a. A nil Recorder discards it.
func (r *Recorder) Record(a Action) {
	if r == nil {
		return
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.RunID = r.runID

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.ch <- a:
	default:
		r.dropped.Add(1)
		r.logger.Warn("journal buffer full, dropping action", zap.String("kind", string(a.Kind)))
	}
}

// Dropped returns the number of actions discarded so far.
func (r *Recorder) Dropped() int64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Close stops accepting actions and waits until the buffered ones are saved.
// Close is idempotent.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) drain() {
	defer close(r.done)
	for a := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := r.sink.SaveAction(ctx, a); err != nil {
			r.logger.Warn("saving journal action", zap.String("id", a.ID.String()), zap.Error(err))
		}
		cancel()
	}
}
