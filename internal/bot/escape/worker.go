package escape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/bot/target"
	"github.com/cory-johannsen/huntbot/internal/bot/worker"
	"github.com/cory-johannsen/huntbot/internal/config"
	"github.com/cory-johannsen/huntbot/internal/input"
	"github.com/cory-johannsen/huntbot/internal/journal"
)

// Worker runs the escape sequence when the Tracker reports a stuck mob.
type Worker struct {
	state    *target.State
	registry *worker.Registry
	gate     *worker.Gate
	input    input.Injector
	cfg      config.Source
	journal  *journal.Recorder
	hook     Scripter
	logger   *zap.Logger

	tracker Tracker
}

// NewWorker returns the escape worker. hook may be nil; journal may be nil.
//
// Precondition: state, registry, gate, in, cfg and logger must be non-nil.
func NewWorker(
	state *target.State,
	registry *worker.Registry,
	gate *worker.Gate,
	in input.Injector,
	cfg config.Source,
	hook Scripter,
	rec *journal.Recorder,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		state:    state,
		registry: registry,
		gate:     gate,
		input:    in,
		cfg:      cfg,
		journal:  rec,
		hook:     hook,
		logger:   logger,
	}
}

// Name returns worker.Escape.
func (w *Worker) Name() string { return worker.Escape }

// Interval returns the configured escape poll interval.
func (w *Worker) Interval() time.Duration {
	return w.cfg.Current().Workers.Intervals.Escape
}

// Tracker exposes the worker's stuck tracker.
func (w *Worker) Tracker() *Tracker { return &w.tracker }

// Timeouts returns the timeout policy for cfg.
func (w *Worker) Timeouts(cfg *config.Config) Timeouts {
	table := NewTable(cfg.Escape.Timeout, cfg.Escape.Overrides)
	if w.hook == nil {
		return table
	}
	return HookTimeouts{Hook: w.hook, Next: table}
}

// Tick polls the tracker and runs one escape sequence when it fires.
//
// Postcondition: The gate is released and every worker reactivated when Tick
// returns, even when the input layer fails or panics.
func (w *Worker) Tick(ctx context.Context) error {
	cfg := w.cfg.Current()
	snap := w.state.Snapshot()
	if snap.ExclusiveAction {
		return nil
	}
	if !w.tracker.Poll(snap, w.Timeouts(cfg)) {
		return nil
	}

	point, ok := w.tracker.Point(cfg.Escape.Points)
	if !ok {
		w.logger.Error("escape triggered but no escape points are configured",
			zap.String("mob", snap.MatchedName),
		)
		return nil
	}
	if !w.gate.TryAcquire() {
		w.tracker.Clear()
		w.logger.Debug("exclusive action in progress, skipping escape", zap.String("mob", snap.MatchedName))
		return nil
	}
	return w.run(snap, point, cfg.Escape)
}

// run performs the clicks. Pauses are not cancellable so a stop request never
// leaves the character mid-sequence.
func (w *Worker) run(snap target.Snapshot, point config.Point, ec config.EscapeConfig) (err error) {
	start := time.Now()
	clicks := 0
	w.registry.PauseAllExcept(worker.Escape)
	w.state.MarkExclusiveActionStart()
	defer func() {
		w.state.MarkExclusiveActionEnd()
		w.registry.ReactivateAll()
		w.gate.Release()
		w.state.ResetTransitionClock()
		w.tracker.Advance()
		w.tracker.Clear()
		w.journal.Record(journal.Action{
			Kind:      journal.KindEscape,
			Target:    snap.MatchedName,
			PointX:    point.X,
			PointY:    point.Y,
			Clicks:    clicks,
			StartedAt: start,
			Duration:  time.Since(start),
		})
	}()

	w.logger.Info("escaping stuck mob",
		zap.String("mob", snap.MatchedName),
		zap.Duration("elapsed", snap.Elapsed),
		zap.Stringer("point", point),
	)

	var interval time.Duration
	if ec.Clicks > 0 {
		interval = ec.Duration / time.Duration(ec.Clicks)
	}
	for i := 0; i < ec.Clicks; i++ {
		if i > 0 {
			time.Sleep(interval)
		}
		if err := w.input.Click(point.X, point.Y); err != nil {
			return fmt.Errorf("escape click at %s: %w", point, err)
		}
		clicks++
	}

	time.Sleep(ec.Settle)
	for i := 0; i < ec.RecenterClicks; i++ {
		if i > 0 {
			time.Sleep(ec.RecenterPause)
		}
		if err := w.input.Click(ec.Recenter.X, ec.Recenter.Y); err != nil {
			return fmt.Errorf("recenter click at %s: %w", ec.Recenter, err)
		}
		clicks++
	}
	return nil
}
