// Package loot presses the pickup key after the selected mob dies.
package loot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/bot/target"
	"github.com/cory-johannsen/huntbot/internal/bot/worker"
	"github.com/cory-johannsen/huntbot/internal/config"
	"github.com/cory-johannsen/huntbot/internal/input"
	"github.com/cory-johannsen/huntbot/internal/journal"
)

// Trigger decides whether a snapshot shows a freshly killed mob.
//
// Invariant: Poll reports each MOB->{NONE,DROP} transition at most once after it
// has been marked Handled.
type Trigger struct {
	mu      sync.Mutex
	handled uint64
}

// Poll reports whether snap is an unhandled MOB->NONE or MOB->DROP transition
// with no exclusive action running.
func (t *Trigger) Poll(snap target.Snapshot) bool {
	if snap.PreviousKind != target.KindMob {
		return false
	}
	if snap.Kind != target.KindNone && snap.Kind != target.KindDrop {
		return false
	}
	if snap.ExclusiveAction {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handled != snap.Transitions
}

// Handled marks the transition carried by snap as consumed.
func (t *Trigger) Handled(snap target.Snapshot) {
	t.mu.Lock()
	t.handled = snap.Transitions
	t.mu.Unlock()
}

// Worker runs the loot sequence.
type Worker struct {
	state    *target.State
	registry *worker.Registry
	gate     *worker.Gate
	input    input.Injector
	cfg      config.Source
	journal  *journal.Recorder
	logger   *zap.Logger

	trigger Trigger
}

// NewWorker returns the loot worker. rec may be nil.
//
// Precondition: state, registry, gate, in, cfg and logger must be non-nil.
func NewWorker(
	state *target.State,
	registry *worker.Registry,
	gate *worker.Gate,
	in input.Injector,
	cfg config.Source,
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
		logger:   logger,
	}
}

// Name returns worker.Loot.
func (w *Worker) Name() string { return worker.Loot }

// Interval returns the configured loot poll interval.
func (w *Worker) Interval() time.Duration {
	return w.cfg.Current().Workers.Intervals.Loot
}

// Tick runs one loot sequence when the trigger fires and the gate is free. A
// busy gate leaves the transition unhandled so a later tick can retry it.
//
// Postcondition: The gate is released and every worker reactivated when Tick
// returns after acquiring the gate.
func (w *Worker) Tick(ctx context.Context) error {
	snap := w.state.Snapshot()
	if !w.trigger.Poll(snap) {
		return nil
	}
	if !w.gate.TryAcquire() {
		w.logger.Debug("exclusive action in progress, skipping loot")
		return nil
	}
	w.trigger.Handled(snap)
	return w.run(snap, w.cfg.Current())
}

func (w *Worker) run(snap target.Snapshot, cfg *config.Config) error {
	start := time.Now()
	presses := 0
	lc, hold := cfg.Loot, cfg.Input.KeyHold
	w.registry.PauseAllExcept(worker.Loot)
	w.state.MarkExclusiveActionStart()
	defer func() {
		w.state.MarkExclusiveActionEnd()
		w.registry.ReactivateAll()
		w.gate.Release()
		w.state.ResetTransitionClock()
		w.journal.Record(journal.Action{
			Kind:      journal.KindLoot,
			Target:    snap.MatchedName,
			Presses:   presses,
			StartedAt: start,
			Duration:  time.Since(start),
		})
	}()

	w.logger.Info("looting",
		zap.Stringer("after", snap.PreviousKind),
		zap.Stringer("now", snap.Kind),
		zap.Int("repetitions", lc.Repetitions),
	)
	for i := 0; i < lc.Repetitions; i++ {
		if i > 0 {
			time.Sleep(lc.Interval)
		}
		if err := w.input.PressKey(lc.Key, hold); err != nil {
			return fmt.Errorf("loot key %q: %w", lc.Key, err)
		}
		presses++
	}
	return nil
}
