// Package observer runs the target acquisition worker.
package observer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/bot/target"
	"github.com/cory-johannsen/huntbot/internal/bot/worker"
	"github.com/cory-johannsen/huntbot/internal/config"
	"github.com/cory-johannsen/huntbot/internal/input"
)

// Worker selects a new target when none is selected and hands control to the
// combat workers once one is.
type Worker struct {
	state    *target.State
	registry *worker.Registry
	input    input.Injector
	cfg      config.Source
	logger   *zap.Logger
}

// NewWorker returns the observer worker.
//
// Precondition: all arguments must be non-nil.
func NewWorker(state *target.State, registry *worker.Registry, in input.Injector, cfg config.Source, logger *zap.Logger) *Worker {
	return &Worker{state: state, registry: registry, input: in, cfg: cfg, logger: logger}
}

// Name returns worker.Observer.
func (w *Worker) Name() string { return worker.Observer }

// Interval returns the configured observer poll interval.
func (w *Worker) Interval() time.Duration {
	return w.cfg.Current().Workers.Intervals.Observer
}

// Tick presses the select key on NONE and waits reselect_delay. On MOB or DROP
// it pauses everything but skills and enables loot and escape; this pauses
// the observer itself until the next ReactivateAll.
func (w *Worker) Tick(ctx context.Context) error {
	cfg := w.cfg.Current()
	switch w.state.Snapshot().Kind {
	case target.KindNone:
		if err := w.input.PressKey(cfg.Observer.SelectKey, cfg.Input.KeyHold); err != nil {
			return fmt.Errorf("select key %q: %w", cfg.Observer.SelectKey, err)
		}
		w.logger.Debug("selecting next target", zap.String("key", cfg.Observer.SelectKey))
		worker.Sleep(ctx, cfg.Observer.ReselectDelay)
	case target.KindMob, target.KindDrop:
		w.registry.PauseAllExcept(worker.Skills)
		w.registry.Activate(worker.Loot)
		w.registry.Activate(worker.Escape)
	}
	return nil
}
