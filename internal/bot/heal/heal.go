// Package heal runs the pinned self-heal worker that watches the health and
// mana bars and presses recovery keys when they run dry.
package heal

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/bot/target"
	"github.com/cory-johannsen/huntbot/internal/bot/worker"
	"github.com/cory-johannsen/huntbot/internal/config"
	"github.com/cory-johannsen/huntbot/internal/input"
	"github.com/cory-johannsen/huntbot/internal/vision"
)

// Bar names a probed resource bar.
type Bar string

const (
	// Health is the health bar.
	Health Bar = "health"
	// Mana is the mana bar.
	Mana Bar = "mana"
)

// Option configures a Worker.
type Option func(*Worker)

// WithClock replaces time.Now as the Worker's schedule clock.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// Worker samples each bar on its own schedule.
//
// Invariant: a bar is sampled no earlier than its due time, which is
// interval_ok after a present reading and interval_low after a press.
type Worker struct {
	state  *target.State
	pixels vision.PixelReader
	input  input.Injector
	cfg    config.Source
	logger *zap.Logger
	now    func() time.Time

	mu  sync.Mutex
	due map[Bar]time.Time
}

// NewWorker returns the heal worker.
//
// Precondition: state, pixels, in, cfg and logger must be non-nil.
func NewWorker(state *target.State, pixels vision.PixelReader, in input.Injector, cfg config.Source, logger *zap.Logger, opts ...Option) *Worker {
	w := &Worker{
		state:  state,
		pixels: pixels,
		input:  in,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		due:    make(map[Bar]time.Time, 2),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns worker.Heal.
func (w *Worker) Name() string { return worker.Heal }

// Interval returns the configured heal poll interval.
func (w *Worker) Interval() time.Duration {
	return w.cfg.Current().Workers.Intervals.Heal
}

// Tick checks every bar whose schedule is due.
func (w *Worker) Tick(ctx context.Context) error {
	cfg := w.cfg.Current()
	hold := cfg.Input.KeyHold
	return errors.Join(
		w.check(Health, cfg.Heal.Health, IsHealth, hold),
		w.check(Mana, cfg.Heal.Mana, IsMana, hold),
	)
}

func (w *Worker) check(bar Bar, bc config.BarConfig, present func(color.RGBA) bool, hold time.Duration) error {
	now := w.now()
	w.mu.Lock()
	due := w.due[bar]
	w.mu.Unlock()
	if now.Before(due) {
		return nil
	}

	c, err := w.pixels.Pixel(bc.X, bc.Y)
	if err != nil {
		w.schedule(bar, now.Add(bc.IntervalLow))
		return fmt.Errorf("sampling %s bar: %w", bar, err)
	}
	if present(c) {
		w.schedule(bar, now.Add(bc.IntervalOK))
		return nil
	}

	keys := bc.Keys
	if w.state.Snapshot().Kind == target.KindMob {
		keys = append(append([]string(nil), keys...), bc.CombatKeys...)
	}
	w.logger.Info("bar empty, pressing recovery keys",
		zap.String("bar", string(bar)),
		zap.Uint8("r", c.R), zap.Uint8("g", c.G), zap.Uint8("b", c.B),
		zap.Strings("keys", keys),
	)
	var errs []error
	for _, k := range keys {
		if err := w.input.PressKey(k, hold); err != nil {
			errs = append(errs, fmt.Errorf("%s key %q: %w", bar, k, err))
		}
	}
	w.schedule(bar, now.Add(bc.IntervalLow))
	return errors.Join(errs...)
}

func (w *Worker) schedule(bar Bar, at time.Time) {
	w.mu.Lock()
	w.due[bar] = at
	w.mu.Unlock()
}
