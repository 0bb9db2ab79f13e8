// Package skills runs the attack worker: the attack key and a cooldown-gated
// skill rotation while a target is selected.
package skills

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/bot/target"
	"github.com/cory-johannsen/huntbot/internal/bot/worker"
	"github.com/cory-johannsen/huntbot/internal/config"
	"github.com/cory-johannsen/huntbot/internal/input"
)

// Option configures a Worker.
type Option func(*Worker)

// WithClock replaces time.Now as the cooldown clock.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// Worker presses the attack key and ready skills.
//
// Invariant: an enabled skill is pressed at most once per cooldown.
type Worker struct {
	state  *target.State
	input  input.Injector
	cfg    config.Source
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	lastUse map[string]time.Time
}

// NewWorker returns the skills worker.
//
// Precondition: state, in, cfg and logger must be non-nil.
func NewWorker(state *target.State, in input.Injector, cfg config.Source, logger *zap.Logger, opts ...Option) *Worker {
	w := &Worker{
		state:   state,
		input:   in,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		lastUse: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns worker.Skills.
func (w *Worker) Name() string { return worker.Skills }

// Interval returns the configured skills poll interval.
func (w *Worker) Interval() time.Duration {
	return w.cfg.Current().Workers.Intervals.Skills
}

// Tick presses the attack key on a mob and every enabled skill whose cooldown
// has elapsed, while the target is a named mob or drop.
func (w *Worker) Tick(ctx context.Context) error {
	snap := w.state.Snapshot()
	if snap.MatchedName == "" || (snap.Kind != target.KindMob && snap.Kind != target.KindDrop) {
		return nil
	}
	cfg := w.cfg.Current()
	hold := cfg.Input.KeyHold

	var errs []error
	if snap.Kind == target.KindMob && cfg.Skills.AttackKey != "" {
		if err := w.input.PressKey(cfg.Skills.AttackKey, hold); err != nil {
			errs = append(errs, fmt.Errorf("attack key %q: %w", cfg.Skills.AttackKey, err))
		}
	}
	for _, sk := range cfg.Skills.Rotation {
		if !sk.Enabled || !w.ready(sk) {
			continue
		}
		if err := w.input.PressKey(sk.Key, hold); err != nil {
			errs = append(errs, fmt.Errorf("skill %q: %w", sk.Key, err))
			continue
		}
		w.used(sk.Key)
		w.logger.Debug("skill used", zap.String("key", sk.Key), zap.String("target", snap.MatchedName))
		if !worker.Sleep(ctx, cfg.Skills.Between) {
			break
		}
	}
	return errors.Join(errs...)
}

func (w *Worker) ready(sk config.Skill) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.lastUse[sk.Key]
	return !ok || w.now().Sub(last) >= sk.Cooldown
}

func (w *Worker) used(key string) {
	w.mu.Lock()
	w.lastUse[key] = w.now()
	w.mu.Unlock()
}
