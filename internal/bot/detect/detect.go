// Package detect runs the pinned detection worker that keeps the target state
// in step with the screen.
package detect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/bot/classify"
	"github.com/cory-johannsen/huntbot/internal/bot/target"
	"github.com/cory-johannsen/huntbot/internal/bot/worker"
	"github.com/cory-johannsen/huntbot/internal/config"
	"github.com/cory-johannsen/huntbot/internal/vision"
)

// Worker captures target text, classifies it and updates the State.
type Worker struct {
	state  *target.State
	source vision.TextSource
	cfg    config.Source
	logger *zap.Logger

	mu         sync.Mutex
	builtFrom  *config.Config
	classifier classify.Classifier
}

// NewWorker returns the detection worker.
//
// Precondition: all arguments must be non-nil.
func NewWorker(state *target.State, source vision.TextSource, cfg config.Source, logger *zap.Logger) *Worker {
	return &Worker{state: state, source: source, cfg: cfg, logger: logger}
}

// Name returns worker.Detector.
func (w *Worker) Name() string { return worker.Detector }

// Interval returns the configured detection interval.
func (w *Worker) Interval() time.Duration {
	return w.cfg.Current().Workers.Intervals.Detector
}

// Tick performs one capture and classification.
//
// Postcondition: On a nil return the State reflects the captured text.
func (w *Worker) Tick(ctx context.Context) error {
	text, err := w.source.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capturing target text: %w", err)
	}
	c := w.Classifier().Classify(text)
	switch c.Kind {
	case target.KindMob:
		w.state.SetMob(c.DetectedName, c.MatchedName, c.Confidence)
	case target.KindDrop:
		w.state.SetDrop(c.DetectedName, c.MatchedName, c.Confidence)
	default:
		w.state.SetNone()
	}
	return nil
}

// Classifier returns the classifier for the current configuration, rebuilding
// it when the configuration has been swapped since the last call.
func (w *Worker) Classifier() classify.Classifier {
	cfg := w.cfg.Current()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.classifier != nil && w.builtFrom == cfg {
		return w.classifier
	}
	w.classifier = w.build(cfg.Detection)
	w.builtFrom = cfg
	return w.classifier
}

func (w *Worker) build(dc config.DetectionConfig) *classify.Matcher {
	mobs, drops := dc.Mobs, dc.Drops
	if dc.TargetsDir != "" {
		lists, err := classify.LoadTargetLists(dc.TargetsDir)
		if err != nil {
			w.logger.Warn("ignoring target list directory", zap.String("dir", dc.TargetsDir), zap.Error(err))
		} else {
			mobs = classify.Merge(mobs, lists.Mobs)
			drops = classify.Merge(drops, lists.Drops)
		}
	}
	if len(mobs) == 0 && len(drops) == 0 {
		w.logger.Warn("no target names configured, every capture classifies as none")
	}
	w.logger.Info("classifier built",
		zap.Int("mobs", len(mobs)),
		zap.Int("drops", len(drops)),
		zap.Float64("threshold", dc.Threshold),
	)
	return classify.NewMatcher(dc.Threshold, mobs, drops)
}
