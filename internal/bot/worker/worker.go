// Package worker provides the activation registry, the exclusive action gate
// and the polling loop shared by every bot worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// Worker names.
const (
	Detector = "detector"
	Heal     = "heal"
	Skills   = "skills"
	Observer = "observer"
	Loot     = "loot"
	Escape   = "escape"
)

// Names lists every worker the coordinator runs.
var Names = []string{Detector, Heal, Skills, Observer, Loot, Escape}

// Worker is one pollable unit of bot behaviour.
type Worker interface {
	// Name identifies the worker in the Registry.
	Name() string
	// Interval is the pause between ticks.
	Interval() time.Duration
	// Tick performs one poll. Errors are logged by Run and never stop the loop.
	Tick(ctx context.Context) error
}

// Run drives w until ctx is cancelled: tick when the registry allows it, then
// sleep for the worker's interval.
//
// Postcondition: Returns only after ctx is done. A failing or panicking tick
// is logged and the loop continues.
func Run(ctx context.Context, w Worker, reg *Registry, logger *zap.Logger) {
	logger = logger.With(zap.String("worker", w.Name()))
	logger.Debug("worker started")
	defer logger.Debug("worker stopped")

	for ctx.Err() == nil {
		if reg.IsActive(w.Name()) {
			if err := tick(ctx, w); err != nil {
				var pe *PanicError
				if errors.As(err, &pe) {
					logger.Error("tick panicked",
						zap.Any("panic", pe.Value),
						zap.ByteString("stack", pe.Stack),
					)
				} else {
					logger.Warn("tick failed", zap.Error(err))
				}
			}
		}
		if !Sleep(ctx, w.Interval()) {
			return
		}
	}
}

// PanicError carries a panic recovered from a tick.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in tick: %v", e.Value)
}

func tick(ctx context.Context, w Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return w.Tick(ctx)
}

// Sleep waits for d or until ctx is done.
//
// Postcondition: Returns false iff ctx was done before d elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
