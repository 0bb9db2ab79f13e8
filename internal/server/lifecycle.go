// Package server runs the bot process's long-lived services and stops them
// on a shutdown signal or the first service failure.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const defaultStopTimeout = 5 * time.Second

// Service is a long-running part of the process.
type Service interface {
	// Start runs the service and blocks until it is stopped or fails.
	Start() error
	// Stop asks a running Start to return.
	Stop()
}

// FuncService adapts a blocking start function and a stop function.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

// Start calls StartFn.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls StopFn.
func (f *FuncService) Stop() { f.StopFn() }

// Background adapts a component whose start returns immediately, such as the
// coordinator, into a Service whose Start blocks until Stop.
//
// Invariant: start never runs after Stop, and stop runs only after a
// successful start.
type Background struct {
	start func() error
	stop  func()

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
}

// NewBackground returns a Background around start and stop.
//
// Precondition: start and stop must be non-nil.
func NewBackground(start func() error, stop func()) *Background {
	return &Background{start: start, stop: stop, done: make(chan struct{})}
}

// Start calls start and blocks until Stop. Start after Stop returns nil
// without calling start.
func (b *Background) Start() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	if err := b.start(); err != nil {
		b.mu.Unlock()
		return err
	}
	b.started = true
	b.mu.Unlock()
	<-b.done
	return nil
}

// Stop calls stop if start succeeded and releases Start. Stop is idempotent.
func (b *Background) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	if b.started {
		b.stop()
	}
	close(b.done)
}

// Lifecycle starts named services together and stops them in reverse
// registration order.
type Lifecycle struct {
	logger      *zap.Logger
	signals     []os.Signal
	stopTimeout time.Duration

	mu       sync.Mutex
	services []namedService
}

type namedService struct {
	name    string
	service Service
}

// Option customises a Lifecycle.
type Option func(*Lifecycle)

// WithSignals replaces the shutdown signals. No signals means only context
// cancellation or a service failure ends Run.
func WithSignals(sigs ...os.Signal) Option {
	return func(l *Lifecycle) { l.signals = sigs }
}

// WithStopTimeout bounds how long Run waits for Start calls to return after
// every service has been stopped.
func WithStopTimeout(d time.Duration) Option {
	return func(l *Lifecycle) { l.stopTimeout = d }
}

// NewLifecycle returns a Lifecycle that shuts down on SIGINT or SIGTERM.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		logger:      logger,
		signals:     []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		stopTimeout: defaultStopTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add registers svc under name.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts every service and blocks until a shutdown signal, ctx
// cancellation or the first service failure. It then stops the services in
// reverse order.
//
// Postcondition: Returns the failure that ended the run, or nil on a signal
// or cancellation. Every service has been stopped.
func (l *Lifecycle) Run(ctx context.Context) error {
	l.mu.Lock()
	services := slices.Clone(l.services)
	l.mu.Unlock()

	start := time.Now()
	if len(l.signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, l.signals...)
		defer stop()
	}

	errCh := make(chan error, len(services))
	var wg sync.WaitGroup
	for _, ns := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.logger.Info("starting service", zap.String("service", ns.name))
			if err := ns.service.Start(); err != nil {
				errCh <- fmt.Errorf("service %s: %w", ns.name, err)
			}
		}()
	}

	var runErr error
	select {
	case runErr = <-errCh:
		l.logger.Error("service failed, shutting down", zap.Error(runErr))
	case <-ctx.Done():
		l.logger.Info("shutting down", zap.Duration("uptime", time.Since(start)))
	}

	l.stopAll(services)
	l.await(&wg)

	l.logger.Info("shutdown complete", zap.Duration("total_uptime", time.Since(start)))
	return runErr
}

func (l *Lifecycle) stopAll(services []namedService) {
	for _, ns := range slices.Backward(services) {
		begin := time.Now()
		ns.service.Stop()
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(begin)),
		)
	}
}

func (l *Lifecycle) await(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(l.stopTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		l.logger.Warn("services did not return after stop", zap.Duration("timeout", l.stopTimeout))
	}
}
