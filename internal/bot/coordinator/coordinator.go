// Package coordinator wires the shared target state, the worker registry and
// the exclusive action gate to the closed set of bot workers and owns their
// lifecycle.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/bot/detect"
	"github.com/cory-johannsen/huntbot/internal/bot/escape"
	"github.com/cory-johannsen/huntbot/internal/bot/heal"
	"github.com/cory-johannsen/huntbot/internal/bot/loot"
	"github.com/cory-johannsen/huntbot/internal/bot/observer"
	"github.com/cory-johannsen/huntbot/internal/bot/skills"
	"github.com/cory-johannsen/huntbot/internal/bot/target"
	"github.com/cory-johannsen/huntbot/internal/bot/worker"
	"github.com/cory-johannsen/huntbot/internal/config"
	"github.com/cory-johannsen/huntbot/internal/input"
	"github.com/cory-johannsen/huntbot/internal/journal"
	"github.com/cory-johannsen/huntbot/internal/vision"
)

// ErrAlreadyRunning is returned by Start on a running Coordinator.
var ErrAlreadyRunning = errors.New("coordinator already running")

// ErrStillStopping is returned by Start while workers abandoned by a timed-out
// Stop have not exited yet.
var ErrStillStopping = errors.New("coordinator workers from the previous run are still stopping")

// Deps are the external collaborators the workers drive.
type Deps struct {
	// Text is the target name capture used by the detector.
	Text vision.TextSource
	// Pixels samples the health and mana bars.
	Pixels vision.PixelReader
	// Input delivers key presses and clicks to the game window.
	Input input.Injector
	// Hook supplies scripted escape timeouts. Nil disables scripting.
	Hook escape.Scripter
	// Journal records loot and escape sequences. Nil disables the journal.
	Journal *journal.Recorder
}

// Status is a point-in-time report of the whole bot.
type Status struct {
	RunID          uuid.UUID       `json:"run_id"`
	Running        bool            `json:"running"`
	Target         target.Snapshot `json:"target"`
	Workers        map[string]bool `json:"workers"`
	Pinned         []string        `json:"pinned"`
	GateBusy       bool            `json:"gate_busy"`
	JournalDropped int64           `json:"journal_dropped"`
	At             time.Time       `json:"at"`
}

// Coordinator owns one State, one Registry, one Gate and the six workers.
//
// Invariant: at most one set of worker goroutines runs at a time. Start
// refuses to launch a new set until every worker abandoned by Stop has exited.
type Coordinator struct {
	cfg      config.Source
	logger   *zap.Logger
	state    *target.State
	registry *worker.Registry
	gate     *worker.Gate
	workers  []worker.Worker
	journal  *journal.Recorder
	runID    uuid.UUID

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    map[string]chan struct{}
	// lingering holds the done channels of workers a timed-out Stop abandoned.
	lingering []chan struct{}

	subMu       sync.Mutex
	subscribers map[chan<- Status]struct{}
}

// New builds a Coordinator and its workers. Nothing runs until Start.
//
// Precondition: deps.Text, deps.Pixels, deps.Input, cfg and logger must be non-nil.
func New(deps Deps, cfg config.Source, logger *zap.Logger) *Coordinator {
	c := &Coordinator{
		cfg:         cfg,
		logger:      logger,
		state:       target.NewState(logger.Named("target")),
		registry:    worker.NewRegistry(logger.Named("registry"), worker.Names, cfg.Current().Workers.Pinned),
		gate:        &worker.Gate{},
		journal:     deps.Journal,
		runID:       deps.Journal.RunID(),
		subscribers: make(map[chan<- Status]struct{}),
	}
	if c.runID == uuid.Nil {
		c.runID = uuid.New()
	}
	c.workers = []worker.Worker{
		detect.NewWorker(c.state, deps.Text, cfg, logger.Named(worker.Detector)),
		heal.NewWorker(c.state, deps.Pixels, deps.Input, cfg, logger.Named(worker.Heal)),
		skills.NewWorker(c.state, deps.Input, cfg, logger.Named(worker.Skills)),
		observer.NewWorker(c.state, c.registry, deps.Input, cfg, logger.Named(worker.Observer)),
		loot.NewWorker(c.state, c.registry, c.gate, deps.Input, cfg, deps.Journal, logger.Named(worker.Loot)),
		escape.NewWorker(c.state, c.registry, c.gate, deps.Input, cfg, deps.Hook, deps.Journal, logger.Named(worker.Escape)),
	}
	return c
}

// RunID identifies this Coordinator's run in the journal.
func (c *Coordinator) RunID() uuid.UUID { return c.runID }

// Running reports whether the workers have been started and not stopped.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start reactivates every worker, launches the workers and the status monitor
// and returns immediately.
//
// Postcondition: Returns ErrAlreadyRunning when the Coordinator is already
// running and ErrStillStopping while workers from the previous run linger.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}
	for _, ch := range c.lingering {
		select {
		case <-ch:
		default:
			return ErrStillStopping
		}
	}
	c.lingering = nil
	c.registry.ReactivateAll()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(map[string]chan struct{}, len(c.workers)+1)
	for _, w := range c.workers {
		done := make(chan struct{})
		c.done[w.Name()] = done
		go func() {
			defer close(done)
			worker.Run(ctx, w, c.registry, c.logger.Named(w.Name()))
		}()
	}
	monitorDone := make(chan struct{})
	c.done["monitor"] = monitorDone
	go func() {
		defer close(monitorDone)
		c.monitor(ctx)
	}()
	c.running = true

	c.logger.Info("coordinator started",
		zap.String("run_id", c.runID.String()),
		zap.Int("workers", len(c.workers)),
	)
	return nil
}

// Stop cancels every worker and waits up to workers.stop_timeout in total for
// them to exit. Workers still running after the deadline are logged and
// abandoned. Stop on a stopped Coordinator is a no-op.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	start := time.Now()
	cancel()
	deadline := time.NewTimer(c.cfg.Current().Workers.StopTimeout)
	defer deadline.Stop()

	var stuck []string
	var lingering []chan struct{}
	timedOut := false
	for _, name := range append(append([]string(nil), worker.Names...), "monitor") {
		ch, ok := done[name]
		if !ok {
			continue
		}
		if timedOut {
			select {
			case <-ch:
			default:
				stuck = append(stuck, name)
				lingering = append(lingering, ch)
			}
			continue
		}
		select {
		case <-ch:
		case <-deadline.C:
			timedOut = true
			stuck = append(stuck, name)
			lingering = append(lingering, ch)
		}
	}
	if len(stuck) > 0 {
		c.mu.Lock()
		c.lingering = lingering
		c.mu.Unlock()
		c.logger.Warn("workers did not stop in time", zap.Strings("workers", stuck))
	}
	c.logger.Info("coordinator stopped", zap.Duration("elapsed", time.Since(start)))
}

// Snapshot returns the current target snapshot.
func (c *Coordinator) Snapshot() target.Snapshot {
	return c.state.Snapshot()
}

// Status reports the whole bot.
func (c *Coordinator) Status() Status {
	return Status{
		RunID:          c.runID,
		Running:        c.Running(),
		Target:         c.state.Snapshot(),
		Workers:        c.registry.Snapshot(),
		Pinned:         c.pinned(),
		GateBusy:       c.gate.Busy(),
		JournalDropped: c.journal.Dropped(),
		At:             time.Now(),
	}
}

func (c *Coordinator) pinned() []string {
	var out []string
	for _, name := range c.registry.Names() {
		if c.registry.Pinned(name) {
			out = append(out, name)
		}
	}
	return out
}

// Subscribe registers ch to receive a Status on every monitor tick.
// If ch is full, the report is dropped for that subscriber (non-blocking).
//
// Precondition: ch must not be nil.
func (c *Coordinator) Subscribe(ch chan<- Status) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subscribers[ch] = struct{}{}
}

// Unsubscribe removes ch from the subscriber list.
func (c *Coordinator) Unsubscribe(ch chan<- Status) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.subscribers, ch)
}
