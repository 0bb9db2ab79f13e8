package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/huntbot/internal/bot/worker"
)

func newRegistry() *worker.Registry {
	return worker.NewRegistry(zap.NewNop(), worker.Names, []string{worker.Detector, worker.Heal})
}

func TestRegistryStartsAllActive(t *testing.T) {
	r := newRegistry()
	for _, n := range worker.Names {
		assert.True(t, r.IsActive(n), n)
	}
	assert.Equal(t, []string{"detector", "escape", "heal", "loot", "observer", "skills"}, r.Names())
}

func TestRegistryUnknownNameIsActive(t *testing.T) {
	r := newRegistry()
	r.PauseAll()
	assert.True(t, r.IsActive("newcomer"))
}

func TestRegistryPauseAllExcept(t *testing.T) {
	r := newRegistry()
	r.PauseAllExcept(worker.Loot)

	assert.True(t, r.IsActive(worker.Loot))
	assert.True(t, r.IsActive(worker.Detector))
	assert.True(t, r.IsActive(worker.Heal))
	assert.False(t, r.IsActive(worker.Skills))
	assert.False(t, r.IsActive(worker.Observer))
	assert.False(t, r.IsActive(worker.Escape))
}

func TestRegistryPauseAllExceptLeavesPausedPinnedWorkers(t *testing.T) {
	r := newRegistry()
	r.PauseAll()
	r.PauseAllExcept(worker.Escape)

	assert.True(t, r.IsActive(worker.Escape))
	assert.False(t, r.IsActive(worker.Detector), "pinned workers keep their previous state")
}

func TestRegistryPauseAllIncludesPinned(t *testing.T) {
	r := newRegistry()
	r.PauseAll()
	for _, n := range worker.Names {
		assert.False(t, r.IsActive(n), n)
	}
	r.ReactivateAll()
	for _, n := range worker.Names {
		assert.True(t, r.IsActive(n), n)
	}
}

func TestRegistryActivate(t *testing.T) {
	r := newRegistry()
	r.PauseAllExcept(worker.Skills)
	r.Activate(worker.Loot)

	snap := r.Snapshot()
	assert.True(t, snap[worker.Loot])
	assert.True(t, snap[worker.Skills])
	assert.False(t, snap[worker.Escape])
	assert.True(t, r.Pinned(worker.Heal))
	assert.False(t, r.Pinned(worker.Loot))
}

func TestRegistryLogsTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := worker.NewRegistry(zap.New(core), worker.Names, []string{worker.Detector})

	r.PauseAllExcept(worker.Escape)
	r.ReactivateAll()

	entries := logs.FilterMessage("workers paused except one").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "escape", entries[0].ContextMap()["worker"])
	assert.Equal(t, 1, logs.FilterMessage("all workers reactivated").Len())
}

func TestPropertyPauseAllExcept(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,6}`), 1, 10, rapid.ID[string]).Draw(t, "names")
		pinnedCount := rapid.IntRange(0, len(names)).Draw(t, "pinned")
		pinned := names[:pinnedCount]
		r := worker.NewRegistry(zap.NewNop(), names, pinned)

		for i := rapid.IntRange(0, 5).Draw(t, "noise"); i > 0; i-- {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				r.PauseAll()
			case 1:
				r.ReactivateAll()
			default:
				r.Activate(rapid.SampledFrom(names).Draw(t, "activate"))
			}
		}
		before := r.Snapshot()
		chosen := rapid.SampledFrom(names).Draw(t, "chosen")
		r.PauseAllExcept(chosen)

		if !r.IsActive(chosen) {
			t.Fatalf("%s must be active", chosen)
		}
		for _, n := range names {
			if n == chosen {
				continue
			}
			if r.Pinned(n) {
				if r.IsActive(n) != before[n] {
					t.Fatalf("pinned %s changed", n)
				}
			} else if r.IsActive(n) {
				t.Fatalf("non-pinned %s still active", n)
			}
		}
	})
}

func TestRegistryPauseAllExceptIsAtomic(t *testing.T) {
	r := newRegistry()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.PauseAllExcept(worker.Loot)
				r.ReactivateAll()
			}
		}
	}()
	for i := 0; i < 1000; i++ {
		snap := r.Snapshot()
		if !snap[worker.Loot] {
			close(stop)
			wg.Wait()
			t.Fatalf("observed loot paused: %v", snap)
		}
		if snap[worker.Escape] != snap[worker.Skills] || snap[worker.Escape] != snap[worker.Observer] {
			close(stop)
			wg.Wait()
			t.Fatalf("observed a half-applied pause: %v", snap)
		}
	}
	close(stop)
	wg.Wait()
}

func TestGateSingleWinner(t *testing.T) {
	var g worker.Gate
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.TryAcquire() {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, g.Busy())
	assert.False(t, g.TryAcquire(), "loser cannot acquire while held")

	g.Release()
	assert.True(t, g.TryAcquire(), "loser can retry after release")
}

func TestPropertyGateManyCallers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 32).Draw(t, "callers")
		var g worker.Gate
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if g.TryAcquire() {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Fatalf("wins = %d, want 1", wins.Load())
		}
	})
}

type funcWorker struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context) error
}

func (f *funcWorker) Name() string                   { return f.name }
func (f *funcWorker) Interval() time.Duration        { return f.interval }
func (f *funcWorker) Tick(ctx context.Context) error { return f.tick(ctx) }

func TestRunTicksWhileActive(t *testing.T) {
	var count atomic.Int64
	w := &funcWorker{name: worker.Skills, interval: 5 * time.Millisecond, tick: func(context.Context) error {
		count.Add(1)
		return nil
	}}
	r := newRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx, w, r, zap.NewNop())
		close(done)
	}()

	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, 5*time.Millisecond)

	r.PauseAllExcept(worker.Loot)
	time.Sleep(20 * time.Millisecond)
	paused := count.Load()
	time.Sleep(40 * time.Millisecond)
	assert.LessOrEqual(t, count.Load(), paused+1, "paused worker must not keep ticking")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunSurvivesErrorsAndPanics(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var count atomic.Int64
	w := &funcWorker{name: worker.Observer, interval: time.Millisecond, tick: func(context.Context) error {
		switch count.Add(1) {
		case 1:
			return errors.New("capture failed")
		case 2:
			panic("input driver exploded")
		}
		return nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx, w, newRegistry(), zap.New(core))

	require.Eventually(t, func() bool { return count.Load() >= 4 }, time.Second, time.Millisecond)
	cancel()

	assert.Equal(t, 1, logs.FilterMessage("tick failed").Len())
	panics := logs.FilterMessage("tick panicked").All()
	require.Len(t, panics, 1)
	assert.Equal(t, zapcore.ErrorLevel, panics[0].Level)
	assert.Equal(t, "observer", panics[0].ContextMap()["worker"])
}

func TestSleep(t *testing.T) {
	assert.True(t, worker.Sleep(context.Background(), time.Millisecond))
	assert.True(t, worker.Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.False(t, worker.Sleep(ctx, time.Hour))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, worker.Sleep(ctx, 0))
}
