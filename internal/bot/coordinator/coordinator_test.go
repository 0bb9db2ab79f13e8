package coordinator_test

import (
	"context"
	"image/color"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/huntbot/internal/bot/coordinator"
	"github.com/cory-johannsen/huntbot/internal/bot/target"
	"github.com/cory-johannsen/huntbot/internal/bot/worker"
	"github.com/cory-johannsen/huntbot/internal/config"
	"github.com/cory-johannsen/huntbot/internal/journal"
	"github.com/cory-johannsen/huntbot/internal/testutil"
	"github.com/cory-johannsen/huntbot/internal/vision"
)

type screen struct {
	text atomic.Value
}

func (s *screen) Show(text string) { s.text.Store(text) }

func (s *screen) Capture(context.Context) (string, error) {
	v, _ := s.text.Load().(string)
	return v, nil
}

func fastConfig() config.Config {
	cfg := config.Default()
	cfg.Detection.Mobs = []string{"Wolf"}
	cfg.Detection.Drops = []string{"Gold Coins"}
	cfg.Workers.StopTimeout = time.Second
	cfg.Workers.Intervals = config.IntervalsConfig{
		Detector: time.Millisecond,
		Heal:     5 * time.Millisecond,
		Skills:   5 * time.Millisecond,
		Observer: 5 * time.Millisecond,
		Loot:     2 * time.Millisecond,
		Escape:   2 * time.Millisecond,
	}
	cfg.Input.KeyHold = 0
	cfg.Loot.Interval = time.Millisecond
	cfg.Observer.ReselectDelay = 5 * time.Millisecond
	cfg.Skills.Between = 0
	cfg.Status.Interval = 5 * time.Millisecond
	cfg.Escape.Timeout = time.Hour
	return cfg
}

func fullBars(cfg config.Config) *vision.SolidPixels {
	px := vision.NewSolidPixels(color.RGBA{R: 128, G: 128, B: 128, A: 0xff})
	px.Set(cfg.Heal.Health.X, cfg.Heal.Health.Y, color.RGBA{R: 255, A: 0xff})
	px.Set(cfg.Heal.Mana.X, cfg.Heal.Mana.Y, color.RGBA{B: 255, A: 0xff})
	return px
}

func TestStartStop(t *testing.T) {
	cfg := fastConfig()
	c := coordinator.New(coordinator.Deps{
		Text:   &screen{},
		Pixels: fullBars(cfg),
		Input:  &testutil.RecordingInjector{},
	}, config.NewStatic(cfg), zap.NewNop())

	assert.False(t, c.Running())
	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Running())
	assert.ErrorIs(t, c.Start(context.Background()), coordinator.ErrAlreadyRunning)

	c.Stop()
	assert.False(t, c.Running())
	c.Stop()

	require.NoError(t, c.Start(context.Background()), "a stopped coordinator can be restarted")
	c.Stop()
}

func TestHuntLoop(t *testing.T) {
	cfg := fastConfig()
	scr := &screen{}
	in := &testutil.RecordingInjector{}
	c := coordinator.New(coordinator.Deps{Text: scr, Pixels: fullBars(cfg), Input: in}, config.NewStatic(cfg), zap.NewNop())
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool { return slices.Contains(in.Keys(), "E") }, 2*time.Second, 5*time.Millisecond,
		"the observer selects a target while none is shown")

	scr.Show("Wolf")
	require.Eventually(t, func() bool { return c.Snapshot().Kind == target.KindMob }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return slices.Contains(in.Keys(), "R") }, 2*time.Second, 5*time.Millisecond,
		"the skills worker attacks the mob")
	require.Eventually(t, func() bool { return !c.Status().Workers[worker.Observer] }, 2*time.Second, time.Millisecond,
		"the observer hands over to the combat workers")

	in.Reset()
	scr.Show("")
	require.Eventually(t, func() bool {
		n := 0
		for _, k := range in.Keys() {
			if k == cfg.Loot.Key {
				n++
			}
		}
		return n == cfg.Loot.Repetitions
	}, 2*time.Second, 5*time.Millisecond, "the kill is looted")

	require.Eventually(t, func() bool {
		st := c.Status()
		return !st.GateBusy && !st.Target.ExclusiveAction && st.Workers[worker.Observer]
	}, 2*time.Second, time.Millisecond, "every worker is reactivated after looting")
}

func TestStatusStream(t *testing.T) {
	cfg := fastConfig()
	sink := journal.NewRecorder(journal.NewLogSink(zap.NewNop()), uuid.New(), 4, zap.NewNop())
	defer sink.Close()
	c := coordinator.New(coordinator.Deps{
		Text:    &screen{},
		Pixels:  fullBars(cfg),
		Input:   &testutil.RecordingInjector{},
		Journal: sink,
	}, config.NewStatic(cfg), zap.NewNop())
	assert.Equal(t, sink.RunID(), c.RunID())

	ch := make(chan coordinator.Status, 1)
	c.Subscribe(ch)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	select {
	case st := <-ch:
		assert.Equal(t, sink.RunID(), st.RunID)
		assert.True(t, st.Running)
		assert.Len(t, st.Workers, len(worker.Names))
	case <-time.After(2 * time.Second):
		t.Fatal("no status published")
	}

	c.Unsubscribe(ch)
	time.Sleep(20 * time.Millisecond)
	for len(ch) > 0 {
		<-ch
	}
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, ch, "unsubscribed channels receive nothing")
}

func TestRunIDWithoutJournal(t *testing.T) {
	cfg := fastConfig()
	c := coordinator.New(coordinator.Deps{Text: &screen{}, Pixels: fullBars(cfg), Input: &testutil.RecordingInjector{}},
		config.NewStatic(cfg), zap.NewNop())
	assert.NotEqual(t, uuid.Nil, c.RunID())
	assert.Zero(t, c.Status().JournalDropped)
}

func TestStopIsBounded(t *testing.T) {
	cfg := fastConfig()
	cfg.Workers.StopTimeout = 50 * time.Millisecond
	release := make(chan struct{})
	var once sync.Once
	releaseInput := func() { once.Do(func() { close(release) }) }
	in := &testutil.RecordingInjector{OnEvent: func(testutil.InputEvent) { <-release }}
	t.Cleanup(releaseInput)

	core, logs := observer.New(zapcore.WarnLevel)
	c := coordinator.New(coordinator.Deps{Text: &screen{}, Pixels: fullBars(cfg), Input: in}, config.NewStatic(cfg), zap.New(core))
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(in.Events()) > 0 }, 2*time.Second, time.Millisecond)

	start := time.Now()
	c.Stop()
	assert.Less(t, time.Since(start), time.Second)

	entries := logs.FilterMessage("workers did not stop in time").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["workers"], worker.Observer)

	assert.ErrorIs(t, c.Start(context.Background()), coordinator.ErrStillStopping,
		"a second set of workers must not start while the first is still running")
	assert.False(t, c.Running())

	releaseInput()
	require.Eventually(t, func() bool { return c.Start(context.Background()) == nil }, 2*time.Second, 5*time.Millisecond)
	c.Stop()
}

func TestRestartReactivatesWorkers(t *testing.T) {
	cfg := fastConfig()
	scr := &screen{}
	in := &testutil.RecordingInjector{}
	c := coordinator.New(coordinator.Deps{Text: scr, Pixels: fullBars(cfg), Input: in}, config.NewStatic(cfg), zap.NewNop())
	require.NoError(t, c.Start(context.Background()))

	// A drop pauses the observer without arming loot or escape.
	scr.Show("Gold Coins")
	require.Eventually(t, func() bool { return !c.Status().Workers[worker.Observer] }, 2*time.Second, time.Millisecond)
	scr.Show("")
	require.Eventually(t, func() bool { return c.Snapshot().Kind == target.KindNone }, 2*time.Second, time.Millisecond)
	c.Stop()
	require.False(t, c.Status().Workers[worker.Observer])

	selects := func() int {
		n := 0
		for _, k := range in.Keys() {
			if k == cfg.Observer.SelectKey {
				n++
			}
		}
		return n
	}
	before := selects()

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	for _, n := range worker.Names {
		assert.True(t, c.Status().Workers[n], n)
	}
	require.Eventually(t, func() bool { return selects() > before }, 2*time.Second, time.Millisecond,
		"the observer selects targets again after a restart")
}

func TestStatusReportsPinnedWorkers(t *testing.T) {
	cfg := fastConfig()
	c := coordinator.New(coordinator.Deps{Text: &screen{}, Pixels: fullBars(cfg), Input: &testutil.RecordingInjector{}},
		config.NewStatic(cfg), zap.NewNop())
	assert.Equal(t, []string{worker.Detector, worker.Heal}, c.Status().Pinned)
}
