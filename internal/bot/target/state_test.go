package target_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/huntbot/internal/bot/target"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newState(clock *fakeClock) *target.State {
	return target.NewState(zap.NewNop(), target.WithClock(clock.Now))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "none", target.KindNone.String())
	assert.Equal(t, "mob", target.KindMob.String())
	assert.Equal(t, "drop", target.KindDrop.String())

	for _, k := range []target.Kind{target.KindNone, target.KindMob, target.KindDrop} {
		parsed, err := target.ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := target.ParseKind("boss")
	assert.Error(t, err)
}

func TestNewStateIsNone(t *testing.T) {
	snap := newState(newFakeClock()).Snapshot()
	assert.Equal(t, target.KindNone, snap.Kind)
	assert.Equal(t, target.KindNone, snap.PreviousKind)
	assert.Zero(t, snap.Elapsed)
	assert.False(t, snap.ExclusiveAction)
}

func TestSetMobSameNameKeepsTransitionTime(t *testing.T) {
	clock := newFakeClock()
	s := newState(clock)

	s.SetMob("Wolf", "Wolf", 0.9)
	clock.Advance(3 * time.Second)
	s.SetMob("Wo1f", "Wolf", 0.8)

	snap := s.Snapshot()
	assert.Equal(t, 3*time.Second, snap.Elapsed)
	assert.Equal(t, "Wo1f", snap.DetectedText, "detected text always refreshes")
	assert.InDelta(t, 0.8, snap.Confidence, 1e-9)
	assert.Equal(t, uint64(1), snap.Transitions)
}

func TestSetMobDifferentNameResetsTransitionTime(t *testing.T) {
	clock := newFakeClock()
	s := newState(clock)

	s.SetMob("Wolf", "Wolf", 0.9)
	clock.Advance(3 * time.Second)
	s.SetMob("Bear", "Bear", 0.9)

	snap := s.Snapshot()
	assert.Zero(t, snap.Elapsed)
	assert.Equal(t, target.KindMob, snap.PreviousKind)
	assert.Equal(t, "Bear", snap.MatchedName)
}

func TestSetNoneReportsMobDisappearance(t *testing.T) {
	s := newState(newFakeClock())

	assert.False(t, s.SetNone(), "none to none")

	s.SetMob("Wolf", "Wolf", 0.9)
	assert.True(t, s.SetNone())

	s.SetDrop("Gold", "Gold Coins", 0.75)
	assert.False(t, s.SetNone(), "drop to none is not a mob disappearance")

	snap := s.Snapshot()
	assert.Equal(t, target.KindNone, snap.Kind)
	assert.Equal(t, target.KindDrop, snap.PreviousKind)
	assert.Empty(t, snap.MatchedName)
	assert.Empty(t, snap.DetectedText)
	assert.Zero(t, snap.Confidence)
}

func TestSetNoneWhenAlreadyNoneKeepsClock(t *testing.T) {
	clock := newFakeClock()
	s := newState(clock)
	s.SetMob("Wolf", "Wolf", 0.9)
	s.SetNone()
	clock.Advance(time.Second)

	s.SetNone()

	snap := s.Snapshot()
	assert.Equal(t, time.Second, snap.Elapsed)
	assert.Equal(t, target.KindMob, snap.PreviousKind)
}

func TestEmptyMatchedNameBehavesAsNone(t *testing.T) {
	s := newState(newFakeClock())
	s.SetMob("Wolf", "Wolf", 0.9)

	s.SetMob("???", "", 0.4)

	snap := s.Snapshot()
	assert.Equal(t, target.KindNone, snap.Kind)
	assert.Equal(t, target.KindMob, snap.PreviousKind)
	assert.Empty(t, snap.DetectedText)
}

func TestConfidenceIsClamped(t *testing.T) {
	s := newState(newFakeClock())
	s.SetMob("Wolf", "Wolf", 1.7)
	assert.Equal(t, 1.0, s.Snapshot().Confidence)
	s.SetMob("Wolf", "Wolf", -0.2)
	assert.Equal(t, 0.0, s.Snapshot().Confidence)
}

func TestExclusiveActionFlag(t *testing.T) {
	s := newState(newFakeClock())
	s.MarkExclusiveActionStart()
	assert.True(t, s.Snapshot().ExclusiveAction)
	s.MarkExclusiveActionEnd()
	assert.False(t, s.Snapshot().ExclusiveAction)
}

func TestResetTransitionClock(t *testing.T) {
	clock := newFakeClock()
	s := newState(clock)
	s.SetMob("Ogre", "Ogre", 0.9)
	clock.Advance(30 * time.Second)

	s.ResetTransitionClock()

	snap := s.Snapshot()
	assert.Zero(t, snap.Elapsed)
	assert.Equal(t, target.KindMob, snap.Kind)
	assert.Equal(t, uint64(1), snap.Transitions, "clock reset is not a transition")
}

func TestConcurrentUpdatesNeverTear(t *testing.T) {
	s := target.NewState(zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				switch (i + j) % 3 {
				case 0:
					s.SetMob("Wolf", "Wolf", 0.9)
				case 1:
					s.SetDrop("Gold", "Gold Coins", 0.8)
				default:
					s.SetNone()
				}
			}
		}(i)
	}
	for j := 0; j < 500; j++ {
		snap := s.Snapshot()
		switch snap.Kind {
		case target.KindNone:
			require.Empty(t, snap.MatchedName)
		case target.KindMob:
			require.Equal(t, "Wolf", snap.MatchedName)
		case target.KindDrop:
			require.Equal(t, "Gold Coins", snap.MatchedName)
		}
	}
	wg.Wait()
}

// Property-based tests

func TestPropertyPreviousKindTracksTransitions(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clock := newFakeClock()
		s := newState(clock)
		names := []string{"Wolf", "Ogre", "Gold Coins"}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			before := s.Snapshot()
			op := rapid.IntRange(0, 2).Draw(t, "op")
			name := rapid.SampledFrom(names).Draw(t, "name")
			conf := rapid.Float64Range(0, 1).Draw(t, "confidence")
			clock.Advance(time.Duration(rapid.IntRange(0, 5000).Draw(t, "advance_ms")) * time.Millisecond)

			var died bool
			var wantKind target.Kind
			switch op {
			case 0:
				died = s.SetNone()
				wantKind = target.KindNone
				if died != (before.Kind == target.KindMob) {
					t.Fatalf("SetNone returned %v with prior kind %s", died, before.Kind)
				}
			case 1:
				s.SetMob(name, name, conf)
				wantKind = target.KindMob
			default:
				s.SetDrop(name, name, conf)
				wantKind = target.KindDrop
			}

			after := s.Snapshot()
			transition := before.Kind != after.Kind ||
				(after.Kind != target.KindNone && before.MatchedName != after.MatchedName)

			if after.Kind != wantKind {
				t.Fatalf("kind = %s, want %s", after.Kind, wantKind)
			}
			if transition {
				if after.PreviousKind != before.Kind {
					t.Fatalf("previousKind = %s, want %s", after.PreviousKind, before.Kind)
				}
				if after.Elapsed != 0 {
					t.Fatalf("elapsed not reset on transition: %s", after.Elapsed)
				}
				if after.Transitions != before.Transitions+1 {
					t.Fatalf("transitions = %d, want %d", after.Transitions, before.Transitions+1)
				}
			} else {
				if after.PreviousKind != before.PreviousKind {
					t.Fatalf("previousKind changed without a transition")
				}
				if after.Transitions != before.Transitions {
					t.Fatalf("transition counted without a transition")
				}
			}
			if after.Kind == target.KindNone && (after.MatchedName != "" || after.DetectedText != "" || after.Confidence != 0) {
				t.Fatalf("none state carries data: %+v", after)
			}
		}
	})
}
