// Package escape detects a mob the character cannot reach or kill and clicks
// the character away from it.
package escape

import (
	"math"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/huntbot/internal/bot/target"
	"github.com/cory-johannsen/huntbot/internal/config"
)

// Timeouts yields the MOB dwell time after which a mob counts as stuck.
type Timeouts interface {
	For(name string) time.Duration
}

// Table is a default timeout with per-name overrides. Names match case-insensitively.
type Table struct {
	Default   time.Duration
	overrides map[string]time.Duration
}

// NewTable returns a Table over a copy of overrides.
func NewTable(def time.Duration, overrides map[string]time.Duration) Table {
	t := Table{Default: def, overrides: make(map[string]time.Duration, len(overrides))}
	for name, d := range overrides {
		t.overrides[strings.ToLower(name)] = d
	}
	return t
}

// For returns the override for name, or Default.
func (t Table) For(name string) time.Duration {
	if d, ok := t.overrides[strings.ToLower(name)]; ok {
		return d
	}
	return t.Default
}

// Scripter calls numeric script hooks.
type Scripter interface {
	CallNumber(hook string, args ...lua.LValue) (float64, bool)
}

// TimeoutHook is the script function consulted by HookTimeouts. It receives the
// mob name and the configured timeout in seconds and returns seconds.
const TimeoutHook = "escape_timeout"

// HookTimeouts asks a script for each mob's timeout and falls back to Next
// when the hook is missing, fails or returns a non-positive value.
type HookTimeouts struct {
	Hook Scripter
	Next Timeouts
}

// For returns the script's timeout for name, or Next's.
func (h HookTimeouts) For(name string) time.Duration {
	def := h.Next.For(name)
	secs, ok := h.Hook.CallNumber(TimeoutHook, lua.LString(name), lua.LNumber(def.Seconds()))
	if !ok || secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

// Tracker decides when the current mob is stuck and which escape point to use.
//
// Invariant: Poll returns true at most once per mob identity until Clear.
// Invariant: the escape point index only moves forward, across all mobs.
type Tracker struct {
	mu        sync.Mutex
	lastFired string
	next      uint64
}

// Poll reports whether an escape should start for snap.
//
// A non-MOB snapshot clears the remembered mob only when it carries a
// different name, so a blank read between two sightings of the same mob does
// not re-arm the tracker.
func (t *Tracker) Poll(snap target.Snapshot, timeouts Timeouts) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if snap.Kind != target.KindMob {
		if snap.MatchedName != "" && snap.MatchedName != t.lastFired {
			t.lastFired = ""
		}
		return false
	}
	if t.lastFired == snap.MatchedName {
		return false
	}
	t.lastFired = ""
	if snap.Elapsed >= timeouts.For(snap.MatchedName) {
		t.lastFired = snap.MatchedName
		return true
	}
	return false
}

// Point returns the current escape point.
//
// Postcondition: ok is false iff points is empty.
func (t *Tracker) Point(points []config.Point) (config.Point, bool) {
	if len(points) == 0 {
		return config.Point{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return points[t.next%uint64(len(points))], true
}

// Advance moves to the next escape point.
func (t *Tracker) Advance() {
	t.mu.Lock()
	t.next++
	t.mu.Unlock()
}

// Clear forgets the mob the last escape fired for.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.lastFired = ""
	t.mu.Unlock()
}

// LastFired returns the mob the tracker last fired for, or "".
func (t *Tracker) LastFired() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastFired
}
