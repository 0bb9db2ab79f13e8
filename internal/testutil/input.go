package testutil

import (
	"fmt"
	"sync"
	"time"
)

// InputEvent is one recorded key press or click.
type InputEvent struct {
	Key  string
	Hold time.Duration
	X, Y int
	At   time.Time
}

// IsClick reports whether the event is a click.
func (e InputEvent) IsClick() bool {
	return e.Key == ""
}

// String renders the event as "key:F" or "click:(x, y)".
func (e InputEvent) String() string {
	if e.IsClick() {
		return fmt.Sprintf("click:(%d, %d)", e.X, e.Y)
	}
	return "key:" + e.Key
}

// RecordingInjector is an input.Injector that records every call.
type RecordingInjector struct {
	mu     sync.Mutex
	events []InputEvent
	// Fail, when set, is returned by every call after the call is recorded.
	Fail error
	// OnEvent, when set, is called with each event outside the lock.
	OnEvent func(InputEvent)
}

// PressKey records a key press.
func (r *RecordingInjector) PressKey(key string, hold time.Duration) error {
	return r.record(InputEvent{Key: key, Hold: hold, At: time.Now()})
}

// Click records a click.
func (r *RecordingInjector) Click(x, y int) error {
	return r.record(InputEvent{X: x, Y: y, At: time.Now()})
}

func (r *RecordingInjector) record(e InputEvent) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	fail := r.Fail
	hook := r.OnEvent
	r.mu.Unlock()
	if hook != nil {
		hook(e)
	}
	return fail
}

// Events returns a copy of the recorded events.
func (r *RecordingInjector) Events() []InputEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]InputEvent(nil), r.events...)
}

// Trace returns the recorded events rendered with String.
func (r *RecordingInjector) Trace() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.String()
	}
	return out
}

// Keys returns the keys pressed, in order.
func (r *RecordingInjector) Keys() []string {
	var keys []string
	for _, e := range r.Events() {
		if !e.IsClick() {
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// Reset discards the recorded events.
func (r *RecordingInjector) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
