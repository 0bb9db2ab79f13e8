// Package target holds the shared classification of the currently selected
// in-game entity.
package target

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind classifies the selected entity.
type Kind int

const (
	// KindNone means nothing recognisable is selected.
	KindNone Kind = iota
	// KindMob means a configured monster is selected.
	KindMob
	// KindDrop means a configured ground item is selected.
	KindDrop
)

// String returns "none", "mob" or "drop".
func (k Kind) String() string {
	switch k {
	case KindMob:
		return "mob"
	case KindDrop:
		return "drop"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "none":
		return KindNone, nil
	case "mob":
		return KindMob, nil
	case "drop":
		return KindDrop, nil
	}
	return KindNone, fmt.Errorf("unknown target kind %q", s)
}

// Snapshot is a consistent point-in-time view of a State.
type Snapshot struct {
	Kind            Kind          `json:"kind"`
	PreviousKind    Kind          `json:"previous_kind"`
	DetectedText    string        `json:"detected_text"`
	MatchedName     string        `json:"matched_name"`
	Confidence      float64       `json:"confidence"`
	Elapsed         time.Duration `json:"elapsed"`
	ExclusiveAction bool          `json:"exclusive_action"`
	// Transitions counts the semantically meaningful changes seen so far. Two
	// snapshots with the same value observed the same transition.
	Transitions uint64 `json:"transitions"`
}

// Option configures a State.
type Option func(*State)

// WithClock replaces time.Now as the State's time source.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// State is the single shared record of the current target classification.
//
// Invariant: previousKind and lastTransitionAt change only when kind changes,
// or when matchedName changes while kind is MOB or DROP.
// Invariant: kind == KindNone implies matchedName == "", detectedText == "" and confidence == 0.
type State struct {
	logger *zap.Logger
	now    func() time.Time

	mu               sync.Mutex
	kind             Kind
	previousKind     Kind
	detectedText     string
	matchedName      string
	confidence       float64
	lastTransitionAt time.Time
	exclusive        bool
	transitions      uint64
}

// NewState returns a State classified as KindNone.
//
// Precondition: logger must be non-nil.
func NewState(logger *zap.Logger, opts ...Option) *State {
	s := &State{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.lastTransitionAt = s.now()
	return s
}

// SetNone clears the classification.
//
// Postcondition: Returns true iff the kind immediately before the call was KindMob.
func (s *State) SetNone() bool {
	s.mu.Lock()
	prev := s.kind
	if prev == KindNone {
		s.mu.Unlock()
		return false
	}
	s.previousKind = prev
	s.kind = KindNone
	s.detectedText = ""
	s.matchedName = ""
	s.confidence = 0
	s.lastTransitionAt = s.now()
	s.transitions++
	s.mu.Unlock()

	s.logger.Debug("target cleared", zap.Stringer("previous", prev))
	return prev == KindMob
}

// SetMob records that the named monster is selected. An empty matched name is
// treated as no match.
func (s *State) SetMob(detected, matched string, confidence float64) {
	s.set(KindMob, detected, matched, confidence)
}

// SetDrop records that the named ground item is selected. An empty matched name
// is treated as no match.
func (s *State) SetDrop(detected, matched string, confidence float64) {
	s.set(KindDrop, detected, matched, confidence)
}

func (s *State) set(kind Kind, detected, matched string, confidence float64) {
	if matched == "" {
		s.SetNone()
		return
	}
	confidence = clamp(confidence)

	s.mu.Lock()
	prev := s.kind
	prevName := s.matchedName
	transition := prev != kind || prevName != matched
	if transition {
		s.previousKind = prev
		s.kind = kind
		s.matchedName = matched
		s.lastTransitionAt = s.now()
		s.transitions++
	}
	s.detectedText = detected
	s.confidence = confidence
	s.mu.Unlock()

	if transition {
		s.logger.Debug("target changed",
			zap.Stringer("from", prev),
			zap.Stringer("to", kind),
			zap.String("previous_name", prevName),
			zap.String("name", matched),
			zap.Float64("confidence", confidence),
		)
	}
}

// Snapshot returns a consistent view of the state.
//
// Postcondition: Elapsed is measured from the last transition to the time of the call.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Kind:            s.kind,
		PreviousKind:    s.previousKind,
		DetectedText:    s.detectedText,
		MatchedName:     s.matchedName,
		Confidence:      s.confidence,
		ExclusiveAction: s.exclusive,
		Transitions:     s.transitions,
	}
	since := s.lastTransitionAt
	s.mu.Unlock()

	snap.Elapsed = s.now().Sub(since)
	if snap.Elapsed < 0 {
		snap.Elapsed = 0
	}
	return snap
}

// MarkExclusiveActionStart flags that a loot or escape sequence is running.
func (s *State) MarkExclusiveActionStart() {
	s.mu.Lock()
	s.exclusive = true
	s.mu.Unlock()
}

// MarkExclusiveActionEnd clears the exclusive action flag.
func (s *State) MarkExclusiveActionEnd() {
	s.mu.Lock()
	s.exclusive = false
	s.mu.Unlock()
}

// ResetTransitionClock restarts the elapsed-time counter without changing the kind.
func (s *State) ResetTransitionClock() {
	s.mu.Lock()
	s.lastTransitionAt = s.now()
	s.mu.Unlock()

	s.logger.Debug("transition clock reset")
}

func clamp(c float64) float64 {
	if c < 0 || c != c {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
