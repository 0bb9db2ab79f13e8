// Package vision defines the screen-reading boundary: target text capture and
// pixel sampling.
package vision

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"
	"sync"
	"time"
)

// TextSource captures the target name text currently shown on screen.
type TextSource interface {
	// Capture returns the raw detected text, or "" when nothing is shown.
	Capture(ctx context.Context) (string, error)
}

// TextFunc adapts a function to a TextSource.
type TextFunc func(ctx context.Context) (string, error)

// Capture calls f.
func (f TextFunc) Capture(ctx context.Context) (string, error) {
	return f(ctx)
}

// ReplaySource replays recorded target text. Each line is shown for hold,
// and the recording loops. A blank line stands for "no target".
type ReplaySource struct {
	lines []string
	hold  time.Duration
	now   func() time.Time
	start time.Time
}

// NewReplaySource returns a ReplaySource over lines starting now.
//
// Precondition: hold must be > 0.
func NewReplaySource(lines []string, hold time.Duration, now func() time.Time) *ReplaySource {
	if now == nil {
		now = time.Now
	}
	return &ReplaySource{
		lines: append([]string(nil), lines...),
		hold:  hold,
		now:   now,
		start: now(),
	}
}

// LoadReplay reads a replay file, one captured text per line.
//
// Postcondition: Returns a ReplaySource or a non-nil error.
func LoadReplay(path string, hold time.Duration) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening replay file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading replay file: %w", err)
	}
	return NewReplaySource(lines, hold, nil), nil
}

// Capture returns the line scheduled for the current time.
func (r *ReplaySource) Capture(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(r.lines) == 0 || r.hold <= 0 {
		return "", nil
	}
	idx := int(r.now().Sub(r.start)/r.hold) % len(r.lines)
	return r.lines[idx], nil
}

// PixelReader samples the colour of one window-relative pixel.
type PixelReader interface {
	Pixel(x, y int) (color.RGBA, error)
}

// SolidPixels is a PixelReader returning fixed colours per point.
type SolidPixels struct {
	mu       sync.RWMutex
	points   map[image.Point]color.RGBA
	fallback color.RGBA
}

// NewSolidPixels returns a SolidPixels reporting fallback for unset points.
func NewSolidPixels(fallback color.RGBA) *SolidPixels {
	return &SolidPixels{points: make(map[image.Point]color.RGBA), fallback: fallback}
}

// Set fixes the colour reported at (x, y).
func (s *SolidPixels) Set(x, y int, c color.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[image.Pt(x, y)] = c
}

// Pixel returns the colour set for (x, y), or the fallback.
func (s *SolidPixels) Pixel(x, y int) (color.RGBA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.points[image.Pt(x, y)]; ok {
		return c, nil
	}
	return s.fallback, nil
}
