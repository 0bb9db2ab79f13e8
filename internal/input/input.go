// Package input defines the keyboard and mouse injection boundary.
package input

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnknownKey is returned for keys outside the virtual-key table.
var ErrUnknownKey = errors.New("unknown key")

// Injector sends simulated input to the game window.
type Injector interface {
	// PressKey presses and releases key, holding it for hold.
	PressKey(key string, hold time.Duration) error
	// Click performs a left click at the window-relative position.
	Click(x, y int) error
}

// KeyCode returns the Windows virtual-key code for a single digit or letter.
// Letters are case-insensitive.
//
// Postcondition: Returns ErrUnknownKey (wrapped) for anything else.
func KeyCode(key string) (uint16, error) {
	if len(key) == 1 {
		c := strings.ToUpper(key)[0]
		switch {
		case c >= '0' && c <= '9':
			return 0x30 + uint16(c-'0'), nil
		case c >= 'A' && c <= 'Z':
			return 0x41 + uint16(c-'A'), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownKey, key)
}

// LogInjector is the dry-run Injector: it validates and logs input instead of
// sending it.
type LogInjector struct {
	logger *zap.Logger
}

// NewLogInjector returns a LogInjector writing to logger.
func NewLogInjector(logger *zap.Logger) *LogInjector {
	return &LogInjector{logger: logger}
}

// PressKey logs the key press.
func (l *LogInjector) PressKey(key string, hold time.Duration) error {
	code, err := KeyCode(key)
	if err != nil {
		return err
	}
	l.logger.Info("key press",
		zap.String("key", key),
		zap.Uint16("vk", code),
		zap.Duration("hold", hold),
	)
	return nil
}

// Click logs the click.
func (l *LogInjector) Click(x, y int) error {
	if x < 0 || y < 0 {
		return fmt.Errorf("click at (%d, %d): negative coordinate", x, y)
	}
	l.logger.Info("click", zap.Int("x", x), zap.Int("y", y))
	return nil
}
