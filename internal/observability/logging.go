// Package observability provides logging utilities.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/huntbot/internal/config"
)

// NewLogger creates a structured logger from the given logging configuration.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	logger, _, err := NewLeveledLogger(cfg)
	return logger, err
}

// NewLeveledLogger is NewLogger that also returns the logger's level handle so
// the level can follow configuration reloads.
//
// Postcondition: The returned AtomicLevel controls the returned logger.
func NewLeveledLogger(cfg config.LoggingConfig) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, zap.AtomicLevel{}, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	atom := zap.NewAtomicLevelAt(level)
	zapCfg.Level = atom
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("building logger: %w", err)
	}
	return logger, atom, nil
}

// ApplyLevel sets atom to the named level.
//
// Postcondition: atom is unchanged when name is not a valid level.
func ApplyLevel(atom zap.AtomicLevel, name string) error {
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", name, err)
	}
	atom.SetLevel(level)
	return nil
}
