package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/huntbot/internal/config"
)

func TestNewLogger_JSON(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNewLogger_Console(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "trace", Format: "json"})
	assert.Error(t, err)
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestNewLeveledLogger_FollowsApplyLevel(t *testing.T) {
	logger, atom, err := NewLeveledLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, ApplyLevel(atom, "debug"))
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestApplyLevel_InvalidLeavesLevel(t *testing.T) {
	_, atom, err := NewLeveledLogger(config.LoggingConfig{Level: "error", Format: "json"})
	require.NoError(t, err)

	assert.Error(t, ApplyLevel(atom, "loud"))
	assert.Equal(t, zapcore.ErrorLevel, atom.Level())
}
