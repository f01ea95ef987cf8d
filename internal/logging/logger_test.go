package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"aide/internal/config"
)

func TestNew(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New(config.LoggingConfig{Level: "warn", Format: "text"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestParseLevel_UnknownFallsBackToInfo(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, parseLevel("chatty"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}
