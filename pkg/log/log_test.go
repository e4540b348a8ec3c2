package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("loud", false)
	assert.Error(t, err)

	logger, err := New("", true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriteSyncer(zap.NewAtomicLevelAt(zapcore.WarnLevel), false, zapcore.AddSync(&buf))

	logger.Info("[Test] hidden")
	logger.Warn("[Test] shown", zap.String("layer", "pois"))
	require.NoError(t, logger.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"layer":"pois"`)
}

func TestReplaceGlobals(t *testing.T) {
	defer ReplaceGlobals(nil)

	logger := zap.NewExample()
	ReplaceGlobals(logger)
	assert.Same(t, logger, L())

	ReplaceGlobals(nil)
	assert.NotNil(t, L())
}
