package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAdapterForwardsKeyValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := Temporal(zap.New(core))

	logger.Info("Executing step", "step", "open-target", "sequence", 1)
	logger.Warn("Step failed", "kind", "timeout")

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Executing step", entry.Message)
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "open-target", entry.ContextMap()["step"])
	assert.EqualValues(t, 1, entry.ContextMap()["sequence"])
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)
}

func TestAdapterWithAddsFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := Temporal(zap.New(core)).With("runID", "abc")

	logger.Info("Walkthrough completed")
	logger.Debug("dropped below level")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "abc", logs.All()[0].ContextMap()["runID"])
}

func TestNewFallsBackToInfoLevel(t *testing.T) {
	logger := New(Config{Level: "chatty"})
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walkthrough.log")
	logger := NewWithWriter(Config{Level: "debug", File: path, MaxSize: 1}, zapcore.AddSync(discard{}))

	logger.Debug("hello", zap.String("k", "v"))
	require.NoError(t, logger.Sync())
	assert.FileExists(t, path)
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Error("ignored", "error", "boom")
	})
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
