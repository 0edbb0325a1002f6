package config

import (
	"flag"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Renderer.MaxFramesInFlight)
	assert.Equal(t, time.Second, cfg.Renderer.FenceTimeout)
	assert.Equal(t, 2*time.Second, cfg.Engine.RenderThreadWaitTimeout)
	assert.True(t, cfg.Engine.DragRequiresBothAxes)
	assert.Equal(t, uint32(2), cfg.Renderer.PreferredImageCount())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Renderer.MaxFramesInFlight = 0
	cfg.Renderer.FenceTimeout = 0
	cfg.Window.Width = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frames in flight")
	assert.Contains(t, err.Error(), "fence timeout")
	assert.Contains(t, err.Error(), "window size")
}

func TestApplyEnvScaleFactor(t *testing.T) {
	cfg := Default()
	warnings := cfg.ApplyEnv(envOf(map[string]string{EnvScaleFactor: "1.5"}))
	assert.Empty(t, warnings)
	assert.Equal(t, 1.5, cfg.Engine.ScaleFactorOverride)
}

func TestApplyEnvInvalidScaleFactorFallsBack(t *testing.T) {
	for _, v := range []string{"abc", "-2", "0"} {
		cfg := Default()
		warnings := cfg.ApplyEnv(envOf(map[string]string{EnvScaleFactor: v}))
		assert.Len(t, warnings, 1, v)
		assert.Zero(t, cfg.Engine.ScaleFactorOverride, v)
	}
}

func TestApplyEnvValidationAndLogLevel(t *testing.T) {
	cfg := Default()
	warnings := cfg.ApplyEnv(envOf(map[string]string{
		EnvValidation: "false",
		EnvLogLevel:   "debug",
	}))
	assert.Empty(t, warnings)
	assert.False(t, cfg.Renderer.EnableValidation)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("goshenite", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseFlagsDisablesValidation(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envOf(map[string]string{EnvValidation: "1"}))
	require.True(t, cfg.Renderer.EnableValidation)

	require.NoError(t, cfg.ParseFlags(newFlagSet(), []string{"-validation=false", "-width", "640", "-log-level", "warn"}))
	assert.False(t, cfg.Renderer.EnableValidation)
	assert.Equal(t, 640, cfg.Window.Width)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestParseFlagsKeepsEnvWhenAbsent(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envOf(map[string]string{EnvValidation: "false", EnvLogLevel: "debug"}))

	require.NoError(t, cfg.ParseFlags(newFlagSet(), nil))
	assert.False(t, cfg.Renderer.EnableValidation)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, Default().Window, cfg.Window)
}

func TestParseFlagsRejectsUnknownLevel(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ParseFlags(newFlagSet(), []string{"-log-level", "loud"}))
}
