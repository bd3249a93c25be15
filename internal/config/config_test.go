package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFillsDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Validate()

	assert.Equal(t, 512, cfg.Isolation.MemoryLimitMB)
	assert.Equal(t, 30, cfg.Isolation.TimeoutSeconds)
	assert.Equal(t, "./plugins", cfg.Isolation.ScriptsDir)

	assert.Equal(t, 5, cfg.Router.DefaultRequestTimeoutSeconds)
	assert.Equal(t, 3, cfg.Router.DLQMaxRetries)
	assert.Equal(t, 5, cfg.Router.DLQPollIntervalSeconds)

	assert.Equal(t, 80.0, cfg.Scaler.RAMThreshold)
	assert.Equal(t, 0.7, cfg.Scaler.EMAAlpha)
	assert.Equal(t, 95.0, cfg.Scaler.EmergencyThreshold)

	assert.Equal(t, 900, cfg.Autonomy.CheckIntervalSeconds)
	assert.Equal(t, 60, cfg.Autonomy.CooldownMinutes)
	assert.Equal(t, 5, cfg.Autonomy.MaxAutonomousPerHour)
	assert.Equal(t, 2000, cfg.Autonomy.PlatformSettings.MaxMessageLength)
	assert.Equal(t, "Local", cfg.Autonomy.AppropriateHoursTZ)

	assert.Equal(t, 60, cfg.Resource.WindowSize)
	assert.Equal(t, 30, cfg.Resource.CollectionIntervalSeconds)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.Admin.Addr)
}

func TestValidatePreservesCustomValues(t *testing.T) {
	cfg := &Config{
		Isolation: IsolationConfig{MemoryLimitMB: 1024, TimeoutSeconds: 10, ScriptsDir: "/opt/plugins"},
		Scaler:    ScalerConfig{RAMThreshold: 70, EMAAlpha: 0.5, EmergencyThreshold: 90},
	}
	cfg.Validate()

	assert.Equal(t, 1024, cfg.Isolation.MemoryLimitMB)
	assert.Equal(t, 10, cfg.Isolation.TimeoutSeconds)
	assert.Equal(t, "/opt/plugins", cfg.Isolation.ScriptsDir)
	assert.Equal(t, 70.0, cfg.Scaler.RAMThreshold)
}

func TestEnableDisableThresholdIsFifteenBelowDisable(t *testing.T) {
	sc := &ScalerConfig{RAMThreshold: 80}
	assert.Equal(t, 65.0, sc.EnableDisableThreshold())
}

func TestLoadOverlaysYAMLThenValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("isolation:\n  memory_limit_mb: 256\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Isolation.MemoryLimitMB)
	// Untouched fields still receive their defaults.
	assert.Equal(t, 30, cfg.Isolation.TimeoutSeconds)
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Isolation.MemoryLimitMB)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
