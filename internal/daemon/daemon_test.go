package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mystiatech/conductor/internal/autonomy"
	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/mystiatech/conductor/internal/config"
)

func TestApplyAutonomyOverridesLeavesDefaultsUntouched(t *testing.T) {
	cfg := &config.Config{}
	cfg.Validate()

	triggers := applyAutonomyOverrides(cfg.Autonomy)
	require.Len(t, triggers, len(autonomy.DefaultTriggers))
	assert.Equal(t, autonomy.DefaultTriggers, triggers)
}

func TestApplyAutonomyOverridesAppliesConfiguredCooldown(t *testing.T) {
	cfg := &config.Config{}
	cfg.Validate()
	cfg.Autonomy.CooldownMinutes = 45

	triggers := applyAutonomyOverrides(cfg.Autonomy)
	for _, trig := range triggers {
		assert.Equal(t, 45, trig.CooldownMinutes)
	}
}

func TestApplyAutonomyOverridesAppliesThresholdOverride(t *testing.T) {
	cfg := &config.Config{}
	cfg.Validate()
	cfg.Autonomy.TriggerThresholds = map[string]float64{
		string(conductor.EmotionFrustration): 0.4,
	}

	triggers := applyAutonomyOverrides(cfg.Autonomy)
	for _, trig := range triggers {
		if trig.Emotion == conductor.EmotionFrustration {
			assert.Equal(t, 0.4, trig.Threshold)
		}
	}
}

func TestAutonomyCronSpecDefaultsWhenNonPositive(t *testing.T) {
	assert.Equal(t, "@every 900s", autonomyCronSpec(0))
	assert.Equal(t, "@every 60s", autonomyCronSpec(60))
}
