package config

import (
	"os"
	"path/filepath"
	"testing"

	"backend/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scheduling.MaxConcurrent)
	assert.Equal(t, 60, cfg.Scheduling.TimeSliceSeconds)
	assert.Equal(t, 25.0, cfg.Temperature.DefaultTarget)
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
scheduling:
  max_concurrent: 2
  time_slice_seconds: -1
clock:
  ratio: 0
billing:
  price_per_unit: 2.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Scheduling.MaxConcurrent)
	assert.Equal(t, 60, cfg.Scheduling.TimeSliceSeconds, "非法值回落默认")
	assert.Equal(t, 1.0, cfg.Clock.Ratio)
	assert.Equal(t, 2.0, cfg.Billing.PricePerUnit)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0o644))

	_, err := Load(path)
	assert.Equal(t, types.KindInvalidArgument, types.KindOf(err))
}

func TestRateForSpeed(t *testing.T) {
	cfg := Default()
	assert.InDelta(t, 1.0, cfg.RateForSpeed(types.SpeedHigh), 1e-9)
	assert.InDelta(t, 0.5, cfg.RateForSpeed(types.SpeedMid), 1e-9)
	assert.InDelta(t, 1.0/3, cfg.RateForSpeed(types.SpeedLow), 1e-9)
	assert.InDelta(t, 0.5, cfg.RateForSpeed("whatever"), 1e-9, "未知风速按中风")
}

func TestRangeForMode(t *testing.T) {
	cfg := Default()
	cool := cfg.RangeForMode(types.ModeCool)
	assert.True(t, cool.Contains(18))
	assert.True(t, cool.Contains(25))
	assert.False(t, cool.Contains(26))

	heat := cfg.RangeForMode(types.ModeHeat)
	assert.True(t, heat.Contains(30))
	assert.False(t, heat.Contains(24))
}
