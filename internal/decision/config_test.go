package decision

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.InDelta(t, 1.0, cfg.Weights.sum(), weightTolerance)
	assert.InDelta(t, 1.0, cfg.Hedge.Weights.sum()+cfg.Hedge.Weights.Chicago, weightTolerance)
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"weights not summing to one", func(c *Config) { c.Weights.FX = 0.2 }, "weights"},
		{"negative weight", func(c *Config) { c.Weights.FX = -0.1; c.Weights.Lineup = 0.5 }, "weights"},
		{"hedge weights", func(c *Config) { c.Hedge.Weights.Chicago = 0.5 }, "hedge.weights"},
		{"curve order", func(c *Config) { c.Curves.Lineup.Low = 1 }, "curves.lineup"},
		{"nan curve", func(c *Config) { c.Curves.FX.High = math.NaN() }, "curves.fx"},
		{"band gap", func(c *Config) { c.Bands[2].Lower = 36 }, "bands[2]"},
		{"band order", func(c *Config) { c.Bands[1].Class = ClassStrong }, "bands[1]"},
		{"bands not reaching 100", func(c *Config) { c.Bands[4].Upper = 95 }, "bands"},
		{"too few bands", func(c *Config) { c.Bands = c.Bands[:4] }, "bands"},
		{"intensity order", func(c *Config) { c.Intensity.Strong = 10 }, "intensity"},
		{"neutral sizing", func(c *Config) { c.PhysicalSizing.Neutral = 5 }, "physical_sizing.neutral"},
		{"sizing sign", func(c *Config) { c.Hedge.Sizing.Weak = 10 }, "hedge.sizing"},
		{"joint drop overlaps trap", func(c *Config) { c.Overrides.JointDrop.PremiumBelow = 85 }, "overrides.joint_drop.premium_below"},
		{"positive lineup threshold", func(c *Config) { c.Overrides.PremiumTrap.LineupAtOrBelowPct = 2 }, "overrides.premium_trap.lineup_at_or_below_pct"},
		{"mandate sign", func(c *Config) { c.Overrides.Competitiveness.Physical.DeltaPct = 15 }, "overrides.competitiveness.physical"},
		{"hedge mandate action", func(c *Config) { c.Overrides.ChicagoSpike.Hedge.Action = ActionAccelerate }, "overrides.chicago_spike.hedge"},
		{"logistics must sell", func(c *Config) {
			c.Overrides.Logistics.Physical = Mandate{Action: ActionHold, Intensity: IntensityStrong}
		}, "overrides.logistics.physical.action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
			var de *Error
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.field, de.Field)
		})
	}
}

func TestConfig_YAMLOverride(t *testing.T) {
	src := `
weights:
  lineup: 0.4
  premium: 0.2
  competitiveness: 0.2
  demand: 0.1
  fx: 0.1
overrides:
  competitiveness:
    spread_above_usd: 12
    physical:
      action: reduce
      intensity: strong
      delta_pct: -18
`
	cfg := DefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(src), &cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.4, cfg.Weights.Lineup)
	assert.Equal(t, 12.0, cfg.Overrides.Competitiveness.SpreadAboveUSD)
	assert.Equal(t, IntensityStrong, cfg.Overrides.Competitiveness.Physical.Intensity)
	// untouched sections keep their defaults
	assert.Equal(t, 80.0, cfg.Overrides.PremiumTrap.PremiumAbove)
	assert.Len(t, cfg.Bands, 5)
}

func TestConfig_YAMLUnknownLabel(t *testing.T) {
	cfg := DefaultConfig()
	err := yaml.Unmarshal([]byte("bands:\n  - class: bullish\n    lower: 0\n    upper: 100\n"), &cfg)
	require.Error(t, err)
}
