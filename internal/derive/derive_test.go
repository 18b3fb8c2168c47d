package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodwatch/internal/config"
)

func f(v float64) *float64 { return &v }

func TestWaterLevel(t *testing.T) {
	tests := []struct {
		name     string
		height   *float64
		distance *float64
		want     *float64
	}{
		{"normal", f(300), f(50), f(250)},
		{"clamps negative to zero", f(300), f(350), f(0)},
		{"exact zero", f(300), f(300), f(0)},
		{"missing mount height", nil, f(50), nil},
		{"missing distance", f(300), nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WaterLevel(tt.height, tt.distance)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestRainfall(t *testing.T) {
	cfg := config.Default().Alerts

	tests := []struct {
		raw  int
		want RainfallCategory
	}{
		{0, RainfallNone},
		{50, RainfallNone},
		{51, RainfallLight},
		{1000, RainfallLight},
		{1001, RainfallModerate},
		{2500, RainfallModerate},
		{2501, RainfallHeavy},
		{4095, RainfallHeavy},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.want, Rainfall(tt.raw, cfg), "raw=%d", tt.raw)
	}
}

func TestQuality(t *testing.T) {
	cfg := config.Default().Alerts

	tests := []struct {
		name      string
		ph        *float64
		turbidity *float64
		want      WaterQuality
	}{
		{"both good", f(7.0), f(10), QualityGood},
		{"ph below critical-low dominates any turbidity", f(5.0), f(5), QualityCritical},
		{"ph below critical-low with good turbidity", f(5.0), f(1), QualityCritical},
		{"ph above critical-high", f(10.0), f(10), QualityCritical},
		{"turbidity critical", f(7.0), f(301), QualityCritical},
		{"ph poor", f(6.0), f(10), QualityPoor},
		{"ph above good band is poor", f(9.0), f(10), QualityPoor},
		{"turbidity poor", f(7.0), f(200), QualityPoor},
		{"turbidity moderate", f(7.0), f(50), QualityModerate},
		{"missing ph", nil, f(10), QualityIncomplete},
		{"missing turbidity", f(7.0), nil, QualityIncomplete},
		{"boundary good turbidity", f(7.0), f(25), QualityGood},
		{"boundary good ph high", f(8.5), f(10), QualityGood},
		{"boundary good ph low", f(6.5), f(10), QualityGood},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Quality(tt.ph, tt.turbidity, cfg))
		})
	}
}

// Derivations must be reproducible bit-for-bit.
func TestQualityDeterministic(t *testing.T) {
	cfg := config.Default().Alerts
	first := Quality(f(6.2), f(120), cfg)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Quality(f(6.2), f(120), cfg))
	}
}
