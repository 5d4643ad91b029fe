package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/standscan/internal/zonal"
)

func TestTargetBasalArea(t *testing.T) {
	_, ok := TargetBasalArea("g16-g22", 7.9)
	assert.False(t, ok)
	_, ok = TargetBasalArea("x99", 12)
	assert.False(t, ok)

	g, ok := TargetBasalArea("g16-g22", 11)
	require.True(t, ok)
	assert.InDelta(t, 15.0, g, 1e-9)

	g, _ = TargetBasalArea("t26-t30", 22.5)
	assert.InDelta(t, 24.5, g, 1e-9)

	g, _ = TargetBasalArea("g35-g40", 31)
	assert.Equal(t, 30.0, g)

	assert.Len(t, SiteIndexes(), 8)
}

func TestStemsPerHectare(t *testing.T) {
	// 20 m²/ha of 20 cm stems: 20 / (π/4 · 0.04) ≈ 637.
	assert.Equal(t, 637, StemsPerHectare(20, 20))
	assert.Zero(t, StemsPerHectare(20, 0))
}

func TestAssessThinning(t *testing.T) {
	th := AssessThinning(zonal.Histogram{Counts: []float64{20, 40, 30, 10, 500}}, "g16-g22", 22, 18, 15)
	require.NotNil(t, th)
	assert.Equal(t, 100.0, th.Pixels)
	assert.Equal(t, ThinningMedium, th.Dominant)
	assert.InDelta(t, 0.4, th.Distribution[ThinningMedium], 1e-9)
	assert.True(t, th.Needed)
	require.NotNil(t, th.TargetBasal)
	assert.InDelta(t, 18.5, *th.TargetBasal, 1e-9)
	assert.Equal(t, StemsPerHectare(22, 18), th.StemsPerHa)
}

func TestAssessThinning_NotNeeded(t *testing.T) {
	th := AssessThinning(zonal.Histogram{Counts: []float64{70, 10, 10, 10}}, "g16-g22", 15, 16, 14)
	require.NotNil(t, th)
	assert.False(t, th.Needed)
	assert.Equal(t, ThinningLow, th.Dominant)
	assert.Nil(t, th.TargetBasal)
}

func TestAssessThinning_TiesPreferUrgent(t *testing.T) {
	th := AssessThinning(zonal.Histogram{Counts: []float64{25, 25, 25, 25}}, "g16-g22", 15, 16, 14)
	require.NotNil(t, th)
	assert.Equal(t, ThinningAcute, th.Dominant)

	th = AssessThinning(zonal.Histogram{Counts: []float64{40, 40, 10}}, "g16-g22", 15, 16, 14)
	require.NotNil(t, th)
	assert.Equal(t, ThinningMedium, th.Dominant)
}

func TestAssessThinning_Empty(t *testing.T) {
	assert.Nil(t, AssessThinning(zonal.Histogram{Counts: []float64{0, 0, 0, 0, 900}}, "g16-g22", 15, 16, 14))
	assert.Nil(t, AssessThinning(zonal.Histogram{}, "g16-g22", 15, 16, 14))
}
