package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSawlogFraction(t *testing.T) {
	tests := []struct {
		cat  Category
		d    float64
		want float64
	}{
		{Conifer, 8, 0},
		{Conifer, 12, 0.15},
		{Conifer, 19.9, 0.35},
		{Conifer, 22, 0.5},
		{Conifer, 40, 0.7},
		{Broadleaf, 19, 0},
		{Broadleaf, 22, 0.15},
		{Broadleaf, 30, 0.3},
		{Broadleaf, 50, 0.45},
		{Category("palm"), 30, 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, SawlogFraction(tc.cat, tc.d), "%s at %v cm", tc.cat, tc.d)
	}
}

func TestSawlogFraction_ConiferReachesSawlogEarlier(t *testing.T) {
	for d := 0.0; d <= 40; d++ {
		assert.GreaterOrEqual(t, SawlogFraction(Conifer, d), SawlogFraction(Broadleaf, d), "d=%v", d)
	}
}

func TestSplit(t *testing.T) {
	gran, _ := DefaultTable().Lookup("gran")
	s := Split(gran, 100, 22)
	assert.InDelta(t, 83.0, s.Underbark, 1e-9)
	assert.InDelta(t, 41.5, s.Sawlog, 1e-9)
	assert.InDelta(t, 41.5, s.Pulpwood, 1e-9)
	assert.InDelta(t, 83*0.30*0.4, s.Slash, 1e-9)
	assert.InDelta(t, s.Underbark, s.Sawlog+s.Pulpwood, 1e-9)
}
