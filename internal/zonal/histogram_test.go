package zonal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func TestHistogram_ClassDistribution_OneBucketPerClass(t *testing.T) {
	// Buckets centred on 1..5.
	h := Histogram{Min: 0.5, Max: 5.5, Counts: []float64{10, 20, 30, 20, 20}}
	d := h.ClassDistribution(1, 5, nil)
	require.Len(t, d, 5)
	assert.InDelta(t, 1.0, sum(d), 1e-9)
	assert.InDelta(t, 0.1, d[0], 1e-9)
	assert.InDelta(t, 0.3, d[2], 1e-9)
}

func TestHistogram_ClassDistribution_ExcludesOutOfRange(t *testing.T) {
	// Centres 0, 1, 2, ..., 6: classes 0 and 6 fall outside [1, 5].
	h := Histogram{Min: -0.5, Max: 6.5, Counts: []float64{1000, 1, 1, 1, 1, 1, 1000}}
	d := h.ClassDistribution(1, 5, nil)
	for _, f := range d {
		assert.InDelta(t, 0.2, f, 1e-9)
	}
}

func TestHistogram_ClassDistribution_ManyBucketsPerClass(t *testing.T) {
	h := Histogram{Min: 1, Max: 5, Counts: make([]float64, 256)}
	for i := range h.Counts {
		h.Counts[i] = float64(i % 7)
	}
	d := h.ClassDistribution(1, 5, nil)
	assert.InDelta(t, 1.0, sum(d), 1e-9)
}

func TestHistogram_ClassDistribution_Fallback(t *testing.T) {
	fallback := []float64{0, 1, 0, 0, 0}
	h := Histogram{Min: 0, Max: 10, Counts: []float64{0, 0, 0}}
	d := h.ClassDistribution(1, 5, fallback)
	assert.Equal(t, fallback, d)
	d[0] = 9
	assert.Zero(t, fallback[0], "fallback must be copied")
}

func TestHistogram_SingleBucketWidth(t *testing.T) {
	h := Histogram{Min: 2.6, Max: 2.6, Counts: []float64{5}}
	assert.InDelta(t, 3.1, h.BucketCenter(0), 1e-9)
	d := h.ClassDistribution(1, 5, nil)
	assert.Equal(t, []float64{0, 0, 1, 0, 0}, d)
}

func TestHistogram_RangeDistribution(t *testing.T) {
	// 90 one-degree buckets.
	h := Histogram{Min: 0, Max: 90, Counts: make([]float64, 90)}
	for i := range h.Counts {
		h.Counts[i] = 1
	}
	fr, ok := h.RangeDistribution([]float64{15, 20, 25})
	require.True(t, ok)
	require.Len(t, fr, 4)
	assert.InDelta(t, 15.0/90, fr[0], 1e-9)
	assert.InDelta(t, 5.0/90, fr[1], 1e-9)
	assert.InDelta(t, 5.0/90, fr[2], 1e-9)
	assert.InDelta(t, 65.0/90, fr[3], 1e-9)
	assert.InDelta(t, 1.0, sum(fr), 1e-9)

	_, ok = Histogram{Counts: []float64{0, 0}}.RangeDistribution([]float64{15})
	assert.False(t, ok)
}

func TestStatistics_Accessors(t *testing.T) {
	s := &Statistics{Bands: []Band{{Mean: 1}}, Histograms: []Histogram{{}}}
	b, ok := s.Band(0)
	assert.True(t, ok)
	assert.Equal(t, 1.0, b.Mean)
	_, ok = s.Band(1)
	assert.False(t, ok)
	_, ok = s.Histogram(0)
	assert.False(t, ok, "empty counts")

	var nilStats *Statistics
	_, ok = nilStats.Band(0)
	assert.False(t, ok)
}
