package volume

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/standscan/internal/geometry"
	"github.com/sells-group/standscan/internal/raster"
	"github.com/sells-group/standscan/internal/resilience"
	"github.com/sells-group/standscan/internal/zonal"
)

// fakeSource serves canned statistics per source id.
type fakeSource struct {
	mu    sync.Mutex
	stats map[string]*zonal.Statistics
	errs  map[string]error
	calls map[string]int
}

func (f *fakeSource) FetchZonalStatistics(_ context.Context, _ geometry.Polygon, id string) (*zonal.Statistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[id]++
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return f.stats[id], nil
}

type fakePoints struct {
	values []float64
	err    error
	x, y   float64
}

func (f *fakePoints) FetchPointValues(_ context.Context, x, y float64, _ string) ([]float64, error) {
	f.x, f.y = x, y
	return f.values, f.err
}

type fakeExtractor struct {
	ext *raster.Extraction
	err error
}

func (f *fakeExtractor) Extract(context.Context, geometry.Polygon, []string) (*raster.Extraction, error) {
	return f.ext, f.err
}

// hectare is a 100 m x 100 m stand.
var hectare = geometry.Polygon{{X: 500000, Y: 6600000}, {X: 500100, Y: 6600000}, {X: 500100, Y: 6600100}, {X: 500000, Y: 6600100}}

func speciesStats(volumeRaw float64, speciesRaw ...float64) *zonal.Statistics {
	s := twelveBands(volumeRaw, 100)
	s.Bands[BandDiameter].Mean = 220
	s.Bands[BandHeight].Mean = 160
	s.Bands[BandBasalArea].Mean = 24
	for i, v := range speciesRaw {
		s.Bands[5+i].Mean = v
	}
	return s
}

func TestEstimate_EndToEnd(t *testing.T) {
	src := &fakeSource{stats: map[string]*zonal.Statistics{
		zonal.SourceSpecies: speciesStats(25000, 10000, 12500, 2500),
	}}
	res, err := NewService(src, WithPolicy(PolicyRemote)).Estimate(context.Background(), hectare)
	require.NoError(t, err)

	assert.Equal(t, StatusDone, res.Status)
	assert.NotEmpty(t, res.ID)
	assert.InDelta(t, 1.0, res.AreaHa, 1e-9)
	assert.InDelta(t, 250.0, res.VolumePerHa, 1e-9)
	assert.InDelta(t, 250.0, res.TotalVolume, 1e-9)
	assert.Equal(t, 22.0, res.MeanDiameterCm)
	assert.Equal(t, 16.0, res.MeanHeightM)
	assert.False(t, res.HarvestedWarning)
	assert.Equal(t, "remote", res.SpeciesSource)

	require.Len(t, res.Species, 3)
	assert.Equal(t, "gran", res.Species[0].Key)
	assert.InDelta(t, 0.5, res.Species[0].ShareOfTotal, 1e-9)
	assert.InDelta(t, 125.0, res.Species[0].TotalVolume, 1e-9)
	assert.Nil(t, res.Thinning)
}

func TestEstimate_Validation(t *testing.T) {
	svc := NewService(&fakeSource{})
	_, err := svc.Estimate(context.Background(), hectare[:2])
	assert.ErrorIs(t, err, geometry.ErrTooFewVertices)

	tiny := geometry.Polygon{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 5}, {X: 0, Y: 5}}
	_, err = svc.Estimate(context.Background(), tiny)
	assert.ErrorIs(t, err, ErrAreaTooSmall)
}

func TestEstimate_NoDataCarriesArea(t *testing.T) {
	for name, stats := range map[string]*zonal.Statistics{
		"few bands":   {Bands: make([]zonal.Band, 4)},
		"zero pixels": twelveBands(0, 0),
	} {
		t.Run(name, func(t *testing.T) {
			src := &fakeSource{stats: map[string]*zonal.Statistics{zonal.SourceSpecies: stats}}
			res, err := NewService(src).Estimate(context.Background(), hectare)
			require.NoError(t, err)
			assert.Equal(t, StatusNoData, res.Status)
			assert.InDelta(t, 1.0, res.AreaHa, 1e-9)
			assert.Empty(t, res.Species)
		})
	}
}

func TestEstimate_UpstreamFailure(t *testing.T) {
	src := &fakeSource{errs: map[string]error{
		zonal.SourceSpecies: resilience.NewUpstreamError("SLUskogskarta_1_0", 503, errors.New("unavailable")),
	}}
	_, err := NewService(src).Estimate(context.Background(), hectare)
	require.Error(t, err)
	var ue *resilience.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, 503, ue.StatusCode)
}

func TestEstimate_HarvestedWarning(t *testing.T) {
	src := &fakeSource{stats: map[string]*zonal.Statistics{zonal.SourceSpecies: speciesStats(1200, 1200)}}
	res, err := NewService(src).Estimate(context.Background(), hectare)
	require.NoError(t, err)
	assert.True(t, res.HarvestedWarning)
}

func TestEstimate_AutoFallsBackToRaster(t *testing.T) {
	src := &fakeSource{stats: map[string]*zonal.Statistics{zonal.SourceSpecies: speciesStats(20000)}}
	ext := &fakeExtractor{ext: &raster.Extraction{InsideCount: 50, Values: []raster.FileMean{
		{Mean: 5000}, {Mean: 15000}, {}, {}, {}, {}, {Err: errors.New("read failed")},
	}}}
	points := &fakePoints{values: []float64{0, 0, 0, 0, 0, 100, 100, 100, 0, 0, 0, 0}}

	res, err := NewService(src, WithExtractor(ext), WithPointSource(points)).Estimate(context.Background(), hectare)
	require.NoError(t, err)
	assert.Equal(t, "raster", res.SpeciesSource)
	require.Len(t, res.Species, 2)
	assert.Equal(t, "gran", res.Species[0].Key)
	assert.InDelta(t, 0.75, res.Species[0].ShareOfTotal, 1e-9)
}

func TestEstimate_AutoFallsBackToIdentify(t *testing.T) {
	src := &fakeSource{stats: map[string]*zonal.Statistics{zonal.SourceSpecies: speciesStats(20000)}}
	ext := &fakeExtractor{err: errors.New("no rasters")}
	points := &fakePoints{values: []float64{0, 0, 0, 0, 0, 4000, 0, 16000, 0, 0, 0, 0}}

	res, err := NewService(src, WithExtractor(ext), WithPointSource(points)).Estimate(context.Background(), hectare)
	require.NoError(t, err)
	assert.Equal(t, "identify", res.SpeciesSource)
	require.Len(t, res.Species, 2)
	assert.Equal(t, "bjork", res.Species[0].Key)
	assert.InDelta(t, 500050.0, points.x, 1e-9)
	assert.InDelta(t, 6600050.0, points.y, 1e-9)
}

func TestEstimate_NoSpeciesSource(t *testing.T) {
	src := &fakeSource{stats: map[string]*zonal.Statistics{zonal.SourceSpecies: speciesStats(20000)}}
	res, err := NewService(src).Estimate(context.Background(), hectare)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, res.Status)
	assert.Equal(t, SourceNone, res.SpeciesSource)
	assert.Empty(t, res.Species)
	assert.InDelta(t, 200.0, res.TotalVolume, 1e-9)
}

func TestEstimate_Thinning(t *testing.T) {
	src := &fakeSource{stats: map[string]*zonal.Statistics{
		zonal.SourceSpecies:  speciesStats(20000, 20000),
		zonal.SourceThinning: {Histograms: []zonal.Histogram{{Counts: []float64{10, 30, 40, 20}}}},
	}}
	res, err := NewService(src, WithThinning("g23-g28")).Estimate(context.Background(), hectare)
	require.NoError(t, err)
	require.NotNil(t, res.Thinning)
	assert.True(t, res.Thinning.Needed)
	assert.Equal(t, ThinningHigh, res.Thinning.Dominant)
	assert.Equal(t, "g23-g28", res.Thinning.SiteIndex)
	require.NotNil(t, res.Thinning.TargetBasal)
	assert.InDelta(t, 22.0, *res.Thinning.TargetBasal, 1e-9)
}

func TestEstimate_ThinningFailureIsIsolated(t *testing.T) {
	src := &fakeSource{
		stats: map[string]*zonal.Statistics{zonal.SourceSpecies: speciesStats(20000, 20000)},
		errs:  map[string]error{zonal.SourceThinning: errors.New("boom")},
	}
	res, err := NewService(src, WithThinning("")).Estimate(context.Background(), hectare)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, res.Status)
	assert.Nil(t, res.Thinning)
	assert.Equal(t, 1, src.calls[zonal.SourceThinning])
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyAuto, p)
	p, err = ParsePolicy("raster")
	require.NoError(t, err)
	assert.Equal(t, PolicyRaster, p)
	_, err = ParsePolicy("magic")
	assert.Error(t, err)
}
