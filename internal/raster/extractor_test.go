package raster

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/standscan/internal/geometry"
)

// memRaster is an in-memory Raster.
type memRaster struct {
	grid   Grid
	values []float64
	err    error
}

func (m *memRaster) Grid() Grid { return m.grid }

func (m *memRaster) ReadWindow(w Window) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float64, 0, w.W*w.H)
	for y := w.Y0; y < w.Y0+w.H; y++ {
		out = append(out, m.values[y*m.grid.Width+w.X0:y*m.grid.Width+w.X0+w.W]...)
	}
	return out, nil
}

func (m *memRaster) Close() error { return nil }

// 10x10 grid of 10 m pixels with its top-left corner at (0, 100).
var testGrid = Grid{OriginX: 0, OriginY: 100, ResX: 10, ResY: -10, Width: 10, Height: 10, NoData: -1, HasNoData: true}

func constRaster(v float64) *memRaster {
	vals := make([]float64, 100)
	for i := range vals {
		vals[i] = v
	}
	return &memRaster{grid: testGrid, values: vals}
}

func memOpener(files map[string]Raster) Opener {
	return OpenerFunc(func(name string) (Raster, error) {
		r, ok := files[name]
		if !ok {
			return nil, errors.New("no such file")
		}
		return r, nil
	})
}

func TestGrid_WindowFor(t *testing.T) {
	w := testGrid.WindowFor(geometry.BBox{MinX: 15, MinY: 35, MaxX: 42, MaxY: 81})
	assert.Equal(t, Window{X0: 1, Y0: 1, W: 4, H: 6}, w)

	// Clamped to the image.
	w = testGrid.WindowFor(geometry.BBox{MinX: -50, MinY: -50, MaxX: 500, MaxY: 500})
	assert.Equal(t, Window{X0: 0, Y0: 0, W: 10, H: 10}, w)
}

func TestGrid_WindowFor_OutsideExtentIsEmpty(t *testing.T) {
	for _, b := range []geometry.BBox{
		{MinX: 200, MinY: 20, MaxX: 300, MaxY: 80},
		{MinX: -300, MinY: 20, MaxX: -200, MaxY: 80},
		{MinX: 20, MinY: 200, MaxX: 80, MaxY: 300},
		{MinX: 20, MinY: -300, MaxX: 80, MaxY: -200},
	} {
		assert.True(t, testGrid.WindowFor(b).Empty(), "bbox %+v", b)
	}
	assert.True(t, Grid{}.WindowFor(geometry.BBox{MaxX: 1, MaxY: 1}).Empty())
}

func TestExtractor_Means(t *testing.T) {
	withNoData := constRaster(50)
	withNoData.values[2*10+2] = -1 // nodata
	withNoData.values[3*10+3] = -5 // negative
	cache := NewHandleCache(memOpener(map[string]Raster{
		"a.tif": constRaster(20),
		"b.tif": withNoData,
	}))
	ex := NewExtractor(cache)

	// Covers pixel centres of columns 1..4 and rows 1..4.
	poly := geometry.Polygon{{X: 10, Y: 50}, {X: 50, Y: 50}, {X: 50, Y: 90}, {X: 10, Y: 90}}
	res, err := ex.Extract(context.Background(), poly, []string{"a.tif", "b.tif"})
	require.NoError(t, err)
	assert.Equal(t, 16, res.InsideCount)
	require.Len(t, res.Values, 2)
	assert.Equal(t, 20.0, res.Values[0].Mean)
	assert.Equal(t, 16, res.Values[0].PixelCount)
	assert.Equal(t, 50.0, res.Values[1].Mean)
	assert.Equal(t, 14, res.Values[1].PixelCount)
}

func TestExtractor_OutsideExtent(t *testing.T) {
	ex := NewExtractor(NewHandleCache(memOpener(map[string]Raster{"a.tif": constRaster(1)})))
	poly := geometry.Polygon{{X: 1000, Y: 1000}, {X: 1100, Y: 1000}, {X: 1100, Y: 1100}}
	res, err := ex.Extract(context.Background(), poly, []string{"a.tif"})
	require.NoError(t, err)
	assert.True(t, res.Window.Empty())
	assert.Zero(t, res.InsideCount)
	assert.Empty(t, res.Values)
}

func TestExtractor_NoPixelCentreInside(t *testing.T) {
	ex := NewExtractor(NewHandleCache(memOpener(map[string]Raster{"a.tif": constRaster(1)})))
	// A sliver between pixel centres.
	poly := geometry.Polygon{{X: 11, Y: 51}, {X: 14, Y: 51}, {X: 14, Y: 54}}
	res, err := ex.Extract(context.Background(), poly, []string{"a.tif"})
	require.NoError(t, err)
	assert.False(t, res.Window.Empty())
	assert.Zero(t, res.InsideCount)
}

func TestExtractor_PartialFailureIsolated(t *testing.T) {
	misaligned := constRaster(7)
	misaligned.grid.OriginX = 5
	cache := NewHandleCache(memOpener(map[string]Raster{
		"ok.tif":     constRaster(30),
		"broken.tif": &memRaster{grid: testGrid, err: errors.New("read failed")},
		"shift.tif":  misaligned,
	}))
	ex := NewExtractor(cache)
	poly := geometry.Polygon{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}

	res, err := ex.Extract(context.Background(), poly, []string{"ok.tif", "broken.tif", "missing.tif", "shift.tif"})
	require.NoError(t, err)
	require.Len(t, res.Values, 4)
	assert.Equal(t, 30.0, res.Values[0].Mean)
	for _, v := range res.Values[1:] {
		assert.Error(t, v.Err, v.File)
		assert.Zero(t, v.Mean)
		assert.Zero(t, v.PixelCount)
	}
}

func TestExtractor_ReferenceFailure(t *testing.T) {
	ex := NewExtractor(NewHandleCache(memOpener(nil)))
	poly := geometry.Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}
	_, err := ex.Extract(context.Background(), poly, []string{"missing.tif"})
	assert.Error(t, err)

	_, err = ex.Extract(context.Background(), poly, nil)
	assert.Error(t, err)

	_, err = ex.Extract(context.Background(), poly[:2], []string{"missing.tif"})
	assert.ErrorIs(t, err, geometry.ErrTooFewVertices)
}

func TestExtractor_GeoTIFFOnDisk(t *testing.T) {
	dir := t.TempDir()
	writeTestTIFF(t, dir, "SLUskogskarta_volTall.tif", testTIFF{
		width: 20, height: 20, values: gradient(20, 20), rowsPerStrip: 5, deflate: true, predictor: true,
		nodata: "-9999", originX: 500000, originY: 6600200, res: 10,
	})
	ex := NewExtractor(NewHandleCache(DirOpener{Dir: dir}))

	// Pixel centres of column 0, rows 0 and 1: values 0 and 100.
	poly := geometry.Polygon{{X: 500000, Y: 6600180}, {X: 500010, Y: 6600180}, {X: 500010, Y: 6600200}, {X: 500000, Y: 6600200}}
	res, err := ex.Extract(context.Background(), poly, []string{"SLUskogskarta_volTall.tif"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.InsideCount)
	assert.Equal(t, 50.0, res.Values[0].Mean)
}

func TestHandleCache_OpensOnce(t *testing.T) {
	var opens atomic.Int32
	cache := NewHandleCache(OpenerFunc(func(string) (Raster, error) {
		opens.Add(1)
		return constRaster(1), nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cache.Get("a.tif")
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), opens.Load())
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, cache.Close())
	assert.Zero(t, cache.Len())
}

func TestHandleCache_FailuresNotCached(t *testing.T) {
	var opens atomic.Int32
	cache := NewHandleCache(OpenerFunc(func(string) (Raster, error) {
		opens.Add(1)
		return nil, errors.New("boom")
	}))
	_, err := cache.Get("a.tif")
	assert.Error(t, err)
	_, err = cache.Get("a.tif")
	assert.Error(t, err)
	assert.Equal(t, int32(2), opens.Load())
}
