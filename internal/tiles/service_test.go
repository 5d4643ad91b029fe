package tiles

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/standscan/internal/resilience"
	"github.com/sells-group/standscan/pkg/imageserver"
)

type fakeExporter struct {
	name  string
	class int
	body  []byte
	err   error
	calls atomic.Int32
	last  atomic.Pointer[imageserver.ExportRequest]
}

func (f *fakeExporter) Service() string { return f.name }

func (f *fakeExporter) ExportImage(_ context.Context, r imageserver.ExportRequest) ([]byte, error) {
	f.calls.Add(1)
	f.last.Store(&r)
	if f.err != nil {
		return nil, f.err
	}
	if f.body != nil {
		return f.body, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, classImage(r.Width, r.Height, f.class)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestTileBounds(t *testing.T) {
	b, err := TileBounds(0, 0, 0)
	require.NoError(t, err)
	const half = 20037508.342789244
	assert.InDelta(t, -half, b[0], 1)
	assert.InDelta(t, -half, b[1], 1)
	assert.InDelta(t, half, b[2], 1)
	assert.InDelta(t, half, b[3], 1)

	b, err = TileBounds(1, 1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, b[0], 1)
	assert.InDelta(t, 0, b[1], 1)

	for _, c := range [][3]int{{-1, 0, 0}, {23, 0, 0}, {2, 4, 0}, {2, 0, -1}} {
		_, err := TileBounds(c[0], c[1], c[2])
		assert.ErrorIs(t, err, ErrInvalidTile, "%v", c)
	}
}

func TestRenderTile(t *testing.T) {
	moisture := &fakeExporter{name: "moisture", class: 2}
	slope := &fakeExporter{name: "slope", class: SlopeModerate}
	svc := NewService(moisture, slope, WithCache(NewCache(10, time.Hour)))

	data, hit, err := svc.RenderTile(context.Background(), 12, 2200, 1100)
	require.NoError(t, err)
	assert.False(t, hit)
	img := decode(t, data)
	assert.Equal(t, image.Rect(0, 0, DefaultSize, DefaultSize), img.Bounds())
	assert.Equal(t, Yellow, img.At(10, 10))

	req := moisture.last.Load()
	require.NotNil(t, req)
	assert.Equal(t, imageserver.WebMercatorWKID, req.SpatialReference)
	assert.Same(t, MoistureRule, req.RenderingRule)
	assert.Same(t, SlopeRule, slope.last.Load().RenderingRule)

	again, hit, err := svc.RenderTile(context.Background(), 12, 2200, 1100)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, data, again)
	assert.Equal(t, int32(1), moisture.calls.Load())
}

func TestRenderBBox(t *testing.T) {
	svc := NewService(&fakeExporter{name: "m", class: 5}, &fakeExporter{name: "s", class: SlopeFlat})
	data, _, err := svc.RenderBBox(context.Background(), [4]float64{1, 2, 3, 4}, 8, 4)
	require.NoError(t, err)
	img := decode(t, data)
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())
	assert.Equal(t, OpenWater, img.At(0, 0))
}

func TestRenderBBox_Validation(t *testing.T) {
	svc := NewService(&fakeExporter{name: "m"}, &fakeExporter{name: "s"})
	_, _, err := svc.RenderBBox(context.Background(), [4]float64{0, 0, 1, 1}, 0, 256)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, _, err = svc.RenderBBox(context.Background(), [4]float64{0, 0, 1, 1}, MaxSize+1, 256)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, _, err = svc.RenderBBox(context.Background(), [4]float64{1, 0, 0, 1}, 256, 256)
	assert.ErrorIs(t, err, ErrInvalidBBox)
}

func TestRender_UpstreamFailure(t *testing.T) {
	down := &fakeExporter{name: "slope", err: resilience.NewUpstreamError("slope", http.StatusServiceUnavailable, errors.New("down"))}
	cache := NewCache(10, time.Hour)
	svc := NewService(&fakeExporter{name: "moisture", class: 1}, down, WithCache(cache))

	_, _, err := svc.RenderTile(context.Background(), 3, 1, 1)
	require.Error(t, err)
	assert.True(t, resilience.IsUpstream(err))
	assert.Equal(t, 0, cache.Stats().Entries)
}

func TestRender_NotPNG(t *testing.T) {
	svc := NewService(&fakeExporter{name: "moisture", body: []byte("garbage")}, &fakeExporter{name: "slope", class: 1})
	_, _, err := svc.RenderTile(context.Background(), 3, 1, 1)
	require.Error(t, err)
	assert.True(t, resilience.IsUpstream(err))
}

func TestRender_BreakerOpens(t *testing.T) {
	down := &fakeExporter{name: "slope", err: resilience.NewUpstreamError("slope", http.StatusBadGateway, errors.New("down"))}
	breakers := resilience.NewBreakers(resilience.BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	svc := NewService(&fakeExporter{name: "moisture", class: 1}, down, WithBreakers(breakers))

	_, _, err := svc.RenderTile(context.Background(), 3, 1, 1)
	require.Error(t, err)
	_, _, err = svc.RenderTile(context.Background(), 3, 1, 2)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(1), down.calls.Load())
}
