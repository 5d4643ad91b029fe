package tiles

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/standscan/internal/metrics"
	"github.com/sells-group/standscan/internal/resilience"
	"github.com/sells-group/standscan/pkg/imageserver"
)

// Layer is the cache namespace of trafficability tiles.
const Layer = "trafficability"

// Size limits.
const (
	DefaultSize = 256
	MaxSize     = 2048
	MaxZoom     = 22
)

// Validation errors.
var (
	ErrInvalidSize = eris.New("tiles: invalid image size")
	ErrInvalidBBox = eris.New("tiles: invalid bbox")
	ErrInvalidTile = eris.New("tiles: invalid tile coordinate")
)

// MoistureRule encodes moisture classes 1-5 as R = 10·class.
var MoistureRule = &imageserver.RenderingRule{
	RasterFunction: "Colormap",
	RasterFunctionArguments: map[string]any{
		"Colormap": [][4]int{{1, 10, 0, 0}, {2, 20, 0, 0}, {3, 30, 0, 0}, {4, 40, 0, 0}, {5, 50, 0, 0}},
	},
}

// SlopeRule remaps slope degrees to flat, moderate and steep and encodes
// them as R = 10·class.
var SlopeRule = &imageserver.RenderingRule{
	RasterFunction: "Colormap",
	RasterFunctionArguments: map[string]any{
		"Colormap": [][4]int{{1, 10, 0, 0}, {2, 20, 0, 0}, {3, 30, 0, 0}},
		"Raster": map[string]any{
			"rasterFunction": "Remap",
			"rasterFunctionArguments": map[string]any{
				"InputRanges":  []int{0, 20, 20, 25, 25, 90},
				"OutputValues": []int{1, 2, 3},
			},
		},
	},
}

// Exporter renders an ImageServer bbox to PNG.
type Exporter interface {
	ExportImage(ctx context.Context, r imageserver.ExportRequest) ([]byte, error)
	Service() string
}

// Service renders and caches trafficability tiles.
type Service struct {
	moisture Exporter
	slope    Exporter
	cache    *Cache
	breakers *resilience.Breakers
	group    singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables tile caching.
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithBreakers short-circuits exports while an upstream is failing.
func WithBreakers(b *resilience.Breakers) Option {
	return func(s *Service) { s.breakers = b }
}

// NewService returns a Service exporting from the moisture and slope servers.
func NewService(moisture, slope Exporter, opts ...Option) *Service {
	s := &Service{moisture: moisture, slope: slope}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Cache returns the tile cache, or nil when caching is off.
func (s *Service) Cache() *Cache { return s.cache }

// TileBounds returns the EPSG:3857 bbox of web map tile z/x/y.
func TileBounds(z, x, y int) ([4]float64, error) {
	if z < 0 || z > MaxZoom {
		return [4]float64{}, eris.Wrapf(ErrInvalidTile, "zoom %d", z)
	}
	n := 1 << z
	if x < 0 || y < 0 || x >= n || y >= n {
		return [4]float64{}, eris.Wrapf(ErrInvalidTile, "%d/%d/%d", z, x, y)
	}
	b := project.Bound(maptile.New(uint32(x), uint32(y), maptile.Zoom(z)).Bound(), project.WGS84.ToMercator)
	return bboxOf(b), nil
}

func bboxOf(b orb.Bound) [4]float64 {
	return [4]float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}
}

// RenderTile renders web map tile z/x/y at DefaultSize. hit reports whether
// the tile came from the cache.
func (s *Service) RenderTile(ctx context.Context, z, x, y int) (data []byte, hit bool, err error) {
	bbox, err := TileBounds(z, x, y)
	if err != nil {
		return nil, false, err
	}
	return s.render(ctx, XYZKey(Layer, z, x, y), bbox, DefaultSize, DefaultSize)
}

// RenderBBox renders an EPSG:3857 bbox to a width×height PNG.
func (s *Service) RenderBBox(ctx context.Context, bbox [4]float64, width, height int) ([]byte, bool, error) {
	if width <= 0 || height <= 0 || width > MaxSize || height > MaxSize {
		return nil, false, eris.Wrapf(ErrInvalidSize, "%dx%d", width, height)
	}
	if !(bbox[2] > bbox[0]) || !(bbox[3] > bbox[1]) {
		return nil, false, eris.Wrapf(ErrInvalidBBox, "%v", bbox)
	}
	return s.render(ctx, BBoxKey(Layer, bbox, width, height), bbox, width, height)
}

func (s *Service) render(ctx context.Context, key string, bbox [4]float64, width, height int) ([]byte, bool, error) {
	if s.cache != nil {
		if data := s.cache.Get(key); data != nil {
			return data, true, nil
		}
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		data, err := s.compose(ctx, bbox, width, height)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Put(key, data)
		}
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

func (s *Service) compose(ctx context.Context, bbox [4]float64, width, height int) ([]byte, error) {
	start := time.Now()
	var (
		moisture, slope       image.Image
		moistureErr, slopeErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		moisture, moistureErr = s.fetch(ctx, s.moisture, MoistureRule, bbox, width, height)
		return nil
	})
	g.Go(func() error {
		slope, slopeErr = s.fetch(ctx, s.slope, SlopeRule, bbox, width, height)
		return nil
	})
	_ = g.Wait()
	if moistureErr != nil {
		return nil, eris.Wrap(moistureErr, "tiles: moisture layer")
	}
	if slopeErr != nil {
		return nil, eris.Wrap(slopeErr, "tiles: slope layer")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, Compose(moisture, slope, width, height)); err != nil {
		return nil, eris.Wrap(err, "tiles: encode png")
	}
	zap.L().Debug("tiles: composed tile",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("bytes", buf.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	metrics.ObserveAnalysis("tile", "done", start)
	return buf.Bytes(), nil
}

func (s *Service) fetch(ctx context.Context, e Exporter, rule *imageserver.RenderingRule, bbox [4]float64, width, height int) (image.Image, error) {
	service := e.Service()
	start := time.Now()
	body, err := resilience.Call(ctx, s.breakers.Get(service), func(ctx context.Context) ([]byte, error) {
		return e.ExportImage(ctx, imageserver.ExportRequest{
			BBox:             bbox,
			Width:            width,
			Height:           height,
			SpatialReference: imageserver.WebMercatorWKID,
			RenderingRule:    rule,
		})
	})
	metrics.ObserveUpstream(service, start, err)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, resilience.NewUpstreamError(service, http.StatusOK, eris.Wrap(err, "tiles: decode png"))
	}
	return img, nil
}
