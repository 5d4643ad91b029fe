package trafficability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/karlseguin/ccache/v3"
	"go.uber.org/zap"

	"github.com/sells-group/standscan/internal/metrics"
	"github.com/sells-group/standscan/internal/projection"
	"github.com/sells-group/standscan/pkg/sgu"
)

// SoilLookup resolves the soil class at a projected point.
type SoilLookup interface {
	SoilAt(ctx context.Context, pt projection.Projected) (SoilClass, error)
}

// SoilTexter returns the free-text soil description at a point.
type SoilTexter interface {
	SoilText(ctx context.Context, x, y float64) (string, error)
}

// SGUSoil adapts the SGU soil-type client to SoilLookup.
type SGUSoil struct {
	client SoilTexter
}

// NewSGUSoil wraps client.
func NewSGUSoil(client SoilTexter) *SGUSoil {
	return &SGUSoil{client: client}
}

// SoilAt implements SoilLookup. A point without a mapped feature is unknown.
func (s *SGUSoil) SoilAt(ctx context.Context, pt projection.Projected) (SoilClass, error) {
	text, err := s.client.SoilText(ctx, pt.X, pt.Y)
	if errors.Is(err, sgu.ErrNoFeature) {
		return SoilUnknown, nil
	}
	if err != nil {
		return SoilUnknown, err
	}
	return ParseSoilText(text), nil
}

// Soil cache defaults.
const (
	DefaultSoilCacheSize = 10000
	DefaultSoilCacheTTL  = 24 * time.Hour
	DefaultSoilGrid      = 25.0 // meters
)

// CachedSoil caches successful lookups per point snapped to a grid.
// Failures are never cached.
type CachedSoil struct {
	next  SoilLookup
	cache *ccache.Cache[SoilClass]
	ttl   time.Duration
	grid  float64
}

// NewCachedSoil wraps next with a cache of at most size points. Zero values
// select the package defaults.
func NewCachedSoil(next SoilLookup, size int64, ttl time.Duration, grid float64) *CachedSoil {
	if size <= 0 {
		size = DefaultSoilCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultSoilCacheTTL
	}
	if grid <= 0 {
		grid = DefaultSoilGrid
	}
	return &CachedSoil{
		next:  next,
		cache: ccache.New(ccache.Configure[SoilClass]().MaxSize(size)),
		ttl:   ttl,
		grid:  grid,
	}
}

func (c *CachedSoil) key(pt projection.Projected) string {
	return fmt.Sprintf("%.0f:%.0f", math.Round(pt.X/c.grid)*c.grid, math.Round(pt.Y/c.grid)*c.grid)
}

// SoilAt implements SoilLookup.
func (c *CachedSoil) SoilAt(ctx context.Context, pt projection.Projected) (SoilClass, error) {
	key := c.key(pt)
	if item := c.cache.Get(key); item != nil && !item.Expired() {
		metrics.CacheLookup("soil", true)
		return item.Value(), nil
	}
	metrics.CacheLookup("soil", false)

	class, err := c.next.SoilAt(ctx, pt)
	if err != nil {
		return class, err
	}
	c.cache.Set(key, class, c.ttl)
	zap.L().Debug("trafficability: cached soil class", zap.String("key", key), zap.Stringer("class", class))
	return class, nil
}

// Stop releases the cache's background worker.
func (c *CachedSoil) Stop() {
	c.cache.Stop()
}
