package season

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/standscan/internal/metrics"
	"github.com/sells-group/standscan/pkg/smhi"
)

// DefaultStationTTL is how long a fetched station list stays fresh.
const DefaultStationTTL = time.Hour

// StationLister fetches the station list.
type StationLister interface {
	Stations(ctx context.Context) ([]smhi.Station, error)
}

// StationCache holds the station list and refetches it once stale. When a
// refresh fails and an older list exists, the older list is served.
// Concurrent misses share one upstream fetch.
type StationCache struct {
	src     StationLister
	ttl     time.Duration
	nowFunc func() time.Time
	group   singleflight.Group

	mu        sync.Mutex
	stations  []smhi.Station
	fetchedAt time.Time
}

// NewStationCache returns an empty cache over src.
func NewStationCache(src StationLister, ttl time.Duration) *StationCache {
	if ttl <= 0 {
		ttl = DefaultStationTTL
	}
	return &StationCache{src: src, ttl: ttl, nowFunc: time.Now}
}

// Get returns the cached list, refreshing it when older than the TTL.
func (c *StationCache) Get(ctx context.Context) ([]smhi.Station, error) {
	if st, ok := c.fresh(); ok {
		metrics.CacheLookup("stations", true)
		return st, nil
	}
	metrics.CacheLookup("stations", false)

	v, err, _ := c.group.Do("stations", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]smhi.Station), nil
}

func (c *StationCache) fresh() ([]smhi.Station, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stations != nil && c.nowFunc().Sub(c.fetchedAt) < c.ttl {
		return c.stations, true
	}
	return nil, false
}

// refresh fetches without holding mu and swaps the snapshot afterwards.
func (c *StationCache) refresh(ctx context.Context) ([]smhi.Station, error) {
	now := c.nowFunc()
	st, err := c.src.Stations(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.stations != nil {
			zap.L().Warn("season: station refresh failed, serving stale list",
				zap.Duration("age", now.Sub(c.fetchedAt)),
				zap.Error(err),
			)
			return c.stations, nil
		}
		return nil, eris.Wrap(err, "season: fetch stations")
	}
	c.stations = st
	c.fetchedAt = now
	zap.L().Debug("season: refreshed station list", zap.Int("stations", len(st)))
	return st, nil
}

// Invalidate forces the next Get to refetch.
func (c *StationCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
}
