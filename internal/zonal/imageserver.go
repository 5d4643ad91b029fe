package zonal

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/standscan/internal/geometry"
	"github.com/sells-group/standscan/internal/metrics"
	"github.com/sells-group/standscan/internal/resilience"
	"github.com/sells-group/standscan/pkg/imageserver"
)

// Endpoint binds a source id to an ImageServer and an optional raster function.
type Endpoint struct {
	Client        *imageserver.Client
	RenderingRule *imageserver.RenderingRule
}

// ImageServerSource implements Source and PointSource over ArcGIS ImageServers.
type ImageServerSource struct {
	endpoints map[string]Endpoint
	breakers  *resilience.Breakers
}

// NewImageServerSource returns a source serving the given endpoints. breakers
// may be nil, in which case calls are never short-circuited.
func NewImageServerSource(endpoints map[string]Endpoint, breakers *resilience.Breakers) *ImageServerSource {
	return &ImageServerSource{endpoints: endpoints, breakers: breakers}
}

func (s *ImageServerSource) endpoint(sourceID string) (Endpoint, error) {
	ep, ok := s.endpoints[sourceID]
	if !ok || ep.Client == nil {
		return Endpoint{}, eris.Errorf("zonal: unknown source %q", sourceID)
	}
	return ep, nil
}

// FetchZonalStatistics implements Source.
func (s *ImageServerSource) FetchZonalStatistics(ctx context.Context, polygon geometry.Polygon, sourceID string) (*Statistics, error) {
	if err := polygon.Validate(); err != nil {
		return nil, err
	}
	ep, err := s.endpoint(sourceID)
	if err != nil {
		return nil, err
	}

	service := ep.Client.Service()
	start := time.Now()
	resp, err := resilience.Call(ctx, s.breakers.Get(service), func(ctx context.Context) (*imageserver.StatisticsResponse, error) {
		return ep.Client.ComputeStatisticsHistograms(ctx, geometry.ClosedRing(polygon), imageserver.StatisticsOptions{
			RenderingRule: ep.RenderingRule,
		})
	})
	metrics.ObserveUpstream(service, start, err)
	if err != nil {
		return nil, eris.Wrapf(err, "zonal: fetch %s statistics", sourceID)
	}

	zap.L().Debug("zonal: fetched statistics",
		zap.String("source", sourceID),
		zap.Int("bands", len(resp.Statistics)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return fromResponse(resp), nil
}

// FetchPointValues implements PointSource using pixel identify.
func (s *ImageServerSource) FetchPointValues(ctx context.Context, x, y float64, sourceID string) ([]float64, error) {
	ep, err := s.endpoint(sourceID)
	if err != nil {
		return nil, err
	}
	service := ep.Client.Service()
	start := time.Now()
	res, err := resilience.Call(ctx, s.breakers.Get(service), func(ctx context.Context) (*imageserver.IdentifyResult, error) {
		return ep.Client.Identify(ctx, x, y)
	})
	metrics.ObserveUpstream(service, start, err)
	if err != nil {
		return nil, eris.Wrapf(err, "zonal: identify %s", sourceID)
	}
	return res.BandValues(), nil
}

func fromResponse(resp *imageserver.StatisticsResponse) *Statistics {
	out := &Statistics{
		Bands:      make([]Band, len(resp.Statistics)),
		Histograms: make([]Histogram, len(resp.Histograms)),
	}
	for i, b := range resp.Statistics {
		out.Bands[i] = Band{Mean: b.Mean, Count: b.Count, Min: b.Min, Max: b.Max}
	}
	for i, h := range resp.Histograms {
		out.Histograms[i] = Histogram{Counts: h.Counts, Min: h.Min, Max: h.Max}
	}
	return out
}
