package trafficability

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/standscan/internal/geometry"
	"github.com/sells-group/standscan/internal/metrics"
	"github.com/sells-group/standscan/internal/projection"
	"github.com/sells-group/standscan/internal/season"
	"github.com/sells-group/standscan/internal/zonal"
)

// Service defaults.
const (
	DefaultSamplePoints    = 12
	DefaultSoilConcurrency = 4
)

// SeasonSource resolves the seasonal ground conditions at a location.
type SeasonSource interface {
	Context(ctx context.Context, g projection.Geographic) (*season.Context, error)
}

// Options are per-request inputs to Analyze.
type Options struct {
	// TotalVolume of the stand in m³sk; enables the forwarder estimate.
	TotalVolume float64
	// Season overrides the looked-up seasonal category when set.
	Season season.Category
}

// Result is the trafficability classification of one stand.
type Result struct {
	ID string `json:"id"`
	Split
	Unadjusted        *Split               `json:"unadjusted,omitempty"`
	Assessment        Assessment           `json:"assessment"`
	DominantSoil      string               `json:"dominant_soil"`
	DominantSoilClass SoilClass            `json:"dominant_soil_class"`
	SoilDistribution  []SoilShare          `json:"soil_distribution"`
	Moisture          MoistureDistribution `json:"moisture"`
	SlopeRanges       [4]float64           `json:"slope_ranges"`
	MeanSlope         float64              `json:"mean_slope"`
	SeasonCategory    season.Category      `json:"season_category,omitempty"`
	Season            *season.Context      `json:"season,omitempty"`
	ForwarderLoads    int                  `json:"forwarder_loads,omitempty"`
	BaseRoadWarning   bool                 `json:"base_road_warning"`
	SamplePoints      int                  `json:"sample_points"`
}

// Service classifies stands from moisture and slope statistics and soil
// types sampled inside the polygon.
type Service struct {
	source      zonal.Source
	soil        SoilLookup
	season      SeasonSource
	rules       *RuleSet
	samples     int
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithSeason enables the seasonal adjustment.
func WithSeason(src SeasonSource) Option {
	return func(s *Service) { s.season = src }
}

// WithRules replaces the stand rule table.
func WithRules(rs *RuleSet) Option {
	return func(s *Service) {
		if rs != nil {
			s.rules = rs
		}
	}
}

// WithSamplePoints sets the number of soil sample points.
func WithSamplePoints(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.samples = n
		}
	}
}

// WithSoilConcurrency bounds concurrent soil lookups.
func WithSoilConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService returns a Service over the given statistics and soil sources.
func NewService(source zonal.Source, soil SoilLookup, opts ...Option) *Service {
	s := &Service{
		source:      source,
		soil:        soil,
		rules:       StandRules,
		samples:     DefaultSamplePoints,
		concurrency: DefaultSoilConcurrency,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Analyze classifies polygon. A failed moisture or slope query is an error.
// Failed soil lookups count as unknown soil and a failed season lookup skips
// the seasonal adjustment.
func (s *Service) Analyze(ctx context.Context, polygon geometry.Polygon, opts Options) (*Result, error) {
	start := time.Now()
	if err := polygon.Validate(); err != nil {
		return nil, err
	}
	res := &Result{ID: uuid.NewString()}
	log := zap.L().With(zap.String("analysis_id", res.ID))

	points := geometry.SamplePoints(polygon, s.samples)
	soils := make([]SoilClass, len(points))
	var (
		moisture, slope       *zonal.Statistics
		moistureErr, slopeErr error
		seasonCtx             *season.Context
	)

	var g errgroup.Group
	g.Go(func() error {
		moisture, moistureErr = s.source.FetchZonalStatistics(ctx, polygon, zonal.SourceMoisture)
		return nil
	})
	g.Go(func() error {
		slope, slopeErr = s.source.FetchZonalStatistics(ctx, polygon, zonal.SourceSlope)
		return nil
	})
	if s.season != nil && opts.Season == "" {
		g.Go(func() error {
			at := projection.Inverse(geometry.Centroid(polygon))
			var err error
			if seasonCtx, err = s.season.Context(ctx, at); err != nil {
				log.Warn("trafficability: season unavailable", zap.Error(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		s.lookupSoils(ctx, log, points, soils)
		return nil
	})
	_ = g.Wait()

	if moistureErr != nil {
		metrics.ObserveAnalysis("trafficability", "error", start)
		return nil, eris.Wrap(moistureErr, "trafficability: moisture statistics")
	}
	if slopeErr != nil {
		metrics.ObserveAnalysis("trafficability", "error", start)
		return nil, eris.Wrap(slopeErr, "trafficability: slope statistics")
	}

	m := MoistureFromStatistics(moisture)
	sl := SlopeFromStatistics(slope)
	shares, dominant := SoilDistributionOf(soils)
	split := Classify(s.rules, shares, m, sl)

	res.Split = split
	res.Moisture = m
	res.SlopeRanges = sl.Ranges
	res.MeanSlope = math.Round(sl.Mean*10) / 10
	res.SoilDistribution = shares
	res.DominantSoilClass = dominant
	res.DominantSoil = dominant.DisplayName()
	res.SamplePoints = len(points)

	res.SeasonCategory = opts.Season
	if seasonCtx != nil {
		res.Season = seasonCtx
		res.SeasonCategory = seasonCtx.Category
	}
	if res.SeasonCategory != "" && res.SeasonCategory != season.Normal {
		unadjusted := split
		res.Unadjusted = &unadjusted
		res.Split = split.WithSeason(res.SeasonCategory)
	}
	res.Assessment = AssessmentOf(res.Split)

	if opts.TotalVolume > 0 {
		res.ForwarderLoads = ForwarderLoads(opts.TotalVolume)
		res.BaseRoadWarning = BaseRoadWarning(res.ForwarderLoads, res.Split)
	}

	log.Info("trafficability: classified stand",
		zap.Float64("green", res.Green),
		zap.Float64("yellow", res.Yellow),
		zap.Float64("red", res.Red),
		zap.String("dominant_soil", dominant.String()),
		zap.String("season", string(res.SeasonCategory)),
		zap.Duration("elapsed", time.Since(start)),
	)
	metrics.ObserveAnalysis("trafficability", "done", start)
	return res, nil
}

// lookupSoils fills out[i] with the soil class at points[i].
func (s *Service) lookupSoils(ctx context.Context, log *zap.Logger, points []projection.Projected, out []SoilClass) {
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, pt := range points {
		g.Go(func() error {
			class, err := s.soil.SoilAt(ctx, pt)
			if err != nil {
				log.Debug("trafficability: soil lookup failed",
					zap.Float64("x", pt.X), zap.Float64("y", pt.Y), zap.Error(err))
				class = SoilUnknown
			}
			out[i] = class
			return nil
		})
	}
	_ = g.Wait()
}
