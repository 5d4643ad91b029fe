package volume

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/standscan/internal/geometry"
	"github.com/sells-group/standscan/internal/metrics"
	"github.com/sells-group/standscan/internal/raster"
	"github.com/sells-group/standscan/internal/zonal"
)

// Policy selects where per-species volumes come from.
type Policy string

// Species source policies.
const (
	PolicyRemote   Policy = "remote"   // species bands of the zonal statistics
	PolicyIdentify Policy = "identify" // pixel identify at the centroid
	PolicyRaster   Policy = "raster"   // local per-species rasters
	PolicyAuto     Policy = "auto"     // remote, then raster, then identify
)

// SourceNone marks a result without a species breakdown.
const SourceNone = "none"

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyRemote, PolicyIdentify, PolicyRaster, PolicyAuto:
		return p, nil
	case "":
		return PolicyAuto, nil
	default:
		return "", eris.Errorf("volume: unknown species source policy %q", s)
	}
}

// Status of an estimate.
type Status string

// Result statuses.
const (
	StatusDone   Status = "done"
	StatusNoData Status = "no_data"
)

// Result is the volume breakdown of one stand.
type Result struct {
	ID               string    `json:"id"`
	Status           Status    `json:"status"`
	AreaHa           float64   `json:"area_ha"`
	VolumePerHa      float64   `json:"volume_per_ha"`
	TotalVolume      float64   `json:"total_volume"`
	MeanDiameterCm   float64   `json:"mean_diameter_cm"`
	MeanHeightM      float64   `json:"mean_height_m"`
	BasalArea        float64   `json:"basal_area_m2_ha"`
	Species          []Species `json:"species"`
	SpeciesSource    string    `json:"species_source,omitempty"`
	HarvestedWarning bool      `json:"harvested_warning"`
	Thinning         *Thinning `json:"thinning,omitempty"`
}

// RasterExtractor averages local per-species rasters over a polygon.
type RasterExtractor interface {
	Extract(ctx context.Context, polygon geometry.Polygon, files []string) (*raster.Extraction, error)
}

// Service estimates stand volume from zonal statistics.
type Service struct {
	source    zonal.Source
	points    zonal.PointSource
	extractor RasterExtractor
	table     *Table
	policy    Policy
	thinning  bool
	siteIndex string
}

// Option configures a Service.
type Option func(*Service)

// WithTable sets the species parameter table.
func WithTable(t *Table) Option {
	return func(s *Service) {
		if t != nil {
			s.table = t
		}
	}
}

// WithPolicy sets the species source policy.
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithPointSource enables the centroid identify source.
func WithPointSource(ps zonal.PointSource) Option {
	return func(s *Service) { s.points = ps }
}

// WithExtractor enables the local raster source.
func WithExtractor(e RasterExtractor) Option {
	return func(s *Service) { s.extractor = e }
}

// WithThinning enables the thinning assessment using the given site-index template.
func WithThinning(siteIndex string) Option {
	return func(s *Service) {
		s.thinning = true
		if siteIndex != "" {
			s.siteIndex = siteIndex
		}
	}
}

// NewService returns a Service reading stand statistics from source.
func NewService(source zonal.Source, opts ...Option) *Service {
	s := &Service{
		source:    source,
		table:     DefaultTable(),
		policy:    PolicyAuto,
		siteIndex: DefaultSiteIndex,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Table returns the species table in use.
func (s *Service) Table() *Table { return s.table }

// Estimate computes the volume breakdown of polygon. Validation failures and
// a failed stand-statistics query are errors; a stand outside data coverage
// is a StatusNoData result carrying the area.
func (s *Service) Estimate(ctx context.Context, polygon geometry.Polygon) (*Result, error) {
	start := time.Now()
	if err := polygon.Validate(); err != nil {
		return nil, err
	}
	area := geometry.AreaHectares(polygon)
	if area < MinAreaHectares {
		return nil, eris.Wrapf(ErrAreaTooSmall, "area %.4f ha", area)
	}
	res := &Result{ID: uuid.NewString(), AreaHa: area, Species: []Species{}}
	log := zap.L().With(zap.String("analysis_id", res.ID))

	var (
		base       *zonal.Statistics
		baseErr    error
		thin       *zonal.Statistics
		extraction *raster.Extraction
		pointVals  []float64
	)
	var g errgroup.Group
	g.Go(func() error {
		base, baseErr = s.source.FetchZonalStatistics(ctx, polygon, zonal.SourceSpecies)
		return nil
	})
	if s.thinning {
		g.Go(func() error {
			var err error
			if thin, err = s.source.FetchZonalStatistics(ctx, polygon, zonal.SourceThinning); err != nil {
				log.Warn("volume: thinning statistics unavailable", zap.Error(err))
			}
			return nil
		})
	}
	if s.uses(PolicyRaster) && s.extractor != nil {
		g.Go(func() error {
			var err error
			if extraction, err = s.extractor.Extract(ctx, polygon, s.table.Files()); err != nil {
				log.Warn("volume: raster extraction failed", zap.Error(err))
			}
			return nil
		})
	}
	if s.uses(PolicyIdentify) && s.points != nil {
		g.Go(func() error {
			c := geometry.Centroid(polygon)
			var err error
			if pointVals, err = s.points.FetchPointValues(ctx, c.X, c.Y, zonal.SourceSpecies); err != nil {
				log.Warn("volume: species identify failed", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if baseErr != nil {
		metrics.ObserveAnalysis("volume", "error", start)
		return nil, eris.Wrap(baseErr, "volume: stand statistics")
	}
	stand, ok := StandFromStatistics(base)
	if !ok {
		res.Status = StatusNoData
		log.Info("volume: no data for stand", zap.Float64("area_ha", area))
		metrics.ObserveAnalysis("volume", string(StatusNoData), start)
		return res, nil
	}

	res.Status = StatusDone
	res.VolumePerHa = stand.VolumePerHa
	res.TotalVolume = stand.VolumePerHa * area
	res.MeanDiameterCm = stand.MeanDiameterCm
	res.MeanHeightM = stand.MeanHeightM
	res.BasalArea = stand.BasalArea
	res.HarvestedWarning = stand.VolumePerHa < HarvestedThreshold

	perHa, src := s.pickSpecies(log, base, extraction, pointVals)
	res.SpeciesSource = src
	if perHa != nil {
		res.Species = EstimateSpecies(s.table, area, stand.VolumePerHa, stand.MeanDiameterCm, perHa)
	}
	if h, ok := thin.Histogram(0); ok {
		res.Thinning = AssessThinning(h, s.siteIndex, stand.BasalArea, stand.MeanDiameterCm, stand.MeanHeightM)
	}

	log.Info("volume: estimated stand",
		zap.Float64("area_ha", area),
		zap.Float64("volume_per_ha", res.VolumePerHa),
		zap.Int("species", len(res.Species)),
		zap.String("species_source", src),
		zap.Duration("elapsed", time.Since(start)),
	)
	metrics.ObserveAnalysis("volume", string(StatusDone), start)
	return res, nil
}

// uses reports whether the policy may consult source p.
func (s *Service) uses(p Policy) bool {
	return s.policy == p || s.policy == PolicyAuto
}

func (s *Service) pickSpecies(log *zap.Logger, base *zonal.Statistics, ext *raster.Extraction, point []float64) ([]float64, string) {
	var order []Policy
	switch s.policy {
	case PolicyAuto:
		order = []Policy{PolicyRemote, PolicyRaster, PolicyIdentify}
	default:
		order = []Policy{s.policy}
	}
	for _, p := range order {
		var (
			vals []float64
			ok   bool
		)
		switch p {
		case PolicyRemote:
			vals, ok = speciesFromBands(s.table, base)
		case PolicyRaster:
			vals, ok = s.speciesFromExtraction(ext)
		case PolicyIdentify:
			vals, ok = speciesFromValues(s.table, point)
		}
		if ok {
			return vals, string(p)
		}
		if s.policy == PolicyAuto {
			log.Info("volume: species source unusable, falling back", zap.String("source", string(p)))
		}
	}
	return nil, SourceNone
}

func (s *Service) speciesFromExtraction(ext *raster.Extraction) ([]float64, bool) {
	if ext == nil || ext.InsideCount == 0 || len(ext.Values) < len(s.table.Species) {
		return nil, false
	}
	vals := make([]float64, len(s.table.Species))
	var found bool
	for i, fm := range ext.Values[:len(vals)] {
		vals[i] = max(0, fm.Mean/VolumeScale)
		found = found || vals[i] > 0
	}
	return vals, found
}
