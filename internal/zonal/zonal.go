// Package zonal fetches zonal raster statistics for a stand polygon and
// converts class histograms into fractional distributions.
package zonal

import (
	"context"

	"github.com/sells-group/standscan/internal/geometry"
)

// Source identifiers of the raster services.
const (
	SourceThinning = "thinning" // laser source with the thinning-index raster function
	SourceSpecies  = "species"  // per-species volume map
	SourceMoisture = "moisture" // soil moisture classes 1-5
	SourceSlope    = "slope"    // terrain slope in degrees
)

// Band holds the zonal statistics of one band.
type Band struct {
	Mean  float64 `json:"mean"`
	Count float64 `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Histogram is a bucketed pixel count spanning [Min, Max].
type Histogram struct {
	Counts []float64 `json:"counts"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
}

// Statistics are the per-band results of one zonal query.
type Statistics struct {
	Bands      []Band      `json:"bands"`
	Histograms []Histogram `json:"histograms"`
}

// Band returns band i, or false when the response has fewer bands.
func (s *Statistics) Band(i int) (Band, bool) {
	if s == nil || i < 0 || i >= len(s.Bands) {
		return Band{}, false
	}
	return s.Bands[i], true
}

// Histogram returns the histogram of band i, or false when absent.
func (s *Statistics) Histogram(i int) (Histogram, bool) {
	if s == nil || i < 0 || i >= len(s.Histograms) || len(s.Histograms[i].Counts) == 0 {
		return Histogram{}, false
	}
	return s.Histograms[i], true
}

// Source computes zonal statistics of a named raster source over a polygon.
type Source interface {
	FetchZonalStatistics(ctx context.Context, polygon geometry.Polygon, sourceID string) (*Statistics, error)
}

// PointSource samples all bands of a raster source at one projected point.
type PointSource interface {
	FetchPointValues(ctx context.Context, x, y float64, sourceID string) ([]float64, error)
}
