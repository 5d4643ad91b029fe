package volume

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/standscan/internal/zonal"
)

// Raw raster scales.
const (
	VolumeScale   = 100 // raw volume per m³sk/ha
	DiameterScale = 10  // raw diameter per cm
	HeightScale   = 10  // raw height per m
)

// Band layout of the species statistics.
const (
	BandVolume    = 0
	BandHeight    = 1
	BandBasalArea = 2
	BandDiameter  = 3
	ExpectedBands = 12
)

const (
	// MinAreaHectares is the smallest stand that is estimated.
	MinAreaHectares = 0.01
	// MaterialityThreshold drops species below this volume per hectare.
	MaterialityThreshold = 0.1
	// HarvestedThreshold flags stands below this volume per hectare as recently harvested.
	HarvestedThreshold = 15
)

// ErrAreaTooSmall is returned for stands smaller than MinAreaHectares.
var ErrAreaTooSmall = eris.New("volume: polygon area below 0.01 ha")

// Species is the estimated volume of one tree species in a stand.
type Species struct {
	Key              string   `json:"key"`
	Name             string   `json:"name"`
	Category         Category `json:"category"`
	VolumePerHectare float64  `json:"volume_per_ha"` // m³sk/ha
	TotalVolume      float64  `json:"total_volume"`  // m³sk
	ShareOfTotal     float64  `json:"share_of_total"`
	SawlogVolume     float64  `json:"sawlog_volume"`   // m³fub
	PulpwoodVolume   float64  `json:"pulpwood_volume"` // m³fub
	SlashMass        float64  `json:"slash_mass"`      // tonnes dry matter
}

// Stand holds the stand-level attributes read from the statistics bands.
type Stand struct {
	VolumePerHa    float64 `json:"volume_per_ha"`
	MeanHeightM    float64 `json:"mean_height_m"`
	BasalArea      float64 `json:"basal_area_m2_ha"`
	MeanDiameterCm float64 `json:"mean_diameter_cm"`
}

// StandFromStatistics decodes the stand bands. ok is false when the response
// has fewer than ExpectedBands bands or no valid volume pixels.
func StandFromStatistics(s *zonal.Statistics) (Stand, bool) {
	if s == nil || len(s.Bands) < ExpectedBands {
		return Stand{}, false
	}
	vol, _ := s.Band(BandVolume)
	if vol.Count <= 0 {
		return Stand{}, false
	}
	h, _ := s.Band(BandHeight)
	ba, _ := s.Band(BandBasalArea)
	d, _ := s.Band(BandDiameter)
	return Stand{
		VolumePerHa:    vol.Mean / VolumeScale,
		MeanHeightM:    h.Mean / HeightScale,
		BasalArea:      ba.Mean,
		MeanDiameterCm: d.Mean / DiameterScale,
	}, true
}

// EstimateSpecies converts per-species volumes per hectare, given in table
// order and already scaled to m³sk/ha, into the stand breakdown. Shares are
// relative to volumePerHa and zero when it is zero. Species below
// MaterialityThreshold are dropped; the rest are sorted by total volume,
// largest first.
func EstimateSpecies(table *Table, areaHa, volumePerHa, diameterCm float64, perHa []float64) []Species {
	out := make([]Species, 0, len(table.Species))
	for i, p := range table.Species {
		if i >= len(perHa) {
			break
		}
		v := perHa[i]
		if v < MaterialityThreshold {
			continue
		}
		total := v * areaHa
		var share float64
		if volumePerHa > 0 {
			share = v / volumePerHa
		}
		split := Split(p, total, diameterCm)
		out = append(out, Species{
			Key:              p.Key,
			Name:             p.Name,
			Category:         p.Category,
			VolumePerHectare: v,
			TotalVolume:      total,
			ShareOfTotal:     share,
			SawlogVolume:     split.Sawlog,
			PulpwoodVolume:   split.Pulpwood,
			SlashMass:        split.Slash,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalVolume > out[j].TotalVolume })
	return out
}

// speciesFromBands reads the species bands of s, scaled to m³sk/ha, in table
// order. ok is false when a band is missing or every species is zero.
func speciesFromBands(table *Table, s *zonal.Statistics) ([]float64, bool) {
	vals := make([]float64, len(table.Species))
	var found bool
	for i, p := range table.Species {
		b, ok := s.Band(p.Band)
		if !ok {
			return nil, false
		}
		vals[i] = max(0, b.Mean/VolumeScale)
		found = found || vals[i] > 0
	}
	return vals, found
}

// speciesFromValues reads species values from raw band values sampled at a point.
func speciesFromValues(table *Table, raw []float64) ([]float64, bool) {
	if len(raw) < ExpectedBands || len(raw) <= table.MaxBand() {
		return nil, false
	}
	vals := make([]float64, len(table.Species))
	var found bool
	for i, p := range table.Species {
		v := raw[p.Band]
		if math.IsNaN(v) || v < 0 {
			v = 0
		}
		vals[i] = v / VolumeScale
		found = found || vals[i] > 0
	}
	return vals, found
}
