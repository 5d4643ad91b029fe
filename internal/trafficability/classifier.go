// Package trafficability classifies how well a forest stand bears heavy
// forestry machines, fusing soil moisture, terrain slope and soil type.
package trafficability

import (
	"math"
	"sort"

	"github.com/sells-group/standscan/internal/season"
	"github.com/sells-group/standscan/internal/zonal"
)

const (
	minWeight        = 0.001 // combinations below this weight are skipped
	defaultMeanSlope = 10.0  // used when the slope service returns no band
)

// MoistureDistribution holds fractions of the five moisture classes,
// indexed by class-1 (dry, fresh, fresh-moist, moist, wet/open water).
type MoistureDistribution [5]float64

// fallbackMoisture is used when the moisture histogram is empty.
var fallbackMoisture = []float64{0, 1, 0, 0, 0}

// Fraction returns the share of class c.
func (m MoistureDistribution) Fraction(c MoistureClass) float64 {
	if c < MoistureDry || c > MoistureWet {
		return 0
	}
	return m[c-MoistureDry]
}

// MoistureFromStatistics converts the moisture histogram to a distribution.
func MoistureFromStatistics(s *zonal.Statistics) MoistureDistribution {
	var out MoistureDistribution
	h, ok := s.Histogram(0)
	if !ok {
		copy(out[:], fallbackMoisture)
		return out
	}
	copy(out[:], h.ClassDistribution(int(MoistureDry), int(MoistureWet), fallbackMoisture))
	return out
}

// Slope ranges: below 15°, 15-20°, 20-25° and above 25°.
var (
	slopeUpper           = []float64{15, 20, 25}
	slopeBounds          = [4]float64{15, 20, 25, 90}
	RepresentativeSlopes = [4]float64{10, 17, 22, 30}
)

// SlopeDistribution holds slope range fractions and the mean slope.
type SlopeDistribution struct {
	Ranges [4]float64 `json:"ranges"`
	Mean   float64    `json:"mean"`
}

// SlopeFromStatistics converts slope statistics to a distribution. Without
// a histogram the whole stand is placed in the range containing the mean.
func SlopeFromStatistics(s *zonal.Statistics) SlopeDistribution {
	out := SlopeDistribution{Mean: defaultMeanSlope}
	if b, ok := s.Band(0); ok {
		out.Mean = b.Mean
	}

	h, ok := s.Histogram(0)
	if !ok {
		idx := len(slopeBounds) - 1
		for i, bound := range slopeBounds {
			if out.Mean < bound {
				idx = i
				break
			}
		}
		out.Ranges[idx] = 1
		return out
	}
	fr, ok := h.RangeDistribution(slopeUpper)
	if !ok {
		out.Ranges[0] = 1
		return out
	}
	copy(out.Ranges[:], fr)
	return out
}

// SoilShare is the share of sampled points of one soil class.
type SoilShare struct {
	Class SoilClass `json:"class"`
	Name  string    `json:"name"`
	Share float64   `json:"share"`
}

// SoilDistributionOf counts sampled classes. Shares are sorted descending;
// the dominant class is the most common, ties going to the earlier class in
// SoilClasses. No samples yield SoilUnknown with an empty distribution.
func SoilDistributionOf(samples []SoilClass) ([]SoilShare, SoilClass) {
	counts := make(map[SoilClass]int, len(SoilClasses))
	for _, c := range samples {
		counts[c]++
	}
	dominant, best := SoilUnknown, 0
	var shares []SoilShare
	for _, c := range SoilClasses {
		n := counts[c]
		if n == 0 {
			continue
		}
		if n > best {
			dominant, best = c, n
		}
		shares = append(shares, SoilShare{Class: c, Name: c.DisplayName(), Share: float64(n) / float64(len(samples))})
	}
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].Share > shares[j].Share })
	return shares, dominant
}

// Split is the green/yellow/red share of a stand; the shares sum to 1.
type Split struct {
	Green  float64 `json:"green"`
	Yellow float64 `json:"yellow"`
	Red    float64 `json:"red"`
}

func (s *Split) add(o Outcome, w float64) {
	switch o {
	case Green:
		s.Green += w
	case Yellow:
		s.Yellow += w
	default:
		s.Red += w
	}
}

// Classify weighs every (soil, moisture, slope range) combination by the
// product of its shares, evaluates it at the representative slope of the
// range and renormalises. When nothing carries weight the stand is red.
func Classify(rules *RuleSet, soils []SoilShare, m MoistureDistribution, s SlopeDistribution) Split {
	var out Split
	for _, soil := range soils {
		for mi, mw := range m {
			if mw < minWeight {
				continue
			}
			for si, sw := range s.Ranges {
				if sw < minWeight {
					continue
				}
				c := Cell{Soil: soil.Class, Moisture: MoistureClass(mi + 1), Slope: RepresentativeSlopes[si]}
				out.add(rules.Evaluate(c), soil.Share*mw*sw)
			}
		}
	}
	sum := out.Green + out.Yellow + out.Red
	if sum <= 0 {
		return Split{Red: 1}
	}
	return Split{Green: out.Green / sum, Yellow: out.Yellow / sum, Red: out.Red / sum}
}

// WithSeason adjusts the split for current ground conditions: in dry
// conditions yellow ground bears like green, in wet conditions like red.
func (s Split) WithSeason(c season.Category) Split {
	switch c {
	case season.Dry:
		return Split{Green: s.Green + s.Yellow, Red: s.Red}
	case season.Wet:
		return Split{Green: s.Green, Red: s.Yellow + s.Red}
	default:
		return s
	}
}

// Assessment is the overall driving recommendation.
type Assessment string

// Assessments.
const (
	AssessDrive Assessment = "drive"
	AssessPlan  Assessment = "plan"
	AssessAvoid Assessment = "avoid"
)

// AssessmentOf recommends drive above 70 % green, plan from 40 %, else avoid.
func AssessmentOf(s Split) Assessment {
	switch {
	case s.Green > 0.7:
		return AssessDrive
	case s.Green >= 0.4:
		return AssessPlan
	default:
		return AssessAvoid
	}
}

// Forwarder load constants.
const (
	ForwarderLoadM3    = 13.0
	ExtractedShare     = 0.8
	BaseRoadLoadLimit  = 30
	BaseRoadRiskyShare = 0.4
)

// ForwarderLoads estimates forwarder trips for a stand of totalVolume m³sk.
func ForwarderLoads(totalVolume float64) int {
	if totalVolume <= 0 {
		return 0
	}
	return int(math.Ceil(totalVolume * ExtractedShare / ForwarderLoadM3))
}

// BaseRoadWarning reports whether traffic is heavy enough on weak ground
// that a base road should be laid.
func BaseRoadWarning(loads int, s Split) bool {
	return loads > BaseRoadLoadLimit && s.Yellow+s.Red > BaseRoadRiskyShare
}
