package trafficability

import "slices"

// Outcome is the ground-bearing risk of one cell.
type Outcome int

// Outcomes.
const (
	Green Outcome = iota
	Yellow
	Red
)

func (o Outcome) String() string {
	switch o {
	case Green:
		return "green"
	case Yellow:
		return "yellow"
	default:
		return "red"
	}
}

// MoistureClass is a soil moisture class from the moisture raster.
type MoistureClass int

// Moisture classes. MoistureMissing marks a pixel without moisture data.
const (
	MoistureMissing MoistureClass = iota
	MoistureDry
	MoistureFresh
	MoistureFreshMoist
	MoistureMoist
	MoistureWet
)

// Cell is one combination evaluated against a RuleSet.
type Cell struct {
	Soil     SoilClass
	Moisture MoistureClass
	Slope    float64 // degrees
}

// Rule matches a cell when every non-empty condition holds. A nil Soils or
// Moisture matches any value; a zero SlopeBelow or SlopeAbove is unbounded.
type Rule struct {
	Name       string
	Soils      []SoilClass
	Moisture   []MoistureClass
	SlopeBelow float64
	SlopeAbove float64
	Outcome    Outcome
}

// Matches reports whether c satisfies r.
func (r Rule) Matches(c Cell) bool {
	if r.Soils != nil && !slices.Contains(r.Soils, c.Soil) {
		return false
	}
	if r.Moisture != nil && !slices.Contains(r.Moisture, c.Moisture) {
		return false
	}
	if r.SlopeBelow != 0 && !(c.Slope < r.SlopeBelow) {
		return false
	}
	if r.SlopeAbove != 0 && !(c.Slope > r.SlopeAbove) {
		return false
	}
	return true
}

// RuleSet is an ordered rule table; the first matching rule wins.
type RuleSet struct {
	Rules    []Rule
	Fallback Outcome
}

// Match returns the first rule matching c.
func (rs *RuleSet) Match(c Cell) (Rule, bool) {
	for _, r := range rs.Rules {
		if r.Matches(c) {
			return r, true
		}
	}
	return Rule{}, false
}

// Evaluate returns the outcome of the first matching rule, or Fallback.
func (rs *RuleSet) Evaluate(c Cell) Outcome {
	if r, ok := rs.Match(c); ok {
		return r.Outcome
	}
	return rs.Fallback
}

var (
	mineral    = []SoilClass{SoilBedrock, SoilTill, SoilSand}
	dryOrFresh = []MoistureClass{MoistureDry, MoistureFresh}
)

// StandRules classifies a (soil, moisture, slope) combination of a stand.
var StandRules = &RuleSet{
	Fallback: Red,
	Rules: []Rule{
		{Name: "peat", Soils: []SoilClass{SoilPeat}, Outcome: Red},
		{Name: "steep", SlopeAbove: 25, Outcome: Red},
		{Name: "wet", Moisture: []MoistureClass{MoistureWet}, Outcome: Red},

		{Name: "moist-mineral-flat", Moisture: []MoistureClass{MoistureMoist}, Soils: mineral, SlopeBelow: 15, Outcome: Yellow},
		{Name: "moist", Moisture: []MoistureClass{MoistureMoist}, Outcome: Red},

		{Name: "fresh-moist-mineral", Moisture: []MoistureClass{MoistureFreshMoist}, Soils: mineral, SlopeBelow: 20, Outcome: Green},
		{Name: "fresh-moist-clay-flat", Moisture: []MoistureClass{MoistureFreshMoist}, Soils: []SoilClass{SoilClay}, SlopeBelow: 15, Outcome: Yellow},
		{Name: "fresh-moist", Moisture: []MoistureClass{MoistureFreshMoist}, Outcome: Yellow},

		{Name: "dry-mineral", Moisture: dryOrFresh, Soils: mineral, SlopeBelow: 20, Outcome: Green},
		{Name: "dry-mineral-sloped", Moisture: dryOrFresh, Soils: mineral, Outcome: Yellow},
		{Name: "dry-clay-flat", Moisture: dryOrFresh, Soils: []SoilClass{SoilClay}, SlopeBelow: 15, Outcome: Yellow},
		{Name: "dry-clay", Moisture: dryOrFresh, Soils: []SoilClass{SoilClay}, Outcome: Red},
		{Name: "dry-unknown-flat", Moisture: dryOrFresh, Soils: []SoilClass{SoilUnknown}, SlopeBelow: 15, Outcome: Yellow},
		{Name: "dry-unknown", Moisture: dryOrFresh, Soils: []SoilClass{SoilUnknown}, Outcome: Green},
	},
}
