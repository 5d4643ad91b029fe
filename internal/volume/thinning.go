package volume

import (
	"math"
	"sort"

	"github.com/sells-group/standscan/internal/zonal"
)

// ThinningClass is a class of the thinning-index raster.
type ThinningClass string

// Thinning-index classes in raster order.
const (
	ThinningLow    ThinningClass = "low"
	ThinningMedium ThinningClass = "medium"
	ThinningHigh   ThinningClass = "high"
	ThinningAcute  ThinningClass = "acute"
)

var thinningClasses = [4]ThinningClass{ThinningLow, ThinningMedium, ThinningHigh, ThinningAcute}

// ThinningNeedThreshold is the high+acute share above which thinning is due.
const ThinningNeedThreshold = 0.3

// DefaultSiteIndex is the site-index template used when none is configured.
const DefaultSiteIndex = "g16-g22"

// Thinning summarises the thinning index over a stand.
type Thinning struct {
	Needed       bool                      `json:"needed"`
	Dominant     ThinningClass             `json:"dominant"`
	Distribution map[ThinningClass]float64 `json:"distribution"`
	Pixels       float64                   `json:"pixels"`
	SiteIndex    string                    `json:"site_index"`
	BasalArea    float64                   `json:"basal_area_m2_ha"`
	StemsPerHa   int                       `json:"stems_per_ha"`
	TargetBasal  *float64                  `json:"target_basal_area_m2_ha,omitempty"`
}

// Target basal area after thinning by mean height, as [height m, m²/ha].
var thinningTemplates = map[string][][2]float64{
	"g16-g22": {{8, 12}, {10, 14}, {12, 16}, {14, 18}, {16, 19}, {18, 20}, {20, 21}, {25, 23}},
	"g23-g28": {{8, 14}, {10, 16}, {12, 18}, {14, 20}, {16, 22}, {18, 23}, {20, 24}, {25, 26}},
	"g29-g34": {{8, 16}, {10, 18}, {12, 20}, {14, 22}, {16, 24}, {18, 25}, {20, 26}, {25, 28}},
	"g35-g40": {{8, 18}, {10, 20}, {12, 22}, {14, 24}, {16, 26}, {18, 27}, {20, 28}, {25, 30}},
	"t14-t17": {{8, 10}, {10, 12}, {12, 14}, {14, 15}, {16, 16}, {18, 17}, {20, 18}, {25, 19}},
	"t18-t21": {{8, 12}, {10, 14}, {12, 16}, {14, 17}, {16, 18}, {18, 19}, {20, 20}, {25, 21}},
	"t22-t25": {{8, 14}, {10, 16}, {12, 18}, {14, 19}, {16, 20}, {18, 21}, {20, 22}, {25, 23}},
	"t26-t30": {{8, 16}, {10, 18}, {12, 20}, {14, 21}, {16, 22}, {18, 23}, {20, 24}, {25, 25}},
}

// SiteIndexes returns the known site-index templates, sorted.
func SiteIndexes() []string {
	out := make([]string, 0, len(thinningTemplates))
	for k := range thinningTemplates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// TargetBasalArea interpolates the template for siteIndex at heightM. It
// returns false below 8 m or for an unknown template. Heights past the
// table end get the last value.
func TargetBasalArea(siteIndex string, heightM float64) (float64, bool) {
	pts, ok := thinningTemplates[siteIndex]
	if !ok || heightM < 8 {
		return 0, false
	}
	for i := 0; i < len(pts)-1; i++ {
		h1, g1 := pts[i][0], pts[i][1]
		h2, g2 := pts[i+1][0], pts[i+1][1]
		if heightM >= h1 && heightM <= h2 {
			return g1 + (g2-g1)*(heightM-h1)/(h2-h1), true
		}
	}
	return pts[len(pts)-1][1], true
}

// StemsPerHectare derives stem density from basal area (m²/ha) and mean
// diameter (cm).
func StemsPerHectare(basalArea, diameterCm float64) int {
	d := diameterCm / 100
	if d <= 0 {
		return 0
	}
	return int(math.Round(basalArea / (math.Pi / 4 * d * d)))
}

// AssessThinning reads the thinning-index histogram, where bucket i counts
// pixels of class i. It returns nil when no pixel falls in classes 0-3.
func AssessThinning(h zonal.Histogram, siteIndex string, basalArea, diameterCm, heightM float64) *Thinning {
	var counts [4]float64
	for i := range counts {
		if i < len(h.Counts) {
			counts[i] = h.Counts[i]
		}
	}
	total := counts[0] + counts[1] + counts[2] + counts[3]
	if total <= 0 {
		return nil
	}

	t := &Thinning{
		Distribution: make(map[ThinningClass]float64, 4),
		Pixels:       total,
		SiteIndex:    siteIndex,
		BasalArea:    basalArea,
		StemsPerHa:   StemsPerHectare(basalArea, diameterCm),
	}
	// Ties go to the more urgent class.
	best := -1.0
	for i := len(counts) - 1; i >= 0; i-- {
		t.Distribution[thinningClasses[i]] = counts[i] / total
		if counts[i] > best {
			best = counts[i]
			t.Dominant = thinningClasses[i]
		}
	}
	t.Needed = t.Distribution[ThinningHigh]+t.Distribution[ThinningAcute] > ThinningNeedThreshold
	if t.Needed {
		if g, ok := TargetBasalArea(siteIndex, heightM); ok {
			t.TargetBasal = &g
		}
	}
	return t
}
