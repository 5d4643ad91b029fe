package volume

// DryMatterDensity converts slash volume to dry-matter tonnes.
const DryMatterDensity = 0.4

type sawlogBin struct {
	MinDiameter float64 // cm
	Fraction    float64
}

// Conifers reach sawlog dimensions at smaller diameters than broadleaves.
var sawlogBins = map[Category][]sawlogBin{
	Conifer: {
		{0, 0}, {12, 0.15}, {16, 0.35}, {20, 0.5}, {24, 0.6}, {28, 0.7},
	},
	Broadleaf: {
		{0, 0}, {20, 0.15}, {26, 0.3}, {32, 0.45},
	},
}

// SawlogFraction returns the sawlog share of underbark volume for a mean
// breast-height diameter in centimetres.
func SawlogFraction(c Category, diameterCm float64) float64 {
	var f float64
	for _, b := range sawlogBins[c] {
		if b.MinDiameter <= diameterCm {
			f = b.Fraction
		}
	}
	return f
}

// Sortiment is the assortment split of one species' standing volume.
type Sortiment struct {
	Underbark float64 `json:"underbark_m3fub"`
	Sawlog    float64 `json:"sawlog_m3fub"`
	Pulpwood  float64 `json:"pulpwood_m3fub"`
	Slash     float64 `json:"slash_tonnes"`
}

// Split divides totalVolume (m³sk) of a species into sawlog, pulpwood and slash.
func Split(p SpeciesParams, totalVolume, diameterCm float64) Sortiment {
	under := totalVolume * p.YieldRatio
	saw := under * SawlogFraction(p.Category, diameterCm)
	return Sortiment{
		Underbark: under,
		Sawlog:    saw,
		Pulpwood:  under - saw,
		Slash:     under * p.BiomassRatio * DryMatterDensity,
	}
}
