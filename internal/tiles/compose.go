// Package tiles renders trafficability map tiles by fusing a moisture class
// raster with a slope class raster.
package tiles

import (
	"image"
	"image/color"
	"math"

	"github.com/sells-group/standscan/internal/trafficability"
)

// Slope classes as encoded by the slope rendering rule.
const (
	SlopeMissing  = 0
	SlopeFlat     = 1 // below 20°
	SlopeModerate = 2 // 20-25°
	SlopeSteep    = 3 // above 25°
)

// classSlopes are representative slopes per slope class.
var classSlopes = [4]float64{SlopeMissing: 10, SlopeFlat: 10, SlopeModerate: 22, SlopeSteep: 30}

// Tile colours.
var (
	Red         = color.NRGBA{R: 220, A: 140}
	OpenWater   = color.NRGBA{R: 220, A: 180}
	Yellow      = color.NRGBA{R: 220, G: 180, A: 140}
	Green       = color.NRGBA{G: 180, A: 140}
	Transparent = color.NRGBA{}
)

var (
	dryOrFresh = []trafficability.MoistureClass{trafficability.MoistureDry, trafficability.MoistureFresh}
	missing    = []trafficability.MoistureClass{trafficability.MoistureMissing}
)

// Rules classifies one pixel. Moisture is the decoded moisture class and
// the slope is the representative slope of the pixel's slope class.
var Rules = &trafficability.RuleSet{
	Fallback: trafficability.Red,
	Rules: []trafficability.Rule{
		{Name: "steep", SlopeAbove: 25, Outcome: trafficability.Red},
		{Name: "open-water", Moisture: []trafficability.MoistureClass{trafficability.MoistureWet}, Outcome: trafficability.Red},
		{Name: "wet", Moisture: []trafficability.MoistureClass{trafficability.MoistureMoist}, Outcome: trafficability.Red},
		{Name: "fresh-moist-flat", Moisture: []trafficability.MoistureClass{trafficability.MoistureFreshMoist}, SlopeBelow: 20, Outcome: trafficability.Yellow},
		{Name: "fresh-moist", Moisture: []trafficability.MoistureClass{trafficability.MoistureFreshMoist}, Outcome: trafficability.Red},
		{Name: "dry-flat", Moisture: dryOrFresh, SlopeBelow: 20, Outcome: trafficability.Green},
		{Name: "dry", Moisture: dryOrFresh, Outcome: trafficability.Yellow},
		{Name: "slope-only-flat", Moisture: missing, SlopeBelow: 20, Outcome: trafficability.Green},
		{Name: "slope-only", Moisture: missing, Outcome: trafficability.Yellow},
	},
}

// ruleColors override the outcome colour for specific rules.
var ruleColors = map[string]color.NRGBA{"open-water": OpenWater}

var outcomeColors = map[trafficability.Outcome]color.NRGBA{
	trafficability.Green:  Green,
	trafficability.Yellow: Yellow,
	trafficability.Red:    Red,
}

// DecodeClass reads a colormap-encoded class (R = 10·class) from c.
// Class 0 means no data: transparent pixels and opaque pixels with R below
// half a class step both decode to it.
func DecodeClass(c color.Color) int {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if n.A == 0 || n.R < 5 {
		return 0
	}
	return int(math.Round(float64(n.R) / 10))
}

// Classify returns the colour of a pixel with the given classes.
func Classify(moisture, slope int) color.NRGBA {
	if moisture == 0 && slope == SlopeMissing {
		return Transparent
	}
	if moisture < 0 || moisture > int(trafficability.MoistureWet) {
		moisture = 0
	}
	if slope < 0 || slope >= len(classSlopes) {
		slope = SlopeMissing
	}
	cell := trafficability.Cell{
		Soil:     trafficability.SoilUnknown,
		Moisture: trafficability.MoistureClass(moisture),
		Slope:    classSlopes[slope],
	}
	r, ok := Rules.Match(cell)
	if !ok {
		return outcomeColors[Rules.Fallback]
	}
	if c, ok := ruleColors[r.Name]; ok {
		return c
	}
	return outcomeColors[r.Outcome]
}

// Compose fuses moisture and slope into a width×height image, sampling both
// inputs nearest-neighbour onto the output grid. Either input may be nil.
func Compose(moisture, slope image.Image, width, height int) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			m := DecodeClass(sample(moisture, x, y, width, height))
			s := DecodeClass(sample(slope, x, y, width, height))
			out.SetNRGBA(x, y, Classify(m, s))
		}
	}
	return out
}

// sample returns the pixel of img nearest to output pixel (x, y).
func sample(img image.Image, x, y, width, height int) color.Color {
	if img == nil {
		return Transparent
	}
	b := img.Bounds()
	sx := b.Min.X + (2*x+1)*b.Dx()/(2*width)
	sy := b.Min.Y + (2*y+1)*b.Dy()/(2*height)
	if sx >= b.Max.X {
		sx = b.Max.X - 1
	}
	if sy >= b.Max.Y {
		sy = b.Max.Y - 1
	}
	return img.At(sx, sy)
}
