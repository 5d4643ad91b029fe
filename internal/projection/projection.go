// Package projection converts between WGS84 geographic coordinates and
// transverse Mercator grids using Krüger's series (Gauss conformal projection).
package projection

import "math"

// Geographic is a WGS84 position in decimal degrees.
type Geographic struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Projected is a position on a projected grid in meters. X is easting, Y is northing.
type Projected struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Grid holds the ellipsoid and grid constants of a transverse Mercator projection.
type Grid struct {
	Name            string
	EPSG            int
	SemiMajorAxis   float64
	Flattening      float64
	CentralMeridian float64 // degrees
	ScaleFactor     float64
	FalseEasting    float64
	FalseNorthing   float64
}

// SWEREF99TM is the Swedish national grid (EPSG:3006) on GRS80.
var SWEREF99TM = NewProjector(Grid{
	Name:            "SWEREF 99 TM",
	EPSG:            3006,
	SemiMajorAxis:   6378137.0,
	Flattening:      1 / 298.257222101,
	CentralMeridian: 15.0,
	ScaleFactor:     0.9996,
	FalseEasting:    500000.0,
	FalseNorthing:   0.0,
})

// Projector evaluates the forward and inverse series for one Grid.
// Coefficients are computed once; a Projector is safe for concurrent use.
type Projector struct {
	grid  Grid
	aRoof float64 // rectifying radius times scale

	// latitude series and conformal-to-grid series, forward
	a, b, c, d float64
	beta       [4]float64

	// the same, inverse
	aStar, bStar, cStar, dStar float64
	delta                      [4]float64
}

// NewProjector precomputes the series coefficients for grid.
func NewProjector(grid Grid) *Projector {
	f := grid.Flattening
	e2 := f * (2 - f)
	n := f / (2 - f)
	n2, n3, n4 := n*n, n*n*n, n*n*n*n
	e4, e6, e8 := e2*e2, e2*e2*e2, e2*e2*e2*e2

	p := &Projector{grid: grid}
	p.aRoof = grid.ScaleFactor * grid.SemiMajorAxis / (1 + n) * (1 + n2/4 + n4/64)

	p.a = e2
	p.b = (5*e4 - e6) / 6
	p.c = (104*e6 - 45*e8) / 120
	p.d = 1237 * e8 / 1260

	p.beta = [4]float64{
		n/2 - 2*n2/3 + 5*n3/16 + 41*n4/180,
		13*n2/48 - 3*n3/5 + 557*n4/1440,
		61*n3/240 - 103*n4/140,
		49561 * n4 / 161280,
	}

	p.aStar = e2 + e4 + e6 + e8
	p.bStar = -(7*e4 + 17*e6 + 30*e8) / 6
	p.cStar = (224*e6 + 889*e8) / 120
	p.dStar = -(4279 * e8) / 1260

	p.delta = [4]float64{
		n/2 - 2*n2/3 + 37*n3/96 - n4/360,
		n2/48 + n3/15 - 437*n4/1440,
		17*n3/480 - 37*n4/840,
		4397 * n4 / 161280,
	}
	return p
}

// Grid returns the grid constants of p.
func (p *Projector) Grid() Grid { return p.grid }

// Forward projects a geographic position onto the grid.
func (p *Projector) Forward(g Geographic) Projected {
	phi := toRad(g.Lat)
	dLambda := toRad(g.Lon - p.grid.CentralMeridian)

	s := math.Sin(phi)
	s2 := s * s
	phiStar := phi - s*math.Cos(phi)*(p.a+p.b*s2+p.c*s2*s2+p.d*s2*s2*s2)

	xiP := math.Atan2(math.Tan(phiStar), math.Cos(dLambda))
	etaP := math.Atanh(math.Cos(phiStar) * math.Sin(dLambda))

	northing, easting := xiP, etaP
	for i, beta := range p.beta {
		k := float64(2 * (i + 1))
		northing += beta * math.Sin(k*xiP) * math.Cosh(k*etaP)
		easting += beta * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}

	return Projected{
		X: p.aRoof*easting + p.grid.FalseEasting,
		Y: p.aRoof*northing + p.grid.FalseNorthing,
	}
}

// Inverse converts a grid position back to geographic coordinates.
func (p *Projector) Inverse(pt Projected) Geographic {
	xi := (pt.Y - p.grid.FalseNorthing) / p.aRoof
	eta := (pt.X - p.grid.FalseEasting) / p.aRoof

	xiP, etaP := xi, eta
	for i, delta := range p.delta {
		k := float64(2 * (i + 1))
		xiP -= delta * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= delta * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	phiStar := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	dLambda := math.Atan2(math.Sinh(etaP), math.Cos(xiP))

	s := math.Sin(phiStar)
	s2 := s * s
	phi := phiStar + s*math.Cos(phiStar)*(p.aStar+p.bStar*s2+p.cStar*s2*s2+p.dStar*s2*s2*s2)

	return Geographic{
		Lat: toDeg(phi),
		Lon: p.grid.CentralMeridian + toDeg(dLambda),
	}
}

// Forward projects g onto SWEREF 99 TM.
func Forward(g Geographic) Projected { return SWEREF99TM.Forward(g) }

// Inverse converts a SWEREF 99 TM position to WGS84.
func Inverse(pt Projected) Geographic { return SWEREF99TM.Inverse(pt) }

// ForwardAll projects every point of a geographic ring.
func ForwardAll(pts []Geographic) []Projected {
	out := make([]Projected, len(pts))
	for i, g := range pts {
		out[i] = Forward(g)
	}
	return out
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
