package geometry

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/standscan/internal/projection"
)

// ErrNoStands is returned when an input file holds no polygon geometry.
var ErrNoStands = eris.New("geometry: no polygon stands in input")

// Stand is one named forest stand boundary in WGS84.
type Stand struct {
	ID       string                  `json:"id,omitempty"`
	Name     string                  `json:"name,omitempty"`
	Boundary []projection.Geographic `json:"polygon"`
}

// Polygon projects the stand boundary onto SWEREF 99 TM.
func (s Stand) Polygon() (Polygon, error) {
	return FromGeographic(s.Boundary)
}

// standsFromGeom converts a go-geom Polygon or MultiPolygon into boundaries.
// Only outer rings are kept; holes are ignored.
func standsFromGeom(g geom.T) [][]projection.Geographic {
	switch v := g.(type) {
	case *geom.Polygon:
		if v.NumLinearRings() == 0 {
			return nil
		}
		return [][]projection.Geographic{ringToGeographic(v.LinearRing(0).Coords())}
	case *geom.MultiPolygon:
		var out [][]projection.Geographic
		for i := 0; i < v.NumPolygons(); i++ {
			out = append(out, standsFromGeom(v.Polygon(i))...)
		}
		return out
	default:
		return nil
	}
}

// ringToGeographic drops the closing vertex and converts coordinates to
// WGS84. Rings whose coordinates exceed geographic magnitudes are taken to
// be SWEREF 99 TM already and are inverse-projected.
func ringToGeographic(coords []geom.Coord) []projection.Geographic {
	if n := len(coords); n > 1 && coords[0].Equal(geom.XY, coords[n-1]) {
		coords = coords[:n-1]
	}
	projected := false
	for _, c := range coords {
		if math.Abs(c.X()) > 180 || math.Abs(c.Y()) > 90 {
			projected = true
			break
		}
	}
	out := make([]projection.Geographic, len(coords))
	for i, c := range coords {
		if projected {
			out[i] = projection.Inverse(projection.Projected{X: c.X(), Y: c.Y()})
			continue
		}
		out[i] = projection.Geographic{Lat: c.Y(), Lon: c.X()}
	}
	return out
}
