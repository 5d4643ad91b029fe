// Package geometry provides planar polygon operations on projected coordinates:
// shoelace area, ray-casting containment and interior sampling.
package geometry

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/standscan/internal/projection"
)

// MinVertices is the smallest vertex count of a usable polygon.
const MinVertices = 3

// ErrTooFewVertices is returned for polygons with fewer than MinVertices vertices.
var ErrTooFewVertices = eris.New("geometry: polygon needs at least 3 vertices")

// ErrCoordinateOutOfRange is returned for latitudes or longitudes outside WGS84 bounds.
var ErrCoordinateOutOfRange = eris.New("geometry: coordinate out of range")

// Polygon is an implicitly closed ring of projected vertices.
// Self-intersection is not checked; results for such rings follow the
// even-odd rule of the underlying algorithms.
type Polygon []projection.Projected

// FromGeographic validates a geographic ring and projects it onto SWEREF 99 TM.
func FromGeographic(ring []projection.Geographic) (Polygon, error) {
	if len(ring) < MinVertices {
		return nil, ErrTooFewVertices
	}
	for _, g := range ring {
		if g.Lat < -90 || g.Lat > 90 || g.Lon < -180 || g.Lon > 180 ||
			math.IsNaN(g.Lat) || math.IsNaN(g.Lon) {
			return nil, eris.Wrapf(ErrCoordinateOutOfRange, "lat=%v, lon=%v", g.Lat, g.Lon)
		}
	}
	return Polygon(projection.ForwardAll(ring)), nil
}

// Validate reports whether p has enough vertices.
func (p Polygon) Validate() error {
	if len(p) < MinVertices {
		return ErrTooFewVertices
	}
	return nil
}

// Area returns the absolute shoelace area of p in square meters.
func Area(p Polygon) float64 {
	n := len(p)
	if n < MinVertices {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return math.Abs(sum) / 2
}

// AreaHectares returns Area in hectares.
func AreaHectares(p Polygon) float64 {
	return Area(p) / 10000
}

// Contains reports whether pt is inside p using the ray-casting parity test.
// Points exactly on an edge may land on either side.
func Contains(p Polygon, pt projection.Projected) bool {
	inside := false
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		xi, yi := p[i].X, p[i].Y
		xj, yj := p[j].X, p[j].Y
		if (yi > pt.Y) != (yj > pt.Y) && pt.X < (xj-xi)*(pt.Y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// Centroid returns the mean of the vertices of p.
func Centroid(p Polygon) projection.Projected {
	if len(p) == 0 {
		return projection.Projected{}
	}
	var c projection.Projected
	for _, v := range p {
		c.X += v.X
		c.Y += v.Y
	}
	c.X /= float64(len(p))
	c.Y /= float64(len(p))
	return c
}

// ClosedRing returns the vertices of p as [x, y] pairs with the first vertex
// repeated at the end when the ring is not already closed.
func ClosedRing(p Polygon) [][2]float64 {
	ring := make([][2]float64, 0, len(p)+1)
	for _, v := range p {
		ring = append(ring, [2]float64{v.X, v.Y})
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// SamplePoints returns up to target interior points laid out on a regular grid.
//
// The grid spacing is sqrt(bboxArea/(target*3)). When the spacing is below
// one meter, or no grid point falls inside p, the bbox centre is returned.
// When more than target points fall inside, every (n/target)-th point is kept.
func SamplePoints(p Polygon, target int) []projection.Projected {
	if len(p) == 0 {
		return nil
	}
	if target < 1 {
		target = 1
	}
	box := BoundsOf(p)
	centre := []projection.Projected{box.Center()}

	spacing := math.Sqrt(box.Area() / float64(target*3))
	if spacing < 1 || math.IsNaN(spacing) {
		return centre
	}

	var pts []projection.Projected
	for x := box.MinX + spacing/2; x < box.MaxX; x += spacing {
		for y := box.MinY + spacing/2; y < box.MaxY; y += spacing {
			pt := projection.Projected{X: x, Y: y}
			if Contains(p, pt) {
				pts = append(pts, pt)
			}
		}
	}
	if len(pts) == 0 {
		return centre
	}
	if len(pts) <= target {
		return pts
	}

	step := float64(len(pts)) / float64(target)
	selected := make([]projection.Projected, target)
	for i := range selected {
		selected[i] = pts[int(math.Floor(float64(i)*step))]
	}
	return selected
}
