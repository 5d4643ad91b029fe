package geometry

import (
	"math"

	"github.com/sells-group/standscan/internal/projection"
)

// BBox is an axis-aligned bounding box in projected meters.
type BBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// BoundsOf returns the bounding box of p. An empty polygon yields an inverted box.
func BoundsOf(p Polygon) BBox {
	b := BBox{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, v := range p {
		b.MinX = math.Min(b.MinX, v.X)
		b.MinY = math.Min(b.MinY, v.Y)
		b.MaxX = math.Max(b.MaxX, v.X)
		b.MaxY = math.Max(b.MaxY, v.Y)
	}
	return b
}

// Around returns a square box of half-width d centred on pt.
func Around(pt projection.Projected, d float64) BBox {
	return BBox{MinX: pt.X - d, MinY: pt.Y - d, MaxX: pt.X + d, MaxY: pt.Y + d}
}

// Width returns the east-west extent.
func (b BBox) Width() float64 { return b.MaxX - b.MinX }

// Height returns the north-south extent.
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

// Area returns Width*Height, or 0 for an empty box.
func (b BBox) Area() float64 {
	if b.Empty() {
		return 0
	}
	return b.Width() * b.Height()
}

// Empty reports whether the box has no positive extent.
func (b BBox) Empty() bool {
	return !(b.MaxX > b.MinX) || !(b.MaxY > b.MinY)
}

// Center returns the midpoint of the box.
func (b BBox) Center() projection.Projected {
	return projection.Projected{X: (b.MinX + b.MaxX) / 2, Y: (b.MinY + b.MaxY) / 2}
}
