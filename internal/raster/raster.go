// Package raster reads bounded pixel windows from co-registered single-band
// rasters and averages the pixels inside a stand polygon.
package raster

import (
	"math"
	"path/filepath"

	"github.com/sells-group/standscan/internal/geometry"
)

// Grid is the georeference shared by co-registered rasters. ResY is negative
// for north-up images.
type Grid struct {
	OriginX   float64 `json:"origin_x"`
	OriginY   float64 `json:"origin_y"`
	ResX      float64 `json:"res_x"`
	ResY      float64 `json:"res_y"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	NoData    float64 `json:"nodata"`
	HasNoData bool    `json:"has_nodata"`
}

// Window is a pixel rectangle [X0, X0+W) x [Y0, Y0+H).
type Window struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	W  int `json:"w"`
	H  int `json:"h"`
}

// Empty reports whether the window covers no pixels.
func (w Window) Empty() bool { return w.W <= 0 || w.H <= 0 }

// Raster is an open single-band raster.
type Raster interface {
	Grid() Grid
	// ReadWindow returns the band-0 samples of w in row-major order.
	ReadWindow(w Window) ([]float64, error)
	Close() error
}

// Opener opens a raster by file name.
type Opener interface {
	Open(name string) (Raster, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(name string) (Raster, error)

// Open implements Opener.
func (f OpenerFunc) Open(name string) (Raster, error) { return f(name) }

// DirOpener opens GeoTIFF files relative to Dir.
type DirOpener struct {
	Dir string
}

// Open implements Opener.
func (d DirOpener) Open(name string) (Raster, error) {
	return OpenGeoTIFF(filepath.Join(d.Dir, name))
}

// WindowFor returns the pixel window covering b, clamped to the grid. A box
// entirely outside the grid yields an empty window.
func (g Grid) WindowFor(b geometry.BBox) Window {
	if g.ResX == 0 || g.ResY == 0 {
		return Window{}
	}
	col0 := int(math.Floor((b.MinX - g.OriginX) / g.ResX))
	col1 := int(math.Ceil((b.MaxX - g.OriginX) / g.ResX))
	row0 := int(math.Floor((b.MaxY - g.OriginY) / g.ResY))
	row1 := int(math.Ceil((b.MinY - g.OriginY) / g.ResY))

	x0, x1 := clamp(col0, 0, g.Width), clamp(col1, 0, g.Width)
	y0, y1 := clamp(row0, 0, g.Height), clamp(row1, 0, g.Height)
	return Window{X0: x0, Y0: y0, W: x1 - x0, H: y1 - y0}
}

// PixelCenter returns the projected centre of pixel (col, row).
func (g Grid) PixelCenter(col, row int) (x, y float64) {
	return g.OriginX + (float64(col)+0.5)*g.ResX, g.OriginY + (float64(row)+0.5)*g.ResY
}

// SameAs reports whether two grids are co-registered.
func (g Grid) SameAs(o Grid) bool {
	return g.OriginX == o.OriginX && g.OriginY == o.OriginY &&
		g.ResX == o.ResX && g.ResY == o.ResY &&
		g.Width == o.Width && g.Height == o.Height
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
