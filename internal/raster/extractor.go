package raster

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/standscan/internal/geometry"
	"github.com/sells-group/standscan/internal/projection"
)

// FileMean is the polygon mean of one raster file.
type FileMean struct {
	File       string  `json:"file"`
	Mean       float64 `json:"mean"`
	PixelCount int     `json:"pixel_count"`
	Err        error   `json:"-"`
}

// Extraction is the result of one windowed read over a set of files.
// InsideCount == 0 means the polygon covered no pixel centre; Values is then empty.
type Extraction struct {
	Grid        Grid       `json:"grid"`
	Window      Window     `json:"window"`
	InsideCount int        `json:"inside_count"`
	Values      []FileMean `json:"values"`
}

// Extractor averages co-registered rasters over stand polygons.
type Extractor struct {
	handles *HandleCache
}

// NewExtractor returns an extractor reading through handles.
func NewExtractor(handles *HandleCache) *Extractor {
	return &Extractor{handles: handles}
}

// Extract reads the window covering polygon from every file and averages the
// pixels whose centres lie inside it, skipping nodata and negative values.
// The grid is taken from files[0]. A file that fails to read yields a zero
// entry carrying its error; only a failure of the reference file fails the call.
func (e *Extractor) Extract(ctx context.Context, polygon geometry.Polygon, files []string) (*Extraction, error) {
	if err := polygon.Validate(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, eris.New("raster: no files to extract")
	}
	start := time.Now()

	ref, err := e.handles.Get(files[0])
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open reference %s", files[0])
	}
	grid := ref.Grid()
	win := grid.WindowFor(geometry.BoundsOf(polygon))
	out := &Extraction{Grid: grid, Window: win}
	if win.Empty() {
		zap.L().Debug("raster: polygon outside raster extent", zap.String("file", files[0]))
		return out, nil
	}

	mask := make([]bool, win.W*win.H)
	for row := 0; row < win.H; row++ {
		for col := 0; col < win.W; col++ {
			x, y := grid.PixelCenter(win.X0+col, win.Y0+row)
			if geometry.Contains(polygon, projection.Projected{X: x, Y: y}) {
				mask[row*win.W+col] = true
				out.InsideCount++
			}
		}
	}
	if out.InsideCount == 0 {
		return out, nil
	}

	out.Values = make([]FileMean, len(files))
	var g errgroup.Group
	for i, name := range files {
		g.Go(func() error {
			out.Values[i] = e.meanOf(name, grid, win, mask)
			if fe := out.Values[i].Err; fe != nil {
				zap.L().Warn("raster: species file read failed",
					zap.String("file", name),
					zap.Error(fe),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Debug("raster: extracted window",
		zap.Int("files", len(files)),
		zap.Int("window_w", win.W),
		zap.Int("window_h", win.H),
		zap.Int("inside", out.InsideCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func (e *Extractor) meanOf(name string, grid Grid, win Window, mask []bool) FileMean {
	fm := FileMean{File: name}
	r, err := e.handles.Get(name)
	if err != nil {
		fm.Err = err
		return fm
	}
	if !r.Grid().SameAs(grid) {
		fm.Err = eris.Errorf("raster: %s is not co-registered with the reference grid", name)
		return fm
	}
	data, err := r.ReadWindow(win)
	if err != nil {
		fm.Err = err
		return fm
	}

	nodata, hasNoData := r.Grid().NoData, r.Grid().HasNoData
	var sum float64
	for i, inside := range mask {
		if !inside || i >= len(data) {
			continue
		}
		v := data[i]
		if (hasNoData && v == nodata) || v < 0 || math.IsNaN(v) {
			continue
		}
		sum += v
		fm.PixelCount++
	}
	if fm.PixelCount > 0 {
		fm.Mean = sum / float64(fm.PixelCount)
	}
	return fm
}
