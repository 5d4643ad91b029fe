package geometry

import (
	"fmt"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ReadShapefile reads polygon records from a shapefile, one Stand per outer
// ring. A NAME, NAMN or AVDELNING attribute, when present, becomes the stand name.
func ReadShapefile(path string) ([]Stand, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geometry: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := -1
	for i, f := range reader.Fields() {
		switch strings.ToLower(strings.TrimRight(f.String(), "\x00")) {
		case "name", "namn", "avdelning":
			nameIdx = i
		}
	}

	var stands []Stand
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		name := ""
		if nameIdx >= 0 {
			name = strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		}
		for _, ring := range standsFromGeom(shapeToPolygon(poly)) {
			stands = append(stands, Stand{ID: fmt.Sprintf("%d", n+1), Name: name, Boundary: ring})
		}
	}

	if skipped > 0 {
		zap.L().Debug("geometry: skipped non-polygon shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	if len(stands) == 0 {
		return nil, ErrNoStands
	}
	return stands, nil
}

// shapeToPolygon keeps the first part of a shapefile polygon as the outer ring.
func shapeToPolygon(p *shp.Polygon) geom.T {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}
	end := int32(len(p.Points))
	if p.NumParts > 1 {
		end = p.Parts[1]
	}
	flat := make([]float64, 0, 2*(end-p.Parts[0]))
	for j := p.Parts[0]; j < end; j++ {
		flat = append(flat, p.Points[j].X, p.Points[j].Y)
	}
	poly := geom.NewPolygon(geom.XY)
	if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
		zap.L().Debug("geometry: skipping malformed polygon ring", zap.Error(err))
		return nil
	}
	return poly
}
