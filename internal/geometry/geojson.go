package geometry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// DecodeGeoJSON reads a GeoJSON Polygon, MultiPolygon, Feature or
// FeatureCollection and returns one Stand per outer ring.
func DecodeGeoJSON(data []byte) ([]Stand, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, eris.Wrap(err, "geometry: decode geojson")
	}

	var features []*geojson.Feature
	switch probe.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrap(err, "geometry: decode feature collection")
		}
		features = fc.Features
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrap(err, "geometry: decode feature")
		}
		features = []*geojson.Feature{&f}
	case "Polygon", "MultiPolygon":
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrap(err, "geometry: decode geometry")
		}
		features = []*geojson.Feature{{Geometry: g}}
	default:
		return nil, eris.Errorf("geometry: unsupported geojson type %q", probe.Type)
	}

	var stands []Stand
	for i, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		rings := standsFromGeom(f.Geometry)
		for j, ring := range rings {
			s := Stand{ID: f.ID, Name: featureName(f.Properties), Boundary: ring}
			if s.ID == "" {
				s.ID = fmt.Sprintf("%d", i+1)
			}
			if len(rings) > 1 {
				s.ID = fmt.Sprintf("%s.%d", s.ID, j+1)
			}
			stands = append(stands, s)
		}
	}
	if len(stands) == 0 {
		return nil, ErrNoStands
	}
	return stands, nil
}

func featureName(props map[string]any) string {
	for k, v := range props {
		switch strings.ToLower(k) {
		case "name", "namn", "avdelning":
			if s, ok := v.(string); ok {
				return s
			}
			return fmt.Sprint(v)
		}
	}
	return ""
}
