package imageserver

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// IdentifyResult is the pixel identify answer for one point.
type IdentifyResult struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// BandValues parses Value into one number per band. NoData bands become NaN.
// A bare "NoData" value yields an empty slice.
func (r *IdentifyResult) BandValues() []float64 {
	v := strings.TrimSpace(r.Value)
	if v == "" || strings.EqualFold(v, "NoData") {
		return nil
	}
	fields := strings.FieldsFunc(v, func(c rune) bool { return c == ',' || c == ' ' })
	out := make([]float64, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			n = math.NaN()
		}
		out[i] = n
	}
	return out
}

// Identify returns the pixel values at (x, y) in the SWEREF 99 TM grid.
func (c *Client) Identify(ctx context.Context, x, y float64) (*IdentifyResult, error) {
	geometry, err := json.Marshal(map[string]float64{"x": math.Round(x), "y": math.Round(y)})
	if err != nil {
		return nil, eris.Wrap(err, "imageserver: encode point")
	}
	form := url.Values{
		"geometry":           {string(geometry)},
		"geometryType":       {"esriGeometryPoint"},
		"geometrySR":         {strconv.Itoa(SwerefWKID)},
		"returnGeometry":     {"false"},
		"returnCatalogItems": {"false"},
		"f":                  {"json"},
	}

	const op = "identify"
	req, err := c.newRequest(ctx, http.MethodGet, op, form)
	if err != nil {
		return nil, err
	}
	body, _, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	var out IdentifyResult
	if err := c.decodeJSON(body, op, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
