package imageserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

// BandStatistics are the zonal statistics of one band.
type BandStatistics struct {
	Min               float64 `json:"min"`
	Max               float64 `json:"max"`
	Mean              float64 `json:"mean"`
	StandardDeviation float64 `json:"standardDeviation"`
	Count             float64 `json:"count"`
}

// Histogram is the bucketed pixel count of one band over [Min, Max].
type Histogram struct {
	Size   int       `json:"size"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Counts []float64 `json:"counts"`
}

// StatisticsResponse is the result of computeStatisticsHistograms.
type StatisticsResponse struct {
	Statistics []BandStatistics `json:"statistics"`
	Histograms []Histogram      `json:"histograms"`
}

// StatisticsOptions are the optional query parameters.
type StatisticsOptions struct {
	// SpatialReference of the ring; zero means SwerefWKID.
	SpatialReference int
	RenderingRule    *RenderingRule
}

// ComputeStatisticsHistograms requests zonal statistics over a closed polygon
// ring. The ring is sent as a form POST to avoid URL length limits.
func (c *Client) ComputeStatisticsHistograms(ctx context.Context, ring [][2]float64, opts StatisticsOptions) (*StatisticsResponse, error) {
	if len(ring) < 4 {
		return nil, eris.New("imageserver: ring must be closed with at least 3 vertices")
	}
	geometry, err := json.Marshal(map[string]any{"rings": [][][2]float64{ring}})
	if err != nil {
		return nil, eris.Wrap(err, "imageserver: encode geometry")
	}
	sr := opts.SpatialReference
	if sr == 0 {
		sr = SwerefWKID
	}

	form := url.Values{
		"geometry":     {string(geometry)},
		"geometryType": {"esriGeometryPolygon"},
		"geometrySR":   {strconv.Itoa(sr)},
		"f":            {"json"},
	}
	rule, err := opts.RenderingRule.Encode()
	if err != nil {
		return nil, err
	}
	if rule != "" {
		form.Set("renderingRule", rule)
	}

	const op = "computeStatisticsHistograms"
	req, err := c.newRequest(ctx, http.MethodPost, op, form)
	if err != nil {
		return nil, err
	}
	body, _, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	var out StatisticsResponse
	if err := c.decodeJSON(body, op, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
