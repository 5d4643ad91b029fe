// Package smhi reads precipitation observations and point forecasts from the
// SMHI open data APIs.
package smhi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/standscan/internal/resilience"
)

const (
	// DefaultObservationsURL is the metobs API root.
	DefaultObservationsURL = "https://opendata-download-metobs.smhi.se/api/version/1.0"
	// DefaultForecastURL is the pmp3g point forecast API root.
	DefaultForecastURL = "https://opendata-download-metfcst.smhi.se/api/category/pmp3g/version/2"

	// precipitationParameter is daily precipitation in mm.
	precipitationParameter = 5

	serviceObs      = "smhi-obs"
	serviceForecast = "smhi-forecast"
)

// Station is a weather station reporting precipitation.
type Station struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Active    bool    `json:"active"`
}

// Observation is one precipitation value for the period ending at To.
type Observation struct {
	Value float64
	To    time.Time
}

// ForecastStep is the mean precipitation of one forecast step.
type ForecastStep struct {
	ValidTime     time.Time
	Precipitation float64
}

// Client talks to the SMHI observation and forecast APIs.
type Client struct {
	obsURL      string
	forecastURL string
	httpClient  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithObservationsURL overrides the metobs API root.
func WithObservationsURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.obsURL = strings.TrimRight(u, "/")
		}
	}
}

// WithForecastURL overrides the forecast API root.
func WithForecastURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.forecastURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New returns a client for the public SMHI endpoints.
func New(opts ...Option) *Client {
	c := &Client{
		obsURL:      DefaultObservationsURL,
		forecastURL: DefaultForecastURL,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) getJSON(ctx context.Context, service, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "smhi: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return resilience.NewUpstreamError(service, 0, eris.Wrap(err, "smhi: request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return resilience.NewUpstreamError(service, resp.StatusCode,
			eris.Errorf("smhi: %s returned status %d", url, resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.NewUpstreamError(service, resp.StatusCode, eris.Wrap(err, "smhi: read body"))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return resilience.NewUpstreamError(service, resp.StatusCode, eris.Wrap(err, "smhi: parse response"))
	}
	return nil
}

// Stations lists every station of the precipitation parameter, active or not.
func (c *Client) Stations(ctx context.Context) ([]Station, error) {
	var body struct {
		Station []Station `json:"station"`
	}
	url := fmt.Sprintf("%s/parameter/%d.json", c.obsURL, precipitationParameter)
	if err := c.getJSON(ctx, serviceObs, url, &body); err != nil {
		return nil, err
	}
	return body.Station, nil
}

// Precipitation returns the latest months of daily precipitation at a station.
// Values that do not parse as numbers are skipped.
func (c *Client) Precipitation(ctx context.Context, stationID int) ([]Observation, error) {
	var body struct {
		Value []struct {
			Value string `json:"value"`
			To    int64  `json:"to"`
		} `json:"value"`
	}
	url := fmt.Sprintf("%s/parameter/%d/station/%d/period/latest-months/data.json", c.obsURL, precipitationParameter, stationID)
	if err := c.getJSON(ctx, serviceObs, url, &body); err != nil {
		return nil, err
	}
	out := make([]Observation, 0, len(body.Value))
	for _, v := range body.Value {
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64)
		if err != nil {
			continue
		}
		out = append(out, Observation{Value: f, To: time.UnixMilli(v.To)})
	}
	return out, nil
}

// Forecast returns the pmean precipitation series of the point forecast.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) ([]ForecastStep, error) {
	var body struct {
		TimeSeries []struct {
			ValidTime  time.Time `json:"validTime"`
			Parameters []struct {
				Name   string    `json:"name"`
				Values []float64 `json:"values"`
			} `json:"parameters"`
		} `json:"timeSeries"`
	}
	url := fmt.Sprintf("%s/geotype/point/lon/%.4f/lat/%.4f/data.json", c.forecastURL, lon, lat)
	if err := c.getJSON(ctx, serviceForecast, url, &body); err != nil {
		return nil, err
	}
	out := make([]ForecastStep, 0, len(body.TimeSeries))
	for _, ts := range body.TimeSeries {
		step := ForecastStep{ValidTime: ts.ValidTime}
		for _, p := range ts.Parameters {
			if p.Name == "pmean" && len(p.Values) > 0 {
				step.Precipitation = p.Values[0]
			}
		}
		out = append(out, step)
	}
	return out, nil
}
