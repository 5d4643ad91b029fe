// Package sgu queries the Geological Survey of Sweden soil-type WMS for the
// free-text soil description at a point.
package sgu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"golang.org/x/time/rate"

	"github.com/sells-group/standscan/internal/resilience"
)

const (
	// DefaultURL is the SGU soil WMS endpoint.
	DefaultURL = "https://maps3.sgu.se/geoserver/jord/ows"
	// DefaultLayer is the 1:25 000 soil-type base layer.
	DefaultLayer = "SE.GOV.SGU.JORD.GRUNDLAGER.25K"
	// DefaultHalfWidth is half the side of the query box in meters.
	DefaultHalfWidth = 500.0

	serviceName = "sgu"
	imageSize   = 256
)

// ErrNoFeature is returned when no soil polygon covers the point.
var ErrNoFeature = eris.New("sgu: no soil feature at point")

// Client issues GetFeatureInfo requests against the soil WMS.
type Client struct {
	baseURL    string
	layer      string
	halfWidth  float64
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the WMS endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithLayer overrides the queried layer.
func WithLayer(layer string) Option {
	return func(c *Client) {
		if layer != "" {
			c.layer = layer
		}
	}
}

// WithHalfWidth sets half the side of the query box in meters.
func WithHalfWidth(d float64) Option {
	return func(c *Client) {
		if d > 0 {
			c.halfWidth = d
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		}
	}
}

// WithLimiter sets the rate limiter directly.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// New returns a client with defaults for the public SGU service.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultURL,
		layer:      DefaultLayer,
		halfWidth:  DefaultHalfWidth,
		userAgent:  "standscan/1.0",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SoilText returns the soil description of the first feature at the
// SWEREF 99 TM point (x easting, y northing). It reads the Jordart property,
// or else the first property whose name contains "jord".
func (c *Client) SoilText(ctx context.Context, x, y float64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "sgu: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+c.query(x, y).Encode(), nil)
	if err != nil {
		return "", eris.Wrap(err, "sgu: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", resilience.NewUpstreamError(serviceName, 0, eris.Wrap(err, "sgu: request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", resilience.NewUpstreamError(serviceName, resp.StatusCode,
			eris.Errorf("sgu: returned status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resilience.NewUpstreamError(serviceName, resp.StatusCode, eris.Wrap(err, "sgu: read body"))
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return "", resilience.NewUpstreamError(serviceName, resp.StatusCode, eris.Wrap(err, "sgu: parse feature collection"))
	}
	if len(fc.Features) == 0 || fc.Features[0] == nil {
		return "", ErrNoFeature
	}
	text, ok := soilProperty(fc.Features[0].Properties)
	if !ok {
		return "", ErrNoFeature
	}
	return text, nil
}

// query builds the WMS 1.3.0 parameters. With CRS EPSG:3006 the axis order
// is northing first, so BBOX is minY,minX,maxY,maxX.
func (c *Client) query(x, y float64) url.Values {
	d := c.halfWidth
	return url.Values{
		"SERVICE":      {"WMS"},
		"VERSION":      {"1.3.0"},
		"REQUEST":      {"GetFeatureInfo"},
		"LAYERS":       {c.layer},
		"QUERY_LAYERS": {c.layer},
		"CRS":          {"EPSG:3006"},
		"BBOX":         {strings.Join([]string{coord(y - d), coord(x - d), coord(y + d), coord(x + d)}, ",")},
		"WIDTH":        {fmt.Sprint(imageSize)},
		"HEIGHT":       {fmt.Sprint(imageSize)},
		"I":            {fmt.Sprint(imageSize / 2)},
		"J":            {fmt.Sprint(imageSize / 2)},
		"INFO_FORMAT":  {"application/json"},
	}
}

func coord(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func soilProperty(props map[string]any) (string, bool) {
	if v, ok := props["Jordart"]; ok && v != nil {
		return fmt.Sprint(v), true
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(strings.ToLower(k), "jord") && props[k] != nil {
			return fmt.Sprint(props[k]), true
		}
	}
	return "", false
}
