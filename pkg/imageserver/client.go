// Package imageserver is a client for the ArcGIS ImageServer REST API:
// zonal statistics with histograms, pixel identify and image export.
package imageserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/standscan/internal/resilience"
)

// SwerefWKID is the ArcGIS well-known id of SWEREF 99 TM.
const SwerefWKID = 3006

// WebMercatorWKID is the ArcGIS well-known id of Web Mercator.
const WebMercatorWKID = 3857

// Client talks to one ImageServer endpoint.
type Client struct {
	baseURL    string
	service    string
	user, pass string
	userAgent  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBasicAuth sends HTTP basic credentials on every request.
func WithBasicAuth(user, pass string) Option {
	return func(c *Client) {
		c.user = user
		c.pass = pass
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithServiceName sets the name used in UpstreamError values. Defaults to the
// last path element before /ImageServer.
func WithServiceName(name string) Option {
	return func(c *Client) {
		c.service = name
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New returns a client for the ImageServer at baseURL
// (".../arcgis/rest/services/<folder>/<name>/ImageServer").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		service:    serviceName(baseURL),
		userAgent:  "standscan/1.0",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service returns the service name reported in errors.
func (c *Client) Service() string { return c.service }

func serviceName(baseURL string) string {
	parts := strings.Split(strings.Trim(baseURL, "/"), "/")
	for i := len(parts) - 1; i > 0; i-- {
		if strings.EqualFold(parts[i], "ImageServer") {
			return parts[i-1]
		}
	}
	return "imageserver"
}

// RenderingRule is an ArcGIS raster function chain.
type RenderingRule struct {
	RasterFunction          string         `json:"rasterFunction"`
	RasterFunctionArguments map[string]any `json:"rasterFunctionArguments,omitempty"`
	VariableName            string         `json:"variableName,omitempty"`
}

// Encode returns the JSON form of r, or "" for a nil rule.
func (r *RenderingRule) Encode() (string, error) {
	if r == nil {
		return "", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", eris.Wrap(err, "imageserver: encode rendering rule")
	}
	return string(b), nil
}

// apiError is the error envelope ArcGIS returns, often with HTTP 200.
type apiError struct {
	Error *struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

func (c *Client) upstream(status int, err error) error {
	return resilience.NewUpstreamError(c.service, status, err)
}

func (c *Client) newRequest(ctx context.Context, method, op string, form url.Values) (*http.Request, error) {
	endpoint := c.baseURL + "/" + op
	var (
		req *http.Request
		err error
	)
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+form.Encode(), nil)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "imageserver: build %s request", op)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.user != "" || c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	return req, nil
}

// do executes req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request, op string) ([]byte, string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", c.upstream(0, eris.Wrapf(err, "imageserver: %s request", op))
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", c.upstream(resp.StatusCode, eris.Wrapf(err, "imageserver: %s read body", op))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, "", c.upstream(resp.StatusCode, eris.Errorf("imageserver: %s returned status %d: %s", op, resp.StatusCode, snippet))
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// decodeJSON unmarshals a JSON body into v after checking for an ArcGIS error envelope.
func (c *Client) decodeJSON(body []byte, op string, v any) error {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err != nil {
		return c.upstream(http.StatusOK, eris.Wrapf(err, "imageserver: %s parse response", op))
	}
	if ae.Error != nil {
		return c.upstream(ae.Error.Code, eris.Errorf("imageserver: %s: %s", op, ae.Error.Message))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return c.upstream(http.StatusOK, eris.Wrapf(err, "imageserver: %s parse response", op))
	}
	return nil
}
