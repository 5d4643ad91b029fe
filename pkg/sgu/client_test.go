package sgu

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/standscan/internal/resilience"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(WithBaseURL(srv.URL), WithLimiter(rate.NewLimiter(rate.Inf, 1)))
}

func TestSoilText_Jordart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "GetFeatureInfo", q.Get("REQUEST"))
		assert.Equal(t, DefaultLayer, q.Get("QUERY_LAYERS"))
		assert.Equal(t, "EPSG:3006", q.Get("CRS"))
		assert.Equal(t, "6599500,499500,6600500,500500", q.Get("BBOX"))
		assert.Equal(t, "128", q.Get("I"))
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":null,"properties":{"Jordart":"Morän","Kod":"15"}}]}`))
	})

	text, err := c.SoilText(context.Background(), 500000, 6600000)
	require.NoError(t, err)
	assert.Equal(t, "Morän", text)
}

func TestSoilText_FallbackProperty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},
			 "properties":{"objekt":"x","jordart_text":"Lera--silt"}}]}`))
	})
	text, err := c.SoilText(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "Lera--silt", text)
}

func TestSoilText_NoFeature(t *testing.T) {
	for name, body := range map[string]string{
		"empty":         `{"type":"FeatureCollection","features":[]}`,
		"no soil field": `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":null,"properties":{"a":1}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := c.SoilText(context.Background(), 1, 2)
			assert.ErrorIs(t, err, ErrNoFeature)
		})
	}
}

func TestSoilText_UpstreamErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.SoilText(context.Background(), 1, 2)
	var ue *resilience.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusBadGateway, ue.StatusCode)

	c = newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<ServiceExceptionReport/>`))
	})
	_, err = c.SoilText(context.Background(), 1, 2)
	assert.True(t, resilience.IsUpstream(err))
}

func TestSoilText_CancelledWhileLimited(t *testing.T) {
	c := New(WithBaseURL("http://127.0.0.1:1"), WithLimiter(rate.NewLimiter(rate.Every(1e12), 0)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.SoilText(ctx, 1, 2)
	assert.Error(t, err)
}
