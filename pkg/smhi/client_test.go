package smhi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/standscan/internal/resilience"
)

func newTestServer(t *testing.T) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/obs/parameter/5.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"station":[
			{"id":98210,"name":"Stockholm","latitude":59.34,"longitude":18.05,"active":true},
			{"id":97400,"name":"Arlanda","latitude":59.65,"longitude":17.95,"active":false}]}`))
	})
	mux.HandleFunc("/obs/parameter/5/station/98210/period/latest-months/data.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":[
			{"from":1717200000000,"to":1717286400000,"value":"2.5","quality":"G"},
			{"from":1717286400000,"to":1717372800000,"value":"","quality":"G"},
			{"from":1717372800000,"to":1717459200000,"value":"0.0","quality":"Y"}]}`))
	})
	mux.HandleFunc("/fcst/geotype/point/lon/18.0686/lat/59.3293/data.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"timeSeries":[
			{"validTime":"2024-06-01T12:00:00Z","parameters":[{"name":"t","values":[18.1]},{"name":"pmean","values":[0.4]}]},
			{"validTime":"2024-06-01T13:00:00Z","parameters":[{"name":"pmean","values":[1.1]}]}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(WithObservationsURL(srv.URL+"/obs"), WithForecastURL(srv.URL+"/fcst/"))
}

func TestStations(t *testing.T) {
	c := newTestServer(t)
	st, err := c.Stations(context.Background())
	require.NoError(t, err)
	require.Len(t, st, 2)
	assert.Equal(t, "Stockholm", st[0].Name)
	assert.True(t, st[0].Active)
	assert.False(t, st[1].Active)
}

func TestPrecipitation(t *testing.T) {
	c := newTestServer(t)
	obs, err := c.Precipitation(context.Background(), 98210)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, 2.5, obs[0].Value)
	assert.Equal(t, time.UnixMilli(1717286400000), obs[0].To)
}

func TestForecast(t *testing.T) {
	c := newTestServer(t)
	steps, err := c.Forecast(context.Background(), 59.3293, 18.0686)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 0.4, steps[0].Precipitation)
	assert.Equal(t, time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC), steps[1].ValidTime)
}

func TestUpstreamError(t *testing.T) {
	c := newTestServer(t)
	_, err := c.Precipitation(context.Background(), 1)
	var ue *resilience.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusNotFound, ue.StatusCode)
	assert.Equal(t, "smhi-obs", ue.Service)
}
