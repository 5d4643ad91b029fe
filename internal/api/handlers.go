package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/standscan/internal/geometry"
	"github.com/sells-group/standscan/internal/projection"
	"github.com/sells-group/standscan/internal/resilience"
	"github.com/sells-group/standscan/internal/season"
	"github.com/sells-group/standscan/internal/trafficability"
	"github.com/sells-group/standscan/internal/volume"
)

const maxBodyBytes = 4 << 20

var errBadRequest = eris.New("api: bad request")

// analysisRequest is the body of the polygon endpoints. A body with a
// top-level "type" member is read as GeoJSON instead.
type analysisRequest struct {
	Type        string                  `json:"type"`
	Polygon     []projection.Geographic `json:"polygon"`
	GeoJSON     json.RawMessage         `json:"geojson"`
	TotalVolume float64                 `json:"total_volume"`
	Season      string                  `json:"season"`
}

func decodeAnalysis(w http.ResponseWriter, r *http.Request) (*analysisRequest, geometry.Polygon, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, eris.Wrapf(errBadRequest, "read body: %v", err)
	}
	var req analysisRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, nil, eris.Wrapf(errBadRequest, "invalid JSON: %v", err)
	}

	ring := req.Polygon
	if raw := geojsonPayload(&req, body); raw != nil {
		stands, err := geometry.DecodeGeoJSON(raw)
		if err != nil {
			return nil, nil, eris.Wrapf(errBadRequest, "%v", err)
		}
		if len(stands) != 1 {
			return nil, nil, eris.Wrapf(errBadRequest, "expected one polygon, got %d", len(stands))
		}
		ring = stands[0].Boundary
	}
	polygon, err := geometry.FromGeographic(ring)
	if err != nil {
		return nil, nil, err
	}
	return &req, polygon, nil
}

func geojsonPayload(req *analysisRequest, body []byte) []byte {
	switch {
	case req.Type != "":
		return body
	case len(req.GeoJSON) > 0:
		return req.GeoJSON
	default:
		return nil
	}
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	_, polygon, err := decodeAnalysis(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Volume.Estimate(r.Context(), polygon)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTrafficability(w http.ResponseWriter, r *http.Request) {
	req, polygon, err := decodeAnalysis(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	opts := trafficability.Options{TotalVolume: req.TotalVolume}
	if req.Season != "" {
		if opts.Season, err = season.ParseCategory(req.Season); err != nil {
			writeError(w, r, eris.Wrap(errBadRequest, err.Error()))
			return
		}
	}
	res, err := s.deps.Trafficability.Analyze(r.Context(), polygon, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSeason(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		writeError(w, r, eris.Wrap(errBadRequest, "lat and lon must be valid WGS84 degrees"))
		return
	}
	res, err := s.deps.Season.Context(r.Context(), projection.Geographic{Lat: lat, Lon: lon})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	breakers := map[string]string{}
	if s.deps.Breakers != nil {
		for name, st := range s.deps.Breakers.States() {
			breakers[name] = st.String()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "breakers": breakers})
}

// statusOf maps an analysis error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, geometry.ErrTooFewVertices),
		errors.Is(err, geometry.ErrCoordinateOutOfRange),
		errors.Is(err, volume.ErrAreaTooSmall):
		return http.StatusBadRequest
	case errors.Is(err, season.ErrNoStation):
		return http.StatusNotFound
	case resilience.IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	switch status {
	case http.StatusBadGateway:
		zap.L().Error("api: upstream failure", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "upstream service unavailable"
	case http.StatusInternalServerError:
		zap.L().Error("api: request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}
