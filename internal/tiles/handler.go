package tiles

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves trafficability tiles over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler returns a Handler over svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the tile endpoints:
//
//	GET /{z}/{x}/{y}.png
//	GET /?bbox=xmin,ymin,xmax,ymax&size=w,h
//	GET /stats
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.ServeBBox)
	r.Get("/stats", h.Stats)
	r.Get("/{z}/{x}/{y}.png", h.ServeTile)
}

// ServeTile handles /{z}/{x}/{y}.png.
func (h *Handler) ServeTile(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errZ != nil || errX != nil || errY != nil {
		http.Error(w, "invalid tile coordinate", http.StatusBadRequest)
		return
	}
	data, hit, err := h.svc.RenderTile(r.Context(), z, x, y)
	h.write(w, data, hit, err, zap.Int("z", z), zap.Int("x", x), zap.Int("y", y))
}

// ServeBBox handles ?bbox=&size=.
func (h *Handler) ServeBBox(w http.ResponseWriter, r *http.Request) {
	bbox, err := ParseBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	width, height, err := ParseSize(r.URL.Query().Get("size"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, hit, err := h.svc.RenderBBox(r.Context(), bbox, width, height)
	h.write(w, data, hit, err, zap.Float64s("bbox", bbox[:]))
}

func (h *Handler) write(w http.ResponseWriter, data []byte, hit bool, err error, fields ...zap.Field) {
	switch {
	case errors.Is(err, ErrInvalidBBox), errors.Is(err, ErrInvalidSize), errors.Is(err, ErrInvalidTile):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		zap.L().Error("tiles: render failed", append(fields, zap.Error(err))...)
		http.Error(w, "tile upstream failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if hit {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	_, _ = w.Write(data)
}

// Stats returns cache statistics as JSON.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	c := h.svc.Cache()
	if c == nil {
		_, _ = w.Write([]byte(`{"enabled":false}`))
		return
	}
	_ = json.NewEncoder(w).Encode(c.Stats())
}

// ParseBBox parses "xmin,ymin,xmax,ymax".
func ParseBBox(s string) ([4]float64, error) {
	var b [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return b, ErrInvalidBBox
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return b, ErrInvalidBBox
		}
		b[i] = v
	}
	return b, nil
}

// ParseSize parses "w,h"; an empty string is DefaultSize square.
func ParseSize(s string) (int, int, error) {
	if s == "" {
		return DefaultSize, DefaultSize, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidSize
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil {
		return 0, 0, ErrInvalidSize
	}
	return w, h, nil
}
