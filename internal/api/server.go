// Package api exposes stand analyses over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/standscan/internal/geometry"
	"github.com/sells-group/standscan/internal/metrics"
	"github.com/sells-group/standscan/internal/projection"
	"github.com/sells-group/standscan/internal/resilience"
	"github.com/sells-group/standscan/internal/season"
	"github.com/sells-group/standscan/internal/tiles"
	"github.com/sells-group/standscan/internal/trafficability"
	"github.com/sells-group/standscan/internal/volume"
)

// VolumeEstimator estimates stand volume.
type VolumeEstimator interface {
	Estimate(ctx context.Context, polygon geometry.Polygon) (*volume.Result, error)
}

// TrafficabilityAnalyzer classifies stand trafficability.
type TrafficabilityAnalyzer interface {
	Analyze(ctx context.Context, polygon geometry.Polygon, opts trafficability.Options) (*trafficability.Result, error)
}

// SeasonReporter reports the seasonal context of a location.
type SeasonReporter interface {
	Context(ctx context.Context, g projection.Geographic) (*season.Context, error)
}

// Deps are the services behind the API. Nil services leave their routes unmounted.
type Deps struct {
	Volume         VolumeEstimator
	Trafficability TrafficabilityAnalyzer
	Season         SeasonReporter
	Tiles          *tiles.Service
	Breakers       *resilience.Breakers
}

// Options configures the router.
type Options struct {
	CORSOrigins []string
	Timeout     time.Duration // per request, zero disables
}

// Server routes HTTP requests to the analysis services.
type Server struct {
	deps Deps
	opts Options
}

// NewServer returns a Server.
func NewServer(deps Deps, opts Options) *Server {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{deps: deps, opts: opts}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Cache"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(ar chi.Router) {
		if s.opts.Timeout > 0 {
			ar.Use(middleware.Timeout(s.opts.Timeout))
		}
		ar.Route("/api", func(api chi.Router) {
			if s.deps.Volume != nil {
				api.Post("/volume", s.handleVolume)
			}
			if s.deps.Trafficability != nil {
				api.Post("/trafficability", s.handleTrafficability)
			}
			if s.deps.Season != nil {
				api.Get("/season", s.handleSeason)
			}
		})
		if s.deps.Tiles != nil {
			ar.Route("/tiles/"+tiles.Layer, tiles.NewHandler(s.deps.Tiles).Routes)
		}
	})

	return r
}
