// Package season classifies current ground conditions from recent
// precipitation at the nearest weather station.
package season

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/standscan/internal/projection"
	"github.com/sells-group/standscan/pkg/smhi"
)

// Category is the seasonal ground-condition class.
type Category string

// Categories.
const (
	Dry    Category = "dry"
	Normal Category = "normal"
	Wet    Category = "wet"
)

// ParseCategory accepts dry, normal or wet.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case Dry, Normal, Wet:
		return c, nil
	default:
		return "", eris.Errorf("season: unknown category %q", s)
	}
}

// Precipitation thresholds in mm.
const (
	DryBelow7d = 5.0
	WetAbove7d = 25.0
	DryBelow3d = 5.0
	WetAbove3d = 20.0
)

const (
	forecastDays = 3
	window       = 7 * 24 * time.Hour
)

// ErrNoStation is returned when no active station is known.
var ErrNoStation = eris.New("season: no active weather station")

// Context is the seasonal context of a location.
type Context struct {
	Category          Category `json:"category"`
	Precipitation7d   float64  `json:"precipitation_7d"`
	Forecast3d        *float64 `json:"forecast_3d,omitempty"`
	Station           string   `json:"station"`
	StationID         int      `json:"station_id"`
	StationDistanceKm float64  `json:"station_distance_km"`
}

// Classify maps 7-day precipitation to a category.
func Classify(p7 float64) Category {
	switch {
	case p7 < DryBelow7d:
		return Dry
	case p7 > WetAbove7d:
		return Wet
	default:
		return Normal
	}
}

// ClassifyWithForecast also weighs the next three days of forecast rain.
func ClassifyWithForecast(p7, p3 float64) Category {
	switch {
	case p7 > WetAbove7d || p3 > WetAbove3d:
		return Wet
	case p7 < DryBelow7d && p3 < DryBelow3d:
		return Dry
	default:
		return Normal
	}
}

// Nearest returns the active station closest to g by squared angular
// distance, with longitude differences scaled by cos(lat).
func Nearest(stations []smhi.Station, g projection.Geographic) (smhi.Station, bool) {
	var (
		best     smhi.Station
		found    bool
		bestDist = math.Inf(1)
	)
	k := math.Cos(g.Lat * math.Pi / 180)
	for _, s := range stations {
		if !s.Active {
			continue
		}
		dLat := s.Latitude - g.Lat
		dLon := (s.Longitude - g.Lon) * k
		if d := dLat*dLat + dLon*dLon; d < bestDist {
			bestDist, best, found = d, s, true
		}
	}
	return best, found
}

// WeatherSource supplies station observations and forecasts.
type WeatherSource interface {
	Stations(ctx context.Context) ([]smhi.Station, error)
	Precipitation(ctx context.Context, stationID int) ([]smhi.Observation, error)
	Forecast(ctx context.Context, lat, lon float64) ([]smhi.ForecastStep, error)
}

// Service resolves the seasonal context of a location.
type Service struct {
	weather     WeatherSource
	stations    *StationCache
	useForecast bool
	nowFunc     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithForecast refines the category with the 3-day forecast.
func WithForecast(on bool) Option {
	return func(s *Service) { s.useForecast = on }
}

// WithStationCache replaces the station cache.
func WithStationCache(c *StationCache) Option {
	return func(s *Service) { s.stations = c }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.nowFunc = now }
}

// NewService returns a Service over weather with a one-hour station cache.
func NewService(weather WeatherSource, opts ...Option) *Service {
	s := &Service{weather: weather, nowFunc: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.stations == nil {
		s.stations = NewStationCache(weather, DefaultStationTTL)
	}
	return s
}

// Context returns the seasonal context at g.
func (s *Service) Context(ctx context.Context, g projection.Geographic) (*Context, error) {
	stations, err := s.stations.Get(ctx)
	if err != nil {
		return nil, err
	}
	st, ok := Nearest(stations, g)
	if !ok {
		return nil, ErrNoStation
	}
	obs, err := s.weather.Precipitation(ctx, st.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "season: precipitation at station %d", st.ID)
	}

	now := s.nowFunc()
	out := &Context{
		Precipitation7d:   round1(Sum7d(obs, now)),
		Station:           st.Name,
		StationID:         st.ID,
		StationDistanceKm: round1(distanceKm(g, st)),
	}
	out.Category = Classify(out.Precipitation7d)

	if s.useForecast {
		steps, err := s.weather.Forecast(ctx, g.Lat, g.Lon)
		if err != nil {
			zap.L().Warn("season: forecast unavailable, using observations only", zap.Error(err))
		} else {
			p3 := round1(ForecastSum(steps, now, forecastDays))
			out.Forecast3d = &p3
			out.Category = ClassifyWithForecast(out.Precipitation7d, p3)
		}
	}
	return out, nil
}

// Sum7d sums observations whose period ended in the seven days before now.
func Sum7d(obs []smhi.Observation, now time.Time) float64 {
	from := now.Add(-window)
	var sum float64
	for _, o := range obs {
		if !o.To.Before(from) && !o.To.After(now) {
			sum += o.Value
		}
	}
	return sum
}

// ForecastSum sums forecast precipitation over the first n UTC calendar
// days from today.
func ForecastSum(steps []smhi.ForecastStep, now time.Time, n int) float64 {
	today := now.UTC().Format(time.DateOnly)
	perDay := map[string]float64{}
	for _, st := range steps {
		d := st.ValidTime.UTC().Format(time.DateOnly)
		if d < today {
			continue
		}
		perDay[d] += st.Precipitation
	}
	keys := make([]string, 0, len(perDay))
	for k := range perDay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sum float64
	for i, k := range keys {
		if i >= n {
			break
		}
		sum += perDay[k]
	}
	return sum
}

func distanceKm(g projection.Geographic, s smhi.Station) float64 {
	const kmPerDegree = 111.32
	dLat := s.Latitude - g.Lat
	dLon := (s.Longitude - g.Lon) * math.Cos(g.Lat*math.Pi/180)
	return math.Sqrt(dLat*dLat+dLon*dLon) * kmPerDegree
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
