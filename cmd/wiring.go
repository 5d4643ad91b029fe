package main

import (
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/standscan/internal/config"
	"github.com/sells-group/standscan/internal/metrics"
	"github.com/sells-group/standscan/internal/raster"
	"github.com/sells-group/standscan/internal/resilience"
	"github.com/sells-group/standscan/internal/season"
	"github.com/sells-group/standscan/internal/tiles"
	"github.com/sells-group/standscan/internal/trafficability"
	"github.com/sells-group/standscan/internal/volume"
	"github.com/sells-group/standscan/internal/zonal"
	"github.com/sells-group/standscan/pkg/imageserver"
	"github.com/sells-group/standscan/pkg/sgu"
	"github.com/sells-group/standscan/pkg/smhi"
)

// env holds the services built from configuration for one command.
type env struct {
	Breakers       *resilience.Breakers
	Zonal          *zonal.ImageServerSource
	Volume         *volume.Service
	Trafficability *trafficability.Service
	Season         *season.Service
	Tiles          *tiles.Service

	closers []func()
}

// Close releases caches and raster handles.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func newBreakers(c config.BreakerConfig) *resilience.Breakers {
	return resilience.NewBreakers(resilience.BreakerConfig{
		FailureThreshold: c.FailureThreshold,
		Cooldown:         time.Duration(c.CooldownSecs) * time.Second,
		OnStateChange: func(service string, from, to resilience.State) {
			metrics.BreakerState.WithLabelValues(service).Set(float64(to))
			zap.L().Warn("resilience: breaker state changed",
				zap.String("service", service),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func imageServer(c *config.Config, url, name string) *imageserver.Client {
	return imageserver.New(url,
		imageserver.WithServiceName(name),
		imageserver.WithBasicAuth(c.Credentials.User, c.Credentials.Pass),
		imageserver.WithTimeout(c.Services.Timeout()),
		imageserver.WithUserAgent(c.Services.UserAgent),
	)
}

// thinningRule is the laser raster function for the thinning index, with the
// site-index template passed as its "sis" argument.
func thinningRule(siteIndex string) *imageserver.RenderingRule {
	if siteIndex == "" {
		siteIndex = volume.DefaultSiteIndex
	}
	return &imageserver.RenderingRule{
		RasterFunction:          "Gallringsindex",
		RasterFunctionArguments: map[string]any{"sis": siteIndex},
	}
}

// initEnv builds every service a command in mode needs.
func initEnv(c *config.Config, mode string) (*env, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}
	e := &env{Breakers: newBreakers(c.Breaker)}

	moisture := imageServer(c, c.Services.Moisture, zonal.SourceMoisture)
	slope := imageServer(c, c.Services.Slope, zonal.SourceSlope)
	e.Zonal = zonal.NewImageServerSource(map[string]zonal.Endpoint{
		zonal.SourceThinning: {
			Client:        imageServer(c, c.Services.Laser, "laser"),
			RenderingRule: thinningRule(c.Volume.SiteIndex),
		},
		zonal.SourceSpecies:  {Client: imageServer(c, c.Services.Species, zonal.SourceSpecies)},
		zonal.SourceMoisture: {Client: moisture},
		zonal.SourceSlope:    {Client: slope},
	}, e.Breakers)

	switch mode {
	case "volume":
		if err := e.initVolume(c); err != nil {
			return nil, err
		}
	case "trafficability":
		e.initSeason(c)
		e.initTrafficability(c)
	case "season":
		e.initSeason(c)
	case "tile":
		e.initTiles(c, moisture, slope)
	case "serve":
		if err := e.initVolume(c); err != nil {
			return nil, err
		}
		e.initSeason(c)
		e.initTrafficability(c)
		e.initTiles(c, moisture, slope)
	}
	return e, nil
}

func (e *env) initVolume(c *config.Config) error {
	policy, err := volume.ParsePolicy(c.Volume.SpeciesSource)
	if err != nil {
		return err
	}
	opts := []volume.Option{volume.WithPolicy(policy), volume.WithPointSource(e.Zonal)}
	if c.Volume.SpeciesTable != "" {
		table, err := volume.LoadTable(c.Volume.SpeciesTable)
		if err != nil {
			return eris.Wrap(err, "load species table")
		}
		opts = append(opts, volume.WithTable(table))
	}
	if c.Volume.Thinning {
		opts = append(opts, volume.WithThinning(c.Volume.SiteIndex))
	}
	if c.Rasters.Dir != "" {
		handles := raster.NewHandleCache(raster.DirOpener{Dir: c.Rasters.Dir})
		e.closers = append(e.closers, func() { _ = handles.Close() })
		opts = append(opts, volume.WithExtractor(raster.NewExtractor(handles)))
	}
	e.Volume = volume.NewService(e.Zonal, opts...)
	return nil
}

func (e *env) initSeason(c *config.Config) {
	if !c.Weather.Enabled {
		return
	}
	client := smhi.New(
		smhi.WithObservationsURL(c.Services.SMHIObservations),
		smhi.WithForecastURL(c.Services.SMHIForecast),
		smhi.WithHTTPClient(&http.Client{Timeout: c.Services.Timeout()}),
	)
	ttl := time.Duration(c.Weather.StationTTLMinutes) * time.Minute
	e.Season = season.NewService(client,
		season.WithForecast(c.Weather.UseForecast),
		season.WithStationCache(season.NewStationCache(client, ttl)),
	)
}

func (e *env) initTrafficability(c *config.Config) {
	client := sgu.New(
		sgu.WithBaseURL(c.Services.SGU),
		sgu.WithLayer(c.Services.SGULayer),
		sgu.WithHalfWidth(c.Soil.HalfWidth),
		sgu.WithRateLimit(c.Soil.RateLimit),
		sgu.WithHTTPClient(&http.Client{Timeout: c.Services.Timeout()}),
	)
	soil := trafficability.NewCachedSoil(
		trafficability.NewSGUSoil(client),
		c.Soil.CacheSize,
		time.Duration(c.Soil.CacheTTLHours)*time.Hour,
		c.Soil.GridMeters,
	)
	e.closers = append(e.closers, soil.Stop)

	opts := []trafficability.Option{
		trafficability.WithSamplePoints(c.Soil.SamplePoints),
		trafficability.WithSoilConcurrency(c.Soil.Concurrency),
	}
	if e.Season != nil {
		opts = append(opts, trafficability.WithSeason(e.Season))
	}
	e.Trafficability = trafficability.NewService(e.Zonal, soil, opts...)
}

func (e *env) initTiles(c *config.Config, moisture, slope *imageserver.Client) {
	opts := []tiles.Option{tiles.WithBreakers(e.Breakers)}
	if c.Tiles.CacheSize > 0 {
		opts = append(opts, tiles.WithCache(tiles.NewCache(c.Tiles.CacheSize, time.Duration(c.Tiles.CacheTTLHours)*time.Hour)))
	}
	e.Tiles = tiles.NewService(moisture, slope, opts...)
}
