package config

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

var speciesSources = []string{"remote", "identify", "raster", "auto"}

// Validate checks the settings a command mode depends on. Modes are serve,
// volume, trafficability, season, tile and rasters.
func (c *Config) Validate(mode string) error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "serve":
		check(c.Server.Port > 0, "server.port must be > 0")
		c.validateVolume(check)
		c.validateSoil(check)
		check(c.Tiles.CacheSize >= 0, "tiles.cache_size must be >= 0")
	case "volume":
		c.validateVolume(check)
	case "trafficability":
		c.validateSoil(check)
	case "season":
		check(c.Services.SMHIObservations != "", "services.smhi_observations is required")
	case "tile":
		check(c.Services.Moisture != "", "services.moisture is required")
		check(c.Services.Slope != "", "services.slope is required")
	case "rasters":
		check(c.FTP.Addr != "", "ftp.addr is required")
		check(c.Rasters.Dir != "", "rasters.dir is required")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	check(c.Breaker.FailureThreshold >= 0, "breaker.failure_threshold must be >= 0")

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateVolume(check func(bool, string)) {
	check(c.Services.Species != "", "services.species is required")
	check(c.Volume.SpeciesSource == "" || slices.Contains(speciesSources, c.Volume.SpeciesSource),
		"volume.species_source must be one of remote, identify, raster, auto")
	check(!c.Volume.Thinning || c.Services.Laser != "", "services.laser is required when volume.thinning is on")
}

func (c *Config) validateSoil(check func(bool, string)) {
	check(c.Services.Moisture != "", "services.moisture is required")
	check(c.Services.Slope != "", "services.slope is required")
	check(c.Soil.SamplePoints >= 1 && c.Soil.SamplePoints <= 200, "soil.sample_points must be between 1 and 200")
	check(c.Soil.Concurrency >= 1, "soil.concurrency must be >= 1")
	check(c.Soil.RateLimit > 0, "soil.rate_limit must be > 0")
}
