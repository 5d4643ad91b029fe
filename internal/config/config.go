package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Services    ServicesConfig    `yaml:"services" mapstructure:"services"`
	Credentials CredentialsConfig `yaml:"credentials" mapstructure:"credentials"`
	Volume      VolumeConfig      `yaml:"volume" mapstructure:"volume"`
	Rasters     RastersConfig     `yaml:"rasters" mapstructure:"rasters"`
	FTP         FTPConfig         `yaml:"ftp" mapstructure:"ftp"`
	Soil        SoilConfig        `yaml:"soil" mapstructure:"soil"`
	Weather     WeatherConfig     `yaml:"weather" mapstructure:"weather"`
	Tiles       TilesConfig       `yaml:"tiles" mapstructure:"tiles"`
	Breaker     BreakerConfig     `yaml:"breaker" mapstructure:"breaker"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServicesConfig holds upstream endpoints.
type ServicesConfig struct {
	Laser            string `yaml:"laser" mapstructure:"laser"`
	Species          string `yaml:"species" mapstructure:"species"`
	Moisture         string `yaml:"moisture" mapstructure:"moisture"`
	Slope            string `yaml:"slope" mapstructure:"slope"`
	SGU              string `yaml:"sgu" mapstructure:"sgu"`
	SGULayer         string `yaml:"sgu_layer" mapstructure:"sgu_layer"`
	SMHIObservations string `yaml:"smhi_observations" mapstructure:"smhi_observations"`
	SMHIForecast     string `yaml:"smhi_forecast" mapstructure:"smhi_forecast"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
}

// CredentialsConfig holds ImageServer basic auth credentials.
type CredentialsConfig struct {
	User string `yaml:"user" mapstructure:"user"`
	Pass string `yaml:"pass" mapstructure:"pass"`
}

// VolumeConfig configures the volume estimator.
type VolumeConfig struct {
	SpeciesSource string `yaml:"species_source" mapstructure:"species_source"`
	SpeciesTable  string `yaml:"species_table" mapstructure:"species_table"`
	Thinning      bool   `yaml:"thinning" mapstructure:"thinning"`
	SiteIndex     string `yaml:"site_index" mapstructure:"site_index"`
}

// RastersConfig locates the local per-species rasters.
type RastersConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// FTPConfig configures the species raster download.
type FTPConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`
	User        string `yaml:"user" mapstructure:"user"`
	Pass        string `yaml:"pass" mapstructure:"pass"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SoilConfig configures soil sampling and lookups.
type SoilConfig struct {
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	HalfWidth     float64 `yaml:"half_width" mapstructure:"half_width"`
	SamplePoints  int     `yaml:"sample_points" mapstructure:"sample_points"`
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	CacheSize     int64   `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	GridMeters    float64 `yaml:"grid_meters" mapstructure:"grid_meters"`
}

// WeatherConfig configures the seasonal context.
type WeatherConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	UseForecast       bool `yaml:"use_forecast" mapstructure:"use_forecast"`
	StationTTLMinutes int  `yaml:"station_ttl_minutes" mapstructure:"station_ttl_minutes"`
}

// TilesConfig configures the tile cache.
type TilesConfig struct {
	CacheSize     int `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLHours int `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// BreakerConfig configures the per-upstream circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// Timeout returns the upstream request timeout.
func (c ServicesConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STANDSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.timeout_secs", 60)
	v.SetDefault("services.laser", "https://geodata.skogsstyrelsen.se/arcgis/rest/services/Publikt/SkogligaGrunddata_3_1/ImageServer")
	v.SetDefault("services.species", "https://geodata.skogsstyrelsen.se/arcgis/rest/services/Publikt/SLUskogskarta_1_0/ImageServer")
	v.SetDefault("services.moisture", "https://geodata.skogsstyrelsen.se/arcgis/rest/services/Publikt/Markfuktighet_SLU_2_0/ImageServer")
	v.SetDefault("services.slope", "https://geodata.skogsstyrelsen.se/arcgis/rest/services/Publikt/Lutning_1_0/ImageServer")
	v.SetDefault("services.sgu", "https://maps3.sgu.se/geoserver/jord/ows")
	v.SetDefault("services.sgu_layer", "SE.GOV.SGU.JORD.GRUNDLAGER.25K")
	v.SetDefault("services.smhi_observations", "https://opendata-download-metobs.smhi.se/api/version/1.0")
	v.SetDefault("services.smhi_forecast", "https://opendata-download-metfcst.smhi.se/api/category/pmp3g/version/2")
	v.SetDefault("services.timeout_secs", 30)
	v.SetDefault("services.user_agent", "standscan/1.0")
	v.SetDefault("volume.species_source", "auto")
	v.SetDefault("volume.site_index", "g16-g22")
	v.SetDefault("rasters.dir", "data/rasters")
	v.SetDefault("ftp.timeout_secs", 60)
	v.SetDefault("soil.rate_limit", 10.0)
	v.SetDefault("soil.half_width", 500.0)
	v.SetDefault("soil.sample_points", 12)
	v.SetDefault("soil.concurrency", 4)
	v.SetDefault("soil.cache_size", 10000)
	v.SetDefault("soil.cache_ttl_hours", 24)
	v.SetDefault("soil.grid_meters", 25.0)
	v.SetDefault("weather.enabled", true)
	v.SetDefault("weather.use_forecast", false)
	v.SetDefault("weather.station_ttl_minutes", 60)
	v.SetDefault("tiles.cache_size", 2000)
	v.SetDefault("tiles.cache_ttl_hours", 24)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
