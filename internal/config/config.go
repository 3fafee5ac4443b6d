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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Estimate  EstimateConfig  `yaml:"estimate" mapstructure:"estimate"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DiscoveryConfig configures the Overpass discovery phase.
type DiscoveryConfig struct {
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	RadiusMeters int    `yaml:"radius_meters" mapstructure:"radius_meters"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
}

// GeocodeConfig configures the Nominatim location resolver.
type GeocodeConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CrawlConfig configures the website scan phase.
type CrawlConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyKB   int    `yaml:"max_body_kb" mapstructure:"max_body_kb"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// RateLimitConfig holds minimum spacing between requests per upstream
// service, in milliseconds.
type RateLimitConfig struct {
	DiscoveryMS int `yaml:"discovery_ms" mapstructure:"discovery_ms"`
	WebsiteMS   int `yaml:"website_ms" mapstructure:"website_ms"`
	GeocodeMS   int `yaml:"geocode_ms" mapstructure:"geocode_ms"`
}

// Interval converts a millisecond setting into a duration, with a
// one-second floor when unset.
func (r RateLimitConfig) Interval(ms int) time.Duration {
	if ms <= 0 {
		return time.Second
	}
	return time.Duration(ms) * time.Millisecond
}

// EstimateConfig configures the capacity estimator constants.
type EstimateConfig struct {
	PortfolioConfidence float64 `yaml:"portfolio_confidence" mapstructure:"portfolio_confidence"`
	HeuristicConfidence float64 `yaml:"heuristic_confidence" mapstructure:"heuristic_confidence"`
	FloorConfidence     float64 `yaml:"floor_confidence" mapstructure:"floor_confidence"`
	CommercialUnitKW    float64 `yaml:"commercial_unit_kw" mapstructure:"commercial_unit_kw"`
	ResidentialUnitKW   float64 `yaml:"residential_unit_kw" mapstructure:"residential_unit_kw"`
	MinProjects         int     `yaml:"min_projects" mapstructure:"min_projects"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SUNSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "sunscout.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("discovery.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("discovery.radius_meters", 25000)
	v.SetDefault("discovery.timeout_secs", 25)
	v.SetDefault("discovery.user_agent", "SunScoutBot/1.0 (+https://sunscout.dev/bot)")
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("crawl.timeout_secs", 15)
	v.SetDefault("crawl.max_body_kb", 512)
	v.SetDefault("crawl.user_agent", "SunScoutBot/1.0 (+https://sunscout.dev/bot)")
	v.SetDefault("rate_limit.discovery_ms", 2000)
	v.SetDefault("rate_limit.website_ms", 2000)
	v.SetDefault("rate_limit.geocode_ms", 1000)
	v.SetDefault("estimate.portfolio_confidence", 0.8)
	v.SetDefault("estimate.heuristic_confidence", 0.4)
	v.SetDefault("estimate.floor_confidence", 0.3)
	v.SetDefault("estimate.commercial_unit_kw", 50)
	v.SetDefault("estimate.residential_unit_kw", 8)
	v.SetDefault("estimate.min_projects", 10)

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

// Validate checks configuration consistency before any network or
// database work starts.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if c.Discovery.RadiusMeters <= 0 || c.Discovery.RadiusMeters > 50000 {
		problems = append(problems, "discovery.radius_meters must be between 1 and 50000")
	}
	if c.Crawl.TimeoutSecs <= 0 {
		problems = append(problems, "crawl.timeout_secs must be > 0")
	}
	if c.Crawl.MaxBodyKB <= 0 {
		problems = append(problems, "crawl.max_body_kb must be > 0")
	}
	for _, conf := range []struct {
		name  string
		value float64
	}{
		{"estimate.portfolio_confidence", c.Estimate.PortfolioConfidence},
		{"estimate.heuristic_confidence", c.Estimate.HeuristicConfidence},
		{"estimate.floor_confidence", c.Estimate.FloorConfidence},
	} {
		if conf.value < 0 || conf.value > 1 {
			problems = append(problems, conf.name+" must be between 0 and 1")
		}
	}
	if c.Estimate.CommercialUnitKW <= 0 || c.Estimate.ResidentialUnitKW <= 0 {
		problems = append(problems, "estimate unit sizes must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
