package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "sunscout.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "https://overpass-api.de/api/interpreter", cfg.Discovery.BaseURL)
	assert.Equal(t, 25000, cfg.Discovery.RadiusMeters)
	assert.Equal(t, 25, cfg.Discovery.TimeoutSecs)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.Geocode.BaseURL)
	assert.Equal(t, 15, cfg.Crawl.TimeoutSecs)
	assert.Equal(t, 512, cfg.Crawl.MaxBodyKB)
	assert.Contains(t, cfg.Crawl.UserAgent, "SunScoutBot")
	assert.Equal(t, 2000, cfg.RateLimit.DiscoveryMS)
	assert.Equal(t, 2000, cfg.RateLimit.WebsiteMS)
	assert.Equal(t, 1000, cfg.RateLimit.GeocodeMS)
	assert.InDelta(t, 0.8, cfg.Estimate.PortfolioConfidence, 0.001)
	assert.InDelta(t, 0.4, cfg.Estimate.HeuristicConfidence, 0.001)
	assert.InDelta(t, 0.3, cfg.Estimate.FloorConfidence, 0.001)
	assert.InDelta(t, 50, cfg.Estimate.CommercialUnitKW, 0.001)
	assert.InDelta(t, 8, cfg.Estimate.ResidentialUnitKW, 0.001)
	assert.Equal(t, 10, cfg.Estimate.MinProjects)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/sunscout
log:
  level: debug
  format: console
discovery:
  radius_meters: 10000
rate_limit:
  website_ms: 5000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/sunscout", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 10000, cfg.Discovery.RadiusMeters)
	assert.Equal(t, 5000, cfg.RateLimit.WebsiteMS)
	// Defaults still apply for unset values
	assert.Equal(t, 2000, cfg.RateLimit.DiscoveryMS)
	assert.Equal(t, 15, cfg.Crawl.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SUNSCOUT_STORE_DRIVER", "postgres")
	t.Setenv("SUNSCOUT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SUNSCOUT_DISCOVERY_RADIUS_METERS", "5000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Discovery.RadiusMeters)
}

func TestRateLimitInterval(t *testing.T) {
	r := RateLimitConfig{WebsiteMS: 2500}
	assert.Equal(t, 2500*time.Millisecond, r.Interval(r.WebsiteMS))
	// Unset falls back to one second
	assert.Equal(t, time.Second, r.Interval(0))
	assert.Equal(t, time.Second, r.Interval(-1))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes validation.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "sunscout.db"
	cfg.Discovery.RadiusMeters = 25000
	cfg.Crawl.TimeoutSecs = 15
	cfg.Crawl.MaxBodyKB = 512
	cfg.Estimate.PortfolioConfidence = 0.8
	cfg.Estimate.HeuristicConfidence = 0.4
	cfg.Estimate.FloorConfidence = 0.3
	cfg.Estimate.CommercialUnitKW = 50
	cfg.Estimate.ResidentialUnitKW = 8
	return cfg
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validDefaults().Validate())
}

func TestValidate_SQLiteNeedsPath(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Path = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.path is required")
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/sunscout"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidate_RadiusBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Discovery.RadiusMeters = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "radius_meters must be between 1 and 50000")

	cfg.Discovery.RadiusMeters = 60000
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "radius_meters must be between 1 and 50000")

	cfg.Discovery.RadiusMeters = 50000
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ConfidenceBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Estimate.HeuristicConfidence = 1.2
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "heuristic_confidence")

	cfg.Estimate.HeuristicConfidence = 0.4
	cfg.Estimate.FloorConfidence = -0.1
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "floor_confidence")
}

func TestValidate_CrawlBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Crawl.TimeoutSecs = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "crawl.timeout_secs")

	cfg.Crawl.TimeoutSecs = 15
	cfg.Crawl.MaxBodyKB = 0
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "crawl.max_body_kb")
}
