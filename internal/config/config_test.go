package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// No config.yaml in the temp dir.
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "spendshield.db", cfg.Store.SQLitePath)
	assert.Equal(t, "uploads", cfg.Upload.Dir)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxBytes)
	assert.Equal(t, 24, cfg.Upload.RetentionHours)
	assert.Equal(t, "anthropic", cfg.Extraction.Provider)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, "local", cfg.OCR.Provider)
	assert.InDelta(t, 0.20, cfg.Rules.PriceInflationThreshold, 0.001)
	assert.False(t, cfg.Rules.PriceInflationGradation)
	assert.InDelta(t, 25000, cfg.Rules.HighValueThreshold, 0.001)
	assert.Equal(t, 180, cfg.Rules.NewVendorDays)
	assert.InDelta(t, 50000, cfg.Rules.NewVendorAmount, 0.001)
	assert.InDelta(t, 0.7, cfg.Rules.VendorRiskThreshold, 0.001)
	assert.InDelta(t, 1.0, cfg.Rules.VendorRiskMultiplier, 0.001)
	assert.False(t, cfg.Pipeline.Async)
	assert.Equal(t, int64(4), cfg.Pipeline.MaxConcurrentRuns)
	assert.Equal(t, 3, cfg.Circuit.FailureThreshold)
	assert.Equal(t, "sqlite", cfg.ReferenceDriver())
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: memory
log:
  level: debug
  format: console
server:
  port: 9090
rules:
  price_inflation_gradation: true
  high_value_threshold: 10000
pipeline:
  async: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Rules.PriceInflationGradation)
	assert.InDelta(t, 10000, cfg.Rules.HighValueThreshold, 0.001)
	assert.True(t, cfg.Pipeline.Async)
	assert.Equal(t, "static", cfg.ReferenceDriver())
	// Defaults still apply for unset values
	assert.InDelta(t, 0.20, cfg.Rules.PriceInflationThreshold, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("SPENDSHIELD_STORE_DRIVER", "memory")
	t.Setenv("SPENDSHIELD_LOG_LEVEL", "warn")
	t.Setenv("SPENDSHIELD_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.Equal(t, "sk-ant-test", cfg.ProviderKey())
}

func TestLoadInvalidFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0o644))

	_, err := Load()
	assert.Error(t, err)
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

// validDefaults returns a Config with the defaults validation relies on.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8000
	cfg.Store.Driver = "sqlite"
	cfg.Extraction.Provider = "anthropic"
	cfg.OCR.Provider = "local"
	cfg.Rules.PriceInflationThreshold = 0.2
	cfg.Rules.HighValueThreshold = 25000
	cfg.Rules.NewVendorDays = 180
	cfg.Rules.NewVendorAmount = 50000
	cfg.Rules.VendorRiskMultiplier = 1
	cfg.Upload.MaxBytes = 1024
	cfg.Pipeline.MaxConcurrentRuns = 4
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))
	assert.NoError(t, cfg.Validate("analyze"))
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")

	// Port is irrelevant to the CLI.
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/spendshield"
	assert.NoError(t, cfg.Validate("serve"))
	assert.Equal(t, "postgres", cfg.ReferenceDriver())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "redis"
	cfg.Extraction.Provider = "gemini"
	cfg.Rules.VendorRiskMultiplier = 0.5
	cfg.Pipeline.MaxConcurrentRuns = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store.driver "redis"`)
	assert.Contains(t, err.Error(), `unknown extraction.provider "gemini"`)
	assert.Contains(t, err.Error(), "vendor_risk_multiplier")
	assert.Contains(t, err.Error(), "max_concurrent_runs")
}

func TestValidate_NewVendorRule(t *testing.T) {
	cfg := validDefaults()
	cfg.Rules.NewVendorDays = -1
	cfg.Rules.NewVendorAmount = -5

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules.new_vendor_days")
	assert.Contains(t, err.Error(), "rules.new_vendor_amount")

	cfg.Rules.NewVendorDays = 0
	cfg.Rules.NewVendorAmount = 0
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidate_MigrateSkipsPipelineChecks(t *testing.T) {
	cfg := validDefaults()
	cfg.Extraction.Provider = "gemini"
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestProviderKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "a"
	cfg.OpenAI.Key = "o"

	assert.Equal(t, "a", cfg.ProviderKey())
	cfg.Extraction.Provider = "openai"
	assert.Equal(t, "o", cfg.ProviderKey())
	cfg.Extraction.Provider = "mock"
	assert.Empty(t, cfg.ProviderKey())
}
