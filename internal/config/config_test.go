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
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.DefaultModel)
	assert.Equal(t, "local", cfg.OCR.Provider)
	assert.Equal(t, "pdftotext", cfg.OCR.PdfToTextPath)
	assert.Equal(t, 50, cfg.Agent.RequestsPerMinute)
	assert.Equal(t, 5, cfg.Agent.CircuitFailureThreshold)
	assert.Equal(t, "./fidcs", cfg.FIDC.SourceDir)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: fidc.db
log:
  level: debug
  format: console
server:
  port: 9090
pricing:
  models:
    claude-sonnet-4-5-20250929:
      input: 3.0
      output: 15.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "fidc.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	require.Contains(t, cfg.Pricing.Models, "claude-sonnet-4-5-20250929")
	assert.InDelta(t, 15.0, cfg.Pricing.Models["claude-sonnet-4-5-20250929"].Output, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Agent.CircuitResetSecs)
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

	t.Setenv("FIDC_STORE_DRIVER", "postgres")
	t.Setenv("FIDC_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FIDC_ANTHROPIC_KEY=sk-ant-from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("FIDC_ANTHROPIC_KEY") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-from-dotenv", cfg.Anthropic.Key)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("FIDC_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
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

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/fidc"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Process(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("process"))

	cfg.Anthropic.Key = ""
	cfg.Gemini.Key = "gm-key"
	assert.NoError(t, cfg.Validate("process"))
}

func TestValidate_MissingFields(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("process")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "anthropic.key or gemini.key is required")
}

func TestValidate_MigrateNeedsNoProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	assert.NoError(t, cfg.Validate("migrate"))
	assert.NoError(t, cfg.Validate("seed"))
	assert.NoError(t, cfg.Validate("report"))
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	cfg.Server.Port = 9090
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_NegativeRate(t *testing.T) {
	cfg := validDefaults()
	cfg.Agent.RequestsPerMinute = -1
	err := cfg.Validate("process")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requests_per_minute")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
