package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Agent     AgentConfig     `yaml:"agent" mapstructure:"agent"`
	FIDC      FIDCConfig      `yaml:"fidc" mapstructure:"fidc"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	DefaultModel string `yaml:"default_model" mapstructure:"default_model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// OCRConfig configures document text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_key" mapstructure:"mistral_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// AgentConfig tunes the extraction agent's resilience.
type AgentConfig struct {
	RequestsPerMinute       int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
	BackoffInitialMs        int `yaml:"backoff_initial_ms" mapstructure:"backoff_initial_ms"`
	BackoffMaxMs            int `yaml:"backoff_max_ms" mapstructure:"backoff_max_ms"`
}

// FIDCConfig configures the report ingestion.
type FIDCConfig struct {
	SourceDir string `yaml:"source_dir" mapstructure:"source_dir"`
}

// PricingConfig holds per-model pricing rates.
type PricingConfig struct {
	Models map[string]ModelPricing `yaml:"models" mapstructure:"models"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from an optional .env file, config.yaml and
// FIDC_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FIDC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.default_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("gemini.key", "")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_key", "")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("agent.requests_per_minute", 50)
	v.SetDefault("agent.circuit_failure_threshold", 5)
	v.SetDefault("agent.circuit_reset_secs", 30)
	v.SetDefault("agent.backoff_initial_ms", 1000)
	v.SetDefault("agent.backoff_max_ms", 30000)
	v.SetDefault("fidc.source_dir", "./fidcs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

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

// Validate checks the keys a command mode needs.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "migrate", "seed", "report":
		errs = append(errs, c.storeErrors()...)
	case "process":
		errs = append(errs, c.storeErrors()...)
		errs = append(errs, c.providerErrors()...)
	case "serve":
		errs = append(errs, c.storeErrors()...)
		errs = append(errs, c.providerErrors()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Agent.RequestsPerMinute < 0 {
		errs = append(errs, "agent.requests_per_minute must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) storeErrors() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required (sqlite file path)"}
		}
	default:
		return []string{"store.driver must be postgres or sqlite"}
	}
	return nil
}

func (c *Config) providerErrors() []string {
	if c.Anthropic.Key == "" && c.Gemini.Key == "" {
		return []string{"anthropic.key or gemini.key is required"}
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
