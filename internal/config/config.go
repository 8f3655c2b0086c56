package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Reference  ReferenceConfig  `yaml:"reference" mapstructure:"reference"`
	Upload     UploadConfig     `yaml:"upload" mapstructure:"upload"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	ReadTimeoutSecs     int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs    int      `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver         string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL    string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath     string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MemoryTTLHours int    `yaml:"memory_ttl_hours" mapstructure:"memory_ttl_hours"`
	MaxConns       int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// ReferenceConfig configures the vendor registry and past expenditures.
// An empty driver follows the run store driver (memory maps to static).
type ReferenceConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	SeedPath string `yaml:"seed_path" mapstructure:"seed_path"`
}

// UploadConfig configures document intake.
type UploadConfig struct {
	Dir                 string `yaml:"dir" mapstructure:"dir"`
	MaxBytes            int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	RetentionHours      int    `yaml:"retention_hours" mapstructure:"retention_hours"`
	JanitorIntervalMins int    `yaml:"janitor_interval_mins" mapstructure:"janitor_interval_mins"`
}

// ExtractionConfig selects and throttles the document-understanding provider.
type ExtractionConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OpenAIConfig holds settings for OpenAI-compatible vision APIs.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
	MistralURL    string `yaml:"mistral_url" mapstructure:"mistral_url"`
}

// RulesConfig holds anomaly detection and scoring thresholds.
type RulesConfig struct {
	PriceInflationThreshold float64 `yaml:"price_inflation_threshold" mapstructure:"price_inflation_threshold"`
	PriceInflationGradation bool    `yaml:"price_inflation_gradation" mapstructure:"price_inflation_gradation"`
	HighValueThreshold      float64 `yaml:"high_value_threshold" mapstructure:"high_value_threshold"`
	NewVendorDays           int     `yaml:"new_vendor_days" mapstructure:"new_vendor_days"`
	NewVendorAmount         float64 `yaml:"new_vendor_amount" mapstructure:"new_vendor_amount"`
	VendorRiskThreshold     float64 `yaml:"vendor_risk_threshold" mapstructure:"vendor_risk_threshold"`
	VendorRiskMultiplier    float64 `yaml:"vendor_risk_multiplier" mapstructure:"vendor_risk_multiplier"`
}

// PipelineConfig configures run execution.
type PipelineConfig struct {
	Async             bool  `yaml:"async" mapstructure:"async"`
	MaxConcurrentRuns int64 `yaml:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
}

// CircuitConfig configures the extraction provider circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SPENDSHIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout_secs", 30)
	v.SetDefault("server.write_timeout_secs", 120)
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "spendshield.db")
	v.SetDefault("store.memory_ttl_hours", 24)
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("reference.driver", "")
	v.SetDefault("reference.seed_path", "")
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_bytes", 10*1024*1024)
	v.SetDefault("upload.retention_hours", 24)
	v.SetDefault("upload.janitor_interval_mins", 60)
	v.SetDefault("extraction.provider", "anthropic")
	v.SetDefault("extraction.requests_per_second", 2.0)
	v.SetDefault("extraction.burst", 2)
	v.SetDefault("extraction.max_tokens", 2048)
	v.SetDefault("extraction.timeout_secs", 60)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_api_key", "")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("ocr.mistral_url", "https://api.mistral.ai/v1/ocr")
	v.SetDefault("rules.price_inflation_threshold", 0.20)
	v.SetDefault("rules.price_inflation_gradation", false)
	v.SetDefault("rules.high_value_threshold", 25000.0)
	v.SetDefault("rules.new_vendor_days", 180)
	v.SetDefault("rules.new_vendor_amount", 50000.0)
	v.SetDefault("rules.vendor_risk_threshold", 0.7)
	v.SetDefault("rules.vendor_risk_multiplier", 1.0)
	v.SetDefault("pipeline.async", false)
	v.SetDefault("pipeline.max_concurrent_runs", 4)
	v.SetDefault("circuit.failure_threshold", 3)
	v.SetDefault("circuit.reset_timeout_secs", 60)

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

// Validate checks the configuration for the given command mode ("serve",
// "analyze", "migrate"). All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "analyze", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}

	switch c.Reference.Driver {
	case "", "static", "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres reference data")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown reference.driver %q", c.Reference.Driver))
	}

	if mode != "migrate" {
		switch c.Extraction.Provider {
		case "anthropic", "openai", "mock":
		default:
			errs = append(errs, fmt.Sprintf("unknown extraction.provider %q", c.Extraction.Provider))
		}
		switch c.OCR.Provider {
		case "local", "mistral":
		default:
			errs = append(errs, fmt.Sprintf("unknown ocr.provider %q", c.OCR.Provider))
		}
		if c.Rules.PriceInflationThreshold < 0 {
			errs = append(errs, "rules.price_inflation_threshold must be >= 0")
		}
		if c.Rules.HighValueThreshold < 0 {
			errs = append(errs, "rules.high_value_threshold must be >= 0")
		}
		if c.Rules.NewVendorDays < 0 {
			errs = append(errs, "rules.new_vendor_days must be >= 0")
		}
		if c.Rules.NewVendorAmount < 0 {
			errs = append(errs, "rules.new_vendor_amount must be >= 0")
		}
		if c.Rules.VendorRiskMultiplier < 1 {
			errs = append(errs, "rules.vendor_risk_multiplier must be >= 1")
		}
		if c.Upload.MaxBytes <= 0 {
			errs = append(errs, "upload.max_bytes must be > 0")
		}
		if c.Pipeline.MaxConcurrentRuns < 1 || c.Pipeline.MaxConcurrentRuns > 64 {
			errs = append(errs, "pipeline.max_concurrent_runs must be between 1 and 64")
		}
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// ReferenceDriver resolves the effective reference data driver.
func (c *Config) ReferenceDriver() string {
	if c.Reference.Driver != "" {
		return c.Reference.Driver
	}
	if c.Store.Driver == "memory" {
		return "static"
	}
	return c.Store.Driver
}

// ProviderKey returns the credential for the configured extraction provider.
func (c *Config) ProviderKey() string {
	switch c.Extraction.Provider {
	case "anthropic":
		return c.Anthropic.Key
	case "openai":
		return c.OpenAI.Key
	default:
		return ""
	}
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
