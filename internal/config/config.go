package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GeminiConfig holds Gemini API settings. Key serves single-property
// lookups, MultiKey serves bulk runs, and FallbackKey takes over when the
// key for a path exhausts its quota.
type GeminiConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	MultiKey    string  `yaml:"multi_key" mapstructure:"multi_key"`
	FallbackKey string  `yaml:"fallback_key" mapstructure:"fallback_key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MultiModel  string  `yaml:"multi_model" mapstructure:"multi_model"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	QPS         float64 `yaml:"qps" mapstructure:"qps"`
}

// AnthropicConfig holds Anthropic API settings for the extraction phase.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PipelineConfig configures extraction and lender resolution behavior.
type PipelineConfig struct {
	LenderCutoff float64 `yaml:"lender_cutoff" mapstructure:"lender_cutoff"`
	SourcesFile  string  `yaml:"sources_file" mapstructure:"sources_file"`
}

// RetryConfig configures retry/backoff for provider calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// BatchConfig configures bulk refresh processing.
type BatchConfig struct {
	MaxConcurrentProjects int `yaml:"max_concurrent_projects" mapstructure:"max_concurrent_projects"`
	StaleDays             int `yaml:"stale_days" mapstructure:"stale_days"`
	Limit                 int `yaml:"limit" mapstructure:"limit"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("PROPINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.multi_model", "gemini-2.0-flash-lite")
	v.SetDefault("gemini.qps", 1.0)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("pipeline.lender_cutoff", 0.6)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 60000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("batch.max_concurrent_projects", 5)
	v.SetDefault("batch.stale_days", 30)
	v.SetDefault("batch.limit", 100)

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

// Validate checks that the configuration is usable for the given mode.
// Modes: "pipeline" (refresh/discover/batch commands), "serve", "import".
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		// The sqlite driver defaults its DSN to a local file.
		if c.Store.Driver != "sqlite" && c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}
	requireProviders := func() {
		if c.Gemini.Key == "" {
			missing = append(missing, "gemini.key is required")
		}
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
	}

	switch mode {
	case "pipeline":
		requireStore()
		requireProviders()
	case "serve":
		requireStore()
		requireProviders()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	case "import":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Batch.MaxConcurrentProjects < 1 || c.Batch.MaxConcurrentProjects > 50 {
		missing = append(missing, "batch.max_concurrent_projects must be between 1 and 50")
	}
	if c.Pipeline.LenderCutoff < 0 || c.Pipeline.LenderCutoff > 1 {
		missing = append(missing, "pipeline.lender_cutoff must be between 0 and 1")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
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
