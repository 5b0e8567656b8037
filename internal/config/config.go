package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// GenerationConfig selects and configures the text generation provider.
type GenerationConfig struct {
	Provider          string               `yaml:"provider" mapstructure:"provider"`
	Model             string               `yaml:"model" mapstructure:"model"`
	BaseURL           string               `yaml:"base_url" mapstructure:"base_url"`
	MaxTokens         int64                `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64              `yaml:"temperature" mapstructure:"temperature"`
	RequestsPerSecond float64              `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Ollama            OllamaConfig         `yaml:"ollama" mapstructure:"ollama"`
	OpenAI            KeyConfig            `yaml:"openai" mapstructure:"openai"`
	Anthropic         KeyConfig            `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini            KeyConfig            `yaml:"gemini" mapstructure:"gemini"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
}

// OllamaConfig configures the local ollama binary.
type OllamaConfig struct {
	Binary string `yaml:"binary" mapstructure:"binary"`
}

// KeyConfig holds an API key for a hosted provider.
type KeyConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// CircuitBreakerConfig configures the breaker around generation calls.
type CircuitBreakerConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	FailureThreshold int  `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int  `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// AnalysisConfig configures the per-field retry loop.
type AnalysisConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryBackoffMs    int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryBackoffMaxMs int     `yaml:"retry_backoff_max_ms" mapstructure:"retry_backoff_max_ms"`
	RetryMultiplier   float64 `yaml:"retry_multiplier" mapstructure:"retry_multiplier"`
	Extractor         string  `yaml:"extractor" mapstructure:"extractor"`
	CacheSize         int     `yaml:"cache_size" mapstructure:"cache_size"`
	PromptPath        string  `yaml:"prompt_path" mapstructure:"prompt_path"`
}

// PipelineConfig configures preprocessing and scheduling.
type PipelineConfig struct {
	MaxChunkBytes int `yaml:"max_chunk_bytes" mapstructure:"max_chunk_bytes"`
	PostWorkers   int `yaml:"post_workers" mapstructure:"post_workers"`
}

// InputConfig locates the sample and template.
type InputConfig struct {
	SamplePath     string `yaml:"sample_path" mapstructure:"sample_path"`
	TemplatePath   string `yaml:"template_path" mapstructure:"template_path"`
	TemplateSource string `yaml:"template_source" mapstructure:"template_source"`
}

// OutputConfig locates the persisted analysis.
type OutputConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`
	Format string `yaml:"format" mapstructure:"format"`
}

// NotionConfig holds Notion API credentials and the template database ID.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	TemplateDB string `yaml:"template_db" mapstructure:"template_db"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// MonitoringConfig configures run health checks and webhook alerts.
type MonitoringConfig struct {
	Enabled                 bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours     int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold    float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ExhaustionRateThreshold float64 `yaml:"exhaustion_rate_threshold" mapstructure:"exhaustion_rate_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ANNOTATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so that env-only values are unmarshalled.
	v.SetDefault("generation.provider", "ollama")
	v.SetDefault("generation.model", "mistral")
	v.SetDefault("generation.base_url", "")
	v.SetDefault("generation.max_tokens", 1024)
	v.SetDefault("generation.temperature", 0.0)
	v.SetDefault("generation.requests_per_second", 0)
	v.SetDefault("generation.ollama.binary", "ollama")
	v.SetDefault("generation.openai.key", "")
	v.SetDefault("generation.anthropic.key", "")
	v.SetDefault("generation.gemini.key", "")
	v.SetDefault("generation.circuit_breaker.enabled", false)
	v.SetDefault("generation.circuit_breaker.failure_threshold", 5)
	v.SetDefault("generation.circuit_breaker.cooldown_secs", 30)
	v.SetDefault("analysis.max_attempts", 3)
	v.SetDefault("analysis.retry_backoff_ms", 0)
	v.SetDefault("analysis.retry_backoff_max_ms", 10000)
	v.SetDefault("analysis.retry_multiplier", 2.0)
	v.SetDefault("analysis.extractor", "heuristic")
	v.SetDefault("analysis.cache_size", 0)
	v.SetDefault("analysis.prompt_path", "")
	v.SetDefault("pipeline.max_chunk_bytes", 12000)
	v.SetDefault("pipeline.post_workers", 1)
	v.SetDefault("input.sample_path", "test_sample.json")
	v.SetDefault("input.template_path", "template.json")
	v.SetDefault("input.template_source", "file")
	v.SetDefault("output.path", "final_analysis.json")
	v.SetDefault("output.format", "json")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.template_db", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "annotator.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.exhaustion_rate_threshold", 0.5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
