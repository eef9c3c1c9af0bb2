package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Correction CorrectionConfig `mapstructure:"correction"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Debug      bool             `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
}

// PipelineConfig contains repair pipeline tunables
type PipelineConfig struct {
	BatchSize   int           `mapstructure:"batch_size"`   // pages per correction call
	Concurrency int           `mapstructure:"concurrency"`  // max parallel page extraction workers
	CallTimeout time.Duration `mapstructure:"call_timeout"` // per extraction/correction call bound
	PageMarker  string        `mapstructure:"page_marker"`  // delimiter between per-page texts in the aggregate output
}

// OCRConfig contains OCR engine settings
type OCRConfig struct {
	Languages  []string `mapstructure:"languages"` // tesseract language codes, e.g. ["chi_sim"]
	DPI        int      `mapstructure:"dpi"`       // rasterization resolution
	Preprocess bool     `mapstructure:"preprocess"`
}

// CorrectionConfig contains LLM correction settings
type CorrectionConfig struct {
	Provider       string        `mapstructure:"provider"` // openai or ollama
	Model          string        `mapstructure:"model"`
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"` // for OpenAI-compatible services (OpenRouter, DeepSeek)
	Endpoint       string        `mapstructure:"endpoint"` // ollama endpoint
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	Temperature    float64       `mapstructure:"temperature"`
	SummaryContext bool          `mapstructure:"summary_context"` // carry a rolling summary of corrected text between units
}

// RealtimeConfig contains progress streaming settings
type RealtimeConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	ChannelBufferSize int           `mapstructure:"channel_buffer_size"`
}

// JobsConfig contains repair job lifecycle settings
type JobsConfig struct {
	Retention     time.Duration `mapstructure:"retention"`       // how long finished jobs stay queryable
	MaxUploadSize int64         `mapstructure:"max_upload_size"` // PDF upload limit in bytes
}

// RedisConfig contains the optional redis pub/sub backend settings
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"` // redis://[password@]host:port[/db]
}

// MetricsConfig contains prometheus exposure settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	viper.SetConfigName("pagemend")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/pagemend")

	setDefaults()

	// Enable environment variable support with underscore replacer
	viper.AutomaticEnv()
	viper.SetEnvPrefix("PAGEMEND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file (if it exists)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.body_limit", 64*1024*1024) // 64MB

	// Pipeline defaults
	viper.SetDefault("pipeline.batch_size", 1)
	viper.SetDefault("pipeline.concurrency", 1)
	viper.SetDefault("pipeline.call_timeout", "120s")
	viper.SetDefault("pipeline.page_marker", "\n")

	// OCR defaults
	viper.SetDefault("ocr.languages", []string{"chi_sim"})
	viper.SetDefault("ocr.dpi", 300)
	viper.SetDefault("ocr.preprocess", false)

	// Correction defaults
	viper.SetDefault("correction.provider", "openai")
	viper.SetDefault("correction.model", "deepseek/deepseek-chat")
	viper.SetDefault("correction.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("correction.endpoint", "http://localhost:11434")
	viper.SetDefault("correction.max_retries", 2)
	viper.SetDefault("correction.retry_base_delay", "500ms")
	viper.SetDefault("correction.temperature", 0.0)
	viper.SetDefault("correction.summary_context", true)

	// Realtime defaults
	viper.SetDefault("realtime.enabled", true)
	viper.SetDefault("realtime.ping_interval", "30s")
	viper.SetDefault("realtime.channel_buffer_size", 100)

	// Jobs defaults
	viper.SetDefault("jobs.retention", "1h")
	viper.SetDefault("jobs.max_upload_size", 64*1024*1024) // 64MB

	// Redis defaults (local pub/sub unless enabled)
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.url", "redis://localhost:6379/0")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)

	viper.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("pipeline.batch_size must be at least 1")
	}

	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline.concurrency must be at least 1")
	}

	if c.Pipeline.CallTimeout <= 0 {
		return fmt.Errorf("pipeline.call_timeout must be positive")
	}

	if c.Pipeline.PageMarker == "" {
		return fmt.Errorf("pipeline.page_marker must not be empty")
	}

	if c.Correction.Provider != "openai" && c.Correction.Provider != "ollama" {
		return fmt.Errorf("correction provider must be 'openai' or 'ollama'")
	}

	if c.Correction.MaxRetries < 0 {
		return fmt.Errorf("correction.max_retries must not be negative")
	}

	if c.OCR.DPI < 72 || c.OCR.DPI > 1200 {
		return fmt.Errorf("ocr.dpi must be between 72 and 1200")
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when redis is enabled")
	}

	return nil
}
