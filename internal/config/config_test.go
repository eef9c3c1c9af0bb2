package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			BodyLimit:    64 * 1024 * 1024,
		},
		Pipeline: PipelineConfig{
			BatchSize:   1,
			Concurrency: 1,
			CallTimeout: 2 * time.Minute,
			PageMarker:  "\n",
		},
		OCR: OCRConfig{
			Languages: []string{"chi_sim"},
			DPI:       300,
		},
		Correction: CorrectionConfig{
			Provider:       "openai",
			Model:          "deepseek/deepseek-chat",
			MaxRetries:     2,
			RetryBaseDelay: 500 * time.Millisecond,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Pipeline.BatchSize = 0 },
			wantErr: true,
			errMsg:  "batch_size",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Pipeline.Concurrency = 0 },
			wantErr: true,
			errMsg:  "concurrency",
		},
		{
			name:    "zero call timeout",
			mutate:  func(c *Config) { c.Pipeline.CallTimeout = 0 },
			wantErr: true,
			errMsg:  "call_timeout",
		},
		{
			name:    "empty page marker",
			mutate:  func(c *Config) { c.Pipeline.PageMarker = "" },
			wantErr: true,
			errMsg:  "page_marker",
		},
		{
			name:    "unknown correction provider",
			mutate:  func(c *Config) { c.Correction.Provider = "deepseek" },
			wantErr: true,
			errMsg:  "provider",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Correction.MaxRetries = -1 },
			wantErr: true,
			errMsg:  "max_retries",
		},
		{
			name:    "dpi too low",
			mutate:  func(c *Config) { c.OCR.DPI = 50 },
			wantErr: true,
			errMsg:  "dpi",
		},
		{
			name: "redis enabled without url",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.URL = ""
			},
			wantErr: true,
			errMsg:  "redis.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
