// Package correct repairs OCR output through an LLM chat API.
package correct

import (
	"context"
	"fmt"
)

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderTypeOpenAI ProviderType = "openai"
	ProviderTypeOllama ProviderType = "ollama"
)

// Role represents the role of a message in a conversation
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a message in a conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a request to the LLM provider
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse represents a response from the LLM provider
type ChatResponse struct {
	ID      string      `json:"id"`
	Model   string      `json:"model"`
	Content string      `json:"content"`
	Usage   *UsageStats `json:"usage,omitempty"`
}

// UsageStats represents token usage statistics
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for LLM chat providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Type returns the provider type
	Type() ProviderType

	// Chat sends a chat request and returns the completion
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// ValidateConfig validates the provider configuration
	ValidateConfig() error

	// Close cleans up any resources
	Close() error
}

// ProviderConfig represents the base configuration for all providers
type ProviderConfig struct {
	Type     ProviderType `json:"type"`
	Model    string       `json:"model"`
	APIKey   string       `json:"api_key,omitempty"`
	BaseURL  string       `json:"base_url,omitempty"` // OpenAI-compatible endpoint override
	Endpoint string       `json:"endpoint,omitempty"` // Ollama endpoint
}

// NewProvider creates a new LLM provider based on the configuration
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case ProviderTypeOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: api_key is required")
		}
		if cfg.Model == "" {
			return nil, fmt.Errorf("openai: model is required")
		}
		return newOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case ProviderTypeOllama:
		if cfg.Model == "" {
			return nil, fmt.Errorf("ollama: model is required")
		}
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "http://localhost:11434"
		}
		return newOllamaProvider(OllamaConfig{
			Endpoint: endpoint,
			Model:    cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}

// OpenAIConfig represents OpenAI-compatible provider configuration
type OpenAIConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
}

// OllamaConfig represents Ollama-specific configuration
type OllamaConfig struct {
	Endpoint string `json:"endpoint"`
	Model    string `json:"model"`
}
