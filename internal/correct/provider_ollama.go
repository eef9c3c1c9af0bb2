package correct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	ollamaTimeout = 300 * time.Second // Longer timeout for local models
)

// ollamaProvider implements the Provider interface for Ollama
type ollamaProvider struct {
	config     OllamaConfig
	httpClient *http.Client
}

func newOllamaProvider(config OllamaConfig) (*ollamaProvider, error) {
	config.Endpoint = strings.TrimSuffix(config.Endpoint, "/")

	return &ollamaProvider{
		config: config,
		httpClient: &http.Client{
			Timeout: ollamaTimeout,
		},
	}, nil
}

// Name returns the provider name
func (p *ollamaProvider) Name() string {
	return "ollama"
}

// Type returns the provider type
func (p *ollamaProvider) Type() ProviderType {
	return ProviderTypeOllama
}

// ValidateConfig validates the provider configuration
func (p *ollamaProvider) ValidateConfig() error {
	if p.config.Endpoint == "" {
		return fmt.Errorf("ollama: endpoint is required")
	}
	if p.config.Model == "" {
		return fmt.Errorf("ollama: model is required")
	}
	return nil
}

// Close cleans up resources
func (p *ollamaProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// ollamaRequest represents the Ollama chat API request format
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens
}

// ollamaResponse represents the Ollama chat API response format
type ollamaResponse struct {
	Model           string        `json:"model"`
	CreatedAt       string        `json:"created_at"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

// Chat sends a non-streaming chat request to Ollama
func (p *ollamaProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	messages := make([]ollamaMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = ollamaMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	var opts *ollamaOptions
	if req.Temperature != 0 || req.MaxTokens != 0 {
		opts = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}

	body, err := json.Marshal(ollamaRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.Endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &ChatResponse{
		Model:   ollamaResp.Model,
		Content: ollamaResp.Message.Content,
		Usage: &UsageStats{
			PromptTokens:     ollamaResp.PromptEvalCount,
			CompletionTokens: ollamaResp.EvalCount,
			TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
		},
	}, nil
}
