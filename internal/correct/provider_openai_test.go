package correct

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_Chat(t *testing.T) {
	var gotAuth string
	var gotBody openAIRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(openAIResponse{
			ID:    "chatcmpl-1",
			Model: "test-model",
			Choices: []openAIChoice{
				{Message: openAIMessage{Role: "assistant", Content: "修正文本"}},
			},
			Usage: &openAIUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	defer server.Close()

	p, err := newOpenAIProvider(OpenAIConfig{APIKey: "test-key", Model: "test-model", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "instructions"},
			{Role: RoleUser, Content: "text"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "修正文本", resp.Content)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-model", gotBody.Model)
	assert.Len(t, gotBody.Messages, 2)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestOpenAIProvider_ChatAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(openAIResponse{
			Error: &openAIError{Message: "rate limit exceeded", Type: "rate_limit_error", Code: "429"},
		})
	}))
	defer server.Close()

	p, err := newOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "m", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestOpenAIProvider_ChatNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openAIResponse{ID: "x"})
	}))
	defer server.Close()

	p, err := newOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "m", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestNewProviderValidation(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Type: ProviderTypeOpenAI, Model: "m"})
	assert.Error(t, err) // missing api key

	_, err = NewProvider(ProviderConfig{Type: ProviderTypeOllama})
	assert.Error(t, err) // missing model

	p, err := NewProvider(ProviderConfig{Type: ProviderTypeOllama, Model: "qwen2.5"})
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeOllama, p.Type())

	_, err = NewProvider(ProviderConfig{Type: "anthropic"})
	assert.Error(t, err)
}
