package correct

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const correctionSystemPrompt = "You are given a section of text from a scanned Chinese PDF, extracted using OCR, " +
	"with optional previous summary context to maintain coherence. The text may include " +
	"extraneous elements like page numbers, headers, or footers. Remove garbled text, " +
	"correct typos, fill in missing words, restore coherence, and exclude non-content " +
	"elements. Return only the corrected main content text, without explanations, notes, " +
	"or commentary. Keep the corrected text as close to the original length as possible. " +
	"If the text contains page separator lines, keep every separator line exactly as-is " +
	"and in the same position relative to the page contents."

const summarySystemPrompt = "You are given a section of corrected text from a Chinese document, previously " +
	"processed for OCR errors. Summarize it into a concise 100-200 character summary " +
	"capturing the key narrative elements (main characters, plot points, last sentence) " +
	"for maintaining coherence in subsequent text. Return only the summary, without " +
	"explanations, notes, or commentary."

// maxSummaryRunes bounds the rolling context carried between correction units.
const maxSummaryRunes = 200

// Corrector repairs OCR text through an LLM provider with bounded retries.
type Corrector struct {
	provider    Provider
	maxRetries  int
	baseDelay   time.Duration
	temperature float64
}

// CorrectorOptions configures a Corrector.
type CorrectorOptions struct {
	MaxRetries     int           // retries after the first attempt
	RetryBaseDelay time.Duration // doubled on each retry
	Temperature    float64
}

// NewCorrector creates a corrector on top of an LLM provider.
func NewCorrector(provider Provider, opts CorrectorOptions) *Corrector {
	baseDelay := opts.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &Corrector{
		provider:    provider,
		maxRetries:  opts.MaxRetries,
		baseDelay:   baseDelay,
		temperature: opts.Temperature,
	}
}

// Correct returns the corrected version of text. contextSummary, when
// non-empty, is the rolling summary of previously corrected text and is
// passed along so the model keeps terminology and narrative consistent.
func (c *Corrector) Correct(ctx context.Context, text, contextSummary string) (string, error) {
	var userMsg strings.Builder
	userMsg.WriteString("Text: ")
	userMsg.WriteString(text)
	if contextSummary != "" {
		userMsg.WriteString("\n\nContext: ")
		userMsg.WriteString(contextSummary)
	}

	resp, err := c.chatWithRetry(ctx, &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: correctionSystemPrompt},
			{Role: RoleUser, Content: userMsg.String()},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("correction failed: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}

// Summarize condenses corrected text into a short rolling context for the
// next correction unit. The result is truncated to 200 runes.
func (c *Corrector) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := c.chatWithRetry(ctx, &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: summarySystemPrompt},
			{Role: RoleUser, Content: text},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("summarization failed: %w", err)
	}

	summary := strings.TrimSpace(resp.Content)
	runes := []rune(summary)
	if len(runes) > maxSummaryRunes {
		summary = string(runes[:maxSummaryRunes])
	}
	return summary, nil
}

// Close releases the underlying provider.
func (c *Corrector) Close() error {
	return c.provider.Close()
}

// chatWithRetry sends the request, retrying failures with exponential
// backoff. Context cancellation aborts both the call and the backoff sleep.
func (c *Corrector) chatWithRetry(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			log.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("Retrying correction call")

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		resp, err := c.provider.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Cancellation is not retryable.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("exhausted %d attempts: %w", c.maxRetries+1, lastErr)
}
