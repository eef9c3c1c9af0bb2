// Package ocr extracts text from page images.
package ocr

import (
	"context"
	"strings"
	"unicode"
)

// ProviderType represents the type of OCR provider
type ProviderType string

const (
	ProviderTypeTesseract ProviderType = "tesseract"
)

// Result represents the result of OCR on a single page image
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
}

// Provider defines the interface for OCR engines
type Provider interface {
	// Name returns the provider name
	Name() string

	// ExtractImage extracts text from a single page image
	ExtractImage(ctx context.Context, imageData []byte, languages []string) (*Result, error)

	// IsAvailable checks if the provider is properly configured and available
	IsAvailable() bool

	// Close cleans up resources
	Close() error
}

// ProviderConfig represents OCR provider configuration
type ProviderConfig struct {
	Type      ProviderType `json:"type"`
	Languages []string     `json:"languages"` // e.g., ["chi_sim", "eng"]
}

// NewProvider creates an OCR provider based on configuration
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case ProviderTypeTesseract:
		return NewTesseractProvider(cfg)
	default:
		return NewTesseractProvider(cfg) // Default to Tesseract
	}
}

// MapLanguageHint translates a user-facing language hint into tesseract
// language codes. Unrecognized hints are passed through so raw tesseract
// codes keep working.
func MapLanguageHint(hint string) []string {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "", "simplified", "zh", "zh-hans":
		return []string{"chi_sim"}
	case "traditional", "zh-hant":
		return []string{"chi_tra"}
	case "english", "en":
		return []string{"eng"}
	default:
		return []string{hint}
	}
}

// EstimateConfidence estimates OCR confidence from text characteristics.
// Tesseract's own word confidences are not exposed through the plain text
// API, so this uses the ratio of printable runes, penalizing replacement
// characters that signal mis-decoded glyphs.
func EstimateConfidence(text string) float64 {
	if len(text) == 0 {
		return 0
	}

	printable := 0
	total := 0
	for _, r := range text {
		total++
		if r == unicode.ReplacementChar {
			continue
		}
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}

	if total == 0 {
		return 0
	}

	return float64(printable) / float64(total)
}
