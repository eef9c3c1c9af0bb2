//go:build cgo && ocr

package ocr

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog/log"
)

// TesseractProvider implements OCR using Tesseract
type TesseractProvider struct {
	name             string
	defaultLanguages []string
	available        bool
	tesseractPath    string
}

// NewTesseractProvider creates a new Tesseract OCR provider
func NewTesseractProvider(cfg ProviderConfig) (*TesseractProvider, error) {
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"chi_sim"}
	}

	tesseractPath, err := exec.LookPath("tesseract")
	available := err == nil

	if !available {
		log.Warn().Msg("Tesseract not found in PATH, OCR will be unavailable")
	} else {
		log.Debug().
			Str("tesseract_path", tesseractPath).
			Strs("languages", languages).
			Msg("Tesseract provider initialized")
	}

	return &TesseractProvider{
		name:             "tesseract",
		defaultLanguages: languages,
		available:        available,
		tesseractPath:    tesseractPath,
	}, nil
}

func (p *TesseractProvider) Name() string {
	return p.name
}

func (p *TesseractProvider) IsAvailable() bool {
	return p.available
}

// ExtractImage runs Tesseract on a single page image.
func (p *TesseractProvider) ExtractImage(ctx context.Context, imageData []byte, languages []string) (*Result, error) {
	if !p.available {
		return nil, fmt.Errorf("tesseract is not available")
	}

	if len(languages) == 0 {
		languages = p.defaultLanguages
	}

	// gosseract has no context support; honor cancellation before the
	// engine call so canceled runs stop scheduling promptly.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	langStr := strings.Join(languages, "+")
	if err := client.SetLanguage(langStr); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}

	if err := client.SetImageFromBytes(imageData); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	text = strings.TrimSpace(text)
	return &Result{
		Text:       text,
		Confidence: EstimateConfidence(text),
		Language:   langStr,
	}, nil
}

func (p *TesseractProvider) Close() error {
	return nil
}
