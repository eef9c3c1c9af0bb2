//go:build cgo && vips

package rasterize

import (
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/rs/zerolog/log"
)

var vipsStartOnce sync.Once

// Preprocessor normalizes rasterized page images before OCR: auto-rotate
// based on EXIF/orientation and convert to grayscale, which measurably
// improves Tesseract accuracy on scanned Chinese text.
type Preprocessor struct{}

// NewPreprocessor creates a vips-backed preprocessor.
// vips.Startup is process-wide and performed once.
func NewPreprocessor() *Preprocessor {
	vipsStartOnce.Do(func() {
		vips.Startup(nil)
	})
	return &Preprocessor{}
}

// Available reports whether preprocessing is built in.
func (p *Preprocessor) Available() bool {
	return true
}

// Apply returns the preprocessed image, or the input unchanged if any
// step fails. Preprocessing is best-effort: a failure must never lose
// the page.
func (p *Preprocessor) Apply(data []byte) []byte {
	image, err := vips.NewImageFromBuffer(data)
	if err != nil {
		log.Warn().Err(err).Msg("Preprocess: failed to decode page image, using original")
		return data
	}
	defer image.Close()

	if err := image.AutoRotate(); err != nil {
		log.Warn().Err(err).Msg("Preprocess: auto-rotate failed")
	}

	if err := image.ToColorSpace(vips.InterpretationBW); err != nil {
		log.Warn().Err(err).Msg("Preprocess: grayscale conversion failed")
	}

	out, _, err := image.ExportPng(vips.NewPngExportParams())
	if err != nil {
		log.Warn().Err(err).Msg("Preprocess: PNG export failed, using original")
		return data
	}
	return out
}
