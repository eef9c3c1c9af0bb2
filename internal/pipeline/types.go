// Package pipeline drives a PDF document through rasterization, OCR
// extraction, and LLM correction, and reassembles the per-page results
// into an aligned raw/corrected text pair.
package pipeline

import (
	"context"
	"time"

	"github.com/pagemend/pagemend/internal/ocr"
)

// Stage identifies a pipeline processing stage
type Stage string

const (
	StageRasterizing Stage = "rasterizing"
	StageExtracting  Stage = "extracting"
	StageCorrecting  Stage = "correcting"
)

// ProgressEvent is a discrete progress notification emitted by the pipeline
type ProgressEvent struct {
	Stage      Stage `json:"stage"`
	PageIndex  int   `json:"page_index"`
	TotalPages int   `json:"total_pages"`
}

// PageResult is the append-only result slot for a single page. Each field
// is written at most once, by the stage that owns it.
type PageResult struct {
	Index         int     `json:"index"`
	RawText       string  `json:"raw_text"`
	CorrectedText string  `json:"corrected_text"`
	Confidence    float64 `json:"confidence"`
	Failed        bool    `json:"failed"`   // extraction failed, page degraded to empty text
	Degraded      bool    `json:"degraded"` // correction fell back to raw OCR text
	Done          bool    `json:"done"`     // page fully processed through correction
}

// Result is the document-level aggregate of a pipeline run.
type Result struct {
	Pages         []PageResult `json:"pages"`
	RawText       string       `json:"raw_text"`
	CorrectedText string       `json:"corrected_text"`
	Degraded      bool         `json:"degraded"` // at least one page fell back to raw text
	Canceled      bool         `json:"canceled"` // run stopped early, Pages holds the completed prefix
}

// Options are the tunables for a single pipeline run.
type Options struct {
	Languages      []string      // tesseract language codes
	BatchSize      int           // pages per correction call
	Concurrency    int           // max parallel extraction workers
	CallTimeout    time.Duration // bound on each extraction/correction call
	PageMarker     string        // delimiter between page texts in the aggregate
	SummaryContext bool          // carry a rolling summary between correction units
}

func (o Options) withDefaults() Options {
	if len(o.Languages) == 0 {
		o.Languages = []string{"chi_sim"}
	}
	if o.BatchSize < 1 {
		o.BatchSize = 1
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 120 * time.Second
	}
	if o.PageMarker == "" {
		o.PageMarker = "\n"
	}
	return o
}

// Rasterizer converts a PDF into ordered page image buffers.
type Rasterizer interface {
	Render(ctx context.Context, pdfData []byte) ([][]byte, error)
}

// Extractor recognizes text on a single page image.
type Extractor interface {
	ExtractImage(ctx context.Context, imageData []byte, languages []string) (*ocr.Result, error)
}

// Corrector repairs OCR text and summarizes corrected units for rolling
// context.
type Corrector interface {
	Correct(ctx context.Context, text, contextSummary string) (string, error)
	Summarize(ctx context.Context, text string) (string, error)
}

// Reporter receives progress events. Implementations must not block the
// pipeline.
type Reporter interface {
	OnEvent(event ProgressEvent)
}
