package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// batchSeparator delimits pages inside a multi-page correction unit. The
// correction prompt instructs the model to preserve separator lines, and a
// response with a mismatched separator count degrades the whole batch.
const batchSeparator = "\n-----PAGE BREAK-----\n"

// Pipeline runs documents through rasterization, extraction, and
// correction. A Pipeline is safe for concurrent runs; all per-run state
// lives in Run.
type Pipeline struct {
	rasterizer Rasterizer
	extractor  Extractor
	corrector  Corrector
	opts       Options
}

// New creates a pipeline.
func New(rasterizer Rasterizer, extractor Extractor, corrector Corrector, opts Options) *Pipeline {
	return &Pipeline{
		rasterizer: rasterizer,
		extractor:  extractor,
		corrector:  corrector,
		opts:       opts.withDefaults(),
	}
}

// Run processes a PDF document and returns the aligned raw/corrected
// result. reporter may be nil. Only rasterization failures and empty
// documents return an error; page-level failures are absorbed into the
// result, and a canceled run returns the completed prefix with Canceled
// set.
func (p *Pipeline) Run(ctx context.Context, pdfData []byte, reporter Reporter) (*Result, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}
	images, err := p.rasterizer.Render(ctx, pdfData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRasterization, err)
	}
	if len(images) == 0 {
		return nil, ErrNoPages
	}

	total := len(images)
	pages := make([]PageResult, total)
	for i := range pages {
		pages[i].Index = i
		reporter.OnEvent(ProgressEvent{Stage: StageRasterizing, PageIndex: i, TotalPages: total})
	}

	canceled := p.extractPages(ctx, images, pages, reporter)
	if !canceled {
		canceled = p.correctPages(ctx, pages, reporter)
	}

	result := p.assemble(pages, canceled)

	log.Debug().
		Int("pages", total).
		Bool("degraded", result.Degraded).
		Bool("canceled", result.Canceled).
		Msg("Pipeline run finished")

	return result, nil
}

// extractPages OCRs all pages, sequentially or with bounded workers. Each
// worker writes only its own result slot. Returns true if the run was
// canceled before all pages were scheduled.
func (p *Pipeline) extractPages(ctx context.Context, images [][]byte, pages []PageResult, reporter Reporter) bool {
	total := len(images)

	if p.opts.Concurrency == 1 {
		for i := range images {
			if ctx.Err() != nil {
				return true
			}
			p.extractPage(ctx, images[i], &pages[i], total, reporter)
		}
		return ctx.Err() != nil
	}

	sem := semaphore.NewWeighted(int64(p.opts.Concurrency))
	var wg sync.WaitGroup
	canceled := false

	for i := range images {
		if err := sem.Acquire(ctx, 1); err != nil {
			canceled = true
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			p.extractPage(ctx, images[i], &pages[i], total, reporter)
		}(i)
	}

	wg.Wait()
	return canceled || ctx.Err() != nil
}

// extractPage OCRs a single page into its result slot. Extraction failure
// (including timeout) degrades the page to empty text and sets its error
// flag; correction will skip it.
func (p *Pipeline) extractPage(ctx context.Context, image []byte, slot *PageResult, total int, reporter Reporter) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	res, err := p.extractor.ExtractImage(callCtx, image, p.opts.Languages)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Int("page", slot.Index).Msg("Extraction failed, degrading page to empty text")
			slot.Failed = true
		}
	} else {
		slot.RawText = res.Text
		slot.Confidence = res.Confidence
	}

	reporter.OnEvent(ProgressEvent{Stage: StageExtracting, PageIndex: slot.Index, TotalPages: total})
}

// correctPages runs correction over fixed-size page batches in index
// order, carrying the rolling summary between units. Returns true if the
// run was canceled before all batches settled.
func (p *Pipeline) correctPages(ctx context.Context, pages []PageResult, reporter Reporter) bool {
	total := len(pages)
	summary := ""

	for start := 0; start < total; start += p.opts.BatchSize {
		if ctx.Err() != nil {
			return true
		}

		end := start + p.opts.BatchSize
		if end > total {
			end = total
		}
		batch := pages[start:end]

		corrected, newSummary, canceled := p.correctBatch(ctx, batch, summary)
		if canceled {
			return true
		}
		summary = newSummary

		for i := range batch {
			if !batch[i].Failed {
				batch[i].CorrectedText = corrected[i]
			}
			batch[i].Done = true
			reporter.OnEvent(ProgressEvent{Stage: StageCorrecting, PageIndex: batch[i].Index, TotalPages: total})
		}
	}

	return false
}

// correctBatch corrects one unit of pages. It returns the corrected text
// per batch slot (raw text fallback on failure), the next rolling summary,
// and whether the run was canceled mid-call. Pages whose extraction failed
// are excluded from the unit and keep empty corrected text.
func (p *Pipeline) correctBatch(ctx context.Context, batch []PageResult, summary string) ([]string, string, bool) {
	corrected := make([]string, len(batch))

	var parts []string
	var live []int // batch indices included in the unit
	for i := range batch {
		if batch[i].Failed {
			continue
		}
		parts = append(parts, batch[i].RawText)
		live = append(live, i)
	}

	if len(live) == 0 {
		return corrected, summary, false
	}

	unit := strings.Join(parts, batchSeparator)

	callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	out, err := p.corrector.Correct(callCtx, unit, summary)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return nil, "", true
		}
		log.Warn().
			Err(err).
			Int("first_page", batch[0].Index).
			Int("pages", len(live)).
			Msg("Correction failed, falling back to raw text for unit")
		for _, i := range live {
			corrected[i] = batch[i].RawText
			batch[i].Degraded = true
		}
		return corrected, summary, false
	}

	outParts := strings.Split(out, strings.TrimSpace(batchSeparator))
	if len(outParts) != len(live) {
		log.Warn().
			Int("want", len(live)).
			Int("got", len(outParts)).
			Msg("Correction response lost page separators, falling back to raw text for unit")
		for _, i := range live {
			corrected[i] = batch[i].RawText
			batch[i].Degraded = true
		}
		return corrected, summary, false
	}

	for j, i := range live {
		corrected[i] = strings.TrimSpace(outParts[j])
	}

	if p.opts.SummaryContext {
		sumCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
		newSummary, err := p.corrector.Summarize(sumCtx, out)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", true
			}
			// Losing the rolling context is harmless; the next unit
			// just starts without it.
			log.Debug().Err(err).Msg("Summary call failed, resetting rolling context")
			newSummary = ""
		}
		summary = newSummary
	}

	return corrected, summary, false
}

// assemble concatenates completed pages in index order. Raw and corrected
// streams always carry the same pages, so alignment between the two panes
// holds even for degraded or canceled runs.
func (p *Pipeline) assemble(pages []PageResult, canceled bool) *Result {
	var raw, corrected []string
	degraded := false

	for i := range pages {
		if !pages[i].Done {
			continue
		}
		raw = append(raw, pages[i].RawText)
		corrected = append(corrected, pages[i].CorrectedText)
		if pages[i].Degraded {
			degraded = true
		}
	}

	return &Result{
		Pages:         pages,
		RawText:       strings.Join(raw, p.opts.PageMarker),
		CorrectedText: strings.Join(corrected, p.opts.PageMarker),
		Degraded:      degraded,
		Canceled:      canceled,
	}
}
