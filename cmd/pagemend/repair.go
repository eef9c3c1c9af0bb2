package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagemend/pagemend/internal/config"
	"github.com/pagemend/pagemend/internal/correct"
	"github.com/pagemend/pagemend/internal/ocr"
	"github.com/pagemend/pagemend/internal/pipeline"
	"github.com/pagemend/pagemend/internal/rasterize"
)

var (
	repairLanguage    string
	repairBatchSize   int
	repairConcurrency int
	repairOutput      string
	repairRawOutput   string
)

var repairCmd = &cobra.Command{
	Use:   "repair <file.pdf>",
	Short: "Repair a single PDF without running the service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		pdfData, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		p, _, err := buildPipeline(cfg)
		if err != nil {
			return err
		}

		// Ctrl-C stops the run and keeps the pages repaired so far.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reporter := pipeline.ReporterFunc(func(e pipeline.ProgressEvent) {
			log.Info().
				Str("stage", string(e.Stage)).
				Int("page", e.PageIndex+1).
				Int("total", e.TotalPages).
				Msg("Progress")
		})

		res, err := p.Run(ctx, pdfData, reporter)
		if err != nil {
			return err
		}
		if res.Canceled {
			log.Warn().Msg("Run canceled, writing the completed pages")
		}
		if res.Degraded {
			log.Warn().Msg("Some pages fell back to raw OCR text")
		}

		if repairRawOutput != "" {
			if err := os.WriteFile(repairRawOutput, []byte(res.RawText), 0o644); err != nil {
				return fmt.Errorf("failed to write raw text: %w", err)
			}
		}

		if repairOutput == "" || repairOutput == "-" {
			fmt.Println(res.CorrectedText)
			return nil
		}
		if err := os.WriteFile(repairOutput, []byte(res.CorrectedText), 0o644); err != nil {
			return fmt.Errorf("failed to write corrected text: %w", err)
		}
		log.Info().Str("output", repairOutput).Int("pages", len(res.Pages)).Msg("Repair finished")
		return nil
	},
}

// buildPipeline assembles the pipeline from configuration plus CLI
// overrides.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, pipeline.Options, error) {
	opts := pipeline.Options{
		Languages:      cfg.OCR.Languages,
		BatchSize:      cfg.Pipeline.BatchSize,
		Concurrency:    cfg.Pipeline.Concurrency,
		CallTimeout:    cfg.Pipeline.CallTimeout,
		PageMarker:     cfg.Pipeline.PageMarker,
		SummaryContext: cfg.Correction.SummaryContext,
	}
	if repairLanguage != "" {
		opts.Languages = ocr.MapLanguageHint(repairLanguage)
	}
	if repairBatchSize > 0 {
		opts.BatchSize = repairBatchSize
	}
	if repairConcurrency > 0 {
		opts.Concurrency = repairConcurrency
	}

	rasterizer, err := rasterize.NewPopplerRasterizer(rasterize.Options{
		DPI:        cfg.OCR.DPI,
		Preprocess: cfg.OCR.Preprocess,
	})
	if err != nil {
		return nil, opts, err
	}

	extractor, err := ocr.NewProvider(ocr.ProviderConfig{Languages: opts.Languages})
	if err != nil {
		return nil, opts, err
	}

	llm, err := correct.NewProvider(correct.ProviderConfig{
		Type:     correct.ProviderType(cfg.Correction.Provider),
		Model:    cfg.Correction.Model,
		APIKey:   cfg.Correction.APIKey,
		BaseURL:  cfg.Correction.BaseURL,
		Endpoint: cfg.Correction.Endpoint,
	})
	if err != nil {
		return nil, opts, err
	}
	corrector := correct.NewCorrector(llm, correct.CorrectorOptions{
		MaxRetries:     cfg.Correction.MaxRetries,
		RetryBaseDelay: cfg.Correction.RetryBaseDelay,
		Temperature:    cfg.Correction.Temperature,
	})

	log.Info().
		Str("languages", strings.Join(opts.Languages, "+")).
		Str("model", cfg.Correction.Model).
		Int("batch_size", opts.BatchSize).
		Msg("Pipeline ready")

	return pipeline.New(rasterizer, extractor, corrector, opts), opts, nil
}

func init() {
	repairCmd.Flags().StringVarP(&repairLanguage, "language", "l", "", "OCR language hint (simplified, traditional, english, or a tesseract code)")
	repairCmd.Flags().IntVarP(&repairBatchSize, "batch-size", "b", 0, "pages per correction call")
	repairCmd.Flags().IntVarP(&repairConcurrency, "concurrency", "c", 0, "parallel page extraction workers")
	repairCmd.Flags().StringVarP(&repairOutput, "output", "o", "", "write corrected text to this file instead of stdout")
	repairCmd.Flags().StringVar(&repairRawOutput, "raw-output", "", "also write the raw OCR text to this file")
}
