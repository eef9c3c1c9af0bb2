package api

import (
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pagemend/pagemend/internal/config"
	"github.com/pagemend/pagemend/internal/jobs"
	"github.com/pagemend/pagemend/internal/ocr"
	"github.com/pagemend/pagemend/internal/pipeline"
)

const maxBatchSize = 20

// RepairHandler exposes the repair job lifecycle over HTTP.
type RepairHandler struct {
	manager *jobs.Manager
	cfg     *config.Config
}

// NewRepairHandler creates a repair handler.
func NewRepairHandler(manager *jobs.Manager, cfg *config.Config) *RepairHandler {
	return &RepairHandler{manager: manager, cfg: cfg}
}

// RegisterRoutes registers the repair endpoints.
func (h *RepairHandler) RegisterRoutes(router fiber.Router) {
	repairs := router.Group("/repairs")
	repairs.Post("/", h.Create)
	repairs.Get("/", h.List)
	repairs.Get("/:id", h.Get)
	repairs.Get("/:id/result", h.Result)
	repairs.Delete("/:id", h.Cancel)
}

// Create accepts a multipart PDF upload and starts a repair job.
func (h *RepairHandler) Create(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field 'file' is required")
	}

	if max := h.cfg.Jobs.MaxUploadSize; max > 0 && file.Size > max {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "uploaded file exceeds the size limit")
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		return fiber.NewError(fiber.StatusUnsupportedMediaType, "only PDF files are supported")
	}

	opts, err := h.runOptions(c)
	if err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to read uploaded file")
	}
	defer src.Close()

	pdfData, err := io.ReadAll(src)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to read uploaded file")
	}
	if len(pdfData) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "uploaded file is empty")
	}

	snap := h.manager.Submit(file.Filename, pdfData, opts)
	return c.Status(fiber.StatusAccepted).JSON(snap)
}

// runOptions derives per-job pipeline options from configuration plus
// optional form field overrides.
func (h *RepairHandler) runOptions(c *fiber.Ctx) (pipeline.Options, error) {
	opts := pipeline.Options{
		Languages:      h.cfg.OCR.Languages,
		BatchSize:      h.cfg.Pipeline.BatchSize,
		Concurrency:    h.cfg.Pipeline.Concurrency,
		CallTimeout:    h.cfg.Pipeline.CallTimeout,
		PageMarker:     h.cfg.Pipeline.PageMarker,
		SummaryContext: h.cfg.Correction.SummaryContext,
	}

	if lang := c.FormValue("language"); lang != "" {
		opts.Languages = ocr.MapLanguageHint(lang)
	}
	if v := c.FormValue("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxBatchSize {
			return opts, fiber.NewError(fiber.StatusBadRequest, "batch_size must be an integer between 1 and 20")
		}
		opts.BatchSize = n
	}
	if v := c.FormValue("concurrency"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 16 {
			return opts, fiber.NewError(fiber.StatusBadRequest, "concurrency must be an integer between 1 and 16")
		}
		opts.Concurrency = n
	}

	return opts, nil
}

// List returns all known jobs, newest first.
func (h *RepairHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"jobs": h.manager.List()})
}

// Get returns the status snapshot of one job.
func (h *RepairHandler) Get(c *fiber.Ctx) error {
	id, err := parseJobID(c)
	if err != nil {
		return err
	}

	snap, err := h.manager.Get(id)
	if err != nil {
		return jobError(err)
	}
	return c.JSON(snap)
}

// Result returns the repair result once the job has settled.
func (h *RepairHandler) Result(c *fiber.Ctx) error {
	id, err := parseJobID(c)
	if err != nil {
		return err
	}

	res, err := h.manager.Result(id)
	if err != nil {
		return jobError(err)
	}
	if res == nil {
		return fiber.NewError(fiber.StatusNotFound, "job produced no result")
	}
	return c.JSON(res)
}

// Cancel requests cooperative cancellation. The job settles with the
// pages completed so far.
func (h *RepairHandler) Cancel(c *fiber.Ctx) error {
	id, err := parseJobID(c)
	if err != nil {
		return err
	}

	if err := h.manager.Cancel(id); err != nil {
		return jobError(err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func parseJobID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid job id")
	}
	return id, nil
}

// jobError maps manager errors to HTTP statuses.
func jobError(err error) error {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrNotFinished):
		return fiber.NewError(fiber.StatusConflict, "job has not finished yet")
	case errors.Is(err, jobs.ErrAlreadyFinished):
		return fiber.NewError(fiber.StatusConflict, "job already finished")
	default:
		return err
	}
}
