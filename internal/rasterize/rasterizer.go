// Package rasterize renders PDF documents into ordered page image buffers
// for downstream OCR.
package rasterize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

var (
	// ErrUnreadable indicates the input is not a parseable PDF.
	ErrUnreadable = errors.New("pdf is unreadable")

	// ErrEncrypted indicates the PDF is password-protected.
	ErrEncrypted = errors.New("pdf is password-protected")

	// ErrNoPages indicates the PDF contains no pages.
	ErrNoPages = errors.New("pdf has no pages")
)

// Rasterizer converts a PDF document into an ordered sequence of page images.
type Rasterizer interface {
	// Render returns one PNG buffer per page, in page order.
	Render(ctx context.Context, pdfData []byte) ([][]byte, error)

	// PageCount returns the number of pages without rasterizing.
	PageCount(pdfData []byte) (int, error)
}

// PopplerRasterizer renders pages with pdftoppm (poppler-utils).
type PopplerRasterizer struct {
	pdftoppmPath string
	dpi          int
	preprocessor *Preprocessor
}

// Options configures a PopplerRasterizer.
type Options struct {
	DPI        int
	Preprocess bool
}

// NewPopplerRasterizer creates a rasterizer backed by pdftoppm.
// It fails if pdftoppm is not in PATH.
func NewPopplerRasterizer(opts Options) (*PopplerRasterizer, error) {
	path, err := exec.LookPath("pdftoppm")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm (poppler-utils) not found in PATH: %w", err)
	}

	dpi := opts.DPI
	if dpi <= 0 {
		dpi = 300
	}

	var pre *Preprocessor
	if opts.Preprocess {
		pre = NewPreprocessor()
		if !pre.Available() {
			log.Warn().Msg("Image preprocessing requested but vips support not built in, pages will be used as rendered")
		}
	}

	log.Debug().
		Str("pdftoppm_path", path).
		Int("dpi", dpi).
		Bool("preprocess", opts.Preprocess).
		Msg("Poppler rasterizer initialized")

	return &PopplerRasterizer{
		pdftoppmPath: path,
		dpi:          dpi,
		preprocessor: pre,
	}, nil
}

// PageCount parses the PDF header and returns its page count.
func (r *PopplerRasterizer) PageCount(pdfData []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfData), int64(len(pdfData)))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "encrypted") {
			return 0, ErrEncrypted
		}
		return 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return reader.NumPage(), nil
}

// Render converts the PDF to PNG page images at the configured DPI.
func (r *PopplerRasterizer) Render(ctx context.Context, pdfData []byte) ([][]byte, error) {
	if len(pdfData) == 0 {
		return nil, ErrUnreadable
	}

	// Validate before spawning poppler so password-protected and corrupt
	// inputs fail with a typed error.
	count, err := r.PageCount(pdfData)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNoPages
	}

	tmpDir, err := os.MkdirTemp("", "pagemend-raster-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, pdfData, 0600); err != nil {
		return nil, fmt.Errorf("failed to write PDF temp file: %w", err)
	}

	outputPrefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, r.pdftoppmPath, "-png", "-r", strconv.Itoa(r.dpi), pdfPath, outputPrefix)

	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w, output: %s", err, string(output))
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read temp dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".png") {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, ErrNoPages
	}

	SortPageFiles(names)

	pages := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(tmpDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read page image %s: %w", name, err)
		}
		if r.preprocessor != nil {
			data = r.preprocessor.Apply(data)
		}
		pages = append(pages, data)
	}

	log.Debug().Int("pages", len(pages)).Int("dpi", r.dpi).Msg("PDF rasterized")
	return pages, nil
}

// SortPageFiles orders pdftoppm output names by their numeric page suffix.
// pdftoppm zero-pads page numbers so lexical order usually matches, but
// numeric comparison stays correct if padding width differs.
func SortPageFiles(names []string) {
	sort.Slice(names, func(i, j int) bool {
		ni, oki := pageNumber(names[i])
		nj, okj := pageNumber(names[j])
		if oki && okj {
			return ni < nj
		}
		return names[i] < names[j]
	})
}

// pageNumber extracts the trailing page number from a name like "page-12.png".
func pageNumber(name string) (int, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndexByte(base, '-')
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
