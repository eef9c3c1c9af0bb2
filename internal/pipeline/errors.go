package pipeline

import "errors"

var (
	// ErrRasterization indicates the document could not be rendered into
	// page images at all. This is the only fatal error class: per-page
	// extraction and correction failures degrade the affected pages
	// instead of failing the run.
	ErrRasterization = errors.New("rasterization failed")

	// ErrNoPages indicates the document produced zero pages.
	ErrNoPages = errors.New("document has no pages")
)
