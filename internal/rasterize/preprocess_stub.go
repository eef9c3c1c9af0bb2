//go:build !cgo || !vips

package rasterize

// Preprocessor is a no-op when built without vips support.
type Preprocessor struct{}

// NewPreprocessor creates a passthrough preprocessor.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{}
}

// Available reports whether preprocessing is built in.
func (p *Preprocessor) Available() bool {
	return false
}

// Apply returns the input unchanged.
func (p *Preprocessor) Apply(data []byte) []byte {
	return data
}
