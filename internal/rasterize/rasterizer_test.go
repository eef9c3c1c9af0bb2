package rasterize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortPageFiles(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "zero padded names stay ordered",
			input:    []string{"page-03.png", "page-01.png", "page-02.png"},
			expected: []string{"page-01.png", "page-02.png", "page-03.png"},
		},
		{
			name:     "unpadded multi digit pages sort numerically",
			input:    []string{"page-10.png", "page-2.png", "page-1.png"},
			expected: []string{"page-1.png", "page-2.png", "page-10.png"},
		},
		{
			name:     "names without page numbers fall back to lexical order",
			input:    []string{"cover.png", "appendix.png"},
			expected: []string{"appendix.png", "cover.png"},
		},
		{
			name:     "single page",
			input:    []string{"page-1.png"},
			expected: []string{"page-1.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SortPageFiles(tt.input)
			assert.Equal(t, tt.expected, tt.input)
		})
	}
}

func TestPageNumber(t *testing.T) {
	n, ok := pageNumber("page-12.png")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = pageNumber("input.pdf")
	assert.False(t, ok)

	_, ok = pageNumber("page-notanumber.png")
	assert.False(t, ok)
}

func TestPreprocessorStubPassthrough(t *testing.T) {
	p := NewPreprocessor()
	if p.Available() {
		t.Skip("built with vips support")
	}
	in := []byte{0x89, 'P', 'N', 'G'}
	assert.Equal(t, in, p.Apply(in))
}
