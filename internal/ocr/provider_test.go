package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapLanguageHint(t *testing.T) {
	tests := []struct {
		name     string
		hint     string
		expected []string
	}{
		{name: "simplified", hint: "simplified", expected: []string{"chi_sim"}},
		{name: "traditional", hint: "traditional", expected: []string{"chi_tra"}},
		{name: "english", hint: "english", expected: []string{"eng"}},
		{name: "empty defaults to simplified", hint: "", expected: []string{"chi_sim"}},
		{name: "case insensitive", hint: "Traditional", expected: []string{"chi_tra"}},
		{name: "bcp47 hans", hint: "zh-Hans", expected: []string{"chi_sim"}},
		{name: "raw tesseract code passes through", hint: "jpn", expected: []string{"jpn"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapLanguageHint(tt.hint))
		})
	}
}

func TestEstimateConfidence(t *testing.T) {
	assert.Equal(t, 0.0, EstimateConfidence(""))
	assert.Equal(t, 1.0, EstimateConfidence("清晰的中文文本"))
	assert.Equal(t, 1.0, EstimateConfidence("line one\nline two\ttabbed"))

	// Replacement characters lower the score.
	garbled := EstimateConfidence("部分�乱�码")
	assert.Less(t, garbled, 1.0)
	assert.Greater(t, garbled, 0.0)
}

func TestNewProviderDefaultsToTesseract(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Type: "something-else"})
	assert.NoError(t, err)
	assert.NotNil(t, p)
}
