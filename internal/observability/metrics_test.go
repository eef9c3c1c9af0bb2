package observability

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusClass(t *testing.T) {
	testCases := []struct {
		status   int
		expected string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
		{100, "unknown"},
		{0, "unknown"},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			assert.Equal(t, tc.expected, statusClass(tc.status))
		})
	}
}

func TestNormalizePath(t *testing.T) {
	t.Run("returns path unchanged for short paths", func(t *testing.T) {
		assert.Equal(t, "/v1/repairs/:id", normalizePath("/v1/repairs/:id"))
	})

	t.Run("returns long_path for paths over 50 chars", func(t *testing.T) {
		longPath := "/v1/some/very/long/path/that/exceeds/fifty/characters/limit"
		assert.Equal(t, "long_path", normalizePath(longPath))
	})

	t.Run("labels unmatched routes", func(t *testing.T) {
		assert.Equal(t, "unmatched", normalizePath(""))
	})
}
