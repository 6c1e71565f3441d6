package worker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSizes(t *testing.T) {
	// Repetitive input, so both encodings must beat the raw size.
	code := strings.Repeat("export const value = 'bundle-size-measurement';\n", 200)

	sizes, err := calculateSizes(code)
	require.NoError(t, err)

	assert.Equal(t, int64(len(code)), sizes.Raw)
	assert.Greater(t, sizes.Gzip, int64(0))
	assert.Greater(t, sizes.Brotli, int64(0))
	assert.Less(t, sizes.Gzip, sizes.Raw)
	assert.Less(t, sizes.Brotli, sizes.Raw)
}

func TestCalculateSizesEmptyInput(t *testing.T) {
	sizes, err := calculateSizes("")
	require.NoError(t, err)

	assert.Equal(t, int64(0), sizes.Raw)
	// Encoding headers make empty payloads non-zero.
	assert.Greater(t, sizes.Gzip, int64(0))
	assert.GreaterOrEqual(t, sizes.Brotli, int64(1))
}

func TestCalculateSizesDeterministic(t *testing.T) {
	code := strings.Repeat("const x = 1;", 500)

	first, err := calculateSizes(code)
	require.NoError(t, err)
	second, err := calculateSizes(code)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
