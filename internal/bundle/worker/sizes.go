package worker

import (
	"bytes"
	"fmt"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/sizepanic/sizepanic/internal/bundle"
)

// Compression levels are pinned so repeated runs of the same package
// produce comparable numbers.
const (
	gzipLevel   = gzip.DefaultCompression
	brotliLevel = brotli.DefaultCompression
)

// calculateSizes measures the bundled text raw and under the gzip and
// brotli encodings browsers negotiate.
func calculateSizes(code string) (*bundle.BundleSizes, error) {
	gzipSize, err := gzipLength(code)
	if err != nil {
		return nil, bundle.NewPipelineError(bundle.CodeUnknown, fmt.Sprintf("gzip encoding failed: %v", err))
	}

	brotliSize, err := brotliLength(code)
	if err != nil {
		return nil, bundle.NewPipelineError(bundle.CodeUnknown, fmt.Sprintf("brotli encoding failed: %v", err))
	}

	return &bundle.BundleSizes{
		Raw:    int64(len(code)),
		Gzip:   gzipSize,
		Brotli: brotliSize,
	}, nil
}

func gzipLength(code string) (int64, error) {
	var buf bytes.Buffer

	writer, err := gzip.NewWriterLevel(&buf, gzipLevel)
	if err != nil {
		return 0, err
	}
	if _, err := writer.Write([]byte(code)); err != nil {
		return 0, err
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}

	return int64(buf.Len()), nil
}

func brotliLength(code string) (int64, error) {
	var buf bytes.Buffer

	writer := brotli.NewWriterLevel(&buf, brotliLevel)
	if _, err := writer.Write([]byte(code)); err != nil {
		return 0, err
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}

	return int64(buf.Len()), nil
}
