package output

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Supported output compressions.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// gzipWriterPool reuses gzip writers across files; each carries several
// hundred KB of deflate state. Writers are Reset onto a new buffer per file.
var gzipWriterPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// compressor compresses whole files.
type compressor struct {
	algo string
	zenc *zstd.Encoder
}

func newCompressor(algo string) (*compressor, error) {
	switch algo {
	case "", CompressionNone:
		return &compressor{algo: CompressionNone}, nil
	case CompressionGzip:
		return &compressor{algo: algo}, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		return &compressor{algo: algo, zenc: enc}, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", algo)
	}
}

// suffix is appended to file names.
func (c *compressor) suffix() string {
	switch c.algo {
	case CompressionGzip:
		return ".gz"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

func (c *compressor) compress(data []byte) ([]byte, error) {
	switch c.algo {
	case CompressionGzip:
		var buf bytes.Buffer
		gw := gzipWriterPool.Get().(*gzip.Writer)
		gw.Reset(&buf)
		defer gzipWriterPool.Put(gw)
		if _, err := gw.Write(data); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		if err := gw.Close(); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		// EncodeAll is safe for concurrent use.
		return c.zenc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	default:
		return data, nil
	}
}

func (c *compressor) close() {
	if c.zenc != nil {
		c.zenc.Close()
	}
}
