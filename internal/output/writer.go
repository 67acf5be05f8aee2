// Package output encodes merged and pivoted tables and hands them to a
// storage backend.
package output

import (
	"context"
	"errors"
	"fmt"

	"github.com/basekick-labs/sarpivot/internal/pivot"
	"github.com/basekick-labs/sarpivot/internal/storage"
	"github.com/basekick-labs/sarpivot/internal/table"
	"github.com/rs/zerolog"
)

// Supported table encodings.
const (
	EncodingText    = "text"
	EncodingParquet = "parquet"
	EncodingMsgpack = "msgpack"
)

// ErrUnsupportedEncoding is returned for an encoding/format combination the
// writer cannot produce.
var ErrUnsupportedEncoding = errors.New("unsupported output encoding")

// Config selects how files are encoded.
type Config struct {
	Format      string // sadf output format: csv, json or xml
	Encoding    string // text, parquet or msgpack; binary encodings need csv
	Compression string // none, gzip or zstd
	TimeColumn  string
}

type encoder interface {
	encode(name string, t *table.Table) ([]byte, error)
}

type textEncoder struct{}

func (textEncoder) encode(_ string, t *table.Table) ([]byte, error) {
	return t.Bytes(), nil
}

// Writer names, encodes and stores output files.
type Writer struct {
	backend storage.Backend
	cfg     Config
	enc     encoder
	comp    *compressor
	ext     string
	logger  zerolog.Logger
}

// New creates a writer storing files through backend.
func New(backend storage.Backend, cfg Config, logger zerolog.Logger) (*Writer, error) {
	if cfg.Format == "" {
		cfg.Format = "csv"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = EncodingText
	}

	comp, err := newCompressor(cfg.Compression)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		backend: backend,
		cfg:     cfg,
		comp:    comp,
		logger:  logger.With().Str("component", "output").Str("backend", backend.Type()).Logger(),
	}

	switch cfg.Encoding {
	case EncodingText:
		w.enc, w.ext = textEncoder{}, cfg.Format
	case EncodingParquet:
		w.enc, w.ext = newParquetEncoder(cfg.TimeColumn, comp.algo), "parquet"
		// Parquet compresses its pages itself.
		comp.close()
		w.comp = &compressor{algo: CompressionNone}
	case EncodingMsgpack:
		w.enc, w.ext = &msgpackEncoder{timeColumn: cfg.TimeColumn}, "msgpack"
	default:
		comp.close()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, cfg.Encoding)
	}
	if cfg.Encoding != EncodingText && cfg.Format != "csv" {
		w.comp.close()
		return nil, fmt.Errorf("%w: %s requires format csv, got %s", ErrUnsupportedEncoding, cfg.Encoding, cfg.Format)
	}
	return w, nil
}

// Extension returns the file extension of tables, without the compression
// suffix.
func (w *Writer) Extension() string {
	return w.ext
}

// TablePath returns the file name of a metric's merged table.
func (w *Writer) TablePath(label string) string {
	return label + "." + w.ext + w.comp.suffix()
}

// PivotPath returns the file name of one pivoted table of a metric.
func (w *Writer) PivotPath(label, name string) string {
	return label + "_" + name + "." + w.ext + w.comp.suffix()
}

// DocumentPath returns the file name of a merged JSON or XML document.
func (w *Writer) DocumentPath(label string) string {
	return label + "." + w.cfg.Format + w.comp.suffix()
}

// WriteTable encodes and stores a metric's merged table, returning its path.
func (w *Writer) WriteTable(ctx context.Context, label string, t *table.Table) (string, error) {
	return w.writeTable(ctx, label, w.TablePath(label), t)
}

// WritePivots stores every successfully pivoted table, skipping results
// carrying an error. It returns the paths written and the joined write
// errors; a failed file does not stop the others.
func (w *Writer) WritePivots(ctx context.Context, label string, results []pivot.Result) ([]string, error) {
	var (
		written []string
		errs    []error
	)
	for _, r := range results {
		if r.Err != nil || r.Table == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		name := label + "_" + r.Name
		path, err := w.writeTable(ctx, name, w.PivotPath(label, r.Name), r.Table)
		if err != nil {
			errs = append(errs, fmt.Errorf("pivot %s: %w", r.ValueColumn, err))
			continue
		}
		written = append(written, path)
	}
	return written, errors.Join(errs...)
}

// WriteDocument stores a merged JSON or XML document as is.
func (w *Writer) WriteDocument(ctx context.Context, label string, data []byte) (string, error) {
	if w.cfg.Encoding != EncodingText {
		return "", fmt.Errorf("%w: documents are written as text only", ErrUnsupportedEncoding)
	}
	path := w.DocumentPath(label)
	if err := w.store(ctx, path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Close releases encoder resources. The backend is closed by its owner.
func (w *Writer) Close() {
	w.comp.close()
}

func (w *Writer) writeTable(ctx context.Context, name, path string, t *table.Table) (string, error) {
	if t == nil {
		return "", fmt.Errorf("%s: nil table", name)
	}
	data, err := w.enc.encode(name, t)
	if err != nil {
		return "", err
	}
	if err := w.store(ctx, path, data); err != nil {
		return "", err
	}
	w.logger.Debug().
		Str("path", path).
		Int("rows", t.Len()).
		Int("columns", len(t.Columns)).
		Msg("Wrote table")
	return path, nil
}

func (w *Writer) store(ctx context.Context, path string, data []byte) error {
	data, err := w.comp.compress(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := w.backend.Write(ctx, path, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
