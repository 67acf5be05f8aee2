// Package storage holds the sinks output files are handed to: the local
// filesystem, object stores, an MQTT broker and a DuckDB database.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// Backend persists encoded output files. Paths are slash separated and
// relative to the sink's root.
type Backend interface {
	// Write stores data under path, replacing any previous content.
	Write(ctx context.Context, path string, data []byte) error

	// Close releases connections held by the backend.
	Close() error

	// Type returns the backend identifier ("local", "s3", ...).
	Type() string
}

var (
	// ErrNotFound indicates a path with nothing stored under it.
	ErrNotFound = errors.New("object not found")

	// ErrUnsupportedFormat indicates a file type a backend cannot ingest.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrPermanent marks sink failures that retrying will not fix.
	ErrPermanent = errors.New("permanent storage error")
)

// compressionSuffixes are stripped before looking at a file's format.
var compressionSuffixes = []string{".gz", ".zst"}

// SplitExt splits a file name into its stem, format extension (without the
// dot) and compression suffix, e.g. "disk_tps.csv.gz" -> ("disk_tps", "csv", ".gz").
func SplitExt(name string) (stem, format, compression string) {
	name = path.Base(name)
	for _, s := range compressionSuffixes {
		if strings.HasSuffix(name, s) {
			compression = s
			name = strings.TrimSuffix(name, s)
			break
		}
	}
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext), strings.TrimPrefix(ext, "."), compression
}

// ContentType returns the MIME type used when uploading a file.
func ContentType(name string) string {
	_, format, compression := SplitExt(name)
	switch compression {
	case ".gz":
		return "application/gzip"
	case ".zst":
		return "application/zstd"
	}
	switch format {
	case "csv":
		return "text/csv"
	case "json":
		return "application/json"
	case "xml":
		return "application/xml"
	case "parquet":
		return "application/vnd.apache.parquet"
	case "msgpack":
		return "application/msgpack"
	default:
		return "application/octet-stream"
	}
}

// objectKey joins a key prefix and a relative path.
func objectKey(prefix, p string) string {
	p = strings.TrimPrefix(p, "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return p
	}
	return prefix + "/" + p
}
