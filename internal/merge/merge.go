// Package merge folds the per-file outputs of one metric into a single
// document. Each output format has its own strategy: delimited tables append
// data lines under one header, JSON objects merge recursively and XML trees
// merge by tag and attribute set.
package merge

import (
	"errors"
	"fmt"

	"github.com/basekick-labs/sarpivot/internal/table"
)

var (
	// ErrMalformedChunk indicates a chunk that cannot be parsed in its
	// declared format. The merger state is left as it was before the call.
	ErrMalformedChunk = errors.New("malformed chunk")

	// ErrUnknownFormat indicates a format without a merge strategy.
	ErrUnknownFormat = errors.New("unknown merge format")
)

// Merger accumulates chunks in the order they are passed to Merge.
type Merger interface {
	// Merge folds one chunk into the accumulated state. Blank chunks are
	// ignored.
	Merge(chunk []byte) error
	// Empty reports whether no chunk has contributed anything yet.
	Empty() bool
	// Bytes encodes the accumulated document.
	Bytes() ([]byte, error)
}

// TableMerger is a Merger whose result is a delimited table.
type TableMerger interface {
	Merger
	Table() *table.Table
}

// New returns the merge strategy for format: csv, json or xml.
func New(format string, delim rune) (Merger, error) {
	switch format {
	case "csv":
		return NewDelimited(delim), nil
	case "json":
		return NewJSON(), nil
	case "xml":
		return NewXML(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

func malformed(kind string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedChunk, kind, err)
}
