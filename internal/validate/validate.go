// Package validate cleans merged tables and rejects those that cannot be
// aligned on time.
package validate

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/basekick-labs/sarpivot/internal/table"
)

var (
	// ErrNoTimeColumn indicates a header without the time column.
	ErrNoTimeColumn = errors.New("time column not found in header")

	// ErrNoData indicates a table or document with nothing left to write.
	ErrNoData = errors.New("no data")
)

// Defaults for sadf output.
const (
	DefaultTimeColumn    = "timestamp"
	DefaultCommentPrefix = "#"
)

// DefaultNoisePatterns are the markers sadf emits for daemon restarts and
// comments recorded with sadc -C.
var DefaultNoisePatterns = []string{"LINUX-RESTART", "LINUX-COMMENT"}

// Validator removes noise lines from a table. It holds no state and is safe
// for concurrent use.
type Validator struct {
	TimeColumn    string
	CommentPrefix string
	NoisePatterns []string
}

// New returns a validator for timeColumn with the default comment prefix and
// noise patterns. An empty timeColumn selects DefaultTimeColumn.
func New(timeColumn string) *Validator {
	if timeColumn == "" {
		timeColumn = DefaultTimeColumn
	}
	return &Validator{
		TimeColumn:    timeColumn,
		CommentPrefix: DefaultCommentPrefix,
		NoisePatterns: append([]string(nil), DefaultNoisePatterns...),
	}
}

// Validate returns a cleaned copy of t. Blank lines, comment lines, noise
// lines and repeated headers are dropped; every other line keeps its order.
// The input is never modified, and validating the result again yields the
// same table.
func (v *Validator) Validate(t *table.Table) (*table.Table, error) {
	if t == nil {
		return nil, ErrNoData
	}
	if !t.HasColumn(v.TimeColumn) {
		return nil, fmt.Errorf("%w: %q", ErrNoTimeColumn, v.TimeColumn)
	}

	out := &table.Table{
		Header:    t.Header,
		Columns:   append([]string(nil), t.Columns...),
		Lines:     make([]string, 0, len(t.Lines)),
		Delimiter: t.Delimiter,
	}
	for _, line := range t.Lines {
		if v.keep(t, line) {
			out.Lines = append(out.Lines, line)
		}
	}

	if len(out.Lines) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// CheckDocument rejects an empty structured document.
func (v *Validator) CheckDocument(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrNoData
	}
	return nil
}

func (v *Validator) keep(t *table.Table, line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if v.CommentPrefix != "" && strings.HasPrefix(trimmed, v.CommentPrefix) {
		return false
	}
	for _, p := range v.NoisePatterns {
		if p != "" && strings.Contains(line, p) {
			return false
		}
	}
	// A header repeated without its comment marker
	if trimmed == strings.TrimSpace(t.Header) || slices.Equal(table.ParseHeader(trimmed, t.Delimiter), t.Columns) {
		return false
	}
	return true
}
