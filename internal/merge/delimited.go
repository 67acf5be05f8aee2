package merge

import (
	"strings"

	"github.com/basekick-labs/sarpivot/internal/table"
)

// Delimited merges delimited-text chunks. The first non-blank chunk supplies
// the header; every later chunk loses its first line.
type Delimited struct {
	delim rune
	table *table.Table
}

// NewDelimited creates a delimited merger splitting on delim.
func NewDelimited(delim rune) *Delimited {
	return &Delimited{delim: delim}
}

// Merge appends the data lines of chunk.
func (m *Delimited) Merge(chunk []byte) error {
	lines := splitLines(string(chunk))
	if len(lines) == 0 {
		return nil
	}

	if m.table == nil {
		m.table = table.New(lines[0], m.delim)
	}
	m.table.Lines = append(m.table.Lines, lines[1:]...)
	return nil
}

// Empty reports whether no header has been seen.
func (m *Delimited) Empty() bool {
	return m.table == nil
}

// Table returns the merged table, or nil when Empty.
func (m *Delimited) Table() *table.Table {
	return m.table
}

// Bytes encodes the merged table as text.
func (m *Delimited) Bytes() ([]byte, error) {
	if m.table == nil {
		return nil, nil
	}
	return m.table.Bytes(), nil
}

// splitLines splits text on newlines, stripping carriage returns, leading
// blank lines and trailing blank lines. Blank lines in between are kept.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}
