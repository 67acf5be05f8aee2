// Package table is the canonical in-memory form of a delimited metric table:
// one header and the data lines that follow it, kept as raw text and split
// on demand.
package table

import (
	"bytes"
	"strings"
)

// headerPrefix is the comment marker sadf writes in front of the header.
const headerPrefix = "#"

// Table is a delimited table with exactly one header.
type Table struct {
	Header    string   // raw header line as received
	Columns   []string // column names parsed from Header
	Lines     []string // data lines in merge order
	Delimiter rune
}

// New creates an empty table for the given raw header line.
func New(header string, delim rune) *Table {
	header = strings.TrimRight(header, "\r")
	return &Table{
		Header:    header,
		Columns:   ParseHeader(header, delim),
		Delimiter: delim,
	}
}

// FromRecords builds a table from already split cells. Cells must not contain
// the delimiter.
func FromRecords(columns []string, rows [][]string, delim rune) *Table {
	sep := string(delim)
	t := &Table{
		Header:    strings.Join(columns, sep),
		Columns:   append([]string(nil), columns...),
		Lines:     make([]string, 0, len(rows)),
		Delimiter: delim,
	}
	for _, r := range rows {
		t.Lines = append(t.Lines, strings.Join(r, sep))
	}
	return t
}

// ParseHeader splits a header line into column names, removing the leading
// comment marker sadf prints before the first column.
func ParseHeader(line string, delim rune) []string {
	line = strings.TrimRight(line, "\r")
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), headerPrefix))
	if line == "" {
		return nil
	}
	cols := strings.Split(line, string(delim))
	for i, c := range cols {
		cols[i] = strings.TrimSpace(c)
	}
	return cols
}

// Split returns the cells of a data line.
func (t *Table) Split(line string) []string {
	return strings.Split(strings.TrimRight(line, "\r"), string(t.Delimiter))
}

// Records returns every data line split into cells.
func (t *Table) Records() [][]string {
	out := make([][]string, len(t.Lines))
	for i, l := range t.Lines {
		out[i] = t.Split(l)
	}
	return out
}

// ColumnIndex returns the position of name in the header, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether name is part of the header.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Len returns the number of data lines.
func (t *Table) Len() int {
	return len(t.Lines)
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	return &Table{
		Header:    t.Header,
		Columns:   append([]string(nil), t.Columns...),
		Lines:     append([]string(nil), t.Lines...),
		Delimiter: t.Delimiter,
	}
}

// Bytes encodes the table as text: header first, one line per row, each
// terminated by a newline.
func (t *Table) Bytes() []byte {
	size := len(t.Header) + 1
	for _, l := range t.Lines {
		size += len(l) + 1
	}

	var buf bytes.Buffer
	buf.Grow(size)
	buf.WriteString(t.Header)
	buf.WriteByte('\n')
	for _, l := range t.Lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
