package output

import (
	"strconv"
	"strings"
	"time"

	"github.com/basekick-labs/sarpivot/internal/table"
)

// sadfTimeLayout is how sadf prints the timestamp column.
const sadfTimeLayout = "2006-01-02 15:04:05 MST"

var timeLayouts = []string{sadfTimeLayout, "2006-01-02 15:04:05", time.RFC3339}

type columnKind int

const (
	kindString columnKind = iota
	kindFloat
	kindTime
)

// column is one typed column of a table. valid[i] is false for empty cells.
type column struct {
	name    string
	kind    columnKind
	strings []string
	floats  []float64
	times   []int64 // microseconds since the epoch
	valid   []bool
}

// typeColumns splits t into typed columns. A column is numeric when every
// non-empty cell parses as a float; timeColumn becomes a timestamp when every
// non-empty cell parses as one. Everything else stays a string.
func typeColumns(t *table.Table, timeColumn string) []column {
	records := t.Records()
	cols := make([]column, len(t.Columns))
	seen := make(map[string]int, len(t.Columns))

	for i, name := range t.Columns {
		if n := seen[name]; n > 0 {
			name = name + "_" + strconv.Itoa(i)
		}
		seen[t.Columns[i]]++

		cells := make([]string, len(records))
		valid := make([]bool, len(records))
		for r, rec := range records {
			if i < len(rec) {
				cells[r] = strings.TrimSpace(rec[i])
			}
			valid[r] = cells[r] != ""
		}

		c := column{name: name, kind: kindString, strings: cells, valid: valid}
		if t.Columns[i] == timeColumn {
			if times, ok := parseTimes(cells, valid); ok {
				c.kind, c.times, c.strings = kindTime, times, nil
			}
		}
		if c.kind == kindString {
			if floats, ok := parseFloats(cells, valid); ok {
				c.kind, c.floats, c.strings = kindFloat, floats, nil
			}
		}
		cols[i] = c
	}
	return cols
}

func parseFloats(cells []string, valid []bool) ([]float64, bool) {
	out := make([]float64, len(cells))
	found := false
	for i, s := range cells {
		if !valid[i] {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		out[i] = f
		found = true
	}
	return out, found
}

func parseTimes(cells []string, valid []bool) ([]int64, bool) {
	out := make([]int64, len(cells))
	found := false
	for i, s := range cells {
		if !valid[i] {
			continue
		}
		ts, ok := parseTime(s)
		if !ok {
			return nil, false
		}
		out[i] = ts.UnixMicro()
		found = true
	}
	return out, found
}

// parseTime accepts sadf's layout, RFC 3339 and epoch seconds (sadf -U).
func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}
