// Package pivot reshapes long metric tables (one row per sample and entity)
// into wide tables (one row per sample, one column per entity), producing one
// wide table per value column.
package pivot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/basekick-labs/sarpivot/internal/catalog"
	"github.com/basekick-labs/sarpivot/internal/table"
	"github.com/rs/zerolog"
)

var (
	// ErrMissingColumns indicates index or entity columns absent from the header.
	ErrMissingColumns = errors.New("pivot columns missing from header")

	// ErrKeyCollision indicates entity tuples that cannot be told apart once
	// turned into column names.
	ErrKeyCollision = errors.New("pivot key collision")

	// ErrNoRows indicates a table without a single well-formed row.
	ErrNoRows = errors.New("no well-formed rows to pivot")
)

// DefaultFill is written for (index, entity) pairs absent from the source.
const DefaultFill = "0"

// entitySeparator joins the values of multi-column entities.
const entitySeparator = "_"

// Result is the wide table for one value column. Err is set, and Table is
// nil, when that column could not be pivoted.
type Result struct {
	ValueColumn string
	Name        string
	Table       *table.Table
	Err         error
}

// Pivoter turns long tables into wide ones.
type Pivoter struct {
	Fill   string
	logger zerolog.Logger
}

// New creates a pivoter filling missing cells with fill.
func New(fill string, logger zerolog.Logger) *Pivoter {
	return &Pivoter{
		Fill:   fill,
		logger: logger.With().Str("component", "pivot").Logger(),
	}
}

// layout locates a PivotSpec's columns in a header.
type layout struct {
	index  []int
	entity []int
	values []int
}

func resolve(t *table.Table, spec catalog.PivotSpec) (layout, error) {
	var l layout
	var missing []string

	for _, name := range spec.Index {
		i := t.ColumnIndex(name)
		if i < 0 {
			missing = append(missing, name)
		}
		l.index = append(l.index, i)
	}
	for _, name := range spec.Entity {
		i := t.ColumnIndex(name)
		if i < 0 {
			missing = append(missing, name)
		}
		l.entity = append(l.entity, i)
	}
	if len(missing) > 0 {
		return layout{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	excluded := make(map[string]bool, len(spec.Index)+len(spec.Entity)+len(spec.Skip))
	for _, set := range [][]string{spec.Index, spec.Entity, spec.Skip} {
		for _, name := range set {
			excluded[name] = true
		}
	}
	for i, name := range t.Columns {
		if !excluded[name] {
			l.values = append(l.values, i)
		}
	}
	return l, nil
}

// grid is the long table regrouped by index tuple and entity.
type grid struct {
	groups      [][]string // index tuple per row group, first-appearance order
	entities    []string   // entity column names, first-appearance order
	cells       map[cell][]string
	skippedRows int
	collision   error
}

type cell struct {
	group, entity int
}

func project(rec []string, positions []int) []string {
	out := make([]string, len(positions))
	for i, p := range positions {
		out[i] = rec[p]
	}
	return out
}

func build(t *table.Table, spec catalog.PivotSpec, l layout) *grid {
	g := &grid{cells: make(map[cell][]string)}

	groupIndex := make(map[string]int)
	entityIndex := make(map[string]int)
	entityTuple := make(map[string]string) // entity name -> raw tuple key

	indexNames := make(map[string]bool, len(spec.Index))
	for _, name := range spec.Index {
		indexNames[name] = true
	}

	for _, line := range t.Lines {
		rec := t.Split(line)
		if len(rec) != len(t.Columns) {
			g.skippedRows++
			continue
		}

		groupKey := strings.Join(project(rec, l.index), "\x00")
		gi, ok := groupIndex[groupKey]
		if !ok {
			gi = len(g.groups)
			groupIndex[groupKey] = gi
			g.groups = append(g.groups, project(rec, l.index))
		}

		tuple := project(rec, l.entity)
		name := strings.Join(tuple, entitySeparator)
		tupleKey := strings.Join(tuple, "\x00")
		ei, ok := entityIndex[name]
		if !ok {
			ei = len(g.entities)
			entityIndex[name] = ei
			entityTuple[name] = tupleKey
			g.entities = append(g.entities, name)
			if indexNames[name] && g.collision == nil {
				g.collision = fmt.Errorf("%w: entity %q shadows index column", ErrKeyCollision, name)
			}
		} else if entityTuple[name] != tupleKey && g.collision == nil {
			g.collision = fmt.Errorf("%w: entities %q and %q both map to column %q",
				ErrKeyCollision, strings.ReplaceAll(entityTuple[name], "\x00", ","), strings.Join(tuple, ","), name)
		}

		// Later rows overwrite earlier ones for the same (index, entity).
		values := project(rec, l.values)
		g.cells[cell{gi, ei}] = values
	}
	return g
}

// Pivot spreads t into one wide table per value column. Value columns are the
// header minus the PivotSpec's index, entity and skip columns, in header order.
// Rows with the wrong number of cells are skipped. A column that cannot be
// pivoted is reported through its Result.Err and does not affect the others.
func (p *Pivoter) Pivot(t *table.Table, spec catalog.PivotSpec) ([]Result, error) {
	l, err := resolve(t, spec)
	if err != nil {
		return nil, err
	}

	g := build(t, spec, l)
	if g.skippedRows > 0 {
		p.logger.Warn().
			Int("skipped_rows", g.skippedRows).
			Int("columns", len(t.Columns)).
			Msg("Skipped rows with unexpected cell count")
	}
	if len(g.groups) == 0 {
		return nil, fmt.Errorf("%w: %d rows skipped", ErrNoRows, g.skippedRows)
	}

	header := make([]string, 0, len(spec.Index)+len(g.entities))
	header = append(header, spec.Index...)
	header = append(header, g.entities...)

	names := newNamer()
	results := make([]Result, 0, len(l.values))
	for vi, col := range l.values {
		valueColumn := t.Columns[col]
		r := Result{
			ValueColumn: valueColumn,
			Name:        names.name(valueColumn, col),
		}

		if g.collision != nil {
			r.Err = g.collision
			p.logger.Warn().Err(r.Err).Str("value_column", valueColumn).Msg("Value column not pivoted")
			results = append(results, r)
			continue
		}

		rows := make([][]string, len(g.groups))
		for gi, idx := range g.groups {
			row := make([]string, 0, len(header))
			row = append(row, idx...)
			for ei := range g.entities {
				if values, ok := g.cells[cell{gi, ei}]; ok {
					row = append(row, values[vi])
				} else {
					row = append(row, p.Fill)
				}
			}
			rows[gi] = row
		}
		r.Table = table.FromRecords(header, rows, t.Delimiter)
		results = append(results, r)
	}

	p.logger.Debug().
		Int("value_columns", len(results)).
		Int("groups", len(g.groups)).
		Int("entities", len(g.entities)).
		Msg("Pivoted table")
	return results, nil
}
