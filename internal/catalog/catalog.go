// Package catalog holds the immutable registry of metrics extracted from a
// recording. Each definition maps a label (used for output file names) to
// the selector passed to the extractor and an optional pivot layout.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// PivotSpec describes how a long table is spread into wide tables.
type PivotSpec struct {
	Index  []string `mapstructure:"index"`
	Entity []string `mapstructure:"entity"`
	Skip   []string `mapstructure:"skip"`
}

// MetricDefinition is a single catalog entry.
type MetricDefinition struct {
	Label    string     `mapstructure:"label"`
	Selector []string   `mapstructure:"selector"`
	Pivot    *PivotSpec `mapstructure:"pivot"`
}

// SelectorString returns the selector as it would be typed on a command line.
func (d MetricDefinition) SelectorString() string {
	return strings.Join(d.Selector, " ")
}

// Catalog errors.
var (
	// ErrInvalidDefinition indicates a malformed metric definition.
	ErrInvalidDefinition = errors.New("invalid metric definition")

	// ErrDuplicateLabel indicates two definitions share a label.
	ErrDuplicateLabel = errors.New("duplicate metric label")

	// ErrEmptyCatalog indicates a catalog without definitions.
	ErrEmptyCatalog = errors.New("catalog has no metric definitions")
)

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Catalog is an ordered, read-only set of metric definitions.
type Catalog struct {
	defs  []MetricDefinition
	index map[string]int
}

// New validates defs and builds a catalog preserving their order.
func New(defs ...MetricDefinition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		defs:  make([]MetricDefinition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if err := validateDefinition(d); err != nil {
			return nil, err
		}
		if _, exists := c.index[d.Label]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLabel, d.Label)
		}
		c.index[d.Label] = len(c.defs)
		c.defs = append(c.defs, cloneDefinition(d))
	}
	return c, nil
}

// Definitions returns the definitions in catalog order. The returned slice
// is a copy; mutating it does not affect the catalog.
func (c *Catalog) Definitions() []MetricDefinition {
	out := make([]MetricDefinition, len(c.defs))
	for i, d := range c.defs {
		out[i] = cloneDefinition(d)
	}
	return out
}

// Lookup returns the definition registered under label.
func (c *Catalog) Lookup(label string) (MetricDefinition, bool) {
	i, ok := c.index[label]
	if !ok {
		return MetricDefinition{}, false
	}
	return cloneDefinition(c.defs[i]), true
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}

func validateDefinition(d MetricDefinition) error {
	if d.Label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidDefinition)
	}
	if !labelPattern.MatchString(d.Label) {
		return fmt.Errorf("%w: label %q must only contain letters, digits, '_', '.' or '-'", ErrInvalidDefinition, d.Label)
	}
	if len(d.Selector) == 0 {
		return fmt.Errorf("%w: %s has an empty selector", ErrInvalidDefinition, d.Label)
	}
	for _, tok := range d.Selector {
		if strings.TrimSpace(tok) == "" {
			return fmt.Errorf("%w: %s has a blank selector token", ErrInvalidDefinition, d.Label)
		}
	}
	if d.Pivot == nil {
		return nil
	}

	p := d.Pivot
	if len(p.Index) == 0 || len(p.Entity) == 0 {
		return fmt.Errorf("%w: %s pivot needs at least one index and one entity column", ErrInvalidDefinition, d.Label)
	}
	index := make(map[string]bool, len(p.Index))
	for _, col := range p.Index {
		if index[col] {
			return fmt.Errorf("%w: %s pivot repeats index column %q", ErrInvalidDefinition, d.Label, col)
		}
		index[col] = true
	}
	entity := make(map[string]bool, len(p.Entity))
	for _, col := range p.Entity {
		if index[col] {
			return fmt.Errorf("%w: %s pivot column %q is both index and entity", ErrInvalidDefinition, d.Label, col)
		}
		if entity[col] {
			return fmt.Errorf("%w: %s pivot repeats entity column %q", ErrInvalidDefinition, d.Label, col)
		}
		entity[col] = true
	}
	return nil
}

func cloneDefinition(d MetricDefinition) MetricDefinition {
	out := MetricDefinition{
		Label:    d.Label,
		Selector: append([]string(nil), d.Selector...),
	}
	if d.Pivot != nil {
		out.Pivot = &PivotSpec{
			Index:  append([]string(nil), d.Pivot.Index...),
			Entity: append([]string(nil), d.Pivot.Entity...),
			Skip:   append([]string(nil), d.Pivot.Skip...),
		}
	}
	return out
}
