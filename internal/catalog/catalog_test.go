package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_PreservesOrder(t *testing.T) {
	c, err := New(
		MetricDefinition{Label: "paging", Selector: []string{"-B"}},
		MetricDefinition{Label: "io", Selector: []string{"-b"}},
	)
	require.NoError(t, err)

	defs := c.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "paging", defs[0].Label)
	assert.Equal(t, "io", defs[1].Label)
	assert.Equal(t, 2, c.Len())
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		defs    []MetricDefinition
		wantErr error
	}{
		{"empty catalog", nil, ErrEmptyCatalog},
		{"empty label", []MetricDefinition{{Selector: []string{"-b"}}}, ErrInvalidDefinition},
		{"label with slash", []MetricDefinition{{Label: "a/b", Selector: []string{"-b"}}}, ErrInvalidDefinition},
		{"empty selector", []MetricDefinition{{Label: "io"}}, ErrInvalidDefinition},
		{"blank selector token", []MetricDefinition{{Label: "io", Selector: []string{" "}}}, ErrInvalidDefinition},
		{"duplicate label", []MetricDefinition{
			{Label: "io", Selector: []string{"-b"}},
			{Label: "io", Selector: []string{"-B"}},
		}, ErrDuplicateLabel},
		{"pivot without entity", []MetricDefinition{
			{Label: "disk", Selector: []string{"-d"}, Pivot: &PivotSpec{Index: []string{"timestamp"}}},
		}, ErrInvalidDefinition},
		{"pivot index and entity overlap", []MetricDefinition{
			{Label: "disk", Selector: []string{"-d"}, Pivot: &PivotSpec{Index: []string{"DEV"}, Entity: []string{"DEV"}}},
		}, ErrInvalidDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.defs...)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDefinitions_ReturnsCopy(t *testing.T) {
	c := Default()

	defs := c.Definitions()
	defs[0].Label = "changed"
	defs[0].Selector[0] = "-X"

	again := c.Definitions()
	assert.Equal(t, "io", again[0].Label)
	assert.Equal(t, []string{"-b"}, again[0].Selector)

	disk, ok := c.Lookup("disk")
	require.True(t, ok)
	disk.Pivot.Entity[0] = "changed"

	disk, _ = c.Lookup("disk")
	assert.Equal(t, []string{"DEV"}, disk.Pivot.Entity)
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 34, c.Len())

	seen := make(map[string]bool)
	for _, d := range c.Definitions() {
		assert.False(t, seen[d.Label], "duplicate label %s", d.Label)
		seen[d.Label] = true
	}

	tests := []struct {
		label    string
		selector string
		entity   []string
	}{
		{"io", "-b", nil},
		{"disk", "-d", []string{"DEV"}},
		{"interrupts", "-I ALL", []string{"INTR"}},
		{"network_dev", "-n DEV", []string{"IFACE"}},
		{"network_udp6", "-n UDP6", nil},
		{"per_cpu", "-P ALL", []string{"CPU"}},
		{"memory", "-r ALL", nil},
		{"tty", "-y", []string{"TTY"}},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			d, ok := c.Lookup(tt.label)
			require.True(t, ok)
			assert.Equal(t, tt.selector, d.SelectorString())
			if tt.entity == nil {
				assert.Nil(t, d.Pivot)
				return
			}
			require.NotNil(t, d.Pivot)
			assert.Equal(t, tt.entity, d.Pivot.Entity)
			assert.Equal(t, []string{"timestamp"}, d.Pivot.Index)
			assert.Equal(t, []string{"hostname", "interval"}, d.Pivot.Skip)
		})
	}

	_, ok := c.Lookup("nope")
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	content := `
[[metrics]]
label = "io"
selector = ["-b"]

[[metrics]]
label = "disk"
selector = ["-d"]

[metrics.pivot]
index = ["timestamp"]
entity = ["DEV"]
skip = ["hostname", "interval"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	io, ok := c.Lookup("io")
	require.True(t, ok)
	assert.Nil(t, io.Pivot)

	disk, ok := c.Lookup("disk")
	require.True(t, ok)
	require.NotNil(t, disk.Pivot)
	assert.Equal(t, []string{"DEV"}, disk.Pivot.Entity)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read catalog")

	empty := filepath.Join(dir, "empty.toml")
	require.NoError(t, os.WriteFile(empty, []byte("title = \"none\"\n"), 0644))
	_, err = Load(empty)
	assert.ErrorIs(t, err, ErrEmptyCatalog)

	dup := filepath.Join(dir, "dup.json")
	require.NoError(t, os.WriteFile(dup, []byte(`{"metrics":[{"label":"io","selector":["-b"]},{"label":"io","selector":["-B"]}]}`), 0644))
	_, err = Load(dup)
	assert.ErrorIs(t, err, ErrDuplicateLabel)
}
