package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/basekick-labs/sarpivot/internal/config"
	"github.com/basekick-labs/sarpivot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSadf answers "-d" with a two-device disk table and reports every other
// activity as unavailable, the way sadf does for activities not recorded.
const fakeSadf = `#!/bin/sh
case "$4" in
  -d)
    printf '# hostname;interval;timestamp;DEV;tps\n'
    printf 'h;600;2024-01-01 00:00:00 UTC;sda;1.5\n'
    printf 'h;600;2024-01-01 00:00:00 UTC;sdb;2.5\n'
    ;;
  *)
    echo "Requested activities not available in file $2" >&2
    ;;
esac
`

const testCatalog = `
[[metrics]]
label = "disk"
selector = ["-d"]

[metrics.pivot]
index = ["timestamp"]
entity = ["DEV"]
skip = ["hostname", "interval"]

[[metrics]]
label = "tty"
selector = ["-y"]
`

type fixture struct {
	binary  string
	catalog string
	sources []string
	out     string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()

	binary := filepath.Join(dir, "sadf")
	require.NoError(t, os.WriteFile(binary, []byte(fakeSadf), 0755))
	cat := filepath.Join(dir, "catalog.toml")
	require.NoError(t, os.WriteFile(cat, []byte(testCatalog), 0644))

	var sources []string
	for _, name := range []string{"sa01", "sa02"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("recording"), 0644))
		sources = append(sources, p)
	}
	return fixture{binary: binary, catalog: cat, sources: sources, out: filepath.Join(dir, "out")}
}

func (f fixture) args(extra ...string) []string {
	args := []string{"--binary", f.binary, "--catalog", f.catalog, "-o", f.out}
	args = append(args, extra...)
	return append(args, f.sources...)
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t)
	prom := filepath.Join(t.TempDir(), "sarpivot.prom")

	code := run(f.args("--metrics-file", prom))
	require.Equal(t, 0, code)

	disk, err := os.ReadFile(filepath.Join(f.out, "disk.csv"))
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(string(disk), "\n"), "one header and four rows from two files")
	assert.Equal(t, 1, strings.Count(string(disk), "# hostname"))

	tps, err := os.ReadFile(filepath.Join(f.out, "disk_tps.csv"))
	require.NoError(t, err)
	assert.Equal(t, "timestamp;sda;sdb\n2024-01-01 00:00:00 UTC;1.5;2.5\n", string(tps),
		"duplicate samples from the second file overwrite the first")

	_, err = os.Stat(filepath.Join(f.out, "tty.csv"))
	assert.True(t, os.IsNotExist(err), "metric without data writes no file")

	stats, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(stats), `sarpivot_metrics_total{outcome="written"} 1`)
	assert.Contains(t, string(stats), `sarpivot_metrics_total{outcome="empty"} 1`)
}

func TestRun_Parquet(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, 0, run(f.args("--encoding", "parquet", "--no-pivot")))

	data, err := os.ReadFile(filepath.Join(f.out, "disk.parquet"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "PAR1"))
	_, err = os.Stat(filepath.Join(f.out, "disk_tps.parquet"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_FatalConditions(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing extractor", []string{"--binary", filepath.Join(t.TempDir(), "nope"), f.sources[0]}},
		{"no usable sources", []string{"--binary", f.binary, filepath.Join(t.TempDir(), "missing")}},
		{"no sources", []string{"--binary", f.binary}},
		{"bad catalog", []string{"--binary", f.binary, "--catalog", filepath.Join(t.TempDir(), "none.toml"), f.sources[0]}},
		{"bad flag", []string{"--no-such-flag", f.sources[0]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 1, run(tt.args))
		})
	}
}

func TestRun_Help(t *testing.T) {
	assert.Equal(t, 0, run([]string{"--help"}))
}

func TestNewBackend(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		cfg := &config.Config{
			Output:  config.OutputConfig{Directory: filepath.Join(t.TempDir(), "csv")},
			Storage: config.StorageConfig{Backend: "local"},
		}
		b, err := newBackend(cfg)
		require.NoError(t, err)
		defer b.Close()
		assert.Equal(t, "local", b.Type())
		_, wrapped := b.(*storage.ResilientBackend)
		assert.False(t, wrapped)
	})

	t.Run("duckdb", func(t *testing.T) {
		cfg := &config.Config{
			Extract: config.ExtractConfig{Delimiter: ";"},
			Storage: config.StorageConfig{Backend: "duckdb", DuckDBPath: filepath.Join(t.TempDir(), "out.duckdb")},
		}
		b, err := newBackend(cfg)
		require.NoError(t, err)
		defer b.Close()
		assert.Equal(t, "duckdb", b.Type())
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := newBackend(&config.Config{Storage: config.StorageConfig{Backend: "ftp"}})
		assert.Error(t, err)
	})
}

func TestJoinPrefix(t *testing.T) {
	assert.Equal(t, "sarpivot/csv", joinPrefix("sarpivot", "csv"))
	assert.Equal(t, "sarpivot/csv", joinPrefix("sarpivot", "./csv"))
	assert.Equal(t, "/tmp/out", joinPrefix("", "/tmp/out"))
	assert.Equal(t, "metrics/x", joinPrefix("metrics", "../x"))
}
