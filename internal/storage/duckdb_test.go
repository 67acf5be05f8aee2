package storage

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDuckDB(t *testing.T) *DuckDBBackend {
	t.Helper()
	b, err := NewDuckDBBackend(&DuckDBConfig{SpoolDir: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestDuckDBBackend_LoadsDelimitedTable(t *testing.T) {
	b := newTestDuckDB(t)
	ctx := context.Background()

	data := "timestamp;sda;sdb\n2024-01-01 00:00:00 UTC;1.5;2.0\n2024-01-01 00:10:00 UTC;3.0;0\n"
	require.NoError(t, b.Write(ctx, "csv/disk_tps.csv", []byte(data)))

	var rows int
	require.NoError(t, b.DB().QueryRowContext(ctx, `SELECT count(*) FROM "disk_tps"`).Scan(&rows))
	assert.Equal(t, 2, rows)

	var sum float64
	require.NoError(t, b.DB().QueryRowContext(ctx, `SELECT sum(sda) FROM "disk_tps"`).Scan(&sum))
	assert.InDelta(t, 4.5, sum, 1e-9)
}

func TestDuckDBBackend_ReplacesTable(t *testing.T) {
	b := newTestDuckDB(t)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "tty.csv", []byte("timestamp;rcvin\nT1;1\nT2;2\nT3;3\n")))
	require.NoError(t, b.Write(ctx, "tty.csv", []byte("timestamp;rcvin\nT1;1\n")))

	var rows int
	require.NoError(t, b.DB().QueryRowContext(ctx, `SELECT count(*) FROM "tty"`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestDuckDBBackend_LoadsJSON(t *testing.T) {
	b := newTestDuckDB(t)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "memory.json", []byte(`[{"kbmemfree": 10}, {"kbmemfree": 20}]`)))

	var rows int
	require.NoError(t, b.DB().QueryRowContext(ctx, `SELECT count(*) FROM "memory"`).Scan(&rows))
	assert.Equal(t, 2, rows)
}

func TestDuckDBBackend_UnsupportedFormat(t *testing.T) {
	b := newTestDuckDB(t)

	err := b.Write(context.Background(), "memory.msgpack", []byte{0x80})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, "duckdb", b.Type())
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
	assert.Equal(t, `'it''s'`, quoteLiteral("it's"))
}
