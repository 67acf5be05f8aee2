package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DuckDBConfig holds DuckDB sink configuration.
type DuckDBConfig struct {
	Path      string // Database file; empty opens an in-memory database
	Delimiter rune   // Delimiter of text tables
	SpoolDir  string // Directory for staging files; empty uses os.TempDir
}

// DuckDBBackend loads each output file into a table named after the file
// stem, replacing the table if it exists. Text, Parquet and JSON files are
// supported.
type DuckDBBackend struct {
	db        *sql.DB
	delimiter rune
	spoolDir  string
	logger    zerolog.Logger
}

// NewDuckDBBackend opens the database.
func NewDuckDBBackend(cfg *DuckDBConfig, logger zerolog.Logger) (*DuckDBBackend, error) {
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to duckdb: %w", err)
	}

	delim := cfg.Delimiter
	if delim == 0 {
		delim = ';'
	}
	return &DuckDBBackend{
		db:        db,
		delimiter: delim,
		spoolDir:  cfg.SpoolDir,
		logger:    logger.With().Str("component", "duckdb-storage").Logger(),
	}, nil
}

// Write stages data in a temporary file and imports it.
func (b *DuckDBBackend) Write(ctx context.Context, path string, data []byte) error {
	stem, format, compression := SplitExt(path)
	reader, err := b.readerFor(format)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	// DuckDB picks the decompressor from the file suffix, so keep it.
	tmp, err := os.CreateTemp(b.spoolDir, "sarpivot-*."+format+compression)
	if err != nil {
		return fmt.Errorf("failed to create spool file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write spool file: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close spool file: %w", closeErr)
	}

	query := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s",
		quoteIdent(stem), fmt.Sprintf(reader, quoteLiteral(tmpPath)))
	if _, err := b.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to load %s into duckdb: %w", path, err)
	}

	b.logger.Debug().
		Str("table", stem).
		Str("format", format).
		Int("size", len(data)).
		Msg("Loaded table")
	return nil
}

// readerFor returns the table function reading format, with a %s verb for
// the file name.
func (b *DuckDBBackend) readerFor(format string) (string, error) {
	switch format {
	case "csv":
		return "read_csv(%s, delim = " + quoteLiteral(string(b.delimiter)) + ", header = true)", nil
	case "parquet":
		return "read_parquet(%s)", nil
	case "json":
		return "read_json_auto(%s)", nil
	default:
		return "", fmt.Errorf("%w for duckdb: %q", ErrUnsupportedFormat, format)
	}
}

// DB exposes the underlying database.
func (b *DuckDBBackend) DB() *sql.DB {
	return b.db
}

// Close closes the database.
func (b *DuckDBBackend) Close() error {
	return b.db.Close()
}

// Type returns "duckdb".
func (b *DuckDBBackend) Type() string {
	return "duckdb"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
