package output

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/basekick-labs/sarpivot/internal/table"
)

// memory.GoAllocator is safe for concurrent use.
var sharedArrowAllocator = memory.NewGoAllocator()

// parquetEncoder writes a table as a single-row-group Parquet file. The
// file's own page compression is used instead of compressing the file.
type parquetEncoder struct {
	timeColumn  string
	compression compress.Compression
}

func newParquetEncoder(timeColumn, compression string) *parquetEncoder {
	var comp compress.Compression
	switch compression {
	case CompressionGzip:
		comp = compress.Codecs.Gzip
	case CompressionZstd:
		comp = compress.Codecs.Zstd
	default:
		comp = compress.Codecs.Uncompressed
	}
	return &parquetEncoder{timeColumn: timeColumn, compression: comp}
}

func (e *parquetEncoder) encode(name string, t *table.Table) ([]byte, error) {
	cols := typeColumns(t, e.timeColumn)

	fields := make([]arrow.Field, len(cols))
	arrays := make([]arrow.Array, len(cols))
	defer func() {
		for _, arr := range arrays {
			if arr != nil {
				arr.Release()
			}
		}
	}()

	mem := sharedArrowAllocator
	for i, c := range cols {
		switch c.kind {
		case kindTime:
			fields[i] = arrow.Field{Name: c.name, Type: arrow.FixedWidthTypes.Timestamp_us, Nullable: true}
			b := array.NewTimestampBuilder(mem, arrow.FixedWidthTypes.Timestamp_us.(*arrow.TimestampType))
			ts := make([]arrow.Timestamp, len(c.times))
			for j, v := range c.times {
				ts[j] = arrow.Timestamp(v)
			}
			b.AppendValues(ts, c.valid)
			arrays[i] = b.NewArray()
			b.Release()
		case kindFloat:
			fields[i] = arrow.Field{Name: c.name, Type: arrow.PrimitiveTypes.Float64, Nullable: true}
			b := array.NewFloat64Builder(mem)
			b.AppendValues(c.floats, c.valid)
			arrays[i] = b.NewArray()
			b.Release()
		default:
			fields[i] = arrow.Field{Name: c.name, Type: arrow.BinaryTypes.String, Nullable: true}
			b := array.NewStringBuilder(mem)
			b.AppendValues(c.strings, c.valid)
			arrays[i] = b.NewArray()
			b.Release()
		}
	}

	schema := arrow.NewSchema(fields, nil)
	record := array.NewRecord(schema, arrays, int64(t.Len()))
	defer record.Release()

	var buf bytes.Buffer
	writerProps := parquet.NewWriterProperties(parquet.WithCompression(e.compression))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, &buf, writerProps, arrowProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create Parquet writer for %s: %w", name, err)
	}
	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write record batch for %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close Parquet writer for %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
