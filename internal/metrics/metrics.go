// Package metrics counts what a run did: extractor invocations, merged rows
// and files written. Counters are safe for concurrent use by the per-metric
// workers.
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Chunk outcomes accepted by RecordChunk.
const (
	ChunkOK      = "ok"
	ChunkPartial = "partial_timeout"
	ChunkFailed  = "failed"
	ChunkSkipped = "skipped"
)

// Metric outcomes accepted by RecordMetric.
const (
	OutcomeWritten  = "written"
	OutcomeEmpty    = "empty"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// extractBuckets are the upper bounds of the extraction latency histogram.
var extractBuckets = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	time.Minute,
}

// Run holds the counters of one run.
type Run struct {
	id    string
	start time.Time

	metricsWritten  atomic.Int64
	metricsEmpty    atomic.Int64
	metricsRejected atomic.Int64
	metricsFailed   atomic.Int64

	chunksOK      atomic.Int64
	chunksPartial atomic.Int64
	chunksFailed  atomic.Int64
	chunksSkipped atomic.Int64
	diagnostics   atomic.Int64

	rowsMerged    atomic.Int64
	rowsDropped   atomic.Int64
	filesWritten  atomic.Int64
	pivotsWritten atomic.Int64
	pivotsFailed  atomic.Int64
	writeErrors   atomic.Int64

	extractBuckets [8]atomic.Int64 // len(extractBuckets) + Inf
	extractSum     atomic.Int64    // microseconds
	extractCount   atomic.Int64
}

// NewRun starts counting a run identified by id.
func NewRun(id string) *Run {
	return &Run{id: id, start: time.Now()}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// RecordChunk counts one extractor invocation and its duration.
func (r *Run) RecordChunk(outcome string, d time.Duration) {
	switch outcome {
	case ChunkOK:
		r.chunksOK.Add(1)
	case ChunkPartial:
		r.chunksPartial.Add(1)
	case ChunkFailed:
		r.chunksFailed.Add(1)
	case ChunkSkipped:
		r.chunksSkipped.Add(1)
		return
	}
	r.extractSum.Add(d.Microseconds())
	r.extractCount.Add(1)
	r.extractBuckets[bucket(d)].Add(1)
}

func bucket(d time.Duration) int {
	for i, upper := range extractBuckets {
		if d <= upper {
			return i
		}
	}
	return len(extractBuckets)
}

// RecordMetric counts a finished metric.
func (r *Run) RecordMetric(outcome string) {
	switch outcome {
	case OutcomeWritten:
		r.metricsWritten.Add(1)
	case OutcomeEmpty:
		r.metricsEmpty.Add(1)
	case OutcomeRejected:
		r.metricsRejected.Add(1)
	case OutcomeFailed:
		r.metricsFailed.Add(1)
	}
}

func (r *Run) AddDiagnostics(n int)   { r.diagnostics.Add(int64(n)) }
func (r *Run) AddRowsMerged(n int)    { r.rowsMerged.Add(int64(n)) }
func (r *Run) AddRowsDropped(n int)   { r.rowsDropped.Add(int64(n)) }
func (r *Run) AddFilesWritten(n int)  { r.filesWritten.Add(int64(n)) }
func (r *Run) AddPivotsWritten(n int) { r.pivotsWritten.Add(int64(n)) }
func (r *Run) AddPivotsFailed(n int)  { r.pivotsFailed.Add(int64(n)) }
func (r *Run) IncWriteErrors()        { r.writeErrors.Add(1) }

// Snapshot is a point-in-time copy of a run's counters.
type Snapshot struct {
	RunID           string
	Duration        time.Duration
	MetricsWritten  int64
	MetricsEmpty    int64
	MetricsRejected int64
	MetricsFailed   int64
	ChunksOK        int64
	ChunksPartial   int64
	ChunksFailed    int64
	ChunksSkipped   int64
	Diagnostics     int64
	RowsMerged      int64
	RowsDropped     int64
	FilesWritten    int64
	PivotsWritten   int64
	PivotsFailed    int64
	WriteErrors     int64
	ExtractBuckets  []int64
	ExtractSum      time.Duration
	ExtractCount    int64
}

// Snapshot copies the current counters.
func (r *Run) Snapshot() Snapshot {
	s := Snapshot{
		RunID:           r.id,
		Duration:        time.Since(r.start),
		MetricsWritten:  r.metricsWritten.Load(),
		MetricsEmpty:    r.metricsEmpty.Load(),
		MetricsRejected: r.metricsRejected.Load(),
		MetricsFailed:   r.metricsFailed.Load(),
		ChunksOK:        r.chunksOK.Load(),
		ChunksPartial:   r.chunksPartial.Load(),
		ChunksFailed:    r.chunksFailed.Load(),
		ChunksSkipped:   r.chunksSkipped.Load(),
		Diagnostics:     r.diagnostics.Load(),
		RowsMerged:      r.rowsMerged.Load(),
		RowsDropped:     r.rowsDropped.Load(),
		FilesWritten:    r.filesWritten.Load(),
		PivotsWritten:   r.pivotsWritten.Load(),
		PivotsFailed:    r.pivotsFailed.Load(),
		WriteErrors:     r.writeErrors.Load(),
		ExtractBuckets:  make([]int64, len(r.extractBuckets)),
		ExtractSum:      time.Duration(r.extractSum.Load()) * time.Microsecond,
		ExtractCount:    r.extractCount.Load(),
	}
	for i := range r.extractBuckets {
		s.ExtractBuckets[i] = r.extractBuckets[i].Load()
	}
	return s
}

// Metrics returns the number of metrics processed.
func (s Snapshot) Metrics() int64 {
	return s.MetricsWritten + s.MetricsEmpty + s.MetricsRejected + s.MetricsFailed
}

// MarshalZerologObject logs the totals.
func (s Snapshot) MarshalZerologObject(e *zerolog.Event) {
	e.Int64("metrics", s.Metrics()).
		Int64("metrics_written", s.MetricsWritten).
		Int64("metrics_empty", s.MetricsEmpty).
		Int64("metrics_rejected", s.MetricsRejected).
		Int64("metrics_failed", s.MetricsFailed).
		Int64("chunks_ok", s.ChunksOK).
		Int64("chunks_partial", s.ChunksPartial).
		Int64("chunks_failed", s.ChunksFailed).
		Int64("chunks_skipped", s.ChunksSkipped).
		Int64("rows", s.RowsMerged).
		Int64("rows_dropped", s.RowsDropped).
		Int64("files_written", s.FilesWritten).
		Int64("pivots_written", s.PivotsWritten).
		Int64("pivots_failed", s.PivotsFailed).
		Dur("duration", s.Duration)
}

// PrometheusFormat renders the snapshot in the Prometheus text exposition
// format, suitable for node_exporter's textfile collector.
func (s Snapshot) PrometheusFormat() string {
	var b []byte

	b = appendHeader(b, "sarpivot_run_duration_seconds", "Wall time of the last run", "gauge")
	b = appendMetric(b, "sarpivot_run_duration_seconds", "", "", s.Duration.Seconds())

	b = appendHeader(b, "sarpivot_metrics_total", "Metrics processed by outcome", "gauge")
	b = appendMetric(b, "sarpivot_metrics_total", "outcome", OutcomeWritten, float64(s.MetricsWritten))
	b = appendMetric(b, "sarpivot_metrics_total", "outcome", OutcomeEmpty, float64(s.MetricsEmpty))
	b = appendMetric(b, "sarpivot_metrics_total", "outcome", OutcomeRejected, float64(s.MetricsRejected))
	b = appendMetric(b, "sarpivot_metrics_total", "outcome", OutcomeFailed, float64(s.MetricsFailed))

	b = appendHeader(b, "sarpivot_chunks_total", "Extractor invocations by outcome", "gauge")
	b = appendMetric(b, "sarpivot_chunks_total", "outcome", ChunkOK, float64(s.ChunksOK))
	b = appendMetric(b, "sarpivot_chunks_total", "outcome", ChunkPartial, float64(s.ChunksPartial))
	b = appendMetric(b, "sarpivot_chunks_total", "outcome", ChunkFailed, float64(s.ChunksFailed))
	b = appendMetric(b, "sarpivot_chunks_total", "outcome", ChunkSkipped, float64(s.ChunksSkipped))

	b = appendHeader(b, "sarpivot_rows_total", "Data rows kept after validation", "gauge")
	b = appendMetric(b, "sarpivot_rows_total", "", "", float64(s.RowsMerged))
	b = appendHeader(b, "sarpivot_rows_dropped_total", "Lines removed by validation", "gauge")
	b = appendMetric(b, "sarpivot_rows_dropped_total", "", "", float64(s.RowsDropped))

	b = appendHeader(b, "sarpivot_files_written_total", "Output files written", "gauge")
	b = appendMetric(b, "sarpivot_files_written_total", "", "", float64(s.FilesWritten))
	b = appendHeader(b, "sarpivot_pivots_failed_total", "Value columns that could not be pivoted", "gauge")
	b = appendMetric(b, "sarpivot_pivots_failed_total", "", "", float64(s.PivotsFailed))
	b = appendHeader(b, "sarpivot_write_errors_total", "Failed output writes", "gauge")
	b = appendMetric(b, "sarpivot_write_errors_total", "", "", float64(s.WriteErrors))

	b = appendHeader(b, "sarpivot_extract_duration_seconds", "Extractor invocation latency", "histogram")
	var cumulative int64
	for i, upper := range extractBuckets {
		cumulative += s.ExtractBuckets[i]
		b = appendMetric(b, "sarpivot_extract_duration_seconds_bucket", "le", strconv.FormatFloat(upper.Seconds(), 'g', -1, 64), float64(cumulative))
	}
	cumulative += s.ExtractBuckets[len(extractBuckets)]
	b = appendMetric(b, "sarpivot_extract_duration_seconds_bucket", "le", "+Inf", float64(cumulative))
	b = appendMetric(b, "sarpivot_extract_duration_seconds_sum", "", "", s.ExtractSum.Seconds())
	b = appendMetric(b, "sarpivot_extract_duration_seconds_count", "", "", float64(s.ExtractCount))

	return string(b)
}

func appendHeader(b []byte, name, help, typ string) []byte {
	b = append(b, "# HELP "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, help...)
	b = append(b, "\n# TYPE "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, typ...)
	return append(b, '\n')
}

func appendMetric(b []byte, name, labelName, labelValue string, value float64) []byte {
	b = append(b, name...)
	if labelName != "" {
		b = append(b, '{')
		b = append(b, labelName...)
		b = append(b, '=', '"')
		b = append(b, labelValue...)
		b = append(b, '"', '}')
	}
	b = append(b, ' ')
	b = strconv.AppendFloat(b, value, 'g', -1, 64)
	return append(b, '\n')
}
