// Package pipeline runs every catalog metric through
// collect, merge, validate, write and pivot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/basekick-labs/sarpivot/internal/catalog"
	"github.com/basekick-labs/sarpivot/internal/merge"
	"github.com/basekick-labs/sarpivot/internal/metrics"
	"github.com/basekick-labs/sarpivot/internal/pivot"
	"github.com/basekick-labs/sarpivot/internal/sadf"
	"github.com/basekick-labs/sarpivot/internal/table"
	"github.com/basekick-labs/sarpivot/internal/validate"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrMissingDependency indicates the extractor binary is not installed.
	ErrMissingDependency = sadf.ErrMissingDependency

	// ErrInvalidInput indicates unusable sources or output location.
	ErrInvalidInput = errors.New("invalid input")
)

// Collector extracts one metric from one source.
type Collector interface {
	Collect(ctx context.Context, def catalog.MetricDefinition, source string) sadf.RawChunk
}

// Writer persists merged tables, pivots and documents.
type Writer interface {
	WriteTable(ctx context.Context, label string, t *table.Table) (string, error)
	WritePivots(ctx context.Context, label string, results []pivot.Result) ([]string, error)
	WriteDocument(ctx context.Context, label string, data []byte) (string, error)
}

// Config tunes a Pipeline.
type Config struct {
	Format      string // csv, json or xml
	Delimiter   rune
	Concurrency int // metrics processed in parallel
	Pivot       bool
	FillValue   string
	TimeColumn  string
}

// Pipeline processes the metrics of a catalog against a fixed list of
// sources.
type Pipeline struct {
	catalog   *catalog.Catalog
	collector Collector
	writer    Writer
	validator *validate.Validator
	pivoter   *pivot.Pivoter
	cfg       Config
	logger    zerolog.Logger
}

// New creates a pipeline.
func New(cat *catalog.Catalog, collector Collector, writer Writer, cfg Config, logger zerolog.Logger) (*Pipeline, error) {
	if cat == nil || cat.Len() == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, catalog.ErrEmptyCatalog)
	}
	if _, err := merge.New(cfg.Format, cfg.Delimiter); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	return &Pipeline{
		catalog:   cat,
		collector: collector,
		writer:    writer,
		validator: validate.New(cfg.TimeColumn),
		pivoter:   pivot.New(cfg.FillValue, logger),
		cfg:       cfg,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}, nil
}

// MetricResult is what happened to one metric.
type MetricResult struct {
	Label         string
	Outcome       string // one of the metrics.Outcome* values
	ChunksOK      int
	ChunksPartial int
	ChunksFailed  int
	ChunksSkipped int
	Rows          int
	Files         []string
	PivotsWritten int
	PivotsFailed  int
	Err           error
	Duration      time.Duration
}

// Report summarises a run.
type Report struct {
	RunID   string
	Metrics []MetricResult // catalog order
	Stats   metrics.Snapshot
}

// Run processes every metric. Metric failures are contained and reported in
// the Report; the returned error is non-nil only when ctx ended the run, in
// which case unwritten work was discarded.
func (p *Pipeline) Run(ctx context.Context, sources []string) (*Report, error) {
	runID := uuid.NewString()
	logger := p.logger.With().Str("run_id", runID).Logger()
	stats := metrics.NewRun(runID)

	defs := p.catalog.Definitions()
	results := make([]MetricResult, len(defs))

	logger.Info().
		Int("metrics", len(defs)).
		Int("sources", len(sources)).
		Int("concurrency", p.cfg.Concurrency).
		Str("format", p.cfg.Format).
		Msg("Run started")

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, def := range defs {
		if ctx.Err() != nil {
			results[i] = MetricResult{Label: def.Label, Outcome: metrics.OutcomeFailed, Err: ctx.Err()}
			stats.RecordMetric(metrics.OutcomeFailed)
			continue
		}
		g.Go(func() error {
			results[i] = p.processMetric(ctx, def, sources, stats, logger)
			return nil
		})
	}
	g.Wait()

	report := &Report{RunID: runID, Metrics: results, Stats: stats.Snapshot()}
	if err := ctx.Err(); err != nil {
		logger.Warn().EmbedObject(report.Stats).Msg("Run cancelled")
		return report, fmt.Errorf("run cancelled: %w", err)
	}
	logger.Info().EmbedObject(report.Stats).Msg("Run complete")
	return report, nil
}

func (p *Pipeline) processMetric(ctx context.Context, def catalog.MetricDefinition, sources []string, stats *metrics.Run, logger zerolog.Logger) (res MetricResult) {
	start := time.Now()
	log := logger.With().Str("metric", def.Label).Logger()
	res.Label = def.Label

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = metrics.OutcomeFailed
			res.Err = fmt.Errorf("panic: %v", r)
		}
		res.Duration = time.Since(start)
		stats.RecordMetric(res.Outcome)
		logSummary(log, res)
	}()

	merger, err := merge.New(p.cfg.Format, p.cfg.Delimiter)
	if err != nil {
		res.Outcome, res.Err = metrics.OutcomeFailed, err
		return res
	}

	for _, source := range sources {
		if ctx.Err() != nil {
			break
		}
		p.collect(ctx, def, source, merger, &res, stats, log)
	}
	if err := ctx.Err(); err != nil {
		// Nothing captured for a cancelled run is written.
		res.Outcome, res.Err = metrics.OutcomeFailed, err
		return res
	}
	if merger.Empty() {
		res.Outcome = metrics.OutcomeEmpty
		return res
	}

	if tm, ok := merger.(merge.TableMerger); ok {
		p.finishTable(ctx, def, tm.Table(), &res, stats, log)
	} else {
		p.finishDocument(ctx, def, merger, &res, stats, log)
	}
	return res
}

// collect runs one extraction and merges its text.
func (p *Pipeline) collect(ctx context.Context, def catalog.MetricDefinition, source string, merger merge.Merger, res *MetricResult, stats *metrics.Run, log zerolog.Logger) {
	chunk := p.collector.Collect(ctx, def, source)
	stats.RecordChunk(chunk.Status.String(), chunk.Duration)
	stats.AddDiagnostics(sadf.ReportDiagnostics(log, def.Label, chunk))

	switch chunk.Status {
	case sadf.StatusOK:
		res.ChunksOK++
	case sadf.StatusPartialTimeout:
		res.ChunksPartial++
		log.Warn().
			Str("source", source).
			Dur("duration", chunk.Duration).
			Int("bytes", len(chunk.Text)).
			Msg("Extraction timed out, merging partial output")
	default:
		res.ChunksFailed++
		if ctx.Err() == nil {
			log.Warn().Err(chunk.Err).Str("source", source).Msg("Extraction failed, source excluded")
		}
	}

	log.Debug().
		Str("source", source).
		Str("status", chunk.Status.String()).
		Dur("duration", chunk.Duration).
		Int("bytes", len(chunk.Text)).
		Msg("Collected chunk")

	if !chunk.Usable() {
		return
	}
	if err := merger.Merge(chunk.Text); err != nil {
		res.ChunksSkipped++
		stats.RecordChunk(metrics.ChunkSkipped, 0)
		log.Warn().Err(err).Str("source", source).Msg("Chunk skipped")
	}
}

func (p *Pipeline) finishTable(ctx context.Context, def catalog.MetricDefinition, merged *table.Table, res *MetricResult, stats *metrics.Run, log zerolog.Logger) {
	clean, err := p.validator.Validate(merged)
	if err != nil {
		p.reject(res, err)
		return
	}
	stats.AddRowsDropped(merged.Len() - clean.Len())

	// Merging can leave blank segments behind; checking again right before
	// the write keeps the written table clean whatever happened in between.
	final, err := p.validator.Validate(clean)
	if err != nil {
		p.reject(res, err)
		return
	}
	res.Rows = final.Len()
	stats.AddRowsMerged(final.Len())

	path, err := p.writer.WriteTable(ctx, def.Label, final)
	if err != nil {
		stats.IncWriteErrors()
		res.Outcome, res.Err = metrics.OutcomeFailed, err
		return
	}
	res.Files = append(res.Files, path)
	res.Outcome = metrics.OutcomeWritten

	if p.cfg.Pivot && def.Pivot != nil {
		p.pivot(ctx, def, final, res, stats, log)
	}
	stats.AddFilesWritten(len(res.Files))
}

func (p *Pipeline) pivot(ctx context.Context, def catalog.MetricDefinition, t *table.Table, res *MetricResult, stats *metrics.Run, log zerolog.Logger) {
	results, err := p.pivoter.Pivot(t, *def.Pivot)
	if err != nil {
		log.Warn().Err(err).Msg("Pivot skipped")
		return
	}
	for _, r := range results {
		if r.Err != nil {
			res.PivotsFailed++
		}
	}

	written, err := p.writer.WritePivots(ctx, def.Label, results)
	res.Files = append(res.Files, written...)
	res.PivotsWritten = len(written)
	if err != nil {
		stats.IncWriteErrors()
		attempted := 0
		for _, r := range results {
			if r.Err == nil {
				attempted++
			}
		}
		res.PivotsFailed += attempted - len(written)
		log.Warn().Err(err).Msg("Some pivoted tables were not written")
	}
	stats.AddPivotsWritten(res.PivotsWritten)
	stats.AddPivotsFailed(res.PivotsFailed)
}

func (p *Pipeline) finishDocument(ctx context.Context, def catalog.MetricDefinition, merger merge.Merger, res *MetricResult, stats *metrics.Run, log zerolog.Logger) {
	data, err := merger.Bytes()
	if err != nil {
		res.Outcome, res.Err = metrics.OutcomeFailed, err
		return
	}
	if err := p.validator.CheckDocument(data); err != nil {
		p.reject(res, err)
		return
	}

	path, err := p.writer.WriteDocument(ctx, def.Label, data)
	if err != nil {
		stats.IncWriteErrors()
		res.Outcome, res.Err = metrics.OutcomeFailed, err
		return
	}
	res.Files = append(res.Files, path)
	res.Outcome = metrics.OutcomeWritten
	stats.AddFilesWritten(1)
}

// reject records a table that validation refused. Tables without data
// rows are empty, not rejected.
func (p *Pipeline) reject(res *MetricResult, err error) {
	if errors.Is(err, validate.ErrNoData) {
		res.Outcome = metrics.OutcomeEmpty
		return
	}
	res.Outcome, res.Err = metrics.OutcomeRejected, err
}

func logSummary(log zerolog.Logger, res MetricResult) {
	ev := log.Info()
	switch res.Outcome {
	case metrics.OutcomeFailed, metrics.OutcomeRejected:
		ev = log.Warn().Err(res.Err)
	}
	ev.Str("outcome", res.Outcome).
		Int("chunks_ok", res.ChunksOK).
		Int("chunks_partial", res.ChunksPartial).
		Int("chunks_failed", res.ChunksFailed).
		Int("chunks_skipped", res.ChunksSkipped).
		Int("rows", res.Rows).
		Int("files", len(res.Files)).
		Int("pivots_written", res.PivotsWritten).
		Int("pivots_failed", res.PivotsFailed).
		Dur("duration", res.Duration).
		Msg("Metric processed")
}
