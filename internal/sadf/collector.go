// Package sadf invokes the sysstat extractor once per metric and source
// recording and classifies the outcome.
package sadf

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/basekick-labs/sarpivot/internal/catalog"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrMissingDependency indicates the extractor binary cannot be found.
	ErrMissingDependency = errors.New("extractor binary not found")

	// ErrTimeout indicates an extraction cut short by its deadline.
	ErrTimeout = errors.New("extraction timed out")

	// ErrExtractFailed indicates an extractor exiting with an error.
	ErrExtractFailed = errors.New("extraction failed")

	// ErrUnknownFormat indicates an output format the extractor cannot produce.
	ErrUnknownFormat = errors.New("unknown output format")
)

// Status classifies one extraction.
type Status int

const (
	StatusOK Status = iota
	StatusPartialTimeout
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusPartialTimeout:
		return "partial_timeout"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// RawChunk is the outcome of one extraction. Text is nil for failed chunks.
type RawChunk struct {
	Source      string
	Text        []byte
	Diagnostics string
	Status      Status
	Err         error
	Duration    time.Duration
}

// Usable reports whether the chunk contributes text to a merge.
func (c RawChunk) Usable() bool {
	return c.Status == StatusOK || c.Status == StatusPartialTimeout
}

// formatFlags maps output formats to sadf flags.
var formatFlags = map[string]string{
	"csv":  "-d",
	"json": "-j",
	"xml":  "-x",
}

// FormatFlag returns the sadf flag selecting format.
func FormatFlag(format string) (string, error) {
	flag, ok := formatFlags[format]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	return flag, nil
}

// Config configures a Collector.
type Config struct {
	Binary        string
	Format        string
	Timeout       time.Duration
	MaxConcurrent int
}

// Collector runs the extractor for (metric, source) pairs. It is safe for
// concurrent use; at most MaxConcurrent extractions run at once.
type Collector struct {
	runner  Runner
	binary  string
	flag    string
	timeout time.Duration
	sem     *semaphore.Weighted
	logger  zerolog.Logger
}

// NewCollector creates a collector. A nil runner selects ExecRunner.
func NewCollector(cfg *Config, runner Runner, logger zerolog.Logger) (*Collector, error) {
	flag, err := FormatFlag(cfg.Format)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Collector{
		runner:  runner,
		binary:  cfg.Binary,
		flag:    flag,
		timeout: cfg.Timeout,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		logger:  logger.With().Str("component", "sadf").Logger(),
	}, nil
}

// Args returns the extractor arguments for def and source.
func (c *Collector) Args(def catalog.MetricDefinition, source string) []string {
	args := make([]string, 0, 3+len(def.Selector))
	args = append(args, c.flag, source, "--")
	return append(args, def.Selector...)
}

// Collect extracts def from source under the collector's timeout. It never
// returns an error: failures are reported through the chunk's Status and Err.
// When ctx is cancelled the chunk is Failed and any captured output dropped.
func (c *Collector) Collect(ctx context.Context, def catalog.MetricDefinition, source string) RawChunk {
	chunk := RawChunk{Source: source}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		chunk.Status = StatusFailed
		chunk.Err = fmt.Errorf("extraction cancelled: %w", err)
		return chunk
	}
	defer c.sem.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := c.Args(def, source)
	c.logger.Debug().
		Str("metric", def.Label).
		Str("source", source).
		Strs("args", args).
		Msg("Running extractor")

	start := time.Now()
	stdout, stderr, err := c.runner.Run(runCtx, c.binary, args...)
	chunk.Duration = time.Since(start)
	chunk.Diagnostics = string(stderr)

	switch {
	case ctx.Err() != nil:
		chunk.Status = StatusFailed
		chunk.Err = fmt.Errorf("extraction cancelled: %w", ctx.Err())
	case err == nil:
		chunk.Status = StatusOK
		chunk.Text = stdout
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		chunk.Status = StatusPartialTimeout
		chunk.Text = stdout
		chunk.Err = fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	default:
		chunk.Status = StatusFailed
		chunk.Err = fmt.Errorf("%w: %w", ErrExtractFailed, err)
	}
	return chunk
}

// Preflight resolves binary on PATH.
func Preflight(binary string) (string, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMissingDependency, binary, err)
	}
	return path, nil
}
