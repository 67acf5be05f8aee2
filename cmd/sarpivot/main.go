package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/basekick-labs/sarpivot/internal/catalog"
	"github.com/basekick-labs/sarpivot/internal/config"
	"github.com/basekick-labs/sarpivot/internal/logger"
	"github.com/basekick-labs/sarpivot/internal/metrics"
	"github.com/basekick-labs/sarpivot/internal/output"
	"github.com/basekick-labs/sarpivot/internal/pipeline"
	"github.com/basekick-labs/sarpivot/internal/sadf"
	"github.com/basekick-labs/sarpivot/internal/shutdown"
	"github.com/basekick-labs/sarpivot/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// Version is set at build time
var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one aggregation and returns the process exit status.
func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Debug().Str("version", Version).Msg("Starting sarpivot")

	// Pre-flight: extractor binary
	binary, err := sadf.Preflight(cfg.Extract.Binary)
	if err != nil {
		log.Error().Err(err).Str("binary", cfg.Extract.Binary).Msg("Extractor not available (install sysstat)")
		return 1
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load metric catalog")
		return 1
	}

	sources, err := pipeline.ResolveSources(cfg.Sources, logger.Get("sources"))
	if err != nil {
		log.Error().Err(err).Msg("No usable source files")
		return 1
	}

	coordinator := shutdown.New(30*time.Second, logger.Get("shutdown"))
	defer func() {
		if err := coordinator.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("Shutdown finished with errors")
		}
	}()

	backend, err := newBackend(cfg)
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.Storage.Backend).Msg("Failed to initialize output backend")
		return 1
	}
	coordinator.Register("storage", backend, shutdown.PriorityStorage)

	writer, err := output.New(backend, output.Config{
		Format:      cfg.Format,
		Encoding:    cfg.Output.Encoding,
		Compression: cfg.Output.Compression,
		TimeColumn:  cfg.Validation.TimeColumn,
	}, logger.Get("output"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize output writer")
		return 1
	}
	coordinator.RegisterHook("writer", func(context.Context) error {
		writer.Close()
		return nil
	}, shutdown.PriorityWriter)

	collector, err := sadf.NewCollector(&sadf.Config{
		Binary:        binary,
		Format:        cfg.Format,
		Timeout:       time.Duration(cfg.Extract.TimeoutSeconds) * time.Second,
		MaxConcurrent: cfg.Extract.MaxConcurrent,
	}, nil, logger.Get("sadf"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize extractor")
		return 1
	}

	p, err := pipeline.New(cat, collector, writer, pipeline.Config{
		Format:      cfg.Format,
		Delimiter:   []rune(cfg.Extract.Delimiter)[0],
		Concurrency: cfg.Pipeline.Concurrency,
		Pivot:       cfg.Pivot.Enabled,
		FillValue:   cfg.Pivot.FillValue,
		TimeColumn:  cfg.Validation.TimeColumn,
	}, logger.Get("pipeline"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize pipeline")
		return 1
	}

	log.Info().
		Int("sources", len(sources)).
		Int("metrics", cat.Len()).
		Str("format", cfg.Format).
		Str("encoding", cfg.Output.Encoding).
		Str("backend", cfg.Storage.Backend).
		Str("output", cfg.Output.Directory).
		Msg("Processing recordings")

	ctx, stop := coordinator.NotifyContext(context.Background())
	defer stop()

	report, runErr := p.Run(ctx, sources)
	if cfg.Metrics.TextFile != "" {
		if err := writeTextfile(cfg.Metrics.TextFile, report.Stats); err != nil {
			log.Warn().Err(err).Str("path", cfg.Metrics.TextFile).Msg("Failed to write run statistics")
		}
	}
	if runErr != nil {
		log.Error().Err(runErr).Msg("Run interrupted, unwritten output discarded")
		return 1
	}

	counts := logger.Counts()
	log.Info().
		Str("run_id", report.RunID).
		Int64("warnings", counts.Warnings).
		Int64("errors", counts.Errors).
		Msg("Done")
	return 0
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.File == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(cfg.Catalog.File)
}

// writeTextfile replaces path with the run statistics, atomically so a
// scraping node_exporter never reads half a file.
func writeTextfile(path string, stats metrics.Snapshot) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	local, err := storage.NewLocalBackend(dir, logger.Get("metrics"))
	if err != nil {
		return err
	}
	defer local.Close()
	return local.Write(context.Background(), name, []byte(stats.PrometheusFormat()))
}
