package main

import (
	"fmt"
	"path"

	"github.com/basekick-labs/sarpivot/internal/config"
	"github.com/basekick-labs/sarpivot/internal/logger"
	"github.com/basekick-labs/sarpivot/internal/storage"
	"github.com/rs/zerolog/log"
)

// newBackend creates the configured output sink. Remote sinks are wrapped
// with retries and a circuit breaker; the output directory becomes their
// key or topic prefix.
func newBackend(cfg *config.Config) (storage.Backend, error) {
	var (
		backend storage.Backend
		err     error
	)

	switch cfg.Storage.Backend {
	case "local":
		backend, err = storage.NewLocalBackend(cfg.Output.Directory, logger.Get("storage"))
		if err != nil {
			return nil, err
		}
		log.Debug().
			Str("backend", "local").
			Str("path", cfg.Output.Directory).
			Msg("Storage backend initialized")
		return backend, nil

	case "s3":
		backend, err = storage.NewS3Backend(&storage.S3Config{
			Bucket:    cfg.Storage.S3Bucket,
			Region:    cfg.Storage.S3Region,
			Endpoint:  cfg.Storage.S3Endpoint,
			AccessKey: cfg.Storage.S3AccessKey,
			SecretKey: cfg.Storage.S3SecretKey,
			UseSSL:    cfg.Storage.S3UseSSL,
			PathStyle: cfg.Storage.S3PathStyle,
			Prefix:    joinPrefix(cfg.Storage.S3Prefix, cfg.Output.Directory),
		}, logger.Get("storage"))
		if err != nil {
			return nil, err
		}
		log.Debug().
			Str("backend", "s3").
			Str("bucket", cfg.Storage.S3Bucket).
			Str("endpoint", cfg.Storage.S3Endpoint).
			Msg("Storage backend initialized")

	case "azure":
		backend, err = storage.NewAzureBlobBackend(&storage.AzureBlobConfig{
			ConnectionString:   cfg.Storage.AzureConnectionString,
			AccountName:        cfg.Storage.AzureAccountName,
			AccountKey:         cfg.Storage.AzureAccountKey,
			SASToken:           cfg.Storage.AzureSASToken,
			ContainerName:      cfg.Storage.AzureContainer,
			Endpoint:           cfg.Storage.AzureEndpoint,
			UseManagedIdentity: cfg.Storage.AzureUseManagedIdentity,
			Prefix:             joinPrefix("", cfg.Output.Directory),
		}, logger.Get("storage"))
		if err != nil {
			return nil, err
		}
		log.Debug().
			Str("backend", "azure").
			Str("container", cfg.Storage.AzureContainer).
			Msg("Storage backend initialized")

	case "mqtt":
		backend, err = storage.NewMQTTBackend(&storage.MQTTConfig{
			Broker:      cfg.Storage.MQTTBroker,
			ClientID:    cfg.Storage.MQTTClientID,
			Username:    cfg.Storage.MQTTUsername,
			Password:    cfg.Storage.MQTTPassword,
			TopicPrefix: joinPrefix(cfg.Storage.MQTTTopicPrefix, cfg.Output.Directory),
			QoS:         byte(cfg.Storage.MQTTQoS),
		}, logger.Get("storage"))
		if err != nil {
			return nil, err
		}

	case "duckdb":
		backend, err = storage.NewDuckDBBackend(&storage.DuckDBConfig{
			Path:      cfg.Storage.DuckDBPath,
			Delimiter: []rune(cfg.Extract.Delimiter)[0],
		}, logger.Get("storage"))
		if err != nil {
			return nil, err
		}
		log.Debug().
			Str("backend", "duckdb").
			Str("path", cfg.Storage.DuckDBPath).
			Msg("Storage backend initialized")
		return backend, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}

	resilient := storage.DefaultResilientConfig()
	resilient.MaxRetries = cfg.Storage.MaxRetries
	return storage.NewResilientBackend(backend, resilient, logger.Get("storage")), nil
}

// joinPrefix nests the output directory under a configured prefix. Relative
// markers are dropped since object keys have no working directory.
func joinPrefix(prefix, dir string) string {
	dir = path.Clean("/" + dir)
	return path.Join(prefix, dir)
}
