package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/rs/zerolog"
)

// AzureBlobConfig holds Azure Blob Storage sink configuration.
type AzureBlobConfig struct {
	ConnectionString   string
	AccountName        string
	AccountKey         string
	SASToken           string
	UseManagedIdentity bool
	ContainerName      string
	Endpoint           string // Custom endpoint, e.g. Azurite
	Prefix             string // Blob name prefix
}

// AzureBlobBackend uploads output files to a blob container.
type AzureBlobBackend struct {
	client        *azblob.Client
	containerName string
	prefix        string
	logger        zerolog.Logger
}

// NewAzureBlobBackend creates an Azure sink. Authentication is tried in this
// order: connection string, SAS token, shared key, managed identity.
func NewAzureBlobBackend(cfg *AzureBlobConfig, logger zerolog.Logger) (*AzureBlobBackend, error) {
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("Azure container name is required")
	}
	log := logger.With().Str("component", "azure-storage").Logger()

	endpoint := cfg.Endpoint
	if endpoint == "" && cfg.AccountName != "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	}

	var client *azblob.Client
	var err error
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		log.Debug().Msg("Using connection string authentication for Azure Blob Storage")

	case cfg.AccountName != "" && cfg.SASToken != "":
		serviceURL := fmt.Sprintf("%s?%s", endpoint, strings.TrimPrefix(cfg.SASToken, "?"))
		client, err = azblob.NewClientWithNoCredential(serviceURL, nil)
		log.Debug().Msg("Using SAS token authentication for Azure Blob Storage")

	case cfg.AccountName != "" && cfg.AccountKey != "":
		cred, credErr := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
		log.Debug().Msg("Using shared key authentication for Azure Blob Storage")

	case cfg.UseManagedIdentity && cfg.AccountName != "":
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create managed identity credential: %w", credErr)
		}
		client, err = azblob.NewClient(endpoint, cred, nil)
		log.Debug().Msg("Using managed identity authentication for Azure Blob Storage")

	default:
		return nil, fmt.Errorf("no Azure authentication configured: set azure_connection_string, azure_account_name with azure_account_key or azure_sas_token, or azure_use_managed_identity")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	b := &AzureBlobBackend{
		client:        client,
		containerName: cfg.ContainerName,
		prefix:        cfg.Prefix,
		logger:        log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.ServiceClient().NewContainerClient(cfg.ContainerName).GetProperties(ctx, nil); err != nil {
		log.Warn().Err(err).Str("container", cfg.ContainerName).Msg("Could not verify container exists")
	}

	return b, nil
}

// Write uploads data as a block blob named <prefix>/<path>.
func (b *AzureBlobBackend) Write(ctx context.Context, path string, data []byte) error {
	start := time.Now()
	name := objectKey(b.prefix, path)
	contentType := ContentType(path)

	_, err := b.client.UploadBuffer(ctx, b.containerName, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return classifyAzureError(fmt.Errorf("failed to write azure blob %s/%s: %w", b.containerName, name, err))
	}

	b.logger.Debug().
		Str("blob", name).
		Int("size", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Wrote to Azure Blob Storage")
	return nil
}

// Close is a no-op.
func (b *AzureBlobBackend) Close() error {
	return nil
}

// Type returns "azure".
func (b *AzureBlobBackend) Type() string {
	return "azure"
}

// classifyAzureError marks authentication and missing-container failures
// as ErrPermanent.
func classifyAzureError(err error) error {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	switch respErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	return err
}
