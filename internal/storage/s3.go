package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

const (
	// Files at least this large go through the multipart uploader.
	multipartThreshold = 64 * 1024 * 1024
	multipartPartSize  = 16 * 1024 * 1024
	multipartWorkers   = 4
)

// S3Config holds S3 / MinIO sink configuration.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // Custom endpoint for MinIO (e.g. "localhost:9000")
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool   // Path-style addressing, required by MinIO
	Prefix    string // Key prefix for every object
}

// S3Backend uploads output files to an S3 compatible bucket.
type S3Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	logger   zerolog.Logger
}

// NewS3Backend creates an S3 sink. Credentials fall back to the AWS default
// chain when no static keys are configured.
func NewS3Backend(cfg *S3Config, logger zerolog.Logger) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}
	log := logger.With().Str("component", "s3-storage").Logger()

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	accessKey, secretKey := cfg.AccessKey, cfg.SecretKey
	if accessKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if secretKey == "" {
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
		log.Debug().Msg("Using static credentials for S3")
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := s3Endpoint(cfg.Endpoint, cfg.UseSSL)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
		log.Info().Str("endpoint", endpoint).Msg("Using custom S3 endpoint")
	}
	if cfg.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = multipartPartSize
		u.Concurrency = multipartWorkers
	})

	b := &S3Backend{
		client:   client,
		uploader: uploader,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		logger:   log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		log.Warn().Err(err).Str("bucket", cfg.Bucket).Msg("Could not verify bucket exists")
	}

	return b, nil
}

// Write uploads data to <prefix>/<path>.
func (b *S3Backend) Write(ctx context.Context, path string, data []byte) error {
	start := time.Now()
	key := objectKey(b.prefix, path)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ContentType(path)),
	}

	var err error
	if len(data) >= multipartThreshold {
		_, err = b.uploader.Upload(ctx, input)
	} else {
		input.ContentLength = aws.Int64(int64(len(data)))
		_, err = b.client.PutObject(ctx, input)
	}
	if err != nil {
		return classifyS3Error(fmt.Errorf("failed to write s3://%s/%s: %w", b.bucket, key, err))
	}

	b.logger.Debug().
		Str("key", key).
		Int("size", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Wrote to S3")
	return nil
}

// Close is a no-op; the SDK client holds no long-lived connections of its own.
func (b *S3Backend) Close() error {
	return nil
}

// Type returns "s3".
func (b *S3Backend) Type() string {
	return "s3"
}

// permanentS3Codes are API error codes a retry cannot fix.
var permanentS3Codes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"NoSuchBucket":          true,
	"InvalidBucketName":     true,
}

// classifyS3Error marks credential and missing-bucket failures as
// ErrPermanent so the resilient wrapper stops retrying them.
func classifyS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && permanentS3Codes[apiErr.ErrorCode()] {
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	return err
}

// s3Endpoint adds a scheme to a bare host:port endpoint.
func s3Endpoint(endpoint string, useSSL bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
