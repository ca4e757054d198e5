package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/mamadbah2/chatrelay/internal/config"
)

// Uploader is the subset of the S3 upload manager the store needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store writes media objects into a bucket that is served from a public base URL.
type S3Store struct {
	uploader Uploader
	bucket   string
	baseURL  string
	logger   *zap.Logger
}

// NewS3Store builds an S3 client from the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StoreWithUploader(manager.NewUploader(client), cfg, logger), nil
}

// NewS3StoreWithUploader wires a store around an existing uploader.
func NewS3StoreWithUploader(uploader Uploader, cfg config.StorageConfig, logger *zap.Logger) *S3Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Store{
		uploader: uploader,
		bucket:   cfg.Bucket,
		baseURL:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		logger:   logger,
	}
}

// Put uploads body under key. Uploading the same key again overwrites the object.
// size may be negative when unknown.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload %s to bucket %s: %w", key, s.bucket, err)
	}

	s.logger.Debug("object stored", zap.String("key", key), zap.Int64("size", size), zap.String("content_type", contentType))
	return nil
}

// PublicURL returns the public address of key.
func (s *S3Store) PublicURL(key string) string {
	return s.baseURL + "/" + strings.TrimPrefix(key, "/")
}
