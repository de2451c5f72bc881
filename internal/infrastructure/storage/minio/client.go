package minio

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// MinIOAPI is the subset of *minio.Client the export store uses.
type MinIOAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
}

// MinIOConfig configures the object store used for calendar exports.
type MinIOConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Region          string        `mapstructure:"region"`
	ExportBucket    string        `mapstructure:"export_bucket"`
	ExportRetention int           `mapstructure:"export_retention_days"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
}

// ExportStore uploads export files into one bucket.
type ExportStore struct {
	client MinIOAPI
	config *MinIOConfig
	logger logging.Logger
}

func applyDefaults(cfg *MinIOConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.ExportBucket == "" {
		cfg.ExportBucket = "reminder-exports"
	}
	if cfg.ExportRetention == 0 {
		cfg.ExportRetention = 30
	}
	if cfg.PresignExpiry == 0 {
		cfg.PresignExpiry = 24 * time.Hour
	}
}

// NewExportStore connects to MinIO and makes sure the export bucket exists.
func NewExportStore(ctx context.Context, cfg *MinIOConfig, log logging.Logger) (*ExportStore, error) {
	applyDefaults(cfg)
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create minio client")
	}
	s := NewExportStoreWithClient(client, cfg, log)
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	log.Info("MinIO export store ready", logging.String("endpoint", cfg.Endpoint), logging.String("bucket", cfg.ExportBucket))
	return s, nil
}

// NewExportStoreWithClient wraps an existing client.
func NewExportStoreWithClient(client MinIOAPI, cfg *MinIOConfig, log logging.Logger) *ExportStore {
	applyDefaults(cfg)
	return &ExportStore{client: client, config: cfg, logger: log}
}

// EnsureBucket creates the export bucket and its expiry rule.  A failing
// lifecycle call is logged, not returned.
func (s *ExportStore) EnsureBucket(ctx context.Context) error {
	bucket := s.config.ExportBucket
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to check bucket existence")
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.config.Region}); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create bucket").WithDetail(bucket)
		}
		s.logger.Info("Created bucket", logging.String("bucket", bucket))
	}

	rules := lifecycle.NewConfiguration()
	rules.Rules = []lifecycle.Rule{{
		ID:         "exports-cleanup",
		Status:     "Enabled",
		Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(s.config.ExportRetention)},
	}}
	if err := s.client.SetBucketLifecycle(ctx, bucket, rules); err != nil {
		s.logger.Warn("Failed to set lifecycle for exports bucket", logging.Err(err))
	}
	return nil
}

// Put uploads data under objectName.
func (s *ExportStore) Put(ctx context.Context, objectName string, data []byte, contentType string) error {
	if objectName == "" {
		return errors.New(errors.ErrCodeValidation, "object name is required")
	}
	_, err := s.client.PutObject(ctx, s.config.ExportBucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "upload failed").WithDetail(objectName)
	}
	return nil
}

// PresignedGetURL returns a time-limited download link.  A zero expiry uses
// the configured default.
func (s *ExportStore) PresignedGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	if expiry == 0 {
		expiry = s.config.PresignExpiry
	}
	u, err := s.client.PresignedGetObject(ctx, s.config.ExportBucket, objectName, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeExternalService, "presign failed").WithDetail(objectName)
	}
	return u.String(), nil
}

// HealthCheck pings the server.
func (s *ExportStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.ListBuckets(ctx)
	return err
}
