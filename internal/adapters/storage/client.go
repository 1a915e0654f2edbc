// Package storage keeps inbound message attachments in S3-compatible
// object storage and mints short-lived download links for the inbox UI.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/config"
)

// PresignedURLTTL is how long a media download link stays valid.
const PresignedURLTTL = 15 * time.Minute

// PresignedURL is a short-lived download link for a stored attachment.
type PresignedURL struct {
	URL       string    `json:"url"`
	ObjectKey string    `json:"objectKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// MediaStore reads and writes message attachments in a single bucket.
type MediaStore struct {
	client      *minio.Client
	bucket      string
	maxFileSize int64
}

// NewMediaStore connects to the configured MinIO endpoint. Callers check
// IsMinIOEnabled first; an unconfigured endpoint is an error here.
func NewMediaStore(cfg config.MinIOConfig) (*MediaStore, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MediaStore{
		client:      client,
		bucket:      cfg.GetMinioBucketMessageMedia(),
		maxFileSize: cfg.GetMinIOMaxFileSize(),
	}, nil
}

// EnsureBucket creates the media bucket if it doesn't exist.
func (s *MediaStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Upload stores one attachment under the given key, overwriting any object
// already there. Webhook replays reuse the same key, so a redelivered
// attachment lands on the original object instead of piling up copies.
func (s *MediaStore) Upload(ctx context.Context, objectKey string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = fallbackContentType
	}
	if err := ValidateContentType(contentType); err != nil {
		return err
	}
	if err := s.ValidateFileSize(int64(len(data))); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", objectKey, err)
	}
	return nil
}

// PresignedGetURL creates a download link for a stored attachment.
func (s *MediaStore) PresignedGetURL(ctx context.Context, objectKey string) (*PresignedURL, error) {
	expiresAt := time.Now().Add(PresignedURLTTL)

	presignedURL, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, PresignedURLTTL, make(url.Values))
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned download URL: %w", err)
	}

	return &PresignedURL{
		URL:       presignedURL.String(),
		ObjectKey: objectKey,
		ExpiresAt: expiresAt,
	}, nil
}
