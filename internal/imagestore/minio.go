package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore uploads detection images to a MinIO (S3-compatible) bucket.
type MinIOStore struct {
	client   *minio.Client
	endpoint string
	bucket   string
	secure   bool
}

func NewMinIOStore(endpoint, accessKey, secretKey, bucket string, secure bool) (*MinIOStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating minio client: %w", err)
	}
	return &MinIOStore{
		client:   client,
		endpoint: endpoint,
		bucket:   bucket,
		secure:   secure,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("error checking bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("error creating bucket: %w", err)
	}
	slog.Info("created bucket", "bucket", s.bucket)
	return nil
}

func (s *MinIOStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("error uploading %s: %w", key, err)
	}

	scheme := "http"
	if s.secure {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, key)
	slog.Debug("image uploaded", "url", url)
	return url, nil
}
