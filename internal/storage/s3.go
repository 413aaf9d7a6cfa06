package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"classifieds/internal/middleware"
	"classifieds/internal/observability"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures an S3-compatible (MinIO) store.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Store stores blobs in an S3-compatible bucket and serves them by path-style URL.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Store connects to the endpoint and makes sure the bucket exists.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for endpoint %s: %w", opts.Endpoint, err)
	}

	if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
		exists, existsErr := client.BucketExists(ctx, opts.Bucket)
		if existsErr != nil || !exists {
			return nil, fmt.Errorf("failed to make or verify bucket %s: %w", opts.Bucket, err)
		}
	}
	middleware.Logger.Info("Using S3 media store", "endpoint", opts.Endpoint, "bucket", opts.Bucket)

	return &S3Store{
		client: client,
		bucket: opts.Bucket,
		prefix: fmt.Sprintf("%s/%s/", client.EndpointURL().String(), opts.Bucket),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error) {
	ctx, span := observability.StartClientSpan(ctx, "s3", "PutObject")
	defer func() { observability.EndSpan(span, err) }()

	key = strings.TrimPrefix(key, "/")
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s to bucket %s: %w", key, s.bucket, err)
	}
	return s.prefix + key, nil
}

func (s *S3Store) Delete(ctx context.Context, url string) (err error) {
	if !strings.HasPrefix(url, s.prefix) {
		return ErrForeignURL
	}
	ctx, span := observability.StartClientSpan(ctx, "s3", "RemoveObject")
	defer func() { observability.EndSpan(span, err) }()

	key := strings.TrimPrefix(url, s.prefix)
	if err = s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", key, err)
	}
	return nil
}
