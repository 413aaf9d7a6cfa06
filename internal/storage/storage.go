// Package storage persists uploaded media blobs and returns their public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"classifieds/internal/config"
	"classifieds/internal/middleware"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrForeignURL is returned when asked to delete a URL this store did not produce.
var ErrForeignURL = errors.New("url does not belong to this store")

// Store is a binary asset store.
type Store interface {
	// Put stores data under key and returns the public URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete removes the object behind a URL previously returned by Put.
	Delete(ctx context.Context, url string) error
}

// NewObjectKey returns a unique key "<prefix>/<uuid><ext>".
func NewObjectKey(prefix, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(prefix, uuid.NewString()+ext)
}

// New builds the store selected by MEDIA_BACKEND.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.MediaBackend {
	case "s3":
		return NewS3Store(ctx, S3Options{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
	case "", "local":
		fs := afero.NewBasePathFs(afero.NewOsFs(), cfg.MediaRoot)
		if err := fs.MkdirAll("/", 0o755); err != nil {
			return nil, fmt.Errorf("create media root %s: %w", cfg.MediaRoot, err)
		}
		middleware.Logger.Info("Using local media store")
		return NewLocalStore(fs, cfg.MediaBaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported media backend %q", cfg.MediaBackend)
	}
}

// DeleteAll removes every URL, logging failures. Used for best-effort cleanup.
func DeleteAll(ctx context.Context, store Store, urls []string) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		if err := store.Delete(ctx, u); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to delete media blob", "url", u, "error", err.Error())
		}
	}
}
