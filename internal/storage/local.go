package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// LocalStore writes blobs to a filesystem served under baseURL (e.g. /media).
type LocalStore struct {
	fs      afero.Fs
	baseURL string
}

// NewLocalStore returns a store rooted at fs.
func NewLocalStore(fs afero.Fs, baseURL string) *LocalStore {
	return &LocalStore{fs: fs, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	key = path.Clean("/" + key)
	if err := s.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, key, data, 0o644); err != nil {
		return "", fmt.Errorf("write media %s: %w", key, err)
	}
	return s.baseURL + key, nil
}

func (s *LocalStore) Delete(_ context.Context, url string) error {
	if !strings.HasPrefix(url, s.baseURL+"/") {
		return ErrForeignURL
	}
	key := path.Clean("/" + strings.TrimPrefix(url, s.baseURL+"/"))
	if err := s.fs.Remove(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media %s: %w", key, err)
	}
	return nil
}
