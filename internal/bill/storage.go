package bill

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Storage defines the interface for receipt file storage
type Storage interface {
	// Save stores data under name and returns the key to retrieve it
	Save(ctx context.Context, name string, data []byte) (string, error)

	// Get retrieves a file by key
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a file
	Delete(ctx context.Context, key string) error

	// URL returns the address a browser can load the file from
	URL(key string) string
}

// LocalStorage implements Storage on the local filesystem
type LocalStorage struct {
	basePath  string
	urlPrefix string
}

// NewLocalStorage creates the directory if needed. Files are addressed as
// urlPrefix + key.
func NewLocalStorage(basePath, urlPrefix string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath:  basePath,
		urlPrefix: urlPrefix,
	}, nil
}

// Save writes a file to local storage
func (l *LocalStorage) Save(_ context.Context, name string, data []byte) (string, error) {
	key := filepath.Base(name)
	if err := os.WriteFile(filepath.Join(l.basePath, key), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return key, nil
}

// Get reads a file from local storage
func (l *LocalStorage) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, filepath.Base(key)))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(_ context.Context, key string) error {
	if err := os.Remove(filepath.Join(l.basePath, filepath.Base(key))); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// URL joins the prefix and the escaped key
func (l *LocalStorage) URL(key string) string {
	return strings.TrimSuffix(l.urlPrefix, "/") + "/" + url.PathEscape(key)
}
