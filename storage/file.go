package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/genui/attested-trace-backend/interfaces"
)

// FileBackend implements a blob store on the local file system. Intended for
// development and tests; URLs use the file:// scheme.
type FileBackend struct {
	baseDir string
	log     *slog.Logger
}

// NewFileBackend creates a file blob store rooted at baseDir, creating the
// directory if needed.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{baseDir: baseDir, log: log}, nil
}

// Put writes data to the file at key, creating parent directories as needed.
func (b *FileBackend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStorageWrite, err)
	}

	filePath := filepath.Join(b.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStorageWrite, err)
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStorageWrite, err)
	}

	b.log.Debug("Stored object in file backend",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return nil
}

// URL returns a file:// URL for key.
func (b *FileBackend) URL(key string) string {
	return "file://" + path.Join(filepath.ToSlash(b.baseDir), key)
}

// Available checks if the base directory is accessible.
func (b *FileBackend) Available(ctx context.Context) bool {
	info, err := os.Stat(b.baseDir)
	return err == nil && info.IsDir()
}

// Name returns a unique identifier for this backend.
func (b *FileBackend) Name() string {
	return "file-" + b.baseDir
}

// validateKey rejects keys that would escape the base directory.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("absolute key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("key %q escapes base directory", key)
		}
	}
	return nil
}
