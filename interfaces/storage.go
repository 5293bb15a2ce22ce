package interfaces

import "context"

// BlobStore is a write-oriented key-value object store. Keys are slash
// separated paths fully determined by the caller; writes to the same key are
// last-writer-wins.
type BlobStore interface {
	// Put stores data under key with the given MIME content type,
	// overwriting any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// URL returns the publicly addressable URL for key.
	URL(key string) string

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string
}
