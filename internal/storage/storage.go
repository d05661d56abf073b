// Package storage defines the interface for object storage operations and the
// key scheme used for task images. Swap implementations by changing the
// concrete type injected at startup — the MinIO implementation works with any
// S3-compatible provider (MinIO, ArvanCloud, AWS S3).
package storage

import (
	"context"
	"io"
)

// Storage is the interface for uploading and removing image objects.
type Storage interface {
	// Upload streams data to the store under the given key. Keys are never
	// reused, so implementations must not overwrite existing objects.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Remove deletes the objects identified by keys.
	Remove(ctx context.Context, keys []string) error
	// PublicURL constructs the browser-accessible URL for a given key.
	PublicURL(key string) string
}
