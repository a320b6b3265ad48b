// Package storage persists result artifacts in S3-compatible object storage
// and hands out presigned URLs as result locators.
package storage

import (
	"context"
	"time"
)

// ObjectStore is the boundary the pipeline and remote collaborators write
// results through.
type ObjectStore interface {
	// PutFile uploads the file at path under key.
	PutFile(ctx context.Context, path, key string) error
	// GetFile downloads the object at key to path.
	GetFile(ctx context.Context, key, path string) error
	// PresignedURL returns a time-limited download URL for key.
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
