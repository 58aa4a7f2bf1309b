// Package storage abstracts the object store that holds rendered
// export artifacts. Keys are stable; signed URLs are short-lived and
// regenerated on every read.
package storage

import (
	"context"
	"time"
)

type UploadResult struct {
	URL string
}

// Store is the contract consumed by the export pipeline. The
// production binding (Tencent COS) lives outside this repository; the
// in-memory implementation below is used for local development and
// tests.
type Store interface {
	Upload(ctx context.Context, key string, data []byte) (UploadResult, error)
	// SignURL returns a time-limited retrieval URL for a stored key.
	// Two calls for the same key return different URLs.
	SignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
