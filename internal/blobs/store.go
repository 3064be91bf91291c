// Package blobs keeps document bytes in S3-compatible object storage. Clients
// upload and download through presigned URLs; the server only signs requests
// and removes objects of purged documents.
package blobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the object-storage surface used by the sync and purge services.
type Store interface {
	NewKey(now time.Time) string
	PresignPut(ctx context.Context, key string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys []string) error
}

// RandomKey returns a date-partitioned random object key.
func RandomKey(now time.Time) string {
	return fmt.Sprintf("users/%d/%d/%d/%v", now.Year(), now.Month(), now.Day(), uuid.New())
}
