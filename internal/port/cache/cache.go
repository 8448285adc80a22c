// Package cache defines the port interface for caching.
package cache

import (
	"context"
	"time"
)

// KeyCatalogItems holds the JSON-encoded full catalog snapshot.
const KeyCatalogItems = "catalog:items"

// Cache is the port interface for key-value caching.
// A miss is reported as found=false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
