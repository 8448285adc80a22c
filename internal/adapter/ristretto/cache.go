// Package ristretto is the in-process L1 catalog cache backed by dgraph-io/ristretto.
package ristretto

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// ErrRejected is returned when ristretto's admission policy drops a write.
var ErrRejected = errors.New("ristretto: write rejected by admission policy")

// Cache stores catalog snapshots in process memory. Values are copied on the
// way in and out so callers never share a backing array with the cache.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache bounded to maxSizeMB megabytes of stored values.
func New(maxSizeMB int64) (*Cache, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 1
	}
	maxCost := maxSizeMB << 20
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// A catalog snapshot is a handful of keys; ten counters per
		// kilobyte of budget is plenty.
		NumCounters: maxCost / 100,
		MaxCost:     maxCost,
		BufferItems: 64,
		Cost: func(v []byte) int64 {
			return int64(len(v))
		},
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

func (c *Cache) Get(_ context.Context, key string) (data []byte, found bool, err error) {
	val, ok := c.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), val...), true, nil
}

// Set stores value for ttl. A zero ttl keeps the entry until evicted.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := append([]byte(nil), value...)
	if !c.c.SetWithTTL(key, v, 0, ttl) {
		return ErrRejected
	}
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until buffered writes have been applied.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
