// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/collectibles/internal/domain/item"
)

// ItemStore is the port interface for catalog persistence.
// Implementations wrap domain.ErrNotFound for missing items.
type ItemStore interface {
	// ListItems returns the full catalog ordered by ID.
	ListItems(ctx context.Context) ([]item.Item, error)
	GetItem(ctx context.Context, id int64) (*item.Item, error)
	ItemExists(ctx context.Context, id int64) (bool, error)
	CreateItem(ctx context.Context, req item.CreateRequest) (*item.Item, error)
	// UpdateItem applies req to the stored item and returns the result.
	UpdateItem(ctx context.Context, id int64, req item.UpdateRequest) (*item.Item, error)
	DeleteItem(ctx context.Context, id int64) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
