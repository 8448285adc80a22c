// Package broadcast defines the port for pushing catalog state to connected viewers.
package broadcast

import (
	"context"

	"github.com/Strob0t/collectibles/internal/domain/item"
)

// Broadcaster receives post-commit catalog change notifications.
type Broadcaster interface {
	// CatalogChanged hands the full current catalog to the live-view
	// subsystem. It must not block the caller on slow viewers.
	CatalogChanged(ctx context.Context, items []item.Item)
}
