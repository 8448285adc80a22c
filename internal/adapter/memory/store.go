// Package memory implements the item store in process memory.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Strob0t/collectibles/internal/domain"
	"github.com/Strob0t/collectibles/internal/domain/item"
)

// Store is a mutex-guarded item map. IDs start at 1 and are never reused.
// Items are copied on every read and write.
type Store struct {
	mu     sync.RWMutex
	items  map[int64]item.Item
	nextID int64
	now    func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		items:  make(map[int64]item.Item),
		nextID: 1,
		now:    time.Now,
	}
}

// DemoItems is the catalog a fresh instance is seeded with.
var DemoItems = []item.CreateRequest{
	{Name: "Signed baseball cap", Description: "Cap signed after the 1998 season finale.", Price: 621.34},
	{Name: "Vintage racing helmet", Description: "Open-face helmet with original paint.", Price: 734.57},
	{Name: "Tour jacket", Description: "Limited tour jacket, signed on the back.", Price: 521.89},
	{Name: "Acoustic guitar", Description: "Stage-used acoustic guitar with case.", Price: 823.12},
	{Name: "Signed jersey", Description: "Home jersey with certificate of authenticity.", Price: 355.67},
}

// Seed inserts reqs when the store is empty and reports how many were added.
func (s *Store) Seed(ctx context.Context, reqs []item.CreateRequest) (int, error) {
	s.mu.RLock()
	empty := len(s.items) == 0
	s.mu.RUnlock()
	if !empty {
		return 0, nil
	}
	for i, req := range reqs {
		if _, err := s.CreateItem(ctx, req); err != nil {
			return i, fmt.Errorf("seed item %q: %w", req.Name, err)
		}
	}
	return len(reqs), nil
}

func (s *Store) ListItems(_ context.Context) ([]item.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Collect(maps.Values(s.items))
	slices.SortFunc(out, func(a, b item.Item) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetItem(_ context.Context, id int64) (*item.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("get item %d: %w", id, domain.ErrNotFound)
	}
	return &it, nil
}

func (s *Store) ItemExists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok, nil
}

func (s *Store) CreateItem(_ context.Context, req item.CreateRequest) (*item.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	it := item.Item{
		ID:          s.nextID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.items[it.ID] = it
	s.nextID++
	return &it, nil
}

func (s *Store) UpdateItem(_ context.Context, id int64, req item.UpdateRequest) (*item.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("update item %d: %w", id, domain.ErrNotFound)
	}
	req.Apply(&it)
	it.UpdatedAt = s.now().UTC()
	s.items[id] = it
	return &it, nil
}

func (s *Store) DeleteItem(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("delete item %d: %w", id, domain.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }
