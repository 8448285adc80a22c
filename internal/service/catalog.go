// Package service implements business logic on top of ports.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cfotel "github.com/Strob0t/collectibles/internal/adapter/otel"
	"github.com/Strob0t/collectibles/internal/domain/item"
	"github.com/Strob0t/collectibles/internal/logger"
	"github.com/Strob0t/collectibles/internal/port/broadcast"
	"github.com/Strob0t/collectibles/internal/port/cache"
	"github.com/Strob0t/collectibles/internal/port/database"
	"github.com/Strob0t/collectibles/internal/port/messagequeue"
	"github.com/Strob0t/collectibles/internal/resilience"
)

// publishTimeout bounds how long a mutation waits on the broker.
const publishTimeout = 2 * time.Second

// CatalogService owns catalog mutations and tells viewers about them.
// A mutation's result depends only on the store; notification problems are
// logged and never returned.
type CatalogService struct {
	store       database.ItemStore
	broadcaster broadcast.Broadcaster
	metrics     *cfotel.Metrics

	cache    cache.Cache
	cacheTTL time.Duration

	// cacheMu orders cache writes against invalidation. cacheGen counts
	// invalidations; a read that started under an older generation does not
	// write the cache.
	cacheMu  sync.Mutex
	cacheGen uint64

	// snapshotMu makes snapshot reads and their hand-off to the broadcaster
	// happen in the same order.
	snapshotMu sync.Mutex

	queue   messagequeue.Queue
	breaker *resilience.Breaker
	origin  string
}

// NewCatalogService creates a CatalogService. metrics may be nil.
func NewCatalogService(store database.ItemStore, broadcaster broadcast.Broadcaster, metrics *cfotel.Metrics) *CatalogService {
	return &CatalogService{store: store, broadcaster: broadcaster, metrics: metrics}
}

// SetCache enables read-through caching of the full catalog.
func (s *CatalogService) SetCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

// SetQueue routes change notifications through the broker so every
// instance broadcasts to its own viewers. b may be nil. origin identifies
// this instance in published payloads.
func (s *CatalogService) SetQueue(q messagequeue.Queue, b *resilience.Breaker, origin string) {
	s.queue = q
	s.breaker = b
	s.origin = origin
}

// List returns the full catalog ordered by ID.
func (s *CatalogService) List(ctx context.Context) ([]item.Item, error) {
	if s.cache != nil {
		data, found, err := s.cache.Get(ctx, cache.KeyCatalogItems)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "catalog cache read failed", "error", err)
		case found:
			var items []item.Item
			if err := json.Unmarshal(data, &items); err == nil {
				return items, nil
			}
			slog.WarnContext(ctx, "catalog cache entry corrupt, reloading")
		}
	}
	return s.refresh(ctx)
}

// refresh reads the catalog from the store and writes it to the cache
// unless the catalog changed while it was being read.
func (s *CatalogService) refresh(ctx context.Context) ([]item.Item, error) {
	gen := s.generation()
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []item.Item{}
	}
	if s.cache != nil {
		s.storeCache(ctx, gen, items)
	}
	return items, nil
}

func (s *CatalogService) generation() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cacheGen
}

func (s *CatalogService) storeCache(ctx context.Context, gen uint64, items []item.Item) {
	data, err := json.Marshal(items)
	if err != nil {
		slog.WarnContext(ctx, "catalog cache write failed", "error", err)
		return
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen != s.cacheGen {
		slog.DebugContext(ctx, "catalog changed during read, cache write skipped")
		return
	}
	if err := s.cache.Set(ctx, cache.KeyCatalogItems, data, s.cacheTTL); err != nil {
		slog.WarnContext(ctx, "catalog cache write failed", "error", err)
	}
}

// invalidate drops the cached catalog and retires reads already in flight.
func (s *CatalogService) invalidate(ctx context.Context) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cacheGen++
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.KeyCatalogItems); err != nil {
		slog.WarnContext(ctx, "catalog cache invalidation failed", "error", err)
	}
}

// Filter returns the items matching f.
func (s *CatalogService) Filter(ctx context.Context, f item.Filter) ([]item.Item, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return f.Apply(items), nil
}

// Get returns a single item.
func (s *CatalogService) Get(ctx context.Context, id int64) (*item.Item, error) {
	return s.store.GetItem(ctx, id)
}

// Exists reports whether an item with id exists.
func (s *CatalogService) Exists(ctx context.Context, id int64) (bool, error) {
	return s.store.ItemExists(ctx, id)
}

// Create validates and stores a new item.
func (s *CatalogService) Create(ctx context.Context, req item.CreateRequest) (*item.Item, error) {
	if err := item.ValidateCreateRequest(&req); err != nil {
		return nil, err
	}

	ctx, span := cfotel.StartMutationSpan(ctx, messagequeue.OpCreated, 0)
	defer span.End()

	it, err := s.store.CreateItem(ctx, req)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, messagequeue.OpCreated, it.ID)
	return it, nil
}

// Update applies a partial update.
func (s *CatalogService) Update(ctx context.Context, id int64, req item.UpdateRequest) (*item.Item, error) {
	if err := item.ValidateUpdateRequest(&req); err != nil {
		return nil, err
	}

	ctx, span := cfotel.StartMutationSpan(ctx, messagequeue.OpUpdated, id)
	defer span.End()

	it, err := s.store.UpdateItem(ctx, id, req)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, messagequeue.OpUpdated, id)
	return it, nil
}

// Delete removes an item.
func (s *CatalogService) Delete(ctx context.Context, id int64) error {
	ctx, span := cfotel.StartMutationSpan(ctx, messagequeue.OpDeleted, id)
	defer span.End()

	if err := s.store.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, messagequeue.OpDeleted, id)
	return nil
}

// Ping reports whether the store is reachable.
func (s *CatalogService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// changed runs after a committed mutation. With a broker the change is
// published and every instance, this one included, broadcasts from its
// subscriber. Without one, or when publishing fails, this instance
// broadcasts directly.
func (s *CatalogService) changed(ctx context.Context, op string, id int64) {
	s.metrics.CatalogMutated(ctx, op)
	slog.InfoContext(ctx, "catalog changed", "op", op, "item_id", id)

	s.invalidate(ctx)

	if s.queue != nil {
		err := s.publishChange(ctx, op, id)
		if err == nil {
			return
		}
		slog.WarnContext(ctx, "catalog change publish failed, broadcasting locally", "op", op, "error", err)
	}

	if err := s.broadcastCurrent(ctx); err != nil {
		slog.ErrorContext(ctx, "catalog broadcast skipped", "op", op, "error", err)
	}
}

func (s *CatalogService) publishChange(ctx context.Context, op string, id int64) error {
	data, err := json.Marshal(messagequeue.CatalogChangedPayload{
		Op:        op,
		ItemID:    id,
		Origin:    s.origin,
		RequestID: logger.RequestID(ctx),
	})
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	publish := func() error {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return s.queue.Publish(pctx, messagequeue.SubjectCatalogChanged, data)
	}
	if s.breaker == nil {
		return publish()
	}
	return s.breaker.Execute(publish)
}

// broadcastCurrent hands the freshly read catalog to the broadcaster.
// Reads and hand-offs are serialized, so the last snapshot handed over is
// never older than one handed over before it.
func (s *CatalogService) broadcastCurrent(ctx context.Context) error {
	s.snapshotMu.Lock()
	defer s.snapshotMu.Unlock()

	items, err := s.refresh(ctx)
	if err != nil {
		return fmt.Errorf("load catalog snapshot: %w", err)
	}
	s.broadcaster.CatalogChanged(ctx, items)
	return nil
}

// StartChangeSubscriber broadcasts the current catalog whenever any
// instance publishes a change. It is a no-op without a queue.
func (s *CatalogService) StartChangeSubscriber(ctx context.Context) (cancel func(), err error) {
	if s.queue == nil {
		return func() {}, nil
	}
	return s.queue.Subscribe(ctx, messagequeue.SubjectCatalogChanged, s.handleChange)
}

func (s *CatalogService) handleChange(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.CatalogChangedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode change: %w", err)
	}
	slog.DebugContext(ctx, "catalog change received",
		"op", p.Op, "item_id", p.ItemID, "origin", p.Origin, "local", p.Origin == s.origin)

	// Another instance committed the change; reads this instance started
	// before it must not repopulate the cache.
	if p.Origin != s.origin {
		s.invalidate(ctx)
	}

	return s.broadcastCurrent(ctx)
}
