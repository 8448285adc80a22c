package ws

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	cfotel "github.com/Strob0t/collectibles/internal/adapter/otel"
	"github.com/Strob0t/collectibles/internal/domain/item"
)

// PublisherConfig bounds the fan-out.
type PublisherConfig struct {
	SendTimeout time.Duration // per-session write bound
	QueueSize   int           // pending snapshots before the oldest is discarded
	MaxParallel int           // concurrent sends per publish
}

// Report summarizes one publish cycle.
type Report struct {
	Attempted int
	Delivered int
	Failed    int
}

// Publisher delivers catalog snapshots to every registered session. A failed
// or stalled send drops that session from the registry and never affects the
// others.
type Publisher struct {
	registry *Registry
	cfg      PublisherConfig
	metrics  *cfotel.Metrics
	queue    chan []item.Item
}

// NewPublisher creates a publisher over registry. Zero config fields fall
// back to 2s, 16 and 32. metrics may be nil.
func NewPublisher(registry *Registry, cfg PublisherConfig, metrics *cfotel.Metrics) *Publisher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 2 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 32
	}
	return &Publisher{
		registry: registry,
		cfg:      cfg,
		metrics:  metrics,
		queue:    make(chan []item.Item, cfg.QueueSize),
	}
}

// CatalogChanged hands a snapshot to the broadcast worker and returns
// immediately. If the queue is full the oldest pending snapshot is dropped.
func (p *Publisher) CatalogChanged(ctx context.Context, items []item.Item) {
	snap := slices.Clone(items)
	for {
		select {
		case p.queue <- snap:
			return
		default:
		}
		select {
		case <-p.queue:
			p.metrics.SnapshotDiscarded(ctx)
			slog.Debug("broadcast queue full, discarded oldest snapshot")
		default:
		}
	}
}

// Run is the broadcast worker. It publishes queued snapshots until ctx is
// done. Snapshots that are already superseded when the worker picks one up
// are skipped.
func (p *Publisher) Run(ctx context.Context) {
	slog.Info("broadcast worker started", "queue_size", p.cfg.QueueSize, "max_parallel", p.cfg.MaxParallel)
	defer slog.Info("broadcast worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case items := <-p.queue:
			items = p.latest(ctx, items)
			p.Publish(ctx, items)
		}
	}
}

// latest drains the queue and returns the newest snapshot.
func (p *Publisher) latest(ctx context.Context, items []item.Item) []item.Item {
	for {
		select {
		case next := <-p.queue:
			p.metrics.SnapshotDiscarded(ctx)
			items = next
		default:
			return items
		}
	}
}

// Publish synchronously fans items out to the current registry snapshot. It
// never fails; the report says who was reachable.
func (p *Publisher) Publish(ctx context.Context, items []item.Item) Report {
	payload, err := NewUpdateMessage(items)
	if err != nil {
		slog.Error("broadcast marshal failed", "error", err)
		return Report{}
	}

	sessions := p.registry.Snapshot()
	ctx, span := cfotel.StartPublishSpan(ctx, len(sessions), len(items))
	defer span.End()
	p.metrics.BroadcastStarted(ctx)

	var (
		wg        sync.WaitGroup
		attempted int
		delivered atomic.Int64
		failed    atomic.Int64
	)
	sem := semaphore.NewWeighted(int64(p.cfg.MaxParallel))
	for _, s := range sessions {
		if err := sem.Acquire(ctx, 1); err != nil {
			slog.Warn("broadcast cancelled", "pending", len(sessions)-attempted, "error", err)
			break
		}
		attempted++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if p.deliver(ctx, s, payload) != nil {
				failed.Add(1)
				return
			}
			delivered.Add(1)
		}()
	}
	wg.Wait()

	r := Report{
		Attempted: attempted,
		Delivered: int(delivered.Load()),
		Failed:    int(failed.Load()),
	}
	slog.Debug("broadcast published",
		"items", len(items), "attempted", r.Attempted, "delivered", r.Delivered, "failed", r.Failed)
	return r
}

// SendSnapshot delivers items to a single session with the same failure
// policy as Publish.
func (p *Publisher) SendSnapshot(ctx context.Context, s Session, items []item.Item) error {
	payload, err := NewUpdateMessage(items)
	if err != nil {
		return err
	}
	return p.deliver(ctx, s, payload)
}

func (p *Publisher) deliver(ctx context.Context, s Session, payload []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	var err error
	if s.IsOpen() {
		err = s.Send(sendCtx, payload)
	} else {
		err = ErrSessionClosed
	}
	p.metrics.SendCompleted(ctx, time.Since(start), err)

	if err != nil {
		slog.Warn("websocket send failed, dropping session",
			"session_id", s.ID(), "remote", s.RemoteAddr(), "error", err)
		p.registry.Unregister(s)
	}
	return err
}
