package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "collectibles"

// Metrics holds all collectibles metric instruments.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Sessions           metric.Int64UpDownCounter
	BroadcastsStarted  metric.Int64Counter
	Deliveries         metric.Int64Counter
	SendFailures       metric.Int64Counter
	SendDuration       metric.Float64Histogram
	SnapshotsDiscarded metric.Int64Counter
	CatalogMutations   metric.Int64Counter
}

// NewMetrics creates all metric instruments on mp, or on the global meter
// provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Sessions, err = meter.Int64UpDownCounter("collectibles.ws.sessions",
		metric.WithDescription("Number of registered WebSocket sessions"))
	if err != nil {
		return nil, err
	}

	m.BroadcastsStarted, err = meter.Int64Counter("collectibles.broadcast.published",
		metric.WithDescription("Number of catalog snapshots fanned out"))
	if err != nil {
		return nil, err
	}

	m.Deliveries, err = meter.Int64Counter("collectibles.broadcast.deliveries",
		metric.WithDescription("Number of successful per-session sends"))
	if err != nil {
		return nil, err
	}

	m.SendFailures, err = meter.Int64Counter("collectibles.broadcast.send_failures",
		metric.WithDescription("Number of failed per-session sends"))
	if err != nil {
		return nil, err
	}

	m.SendDuration, err = meter.Float64Histogram("collectibles.broadcast.send_duration_seconds",
		metric.WithDescription("Per-session send duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.SnapshotsDiscarded, err = meter.Int64Counter("collectibles.broadcast.snapshots_discarded",
		metric.WithDescription("Pending snapshots superseded before they were published"))
	if err != nil {
		return nil, err
	}

	m.CatalogMutations, err = meter.Int64Counter("collectibles.catalog.mutations",
		metric.WithDescription("Number of committed catalog mutations"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// SessionOpened records a registered session.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.Sessions.Add(ctx, 1)
}

// SessionClosed records an unregistered session.
func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.Sessions.Add(ctx, -1)
}

// BroadcastStarted records one fan-out cycle.
func (m *Metrics) BroadcastStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.BroadcastsStarted.Add(ctx, 1)
}

// SendCompleted records the outcome and duration of a single session send.
func (m *Metrics) SendCompleted(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := attribute.String("outcome", "ok")
	if err != nil {
		outcome = attribute.String("outcome", "error")
		m.SendFailures.Add(ctx, 1)
	} else {
		m.Deliveries.Add(ctx, 1)
	}
	m.SendDuration.Record(ctx, d.Seconds(), metric.WithAttributes(outcome))
}

// SnapshotDiscarded records a pending snapshot dropped in favour of a newer one.
func (m *Metrics) SnapshotDiscarded(ctx context.Context) {
	if m == nil {
		return
	}
	m.SnapshotsDiscarded.Add(ctx, 1)
}

// CatalogMutated records a committed create, update or delete.
func (m *Metrics) CatalogMutated(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.CatalogMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
