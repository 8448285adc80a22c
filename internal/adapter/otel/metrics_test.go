package otel

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Strob0t/collectibles/internal/config"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is %T, not Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	m.SessionOpened(ctx)
	m.SessionOpened(ctx)
	m.SessionClosed(ctx)
	m.BroadcastStarted(ctx)
	m.SendCompleted(ctx, time.Millisecond, nil)
	m.SendCompleted(ctx, time.Millisecond, nil)
	m.SendCompleted(ctx, 2*time.Millisecond, errors.New("closed"))
	m.SnapshotDiscarded(ctx)
	m.CatalogMutated(ctx, "created")

	got := collect(t, reader)

	tests := []struct {
		name string
		want int64
	}{
		{"collectibles.ws.sessions", 1},
		{"collectibles.broadcast.published", 1},
		{"collectibles.broadcast.deliveries", 2},
		{"collectibles.broadcast.send_failures", 1},
		{"collectibles.broadcast.snapshots_discarded", 1},
		{"collectibles.catalog.mutations", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := got[tt.name]
			if !ok {
				t.Fatalf("metric %s not collected", tt.name)
			}
			if v := sumValue(t, m); v != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, v, tt.want)
			}
		})
	}

	if _, ok := got["collectibles.broadcast.send_duration_seconds"]; !ok {
		t.Error("expected send duration histogram")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// None of these may panic.
	m.SessionOpened(ctx)
	m.SessionClosed(ctx)
	m.BroadcastStarted(ctx)
	m.SendCompleted(ctx, time.Second, nil)
	m.SnapshotDiscarded(ctx)
	m.CatalogMutated(ctx, "deleted")
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OTEL{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown returned %v", err)
	}
}

func TestStartSpans(t *testing.T) {
	ctx, span := StartPublishSpan(context.Background(), 3, 10)
	if ctx == nil || span == nil {
		t.Fatal("expected context and span")
	}
	span.End()

	_, span = StartMutationSpan(context.Background(), "updated", 7)
	span.End()
}
