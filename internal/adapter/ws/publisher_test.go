package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Strob0t/collectibles/internal/domain/item"
)

func newTestPublisher(cfg PublisherConfig) (*Registry, *Publisher) {
	r := NewRegistry(nil)
	return r, NewPublisher(r, cfg, nil)
}

func decodeIDs(t *testing.T, payload []byte) []int64 {
	t.Helper()
	var msg UpdateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode %s: %v", payload, err)
	}
	if msg.Type != TypeUpdate {
		t.Fatalf("type = %q, want %q", msg.Type, TypeUpdate)
	}
	ids := make([]int64, len(msg.Items))
	for i, v := range msg.Items {
		ids[i] = v.ID
	}
	return ids
}

func TestPublishScenario(t *testing.T) {
	r, p := newTestPublisher(PublisherConfig{})
	h := NewConnHandler(r, 0)
	ctx := context.Background()

	s1, s2 := newFakeSession("s1"), newFakeSession("s2")
	c1, c2 := NewConnection(s1), NewConnection(s2)
	for _, c := range []*Connection{c1, c2} {
		if err := h.OnOpen(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	catalog := []item.Item{{ID: 1, Name: "A", Price: 10, Description: "d"}}
	want := `{"type":"update","items":[{"id":1,"name":"A","price":10,"description":"d"}]}`

	rep := p.Publish(ctx, catalog)
	if rep != (Report{Attempted: 2, Delivered: 2}) {
		t.Fatalf("first report = %+v", rep)
	}
	for _, s := range []*fakeSession{s1, s2} {
		got := s.messages()
		if len(got) != 1 || string(got[0]) != want {
			t.Fatalf("%s received %q, want [%s]", s.id, got, want)
		}
	}

	s1.open.Store(false)
	h.OnClose(ctx, c1, nil)

	ids := sessionIDs(r.Snapshot())
	if len(ids) != 1 || !ids["s2"] {
		t.Fatalf("registry after close = %v, want [s2]", ids)
	}

	rep = p.Publish(ctx, catalog)
	if rep != (Report{Attempted: 1, Delivered: 1}) {
		t.Fatalf("second report = %+v", rep)
	}
	if n := len(s1.messages()); n != 1 {
		t.Errorf("closed s1 received %d messages, want 1", n)
	}
	if n := len(s2.messages()); n != 2 {
		t.Errorf("s2 received %d messages, want 2", n)
	}
}

func TestPublishFailureIsolation(t *testing.T) {
	r, p := newTestPublisher(PublisherConfig{})
	a, b, c := newFakeSession("a"), newFakeSession("b"), newFakeSession("c")
	b.sendErr = errors.New("connection reset by peer")
	for _, s := range []*fakeSession{a, b, c} {
		r.Register(s)
	}

	rep := p.Publish(context.Background(), []item.Item{{ID: 1, Name: "A", Price: 1}})

	if rep != (Report{Attempted: 3, Delivered: 2, Failed: 1}) {
		t.Fatalf("report = %+v", rep)
	}
	if len(a.messages()) != 1 || len(c.messages()) != 1 {
		t.Fatalf("healthy sessions got a=%d c=%d messages", len(a.messages()), len(c.messages()))
	}
	ids := sessionIDs(r.Snapshot())
	if ids["b"] || !ids["a"] || !ids["c"] {
		t.Fatalf("registry = %v, want [a c]", ids)
	}
}

func TestPublishSendsFullState(t *testing.T) {
	r, p := newTestPublisher(PublisherConfig{})
	sessions := []*fakeSession{newFakeSession("x"), newFakeSession("y")}
	for _, s := range sessions {
		r.Register(s)
	}

	catalog := []item.Item{
		{ID: 1, Name: "Coin", Price: 5},
		{ID: 2, Name: "Stamp", Price: 7},
	}
	catalog = append(catalog, item.Item{ID: 3, Name: "Card", Price: 9})
	p.Publish(context.Background(), catalog)

	for _, s := range sessions {
		got := s.messages()
		if len(got) != 1 {
			t.Fatalf("%s got %d messages", s.id, len(got))
		}
		if ids := decodeIDs(t, got[0]); fmt.Sprint(ids) != "[1 2 3]" {
			t.Errorf("%s got items %v, want [1 2 3]", s.id, ids)
		}
	}
}

func TestPublishDropsStalledSession(t *testing.T) {
	r, p := newTestPublisher(PublisherConfig{SendTimeout: 50 * time.Millisecond})
	healthy, stalled := newFakeSession("healthy"), newFakeSession("stalled")
	stalled.block = true
	r.Register(healthy)
	r.Register(stalled)

	start := time.Now()
	rep := p.Publish(context.Background(), nil)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("publish took %v with a stalled session", elapsed)
	}

	if rep.Failed != 1 || rep.Delivered != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if ids := sessionIDs(r.Snapshot()); ids["stalled"] || !ids["healthy"] {
		t.Fatalf("registry = %v", ids)
	}
}

func TestPublishClosedSessionFailsFast(t *testing.T) {
	r, p := newTestPublisher(PublisherConfig{SendTimeout: time.Hour})
	s := newFakeSession("gone")
	s.open.Store(false)
	s.block = true
	r.Register(s)

	done := make(chan Report, 1)
	go func() { done <- p.Publish(context.Background(), nil) }()

	select {
	case rep := <-done:
		if rep.Failed != 1 {
			t.Fatalf("report = %+v", rep)
		}
	case <-time.After(time.Second):
		t.Fatal("send to closed session did not fail fast")
	}
	if r.Len() != 0 {
		t.Fatal("closed session still registered")
	}
}

func TestPublishBoundsParallelism(t *testing.T) {
	r, p := newTestPublisher(PublisherConfig{MaxParallel: 3})
	tracker := &concurrency{}
	for i := range 20 {
		s := newFakeSession(fmt.Sprintf("s%d", i))
		s.delay = 10 * time.Millisecond
		s.tracker = tracker
		r.Register(s)
	}

	rep := p.Publish(context.Background(), nil)

	if rep.Delivered != 20 {
		t.Fatalf("report = %+v", rep)
	}
	if peak := tracker.peak.Load(); peak > 3 {
		t.Fatalf("peak concurrent sends = %d, want <= 3", peak)
	}
}

func TestPublishNoSessions(t *testing.T) {
	_, p := newTestPublisher(PublisherConfig{})
	if rep := p.Publish(context.Background(), []item.Item{{ID: 1}}); rep != (Report{}) {
		t.Fatalf("report = %+v, want zero", rep)
	}
}

func TestCatalogChangedIsDeliveredByWorker(t *testing.T) {
	r, p := newTestPublisher(PublisherConfig{})
	s := newFakeSession("viewer")
	r.Register(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.CatalogChanged(ctx, []item.Item{{ID: 4, Name: "Medal", Price: 40}})
	waitFor(t, "worker delivery", func() bool { return len(s.messages()) == 1 })

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}

func TestCatalogChangedDiscardsOldestWhenFull(t *testing.T) {
	r, p := newTestPublisher(PublisherConfig{QueueSize: 2})
	s := newFakeSession("viewer")
	r.Register(s)
	ctx := context.Background()

	snapshots := [][]item.Item{
		{{ID: 1}},
		{{ID: 1}, {ID: 2}},
		{{ID: 1}, {ID: 2}, {ID: 3}},
	}
	// No worker is running; none of these may block.
	for _, snap := range snapshots {
		p.CatalogChanged(ctx, snap)
	}
	if n := len(p.queue); n != 2 {
		t.Fatalf("queue length = %d, want 2", n)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go p.Run(runCtx)

	waitFor(t, "coalesced delivery", func() bool { return len(s.messages()) > 0 })
	time.Sleep(50 * time.Millisecond)

	got := s.messages()
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1 coalesced snapshot", len(got))
	}
	if ids := decodeIDs(t, got[0]); fmt.Sprint(ids) != "[1 2 3]" {
		t.Fatalf("published %v, want newest snapshot [1 2 3]", ids)
	}
}

func TestCatalogChangedCopiesSnapshot(t *testing.T) {
	_, p := newTestPublisher(PublisherConfig{})
	items := []item.Item{{ID: 1, Name: "before"}}

	p.CatalogChanged(context.Background(), items)
	items[0].Name = "after"

	queued := <-p.queue
	if queued[0].Name != "before" {
		t.Fatalf("queued snapshot aliased caller slice: %q", queued[0].Name)
	}
}

func TestSendSnapshotFailureUnregisters(t *testing.T) {
	r, p := newTestPublisher(PublisherConfig{})
	s := newFakeSession("new")
	s.sendErr = errors.New("broken pipe")
	r.Register(s)

	if err := p.SendSnapshot(context.Background(), s, nil); err == nil {
		t.Fatal("expected error")
	}
	if r.Len() != 0 {
		t.Fatal("session still registered after failed snapshot")
	}
}
