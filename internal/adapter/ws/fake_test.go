package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/collectibles/internal/domain/item"
)

// fakeSession records payloads instead of writing to a socket.
type fakeSession struct {
	id      string
	open    atomic.Bool
	sendErr error
	block   bool          // wait for ctx instead of sending
	delay   time.Duration // per-send latency
	tracker *concurrency

	mu  sync.Mutex
	got [][]byte
}

func newFakeSession(id string) *fakeSession {
	f := &fakeSession{id: id}
	f.open.Store(true)
	return f
}

func (f *fakeSession) ID() string         { return f.id }
func (f *fakeSession) RemoteAddr() string { return "192.0.2.1:" + f.id }
func (f *fakeSession) IsOpen() bool       { return f.open.Load() }

func (f *fakeSession) Send(ctx context.Context, payload []byte) error {
	if f.tracker != nil {
		f.tracker.enter()
		defer f.tracker.leave()
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.got = append(f.got, append([]byte(nil), payload...))
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.got...)
}

// concurrency tracks the peak number of simultaneous sends.
type concurrency struct {
	cur  atomic.Int32
	peak atomic.Int32
}

func (c *concurrency) enter() {
	n := c.cur.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (c *concurrency) leave() { c.cur.Add(-1) }

type catalogFunc func(ctx context.Context) ([]item.Item, error)

func (f catalogFunc) List(ctx context.Context) ([]item.Item, error) { return f(ctx) }

func staticCatalog(items ...item.Item) CatalogSource {
	return catalogFunc(func(context.Context) ([]item.Item, error) { return items, nil })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sessionIDs(sessions []Session) map[string]bool {
	ids := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		ids[s.ID()] = true
	}
	return ids
}
