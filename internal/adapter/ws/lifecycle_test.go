package ws

import (
	"context"
	"errors"
	"testing"
)

func TestConnHandlerOpenRegisters(t *testing.T) {
	r := NewRegistry(nil)
	h := NewConnHandler(r, 0)
	c := NewConnection(newFakeSession("a"))

	if c.State() != StateConnecting {
		t.Fatalf("initial state = %s", c.State())
	}
	if err := h.OnOpen(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateOpen {
		t.Fatalf("state = %s, want open", c.State())
	}
	if r.Len() != 1 || h.Active() != 1 {
		t.Fatalf("registry %d, active %d", r.Len(), h.Active())
	}
}

func TestConnHandlerMessageHasNoEffect(t *testing.T) {
	r := NewRegistry(nil)
	h := NewConnHandler(r, 0)
	c := NewConnection(newFakeSession("a"))
	ctx := context.Background()

	h.OnMessage(ctx, c, []byte("ignored before open"))
	if err := h.OnOpen(ctx, c); err != nil {
		t.Fatal(err)
	}
	h.OnMessage(ctx, c, []byte(`{"type":"subscribe"}`))

	if c.State() != StateOpen || r.Len() != 1 {
		t.Fatalf("state %s, registry %d", c.State(), r.Len())
	}
}

func TestConnHandlerCloseIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	h := NewConnHandler(r, 0)
	a, b := NewConnection(newFakeSession("a")), NewConnection(newFakeSession("b"))
	ctx := context.Background()
	_ = h.OnOpen(ctx, a)
	_ = h.OnOpen(ctx, b)

	if !h.OnClose(ctx, a, errors.New("EOF")) {
		t.Fatal("first close should transition")
	}
	for range 3 {
		if h.OnClose(ctx, a, nil) {
			t.Fatal("repeated close should be a no-op")
		}
	}

	if a.State() != StateClosed {
		t.Fatalf("state = %s", a.State())
	}
	if ids := sessionIDs(r.Snapshot()); len(ids) != 1 || !ids["b"] {
		t.Fatalf("registry = %v, want [b]", ids)
	}
	if h.Active() != 1 {
		t.Fatalf("active = %d, want 1", h.Active())
	}
}

func TestConnHandlerCloseAfterPublisherDrop(t *testing.T) {
	r := NewRegistry(nil)
	h := NewConnHandler(r, 0)
	s := newFakeSession("a")
	c := NewConnection(s)
	ctx := context.Background()
	_ = h.OnOpen(ctx, c)

	// The publisher already removed the session after a failed send.
	r.Unregister(s)

	if !h.OnClose(ctx, c, nil) {
		t.Fatal("close should still transition")
	}
	if r.Len() != 0 || h.Active() != 0 {
		t.Fatalf("registry %d, active %d", r.Len(), h.Active())
	}
}

func TestConnHandlerClosedIsTerminal(t *testing.T) {
	r := NewRegistry(nil)
	h := NewConnHandler(r, 0)
	c := NewConnection(newFakeSession("a"))
	ctx := context.Background()

	if !h.OnClose(ctx, c, nil) {
		t.Fatal("close from connecting should transition")
	}
	err := h.OnOpen(ctx, c)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("open after close: err = %v, want ErrInvalidTransition", err)
	}
	if r.Len() != 0 || h.Active() != 0 {
		t.Fatalf("registry %d, active %d", r.Len(), h.Active())
	}
}

func TestConnHandlerDoubleOpen(t *testing.T) {
	r := NewRegistry(nil)
	h := NewConnHandler(r, 0)
	c := NewConnection(newFakeSession("a"))
	ctx := context.Background()

	_ = h.OnOpen(ctx, c)
	if err := h.OnOpen(ctx, c); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if r.Len() != 1 || h.Active() != 1 {
		t.Fatalf("registry %d, active %d", r.Len(), h.Active())
	}
}

func TestConnHandlerMaxConnections(t *testing.T) {
	r := NewRegistry(nil)
	h := NewConnHandler(r, 1)
	ctx := context.Background()

	first := NewConnection(newFakeSession("first"))
	if err := h.OnOpen(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := NewConnection(newFakeSession("second"))
	if err := h.OnOpen(ctx, second); !errors.Is(err, ErrTooManyConnections) {
		t.Fatalf("err = %v, want ErrTooManyConnections", err)
	}
	if second.State() != StateClosed {
		t.Fatalf("rejected state = %s, want closed", second.State())
	}
	if ids := sessionIDs(r.Snapshot()); ids["second"] {
		t.Fatal("rejected session was registered")
	}

	h.OnClose(ctx, first, nil)
	third := NewConnection(newFakeSession("third"))
	if err := h.OnOpen(ctx, third); err != nil {
		t.Fatalf("open after a slot freed: %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosed:     "closed",
		State(9):        "state(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(s), got, want)
		}
	}
}
