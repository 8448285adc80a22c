package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// ErrTooManyConnections is returned by OnOpen when the connection limit is
// reached.
var ErrTooManyConnections = errors.New("ws: too many connections")

// ErrInvalidTransition is returned by OnOpen for a connection that is not in
// StateConnecting.
var ErrInvalidTransition = errors.New("ws: invalid state transition")

// State is a connection's lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Connection tracks one session through Connecting -> Open -> Closed.
// Closed is terminal; a reconnect is a new Connection.
type Connection struct {
	session Session
	state   atomic.Int32
}

// NewConnection wraps s in StateConnecting.
func NewConnection(s Session) *Connection {
	return &Connection{session: s}
}

func (c *Connection) Session() Session { return c.session }
func (c *Connection) State() State     { return State(c.state.Load()) }

// ConnHandler binds connections to the registry.
type ConnHandler struct {
	registry *Registry
	maxConns int64
	active   atomic.Int64
}

// NewConnHandler creates a handler. maxConns <= 0 means unlimited.
func NewConnHandler(registry *Registry, maxConns int) *ConnHandler {
	return &ConnHandler{registry: registry, maxConns: int64(maxConns)}
}

// OnOpen moves c to StateOpen and registers its session. Over the connection
// limit, c goes straight to StateClosed and ErrTooManyConnections is returned.
func (h *ConnHandler) OnOpen(ctx context.Context, c *Connection) error {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		return fmt.Errorf("%w: open from %s", ErrInvalidTransition, c.State())
	}
	if n := h.active.Add(1); h.maxConns > 0 && n > h.maxConns {
		h.active.Add(-1)
		c.state.Store(int32(StateClosed))
		slog.WarnContext(ctx, "websocket rejected",
			"remote", c.session.RemoteAddr(), "max_connections", h.maxConns)
		return ErrTooManyConnections
	}

	h.registry.Register(c.session)
	slog.InfoContext(ctx, "websocket connected",
		"session_id", c.session.ID(), "remote", c.session.RemoteAddr(), "sessions", h.registry.Len())
	return nil
}

// OnMessage accepts an inbound client message. The channel is one-way, so
// the message is only logged.
func (h *ConnHandler) OnMessage(ctx context.Context, c *Connection, data []byte) {
	if c.State() != StateOpen {
		return
	}
	slog.DebugContext(ctx, "websocket message received",
		"session_id", c.session.ID(), "bytes", len(data))
}

// OnClose moves c to StateClosed and unregisters its session. It reports
// whether this call performed the transition; later calls are no-ops.
func (h *ConnHandler) OnClose(ctx context.Context, c *Connection, cause error) bool {
	prev := State(c.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return false
	}
	if prev == StateOpen {
		h.active.Add(-1)
		h.registry.Unregister(c.session)
		slog.InfoContext(ctx, "websocket disconnected",
			"session_id", c.session.ID(), "remote", c.session.RemoteAddr(), "cause", cause)
	}
	return true
}

// Active returns the number of connections in StateOpen.
func (h *ConnHandler) Active() int {
	return int(h.active.Load())
}
