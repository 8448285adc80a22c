// Package ws is the WebSocket side of the live price feed: the session
// registry, the broadcast publisher and the per-connection lifecycle.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ErrSessionClosed is returned when sending to a session whose connection
// has already closed.
var ErrSessionClosed = errors.New("ws: session closed")

// Session is a handle to one live client connection. Identity is ID().
type Session interface {
	ID() string
	RemoteAddr() string
	// IsOpen reports the connection state at the time of the call.
	IsOpen() bool
	// Send writes one text message. It must return promptly once ctx is done
	// or the session closes.
	Send(ctx context.Context, payload []byte) error
}

// wsSession is a Session over a coder/websocket connection.
type wsSession struct {
	id     string
	remote string
	conn   *websocket.Conn

	// ctx is cancelled when the session closes, aborting in-flight sends
	// and the read loop.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newWSSession(parent context.Context, conn *websocket.Conn, remote string) *wsSession {
	ctx, cancel := context.WithCancel(parent)
	return &wsSession{
		id:     uuid.NewString(),
		remote: remote,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *wsSession) ID() string         { return s.id }
func (s *wsSession) RemoteAddr() string { return s.remote }
func (s *wsSession) IsOpen() bool       { return s.ctx.Err() == nil }

func (s *wsSession) Send(ctx context.Context, payload []byte) error {
	if !s.IsOpen() {
		return ErrSessionClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	if err := s.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		if !s.IsOpen() {
			return fmt.Errorf("%w: %w", ErrSessionClosed, err)
		}
		return err
	}
	return nil
}

// close marks the session closed and sends a close frame. Safe to call more
// than once; only the first call has any effect.
func (s *wsSession) close(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close(code, reason)
	})
}
