package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/collectibles/internal/domain/item"
	"github.com/Strob0t/collectibles/internal/logger"
)

// CatalogSource supplies the current catalog for the snapshot sent on connect.
type CatalogSource interface {
	List(ctx context.Context) ([]item.Item, error)
}

// ServerConfig controls per-connection behaviour.
type ServerConfig struct {
	IdleTimeout       time.Duration // 0 disables
	SnapshotOnConnect bool
}

// Server upgrades HTTP requests to WebSocket sessions.
type Server struct {
	handler   *ConnHandler
	publisher *Publisher
	catalog   CatalogSource
	cfg       ServerConfig
}

// NewServer creates the WebSocket endpoint. catalog may be nil when
// SnapshotOnConnect is false.
func NewServer(handler *ConnHandler, publisher *Publisher, catalog CatalogSource, cfg ServerConfig) *Server {
	return &Server{handler: handler, publisher: publisher, catalog: catalog, cfg: cfg}
}

// HandleWS serves one connection until the client goes away, the idle
// timeout fires or the server shuts down.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := newWSSession(r.Context(), conn, r.RemoteAddr)
	ctx := logger.WithSessionID(sess.ctx, sess.id)
	c := NewConnection(sess)

	if err := s.handler.OnOpen(ctx, c); err != nil {
		if errors.Is(err, ErrTooManyConnections) {
			sess.close(websocket.StatusTryAgainLater, "too many connections")
			return
		}
		sess.close(websocket.StatusInternalError, "")
		return
	}

	var cause error
	defer func() {
		s.handler.OnClose(ctx, c, cause)
		sess.close(websocket.StatusNormalClosure, "")
	}()

	if s.cfg.SnapshotOnConnect && s.catalog != nil {
		s.sendInitial(ctx, sess)
	}

	cause = s.readLoop(ctx, c, sess)
}

func (s *Server) sendInitial(ctx context.Context, sess *wsSession) {
	items, err := s.catalog.List(ctx)
	if err != nil {
		slog.WarnContext(ctx, "initial snapshot unavailable", "error", err)
		return
	}
	// A failure here unregisters the session; the read loop notices the
	// closed connection and ends.
	_ = s.publisher.SendSnapshot(ctx, sess, items)
}

func (s *Server) readLoop(ctx context.Context, c *Connection, sess *wsSession) error {
	for {
		readCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.cfg.IdleTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, s.cfg.IdleTimeout)
		}
		_, data, err := sess.conn.Read(readCtx)
		cancel()
		if err != nil {
			return err
		}
		s.handler.OnMessage(ctx, c, data)
	}
}
