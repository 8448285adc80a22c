package logger

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	sessionIDKey
)

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithSessionID stores a WebSocket session ID in the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID extracts the WebSocket session ID from the context.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// ContextHandler adds request_id and session_id from the context to every
// record logged through a *Context method. Attributes already set on the
// record win.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler wraps inner.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds the context IDs missing from rec and forwards it.
func (h *ContextHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	reqID, sessID := RequestID(ctx), SessionID(ctx)
	if reqID == "" && sessID == "" {
		return h.inner.Handle(ctx, rec)
	}

	rec = rec.Clone()
	rec.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "request_id":
			reqID = ""
		case "session_id":
			sessID = ""
		}
		return true
	})
	if reqID != "" {
		rec.AddAttrs(slog.String("request_id", reqID))
	}
	if sessID != "" {
		rec.AddAttrs(slog.String("session_id", sessID))
	}
	return h.inner.Handle(ctx, rec)
}

// WithAttrs returns a ContextHandler around inner.WithAttrs.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup returns a ContextHandler around inner.WithGroup.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
