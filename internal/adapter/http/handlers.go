// Package http is the REST surface of the catalog plus the health endpoint.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Strob0t/collectibles/internal/domain/item"
	"github.com/Strob0t/collectibles/internal/service"
)

// SessionCounter reports the number of live WebSocket sessions.
type SessionCounter interface {
	Len() int
}

// Connectivity reports whether an optional dependency is reachable.
type Connectivity interface {
	IsConnected() bool
}

// Handlers holds the HTTP handlers' dependencies.
type Handlers struct {
	Catalog  *service.CatalogService
	Sessions SessionCounter
	Queue    Connectivity // nil in single-instance mode
	Breaker  interface{ State() string }
}

// ListItems handles GET /api/v1/items
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Catalog.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// FilterItems handles GET /api/v1/items/filter?name=&description=&min=&max=
func (h *Handlers) FilterItems(w http.ResponseWriter, r *http.Request) {
	f, err := item.ParseFilter(r.URL.Query())
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	items, err := h.Catalog.Filter(r.Context(), f)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GetItem handles GET /api/v1/items/{id}
func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	it, err := h.Catalog.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// CreateItem handles POST /api/v1/items
func (h *Handlers) CreateItem(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[item.CreateRequest](w, r)
	if !ok {
		return
	}
	it, err := h.Catalog.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// UpdateItem handles PUT /api/v1/items/{id}
func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[item.UpdateRequest](w, r)
	if !ok {
		return
	}
	it, err := h.Catalog.Update(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// DeleteItem handles DELETE /api/v1/items/{id}
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	if err := h.Catalog.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, "item not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ItemExists handles OPTIONS /api/v1/items/{id}
func (h *Handlers) ItemExists(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	exists, err := h.Catalog.Exists(r.Context(), id)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

type healthResponse struct {
	Status   string `json:"status"`
	Store    string `json:"store"`
	Queue    string `json:"queue"`
	Breaker  string `json:"breaker,omitempty"`
	Sessions int    `json:"sessions"`
}

// Health handles GET /health. It answers 503 only when the store is down;
// a missing broker degrades to local broadcasts.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Store: "ok", Queue: "disabled"}
	status := http.StatusOK

	if err := h.Catalog.Ping(ctx); err != nil {
		resp.Status, resp.Store = "degraded", "unavailable"
		status = http.StatusServiceUnavailable
	}
	if h.Queue != nil {
		resp.Queue = "connected"
		if !h.Queue.IsConnected() {
			resp.Queue = "disconnected"
		}
	}
	if h.Breaker != nil {
		resp.Breaker = h.Breaker.State()
	}
	if h.Sessions != nil {
		resp.Sessions = h.Sessions.Len()
	}
	writeJSON(w, status, resp)
}
