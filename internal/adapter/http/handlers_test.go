package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/collectibles/internal/adapter/memory"
	"github.com/Strob0t/collectibles/internal/domain/item"
	"github.com/Strob0t/collectibles/internal/middleware"
	"github.com/Strob0t/collectibles/internal/service"
)

type captureBroadcaster struct {
	mu        sync.Mutex
	snapshots [][]item.Item
}

func (b *captureBroadcaster) CatalogChanged(_ context.Context, items []item.Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = append(b.snapshots, items)
}

func (b *captureBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.snapshots)
}

type fixedSessions int

func (n fixedSessions) Len() int { return int(n) }

type stubQueue bool

func (q stubQueue) IsConnected() bool { return bool(q) }

func newTestRouter(t *testing.T, limiter *middleware.RateLimiter) (http.Handler, *captureBroadcaster) {
	t.Helper()
	store := memory.NewStore()
	if _, err := store.Seed(context.Background(), []item.CreateRequest{
		{Name: "Gold Coin", Description: "Roman aureus", Price: 900},
		{Name: "Silver Spoon", Description: "Victorian", Price: 45},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	bc := &captureBroadcaster{}
	h := &Handlers{
		Catalog:  service.NewCatalogService(store, bc, nil),
		Sessions: fixedSessions(3),
	}
	r := chi.NewRouter()
	r.Use(CORS("*"))
	MountRoutes(r, h, limiter, "/price-updates", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	return r, bc
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestListItems(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	rec := do(t, r, http.MethodGet, "/api/v1/items", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	items := decode[[]item.Item](t, rec)
	if len(items) != 2 || items[0].Name != "Gold Coin" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestGetItem(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	rec := do(t, r, http.MethodGet, "/api/v1/items/2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if it := decode[item.Item](t, rec); it.Name != "Silver Spoon" {
		t.Errorf("name = %q", it.Name)
	}

	if rec := do(t, r, http.MethodGet, "/api/v1/items/99", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing item: status = %d, want 404", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/api/v1/items/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}
}

func TestCreateItemBroadcasts(t *testing.T) {
	r, bc := newTestRouter(t, nil)

	rec := do(t, r, http.MethodPost, "/api/v1/items", `{"name":"Stamp","description":"Penny Black","price":120.5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	it := decode[item.Item](t, rec)
	if it.ID != 3 || it.Price != 120.5 {
		t.Errorf("unexpected item: %+v", it)
	}
	if bc.count() != 1 {
		t.Fatalf("broadcasts = %d, want 1", bc.count())
	}
	if got := len(bc.snapshots[0]); got != 3 {
		t.Errorf("snapshot size = %d, want 3", got)
	}
}

func TestCreateItemValidation(t *testing.T) {
	r, bc := newTestRouter(t, nil)

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"negative price", `{"name":"Stamp","price":-1}`, "price"},
		{"missing name", `{"price":1}`, "name"},
		{"malformed", `{"name":`, "invalid request body"},
		{"unknown field", `{"name":"Stamp","price":1,"cost":2}`, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, http.MethodPost, "/api/v1/items", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			resp := decode[errorResponse](t, rec)
			if !strings.Contains(resp.Error, tt.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", resp.Error, tt.wantMsg)
			}
			if strings.HasPrefix(resp.Error, "validation failed") {
				t.Errorf("error %q should not carry the sentinel prefix", resp.Error)
			}
		})
	}
	if bc.count() != 0 {
		t.Errorf("broadcasts = %d after rejected input, want 0", bc.count())
	}
}

func TestCreateItemBodyTooLarge(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	body := `{"name":"` + strings.Repeat("x", maxRequestBodySize) + `","price":1}`
	if rec := do(t, r, http.MethodPost, "/api/v1/items", body); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestUpdateItem(t *testing.T) {
	r, bc := newTestRouter(t, nil)

	rec := do(t, r, http.MethodPut, "/api/v1/items/1", `{"price":950}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	it := decode[item.Item](t, rec)
	if it.Price != 950 || it.Name != "Gold Coin" {
		t.Errorf("unexpected item: %+v", it)
	}
	if bc.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", bc.count())
	}

	if rec := do(t, r, http.MethodPut, "/api/v1/items/99", `{"price":1}`); rec.Code != http.StatusNotFound {
		t.Errorf("missing item: status = %d, want 404", rec.Code)
	}
	if rec := do(t, r, http.MethodPut, "/api/v1/items/1", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty update: status = %d, want 400", rec.Code)
	}
	if bc.count() != 1 {
		t.Errorf("failed updates broadcast: count = %d", bc.count())
	}
}

func TestDeleteItem(t *testing.T) {
	r, bc := newTestRouter(t, nil)

	if rec := do(t, r, http.MethodDelete, "/api/v1/items/1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec := do(t, r, http.MethodDelete, "/api/v1/items/1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", rec.Code)
	}
	if bc.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", bc.count())
	}
}

func TestItemExists(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	tests := []struct {
		path string
		want bool
	}{
		{"/api/v1/items/1", true},
		{"/api/v1/items/42", false},
	}
	for _, tt := range tests {
		rec := do(t, r, http.MethodOptions, tt.path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", tt.path, rec.Code)
		}
		if got := decode[map[string]bool](t, rec)["exists"]; got != tt.want {
			t.Errorf("%s: exists = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/items/1", http.NoBody)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("preflight body = %q, want empty", rec.Body.String())
	}
}

func TestFilterItems(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	for _, path := range []string{"/api/v1/items/filter?max=100", "/filter?max=100"} {
		rec := do(t, r, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, rec.Code)
		}
		items := decode[[]item.Item](t, rec)
		if len(items) != 1 || items[0].Name != "Silver Spoon" {
			t.Errorf("%s: unexpected items %+v", path, items)
		}
	}

	if rec := do(t, r, http.MethodGet, "/filter?min=10&max=5", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("inverted range: status = %d, want 400", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/filter?min=cheap", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad bound: status = %d, want 400", rec.Code)
	}
}

func TestMutationsRateLimited(t *testing.T) {
	r, _ := newTestRouter(t, middleware.NewRateLimiter(0.001, 1))

	if rec := do(t, r, http.MethodPost, "/api/v1/items", `{"name":"A","price":1}`); rec.Code != http.StatusCreated {
		t.Fatalf("first create: status = %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/api/v1/items", `{"name":"B","price":1}`); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second create: status = %d, want 429", rec.Code)
	}
	// Reads are not limited.
	if rec := do(t, r, http.MethodGet, "/api/v1/items", ""); rec.Code != http.StatusOK {
		t.Errorf("list: status = %d, want 200", rec.Code)
	}
}

func TestWSRouteMounted(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	if rec := do(t, r, http.MethodGet, "/price-updates", ""); rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want ws handler", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	store := memory.NewStore()
	h := &Handlers{
		Catalog:  service.NewCatalogService(store, &captureBroadcaster{}, nil),
		Sessions: fixedSessions(2),
		Queue:    stubQueue(false),
	}

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[healthResponse](t, rec)
	if resp.Status != "ok" || resp.Queue != "disconnected" || resp.Sessions != 2 {
		t.Errorf("unexpected health: %+v", resp)
	}
}
