package adminclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/optimistic"
)

// fakeAdmin is a minimal admin API: one session cookie and an in-memory
// product table.
type fakeAdmin struct {
	mu       sync.Mutex
	products map[int64]catalog.Product
	failIDs  map[int64]bool
	patches  []map[string]any
}

func newFakeAdmin() *fakeAdmin {
	f := &fakeAdmin{products: map[int64]catalog.Product{}, failIDs: map[int64]bool{}}
	for id := int64(1); id <= 3; id++ {
		f.products[id] = catalog.Product{ID: id, Name: "Shell " + strconv.FormatInt(id, 10), Price: decimal.NewFromInt(id), IsActive: true}
	}
	return f
}

func (f *fakeAdmin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/api/auth/login" {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "tide" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid email or password"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "ss_session", Value: "ok", Path: "/"})
		_, _ = w.Write([]byte(`{"success":true}`))
		return
	}
	if c, err := r.Cookie("ss_session"); err != nil || c.Value != "ok" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"authentication required"}`))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/manage_products")
	if rest == "" && r.Method == http.MethodGet {
		list := make([]catalog.Product, 0, len(f.products))
		for id := int64(1); id <= 10; id++ {
			if p, ok := f.products[id]; ok {
				list = append(list, p)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "products": list, "total": len(list)})
		return
	}
	id, _ := strconv.ParseInt(strings.TrimPrefix(rest, "/"), 10, 64)
	p, ok := f.products[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"product not found"}`))
		return
	}
	if f.failIDs[id] {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}
	switch r.Method {
	case http.MethodDelete:
		delete(f.products, id)
		_, _ = w.Write([]byte(`{"success":true,"message":"Product deleted"}`))
	case http.MethodPatch:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.patches = append(f.patches, body)
		if v, ok := body["is_active"].(bool); ok {
			p.IsActive = v
		}
		if v, ok := body["is_favorite"].(bool); ok {
			p.IsFavorite = v
		}
		f.products[id] = p
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "product": p})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestTable(t *testing.T) (*Table, *fakeAdmin, *optimistic.Cache) {
	t.Helper()
	fake := newFakeAdmin()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := c.Login(context.Background(), "owner@shellstories.test", "tide"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	cache := optimistic.NewCache()
	table := NewTable(c, cache, ListFilter{})
	if _, err := table.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return table, fake, cache
}

func TestLoginRequired(t *testing.T) {
	srv := httptest.NewServer(newFakeAdmin())
	defer srv.Close()
	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	_, _, err = c.ListProducts(context.Background(), ListFilter{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "authentication required" {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if err := c.Login(context.Background(), "owner@shellstories.test", "wrong"); !errors.As(err, &apiErr) {
		t.Fatalf("expected login failure, got %v", err)
	}
}

func TestDeleteCommitsAndReloads(t *testing.T) {
	table, _, _ := newTestTable(t)
	ctx := context.Background()
	if err := table.Delete(ctx, 2); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	rows, err := table.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows returned error: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != 1 || rows[1].ID != 3 {
		t.Fatalf("unexpected rows after delete %+v", rows)
	}
}

func TestBulkFailureRestoresSnapshot(t *testing.T) {
	table, fake, cache := newTestTable(t)
	before, _ := cache.Get("admin:products")
	fake.mu.Lock()
	fake.failIDs[2] = true
	fake.mu.Unlock()

	off := false
	err := table.BulkUpdate(context.Background(), []int64{1, 2, 3}, catalog.ProductPatch{IsActive: &off})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 APIError, got %v", err)
	}
	after, _ := cache.Get("admin:products")
	if string(after) != string(before) {
		t.Fatalf("snapshot not restored:\n got %s\nwant %s", after, before)
	}
}

func TestSetActiveAndToggleFavorite(t *testing.T) {
	table, fake, _ := newTestTable(t)
	ctx := context.Background()
	if err := table.SetActive(ctx, 1, false); err != nil {
		t.Fatalf("SetActive returned error: %v", err)
	}
	if err := table.ToggleFavorite(ctx, 3); err != nil {
		t.Fatalf("ToggleFavorite returned error: %v", err)
	}
	rows, err := table.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows returned error: %v", err)
	}
	if rows[0].IsActive || !rows[2].IsFavorite {
		t.Fatalf("unexpected rows %+v", rows)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	for _, body := range fake.patches {
		if _, ok := body["stock"]; ok {
			t.Fatalf("patch should not carry stock: %v", body)
		}
	}
	if err := table.ToggleFavorite(ctx, 42); !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}
}
