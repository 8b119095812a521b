package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/auth"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/cache"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/ratelimit"
)

type fakeSessions struct {
	session auth.Session
	ok      bool
}

func (f fakeSessions) Current(*http.Request) (auth.Session, bool) { return f.session, f.ok }

type brokenCounter struct{}

func (brokenCounter) Incr(context.Context, string) (int64, error) { return 0, errors.New("down") }
func (brokenCounter) Expire(context.Context, string, time.Duration) error {
	return errors.New("down")
}
func (brokenCounter) TTL(context.Context, string) (time.Duration, error) {
	return 0, errors.New("down")
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFrom(r.Context()) == "" {
			t.Error("expected request id in handler context")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
}

func newChain(t *testing.T, sessions Sessions, limiter *ratelimit.Limiter, enforce bool) http.Handler {
	t.Helper()
	return Admin(Config{Sessions: sessions, Limiter: limiter, EnforceRole: enforce})(okHandler(t))
}

func newLimiter(limit int) *ratelimit.Limiter {
	c := cache.NewClient(cache.NewMemory(), true, time.Second, nil)
	return ratelimit.New(c, limit, time.Minute)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body["error"]
}

func TestPreflightShortCircuits(t *testing.T) {
	h := newChain(t, fakeSessions{}, newLimiter(1), true)
	req := httptest.NewRequest(http.MethodOptions, "/api/admin/manage_products", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") == "" || rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected Allow and request id headers, got %v", rec.Header())
	}
}

func TestRequestIDHonoured(t *testing.T) {
	h := newChain(t, fakeSessions{ok: true, session: auth.Session{Role: auth.RoleAdmin}}, nil, true)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected inbound request id, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.Header.Set(RequestIDHeader, "has spaces in it")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got == "has spaces in it" || len(got) != 36 {
		t.Fatalf("expected generated uuid, got %q", got)
	}
}

func TestAuthGuard(t *testing.T) {
	cases := []struct {
		name     string
		sessions fakeSessions
		enforce  bool
		accept   string
		want     int
	}{
		{name: "no session", sessions: fakeSessions{}, enforce: true, accept: "application/json", want: http.StatusUnauthorized},
		{name: "non admin", sessions: fakeSessions{ok: true, session: auth.Session{Role: "viewer"}}, enforce: true, want: http.StatusForbidden},
		{name: "role not enforced", sessions: fakeSessions{ok: true, session: auth.Session{Role: "viewer"}}, enforce: false, want: http.StatusOK},
		{name: "admin", sessions: fakeSessions{ok: true, session: auth.Session{Role: auth.RoleAdmin}}, enforce: true, want: http.StatusOK},
		{name: "page navigation", sessions: fakeSessions{}, enforce: true, accept: "text/html,application/xhtml+xml", want: http.StatusSeeOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newChain(t, tc.sessions, nil, tc.enforce)
			req := httptest.NewRequest(http.MethodGet, "/api/admin/orders?status=pending", nil)
			if tc.accept != "" {
				req.Header.Set("Accept", tc.accept)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			switch tc.want {
			case http.StatusUnauthorized, http.StatusForbidden:
				if decodeError(t, rec) == "" {
					t.Fatal("expected error message")
				}
				if rec.Header().Get("Cache-Control") != "no-store" {
					t.Fatalf("expected no-store, got %q", rec.Header().Get("Cache-Control"))
				}
			case http.StatusSeeOther:
				want := "/admin/login?next=%2Fapi%2Fadmin%2Forders%3Fstatus%3Dpending"
				if got := rec.Header().Get("Location"); got != want {
					t.Fatalf("expected redirect to %s, got %s", want, got)
				}
			}
		})
	}
}

func TestRateLimitRunsBeforeAuth(t *testing.T) {
	h := newChain(t, fakeSessions{}, newLimiter(2), true)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/admin/manage_products", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("request %d: expected 401, got %d", i, rec.Code)
		}
	}

	// GETs are not counted.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/manage_products", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected GET to skip the limiter, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/admin/manage_products", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "2" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected rate limit headers %v", rec.Header())
	}
	if rec.Header().Get("Retry-After") != "60" || rec.Header().Get("X-RateLimit-Reset") != "60" {
		t.Fatalf("unexpected reset headers %v", rec.Header())
	}

	// Another client has its own window.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/admin/manage_products", nil)
	req.RemoteAddr = "198.51.100.1:4000"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected separate window for another IP, got %d", rec.Code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	l := ratelimit.New(brokenCounter{}, 1, time.Minute)
	h := newChain(t, fakeSessions{ok: true, session: auth.Session{Role: auth.RoleAdmin}}, l, true)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/manage_products", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected fail-open 200, got %d", rec.Code)
		}
	}
}

func TestRateLimitIgnoresForwardedHeaders(t *testing.T) {
	h := newChain(t, fakeSessions{}, newLimiter(2), true)
	var limited int
	for i := 0; i < 6; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/admin/manage_products", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("192.0.2.%d", i+1))
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 4 {
		t.Fatalf("expected 4 limited requests from one connection address, got %d", limited)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.4:1234"
	req.Header.Set("X-Real-IP", "192.0.2.5")
	req.Header.Set("X-Forwarded-For", "192.0.2.6, 10.0.0.1")
	if got := ClientIP(req); got != "192.0.2.4" {
		t.Fatalf("expected remote host, got %q", got)
	}
	// chi's RealIP stores a bare address.
	req.RemoteAddr = "192.0.2.6"
	if got := ClientIP(req); got != "192.0.2.6" {
		t.Fatalf("expected bare address, got %q", got)
	}
}
