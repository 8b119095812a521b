package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T, admin config.Admin) *Manager {
	t.Helper()
	m, err := NewManager(admin, testSecret, false)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	return m
}

func requestWithCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestLoginIssuesSession(t *testing.T) {
	m := newTestManager(t, config.Admin{Email: "owner@shellstories.test", Password: "tide-pool"})

	rec := httptest.NewRecorder()
	s, err := m.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil), " Owner@ShellStories.test ", "tide-pool")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if !s.IsAdmin() || s.Email != "owner@shellstories.test" {
		t.Fatalf("unexpected session %+v", s)
	}

	got, ok := m.Current(requestWithCookies(rec))
	if !ok || got.Email != s.Email || got.Role != RoleAdmin {
		t.Fatalf("expected session from cookie, got %+v ok=%v", got, ok)
	}

	out := httptest.NewRecorder()
	if err := m.Logout(out, requestWithCookies(rec)); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	cleared := out.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("expected expired cookie, got %+v", cleared)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	m := newTestManager(t, config.Admin{Email: "owner@shellstories.test", Password: "tide-pool"})
	if err := m.Authenticate("owner@shellstories.test", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := m.Authenticate("someone@else.test", "tide-pool"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	empty := newTestManager(t, config.Admin{})
	if err := empty.Authenticate("", ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestAuthenticateWithHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("conch"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword returned error: %v", err)
	}
	m := newTestManager(t, config.Admin{Email: "owner@shellstories.test", Password: "ignored", PasswordHash: string(hash)})
	if err := m.Authenticate("owner@shellstories.test", "conch"); err != nil {
		t.Fatalf("expected hash match, got %v", err)
	}
	if err := m.Authenticate("owner@shellstories.test", "ignored"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected plain password to be ignored when a hash is set, got %v", err)
	}
}

func TestCurrentRejectsTamperedAndExpired(t *testing.T) {
	m := newTestManager(t, config.Admin{Email: "owner@shellstories.test", Password: "tide-pool"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionName, Value: "forged"})
	if _, ok := m.Current(req); ok {
		t.Fatal("expected forged cookie to be rejected")
	}

	rec := httptest.NewRecorder()
	old := Session{Email: "owner@shellstories.test", Role: RoleAdmin, IssuedAt: time.Now().Add(-9 * time.Hour)}
	if err := m.Issue(rec, httptest.NewRequest(http.MethodGet, "/", nil), old); err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, ok := m.Current(requestWithCookies(rec)); ok {
		t.Fatal("expected stale session to be rejected")
	}
}
