// Package middleware holds the admin request chain: request id, dev
// logging, preflight, JSON headers, rate limiting and the auth guard.
package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/auth"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/ratelimit"
)

const RequestIDHeader = "X-Request-ID"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	sessionKey
)

// RequestID honours a sane inbound X-Request-ID and otherwise assigns a
// uuid. The id is echoed on the response and stored in the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFrom(r.Context()) != "" {
			next.ServeHTTP(w, r)
			return
		}
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// RequestIDFrom returns the id assigned by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Logger logs one line per request. It is a pass-through unless enabled.
func Logger(log *zap.Logger, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled || log == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("request",
				zap.String("request_id", RequestIDFrom(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Preflight answers OPTIONS with 204 and the allowed methods.
func Preflight(allow string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.Header().Set("Allow", allow)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// JSONHeaders sets the default content type and disables caching.
func JSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// RateLimit counts non-GET requests per client IP. Backend errors are
// logged and the request goes through.
func RateLimit(l *ratelimit.Limiter, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			res, err := l.Allow(r.Context(), ClientIP(r))
			if err != nil {
				log.Warn("rate limiter unavailable", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			reset := int(math.Ceil(res.Reset.Seconds()))
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.Itoa(reset))
			if !res.Allowed {
				h.Set("Retry-After", strconv.Itoa(reset))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the connection address without its port. Forwarding headers
// are ignored here; behind a trusted proxy the router rewrites RemoteAddr
// from them first.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Sessions resolves the caller's session.
type Sessions interface {
	Current(r *http.Request) (auth.Session, bool)
}

// RequireAdmin rejects callers without a session (401) or, when
// enforceRole is set, without the admin role (403). Page navigations are
// redirected to the login page instead.
func RequireAdmin(sessions Sessions, enforceRole bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := sessions.Current(r)
			if ok && (!enforceRole || s.IsAdmin()) {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, s)))
				return
			}
			if !wantsJSON(r) {
				http.Redirect(w, r, "/admin/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
				return
			}
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			writeError(w, http.StatusForbidden, "admin role required")
		})
	}
}

// SessionFrom returns the session stored by RequireAdmin.
func SessionFrom(ctx context.Context) (auth.Session, bool) {
	s, ok := ctx.Value(sessionKey).(auth.Session)
	return s, ok
}

// wantsJSON treats everything except an HTML page navigation as an API
// call.
func wantsJSON(r *http.Request) bool {
	accept := strings.ToLower(r.Header.Get("Accept"))
	if strings.Contains(accept, "application/json") {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	return !strings.Contains(accept, "text/html")
}

// Config assembles the admin chain.
type Config struct {
	Log         *zap.Logger
	DevLogging  bool
	Allow       string
	Limiter     *ratelimit.Limiter
	Sessions    Sessions
	EnforceRole bool
}

// Admin returns the admin chain in its fixed order.
func Admin(cfg Config) func(http.Handler) http.Handler {
	allow := cfg.Allow
	if allow == "" {
		allow = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	chain := []func(http.Handler) http.Handler{
		RequestID,
		Logger(cfg.Log, cfg.DevLogging),
		Preflight(allow),
		JSONHeaders,
		RateLimit(cfg.Limiter, cfg.Log),
		RequireAdmin(cfg.Sessions, cfg.EnforceRole),
	}
	return func(next http.Handler) http.Handler {
		for i := len(chain) - 1; i >= 0; i-- {
			next = chain[i](next)
		}
		return next
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
