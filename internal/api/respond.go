package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/auth"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/cart"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/middleware"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/orders"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/payment/paypal"
)

// badRequest is a client error whose message is safe to echo.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func errBadRequest(msg string) error { return &badRequest{msg: msg} }

func withServerDefaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return errBadRequest("unreadable request body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errBadRequest("empty request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errBadRequest("invalid JSON payload")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func intParam(r *http.Request, key string, def, min, max int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func boolParam(r *http.Request, key string) *bool {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key)))
	switch raw {
	case "1", "true", "yes":
		v := true
		return &v
	case "0", "false", "no":
		v := false
		return &v
	}
	return nil
}

// idsParam parses a comma-separated id list, skipping junk.
func idsParam(raw string) []int64 {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil && n > 0 {
			out = append(out, n)
		}
	}
	return out
}

// fail maps domain errors onto status codes. Anything unrecognised is a
// 500 whose details only reach the log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		br          *badRequest
		ve          *catalog.ValidationError
		unavailable *orders.UnavailableError
		ppErr       *paypal.APIError
	)
	switch {
	case errors.As(err, &br):
		writeError(w, http.StatusBadRequest, br.msg)
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Message, "field": ve.Field})
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, catalog.ErrMediaNotFound):
		writeError(w, http.StatusNotFound, "media not found")
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, cart.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "cart item not found")
	case errors.Is(err, cart.ErrBadQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrOutOfStock):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusConflict, map[string]any{"error": unavailable.Reason, "product_id": unavailable.ProductID})
	case errors.Is(err, orders.ErrEmptyOrder), errors.Is(err, orders.ErrInvalidStatus), errors.Is(err, orders.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orders.ErrPaymentIncomplete):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &ppErr):
		s.log.Warn("paypal error", zap.String("request_id", middleware.RequestIDFrom(r.Context())), zap.Error(err))
		writeError(w, http.StatusBadGateway, "payment provider error")
	case errors.Is(err, paypal.ErrNotConfigured), errors.Is(err, auth.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.log.Error("request failed",
			zap.String("request_id", middleware.RequestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
