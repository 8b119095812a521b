// Package api is the storefront's HTTP surface: public catalog, cart and
// checkout routes plus the admin API behind the admin middleware chain.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/auth"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/cache"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/cart"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/config"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/middleware"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/orders"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/ratelimit"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/storage"
)

const serviceName = "shell-stories-studio"

type Deps struct {
	Log      *zap.Logger
	DB       *storage.DB
	Cache    *cache.Client
	Catalog  *catalog.Service
	Carts    *cart.Service
	Orders   *orders.Service
	Checkout *orders.Checkout
	Auth     *auth.Manager
	Limiter  *ratelimit.Limiter
	Media    config.Media

	DevLogging    bool
	EnforceRole   bool
	SecureCookies bool
	// TrustProxy rewrites RemoteAddr from forwarding headers before any
	// handler or limiter sees the request.
	TrustProxy bool
}

type Server struct {
	Deps
	log *zap.Logger
}

func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{Deps: d, log: log.Named("api")}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	if s.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(withServerDefaults)

	r.Get("/healthz", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Logger(s.log, s.DevLogging))

			r.Get("/products", s.listProducts)
			r.Get("/products/favorites", s.favorites)
			r.Get("/products/favorites/rail", s.favoritesRail)
			r.Get("/products/{id}", s.getProduct)

			r.Get("/cart", s.getCart)
			r.Delete("/cart", s.clearCart)
			r.Post("/cart/items", s.addCartItem)
			r.Patch("/cart/items/{productId}", s.setCartItem)
			r.Delete("/cart/items/{productId}", s.removeCartItem)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(s.Limiter, s.log))
				r.Post("/paypal/create-order", s.createPayPalOrder)
				r.Post("/paypal/capture-order", s.capturePayPalOrder)
				r.Post("/auth/login", s.login)
			})
			r.Post("/auth/logout", s.logout)
			r.Get("/auth/session", s.session)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Admin(middleware.Config{
				Log:         s.log,
				DevLogging:  s.DevLogging,
				Limiter:     s.Limiter,
				Sessions:    s.Auth,
				EnforceRole: s.EnforceRole,
			}))

			r.Get("/manage_products", s.adminListProducts)
			r.Post("/manage_products", s.adminCreateProduct)
			r.Get("/manage_products/_explain", s.adminExplainProducts)
			r.Get("/manage_products/{id}", s.adminGetProduct)
			r.Put("/manage_products/{id}", s.adminReplaceProduct)
			r.Patch("/manage_products/{id}", s.adminPatchProduct)
			r.Delete("/manage_products/{id}", s.adminDeleteProduct)

			r.Get("/media/config", s.mediaConfig)
			r.Post("/media/save", s.saveMedia)
			r.Get("/media/{productId}", s.listMedia)
			r.Put("/media/{productId}/order", s.reorderMedia)
			r.Patch("/media/{productId}/{mediaId}/primary", s.setPrimaryMedia)
			r.Delete("/media/{productId}/{mediaId}", s.deleteMedia)

			r.Get("/orders", s.adminListOrders)
			r.Get("/orders/{id}", s.adminGetOrder)
			r.Patch("/orders/{id}/shipping", s.adminUpdateShipping)
		})
	})
	return r
}

// NewHTTPServer wraps h with the server timeouts.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	database := s.DB.Dialect().String()
	if err := s.DB.PingContext(ctx); err != nil {
		s.log.Warn("health: database ping failed", zap.Error(err))
		status, code, database = "unhealthy", http.StatusServiceUnavailable, "unreachable"
	}

	cacheState := "disabled"
	if s.Cache.Enabled() {
		cacheState = "ok"
		if _, err := s.Cache.Get(ctx, "healthz"); err != nil && !errors.Is(err, cache.ErrMiss) {
			cacheState = "degraded"
			if code == http.StatusOK {
				status = "degraded"
			}
		}
	}
	writeJSON(w, code, map[string]any{"status": status, "service": serviceName, "database": database, "cache": cacheState})
}
