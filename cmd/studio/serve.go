package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/api"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/auth"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/cache"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/cart"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/config"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/orders"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/payment/paypal"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/ratelimit"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/storage"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the storefront API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = net.JoinHostPort("", cfg.Port)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, addr string) error {
	log, err := newLogger(cfg)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	defer func() { _ = log.Sync() }()

	db, err := storage.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	var store cache.Store = cache.NewMemory()
	if cfg.Cache.RedisURL != "" {
		store = cache.NewRedis(cfg.Cache.RedisURL)
	}
	cc := cache.NewClient(store, cfg.Cache.Enabled, cfg.Cache.OpTimeout, log)
	defer cc.Close()

	cat := catalog.NewService(db, cc, cfg.Cache.TTL, log)
	orderSvc := orders.NewService(db, log)

	var pay orders.Payments
	client, err := paypal.New(paypal.Config{ClientID: cfg.Pay.ClientID, ClientSecret: cfg.Pay.ClientSecret, Mode: cfg.Pay.Mode})
	switch {
	case errors.Is(err, paypal.ErrNotConfigured):
		log.Warn("paypal credentials missing; checkout is disabled")
	case err != nil:
		return err
	default:
		pay = client
	}

	sessions, err := auth.NewManager(cfg.Admin, cfg.SessionSecret, !cfg.IsDevelopment())
	if err != nil {
		return err
	}

	srv := api.New(api.Deps{
		Log:           log,
		DB:            db,
		Cache:         cc,
		Catalog:       cat,
		Carts:         cart.NewService(db),
		Orders:        orderSvc,
		Checkout:      orders.NewCheckout(orderSvc, cat, pay, cfg.Currency, log),
		Auth:          sessions,
		Limiter:       ratelimit.New(cc, cfg.Rate.Max, cfg.Rate.Window),
		Media:         cfg.Media,
		DevLogging:    cfg.IsDevelopment(),
		EnforceRole:   cfg.Admin.EnforceRole,
		SecureCookies: !cfg.IsDevelopment(),
		TrustProxy:    cfg.TrustProxy,
	})
	httpSrv := api.NewHTTPServer(addr, srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("database", db.Dialect().String()), zap.String("env", cfg.AppEnv))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := storage.Open(cmd.Context(), cfg.DB)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			cmd.Printf("schema ready (%s)\n", db.Dialect())
			return nil
		},
	}
}
