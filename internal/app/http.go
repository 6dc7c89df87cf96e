package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/adapters/handler"
	"github.com/DanielPopoola/ficmart-checkout/internal/adapters/handler/middleware"
	"github.com/DanielPopoola/ficmart-checkout/internal/auth"
	"github.com/DanielPopoola/ficmart-checkout/internal/config"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/service"
	"github.com/DanielPopoola/ficmart-checkout/internal/metrics"
	"go.uber.org/fx"
)

const shutdownTimeout = 30 * time.Second

// HTTPModule wires the storefront API and its middleware chain.
var HTTPModule = fx.Options(
	fx.Provide(
		func(cfg *config.Config) *auth.TokenService {
			return auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		},
		func() (*middleware.OpenAPIValidator, error) {
			return middleware.NewOpenAPIValidator(handler.OpenAPISpec())
		},
		newCheckoutHandler,
		newRouter,
		newHTTPServer,
	),
	fx.Invoke(registerServerLifecycle),
)

type checkoutHandlerParams struct {
	fx.In

	Config       *config.Config
	Orchestrator *service.Orchestrator
	Ledger       *service.LedgerService
	Logger       *slog.Logger
}

func newCheckoutHandler(p checkoutHandlerParams) *handler.CheckoutHandler {
	return handler.NewCheckoutHandler(
		p.Orchestrator,
		p.Ledger,
		p.Config.Gateway.KeyID,
		p.Config.Gateway.Currency,
		p.Logger,
	)
}

type routerParams struct {
	fx.In

	Config    *config.Config
	Handler   *handler.CheckoutHandler
	Tokens    *auth.TokenService
	Validator *middleware.OpenAPIValidator
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

// newRouter builds the middleware chain. Metrics wraps the mux directly so it
// sees the matched route pattern.
func newRouter(p routerParams) http.Handler {
	mux := http.NewServeMux()
	p.Handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", p.Metrics.Handler())

	h := middleware.Metrics(p.Metrics)(mux)
	h = p.Validator.Middleware(h)
	h = middleware.Authenticate(p.Tokens, p.Logger)(h)
	h = middleware.RecoverPanics(p.Logger)(h)
	h = middleware.Logging(p.Logger)(h)
	h = middleware.Deadline(p.Config.Server.ReadTimeout)(h)
	return h
}

func newHTTPServer(cfg *config.Config, router http.Handler) *http.Server {
	return &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

type serverLifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Server     *http.Server
	Logger     *slog.Logger
}

func registerServerLifecycle(p serverLifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Info("server starting", "addr", p.Server.Addr)
			go func() {
				if err := p.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("server error", "error", err)
					_ = p.Shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("shutting down server...")

			shutdownCtx := ctx
			cancel := func() {}
			if _, ok := ctx.Deadline(); !ok {
				shutdownCtx, cancel = context.WithTimeout(ctx, shutdownTimeout)
			}
			defer cancel()

			if err := p.Server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				p.Logger.Error("server forced to shutdown", "error", err)
				return err
			}
			p.Logger.Info("server exited")
			return nil
		},
	})
}
