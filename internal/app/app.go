// Package app wires the service together: configuration, logging,
// telemetry, the fault dispatch engine, the fault feed and the HTTP
// router, plus the server lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"faultgate/internal/config"
	"faultgate/internal/dispatch"
	"faultgate/internal/errorpages"
	"faultgate/internal/faultfeed"
	"faultgate/internal/infrastructure"
	"faultgate/internal/middleware"
	handlers "faultgate/internal/transport/http"
)

// Application represents the main application container.
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Registry      *dispatch.Registry
	Guard         *dispatch.Guard
	FeedHub       *faultfeed.Hub
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	// protected is the router group carrying the full middleware chain,
	// fault boundary included. Mount attaches routes here.
	protected chi.Router
}

// NewApplication creates a new application instance with dependency injection.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("service", infrastructure.ServiceName),
		slog.String("version", infrastructure.ServiceVersion))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeDispatch(); err != nil {
		return nil, fmt.Errorf("failed to initialize dispatch: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeDispatch builds the registry, guard and fault feed.
func (a *Application) initializeDispatch() error {
	a.Registry = dispatch.NewRegistry()

	guardCfg := dispatch.GuardConfig{
		Debug:       a.Config.Dispatch.Debug,
		Fallback:    fallbackFormat(a.Config.Dispatch.Fallback),
		NoisyFaults: a.Config.Dispatch.NoisyExceptions,
	}
	a.Guard = dispatch.NewGuard(a.Registry, errorpages.New(), a.Logger, guardCfg)

	if a.OTelProviders.Meter != nil {
		metrics, err := dispatch.NewMetrics(a.OTelProviders.Meter)
		if err != nil {
			return fmt.Errorf("failed to create dispatch metrics: %w", err)
		}
		a.Guard.SetMetrics(metrics)
	}

	if a.Config.Feed.Enabled {
		a.FeedHub = faultfeed.NewHub(a.Logger)
		a.FeedHub.Start()
		a.Guard.AddObserver(a.FeedHub.Observer())
	}

	return nil
}

// fallbackFormat maps the configured fallback name to a render format.
func fallbackFormat(name string) dispatch.Format {
	switch name {
	case "html":
		return dispatch.FormatHTML
	case "text":
		return dispatch.FormatText
	case "json":
		return dispatch.FormatJSON
	default:
		return dispatch.FormatAuto
	}
}

// setupRouter configures the HTTP router with all routes.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Minimal middleware that won't interfere with WebSocket upgrades.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// Feed endpoint before the full middleware group.
	if a.FeedHub != nil {
		r.With(middleware.WebSocketTraceMiddleware(a.Logger)).
			Get("/ws", faultfeed.ServeWS(a.FeedHub, a.Logger))
	}

	r.Group(func(r chi.Router) {
		otelMiddleware, err := middleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}

		r.Use(middleware.StructuredLogger(a.Logger))
		r.Use(middleware.FaultBoundary(a.Guard, a.Logger))
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.Compress(5))

		if a.Config.Security.RateLimit.Enabled {
			r.Use(middleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Guard,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
		a.protected = r
	})

	// Prometheus endpoint outside the middleware group.
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes configures the service's own API endpoints.
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.Timeout(a.Config.Server.ReadTimeout))

		var feedStats func() map[string]any
		if a.FeedHub != nil {
			feedStats = func() map[string]any { return a.FeedHub.Stats(context.Background()) }
		}

		healthHandler := handlers.NewHealthHandler(a.Registry, feedStats, a.Logger)
		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/version", healthHandler.Version)
		r.Get("/dispatch/stats", healthHandler.DispatchStats)
	})
}

// Mount attaches extra routes under the full middleware chain, fault
// boundary included. Must be called before the server starts serving.
func (a *Application) Mount(pattern string, h http.Handler) {
	a.protected.Mount(pattern, h)
}

// createServer creates the HTTP server.
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts the server and blocks until the context is cancelled or
// the server fails, then shuts everything down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(ctx, "server listening",
			slog.String("addr", a.Server.Addr),
			slog.Bool("dispatch_debug", a.Config.Dispatch.Debug))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.FeedHub != nil {
		a.FeedHub.Stop()
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		return fmt.Errorf("log file close error: %w", err)
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}
