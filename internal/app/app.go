package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/course-pricing/internal/domain/checkout"
	"github.com/xenking/course-pricing/internal/domain/pricing"
	"github.com/xenking/course-pricing/internal/fixture"
	"github.com/xenking/course-pricing/internal/handler"
	"github.com/xenking/course-pricing/internal/processor/stripe"
	"github.com/xenking/course-pricing/internal/storage/memory"
	"github.com/xenking/course-pricing/internal/storage/postgres"
	"github.com/xenking/course-pricing/pkg/health"
	"github.com/xenking/course-pricing/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("storage", cfg.Storage))

	healthSvc := health.New()
	healthSvc.Register(health.Check{
		Name: "goroutines", Kind: health.Liveness, Timeout: time.Second,
		Func: health.GoroutineCountCheck(10000),
	})

	var repo pricing.Repository
	switch cfg.Storage {
	case StorageMemory:
		store, err := newMemoryStore(ctx, cfg)
		if err != nil {
			return err
		}
		repo = store
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		healthSvc.Register(health.Check{
			Name: "postgres", Kind: health.Readiness, Timeout: 5 * time.Second,
			Func: health.PingCheck(pool),
		})
		repo = postgres.NewStore(pool)
	}

	if cfg.Stripe.SecretKey == "" {
		lg.Warn("Stripe secret key is not set, checkout will fail")
	}

	pricingOpts, err := cfg.pricingOptions()
	if err != nil {
		return err
	}
	pricingOpts = append(pricingOpts,
		pricing.WithTracerProvider(m.TracerProvider()),
		pricing.WithMeterProvider(m.MeterProvider()),
	)
	formatter, err := pricing.NewFormatter(repo, pricingOpts...)
	if err != nil {
		return errors.Wrap(err, "create formatter")
	}

	materializer, err := checkout.NewMaterializer(repo,
		stripe.New(cfg.Stripe.SecretKey, cfg.Stripe.Currency, nil),
		append(cfg.checkoutOptions(),
			checkout.WithTracerProvider(m.TracerProvider()),
			checkout.WithMeterProvider(m.MeterProvider()),
		)...,
	)
	if err != nil {
		return errors.Wrap(err, "create materializer")
	}

	h := handler.New(handler.Config{CheckoutErrorURL: cfg.Checkout.ErrorURL}, formatter, materializer)
	api := h.Routes(
		httpmiddleware.RequestID(),
		httpmiddleware.LogRequests(),
	)

	mux := http.NewServeMux()
	mux.Handle("/livez", healthSvc.Handler(health.Liveness))
	mux.Handle("/readyz", healthSvc.Handler(health.Readiness))
	mux.Handle("/api/", otelhttp.NewHandler(api, "pricing-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	))

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newMemoryStore returns an in-memory store loaded with the demo catalog,
// built from the same discount tables the engine is configured with.
func newMemoryStore(ctx context.Context, cfg *Config) (*memory.Store, error) {
	ppp := pricing.DefaultPPPTable()
	if cfg.Pricing.PPP != "" {
		t, err := pricing.ParsePPPTable(cfg.Pricing.PPP)
		if err != nil {
			return nil, errors.Wrap(err, "ppp table")
		}
		ppp = t
	}
	tiers := pricing.DefaultBulkTiers()
	if cfg.Pricing.BulkTiers != "" {
		t, err := pricing.ParseBulkTiers(cfg.Pricing.BulkTiers)
		if err != nil {
			return nil, errors.Wrap(err, "bulk tiers")
		}
		tiers = t
	}

	catalog, err := fixture.Demo(ppp, tiers)
	if err != nil {
		return nil, errors.Wrap(err, "build demo catalog")
	}
	store := memory.New()
	if err := fixture.Load(ctx, store, catalog); err != nil {
		return nil, errors.Wrap(err, "load demo catalog")
	}
	return store, nil
}
