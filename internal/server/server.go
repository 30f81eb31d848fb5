// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware, and routes:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads the config and passes it to New, which creates:
//
//	catalog bundle → sqlite index → CatalogService → PageHandler
//	webhook client + notion client → RegistrationService → RegistrationHandler
//
// This is the "composition root" pattern: all dependencies are wired in
// one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/bookdigest/internal/catalog"
	"github.com/sakif/bookdigest/internal/config"
	"github.com/sakif/bookdigest/internal/handler"
	"github.com/sakif/bookdigest/internal/health"
	"github.com/sakif/bookdigest/internal/i18n"
	"github.com/sakif/bookdigest/internal/metrics"
	"github.com/sakif/bookdigest/internal/middleware"
	"github.com/sakif/bookdigest/internal/model"
	"github.com/sakif/bookdigest/internal/notion"
	"github.com/sakif/bookdigest/internal/privacy"
	sqliteRepo "github.com/sakif/bookdigest/internal/repository/sqlite"
	"github.com/sakif/bookdigest/internal/service"
	"github.com/sakif/bookdigest/internal/visitor"
	"github.com/sakif/bookdigest/internal/webhook"
	"github.com/sakif/bookdigest/web"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the catalog index (db). Start closes it once the HTTP
// server has drained; tests that never call Start use Close.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	metrics *metrics.Metrics
}

// New creates a new Server with the given config.
//
// Every integration is optional. Without webhook endpoints or Notion
// credentials, submissions are validated and then simulated.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === BUILD THE CATALOG INDEX ===
	books, err := catalog.Books()
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	stats, err := catalog.Stats()
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}

	db, err := sqliteRepo.New()
	if err != nil {
		return nil, fmt.Errorf("opening catalog index: %w", err)
	}
	if err := db.Load(context.Background(), books); err != nil {
		db.Close()
		return nil, fmt.Errorf("indexing catalog: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}
	s.metrics.CatalogBooks.Set(float64(len(books)))

	if err := s.setupRoutes(stats); err != nil {
		db.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	logger.Info("catalog indexed", slog.Int("books", len(books)))
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET  /, /about, /books, /books/{slug}, /events, /joinus, /privacy, /terms
//
//	(each also under /en and /zh)
//
// GET  /lang/{locale}?next=    → Switch locale, redirect back
// GET  /sitemap.xml, /robots.txt
// GET  /static/*               → Embedded assets
// POST /api/submit?loc=TW|NL   → Signup (rate limited, body size capped)
// GET  /api/registrations      → Newest stored signups
// GET  /health, /health/live, /health/ready
// GET  /metrics                → Prometheus
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, RealIP: request id and client IP for everything below.
//    Forwarding headers count only from TRUSTED_PROXIES.
// 2. Recoverer: catches panics and returns 500 instead of crashing
// 3. Logger, Metrics: see the final status of every request
// 4. i18n: resolves the locale for pages and the 404 page
func (s *Server) setupRoutes(stats model.Stats) error {
	cfg := s.config

	bundle, err := i18n.Load()
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}
	if missing := bundle.Missing(i18n.Chinese); len(missing) > 0 {
		s.logger.Warn("messages missing from zh, using English", slog.Int("count", len(missing)))
	}

	hasher, err := privacy.NewHasher(cfg.LogHashKey)
	if err != nil {
		return err
	}
	if hasher.Ephemeral() && !cfg.IsDev() {
		s.logger.Warn("LOG_HASH_KEY not set, e-mail pseudonyms only correlate within this process")
	}

	trusted, err := middleware.ParseTrustedProxies(cfg.HTTP.TrustedProxies)
	if err != nil {
		return err
	}

	var signer *visitor.Signer
	if cfg.VisitorSecret != "" {
		if signer, err = visitor.NewSigner(cfg.VisitorSecret); err != nil {
			return err
		}
	}

	// A nil interface, not a typed nil pointer, marks the store as absent.
	var store service.RegistrationStore
	if cfg.Notion.Configured() {
		store = notion.New(cfg.Notion)
	}
	forwarder := webhook.New(cfg.Webhook)
	s.logger.Info("submission processors",
		slog.Bool("webhook_tw", forwarder.Configured(model.LocationTW)),
		slog.Bool("webhook_nl", forwarder.Configured(model.LocationNL)),
		slog.Bool("notion", store != nil),
		slog.Bool("save_to_notion", cfg.Submit.SaveToNotion),
	)

	registrations := service.NewRegistrationService(forwarder, store,
		service.WithLogger(s.logger),
		service.WithMetrics(s.metrics),
		service.WithHasher(hasher),
		service.WithSimulateDelay(cfg.Submit.SimulateDelay),
		service.WithSaveToStore(cfg.Submit.SaveToNotion),
	)
	catalogService := service.NewCatalogService(s.db, stats)

	pages, err := handler.NewPageHandler(web.Templates, bundle, catalogService, cfg.Site, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}
	api := handler.NewRegistrationHandler(registrations, s.logger)

	limiter := middleware.NewRateLimiter(cfg.Submit.RatePerMinute, cfg.Submit.RateBurst, s.logger)
	limiter.OnReject(func(r *http.Request) {
		s.metrics.RecordSubmission(locationLabel(r.URL.Query().Get("loc")), metrics.OutcomeRateLimited)
	})

	hc := health.New(cfg.Env)
	hc.RegisterCheck("catalog", s.db.Ping)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(middleware.RealIP(trusted))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(i18n.Middleware)

	// Must be set before the locale subrouters are mounted so they inherit it.
	s.router.NotFound(pages.HandleNotFound)

	// === Infrastructure ===
	hc.Register(s.router)
	s.router.Handle("/metrics", s.metrics.Handler())
	s.router.Handle("/static/*", http.StripPrefix("/static/", staticFiles()))
	s.router.Get("/sitemap.xml", pages.HandleSitemap)
	s.router.Get("/robots.txt", pages.HandleRobots)
	s.router.Get("/lang/{locale}", pages.HandleSwitchLocale)

	// === Page Routes ===
	// Page views may issue the visitor cookie; the API only reads it.
	s.router.Group(func(r chi.Router) {
		r.Use(visitor.Middleware(signer, true, s.logger))
		pages.Mount(r)
		for _, l := range i18n.Supported {
			r.Route("/"+string(l), pages.Mount)
		}
	})

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Use(visitor.Middleware(signer, false, s.logger))
		r.With(limiter.Middleware, middleware.BodyLimit(cfg.Submit.MaxBodyBytes)).
			Post("/submit", api.HandleSubmit)
		r.Get("/registrations", api.HandleList)
	})

	return nil
}

// staticFiles serves the embedded assets with a short cache lifetime.
func staticFiles() http.Handler {
	fs := http.FileServerFS(web.Static())
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		fs.ServeHTTP(w, r)
	})
}

// locationLabel keeps raw query values out of metric labels.
func locationLabel(raw string) string {
	if loc, ok := model.ParseLocation(raw); ok {
		return string(loc)
	}
	return "unknown"
}

// Handler returns the root handler, traced with otelhttp. Spans only leave
// the process when telemetry.Setup installed an exporter.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "bookdigest.http",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/health/live" && r.URL.Path != "/health/ready"
		}),
	)
}

// Close releases the catalog index.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (HTTP_SHUTDOWN_TIMEOUT)
// 3. Close the catalog index
//
// errgroup ties the two halves together: if ListenAndServe fails (say
// the port is taken), the group context is cancelled and the shutdown
// goroutine returns straight away.
func (s *Server) Start(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         s.config.HTTP.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.HTTP.ReadTimeout,
		WriteTimeout: s.config.HTTP.WriteTimeout,
		IdleTimeout:  s.config.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", s.config.HTTP.Addr),
			slog.String("site_url", s.config.Site.URL),
			slog.String("env", s.config.Env),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
