package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/pikaboard/pikausage/internal/config"
	"github.com/pikaboard/pikausage/internal/usage"
	"github.com/pikaboard/pikausage/server/internal/auth"
	"github.com/pikaboard/pikausage/server/internal/database"
	"github.com/pikaboard/pikausage/server/internal/handlers"
	"github.com/pikaboard/pikausage/server/internal/middleware"
	"github.com/pikaboard/pikausage/server/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

// program implements service.Interface for the HTTP server
type program struct {
	configPath string
	logger     *slog.Logger
	svcLogger  service.Logger

	srv    *http.Server
	db     *database.DB
	warmer *scheduler.Warmer
	cancel context.CancelFunc
}

func (p *program) Start(s service.Service) error {
	cfg, err := config.Load(p.configPath)
	if err != nil {
		return p.fail("Failed to load config: %w", err)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return p.fail("Failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return p.fail("Failed to run migrations: %w", err)
	}
	p.db = db

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	handler, svc, err := p.buildHandler(cfg, db)
	if err != nil {
		cancel()
		db.Close()
		return p.fail("Failed to set up server: %w", err)
	}

	p.warmer = scheduler.NewWarmer(svc, cfg.WarmSchedule, p.logger)
	if err := p.warmer.Start(ctx); err != nil {
		cancel()
		db.Close()
		return p.fail("Failed to start warmer: %w", err)
	}

	p.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	p.logger.Info("starting pikausage-server",
		"addr", cfg.Listen,
		"database", cfg.DBPath,
		"agent_roots", cfg.AgentRoots,
		"auth", len(cfg.APIKeys) > 0,
	)
	if p.svcLogger != nil {
		p.svcLogger.Infof("pikausage-server listening on %s", cfg.Listen)
	}

	go func() {
		if err := p.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("server failed", "error", err)
			if p.svcLogger != nil {
				p.svcLogger.Errorf("server failed: %v", err)
			}
		}
	}()

	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.warmer != nil {
		p.warmer.Stop()
	}

	var err error
	if p.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = p.srv.Shutdown(ctx)
	}
	if p.db != nil {
		err = errors.Join(err, p.db.Close())
	}

	p.logger.Info("pikausage-server stopped")
	return err
}

func (p *program) buildHandler(cfg *config.Config, db *database.DB) (http.Handler, *usage.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	table, err := cfg.PricingTable()
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	svc, err := usage.NewService(usage.Options{
		Roots:    cfg.AgentRoots,
		Location: loc,
		Table:    table,
		Workers:  cfg.Scan.Workers,
		MaxAge:   cfg.CacheMaxAge,
		Metrics:  usage.NewMetrics(reg),
		Journal:  db,
		Logger:   p.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	sessionMgr := scs.New()
	sessionMgr.Store = sqlite3store.New(db.DB)
	sessionMgr.Lifetime = cfg.SessionLifetime
	sessionMgr.Cookie.Secure = false // Set to true in production with HTTPS
	sessionMgr.Cookie.SameSite = http.SameSiteLaxMode

	authMw := auth.NewMiddleware(cfg.APIKeys, sessionMgr)
	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	h := handlers.New(svc, db, authMw, cfg.RefreshDebounce, p.logger, version)

	protected := func(fn http.HandlerFunc) http.Handler {
		return limiter.Limit(authMw.RequireAuth(fn))
	}

	mux := http.NewServeMux()

	// Usage routes (session or API key)
	mux.Handle("GET /usage", protected(h.Usage))
	mux.Handle("POST /usage/refresh", protected(h.Refresh))
	mux.Handle("GET /usage/diagnostics", protected(h.Diagnostics))
	mux.Handle("GET /usage/scans", protected(h.Scans))

	// Session routes
	mux.Handle("POST /login", limiter.Limit(http.HandlerFunc(h.Login)))
	mux.Handle("POST /logout", authMw.RequireAuth(http.HandlerFunc(h.Logout)))

	// Public routes
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	var handler http.Handler = sessionMgr.LoadAndSave(mux)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.Logging(p.logger)(handler)

	return handler, svc, nil
}

func (p *program) fail(format string, err error) error {
	wrapped := fmt.Errorf(format, err)
	p.logger.Error(wrapped.Error())
	if p.svcLogger != nil {
		p.svcLogger.Error(wrapped)
	}
	return wrapped
}
