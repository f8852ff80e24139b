package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/db"
	"github.com/tphummel/rackops/internal/handlers"
	"github.com/tphummel/rackops/internal/metrics"
	"github.com/tphummel/rackops/internal/middleware"
	"github.com/tphummel/rackops/internal/sim"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

// config is the service configuration read from the environment.
type config struct {
	Token            string
	DBPath           string
	Port             string
	Session          string
	CatalogPath      string
	TickInterval     time.Duration
	AutosaveInterval time.Duration
	LogLevel         slog.Level
}

// loadConfig reads service configuration from environment variables and
// applies defaults. It returns an error when a required variable is absent
// or a value does not parse.
func loadConfig() (config, error) {
	cfg := config{
		Token:            os.Getenv("API_TOKEN"),
		DBPath:           envOr("DB_PATH", "./rackops.db"),
		Port:             envOr("PORT", "8080"),
		Session:          envOr("SESSION_ID", "default"),
		CatalogPath:      os.Getenv("CATALOG_PATH"),
		TickInterval:     100 * time.Millisecond,
		AutosaveInterval: 30 * time.Second,
	}
	if cfg.Token == "" {
		return cfg, fmt.Errorf("API_TOKEN environment variable is required")
	}

	var err error
	if cfg.TickInterval, err = envDuration("TICK_INTERVAL", cfg.TickInterval); err != nil {
		return cfg, err
	}
	if cfg.TickInterval <= 0 {
		return cfg, fmt.Errorf("TICK_INTERVAL must be positive")
	}
	if cfg.AutosaveInterval, err = envDuration("AUTOSAVE_INTERVAL", cfg.AutosaveInterval); err != nil {
		return cfg, err
	}
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
			return cfg, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(path)
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	engine, err := sim.New(sim.DefaultConfig(), cat, logger)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.Load(context.Background(), database, cfg.Session); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Fatalf("failed to load session %q: %v", cfg.Session, err)
		}
		logger.Info("starting new game", "session", cfg.Session)
	}

	reg := prometheus.NewRegistry()
	metrics.Register(reg, engine)

	h := &handlers.Handler{
		Engine:  engine,
		DB:      database,
		Session: cfg.Session,
		Version: version,
		Commit:  commit,
	}
	mux := h.Routes(cfg.Token, metrics.Middleware)

	// Prometheus metrics, no auth
	mux.Handle("GET /metrics", metrics.Handler(reg))

	skip := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
	}
	handler := middleware.RequestLogger(logger, skip, mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		runLoop(ctx, engine, database, cfg, logger)
	}()

	go func() {
		logger.Info("listening", "port", cfg.Port, "session", cfg.Session, "version", version)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")
	<-loopDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	if err := engine.Save(shutdownCtx, database, cfg.Session); err != nil {
		logger.Error("final save failed", "session", cfg.Session, "error", err)
	}
	if err := database.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}
	logger.Info("server stopped")
}
