package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphummel/hwportal/internal/config"
	"github.com/tphummel/hwportal/internal/db"
	"github.com/tphummel/hwportal/internal/handlers"
	"github.com/tphummel/hwportal/internal/metrics"
	"github.com/tphummel/hwportal/internal/middleware"
	"github.com/tphummel/hwportal/internal/seed"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

// newMux registers every route. Each one is wrapped in metrics.Middleware
// under its own pattern so the path label stays bounded.
func newMux(h *handlers.Handler, cfg config.Server, metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(pattern string, hd http.Handler) {
		mux.Handle(pattern, metrics.Middleware(pattern, hd))
	}
	admin := func(f http.HandlerFunc) http.Handler { return middleware.Auth(cfg.Token, f) }
	cors := middleware.CORS(cfg.AllowOrigins)

	// Health, metrics and docs: no auth
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /openapi.yaml", h.OpenAPISpec)
	mux.HandleFunc("GET /docs", handlers.Docs)

	// Portal inventory routes: no auth, callable from the browser client
	handle("GET /shecodes/inventory/projectstatus", cors(http.HandlerFunc(h.ProjectStatus)))
	handle("POST /shecodes/inventory/checkincheckout", cors(http.HandlerFunc(h.CheckInCheckOut)))
	mux.Handle("OPTIONS /shecodes/", cors(http.NotFoundHandler()))

	// Hardware and project administration: Bearer token auth required
	handle("POST /api/v1/hardware", admin(h.CreateHardware))
	handle("GET /api/v1/hardware", admin(h.ListHardware))
	handle("GET /api/v1/hardware/{id}", admin(h.GetHardware))
	handle("PUT /api/v1/hardware/{id}", admin(h.UpdateHardware))
	handle("DELETE /api/v1/hardware/{id}", admin(h.DeleteHardware))
	handle("POST /api/v1/projects", admin(h.CreateProject))
	handle("GET /api/v1/projects/{id}", admin(h.GetProject))
	handle("POST /api/v1/projects/{id}/users", admin(h.AddProjectUser))
	handle("GET /api/v1/projects/{id}/transactions", admin(h.ListTransactions))

	return mux
}

func skipLogging(r *http.Request) bool {
	return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
}

func main() {
	if err := config.LoadEnvFile(); err != nil {
		log.Fatal(err)
	}
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal(err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	if cfg.SeedPath != "" {
		if _, err := seed.LoadFile(database, cfg.SeedPath, slog.Default()); err != nil {
			log.Fatalf("failed to seed database: %v", err)
		}
	}

	metrics.Register(prometheus.DefaultRegisterer, database)

	h := &handlers.Handler{DB: database, Version: version, Commit: commit}
	mux := newMux(h, cfg, metrics.Handler(prometheus.DefaultGatherer))
	handler := middleware.RequestLogger(slog.Default(), skipLogging, mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", srv.Addr, "version", version, "commit", commit)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	if err := database.Close(); err != nil {
		slog.Error("database close", "error", err)
	}
	slog.Info("server stopped")
}
