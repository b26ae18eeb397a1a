package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/promtun/promtun/internal/config"
	"github.com/promtun/promtun/internal/handlers"
	"github.com/promtun/promtun/internal/logging"
	"github.com/promtun/promtun/internal/promproxy"
)

func main() {
	config.Load()
	logging.Init()

	defs, err := config.LoadDatasources(config.Cfg.DatasourceFile)
	if err != nil {
		log.Fatalf("Datasource config: %v", err)
	}

	registry, err := promproxy.NewRegistry(defs)
	if err != nil {
		log.Fatalf("Datasource init: %v", err)
	}
	handlers.Reg = registry
	log.Printf("Loaded %d datasource(s) from %s", len(defs), config.Cfg.DatasourceFile)

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health (service level, never opens tunnels)
	r.Get("/health", handlers.HealthCheck)

	// Server logs
	r.Get("/logs", handlers.GetServerLogs)
	r.Delete("/logs", handlers.ClearServerLogs)

	r.Route("/api", func(r chi.Router) {
		r.Get("/datasources", handlers.ListDatasources)

		r.Route("/ds/{name}", func(r chi.Router) {
			r.Post("/query", handlers.RunQueries)
			r.Get("/health", handlers.DatasourceHealth)

			// Discovery
			r.Get("/metrics", handlers.ListMetrics)
			r.Get("/labels", handlers.ListLabelNames)
			r.Get("/label/{label}/values", handlers.ListLabelValues)

			// Generic passthrough
			r.HandleFunc("/resource/*", handlers.ResourceProxy)
		})
	})

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownTimeout, err := time.ParseDuration(config.Cfg.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = 10 * time.Second
	}

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	registry.DisposeAll()
}
