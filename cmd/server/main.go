package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/manpreetbhatti/showroom/internal/api"
	"github.com/manpreetbhatti/showroom/internal/catalog"
	"github.com/manpreetbhatti/showroom/internal/config"
	"github.com/manpreetbhatti/showroom/internal/db"
	"github.com/manpreetbhatti/showroom/internal/logging"
	"github.com/manpreetbhatti/showroom/internal/metrics"
	"github.com/manpreetbhatti/showroom/internal/reporter"
	"github.com/manpreetbhatti/showroom/internal/room"
	"github.com/manpreetbhatti/showroom/internal/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init("showroom", "info", true)
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.Init("showroom", cfg.LogLevel, cfg.LogPretty)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer database.Close()

	if cfg.SeedPath != "" {
		if err := seed(database, cfg.SeedPath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.SeedPath).Msg("failed to seed catalog")
		}
	}

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := room.NewRegistry(cfg.RoomCapacity)
	hub := ws.NewHub(registry, ws.Options{
		Shards:         cfg.HubShards,
		AllowedOrigins: cfg.Origins(),
		Logger:         &logger,
	})
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	occupancy := reporter.New(hub, cfg.RoomCapacity, reporter.Config{Interval: cfg.ReportInterval})
	occupancy.Start()

	apiHandler := api.New(hub, database)

	mux := http.NewServeMux()
	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	})
	mux.HandleFunc("/health", apiHandler.HealthHandler)
	mux.HandleFunc("/api/stats", apiHandler.StatsHandler)
	mux.HandleFunc("/api/stores", apiHandler.StoresRouter)
	mux.HandleFunc("/api/stores/", apiHandler.StoresRouter)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           corsMiddleware(cfg.Origins(), mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Str("database", cfg.DBPath).
		Int("room_capacity", cfg.RoomCapacity).
		Int("hub_shards", cfg.HubShards).
		Msg("showroom server starting")
	log.Info().Msg("endpoints: /ws?room={storeId}, GET /health, GET /api/stats, GET/POST /api/stores, " +
		"GET/DELETE /api/stores/{id}, PATCH /api/stores/{id}/models/{modelId}, GET /metrics")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
		}
		stop()
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	occupancy.Stop()
	<-hubDone
}

func seed(database *db.Database, path string) error {
	stores, err := catalog.LoadSeed(path)
	if err != nil {
		return err
	}
	inserted, err := database.SeedStores(context.Background(), stores)
	if err != nil {
		return err
	}
	log.Info().Int("stores", len(stores)).Int("inserted", inserted).Msg("catalog seeded")
	return nil
}

func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", strings.Join([]string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		}, ", "))
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
