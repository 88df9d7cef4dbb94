package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/whiteboard/realtime/internal/api"
	"github.com/whiteboard/realtime/internal/compaction"
	"github.com/whiteboard/realtime/internal/config"
	"github.com/whiteboard/realtime/internal/persistence"
	"github.com/whiteboard/realtime/internal/ratelimit"
	"github.com/whiteboard/realtime/internal/registry"
	"github.com/whiteboard/realtime/internal/router"
	"github.com/whiteboard/realtime/internal/ws"
)

func main() {
	cfg := config.Load()
	logger := log.Default()

	store, err := persistence.NewSQLiteAdapter(cfg.PersistPath)
	if err != nil {
		log.Fatalf("failed to initialize persistence: %v", err)
	}
	defer store.Close()

	reg := registry.New(store, registry.Config{
		HistoryMax: cfg.HistoryMax,
		Logger:     logger,
	})

	rt := router.New(reg, logger)
	hub := ws.NewHub()

	limiters := ratelimit.NewClientLimiters(cfg.RateLimit, cfg.RateBurst)

	wsServer := &ws.Server{
		Hub:           hub,
		Router:        rt,
		QueueSize:     cfg.QueueSize,
		Limiters:      limiters,
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        logger,
	}

	tick := compaction.New(reg, compaction.Config{Interval: cfg.SaveInterval}, logger)
	tick.Start()

	apiHandler := api.New(hub, reg, store, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.ServeWs)
	mux.HandleFunc("/health", apiHandler.HealthHandler)
	mux.HandleFunc("/api/stats", apiHandler.StatsHandler)

	handler := corsMiddleware(cfg.AllowedOrigin, mux)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("shutting down server...")
		tick.SweepNow()
		tick.Stop()
		limiters.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Printf("board server starting on :%s", cfg.Port)
	log.Printf("persistence: %s", cfg.PersistPath)
	log.Println("endpoints:")
	log.Println("  - websocket: /ws?identity={name}")
	log.Println("  - health:    GET /health")
	log.Println("  - stats:     GET /api/stats")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("listen: ", err)
	}
}

func corsMiddleware(allowedOrigin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
