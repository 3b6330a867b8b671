package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/internal/bus"
	"chat-relay/internal/config"
	"chat-relay/internal/handlers"
	"chat-relay/internal/presence"
	"chat-relay/internal/registry"
	"chat-relay/internal/relay"
	"chat-relay/internal/session"
	"chat-relay/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the pub/sub bus
	redisBus := bus.NewRedisBus(cfg.Redis, cfg.Bus.Channel)
	defer redisBus.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisBus.Ping(pingCtx); err != nil {
		logger.Error("Redis unreachable at %s, running single-instance: %v", cfg.Redis.Addr, err)
	}
	pingCancel()

	// Initialize core components
	reg := registry.New()
	directory := session.NewDirectory()
	broadcaster := presence.New(reg, directory)
	fanout := relay.New(redisBus, reg, directory)

	// A failed subscription leaves the relay in degraded single-instance
	// mode; publishes fall back to local delivery.
	if err := fanout.Start(ctx); err != nil {
		logger.Error("Bus subscription failed, cross-instance fanout disabled: %v", err)
	}

	// Initialize handlers
	wsHandlers := handlers.NewWebSocketHandlers(reg, directory, fanout, broadcaster)
	httpHandlers := handlers.NewHTTPHandlers(reg, directory)

	// Setup routes
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
	mux.HandleFunc("/rooms/", httpHandlers.RoomPresence)
	mux.HandleFunc("/healthz", httpHandlers.Health)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("🚀 Relay instance %q started on http://localhost%s", cfg.Bus.Instance, cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	logger.Info("🔗 Bus channel: %s (redis %s)", cfg.Bus.Channel, cfg.Redis.Addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
