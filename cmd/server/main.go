// GoQuant OTC voice desk server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goquant/otcvoice/internal/api"
	"github.com/goquant/otcvoice/internal/config"
	"github.com/goquant/otcvoice/internal/conversation"
	"github.com/goquant/otcvoice/internal/middleware"
	"github.com/goquant/otcvoice/internal/pricing"
	"github.com/goquant/otcvoice/internal/session"
	"github.com/goquant/otcvoice/internal/store"
	"github.com/goquant/otcvoice/internal/ws"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	ledger, err := store.NewSQLite(cfg.OrderDBPath)
	if err != nil {
		slog.Error("Failed to initialize order ledger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			slog.Error("Failed to close order ledger", "error", closeErr)
		}
	}()

	if err := ledger.Ping(context.Background()); err != nil {
		slog.Error("Order ledger health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Order ledger connected", "path", cfg.OrderDBPath)

	gateway := pricing.NewCoinGecko(cfg.Price.BaseURL, cfg.Price.Timeout, cfg.Price.FallbackPrice)
	quotes := pricing.NewCache(gateway, cfg.Price.CacheTTL)
	engine := conversation.NewEngine(quotes)
	sessions := session.NewStore()

	// Initialize handlers.
	baseHandler := api.NewHandler(sessions, engine, ledger)
	callHandler := api.NewCallHandler(baseHandler)
	healthHandler := api.NewHealthHandler(ledger, sessions)
	wsHandler := ws.NewHandler(sessions, engine, ledger, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	callHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/call", wsHandler.ServeHTTP)

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket calls stay open for the whole conversation
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start quote cache sweeper.
	quotes.StartSweeper(ctx, cfg.Price.SweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
