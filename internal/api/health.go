package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goquant/otcvoice/internal/session"
	"github.com/goquant/otcvoice/internal/store"
)

// HealthHandler handles the detailed health check endpoint.
type HealthHandler struct {
	ledger   store.Ledger
	sessions *session.Store
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(ledger store.Ledger, sessions *session.Store) *HealthHandler {
	return &HealthHandler{ledger: ledger, sessions: sessions}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"status":          "healthy",
		"checks":          map[string]string{"api": "ok"},
		"active_sessions": h.sessions.Len(),
	}
	statusCode := http.StatusOK

	if err := h.ledger.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		status["checks"].(map[string]string)["ledger"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		status["checks"].(map[string]string)["ledger"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
