// Package api provides HTTP handlers for the OTC voice desk API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/goquant/otcvoice/internal/conversation"
	"github.com/goquant/otcvoice/internal/session"
	"github.com/goquant/otcvoice/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	sessions *session.Store
	engine   *conversation.Engine
	ledger   store.Ledger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(sessions *session.Store, engine *conversation.Engine, ledger store.Ledger) *Handler {
	return &Handler{
		sessions: sessions,
		engine:   engine,
		ledger:   ledger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
