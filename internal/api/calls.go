package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/goquant/otcvoice/internal/conversation"
	"github.com/goquant/otcvoice/internal/domain"
)

// webhookPayload is the utterance envelope posted by the frontend.
type webhookPayload struct {
	CallID    string `json:"call_id"`
	Utterance string `json:"utterance"`
}

// CallHandler handles call lifecycle and webhook endpoints.
type CallHandler struct {
	*Handler
}

// NewCallHandler creates a new call handler.
func NewCallHandler(base *Handler) *CallHandler {
	return &CallHandler{Handler: base}
}

// RegisterRoutes registers call routes.
func (h *CallHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/calls", h.StartCall)
		r.Post("/webhook", h.Webhook)
		r.Get("/calls/{callID}", h.GetCall)
		r.Get("/calls/{callID}/orders", h.CallOrders)
		r.Get("/orders", h.ListOrders)
	})
}

// StartCall begins a new conversation and returns the greeting to speak.
func (h *CallHandler) StartCall(w http.ResponseWriter, r *http.Request) {
	callID := uuid.NewString()
	h.sessions.Put(domain.NewSession(callID))

	slog.Info("New call started", "call_id", callID)

	JSON(w, http.StatusOK, map[string]string{
		"call_id": callID,
		"message": conversation.Greeting,
	})
}

// Webhook consumes one transcribed utterance and returns the reply text.
// An unknown call_id transparently starts a fresh conversation, so the
// frontend can reconnect after losing its state.
func (h *CallHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		Error(w, http.StatusBadRequest, "invalid payload")
		return
	}

	var reply string
	var completed *domain.Order
	h.sessions.Update(payload.CallID, func(s *domain.Session) {
		prev := s.State
		reply = h.engine.Respond(r.Context(), s, payload.Utterance)
		if prev != domain.StateCompleted && s.State == domain.StateCompleted {
			completed = domain.OrderFromSession(s)
		}
	})

	if completed != nil {
		h.recordOrder(completed)
	}

	JSON(w, http.StatusOK, map[string]string{"response": reply})
}

// GetCall returns a snapshot of the conversation state for the frontend.
func (h *CallHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	snapshot, ok := h.sessions.Snapshot(callID)
	if !ok {
		Error(w, http.StatusNotFound, "call not found")
		return
	}

	JSON(w, http.StatusOK, snapshot)
}

// CallOrders returns the orders recorded for one call.
func (h *CallHandler) CallOrders(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	orders, err := h.ledger.OrdersForCall(r.Context(), callID)
	if err != nil {
		slog.Error("Failed to list orders for call", "error", err, "call_id", callID)
		Error(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

// ListOrders returns the most recently recorded simulated orders.
func (h *CallHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			Error(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	orders, err := h.ledger.ListOrders(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list orders", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

// recordOrder persists a confirmed order asynchronously with its own timeout
// so a slow ledger never delays the spoken reply. Failures are logged only;
// the caller has already been told the order was recorded.
func (h *Handler) recordOrder(order *domain.Order) {
	if h.ledger == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.ledger.RecordOrder(ctx, order); err != nil {
			slog.Error("Failed to record order", "error", err, "order_id", order.ID, "call_id", order.CallID)
			return
		}
		slog.Info("Order recorded",
			"order_id", order.ID,
			"call_id", order.CallID,
			"exchange", order.Exchange,
			"symbol", order.Symbol)
	}()
}
