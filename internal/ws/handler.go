// Package ws provides the WebSocket conversation transport. A browser holds
// one connection per call, streams transcribed utterances up and receives the
// reply text to synthesize. Session semantics are identical to the HTTP
// webhook; a call may even mix the two transports.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/goquant/otcvoice/internal/conversation"
	"github.com/goquant/otcvoice/internal/domain"
	"github.com/goquant/otcvoice/internal/session"
	"github.com/goquant/otcvoice/internal/store"
)

// wsMessage represents WebSocket message structure in both directions.
type wsMessage struct {
	Type    string `json:"type"`
	CallID  string `json:"call_id,omitempty"`
	Content string `json:"content,omitempty"`
}

// Handler handles WebSocket-based conversations.
type Handler struct {
	sessions      *session.Store
	engine        *conversation.Engine
	ledger        store.Ledger
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket conversation handler.
func NewHandler(sessions *session.Store, engine *conversation.Engine, ledger store.Ledger, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		sessions:      sessions,
		engine:        engine,
		ledger:        ledger,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
// A `call_id` query parameter resumes an existing conversation; without one a
// fresh call is started and greeted.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "call ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		callID = uuid.NewString()
		h.sessions.Put(domain.NewSession(callID))
		slog.Info("New call started over WebSocket", "call_id", callID, "ip", r.RemoteAddr)
	}

	if err := h.writeJSON(ws, wsMessage{Type: "greeting", CallID: callID, Content: conversation.Greeting}); err != nil {
		slog.Debug("Failed to send greeting", "error", err, "call_id", callID)
		return
	}

	h.readLoop(ctx, ws, callID)
	slog.Info("WebSocket call ended", "call_id", callID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, callID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "call_id", callID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "call_id", callID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			if writeErr := h.writeJSON(ws, wsMessage{Type: "error", Content: "invalid payload"}); writeErr != nil {
				slog.Debug("Failed to send error frame", "error", writeErr, "call_id", callID)
			}
			continue
		}

		switch msg.Type {
		case "utterance":
			reply := h.respond(ctx, callID, msg.Content)
			if err := h.writeJSON(ws, wsMessage{Type: "reply", CallID: callID, Content: reply}); err != nil {
				slog.Debug("Failed to send reply", "error", err, "call_id", callID)
				return
			}
		case "ping":
			if err := h.writeJSON(ws, wsMessage{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case "bye":
			slog.Info("Call terminate requested", "call_id", callID)
			return
		default:
			slog.Debug("Ignoring unknown message type", "type", msg.Type, "call_id", callID)
		}
	}
}

// respond runs one utterance through the engine inside the session's store
// critical section, and records the order when the turn completes one.
func (h *Handler) respond(ctx context.Context, callID, utterance string) string {
	var reply string
	var completed *domain.Order
	h.sessions.Update(callID, func(s *domain.Session) {
		prev := s.State
		reply = h.engine.Respond(ctx, s, utterance)
		if prev != domain.StateCompleted && s.State == domain.StateCompleted {
			completed = domain.OrderFromSession(s)
		}
	})

	if completed != nil && h.ledger != nil {
		go func() {
			recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.ledger.RecordOrder(recordCtx, completed); err != nil {
				slog.Error("Failed to record order", "error", err, "order_id", completed.ID, "call_id", callID)
				return
			}
			slog.Info("Order recorded", "order_id", completed.ID, "call_id", callID)
		}()
	}

	return reply
}

func (h *Handler) writeJSON(ws *websocket.Conn, v wsMessage) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
