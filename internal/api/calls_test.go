package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goquant/otcvoice/internal/conversation"
	"github.com/goquant/otcvoice/internal/domain"
	"github.com/goquant/otcvoice/internal/session"
	"github.com/goquant/otcvoice/internal/store"
)

type fakeGateway struct {
	price float64
}

func (g *fakeGateway) Lookup(ctx context.Context, exchange, symbol string) (float64, error) {
	return g.price, nil
}

type testEnv struct {
	router   chi.Router
	sessions *session.Store
	ledger   store.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ledger, err := store.NewSQLite(filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	t.Cleanup(func() {
		if err := ledger.Close(); err != nil {
			t.Errorf("Failed to close ledger: %v", err)
		}
	})

	sessions := session.NewStore()
	engine := conversation.NewEngine(&fakeGateway{price: 65123.45})
	handler := NewCallHandler(NewHandler(sessions, engine, ledger))

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	return &testEnv{router: r, sessions: sessions, ledger: ledger}
}

func (e *testEnv) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) say(t *testing.T, callID, utterance string) string {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"call_id": callID, "utterance": utterance})
	w := e.post(t, "/api/webhook", string(payload))
	if w.Code != http.StatusOK {
		t.Fatalf("Webhook returned status %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode webhook response: %v", err)
	}
	return resp["response"]
}

func TestStartCall(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/calls", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["call_id"] == "" {
		t.Error("Expected a call_id")
	}
	if resp["message"] != conversation.Greeting {
		t.Errorf("Expected greeting message, got %q", resp["message"])
	}

	snapshot, ok := env.sessions.Snapshot(resp["call_id"])
	if !ok {
		t.Fatal("Expected session to exist after StartCall")
	}
	if snapshot.State != domain.StateGreeting {
		t.Errorf("Expected greeting state, got %q", snapshot.State)
	}
}

func TestWebhook_MalformedPayload(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/webhook", `{"call_id": 42,`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if env.sessions.Len() != 0 {
		t.Errorf("Malformed payload must not create sessions, got %d", env.sessions.Len())
	}
}

func TestWebhook_UnknownCallIDCreatesSession(t *testing.T) {
	env := newTestEnv(t)

	reply := env.say(t, "never-seen-before", "I want okx")

	if reply != "Great! You've selected OKX. Which trading symbol would you like to trade?" {
		t.Errorf("Unexpected reply: %q", reply)
	}
	snapshot, ok := env.sessions.Snapshot("never-seen-before")
	if !ok {
		t.Fatal("Expected session to be created transparently")
	}
	if snapshot.State != domain.StateExchangeSelected {
		t.Errorf("Expected state exchange_selected, got %q", snapshot.State)
	}
}

func TestWebhook_FullConversationRecordsOrder(t *testing.T) {
	env := newTestEnv(t)
	callID := "call-e2e"

	env.say(t, callID, "okx please")
	reply := env.say(t, callID, "bitcoin")
	if !strings.Contains(reply, "65123.4500") {
		t.Errorf("Expected quoted price in reply, got %q", reply)
	}

	reply = env.say(t, callID, "1.5 at 65000")
	want := "Got it. To confirm, you want to trade 1.5000 BITCOIN at $65000.0000 per unit on OKX. Is that correct?"
	if reply != want {
		t.Errorf("Expected summary %q, got %q", want, reply)
	}

	reply = env.say(t, callID, "yes")
	if !strings.Contains(reply, "order has been recorded") {
		t.Errorf("Unexpected completion reply: %q", reply)
	}

	snapshot, _ := env.sessions.Snapshot(callID)
	if snapshot.State != domain.StateCompleted {
		t.Errorf("Expected completed state, got %q", snapshot.State)
	}

	// The ledger write is asynchronous; poll briefly for it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		orders, err := env.ledger.OrdersForCall(context.Background(), callID)
		if err != nil {
			t.Fatalf("OrdersForCall failed: %v", err)
		}
		if len(orders) == 1 {
			order := orders[0]
			if order.Exchange != "OKX" || order.Symbol != "BITCOIN" {
				t.Errorf("Expected OKX/BITCOIN order, got %s/%s", order.Exchange, order.Symbol)
			}
			if order.Quantity.String() != "1.5" || order.LimitPrice.String() != "65000" {
				t.Errorf("Expected 1.5 @ 65000, got %s @ %s", order.Quantity, order.LimitPrice)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for order to be recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGetCall(t *testing.T) {
	env := newTestEnv(t)
	env.say(t, "call-1", "bybit")

	req := httptest.NewRequest(http.MethodGet, "/api/calls/call-1", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var snapshot domain.Session
	if err := json.NewDecoder(w.Body).Decode(&snapshot); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if snapshot.Exchange != "Bybit" {
		t.Errorf("Expected exchange Bybit, got %q", snapshot.Exchange)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/calls/missing", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown call, got %d", w.Code)
	}
}

func TestListOrders_BadLimit(t *testing.T) {
	env := newTestEnv(t)

	for _, limit := range []string{"0", "-1", "101", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/orders?limit="+limit, nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for limit %q, got %d", limit, w.Code)
		}
	}
}

func TestListOrders_Empty(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
}
