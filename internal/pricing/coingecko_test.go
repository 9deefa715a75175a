package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCoinGecko_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "bitcoin" {
			t.Errorf("Expected ids=bitcoin, got %q", got)
		}
		if got := r.URL.Query().Get("vs_currencies"); got != "usd" {
			t.Errorf("Expected vs_currencies=usd, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"bitcoin":{"usd":65123.45}}`)); err != nil {
			t.Errorf("Failed to write response: %v", err)
		}
	}))
	defer srv.Close()

	g := NewCoinGecko(srv.URL, 2*time.Second, DefaultFallbackPrice)
	price, err := g.Lookup(context.Background(), "OKX", "BITCOIN")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if price != 65123.45 {
		t.Errorf("Expected price 65123.45, got %v", price)
	}
}

func TestCoinGecko_UnknownCoinFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{}`)); err != nil {
			t.Errorf("Failed to write response: %v", err)
		}
	}))
	defer srv.Close()

	g := NewCoinGecko(srv.URL, 2*time.Second, 1234.5)
	price, err := g.Lookup(context.Background(), "Bybit", "OBSCURECOIN")
	if err != nil {
		t.Fatalf("Expected fallback, got error: %v", err)
	}
	if price != 1234.5 {
		t.Errorf("Expected fallback price 1234.5, got %v", price)
	}
}

func TestCoinGecko_BadStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewCoinGecko(srv.URL, 2*time.Second, DefaultFallbackPrice)
	if _, err := g.Lookup(context.Background(), "OKX", "BTC"); err == nil {
		t.Error("Expected error on non-200 status")
	}
}

func TestCoinGecko_DecodeFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(`not json at all`)); err != nil {
			t.Errorf("Failed to write response: %v", err)
		}
	}))
	defer srv.Close()

	g := NewCoinGecko(srv.URL, 2*time.Second, DefaultFallbackPrice)
	if _, err := g.Lookup(context.Background(), "OKX", "BTC"); err == nil {
		t.Error("Expected error on undecodable body")
	}
}

func TestCoinGecko_TimeoutIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	g := NewCoinGecko(srv.URL, 20*time.Millisecond, DefaultFallbackPrice)
	if _, err := g.Lookup(context.Background(), "OKX", "BTC"); err == nil {
		t.Error("Expected error when upstream exceeds timeout")
	}
}

func TestCoinID(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"BTC", "bitcoin"},
		{"BITCOIN", "bitcoin"},
		{"ETH", "ethereum"},
		{"ETHEREUM", "ethereum"},
		{"SOL", "solana"},
		{"DOGECOIN", "dogecoin"},
	}

	for _, tt := range tests {
		if got := coinID(tt.symbol); got != tt.want {
			t.Errorf("coinID(%q) = %q, want %q", tt.symbol, got, tt.want)
		}
	}
}
