package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultFallbackPrice is quoted when the upstream responds cleanly but does
// not know the requested coin. Keeping the conversation moving with a
// placeholder quote is a deliberate product choice for the simulated desk.
const DefaultFallbackPrice = 65123.45

// CoinGecko looks up USD quotes from the CoinGecko simple-price API.
// The exchange argument is informational only: CoinGecko aggregates across
// venues, so every exchange gets the same quote.
type CoinGecko struct {
	client        *http.Client
	baseURL       string
	fallbackPrice float64
}

// NewCoinGecko creates a gateway against baseURL with a bounded per-lookup
// timeout. A slow upstream fails the lookup rather than stalling the caller.
func NewCoinGecko(baseURL string, timeout time.Duration, fallbackPrice float64) *CoinGecko {
	return &CoinGecko{
		client:        &http.Client{Timeout: timeout},
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		fallbackPrice: fallbackPrice,
	}
}

// Lookup fetches the current USD price for symbol. Network errors, non-200
// statuses and undecodable bodies are returned as errors; a well-formed
// response that simply doesn't contain the coin yields the fallback price.
func (g *CoinGecko) Lookup(ctx context.Context, exchange, symbol string) (float64, error) {
	coinID := coinID(symbol)
	slog.Debug("Fetching price", "exchange", exchange, "symbol", symbol, "coin_id", coinID)

	reqURL := fmt.Sprintf("%s/api/v3/simple/price?ids=%s&vs_currencies=usd", g.baseURL, url.QueryEscape(coinID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build price request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch price data: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("Failed to close price response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price API returned status %d", resp.StatusCode)
	}

	var priceData map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&priceData); err != nil {
		return 0, fmt.Errorf("decode price response: %w", err)
	}

	if price, ok := priceData[coinID]["usd"]; ok {
		return price, nil
	}

	slog.Warn("Price not found upstream, quoting fallback", "symbol", symbol, "fallback", g.fallbackPrice)
	return g.fallbackPrice, nil
}

// coinID maps a spoken symbol to a CoinGecko coin id. Speech recognition
// produces full words as often as tickers, so both are accepted for the
// majors; anything else is passed through lower-cased.
func coinID(symbol string) string {
	id := strings.ToLower(symbol)
	switch {
	case strings.Contains(id, "btc") || strings.Contains(id, "bitcoin"):
		return "bitcoin"
	case strings.Contains(id, "eth") || strings.Contains(id, "ethereum"):
		return "ethereum"
	case strings.Contains(id, "sol") || strings.Contains(id, "solana"):
		return "solana"
	default:
		return id
	}
}
