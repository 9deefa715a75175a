package pricing

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type cachedQuote struct {
	price     float64
	fetchedAt time.Time
}

// Cache decorates a Gateway with a process-local TTL quote cache so repeated
// symbol lookups within a conversation don't hammer the upstream API.
// Lookup failures are never cached.
type Cache struct {
	next Gateway
	ttl  time.Duration

	mu     sync.RWMutex
	quotes map[string]cachedQuote
}

// NewCache wraps next with a cache whose entries expire after ttl.
func NewCache(next Gateway, ttl time.Duration) *Cache {
	return &Cache{
		next:   next,
		ttl:    ttl,
		quotes: make(map[string]cachedQuote),
	}
}

// Lookup returns a cached quote when fresh, otherwise delegates to the
// wrapped gateway and caches a successful result.
func (c *Cache) Lookup(ctx context.Context, exchange, symbol string) (float64, error) {
	key := quoteKey(exchange, symbol)

	c.mu.RLock()
	q, ok := c.quotes[key]
	c.mu.RUnlock()
	if ok && time.Since(q.fetchedAt) < c.ttl {
		return q.price, nil
	}

	price, err := c.next.Lookup(ctx, exchange, symbol)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.quotes[key] = cachedQuote{price: price, fetchedAt: time.Now()}
	c.mu.Unlock()

	return price, nil
}

// StartSweeper runs a background goroutine that periodically drops expired
// quotes, so a long-running process doesn't accumulate entries for every
// symbol ever asked about. It stops when ctx is cancelled.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Quote cache sweeper started", "interval", interval, "ttl", c.ttl)

		for {
			select {
			case <-ticker.C:
				if evicted := c.sweep(); evicted > 0 {
					slog.Debug("Quote cache sweep", "evicted", evicted)
				}
			case <-ctx.Done():
				slog.Info("Quote cache sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (c *Cache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, q := range c.quotes {
		if time.Since(q.fetchedAt) >= c.ttl {
			delete(c.quotes, key)
			evicted++
		}
	}
	return evicted
}

func quoteKey(exchange, symbol string) string {
	return strings.ToLower(exchange) + ":" + strings.ToUpper(symbol)
}
