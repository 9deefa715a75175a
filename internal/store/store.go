// Package store provides persistence for recorded simulated orders.
//
// Only accepted orders are persisted. Conversation sessions stay in memory by
// design and are never written here.
package store

import (
	"context"

	"github.com/goquant/otcvoice/internal/domain"
)

// Ledger defines the interface for the simulated-order record book.
type Ledger interface {
	// RecordOrder appends a confirmed order to the ledger.
	RecordOrder(ctx context.Context, order *domain.Order) error

	// ListOrders returns the most recently recorded orders, newest first.
	ListOrders(ctx context.Context, limit int) ([]*domain.Order, error)

	// OrdersForCall returns every order recorded for one call, newest first.
	OrdersForCall(ctx context.Context, callID string) ([]*domain.Order, error)

	// Ping verifies the ledger is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying database.
	Close() error
}
