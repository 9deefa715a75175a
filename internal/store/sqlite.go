package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goquant/otcvoice/internal/domain"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed order ledger.
func NewSQLite(dbPath string) (Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	ledger := &SQLiteLedger{db: db}
	if err := ledger.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return ledger, nil
}

func (l *SQLiteLedger) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		call_id TEXT NOT NULL,
		exchange TEXT NOT NULL,
		symbol TEXT NOT NULL,
		quantity TEXT NOT NULL,
		limit_price TEXT NOT NULL,
		reference_price TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_call ON orders(call_id);
	CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);
	`
	if _, err := l.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// RecordOrder appends a confirmed order to the ledger.
// Retries with exponential backoff on SQLITE_BUSY, which can occur when
// several calls confirm orders at the same moment.
func (l *SQLiteLedger) RecordOrder(ctx context.Context, order *domain.Order) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := l.insertOrder(ctx, order)
		if err == nil {
			return nil
		}

		if isSQLiteConflict(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // exponential backoff: 100ms, 200ms, 400ms
			slog.Debug("RecordOrder failed with SQLITE_BUSY, retrying",
				"order_id", order.ID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("record order %s: %w", order.ID, err)
	}

	return nil
}

func (l *SQLiteLedger) insertOrder(ctx context.Context, order *domain.Order) error {
	query := `
	INSERT INTO orders (id, call_id, exchange, symbol, quantity, limit_price, reference_price, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := l.db.ExecContext(ctx, query,
		order.ID, order.CallID, order.Exchange, order.Symbol,
		order.Quantity.String(), order.LimitPrice.String(),
		order.ReferencePrice.String(), order.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// ListOrders returns the most recently recorded orders, newest first.
func (l *SQLiteLedger) ListOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	query := `
		SELECT id, call_id, exchange, symbol, quantity, limit_price, reference_price, created_at
		FROM orders ORDER BY created_at DESC, id LIMIT ?`

	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	return scanOrders(rows)
}

// OrdersForCall returns every order recorded for one call, newest first.
func (l *SQLiteLedger) OrdersForCall(ctx context.Context, callID string) ([]*domain.Order, error) {
	query := `
		SELECT id, call_id, exchange, symbol, quantity, limit_price, reference_price, created_at
		FROM orders WHERE call_id = ? ORDER BY created_at DESC, id`

	rows, err := l.db.QueryContext(ctx, query, callID)
	if err != nil {
		return nil, fmt.Errorf("query orders for call: %w", err)
	}
	return scanOrders(rows)
}

func scanOrders(rows *sql.Rows) ([]*domain.Order, error) {
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close order rows", "error", closeErr)
		}
	}()

	var orders []*domain.Order
	for rows.Next() {
		var order domain.Order
		var quantity, limitPrice, referencePrice string
		var createdAt int64

		if err := rows.Scan(
			&order.ID, &order.CallID, &order.Exchange, &order.Symbol,
			&quantity, &limitPrice, &referencePrice, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}

		var err error
		if order.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("parse stored quantity: %w", err)
		}
		if order.LimitPrice, err = decimal.NewFromString(limitPrice); err != nil {
			return nil, fmt.Errorf("parse stored limit price: %w", err)
		}
		if order.ReferencePrice, err = decimal.NewFromString(referencePrice); err != nil {
			return nil, fmt.Errorf("parse stored reference price: %w", err)
		}
		order.CreatedAt = time.Unix(createdAt, 0)
		orders = append(orders, &order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// isSQLiteConflict reports whether err is a SQLITE_BUSY or "database is
// locked" concurrency error that warrants a retry.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
