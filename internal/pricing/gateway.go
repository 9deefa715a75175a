// Package pricing provides quote lookup for the conversation engine.
package pricing

import "context"

// Gateway returns a current quote for a symbol on an exchange. It is treated
// as an untrusted, possibly slow dependency: implementations must bound how
// long a lookup can take, and any failure is recoverable by the caller.
type Gateway interface {
	Lookup(ctx context.Context, exchange, symbol string) (float64, error)
}
