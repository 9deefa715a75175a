package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a recorded simulated OTC order, created when a caller accepts
// the confirmation summary. Amounts are captured as decimals so the ledger
// stores exactly what was confirmed, not a float approximation.
type Order struct {
	ID             string          `json:"id"`
	CallID         string          `json:"call_id"`
	Exchange       string          `json:"exchange"`
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	LimitPrice     decimal.Decimal `json:"limit_price"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	CreatedAt      time.Time       `json:"created_at"`
}

// OrderFromSession builds the order record for a session that has just been
// confirmed. The caller is responsible for only invoking this on a session
// whose order fields are fully populated.
func OrderFromSession(s *Session) *Order {
	return &Order{
		ID:             uuid.NewString(),
		CallID:         s.CallID,
		Exchange:       s.Exchange,
		Symbol:         s.Symbol,
		Quantity:       decimal.NewFromFloat(s.Quantity),
		LimitPrice:     decimal.NewFromFloat(s.LimitPrice),
		ReferencePrice: decimal.NewFromFloat(s.ReferencePrice),
		CreatedAt:      time.Now(),
	}
}
