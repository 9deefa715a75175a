// Package domain contains core domain types for the OTC voice desk.
package domain

import (
	"time"
)

// State identifies where a conversation currently is. The engine dispatches
// on it and is the only component allowed to change it.
type State string

const (
	StateGreeting         State = "greeting"
	StateExchangeSelected State = "exchange_selected"
	StateSymbolSelected   State = "symbol_selected"
	StateAwaitingQuantity State = "awaiting_quantity"
	StateAwaitingPrice    State = "awaiting_price"
	StateConfirming       State = "confirming"
	StateCompleted        State = "completed"
)

// Session holds the accumulated state of one conversation/call.
// Quantity and LimitPrice use 0 as "not yet provided"; the desk never
// accepts a genuine zero-quantity or zero-price order.
type Session struct {
	CallID         string            `json:"call_id"`
	State          State             `json:"state"`
	Exchange       string            `json:"exchange"`
	Symbol         string            `json:"symbol"`
	ReferencePrice float64           `json:"reference_price"`
	Quantity       float64           `json:"quantity"`
	LimitPrice     float64           `json:"limit_price"`
	Context        map[string]string `json:"context"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewSession creates a fresh session in the greeting state.
func NewSession(callID string) *Session {
	now := time.Now()
	return &Session{
		CallID:    callID,
		State:     StateGreeting,
		Context:   make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ReadyToConfirm returns true once both order fields have been supplied.
func (s *Session) ReadyToConfirm() bool {
	return s.Quantity > 0 && s.LimitPrice > 0
}

// ResetOrder clears the order fields so they can be re-collected.
// Exchange and symbol survive a rejection.
func (s *Session) ResetOrder() {
	s.Quantity = 0
	s.LimitPrice = 0
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}
