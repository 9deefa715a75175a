// Package conversation implements the per-call conversation state machine
// that walks a caller from exchange selection to a confirmed simulated order.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/goquant/otcvoice/internal/domain"
	"github.com/goquant/otcvoice/internal/pricing"
)

// Greeting is the fixed opener spoken when a call starts. The browser
// speech-synthesis layer consumes this text verbatim.
const Greeting = "Hello! Welcome to GoQuant's OTC trading service. To get started, please choose an exchange from the following options: OKX, Bybit, Deribit, or Binance."

// Venues lists the selectable exchanges in priority order. Matching is a
// case-insensitive substring scan; when an utterance mentions more than one
// venue, the one appearing earliest in the text wins.
var Venues = []string{"OKX", "Bybit", "Deribit", "Binance"}

// priceKeywords anchor the price inside a combined order utterance: the
// number right after one of these words is the price, e.g. "1.5 at 65,000".
var priceKeywords = []string{"price", "at", "for"}

// Engine advances conversation sessions. It is stateless: all per-call state
// lives in the Session passed to Respond, so a single Engine serves every
// concurrent conversation.
type Engine struct {
	prices pricing.Gateway
}

// NewEngine creates an engine backed by the given price gateway.
func NewEngine(prices pricing.Gateway) *Engine {
	return &Engine{prices: prices}
}

// Respond consumes one caller utterance, mutates the session accordingly and
// returns the text to speak back. The caller must hold the session's store
// critical section for the duration of the call.
func (e *Engine) Respond(ctx context.Context, s *domain.Session, utterance string) string {
	input := strings.ToLower(strings.TrimSpace(utterance))

	switch s.State {
	case domain.StateGreeting:
		return e.selectExchange(s, input)
	case domain.StateExchangeSelected:
		return e.selectSymbol(ctx, s, input)
	case domain.StateSymbolSelected:
		return e.collectOrderDetails(s, input)
	case domain.StateAwaitingQuantity:
		return e.collectQuantity(s, input)
	case domain.StateAwaitingPrice:
		return e.collectPrice(s, input)
	case domain.StateConfirming:
		return e.confirm(s, input)
	case domain.StateCompleted:
		return "Your simulated order is already recorded. Please start a new call to place another."
	default:
		// Unreachable with the closed State type, but a corrupt value must
		// recover the conversation rather than crash it.
		slog.Warn("Resetting session with unknown state", "call_id", s.CallID, "state", s.State)
		s.State = domain.StateGreeting
		return "I'm sorry, I seem to have lost track. Let's start over. Which exchange would you like to trade on: OKX, Bybit, Deribit, or Binance?"
	}
}

func (e *Engine) selectExchange(s *domain.Session, input string) string {
	venue, ok := matchVenue(input)
	if !ok {
		return "I didn't catch that. Please choose from: OKX, Bybit, Deribit, or Binance."
	}

	s.Exchange = venue
	s.State = domain.StateExchangeSelected
	return fmt.Sprintf("Great! You've selected %s. Which trading symbol would you like to trade?", venue)
}

func (e *Engine) selectSymbol(ctx context.Context, s *domain.Session, input string) string {
	symbol := strings.ToUpper(input)

	price, err := e.prices.Lookup(ctx, s.Exchange, symbol)
	if err != nil {
		slog.Warn("Price lookup failed", "call_id", s.CallID, "exchange", s.Exchange, "symbol", symbol, "error", err)
		return fmt.Sprintf("Sorry, I couldn't get the price for %s. Please try a different symbol.", symbol)
	}

	s.Symbol = symbol
	s.ReferencePrice = price
	s.State = domain.StateSymbolSelected
	return fmt.Sprintf("The current price for %s on %s is $%.4f. Now, what quantity and price for the order?", symbol, s.Exchange, price)
}

func (e *Engine) collectOrderDetails(s *domain.Session, input string) string {
	quantity, hasQuantity, price, hasPrice := parseOrderDetails(input)

	// A failed parse must never erase a value accepted on an earlier turn.
	if hasQuantity {
		s.Quantity = quantity
	}
	if hasPrice {
		s.LimitPrice = price
	}

	switch {
	case s.ReadyToConfirm():
		s.State = domain.StateConfirming
		return summarize(s)
	case s.Quantity > 0:
		s.State = domain.StateAwaitingPrice
		return "And at what price?"
	case s.LimitPrice > 0:
		s.State = domain.StateAwaitingQuantity
		return "And what quantity?"
	default:
		return "I need the quantity and the price. For example, '1.5 Bitcoin at 65,000 dollars'."
	}
}

func (e *Engine) collectQuantity(s *domain.Session, input string) string {
	quantity, ok := ExtractNumber(input, nil)
	if !ok {
		return "I didn't catch that. How much do you want to trade?"
	}
	s.Quantity = quantity
	s.State = domain.StateConfirming
	return summarize(s)
}

func (e *Engine) collectPrice(s *domain.Session, input string) string {
	price, ok := ExtractNumber(input, nil)
	if !ok {
		return "Sorry, what was the price?"
	}
	s.LimitPrice = price
	s.State = domain.StateConfirming
	return summarize(s)
}

func (e *Engine) confirm(s *domain.Session, input string) string {
	switch {
	case strings.Contains(input, "yes") || strings.Contains(input, "correct"):
		s.State = domain.StateCompleted
		return "Excellent! Your simulated order has been recorded. Thank you for using GoQuant!"
	case strings.Contains(input, "no") || strings.Contains(input, "wrong"):
		// Back to order collection; exchange and symbol survive the rejection.
		s.State = domain.StateSymbolSelected
		s.ResetOrder()
		return "No problem, let's correct it. What quantity and at what price?"
	default:
		return "Please confirm with 'yes' or 'no'."
	}
}

// summarize renders the fixed confirmation template. The four-decimal
// formatting and exact phrasing are consumed verbatim by the speech-synthesis
// frontend; do not reword casually.
func summarize(s *domain.Session) string {
	return fmt.Sprintf("Got it. To confirm, you want to trade %.4f %s at $%.4f per unit on %s. Is that correct?",
		s.Quantity, s.Symbol, s.LimitPrice, s.Exchange)
}

// parseOrderDetails splits one utterance into quantity and price. A number
// immediately after a price keyword is the price; the first number not
// anchored that way is the quantity. A bare number is therefore a quantity
// only, and the price must be introduced by "price", "at" or "for".
func parseOrderDetails(input string) (quantity float64, hasQuantity bool, price float64, hasPrice bool) {
	words := strings.Fields(strings.ReplaceAll(input, ",", ""))
	afterPriceKeyword := false
	for _, word := range words {
		cleaned := strings.Trim(word, ".,!?$%()")
		num, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			afterPriceKeyword = isPriceKeyword(cleaned)
			continue
		}

		switch {
		case afterPriceKeyword && !hasPrice:
			price, hasPrice = num, true
		case !afterPriceKeyword && !hasQuantity:
			quantity, hasQuantity = num, true
		}
		afterPriceKeyword = false
	}
	return quantity, hasQuantity, price, hasPrice
}

func isPriceKeyword(word string) bool {
	for _, kw := range priceKeywords {
		if word == kw {
			return true
		}
	}
	return false
}

// matchVenue finds the venue mentioned earliest in the lower-cased input.
func matchVenue(input string) (string, bool) {
	best := ""
	bestIdx := -1
	for _, venue := range Venues {
		idx := strings.Index(input, strings.ToLower(venue))
		if idx < 0 {
			continue
		}
		if bestIdx == -1 || idx < bestIdx {
			best = venue
			bestIdx = idx
		}
	}
	return best, bestIdx >= 0
}
