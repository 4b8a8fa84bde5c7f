package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind tags a ledger event as either a fine or a payment.
type EventKind string

const (
	EventFine    EventKind = "FINE"
	EventPayment EventKind = "PAYMENT"
)

// Event is a single immutable record in a vehicle's ledger history.
// Amount is always positive; the kind determines the balance delta
// (+Amount for FINE, -Amount for PAYMENT).
type Event struct {
	ID        string          `json:"id"`
	Kind      EventKind       `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	Evidence  string          `json:"evidence,omitempty"` // opaque reference to a capture, empty for manual entries
}

// Delta returns the signed balance contribution of the event.
func (e Event) Delta() decimal.Decimal {
	if e.Kind == EventPayment {
		return e.Amount.Neg()
	}
	return e.Amount
}
