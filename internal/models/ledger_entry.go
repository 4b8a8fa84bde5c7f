package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrEmptyPlate is returned when a plate normalizes to the empty string.
var ErrEmptyPlate = errors.New("plate must not be empty")

// NormalizePlate canonicalizes a raw plate string: trimmed, uppercased,
// inner whitespace collapsed. The normalized form is the ledger key.
func NormalizePlate(raw string) (string, error) {
	p := strings.ToUpper(strings.TrimSpace(raw))
	p = strings.Join(strings.Fields(p), " ")
	if p == "" {
		return "", ErrEmptyPlate
	}
	return p, nil
}

// LedgerEntry is the full ledger state for one vehicle: its running
// balance, the timestamp of its most recent fine, and the event history.
// An entry exists only once a first fine has been accepted for the plate.
type LedgerEntry struct {
	Plate string `json:"plate"`
	// Balance is the outstanding amount, never negative.
	Balance decimal.Decimal `json:"balance"`
	// LastEventTime is the timestamp of the most recent FINE event.
	// Payments do not move it; it anchors the debounce window.
	LastEventTime time.Time `json:"last_event_time"`
	// History holds every event for the plate in append order
	// (oldest first) as stored; read projections reverse it.
	History []Event `json:"history"`
}

// Clone returns a deep copy so callers can project or reorder the
// history without touching stored state.
func (e *LedgerEntry) Clone() *LedgerEntry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.History = append([]Event(nil), e.History...)
	return &cp
}

// VehicleSummary is one row of the recent-violations listing.
type VehicleSummary struct {
	Plate        string          `json:"plate"`
	LastFineTime time.Time       `json:"last_fine_time"`
	LastEvidence string          `json:"last_evidence,omitempty"`
	TotalFined   decimal.Decimal `json:"total_fined"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	Balance      decimal.Decimal `json:"balance"`
}

// Summarize folds an entry's history into its listing row.
func (e *LedgerEntry) Summarize() VehicleSummary {
	s := VehicleSummary{Plate: e.Plate, Balance: e.Balance, TotalFined: decimal.Zero, TotalPaid: decimal.Zero}
	for _, ev := range e.History {
		switch ev.Kind {
		case EventFine:
			s.TotalFined = s.TotalFined.Add(ev.Amount)
			if ev.Timestamp.After(s.LastFineTime) || s.LastFineTime.IsZero() {
				s.LastFineTime = ev.Timestamp
				s.LastEvidence = ev.Evidence
			}
		case EventPayment:
			s.TotalPaid = s.TotalPaid.Add(ev.Amount)
		}
	}
	return s
}
