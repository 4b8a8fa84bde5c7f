package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentReceived struct {
	EventID    string          `json:"event_id"`
	Plate      string          `json:"plate"`
	Amount     decimal.Decimal `json:"amount"`
	Remaining  decimal.Decimal `json:"remaining"`
	OccurredAt time.Time       `json:"occurred_at"`
}
