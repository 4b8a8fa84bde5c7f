package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type ViolationRecorded struct {
	EventID    string          `json:"event_id"`
	Plate      string          `json:"plate"`
	Amount     decimal.Decimal `json:"amount"`
	Balance    decimal.Decimal `json:"balance"`
	Evidence   string          `json:"evidence,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
