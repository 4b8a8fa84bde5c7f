package ledger

import "github.com/shopspring/decimal"

// ViolationStatus enumerates the outcomes of recording an observation.
type ViolationStatus string

const (
	// ViolationAdded: first fine ever for the plate; an entry was created.
	ViolationAdded ViolationStatus = "added"
	// ViolationUpdated: a further fine was appended to an existing entry.
	ViolationUpdated ViolationStatus = "updated"
	// ViolationWait: debounced; nothing was recorded.
	ViolationWait ViolationStatus = "wait"
	// ViolationInvalid: the plate or amount failed validation; nothing was recorded.
	ViolationInvalid ViolationStatus = "invalid"
)

// ViolationResult is the tagged outcome of RecordViolation. Balance is
// set for added/updated (the new balance) and for wait (the unchanged
// balance); WaitSeconds only for wait; Reason only for invalid.
type ViolationResult struct {
	Status      ViolationStatus `json:"status"`
	Plate       string          `json:"plate,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
	WaitSeconds int64           `json:"wait_seconds,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// PaymentStatus enumerates the outcomes of applying a payment.
type PaymentStatus string

const (
	// PaymentNoRecord: the plate has no ledger entry.
	PaymentNoRecord PaymentStatus = "no_record"
	// PaymentNoDues: the balance is already zero.
	PaymentNoDues PaymentStatus = "no_dues"
	// PaymentExcess: the amount exceeds the balance; nothing was applied.
	PaymentExcess PaymentStatus = "excess"
	// PaymentPaid: the payment was applied in full.
	PaymentPaid PaymentStatus = "paid"
	// PaymentInvalid: the plate or amount failed validation; nothing was applied.
	PaymentInvalid PaymentStatus = "invalid"
)

// PaymentResult is the tagged outcome of RecordPayment. Balance carries
// the remaining balance for paid, and the unchanged balance for excess.
type PaymentResult struct {
	Status  PaymentStatus   `json:"status"`
	Plate   string          `json:"plate,omitempty"`
	Balance decimal.Decimal `json:"balance"`
	Reason  string          `json:"reason,omitempty"`
}
