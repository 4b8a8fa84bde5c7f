// Package ledger implements the violation ledger: fine accrual with
// debouncing, payment application with overpayment protection, and the
// read-side projections over a pluggable store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	interfaces "github.com/platewatch/speeding-violation-ledger/internal/interfaces"
	"github.com/platewatch/speeding-violation-ledger/internal/metrics"
	"github.com/platewatch/speeding-violation-ledger/internal/models"
	modelevents "github.com/platewatch/speeding-violation-ledger/internal/models/events"
	"github.com/platewatch/speeding-violation-ledger/internal/storage"
)

const (
	// DefaultListLimit bounds ListRecent when the caller passes no limit.
	DefaultListLimit = 5

	DefaultViolationTopic = "violation.recorded"
	DefaultPaymentTopic   = "payment.received"
)

// Config carries the tunables of the engine. Zero values fall back to
// sensible defaults in NewLedger.
type Config struct {
	// Buffer is the debounce cooldown between fines for one plate.
	Buffer time.Duration
	// DefaultFine is charged when a violation carries no explicit amount.
	DefaultFine decimal.Decimal
	// PlatePattern, when non-nil, must match normalized plates.
	PlatePattern *regexp.Regexp
	// Publisher receives an event per accepted mutation; nil disables publishing.
	Publisher interfaces.EventPublisher
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	ViolationTopic string
	PaymentTopic   string
}

// Ledger serializes same-plate mutations with a per-plate mutex so the
// debounce check and the balance check never act on a stale read.
// Different plates proceed in parallel.
type Ledger struct {
	store  interfaces.LedgerStore
	cfg    Config
	policy DebouncePolicy
	log    *slog.Logger

	muMap map[string]*sync.Mutex // per-plate locks
	mapMu sync.Mutex             // protects muMap itself
}

// NewLedger creates the engine on top of a store implementation
// (memory, sqlite, postgres, ...).
func NewLedger(store interfaces.LedgerStore, cfg Config) *Ledger {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 10 * time.Second
	}
	if cfg.DefaultFine.Sign() <= 0 {
		cfg.DefaultFine = decimal.NewFromInt(100)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ViolationTopic == "" {
		cfg.ViolationTopic = DefaultViolationTopic
	}
	if cfg.PaymentTopic == "" {
		cfg.PaymentTopic = DefaultPaymentTopic
	}
	return &Ledger{
		store:  store,
		cfg:    cfg,
		policy: DebouncePolicy{Buffer: cfg.Buffer},
		log:    cfg.Logger,
		muMap:  make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) getPlateLock(plate string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[plate]; !exists {
		l.muMap[plate] = &sync.Mutex{}
	}
	return l.muMap[plate]
}

// ViolationOptions tweak a single RecordViolation call.
type ViolationOptions struct {
	// Amount overrides the configured default fine when positive.
	Amount decimal.Decimal
	// Evidence is an opaque capture reference stored with the event.
	Evidence string
}

// RecordViolation applies one observation to the ledger. The entry is
// created on first sight; otherwise the debounce policy gates a further
// fine. A rejected observation mutates nothing. The returned error is
// non-nil only for storage failures.
func (l *Ledger) RecordViolation(ctx context.Context, plate string, now time.Time, opts ViolationOptions) (ViolationResult, error) {
	p, err := models.NormalizePlate(plate)
	if err != nil {
		return l.invalidViolation(err.Error()), nil
	}
	if l.cfg.PlatePattern != nil && !l.cfg.PlatePattern.MatchString(p) {
		return l.invalidViolation(fmt.Sprintf("plate %q does not match required format", p)), nil
	}
	amount := l.cfg.DefaultFine
	if !opts.Amount.IsZero() {
		if opts.Amount.Sign() < 0 || !opts.Amount.IsInteger() {
			return l.invalidViolation("fine amount must be a positive whole number"), nil
		}
		amount = opts.Amount
	}
	now = now.UTC()

	mu := l.getPlateLock(p)
	mu.Lock()
	defer mu.Unlock()

	entry, err := l.store.GetEntry(ctx, p)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		l.log.Error("load ledger entry failed", "plate", p, "op", "record_violation", "err", err)
		return ViolationResult{}, fmt.Errorf("load ledger entry for %s: %w", p, err)
	}

	if entry != nil {
		if d := l.policy.Evaluate(entry.LastEventTime, now); !d.Accept {
			l.log.Info("violation debounced", "plate", p, "wait_seconds", d.WaitSeconds)
			metrics.IncViolation(string(ViolationWait))
			return ViolationResult{Status: ViolationWait, Plate: p, Balance: entry.Balance, WaitSeconds: d.WaitSeconds}, nil
		}
	}

	ev := models.Event{
		ID:        uuid.NewString(),
		Kind:      models.EventFine,
		Amount:    amount,
		Timestamp: now,
		Evidence:  opts.Evidence,
	}
	if err := l.store.AppendEvent(ctx, p, ev); err != nil {
		l.log.Error("append fine failed", "plate", p, "op", "record_violation", "err", err)
		return ViolationResult{}, fmt.Errorf("append fine for %s: %w", p, err)
	}

	status := ViolationAdded
	balance := amount
	if entry != nil {
		status = ViolationUpdated
		balance = entry.Balance.Add(amount)
	}
	metrics.IncViolation(string(status))
	l.publish(l.cfg.ViolationTopic, modelevents.ViolationRecorded{
		EventID:    ev.ID,
		Plate:      p,
		Amount:     amount,
		Balance:    balance,
		Evidence:   opts.Evidence,
		OccurredAt: now,
	})
	l.log.Info("violation recorded", "plate", p, "status", string(status), "balance", balance.String())
	return ViolationResult{Status: status, Plate: p, Balance: balance}, nil
}

// RecordViolationImage runs the image through the detector and feeds any
// observation into RecordViolation. A nil result means no plate was found.
func (l *Ledger) RecordViolationImage(ctx context.Context, det interfaces.Detector, image []byte, now time.Time, amount decimal.Decimal) (*ViolationResult, error) {
	obs, err := det.Detect(ctx, image)
	if err != nil {
		l.log.Warn("plate detection failed", "err", err)
		return nil, nil
	}
	if obs == nil {
		return nil, nil
	}
	res, err := l.RecordViolation(ctx, obs.Plate, now, ViolationOptions{Amount: amount, Evidence: obs.Evidence})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// RecordPayment applies a payment against a plate's balance. Payments
// that would overdraw the balance are rejected in full; a payment never
// touches the debounce window.
func (l *Ledger) RecordPayment(ctx context.Context, plate string, amount decimal.Decimal, now time.Time) (PaymentResult, error) {
	p, err := models.NormalizePlate(plate)
	if err != nil {
		return PaymentResult{Status: PaymentInvalid, Reason: err.Error()}, nil
	}
	if amount.Sign() <= 0 || !amount.IsInteger() {
		metrics.IncPayment(string(PaymentInvalid))
		return PaymentResult{Status: PaymentInvalid, Plate: p, Reason: "payment amount must be a positive whole number"}, nil
	}
	now = now.UTC()

	mu := l.getPlateLock(p)
	mu.Lock()
	defer mu.Unlock()

	entry, err := l.store.GetEntry(ctx, p)
	if errors.Is(err, storage.ErrNotFound) {
		metrics.IncPayment(string(PaymentNoRecord))
		return PaymentResult{Status: PaymentNoRecord, Plate: p}, nil
	}
	if err != nil {
		l.log.Error("load ledger entry failed", "plate", p, "op", "record_payment", "err", err)
		return PaymentResult{}, fmt.Errorf("load ledger entry for %s: %w", p, err)
	}
	if entry.Balance.IsZero() {
		metrics.IncPayment(string(PaymentNoDues))
		return PaymentResult{Status: PaymentNoDues, Plate: p, Balance: entry.Balance}, nil
	}
	if amount.GreaterThan(entry.Balance) {
		metrics.IncPayment(string(PaymentExcess))
		return PaymentResult{Status: PaymentExcess, Plate: p, Balance: entry.Balance}, nil
	}

	ev := models.Event{
		ID:        uuid.NewString(),
		Kind:      models.EventPayment,
		Amount:    amount,
		Timestamp: now,
	}
	if err := l.store.AppendEvent(ctx, p, ev); err != nil {
		l.log.Error("append payment failed", "plate", p, "op", "record_payment", "err", err)
		return PaymentResult{}, fmt.Errorf("append payment for %s: %w", p, err)
	}

	remaining := entry.Balance.Sub(amount)
	metrics.IncPayment(string(PaymentPaid))
	l.publish(l.cfg.PaymentTopic, modelevents.PaymentReceived{
		EventID:    ev.ID,
		Plate:      p,
		Amount:     amount,
		Remaining:  remaining,
		OccurredAt: now,
	})
	l.log.Info("payment recorded", "plate", p, "amount", amount.String(), "remaining", remaining.String())
	return PaymentResult{Status: PaymentPaid, Plate: p, Balance: remaining}, nil
}

// GetVehicle returns a projection of one plate's entry with the history
// newest-first, optionally restricted to events at or after since.
// Returns storage.ErrNotFound for unseen plates.
func (l *Ledger) GetVehicle(ctx context.Context, plate string, since *time.Time) (*models.LedgerEntry, error) {
	p, err := models.NormalizePlate(plate)
	if err != nil {
		return nil, err
	}
	entry, err := l.store.GetEntry(ctx, p)
	if err != nil {
		return nil, err
	}
	projected := entry.Clone()
	if since != nil {
		cutoff := since.UTC()
		filtered := projected.History[:0]
		for _, ev := range projected.History {
			if !ev.Timestamp.Before(cutoff) {
				filtered = append(filtered, ev)
			}
		}
		projected.History = filtered
	}
	// stores return history in append order (oldest first); reversing
	// keeps ties on equal timestamps in newest-appended-first order
	h := projected.History
	for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
		h[i], h[j] = h[j], h[i]
	}
	return projected, nil
}

// ListRecent returns per-plate summaries for plates with at least one
// fine, most recently fined first, truncated to limit.
func (l *Ledger) ListRecent(ctx context.Context, limit int) ([]models.VehicleSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	entries, err := l.store.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	summaries := make([]models.VehicleSummary, 0, len(entries))
	for _, entry := range entries {
		s := entry.Summarize()
		if s.LastFineTime.IsZero() {
			continue
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastFineTime.After(summaries[j].LastFineTime)
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Ping reports store health.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

func (l *Ledger) invalidViolation(reason string) ViolationResult {
	metrics.IncViolation(string(ViolationInvalid))
	return ViolationResult{Status: ViolationInvalid, Reason: reason}
}

func (l *Ledger) publish(topic string, event any) {
	if l.cfg.Publisher == nil {
		return
	}
	if err := l.cfg.Publisher.Publish(topic, event); err != nil {
		l.log.Warn("publish event failed", "topic", topic, "err", err)
	}
}
