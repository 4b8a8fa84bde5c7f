// Package postgres provides the shared-database LedgerStore backend.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	interfaces "github.com/platewatch/speeding-violation-ledger/internal/interfaces"
	"github.com/platewatch/speeding-violation-ledger/internal/models"
	"github.com/platewatch/speeding-violation-ledger/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS vehicles (
	plate           TEXT PRIMARY KEY,
	balance         NUMERIC NOT NULL,
	last_event_time TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	seq       BIGSERIAL PRIMARY KEY,
	id        TEXT NOT NULL UNIQUE,
	plate     TEXT NOT NULL REFERENCES vehicles(plate),
	kind      TEXT NOT NULL,
	amount    NUMERIC NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	evidence  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_plate_seq ON events(plate, seq);
`

type PostgresLedgerStore struct {
	db *sql.DB
}

// New wraps an open connection pool and migrates the schema.
func New(db *sql.DB) (*PostgresLedgerStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate postgres schema: %w", err)
	}
	return &PostgresLedgerStore{db: db}, nil
}

// Open dials the database at dsn and migrates the schema.
func Open(dsn string) (*PostgresLedgerStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying connection pool.
func (p *PostgresLedgerStore) Close() error {
	return p.db.Close()
}

func (p *PostgresLedgerStore) GetEntry(ctx context.Context, plate string) (*models.LedgerEntry, error) {
	// a repeatable-read transaction keeps the balance row and the history
	// it was derived from on one snapshot; a fine committed between the
	// two reads must not show up in only one of them
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read for %s: %w", plate, err)
	}
	defer tx.Rollback()

	entry, err := getEntryHead(ctx, tx, plate)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT id, kind, amount, timestamp, evidence FROM events WHERE plate = $1 ORDER BY seq`, plate)
	if err != nil {
		return nil, fmt.Errorf("query events for %s: %w", plate, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ev     models.Event
			kind   string
			amount string
			ts     time.Time
		)
		if err := rows.Scan(&ev.ID, &kind, &amount, &ts, &ev.Evidence); err != nil {
			return nil, fmt.Errorf("scan event for %s: %w", plate, err)
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse stored amount for %s: %w", plate, err)
		}
		ev.Kind = models.EventKind(kind)
		ev.Amount = amt
		ev.Timestamp = ts.UTC()
		entry.History = append(entry.History, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events for %s: %w", plate, err)
	}
	return entry, nil
}

func (p *PostgresLedgerStore) AppendEvent(ctx context.Context, plate string, ev models.Event) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append for %s: %w", plate, err)
	}
	defer tx.Rollback()

	var (
		balance   = decimal.Zero
		lastEvent = ev.Timestamp
	)
	var (
		storedBalance string
		storedLast    time.Time
	)
	err = tx.QueryRowContext(ctx,
		`SELECT balance, last_event_time FROM vehicles WHERE plate = $1 FOR UPDATE`, plate).
		Scan(&storedBalance, &storedLast)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first fine for this plate
	case err != nil:
		return fmt.Errorf("query vehicle %s: %w", plate, err)
	default:
		balance, err = decimal.NewFromString(storedBalance)
		if err != nil {
			return fmt.Errorf("parse stored balance for %s: %w", plate, err)
		}
		lastEvent = storedLast.UTC()
	}
	balance = balance.Add(ev.Delta())
	if ev.Kind == models.EventFine {
		lastEvent = ev.Timestamp
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vehicles (plate, balance, last_event_time) VALUES ($1, $2, $3)
		 ON CONFLICT (plate) DO UPDATE SET balance = EXCLUDED.balance, last_event_time = EXCLUDED.last_event_time`,
		plate, balance.String(), lastEvent.UTC()); err != nil {
		return fmt.Errorf("upsert vehicle %s: %w", plate, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, plate, kind, amount, timestamp, evidence) VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, plate, string(ev.Kind), ev.Amount.String(), ev.Timestamp.UTC(), ev.Evidence); err != nil {
		return fmt.Errorf("insert event for %s: %w", plate, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append for %s: %w", plate, err)
	}
	return nil
}

func (p *PostgresLedgerStore) ListEntries(ctx context.Context) ([]*models.LedgerEntry, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT plate FROM vehicles`)
	if err != nil {
		return nil, fmt.Errorf("query vehicles: %w", err)
	}
	defer rows.Close()

	var plates []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		plates = append(plates, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vehicles: %w", err)
	}

	entries := make([]*models.LedgerEntry, 0, len(plates))
	for _, plate := range plates {
		entry, err := p.GetEntry(ctx, plate)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (p *PostgresLedgerStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEntryHead(ctx context.Context, q querier, plate string) (*models.LedgerEntry, error) {
	var (
		balance string
		last    time.Time
	)
	err := q.QueryRowContext(ctx,
		`SELECT balance, last_event_time FROM vehicles WHERE plate = $1`, plate).Scan(&balance, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query vehicle %s: %w", plate, err)
	}
	bal, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse stored balance for %s: %w", plate, err)
	}
	return &models.LedgerEntry{Plate: plate, Balance: bal, LastEventTime: last.UTC()}, nil
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
