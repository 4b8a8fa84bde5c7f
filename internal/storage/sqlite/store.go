// Package sqlite provides the embedded durable LedgerStore backend.
// SQLite is opened in WAL mode; whole-store writes go through database
// transactions so an event and its entry update commit together.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	interfaces "github.com/platewatch/speeding-violation-ledger/internal/interfaces"
	"github.com/platewatch/speeding-violation-ledger/internal/models"
	"github.com/platewatch/speeding-violation-ledger/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS vehicles (
	plate           TEXT PRIMARY KEY,
	balance         TEXT NOT NULL,
	last_event_time TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT NOT NULL UNIQUE,
	plate     TEXT NOT NULL REFERENCES vehicles(plate),
	kind      TEXT NOT NULL,
	amount    TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	evidence  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_plate_seq ON events(plate, seq);
`

// SQLiteLedgerStore implements interfaces.LedgerStore on an embedded
// SQLite database. Use ":memory:" as the path for a throwaway store.
type SQLiteLedgerStore struct {
	db *sql.DB
}

// New opens (or creates) the database at path and migrates the schema.
func New(path string) (*SQLiteLedgerStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return &SQLiteLedgerStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteLedgerStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteLedgerStore) GetEntry(ctx context.Context, plate string) (*models.LedgerEntry, error) {
	// one transaction so the balance row and the history it was derived
	// from come off the same snapshot; a fine committed between the two
	// reads must not show up in only one of them
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin read for %s: %w", plate, err)
	}
	defer tx.Rollback()

	entry, err := getEntryTx(ctx, tx, plate)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT id, kind, amount, timestamp, evidence FROM events WHERE plate = ? ORDER BY seq`, plate)
	if err != nil {
		return nil, fmt.Errorf("query events for %s: %w", plate, err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		entry.History = append(entry.History, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events for %s: %w", plate, err)
	}
	return entry, nil
}

func (s *SQLiteLedgerStore) AppendEvent(ctx context.Context, plate string, ev models.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append for %s: %w", plate, err)
	}
	defer tx.Rollback()

	entry, err := getEntryTx(ctx, tx, plate)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	balance := decimal.Zero
	lastEvent := ev.Timestamp
	if entry != nil {
		balance = entry.Balance
		lastEvent = entry.LastEventTime
	}
	balance = balance.Add(ev.Delta())
	if ev.Kind == models.EventFine {
		lastEvent = ev.Timestamp
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vehicles (plate, balance, last_event_time) VALUES (?, ?, ?)
		 ON CONFLICT(plate) DO UPDATE SET balance = excluded.balance, last_event_time = excluded.last_event_time`,
		plate, balance.String(), storage.FormatTime(lastEvent)); err != nil {
		return fmt.Errorf("upsert vehicle %s: %w", plate, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, plate, kind, amount, timestamp, evidence) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, plate, string(ev.Kind), ev.Amount.String(), storage.FormatTime(ev.Timestamp), ev.Evidence); err != nil {
		return fmt.Errorf("insert event for %s: %w", plate, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append for %s: %w", plate, err)
	}
	return nil
}

func (s *SQLiteLedgerStore) ListEntries(ctx context.Context) ([]*models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT plate FROM vehicles`)
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
	for _, p := range plates {
		entry, err := s.GetEntry(ctx, p)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *SQLiteLedgerStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEntryTx(ctx context.Context, q querier, plate string) (*models.LedgerEntry, error) {
	var (
		balance string
		lastTS  string
	)
	err := q.QueryRowContext(ctx,
		`SELECT balance, last_event_time FROM vehicles WHERE plate = ?`, plate).Scan(&balance, &lastTS)
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
	last, err := storage.ParseTime(lastTS)
	if err != nil {
		return nil, err
	}
	return &models.LedgerEntry{Plate: plate, Balance: bal, LastEventTime: last}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (models.Event, error) {
	var (
		ev     models.Event
		kind   string
		amount string
		ts     string
	)
	if err := row.Scan(&ev.ID, &kind, &amount, &ts, &ev.Evidence); err != nil {
		return models.Event{}, fmt.Errorf("scan event: %w", err)
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return models.Event{}, fmt.Errorf("parse stored amount: %w", err)
	}
	t, err := storage.ParseTime(ts)
	if err != nil {
		return models.Event{}, err
	}
	ev.Kind = models.EventKind(kind)
	ev.Amount = amt
	ev.Timestamp = t
	return ev, nil
}

var _ interfaces.LedgerStore = (*SQLiteLedgerStore)(nil)
