package memory

import (
	"context"
	"sync"

	interfaces "github.com/platewatch/speeding-violation-ledger/internal/interfaces"
	"github.com/platewatch/speeding-violation-ledger/internal/models"
	"github.com/platewatch/speeding-violation-ledger/internal/storage"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// It keeps one entry per plate and is safe for concurrent use. Intended for
// tests and local development; it does not survive a restart.
type MemoryLedgerStore struct {
	mu      sync.RWMutex
	entries map[string]*models.LedgerEntry
}

// NewMemoryLedgerStore creates an empty in-memory store.
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		entries: make(map[string]*models.LedgerEntry),
	}
}

func (m *MemoryLedgerStore) GetEntry(ctx context.Context, plate string) (*models.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[plate]
	if !ok {
		return nil, storage.ErrNotFound
	}
	// return a copy so callers can't mutate stored state
	return entry.Clone(), nil
}

func (m *MemoryLedgerStore) AppendEvent(ctx context.Context, plate string, ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[plate]
	if !ok {
		entry = &models.LedgerEntry{Plate: plate}
		m.entries[plate] = entry
	}
	entry.Balance = entry.Balance.Add(ev.Delta())
	if ev.Kind == models.EventFine {
		entry.LastEventTime = ev.Timestamp
	}
	entry.History = append(entry.History, ev)
	return nil
}

func (m *MemoryLedgerStore) ListEntries(ctx context.Context) ([]*models.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.LedgerEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, entry.Clone())
	}
	return out, nil
}

func (m *MemoryLedgerStore) Ping(ctx context.Context) error {
	return nil
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore.
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
