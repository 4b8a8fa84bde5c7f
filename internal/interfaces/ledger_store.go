package interfaces

import (
	"context"

	"github.com/platewatch/speeding-violation-ledger/internal/models"
)

// LedgerStore persists per-plate ledger state. Implementations must make
// AppendEvent all-or-nothing: the event and the derived entry state
// (balance, last fine time) commit together or not at all. Callers
// serialize same-plate read-modify-write; stores never see two in-flight
// mutations for one plate.
type LedgerStore interface {
	// GetEntry returns the entry for a normalized plate, or
	// storage.ErrNotFound if the plate has never been fined.
	GetEntry(ctx context.Context, plate string) (*models.LedgerEntry, error)
	// AppendEvent appends an event to the plate's history, creating the
	// entry on the plate's first fine. The balance delta follows the
	// event kind; only FINE events advance the entry's last event time.
	AppendEvent(ctx context.Context, plate string, ev models.Event) error
	// ListEntries returns every entry in the store.
	ListEntries(ctx context.Context) ([]*models.LedgerEntry, error)
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
