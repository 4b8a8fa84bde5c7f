package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewatch/speeding-violation-ledger/internal/models"
	"github.com/platewatch/speeding-violation-ledger/internal/storage"
)

func fine(id string, amount int64, ts time.Time) models.Event {
	return models.Event{ID: id, Kind: models.EventFine, Amount: decimal.NewFromInt(amount), Timestamp: ts}
}

func payment(id string, amount int64, ts time.Time) models.Event {
	return models.Event{ID: id, Kind: models.EventPayment, Amount: decimal.NewFromInt(amount), Timestamp: ts}
}

func TestGetEntryNotFound(t *testing.T) {
	st := NewMemoryLedgerStore()
	_, err := st.GetEntry(context.Background(), "NOPE")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAppendEventDerivesEntryState(t *testing.T) {
	st := NewMemoryLedgerStore()
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, st.AppendEvent(ctx, "KA01", fine("f1", 100, ts)))
	require.NoError(t, st.AppendEvent(ctx, "KA01", fine("f2", 50, ts.Add(time.Minute))))
	require.NoError(t, st.AppendEvent(ctx, "KA01", payment("p1", 120, ts.Add(2*time.Minute))))

	entry, err := st.GetEntry(ctx, "KA01")
	require.NoError(t, err)
	assert.True(t, entry.Balance.Equal(decimal.NewFromInt(30)))
	// payments never advance the last event time
	assert.Equal(t, ts.Add(time.Minute), entry.LastEventTime)
	assert.Len(t, entry.History, 3)
}

func TestGetEntryReturnsIsolatedCopy(t *testing.T) {
	st := NewMemoryLedgerStore()
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, st.AppendEvent(ctx, "KA01", fine("f1", 100, ts)))

	entry, err := st.GetEntry(ctx, "KA01")
	require.NoError(t, err)
	entry.Balance = decimal.NewFromInt(9999)
	entry.History[0].Amount = decimal.NewFromInt(-1)
	entry.History = append(entry.History, fine("rogue", 1, ts))

	fresh, err := st.GetEntry(ctx, "KA01")
	require.NoError(t, err)
	assert.True(t, fresh.Balance.Equal(decimal.NewFromInt(100)))
	require.Len(t, fresh.History, 1)
	assert.True(t, fresh.History[0].Amount.Equal(decimal.NewFromInt(100)))
}

func TestListEntries(t *testing.T) {
	st := NewMemoryLedgerStore()
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, st.AppendEvent(ctx, "AA11", fine("f1", 100, ts)))
	require.NoError(t, st.AppendEvent(ctx, "BB22", fine("f2", 200, ts)))

	entries, err := st.ListEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
