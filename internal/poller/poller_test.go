package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewatch/speeding-violation-ledger/internal/detector"
	"github.com/platewatch/speeding-violation-ledger/internal/ledger"
	"github.com/platewatch/speeding-violation-ledger/internal/storage/memory"
)

func newTestPoller(t *testing.T, url string) (*Poller, *ledger.Ledger) {
	t.Helper()
	eng := ledger.NewLedger(memory.NewMemoryLedgerStore(), ledger.Config{Buffer: time.Second})
	p, err := New(Config{URL: url, Interval: 10 * time.Millisecond}, detector.NewChain(nil, nil), eng, nil)
	require.NoError(t, err)
	return p, eng
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{Interval: time.Second}.Validate())
	assert.Error(t, Config{URL: "http://cam"}.Validate())
	assert.NoError(t, Config{URL: "http://cam", Interval: time.Second}.Validate())
}

func TestCycleRecordsObservation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("gate 3 capture: ABC-123 at 92 km/h"))
	}))
	defer srv.Close()

	p, eng := newTestPoller(t, srv.URL)
	p.cycle(context.Background())

	entry, err := eng.GetVehicle(context.Background(), "ABC-123", nil)
	require.NoError(t, err)
	assert.Len(t, entry.History, 1)
	assert.NotEmpty(t, entry.History[0].Evidence)
}

func TestCycleToleratesFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusInternalServerError)
		case 2:
			w.Write([]byte("static, no plate visible"))
		default:
			w.Write([]byte("capture: XYZ-777"))
		}
	}))
	defer srv.Close()

	p, eng := newTestPoller(t, srv.URL)
	ctx := context.Background()
	p.cycle(ctx) // server error
	p.cycle(ctx) // no plate in capture
	p.cycle(ctx) // success

	entry, err := eng.GetVehicle(ctx, "XYZ-777", nil)
	require.NoError(t, err)
	assert.Len(t, entry.History, 1)
}

func TestRunCapturesImmediately(t *testing.T) {
	fetched := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case fetched <- struct{}{}:
		default:
		}
		w.Write([]byte("capture: KA-0123"))
	}))
	defer srv.Close()

	eng := ledger.NewLedger(memory.NewMemoryLedgerStore(), ledger.Config{Buffer: time.Second})
	p, err := New(Config{URL: srv.URL, Interval: time.Hour}, detector.NewChain(nil, nil), eng, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// the first capture must not wait a full interval
	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("no capture before the first interval elapsed")
	}
	cancel()
	require.NoError(t, <-done)

	entry, err := eng.GetVehicle(context.Background(), "KA-0123", nil)
	require.NoError(t, err)
	assert.Len(t, entry.History, 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("capture: DEF-456"))
	}))
	defer srv.Close()

	p, _ := newTestPoller(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}
