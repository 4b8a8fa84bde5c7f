// Package poller runs the recurring camera cycle: fetch an image from
// the configured capture endpoint, run the detector, and feed any
// observation into the ledger. One cycle runs at a time; a cycle that
// overruns the interval delays the next tick rather than overlapping.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	interfaces "github.com/platewatch/speeding-violation-ledger/internal/interfaces"
	"github.com/platewatch/speeding-violation-ledger/internal/ledger"
	"github.com/platewatch/speeding-violation-ledger/internal/metrics"
)

// maxImageBytes bounds a single capture download.
const maxImageBytes = 10 << 20

// Config holds the poller settings.
type Config struct {
	// URL is the camera capture endpoint fetched every cycle.
	URL string
	// Interval between cycles.
	Interval time.Duration
	// FineAmount overrides the engine default when positive.
	FineAmount decimal.Decimal
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("camera url is required")
	}
	if c.Interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

type Poller struct {
	cfg      Config
	client   *http.Client
	detector interfaces.Detector
	ledger   *ledger.Ledger
	log      *slog.Logger
}

func New(cfg Config, det interfaces.Detector, l *ledger.Ledger, log *slog.Logger) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		cfg:      cfg,
		client:   &http.Client{Timeout: 30 * time.Second},
		detector: det,
		ledger:   l,
		log:      log.With("component", "poller"),
	}, nil
}

// Run loops until ctx is cancelled. Cycle failures are logged and the
// loop continues on its interval; only shutdown stops it.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("starting", "url", p.cfg.URL, "interval", p.cfg.Interval.String())
	// first capture happens at startup, not one interval in
	p.cycle(ctx)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("stopping")
			return nil
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	metrics.IncPollerCycle()
	image, err := p.fetch(ctx)
	if err != nil {
		metrics.IncPollerFailure()
		p.log.Warn("capture fetch failed", "err", err)
		return
	}
	obs, err := p.detector.Detect(ctx, image)
	if err != nil {
		metrics.IncPollerFailure()
		p.log.Warn("detection failed", "err", err)
		return
	}
	if obs == nil {
		p.log.Debug("no plate in capture")
		return
	}
	// the plate lock is only taken inside RecordViolation, after all
	// network and detection work is done
	res, err := p.ledger.RecordViolation(ctx, obs.Plate, time.Now().UTC(), ledger.ViolationOptions{
		Amount:   p.cfg.FineAmount,
		Evidence: obs.Evidence,
	})
	if err != nil {
		metrics.IncPollerFailure()
		p.log.Error("record violation failed", "plate", obs.Plate, "err", err)
		return
	}
	p.log.Info("cycle complete", "plate", obs.Plate, "status", string(res.Status))
}

func (p *Poller) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build capture request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch capture: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capture endpoint returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read capture body: %w", err)
	}
	return body, nil
}
