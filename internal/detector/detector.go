// Package detector extracts plate observations from captured images.
//
// Real OCR is out of scope; the package models detection as a prioritized
// list of extraction strategies evaluated in order, short-circuiting on
// the first candidate that matches the plate token pattern. The shipped
// strategies read plate text carried in image metadata (JPEG comment
// segments) or plain-text capture payloads, which is what the camera
// simulator and test fixtures produce. OCR backends slot in as further
// strategies.
package detector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"regexp"
	"strings"

	interfaces "github.com/platewatch/speeding-violation-ledger/internal/interfaces"
	"github.com/platewatch/speeding-violation-ledger/internal/models"
)

// DefaultTokenPattern matches the plate shapes the cameras are
// configured for: two or three letters, two to four digits, optional
// letter suffix, with an optional dash or space between the groups.
var DefaultTokenPattern = regexp.MustCompile(`\b[A-Z]{2,3}[- ]?[0-9]{2,4}[A-Z]{0,2}\b`)

// Strategy is one way of pulling candidate plate text from an image.
type Strategy interface {
	Name() string
	// Extract returns candidate text and whether the strategy applied
	// to this image at all.
	Extract(image []byte) (string, bool)
}

// Chain evaluates strategies in priority order and returns the first
// token matching the pattern.
type Chain struct {
	strategies []Strategy
	pattern    *regexp.Regexp
	log        *slog.Logger
}

// NewChain builds a detector from strategies in priority order. A nil
// pattern falls back to DefaultTokenPattern.
func NewChain(log *slog.Logger, pattern *regexp.Regexp, strategies ...Strategy) *Chain {
	if pattern == nil {
		pattern = DefaultTokenPattern
	}
	if log == nil {
		log = slog.Default()
	}
	if len(strategies) == 0 {
		strategies = []Strategy{JPEGComment{}, TextPayload{}}
	}
	return &Chain{strategies: strategies, pattern: pattern, log: log}
}

// Detect runs the chain. A nil observation with nil error means no
// strategy produced a plate-shaped token.
func (c *Chain) Detect(ctx context.Context, image []byte) (*models.Observation, error) {
	if len(image) == 0 {
		return nil, nil
	}
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, ok := s.Extract(image)
		if !ok {
			continue
		}
		token := c.pattern.FindString(strings.ToUpper(text))
		if token == "" {
			continue
		}
		c.log.Debug("plate detected", "strategy", s.Name(), "plate", token)
		return &models.Observation{Plate: token, Evidence: EvidenceRef(image)}, nil
	}
	return nil, nil
}

// EvidenceRef derives the opaque capture reference stored with a fine:
// a truncated digest of the image bytes.
func EvidenceRef(image []byte) string {
	sum := sha256.Sum256(image)
	return "sha256:" + hex.EncodeToString(sum[:])[:16]
}

var _ interfaces.Detector = (*Chain)(nil)
