package interfaces

import (
	"context"

	"github.com/platewatch/speeding-violation-ledger/internal/models"
)

// Detector extracts a plate observation from a captured image.
// A nil observation with a nil error means no plate was found;
// the ledger takes no action in that case.
type Detector interface {
	Detect(ctx context.Context, image []byte) (*models.Observation, error)
}
