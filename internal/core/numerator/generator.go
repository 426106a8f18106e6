package numerator

import (
	"context"
	"time"
)

// Generator generates sequential ledger numbers.
// Implementations live in the infrastructure layer.
type Generator interface {
	// GetNextNumber generates the next number for cfg in the given period.
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextNumber moves a sequence (used by data migrations).
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}
