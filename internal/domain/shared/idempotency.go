package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed delivery IDs so redelivered webhooks are skipped
type IdempotencyStore interface {
	// MarkProcessed claims eventID for ttl.
	// Returns true if the ID was newly claimed, false if it was already claimed.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// IsProcessed checks if an ID is currently claimed
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// Release forgets eventID so a failed delivery can be retried
	Release(ctx context.Context, eventID string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for delivery dedupe
type IdempotencyConfig struct {
	// TTL is how long a delivery ID stays claimed. Default: 24 hours
	TTL time.Duration

	// Enabled determines whether dedupe is applied. Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
