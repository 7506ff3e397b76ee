// Package revokedtokens holds the revocation list: the set of refresh
// token ids that must no longer be honored.
package revokedtokens

import (
	"context"
	"time"
)

// Repository is a set of token ids keyed by jti. Entries are insert-only
// and become prunable once expiresAt has passed.
type Repository interface {
	// Add records jti. It reports false when jti was already present;
	// adding twice is not an error.
	Add(ctx context.Context, jti string, expiresAt time.Time) (bool, error)

	Contains(ctx context.Context, jti string) (bool, error)

	// Prune deletes entries that expired before now and returns how many
	// were removed.
	Prune(ctx context.Context, now time.Time) (int64, error)
}
