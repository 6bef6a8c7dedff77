package ports

import (
	"context"
	"time"

	"github.com/layer-3/walletauth/core"
)

// Store interface for token invalidation
type Store interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)

	// ClaimToken invalidates tokenID and reports whether this call was the one that did it.
	// Used to make refresh token rotation single use.
	ClaimToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error)
}

// NonceStore holds at most one challenge per address
type NonceStore interface {
	// Replace installs n as the only challenge for n.Address, discarding any previous one
	Replace(ctx context.Context, n *core.Nonce) error

	// Lookup returns the current challenge for address, consumed or expired included.
	// Returns core.ErrNonceNotFound if none was issued.
	Lookup(ctx context.Context, address string) (*core.Nonce, error)

	// Consume marks the challenge consumed if its value matches and now is before its expiry.
	// The check and the mark happen atomically: among concurrent callers at most one succeeds,
	// the others get core.ErrNonceAlreadyConsumed.
	Consume(ctx context.Context, address, value string, now time.Time) (*core.Nonce, error)
}
