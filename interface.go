package walletauth

import (
	"context"
)

// Client represents the public interface for logging in to a wallet authentication server
type Client interface {
	// Challenge asks the server for a challenge bound to the wallet's current address
	Challenge(ctx context.Context) (*Challenge, error)

	// Login runs the full handshake: challenge, sign, submit
	Login(ctx context.Context) (*Tokens, error)

	// Refresh rotates the refresh token and returns new tokens
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)

	// Logout invalidates the provided refresh token
	Logout(ctx context.Context, refreshToken string) error
}

// Wallet is the client-side signer of login challenges
type Wallet interface {
	// IsAvailable reports whether a signer is present at all
	IsAvailable() bool

	// CurrentAddress returns the connected account, if any
	CurrentAddress() (string, bool)

	// Sign produces a personal_sign signature over message
	Sign(ctx context.Context, message string) (string, error)

	// OnAccountsChanged registers a callback fired when the active account changes.
	// An empty address means the wallet was disconnected.
	OnAccountsChanged(fn func(address string))
}
