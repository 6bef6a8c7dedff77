package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/layer-3/walletauth/internal/logging"
)

const (
	DefaultNonceTTL   = 5 * time.Minute
	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 5 * 24 * time.Hour // 5 days
)

type settings struct {
	now        func() time.Time
	logger     *slog.Logger
	nonceTTL   time.Duration
	accessTTL  time.Duration
	refreshTTL time.Duration
	newNonce   func() (string, error)
}

func newSettings(opts []Option) settings {
	s := settings{
		now:        time.Now,
		logger:     logging.Discard(),
		nonceTTL:   DefaultNonceTTL,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		newNonce:   randomNonce,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures the services of this package
type Option func(*settings)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithLogger sets the logger used for diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithNonceTTL sets how long a challenge can be answered
func WithNonceTTL(ttl time.Duration) Option {
	return func(s *settings) { s.nonceTTL = ttl }
}

// WithSessionTTL sets access and refresh token lifetimes
func WithSessionTTL(access, refresh time.Duration) Option {
	return func(s *settings) {
		s.accessTTL = access
		s.refreshTTL = refresh
	}
}

// WithNonceGenerator replaces the random nonce source
func WithNonceGenerator(gen func() (string, error)) Option {
	return func(s *settings) { s.newNonce = gen }
}

// randomNonce returns 32 random bytes, hex encoded
func randomNonce() (string, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(nonceBytes), nil
}
