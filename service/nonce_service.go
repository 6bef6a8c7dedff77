package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/metrics"
	"github.com/layer-3/walletauth/ports"
)

// NonceService issues and redeems login challenges on top of a NonceStore backend
type NonceService struct {
	store    ports.NonceStore
	ttl      time.Duration
	now      func() time.Time
	newNonce func() (string, error)
	logger   *slog.Logger
}

// NewNonceService creates a nonce service
func NewNonceService(store ports.NonceStore, opts ...Option) *NonceService {
	s := newSettings(opts)
	return &NonceService{
		store:    store,
		ttl:      s.nonceTTL,
		now:      s.now,
		newNonce: s.newNonce,
		logger:   s.logger,
	}
}

// IssueChallenge creates a fresh challenge for address, replacing any outstanding one
func (s *NonceService) IssueChallenge(ctx context.Context, address string) (*core.Challenge, error) {
	address, err := core.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	value, err := s.newNonce()
	if err != nil {
		return nil, err
	}

	// Millisecond precision is all the message carries; keep the stored time identical
	now := time.UnixMilli(s.now().UnixMilli())
	nonce := &core.Nonce{
		Address:   address,
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.store.Replace(ctx, nonce); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	metrics.NonceIssued()
	s.logger.Debug("challenge issued", "address", address, "expires_at", nonce.ExpiresAt)

	return &core.Challenge{
		Nonce:   value,
		Message: nonce.Message(),
	}, nil
}

// Current returns the outstanding challenge for address
func (s *NonceService) Current(ctx context.Context, address string) (*core.Nonce, error) {
	address, err := core.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.store.Lookup(ctx, address)
}

// ValidateAndConsume redeems the challenge value for address exactly once
func (s *NonceService) ValidateAndConsume(ctx context.Context, address, value string) error {
	address, err := core.NormalizeAddress(address)
	if err != nil {
		return err
	}

	_, err = s.store.Consume(ctx, address, value, s.now())
	metrics.NonceValidated(validationResult(err))
	return err
}

func validationResult(err error) string {
	if err == nil {
		return "ok"
	}
	return string(core.ReasonOf(err))
}
