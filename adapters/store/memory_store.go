package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/walletauth/ports"
)

// MemoryStore is an in-memory implementation of the Store interface
type MemoryStore struct {
	invalidatedTokens map[string]time.Time
	mu                sync.RWMutex
	now               func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invalidatedTokens: make(map[string]time.Time),
		now:               time.Now,
	}
}

var _ ports.Store = (*MemoryStore)(nil)

// InvalidateToken marks a token as invalidated
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiryTime := s.now().Add(expiry)
	// Never shorten an existing invalidation
	if stored, exists := s.invalidatedTokens[tokenID]; !exists || stored.Before(expiryTime) {
		s.invalidatedTokens[tokenID] = expiryTime
	}
	return nil
}

// ClaimToken invalidates a token unless it already is, reporting whether this call did it
func (s *MemoryStore) ClaimToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if stored, exists := s.invalidatedTokens[tokenID]; exists && now.Before(stored) {
		return false, nil
	}
	s.invalidatedTokens[tokenID] = now.Add(expiry)
	return true, nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}

	// The invalidation record outlives the token it refers to; past that it is irrelevant
	return s.now().Before(expiryTime), nil
}

// Sweep drops invalidation records that have outlived their tokens
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, expiry := range s.invalidatedTokens {
		if !now.Before(expiry) {
			delete(s.invalidatedTokens, id)
			removed++
		}
	}
	return removed
}
