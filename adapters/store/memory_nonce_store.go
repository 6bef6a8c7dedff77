package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// nonceSlot serializes every operation on one address.
// A slot removed by Sweep is marked dead so that a writer that loaded it
// concurrently retries with a fresh slot instead of writing into a detached one.
type nonceSlot struct {
	mu    sync.Mutex
	nonce *core.Nonce
	dead  bool
}

// MemoryNonceStore keeps challenges in process memory.
// Different addresses never contend on the same lock.
type MemoryNonceStore struct {
	slots sync.Map // address -> *nonceSlot
}

// NewMemoryNonceStore creates an empty in-memory nonce store
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{}
}

var _ ports.NonceStore = (*MemoryNonceStore)(nil)

// Replace installs n as the only challenge for its address
func (s *MemoryNonceStore) Replace(ctx context.Context, n *core.Nonce) error {
	slot := s.acquire(n.Address)
	defer slot.mu.Unlock()

	stored := *n
	slot.nonce = &stored
	return nil
}

// Lookup returns a copy of the current challenge for address
func (s *MemoryNonceStore) Lookup(ctx context.Context, address string) (*core.Nonce, error) {
	slot, ok := s.existing(address)
	if !ok {
		return nil, core.ErrNonceNotFound
	}
	defer slot.mu.Unlock()

	found := *slot.nonce
	return &found, nil
}

// Consume performs the check-and-set under the address lock
func (s *MemoryNonceStore) Consume(ctx context.Context, address, value string, now time.Time) (*core.Nonce, error) {
	slot, ok := s.existing(address)
	if !ok {
		return nil, core.ErrNonceNotFound
	}
	defer slot.mu.Unlock()

	n := slot.nonce
	switch {
	case n.Value != value:
		return nil, core.ErrNonceNotFound
	case n.Consumed:
		return nil, core.ErrNonceAlreadyConsumed
	case !now.Before(n.ExpiresAt):
		return nil, core.ErrNonceExpired
	}

	n.Consumed = true
	consumed := *n
	return &consumed, nil
}

// Sweep removes challenges that expired before now and reports how many were dropped.
// Consumed challenges are kept until expiry so replays keep reporting AlreadyConsumed.
func (s *MemoryNonceStore) Sweep(now time.Time) int {
	removed := 0
	s.slots.Range(func(key, value any) bool {
		slot := value.(*nonceSlot)
		slot.mu.Lock()
		if slot.nonce == nil || !now.Before(slot.nonce.ExpiresAt) {
			slot.dead = true
			s.slots.CompareAndDelete(key, slot)
			removed++
		}
		slot.mu.Unlock()
		return true
	})
	return removed
}

// Len returns the number of addresses with a stored challenge
func (s *MemoryNonceStore) Len() int {
	n := 0
	s.slots.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// RunSweeper calls Sweep every interval until ctx is done
func (s *MemoryNonceStore) RunSweeper(ctx context.Context, interval time.Duration, now func() time.Time, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.Sweep(now())
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}

// acquire returns the locked live slot for address, creating it if needed
func (s *MemoryNonceStore) acquire(address string) *nonceSlot {
	for {
		value, _ := s.slots.LoadOrStore(address, &nonceSlot{})
		slot := value.(*nonceSlot)
		slot.mu.Lock()
		if !slot.dead {
			return slot
		}
		slot.mu.Unlock()
	}
}

// existing returns the locked slot for address if it holds a challenge
func (s *MemoryNonceStore) existing(address string) (*nonceSlot, bool) {
	value, ok := s.slots.Load(address)
	if !ok {
		return nil, false
	}
	slot := value.(*nonceSlot)
	slot.mu.Lock()
	if slot.dead || slot.nonce == nil {
		slot.mu.Unlock()
		return nil, false
	}
	return slot, true
}
