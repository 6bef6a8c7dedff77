package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0x1111111111111111111111111111111111111111"

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func nonceStores(t *testing.T) map[string]func(t *testing.T) ports.NonceStore {
	return map[string]func(t *testing.T) ports.NonceStore{
		"memory": func(t *testing.T) ports.NonceStore {
			return NewMemoryNonceStore()
		},
		"redis": func(t *testing.T) ports.NonceStore {
			_, client := newRedisClient(t)
			return NewRedisNonceStore(client)
		},
	}
}

func newNonce(address, value string, issuedAt time.Time) *core.Nonce {
	return &core.Nonce{
		Address:   address,
		Value:     value,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(5 * time.Minute),
	}
}

func TestNonceStore_Contract(t *testing.T) {
	for name, newStore := range nonceStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("lookup unknown address", func(t *testing.T) {
				s := newStore(t)
				_, err := s.Lookup(context.Background(), testAddress)
				assert.ErrorIs(t, err, core.ErrNonceNotFound)

				_, err = s.Consume(context.Background(), testAddress, "abc123", time.Now())
				assert.ErrorIs(t, err, core.ErrNonceNotFound)
			})

			t.Run("consume once", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				issued := time.UnixMilli(time.Now().UnixMilli())
				require.NoError(t, s.Replace(ctx, newNonce(testAddress, "abc123", issued)))

				got, err := s.Lookup(ctx, testAddress)
				require.NoError(t, err)
				assert.Equal(t, "abc123", got.Value)
				assert.True(t, got.IssuedAt.Equal(issued))
				assert.False(t, got.Consumed)

				consumed, err := s.Consume(ctx, testAddress, "abc123", issued.Add(time.Second))
				require.NoError(t, err)
				assert.True(t, consumed.Consumed)
				assert.True(t, consumed.IssuedAt.Equal(issued))

				_, err = s.Consume(ctx, testAddress, "abc123", issued.Add(2*time.Second))
				assert.ErrorIs(t, err, core.ErrNonceAlreadyConsumed)

				got, err = s.Lookup(ctx, testAddress)
				require.NoError(t, err)
				assert.True(t, got.Consumed)
			})

			t.Run("wrong value", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				issued := time.Now()
				require.NoError(t, s.Replace(ctx, newNonce(testAddress, "abc123", issued)))

				_, err := s.Consume(ctx, testAddress, "abc124", issued)
				assert.ErrorIs(t, err, core.ErrNonceNotFound)

				// the real nonce is untouched
				_, err = s.Consume(ctx, testAddress, "abc123", issued)
				assert.NoError(t, err)
			})

			t.Run("expiry", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				issued := time.Now()
				n := newNonce(testAddress, "abc123", issued)
				require.NoError(t, s.Replace(ctx, n))

				_, err := s.Consume(ctx, testAddress, "abc123", n.ExpiresAt)
				assert.ErrorIs(t, err, core.ErrNonceExpired)

				_, err = s.Consume(ctx, testAddress, "abc123", n.ExpiresAt.Add(time.Hour))
				assert.ErrorIs(t, err, core.ErrNonceExpired)
			})

			t.Run("supersession", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				issued := time.Now()
				require.NoError(t, s.Replace(ctx, newNonce(testAddress, "first", issued)))
				require.NoError(t, s.Replace(ctx, newNonce(testAddress, "second", issued.Add(time.Second))))

				_, err := s.Consume(ctx, testAddress, "first", issued.Add(2*time.Second))
				assert.ErrorIs(t, err, core.ErrNonceNotFound)

				_, err = s.Consume(ctx, testAddress, "second", issued.Add(2*time.Second))
				assert.NoError(t, err)
			})

			t.Run("reissue after consume", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				issued := time.Now()
				require.NoError(t, s.Replace(ctx, newNonce(testAddress, "first", issued)))
				_, err := s.Consume(ctx, testAddress, "first", issued)
				require.NoError(t, err)

				require.NoError(t, s.Replace(ctx, newNonce(testAddress, "second", issued)))
				got, err := s.Lookup(ctx, testAddress)
				require.NoError(t, err)
				assert.False(t, got.Consumed, "a new challenge starts unconsumed")
			})

			t.Run("addresses are independent", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				issued := time.Now()
				other := "0x2222222222222222222222222222222222222222"
				require.NoError(t, s.Replace(ctx, newNonce(testAddress, "same", issued)))
				require.NoError(t, s.Replace(ctx, newNonce(other, "same", issued)))

				_, err := s.Consume(ctx, testAddress, "same", issued)
				require.NoError(t, err)
				_, err = s.Consume(ctx, other, "same", issued)
				assert.NoError(t, err)
			})

			t.Run("concurrent consume succeeds once", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				issued := time.Now()
				require.NoError(t, s.Replace(ctx, newNonce(testAddress, "abc123", issued)))

				const callers = 64
				var (
					wg        sync.WaitGroup
					successes atomic.Int32
					replays   atomic.Int32
					start     = make(chan struct{})
				)
				for i := 0; i < callers; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						<-start
						_, err := s.Consume(ctx, testAddress, "abc123", issued.Add(time.Second))
						switch {
						case err == nil:
							successes.Add(1)
						case errors.Is(err, core.ErrNonceAlreadyConsumed):
							replays.Add(1)
						}
					}()
				}
				close(start)
				wg.Wait()

				assert.EqualValues(t, 1, successes.Load())
				assert.EqualValues(t, callers-1, replays.Load())
			})

			t.Run("concurrent replace keeps one winner", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				issued := time.Now()

				const writers = 32
				var wg sync.WaitGroup
				for i := 0; i < writers; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						assert.NoError(t, s.Replace(ctx, newNonce(testAddress, fmt.Sprintf("v%d", i), issued)))
					}(i)
				}
				wg.Wait()

				current, err := s.Lookup(ctx, testAddress)
				require.NoError(t, err)

				accepted := 0
				for i := 0; i < writers; i++ {
					if _, err := s.Consume(ctx, testAddress, fmt.Sprintf("v%d", i), issued); err == nil {
						accepted++
						assert.Equal(t, fmt.Sprintf("v%d", i), current.Value)
					}
				}
				assert.Equal(t, 1, accepted)
			})
		})
	}
}

func TestMemoryNonceStore_Sweep(t *testing.T) {
	s := NewMemoryNonceStore()
	ctx := context.Background()
	issued := time.Now()

	require.NoError(t, s.Replace(ctx, newNonce(testAddress, "old", issued.Add(-10*time.Minute))))
	require.NoError(t, s.Replace(ctx, newNonce("0x2222222222222222222222222222222222222222", "fresh", issued)))
	require.Equal(t, 2, s.Len())

	assert.Equal(t, 1, s.Sweep(issued))
	assert.Equal(t, 1, s.Len())

	_, err := s.Lookup(ctx, testAddress)
	assert.ErrorIs(t, err, core.ErrNonceNotFound)

	// the swept address can be challenged again
	require.NoError(t, s.Replace(ctx, newNonce(testAddress, "new", issued)))
	_, err = s.Consume(ctx, testAddress, "new", issued)
	assert.NoError(t, err)
}

func TestMemoryNonceStore_SweepRacesReplace(t *testing.T) {
	s := NewMemoryNonceStore()
	ctx := context.Background()
	now := time.Now()
	expired := newNonce(testAddress, "expired", now.Add(-time.Hour))

	for i := 0; i < 200; i++ {
		require.NoError(t, s.Replace(ctx, expired))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Sweep(now)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Replace(ctx, newNonce(testAddress, "live", now)))
		}()
		wg.Wait()

		// whatever the interleaving, the live nonce must never be lost
		got, err := s.Lookup(ctx, testAddress)
		require.NoError(t, err)
		require.Equal(t, "live", got.Value)
	}
}

func TestMemoryNonceStore_RunSweeper(t *testing.T) {
	s := NewMemoryNonceStore()
	require.NoError(t, s.Replace(context.Background(), newNonce(testAddress, "old", time.Now().Add(-time.Hour))))

	ctx, cancel := context.WithCancel(context.Background())
	swept := make(chan int, 1)
	go s.RunSweeper(ctx, 5*time.Millisecond, time.Now, func(removed int) {
		if removed > 0 {
			select {
			case swept <- removed:
			default:
			}
		}
	})
	defer cancel()

	select {
	case n := <-swept:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not run")
	}
	assert.Equal(t, 0, s.Len())
}

func TestRedisNonceStore_KeyExpires(t *testing.T) {
	mr, client := newRedisClient(t)
	s := NewRedisNonceStore(client)
	ctx := context.Background()
	issued := time.Now()

	require.NoError(t, s.Replace(ctx, newNonce(testAddress, "abc123", issued)))
	assert.True(t, mr.Exists("walletauth:nonce:"+testAddress))

	mr.FastForward(5*time.Minute + nonceKeyGrace + time.Second)
	_, err := s.Lookup(ctx, testAddress)
	assert.ErrorIs(t, err, core.ErrNonceNotFound)
}

func TestRedisNonceStore_StoreError(t *testing.T) {
	mr, client := newRedisClient(t)
	s := NewRedisNonceStore(client)
	mr.Close()

	err := s.Replace(context.Background(), newNonce(testAddress, "abc123", time.Now()))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrNonceNotFound))
}
