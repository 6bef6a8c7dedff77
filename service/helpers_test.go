package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishLogin(ctx context.Context, address string, sessionID string) error {
	return m.Called(ctx, address, sessionID).Error(0)
}

func (m *mockPublisher) PublishLoginFailure(ctx context.Context, address string, reason core.FailureReason) error {
	return m.Called(ctx, address, reason).Error(0)
}

func (m *mockPublisher) PublishLogout(ctx context.Context, address string, tokenID string) error {
	return m.Called(ctx, address, tokenID).Error(0)
}

// permissive accepts every event
func (m *mockPublisher) permissive() *mockPublisher {
	m.On("PublishLogin", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishLoginFailure", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishLogout", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

type mockSessionIssuer struct {
	mock.Mock
}

func (m *mockSessionIssuer) IssueSession(ctx context.Context, address string) (*core.SessionTokens, error) {
	args := m.Called(ctx, address)
	tokens, _ := args.Get(0).(*core.SessionTokens)
	return tokens, args.Error(1)
}

type wallet struct {
	key     *ecdsa.PrivateKey
	address string // lower-case
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: key, address: strings.ToLower(eth.AddressOf(key).Hex())}
}

func (w wallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := eth.SignText(w.key, message)
	require.NoError(t, err)
	return sig
}

type harness struct {
	clock     *fakeClock
	nonces    *NonceService
	sessions  *AuthService
	auth      *Authenticator
	events    *mockPublisher
	store     *store.MemoryNonceStore
	tokens    *store.MemoryStore
	tokenizer *tokenizer.JWTTokenizer
}

func newHarness(t *testing.T, extra ...Option) *harness {
	t.Helper()
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	h := &harness{
		clock:     newFakeClock(),
		events:    (&mockPublisher{}).permissive(),
		store:     store.NewMemoryNonceStore(),
		tokens:    store.NewMemoryStore(),
		tokenizer: tokenizer.NewJWTTokenizer(signKey, "walletauth-test"),
	}
	opts := append([]Option{WithClock(h.clock.Now)}, extra...)
	h.nonces = NewNonceService(h.store, opts...)
	h.sessions = NewAuthService(h.tokenizer, h.tokens, h.events, opts...)
	h.auth = NewAuthenticator(h.nonces, h.sessions, h.events, opts...)
	return h
}

// respond requests a challenge for w and returns a correctly signed response
func (h *harness) respond(t *testing.T, w wallet) core.ChallengeResponse {
	t.Helper()
	challenge, err := h.auth.RequestChallenge(context.Background(), w.address)
	require.NoError(t, err)
	return core.ChallengeResponse{
		Address:   w.address,
		Signature: w.sign(t, challenge.Message),
		Message:   challenge.Message,
		Nonce:     challenge.Nonce,
	}
}
