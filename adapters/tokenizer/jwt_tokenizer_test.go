package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func testSession() *core.Session {
	now := time.Now().Truncate(time.Second)
	return &core.Session{
		ID:            "session-1",
		Address:       "0x1111111111111111111111111111111111111111",
		IssuedAt:      now,
		AccessExpiry:  now.Add(5 * time.Minute),
		RefreshExpiry: now.Add(time.Hour),
		RefreshID:     "refresh-1",
	}
}

func TestJWTTokenizer_AccessRoundTrip(t *testing.T) {
	tk := NewJWTTokenizer(newKey(t), "walletauth")
	session := testSession()

	token, err := tk.SessionToAccessToken(session)
	require.NoError(t, err)

	got, err := tk.AccessTokenToSession(token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.Address, got.Address)
	assert.Equal(t, session.RefreshID, got.RefreshID)
	assert.True(t, got.AccessExpiry.Equal(session.AccessExpiry))
}

func TestJWTTokenizer_RefreshRoundTrip(t *testing.T) {
	tk := NewJWTTokenizer(newKey(t), "walletauth")
	session := testSession()

	token, err := tk.SessionToRefreshToken(session)
	require.NoError(t, err)

	got, err := tk.RefreshTokenToSession(token)
	require.NoError(t, err)
	assert.Equal(t, session.RefreshID, got.RefreshID)
	assert.Equal(t, session.Address, got.Address)
	assert.True(t, got.RefreshExpiry.Equal(session.RefreshExpiry))
}

func TestJWTTokenizer_AudienceIsEnforced(t *testing.T) {
	tk := NewJWTTokenizer(newKey(t), "walletauth")

	refresh, err := tk.SessionToRefreshToken(testSession())
	require.NoError(t, err)

	_, err = tk.AccessTokenToSession(refresh)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestJWTTokenizer_ForeignKeyRejected(t *testing.T) {
	issuer := NewJWTTokenizer(newKey(t), "walletauth")
	verifier := NewJWTTokenizer(newKey(t), "walletauth")

	token, err := issuer.SessionToAccessToken(testSession())
	require.NoError(t, err)

	_, err = verifier.AccessTokenToSession(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestJWTTokenizer_Expired(t *testing.T) {
	tk := NewJWTTokenizer(newKey(t), "walletauth")
	session := testSession()
	session.IssuedAt = session.IssuedAt.Add(-time.Hour)
	session.AccessExpiry = time.Now().Add(-time.Minute)

	token, err := tk.SessionToAccessToken(session)
	require.NoError(t, err)

	_, err = tk.AccessTokenToSession(token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestJWTTokenizer_Garbage(t *testing.T) {
	tk := NewJWTTokenizer(newKey(t), "walletauth")
	_, err := tk.RefreshTokenToSession("not-a-jwt")
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}
