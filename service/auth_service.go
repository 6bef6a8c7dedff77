package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// AuthService issues, rotates and revokes sessions
type AuthService struct {
	tokenizer ports.Tokenizer
	store     ports.Store
	eventPub  ports.EventPublisher
	logger    *slog.Logger
	now       func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	store ports.Store,
	eventPub ports.EventPublisher,
	opts ...Option,
) *AuthService {
	s := newSettings(opts)
	return &AuthService{
		tokenizer:  tokenizer,
		store:      store,
		eventPub:   eventPub,
		logger:     s.logger,
		now:        s.now,
		accessTTL:  s.accessTTL,
		refreshTTL: s.refreshTTL,
	}
}

var _ ports.SessionIssuer = (*AuthService)(nil)

// AccessTTL is the lifetime of issued access tokens
func (s *AuthService) AccessTTL() time.Duration {
	return s.accessTTL
}

// IssueSession mints an access and refresh token pair for a verified address
func (s *AuthService) IssueSession(ctx context.Context, address string) (*core.SessionTokens, error) {
	now := s.now()
	session := &core.Session{
		ID:            uuid.New().String(),
		Address:       address,
		IssuedAt:      now,
		RefreshExpiry: now.Add(s.refreshTTL),
		AccessExpiry:  now.Add(s.accessTTL),
		RefreshID:     uuid.New().String(),
	}

	return s.encode(session)
}

// Refresh rotates the refresh token and issues new access and refresh tokens.
// A refresh token can be rotated only once.
func (s *AuthService) Refresh(ctx context.Context, refreshTokenStr string) (*core.SessionTokens, error) {
	// Parse and validate the refresh token
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return nil, err
	}

	// Check if the token has expired
	if !s.now().Before(session.RefreshExpiry) {
		return nil, core.ErrTokenExpired
	}

	// Invalidate the old refresh token; losing the race means somebody else rotated it
	remainingTime := session.RefreshExpiry.Sub(s.now())
	claimed, err := s.store.ClaimToken(ctx, session.RefreshID, remainingTime)
	if err != nil {
		return nil, fmt.Errorf("failed to invalidate old token: %w", err)
	}
	if !claimed {
		s.logger.Warn("refresh token reuse", "address", session.Address, "refresh_id", session.RefreshID)
		return nil, core.ErrTokenInvalidated
	}

	return s.IssueSession(ctx, session.Address)
}

// Logout invalidates a refresh token
func (s *AuthService) Logout(ctx context.Context, refreshTokenStr string) error {
	// Parse the refresh token
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return err
	}

	// Invalidation lives as long as the token would have
	remainingTime := session.RefreshExpiry.Sub(s.now())
	if remainingTime <= 0 {
		remainingTime = time.Hour
	}

	// Invalidate the refresh token
	if err := s.store.InvalidateToken(ctx, session.RefreshID, remainingTime); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	// Publish logout event for cross-instance notifications
	if err := s.eventPub.PublishLogout(ctx, session.Address, session.RefreshID); err != nil {
		// The token is already invalidated in the store, which is the critical part
		s.logger.Warn("failed to publish logout event", "address", session.Address, "error", err)
	}

	return nil
}

// ValidateAccessToken checks an access token and that its refresh token was not revoked
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	// Parse and validate the access token
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, err
	}

	// Check if the token has expired
	if !s.now().Before(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	// Logging out revokes the refresh token; access tokens minted with it go too
	if session.RefreshID != "" {
		invalidated, err := s.store.IsTokenInvalidated(ctx, session.RefreshID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}

		if invalidated {
			return nil, core.ErrTokenInvalidated
		}
	}

	return session, nil
}

func (s *AuthService) encode(session *core.Session) (*core.SessionTokens, error) {
	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return &core.SessionTokens{
		Session:      session,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
