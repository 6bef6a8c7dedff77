package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/layer-3/walletauth/internal/metrics"
	"github.com/layer-3/walletauth/ports"
)

// Authenticator runs the wallet login handshake:
// a challenge is requested for an address, signed by the wallet, and redeemed once for a session.
type Authenticator struct {
	nonces   *NonceService
	sessions ports.SessionIssuer
	eventPub ports.EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthenticator creates the login coordinator
func NewAuthenticator(
	nonces *NonceService,
	sessions ports.SessionIssuer,
	eventPub ports.EventPublisher,
	opts ...Option,
) *Authenticator {
	s := newSettings(opts)
	return &Authenticator{
		nonces:   nonces,
		sessions: sessions,
		eventPub: eventPub,
		logger:   s.logger,
		now:      s.now,
	}
}

// RequestChallenge moves address to ChallengeIssued, invalidating any earlier challenge
func (a *Authenticator) RequestChallenge(ctx context.Context, address string) (*core.Challenge, error) {
	challenge, err := a.nonces.IssueChallenge(ctx, address)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAddressFormat) {
			a.logger.Info("challenge rejected", "address", address, "reason", core.ReasonInvalidAddressFormat)
		}
		return nil, err
	}
	return challenge, nil
}

// SubmitResponse redeems a signed challenge.
// Whatever the outcome, the challenge cannot be answered again afterwards.
func (a *Authenticator) SubmitResponse(ctx context.Context, resp core.ChallengeResponse) (*core.LoginResult, error) {
	result, err := a.submit(ctx, resp)
	if err != nil {
		reason := core.ReasonOf(err)
		metrics.LoginAttempt(string(reason))
		a.logger.Warn("wallet login rejected", "address", resp.Address, "reason", reason, "error", err)
		if pubErr := a.eventPub.PublishLoginFailure(ctx, resp.Address, reason); pubErr != nil {
			a.logger.Warn("failed to publish login failure event", "address", resp.Address, "error", pubErr)
		}
		return nil, err
	}

	metrics.LoginAttempt("ok")
	a.logger.Info("wallet login", "address", result.Account.Address, "session_id", result.Tokens.Session.ID)
	if pubErr := a.eventPub.PublishLogin(ctx, result.Tokens.Session.Address, result.Tokens.Session.ID); pubErr != nil {
		a.logger.Warn("failed to publish login event", "address", result.Account.Address, "error", pubErr)
	}
	return result, nil
}

func (a *Authenticator) submit(ctx context.Context, resp core.ChallengeResponse) (*core.LoginResult, error) {
	address, err := core.NormalizeAddress(resp.Address)
	if err != nil {
		return nil, err
	}

	// The signed text must be the one issued for this nonce, never one built by the client
	current, err := a.nonces.Current(ctx, address)
	if err != nil {
		return nil, err
	}
	if current.Value != resp.Nonce {
		a.burn(ctx, address, current.Value)
		return nil, core.ErrNonceNotFound
	}
	if current.Consumed {
		return nil, core.ErrNonceAlreadyConsumed
	}
	if resp.Message != current.Message() {
		a.burn(ctx, address, resp.Nonce)
		return nil, core.ErrMessageMismatch
	}

	if err := a.nonces.ValidateAndConsume(ctx, address, resp.Nonce); err != nil {
		return nil, err
	}

	// From here on the nonce is spent; a bad signature does not earn a second guess
	verification := eth.Verify(address, resp.Message, resp.Signature)
	switch verification.FailureReason {
	case core.ReasonNone:
	case core.ReasonMalformedSignature:
		return nil, core.ErrMalformedSignature
	default:
		return nil, fmt.Errorf("recovered %s: %w", verification.RecoveredAddress, core.ErrSignatureMismatch)
	}

	tokens, err := a.sessions.IssueSession(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	return &core.LoginResult{
		State:  core.StateSessionActive,
		Tokens: tokens,
		Account: core.AccountSummary{
			Address:     core.ChecksumAddress(address),
			LoginMethod: "wallet",
		},
	}, nil
}

// burn consumes the nonce without granting anything
func (a *Authenticator) burn(ctx context.Context, address, nonce string) {
	if err := a.nonces.ValidateAndConsume(ctx, address, nonce); err != nil {
		a.logger.Debug("challenge already unusable", "address", address, "error", err)
	}
}

// State reports where address stands in the handshake.
// SessionActive is only ever returned by SubmitResponse; afterwards the address is back to NoChallenge.
func (a *Authenticator) State(ctx context.Context, address string) (core.HandshakeState, error) {
	current, err := a.nonces.Current(ctx, address)
	switch {
	case errors.Is(err, core.ErrNonceNotFound):
		return core.StateNoChallenge, nil
	case err != nil:
		return "", err
	case current.Live(a.now()):
		return core.StateChallengeIssued, nil
	default:
		return core.StateNoChallenge, nil
	}
}
