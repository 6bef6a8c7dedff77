package core

import "time"

// Nonce is a single-use challenge bound to one wallet address
type Nonce struct {
	Address   string    // Normalized (lower-case) wallet address
	Value     string    // Random token, unique per issuance
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge expires
	Consumed  bool      // Set once, when a response was accepted for this nonce
}

// Live reports whether the nonce can still be answered at now
func (n *Nonce) Live(now time.Time) bool {
	return !n.Consumed && now.Before(n.ExpiresAt)
}

// Message returns the canonical text the wallet is asked to sign for this nonce
func (n *Nonce) Message() string {
	return BuildMessage(n.Address, n.Value, n.IssuedAt)
}

// Challenge is what the client receives when it asks to log in
type Challenge struct {
	Nonce   string
	Message string
}

// ChallengeResponse is the client's answer to a challenge
type ChallengeResponse struct {
	Address   string
	Signature string
	Message   string
	Nonce     string
}

// Session represents an authenticated user session
type Session struct {
	ID            string    // Unique session identifier
	Address       string    // Ethereum address of the user
	IssuedAt      time.Time // When the session was created
	RefreshExpiry time.Time // When the refresh capability expires
	AccessExpiry  time.Time // When the access capability expires
	RefreshID     string    // Unique identifier for the refresh token
}

// SessionTokens is a session together with its encoded credentials
type SessionTokens struct {
	Session      *Session
	AccessToken  string
	RefreshToken string
}

// AccountSummary describes the account a session was issued for
type AccountSummary struct {
	Address     string `json:"address"`
	LoginMethod string `json:"loginMethod"`
}

// LoginResult is returned after a successful wallet handshake
type LoginResult struct {
	State   HandshakeState
	Tokens  *SessionTokens
	Account AccountSummary
}

// HandshakeState is the per-address position in the login handshake
type HandshakeState string

const (
	StateNoChallenge     HandshakeState = "no_challenge"
	StateChallengeIssued HandshakeState = "challenge_issued"
	StateSessionActive   HandshakeState = "session_active"
)

// VerificationResult is the outcome of checking a signature against a claimed address
type VerificationResult struct {
	RecoveredAddress string
	MatchesClaim     bool
	FailureReason    FailureReason
}
