package walletauth

import (
	"errors"
)

var (
	// ErrWalletNotAvailable is returned when no signer is present
	ErrWalletNotAvailable = errors.New("wallet not available")

	// ErrWalletNotConnected is returned when the wallet has no connected account
	ErrWalletNotConnected = errors.New("wallet not connected")

	// ErrUserRejectedSigning is returned when the user declined to sign
	ErrUserRejectedSigning = errors.New("user rejected signing")

	// ErrAuthenticationFailed is returned when the server refused the login
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInvalidAddress is returned when the server rejected the wallet address
	ErrInvalidAddress = errors.New("invalid wallet address")

	// ErrSessionInvalid is returned when a refresh token was rejected
	ErrSessionInvalid = errors.New("session is invalid")
)
