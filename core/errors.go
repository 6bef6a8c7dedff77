package core

import "errors"

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidToken     = errors.New("invalid token")

	ErrInvalidAddressFormat = errors.New("invalid wallet address format")
	ErrNonceNotFound        = errors.New("nonce not found")
	ErrNonceExpired         = errors.New("nonce has expired")
	ErrNonceAlreadyConsumed = errors.New("nonce already consumed")
	ErrMessageMismatch      = errors.New("message does not match issued challenge")
	ErrMalformedSignature   = errors.New("malformed signature")
	ErrSignatureMismatch    = errors.New("signature does not match address")
)

// FailureReason enumerates why a wallet login was rejected
type FailureReason string

const (
	ReasonNone                 FailureReason = ""
	ReasonInvalidAddressFormat FailureReason = "invalid_address_format"
	ReasonNonceNotFound        FailureReason = "nonce_not_found"
	ReasonNonceExpired         FailureReason = "nonce_expired"
	ReasonNonceAlreadyConsumed FailureReason = "nonce_already_consumed"
	ReasonMessageMismatch      FailureReason = "message_mismatch"
	ReasonMalformedSignature   FailureReason = "malformed_signature"
	ReasonSignatureMismatch    FailureReason = "signature_mismatch"
	ReasonInternal             FailureReason = "internal"
)

var reasons = []struct {
	err    error
	reason FailureReason
}{
	{ErrInvalidAddressFormat, ReasonInvalidAddressFormat},
	{ErrNonceNotFound, ReasonNonceNotFound},
	{ErrNonceExpired, ReasonNonceExpired},
	{ErrNonceAlreadyConsumed, ReasonNonceAlreadyConsumed},
	{ErrMessageMismatch, ReasonMessageMismatch},
	{ErrMalformedSignature, ReasonMalformedSignature},
	{ErrSignatureMismatch, ReasonSignatureMismatch},
}

// ReasonOf maps an error returned by the login flow to its failure reason.
// Errors outside the taxonomy (store outages, session issuance) map to ReasonInternal.
func ReasonOf(err error) FailureReason {
	if err == nil {
		return ReasonNone
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonInternal
}
