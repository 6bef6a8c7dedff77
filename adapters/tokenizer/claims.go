package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	// RefreshID names the refresh token issued with this access token.
	// Revoking that refresh token also rejects this access token.
	RefreshID string `json:"rid"`
}

// RefreshClaims carry the refresh ID as the token ID (jti); rotation claims it once
type RefreshClaims struct {
	jwt.RegisteredClaims
}
