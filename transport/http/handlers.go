package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/service"
)

const authenticationFailed = "authentication failed"

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authenticator *service.Authenticator
	authService   *service.AuthService
	logger        *slog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authenticator *service.Authenticator, authService *service.AuthService, logger *slog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authenticator: authenticator,
		authService:   authService,
		logger:        logger,
	}
}

// NonceRequest asks for a login challenge
type NonceRequest struct {
	Address string `json:"address" binding:"required"`
}

// NonceResponse carries the challenge the wallet must sign unmodified
type NonceResponse struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// WalletLoginRequest answers a challenge
type WalletLoginRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
	Signature     string `json:"signature" binding:"required"`
	Message       string `json:"message" binding:"required"`
	Nonce         string `json:"nonce" binding:"required"`
}

// LoginResult is the payload of a successful login or refresh
type LoginResult struct {
	Token        string               `json:"token"`
	RefreshToken string               `json:"refreshToken"`
	TokenType    string               `json:"tokenType"`
	ExpiresIn    int64                `json:"expiresIn"`
	Account      *core.AccountSummary `json:"account,omitempty"`
}

// WalletLoginResponse wraps the login result
type WalletLoginResponse struct {
	Result LoginResult `json:"result"`
}

// RefreshRequest carries the refresh token to rotate or revoke
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// GetNonce handles the challenge request
func (h *AuthHandlers) GetNonce(c *gin.Context) {
	var req NonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	challenge, err := h.authenticator.RequestChallenge(c.Request.Context(), req.Address)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAddressFormat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		h.logger.Error("failed to issue challenge", "address", req.Address, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, NonceResponse{
		Nonce:   challenge.Nonce,
		Message: challenge.Message,
	})
}

// WalletLogin handles the signed challenge.
// Every verification failure gets the same answer; the reason stays in server logs and events.
func (h *AuthHandlers) WalletLogin(c *gin.Context) {
	var req WalletLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.authenticator.SubmitResponse(c.Request.Context(), core.ChallengeResponse{
		Address:   req.WalletAddress,
		Signature: req.Signature,
		Message:   req.Message,
		Nonce:     req.Nonce,
	})
	if err != nil {
		if core.ReasonOf(err) == core.ReasonInternal {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to login"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": authenticationFailed})
		return
	}

	account := result.Account
	c.JSON(http.StatusOK, WalletLoginResponse{Result: h.loginResult(result.Tokens, &account)})
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	tokens, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "Failed to refresh tokens"

		// Map specific errors to appropriate status codes
		switch {
		case errors.Is(err, core.ErrInvalidToken):
			statusCode = http.StatusBadRequest
			errorMsg = "Invalid refresh token"
		case errors.Is(err, core.ErrTokenExpired):
			statusCode = http.StatusUnauthorized
			errorMsg = "Refresh token expired"
		case errors.Is(err, core.ErrTokenInvalidated):
			statusCode = http.StatusUnauthorized
			errorMsg = "Refresh token has been invalidated"
		default:
			h.logger.Error("failed to refresh tokens", "error", err)
		}

		c.JSON(statusCode, gin.H{"error": errorMsg})
		return
	}

	c.JSON(http.StatusOK, WalletLoginResponse{Result: h.loginResult(tokens, nil)})
}

// Logout handles session logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	err := h.authService.Logout(c.Request.Context(), req.RefreshToken)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "Failed to logout"

		switch {
		case errors.Is(err, core.ErrInvalidToken):
			statusCode = http.StatusBadRequest
			errorMsg = "Invalid refresh token"
		case errors.Is(err, core.ErrTokenExpired):
			// Even if expired, we'll consider logout successful
			c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
			return
		default:
			h.logger.Error("failed to logout", "error", err)
		}

		c.JSON(statusCode, gin.H{"error": errorMsg})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns information about the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	// User address is set by the auth middleware
	address, exists := c.Get(userAddressKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, core.AccountSummary{
		Address:     core.ChecksumAddress(address.(string)),
		LoginMethod: "wallet",
	})
}

// Authorize checks if a user is authorized
func (h *AuthHandlers) Authorize(c *gin.Context) {
	// Reaching this handler means the auth middleware accepted the token
	address, exists := c.Get(userAddressKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"address":    address,
	})
}

func (h *AuthHandlers) loginResult(tokens *core.SessionTokens, account *core.AccountSummary) LoginResult {
	return LoginResult{
		Token:        tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.authService.AccessTTL().Seconds()),
		Account:      account,
	}
}
