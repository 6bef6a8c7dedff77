package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/internal/metrics"
	"github.com/layer-3/walletauth/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(authenticator *service.Authenticator, authService *service.AuthService, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	// Create handlers
	handlers := NewAuthHandlers(authenticator, authService, logger)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/get-nonce", handlers.GetNonce)
		auth.POST("/wallet-login", handlers.WalletLogin)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)
	}

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return router
}
