// Package server wires the HTTP surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reelpostly/repostly/internal/config"
	"github.com/reelpostly/repostly/internal/handler"
	"github.com/reelpostly/repostly/internal/server/middleware"
	"github.com/reelpostly/repostly/internal/service"
)

// Handlers groups the route handlers the server mounts.
type Handlers struct {
	Credit  *handler.CreditHandler
	Webhook *handler.WebhookHandler
	Media   *handler.MediaHandler
	Connect *handler.ConnectHandler
}

// Server is the HTTP server.
type Server struct {
	httpServer *http.Server
}

// New builds the router and the server around it.
func New(cfg *config.Config, credits *service.CreditService, h Handlers) *Server {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.CORS))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Stripe authenticates with its signature header, not ours.
	v1.POST("/webhooks/stripe", h.Webhook.Stripe)

	// Dashboard surface, JWT sessions.
	session := v1.Group("")
	session.Use(middleware.JWTAuth(cfg.JWT))
	{
		session.POST("/accounts", h.Credit.CreateAccount)
		session.GET("/connect/:provider/url", h.Connect.AuthorizeURL)
		session.POST("/connect/:provider/exchange", h.Connect.Exchange)
		session.GET("/connect/:provider/token", h.Connect.Token)
		session.DELETE("/connect/:provider", h.Connect.Disconnect)
	}

	// Programmatic surface, API keys.
	keyed := v1.Group("")
	keyed.Use(middleware.APIKeyAuth(credits))
	{
		keyed.GET("/credits", h.Credit.GetBalance)
		keyed.POST("/credits/consume", h.Credit.Consume)
		keyed.POST("/media/resolve", h.Media.Resolve)
		keyed.POST("/media/presign", h.Media.Presign)
	}

	v1.GET("/platforms/:provider/limits", h.Connect.Limits)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
