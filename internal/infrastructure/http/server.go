package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handlers "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/adapter/handler/http"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/config"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/classifier"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/provider/card"
	stripeProvider "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/provider/stripe"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/middleware/auth"
	pkglogger "github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/logger"
)

// Handlers groups the route handlers the server mounts
type Handlers struct {
	Plans        *handlers.PlansHandler
	Checkout     *handlers.CheckoutHandler
	Payments     *handlers.PaymentHandler
	Subscription *handlers.SubscriptionHandler
	Domains      *handlers.DomainHandler
	Webhooks     *handlers.WebhookHandler
}

type Server struct {
	config     *config.Config
	logger     *zap.Logger
	echo       *echo.Echo
	handlers   Handlers
	classifier *classifier.Client
}

func NewServer(cfg *config.Config, logger *zap.Logger, h Handlers, classifierClient *classifier.Client) *Server {
	e := echo.New()
	pkglogger.WithEchoLogger(e, logger)
	e.Validator = handlers.NewRequestValidator()

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(pkglogger.NewEchoRequestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins(cfg),
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE},
	}))

	s := &Server{
		config:     cfg,
		logger:     logger,
		echo:       e,
		handlers:   h,
		classifier: classifierClient,
	}
	s.setupRoutes()
	return s
}

func allowOrigins(cfg *config.Config) []string {
	if len(cfg.Server.HTTP.AllowOrigins) > 0 {
		return cfg.Server.HTTP.AllowOrigins
	}
	if cfg.Service.ClientURL != "" {
		return []string{cfg.Service.ClientURL}
	}
	return []string{"*"}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "payment",
		})
	})
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	h := s.handlers

	// Provider callbacks authenticate by signature, not JWT
	webhooks := s.echo.Group("/webhooks")
	webhooks.POST("/card", h.Webhooks.HandleCard(card.GatewayName))
	webhooks.POST("/stripe", h.Webhooks.HandleCard(stripeProvider.GatewayName))
	webhooks.POST("/wallet", h.Webhooks.HandleWallet)
	webhooks.POST("/crypto", h.Webhooks.HandleCrypto)

	jwtConfig := auth.JWTConfig{
		Secret: s.config.JWT.Secret,
		Logger: s.logger,
		SkipPaths: []string{
			"/health",
			"/metrics",
			"/webhooks",
			"/api/v1/plans",
		},
	}

	v1 := s.echo.Group("/api/v1")

	// Public routes
	v1.GET("/plans", h.Plans.GetPlans)

	protected := v1.Group("", auth.JWTMiddleware(jwtConfig))

	checkout := protected.Group("/checkout", classifier.Middleware(s.classifier, s.logger))
	checkout.POST("/card", h.Checkout.CheckoutCard)
	checkout.POST("/wallet", h.Checkout.CheckoutWallet)
	checkout.POST("/crypto", h.Checkout.CheckoutCrypto)

	payments := protected.Group("/payments")
	payments.GET("/:id", h.Payments.GetPayment)
	payments.GET("/:id/status", h.Payments.GetStatus)
	payments.POST("/:id/capture", h.Checkout.CaptureWallet)

	protected.POST("/subscriptions/:id/reactivate", h.Subscription.Reactivate)

	domains := protected.Group("/domains")
	domains.GET("/availability", h.Domains.Availability)
	domains.POST("/purchase", h.Domains.Purchase, classifier.Middleware(s.classifier, s.logger))
}
