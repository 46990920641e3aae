package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "github.com/expensly/authclient/internal/api/docs"
	"github.com/expensly/authclient/internal/api/handler"
	"github.com/expensly/authclient/internal/api/middleware"
	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/core/ports"
	"github.com/expensly/authclient/internal/infrastructure/http/handlers"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Identity ports.IdentityService
	Tokens   middleware.TokenParser
	Outbox   handler.OutboxReader
	Checks   map[string]handlers.Checker
	Logger   zerolog.Logger
	// ServiceName labels server spans.
	ServiceName string
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)

	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "mock-auth-api"
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echo.WrapMiddleware(otelhttp.NewMiddleware(serviceName)))
	e.Use(requestLogger(deps.Logger))
	e.Use(middleware.Metrics())

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(deps.Identity)
	authMiddleware := middleware.Auth(deps.Tokens)

	// --- Auth routes ---
	auth := e.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/register", authHandler.Register)
	auth.POST("/google", authHandler.Google)
	auth.POST("/microsoft", authHandler.Microsoft)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout)
	auth.POST("/password-reset/request", authHandler.RequestPasswordReset)
	auth.POST("/password-reset/confirm", authHandler.ConfirmPasswordReset)
	auth.POST("/verify-email", authHandler.VerifyEmail)

	auth.GET("/me", authHandler.Me, authMiddleware)
	auth.POST("/mfa/setup", authHandler.SetupMFA, authMiddleware)
	auth.POST("/mfa/verify", authHandler.VerifyMFA, authMiddleware)
	auth.POST("/verify-email/resend", authHandler.ResendVerificationEmail, authMiddleware)

	// --- Admin routes ---
	if deps.Outbox != nil {
		admin := e.Group("/admin", authMiddleware, middleware.RBAC(domain.RoleAdmin))
		admin.GET("/outbox/:email", handler.NewOutboxHandler(deps.Outbox).List)
	}

	// --- Health probes (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(deps.Checks)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Operational endpoints ---
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil {
				evt = log.Warn().Err(v.Error)
			}
			evt.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
