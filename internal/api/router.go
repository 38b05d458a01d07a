package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/99minutos/direct-messaging/internal/api/handler"
	"github.com/99minutos/direct-messaging/internal/api/middleware"
	"github.com/99minutos/direct-messaging/internal/api/realtime"
	"github.com/99minutos/direct-messaging/internal/core/ports"
	"github.com/99minutos/direct-messaging/internal/infrastructure/http/handlers"
)

// Dependencies is everything the HTTP surface is built from.
type Dependencies struct {
	Auth           ports.AuthService
	Directory      ports.DirectoryService
	Verifier       ports.IdentityVerifier
	Realtime       *realtime.Handler
	Checks         map[string]handlers.Check
	AllowedOrigins []string
	Log            zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: deps.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(requestLogger(deps.Log))

	// --- Health probes (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(deps.Checks)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// --- Realtime channel (authenticates during the handshake) ---
	e.GET("/ws", deps.Realtime.Serve)

	// --- REST ---
	authHandler := handler.NewAuthHandler(deps.Auth)
	userHandler := handler.NewUserHandler(deps.Directory)
	messageHandler := handler.NewMessageHandler(deps.Directory)

	v1 := e.Group("/api")
	v1.GET("/ping", healthHandler.Ping)
	v1.POST("/auth/register", authHandler.Register)
	v1.POST("/auth/login", authHandler.Login)

	auth := middleware.Auth(deps.Verifier)
	v1.GET("/messages", messageHandler.History, auth)
	v1.GET("/users", userHandler.List, auth)
	v1.GET("/users/me", userHandler.Me, auth)
	v1.GET("/users/:id", userHandler.Get, auth)

	return e
}

// requestLogger writes one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			var evt *zerolog.Event
			switch {
			case v.Status >= 500:
				evt = log.Error().Err(v.Error)
			case v.Error != nil:
				evt = log.Warn().Err(v.Error)
			default:
				evt = log.Info()
			}
			evt.
				Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
