package api

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/schoolms/portal-client/internal/api/handler"
	"github.com/schoolms/portal-client/internal/api/middleware"
	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Auth      ports.AuthService
	JWTSecret string
	Log       zerolog.Logger
	// Registry receives the HTTP metrics. A fresh registry is created when nil.
	Registry *prometheus.Registry
	Checks   map[string]handler.HealthCheck
	Now      func() time.Time
	// Prefix mounts the auth and dashboard routes, e.g. "/api".
	Prefix string
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "api",
		Registerer: d.Registry,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(d.Auth)
	dashboardHandler := handler.NewDashboardHandler(d.Now)
	authMiddleware := middleware.Auth(d.JWTSecret, jwt.WithTimeFunc(d.Now))

	// --- Auth routes ---
	apiGroup := e.Group(strings.TrimRight(d.Prefix, "/"))
	auth := apiGroup.Group("/auth")
	auth.POST("/login/", authHandler.Login)
	auth.POST("/refresh/", authHandler.Refresh)
	auth.POST("/logout/", authHandler.Logout)
	auth.GET("/me/", authHandler.Me, authMiddleware)

	// --- Dashboard routes ---
	dash := apiGroup.Group("/dashboard", authMiddleware)
	dash.GET("/stats/", dashboardHandler.Stats)
	dash.GET("/recent-activity/", dashboardHandler.RecentActivity)
	dash.GET("/upcoming-events/", dashboardHandler.UpcomingEvents)
	dash.POST("/upcoming-events/", dashboardHandler.CreateEvent,
		middleware.RBAC(domain.RoleAdmin, domain.RoleTeacher))

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler(d.Checks)
	e.GET("/health", healthHandler.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: prometheus.Gatherers{d.Registry, prometheus.DefaultGatherer},
	}))

	return e
}

// requestLogger writes one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
