package api

import (
	"strings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/greenpoint/recycling-ledger/docs"
	"github.com/greenpoint/recycling-ledger/internal/api/handler"
	"github.com/greenpoint/recycling-ledger/internal/api/middleware"
	"github.com/greenpoint/recycling-ledger/internal/core/ports"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Users      ports.UserService
	Ledger     ports.LedgerService
	Dispatcher handler.EventDispatcher
	// Readiness lists the probes run by GET /health/ready, keyed by name.
	Readiness map[string]handler.PingFunc
	// Registry receives the HTTP request metrics. Nil uses the default
	// Prometheus registry, which also holds the ledger metrics.
	Registry *prometheus.Registry
	Log      zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if deps.Registry != nil {
		registerer, gatherer = deps.Registry, deps.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(deps.Log))
	e.Use(echomiddleware.BodyLimit("1M"))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: registerer,
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/metrics" || strings.HasPrefix(p, "/health") || strings.HasPrefix(p, "/swagger")
		},
	}))

	// --- Dependencies ---
	userHandler := handler.NewUserHandler(deps.Users)
	recyclingHandler := handler.NewRecyclingHandler(deps.Ledger, deps.Dispatcher)

	// --- API routes ---
	v1 := e.Group("/v1")
	v1.POST("/users", userHandler.Register)
	v1.GET("/users/:id", userHandler.Get)
	v1.DELETE("/users/:id", userHandler.Deactivate)
	v1.POST("/recycling", recyclingHandler.Record)
	v1.POST("/recycling/batch", recyclingHandler.ReceiveBatch)
	v1.GET("/recycling/:id", recyclingHandler.Get)

	// --- Health probes ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Readiness)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Ops ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
