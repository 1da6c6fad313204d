package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"goupdate/internal/core"
	"goupdate/internal/products"
	"goupdate/internal/resolver"
)

// bodySizeLimit caps request bodies. No route reads a body.
const bodySizeLimit = "64K"

// DefaultMetricsPath is used when the configured metrics endpoint is empty or
// would shadow an API route.
const DefaultMetricsPath = "/metrics"

// reservedPrefixes are owned by API routes and cannot host the metrics endpoint.
var reservedPrefixes = []string{"/admin", "/products", "/check", "/health"}

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	MasterKey       string        // Optional: enables the admin API, protected by this key
	MetricsEnabled  bool          // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string        // HTTP path for metrics endpoint (default: /metrics)
	RequestTimeout  time.Duration // How long a check waits for a cache refresh (default: 10s)
}

// New creates a new HTTP server
func New(registry *products.Registry, changelogs *resolver.Changelogs, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(registry, changelogs, cfg.RequestTimeout)

	// Global middleware stack (order matters)
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			ctx := core.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
		},
	}))
	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodySizeLimit))

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		e.GET(MetricsPath(cfg.MetricsEndpoint), echo.WrapHandler(promhttp.Handler()))
	}

	// Update checks, by Host header
	e.GET("/check/:current_version", handler.SimpleCheck)
	e.GET("/:target/:arch/:current_version", handler.PlatformCheck)

	// Update checks, by product name
	e.GET("/products/:product/check/:current_version", handler.ProductSimpleCheck)
	e.GET("/products/:product/:target/:arch/:current_version", handler.ProductPlatformCheck)

	// Admin API, only with a master key
	if cfg.MasterKey != "" {
		admin := e.Group("/admin/api/v1", AuthMiddleware(cfg.MasterKey))
		admin.GET("/products", handler.ListProducts)
		admin.GET("/products/:product", handler.GetProduct)
		admin.POST("/products/:product/invalidate", handler.InvalidateProduct)
	}

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// MetricsPath normalizes the configured metrics endpoint. Paths that would
// shadow an API route fall back to /metrics.
func MetricsPath(endpoint string) string {
	if endpoint == "" {
		return DefaultMetricsPath
	}
	// Normalize path to prevent traversal attacks
	p := path.Clean("/" + endpoint)
	if p == "/" {
		return DefaultMetricsPath
	}
	for _, prefix := range reservedPrefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			slog.Warn("metrics endpoint collides with an API route, using default",
				"configured", endpoint,
				"path", DefaultMetricsPath,
			)
			return DefaultMetricsPath
		}
	}
	return p
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogHost:      true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"host", v.Host,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if product := core.GetProduct(c.Request().Context()); product != "" {
				attrs = append(attrs, "product", product)
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
				slog.Warn("request failed", attrs...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	})
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
