// Package ops exposes the operational HTTP surface: liveness and readiness
// probes plus Prometheus metrics. It is entirely separate from the TCP
// protocol the clients speak.
package ops

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewRouter builds the Echo instance with all ops routes registered.
// redisPinger may be nil when the credential cache is disabled.
func NewRouter(storePinger Pinger, redisPinger Pinger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	health := NewHealthHandler(storePinger, redisPinger)
	e.GET("/health", health.Liveness)
	e.GET("/health/ready", health.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())

	return e
}
