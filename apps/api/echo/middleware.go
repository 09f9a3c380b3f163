package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"
)

// RequestObserver records request latencies.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, took time.Duration)
}

// metricsMiddleware handles the error itself so the observed status is the one sent.
func metricsMiddleware(obs RequestObserver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}
			obs.ObserveRequest(ctx.Request().Method, ctx.Path(), ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
