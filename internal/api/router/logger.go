package router

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type RequestLoggerConfig struct {
	Level             zerolog.Level
	LogRequestBody    bool
	LogRequestHeader  bool
	LogRequestQuery   bool
	LogResponseBody   bool
	LogResponseHeader bool
}

// RequestLoggerWithConfig attaches a request-scoped zerolog logger to the
// request context and emits one log line per request at the configured level.
func RequestLoggerWithConfig(cfg RequestLoggerConfig) echo.MiddlewareFunc {
	attachLogger := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			l := log.With().
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Logger()

			c.SetRequest(req.WithContext(l.WithContext(req.Context())))

			return next(c)
		}
	}

	logValues := middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:           true,
		LogStatus:        true,
		LogMethod:        true,
		LogLatency:       true,
		LogError:         true,
		LogRequestID:     true,
		LogContentLength: cfg.LogRequestBody,
		LogResponseSize:  cfg.LogResponseBody,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := log.WithLevel(cfg.Level).
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("bytes_in", v.ContentLength).
				Int64("bytes_out", v.ResponseSize)

			if cfg.LogRequestQuery {
				evt = evt.Str("query", c.Request().URL.RawQuery)
			}
			if cfg.LogRequestHeader {
				evt = evt.Interface("request_header", c.Request().Header)
			}
			if cfg.LogResponseHeader {
				evt = evt.Interface("response_header", c.Response().Header())
			}
			if v.Error != nil {
				evt = evt.Err(v.Error)
			}

			evt.Msg("Request")

			return nil
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return logValues(attachLogger(next))
	}
}
