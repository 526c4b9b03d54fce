// Package router builds the echo instance, its middleware chain and the
// route groups of the server.
package router

import (
	"io"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github/chapool/vault-relayer/internal/api"
	"github/chapool/vault-relayer/internal/api/handlers"
)

func Init(s *api.Server) {
	s.Echo = echo.New()

	s.Echo.Debug = s.Config.Echo.Debug
	s.Echo.HideBanner = true
	s.Echo.Logger.SetOutput(io.Discard)

	s.Echo.HTTPErrorHandler = HTTPErrorHandlerWithConfig(HTTPErrorHandlerConfig{
		HideInternalServerErrorDetails: s.Config.Echo.HideInternalServerErrorDetails,
	})

	// middleware order matters: requests pass from top to bottom
	if s.Config.Echo.EnableTrailingSlashMiddleware {
		s.Echo.Pre(middleware.RemoveTrailingSlash())
	}

	if s.Config.Echo.EnableRecoverMiddleware {
		s.Echo.Use(middleware.Recover())
	}

	if s.Config.Echo.EnableRequestIDMiddleware {
		s.Echo.Use(middleware.RequestID())
	}

	if s.Config.Echo.EnableLoggerMiddleware {
		s.Echo.Use(RequestLoggerWithConfig(RequestLoggerConfig{
			Level:             s.Config.Logger.RequestLevel,
			LogRequestBody:    s.Config.Logger.LogRequestBody,
			LogRequestHeader:  s.Config.Logger.LogRequestHeader,
			LogRequestQuery:   s.Config.Logger.LogRequestQuery,
			LogResponseBody:   s.Config.Logger.LogResponseBody,
			LogResponseHeader: s.Config.Logger.LogResponseHeader,
		}))
	}

	if s.Config.Echo.EnableCORSMiddleware {
		s.Echo.Use(middleware.CORS())
	}

	if s.Config.Metrics.Enabled {
		s.Echo.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Registerer: s.Metrics.Registry(),
			Subsystem:  "relayer_http",
		}))
	}

	s.Router = &api.Router{
		Routes:       nil, // will be populated by handlers.AttachAllRoutes
		Root:         s.Echo.Group(""),
		Management:   s.Echo.Group("/-"),
		APIV1Relayer: s.Echo.Group("/api/v1/relayer"),
	}

	if s.Config.Metrics.Enabled {
		s.Echo.GET(s.Config.Metrics.Path, echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
			Gatherer: s.Metrics.Registry(),
		}))
	}

	handlers.AttachAllRoutes(s)
}
