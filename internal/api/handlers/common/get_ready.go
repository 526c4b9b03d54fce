package common

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github/chapool/vault-relayer/internal/api"
	"github/chapool/vault-relayer/internal/util"
)

const dbPingTimeout = 2 * time.Second

// 521 is used by cloudflare to signal "web server is down"
const statusNotReady = 521

func GetReadyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/ready", getReadyHandler(s))
}

// getReadyHandler is the readiness probe: all components must be initialized
// and, if auditing is enabled, the database must answer a ping.
func getReadyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.Ready() {
			return c.String(statusNotReady, "Not ready.")
		}

		if s.DB != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), dbPingTimeout)
			defer cancel()

			if err := s.DB.PingContext(ctx); err != nil {
				util.LogFromContext(ctx).Debug().Err(err).Msg("Database is not reachable")
				return c.String(statusNotReady, "Not ready.")
			}
		}

		return c.String(http.StatusOK, "Ready.")
	}
}
