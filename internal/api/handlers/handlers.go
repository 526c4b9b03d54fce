// Package handlers attaches every route of the service to the router groups.
package handlers

import (
	"github.com/labstack/echo/v4"

	"github/chapool/vault-relayer/internal/api"
	"github/chapool/vault-relayer/internal/api/handlers/common"
	"github/chapool/vault-relayer/internal/api/handlers/relayer"
)

func AttachAllRoutes(s *api.Server) {
	// attach our routes
	s.Router.Routes = []*echo.Route{
		common.GetHealthyRoute(s),
		common.GetReadyRoute(s),
		relayer.GetApprovalRoute(s),
		relayer.GetBatchesRoute(s),
		relayer.PostApprovalRoute(s),
		relayer.PostBatchRoute(s),
	}
}
