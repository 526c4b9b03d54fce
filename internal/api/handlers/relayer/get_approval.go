package relayer

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"

	"github/chapool/vault-relayer/internal/api"
	"github/chapool/vault-relayer/internal/types"
	"github/chapool/vault-relayer/internal/util"
)

func GetApprovalRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Relayer.GET("/approval/:signer", getApprovalHandler(s))
}

// getApprovalHandler reports whether the signer currently approves this
// relayer.
func getApprovalHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		signerParam := c.Param("signer")
		if !common.IsHexAddress(signerParam) {
			return echo.NewHTTPError(http.StatusBadRequest, "signer must be a hex address")
		}

		signer := common.HexToAddress(signerParam)
		relayerAddr := s.Executor.Relayer()

		response := &types.ApprovalResponse{
			Signer:   swag.String(signer.Hex()),
			Relayer:  swag.String(relayerAddr.Hex()),
			Approved: swag.Bool(s.Authz.IsApproved(signer, relayerAddr)),
		}

		return util.ValidateAndReturn(c, http.StatusOK, response)
	}
}
