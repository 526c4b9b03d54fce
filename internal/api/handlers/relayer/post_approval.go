package relayer

import (
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"

	"github/chapool/vault-relayer/internal/api"
	"github/chapool/vault-relayer/internal/relayer/batch"
	"github/chapool/vault-relayer/internal/types"
	"github/chapool/vault-relayer/internal/util"
)

func PostApprovalRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Relayer.POST("/approval", postApprovalHandler(s))
}

// postApprovalHandler applies a single signed approval grant outside a batch.
func postApprovalHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body types.PostApprovalPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		grant, err := grantFromPayload(body.Approval)
		if err != nil {
			return err
		}

		if grant.Relayer != s.Executor.Relayer() {
			return newFieldError("relayer", "grant does not target this relayer")
		}

		// submitted as a one-call batch so approval state only ever moves
		// inside the executor's atomic unit, never concurrently with one
		calls := []batch.Call{{Kind: batch.KindRelayerApproval, Approval: grant}}
		if _, err := s.Executor.Execute(ctx, grant.Signer, calls, nil); err != nil {
			log.Debug().Err(err).Str("signer", grant.Signer.Hex()).Msg("Failed to apply approval grant")
			return mapExecuteError(err)
		}

		response := &types.ApprovalResponse{
			Signer:   swag.String(grant.Signer.Hex()),
			Relayer:  swag.String(grant.Relayer.Hex()),
			Approved: swag.Bool(s.Authz.IsApproved(grant.Signer, grant.Relayer)),
		}

		return util.ValidateAndReturn(c, http.StatusOK, response)
	}
}
