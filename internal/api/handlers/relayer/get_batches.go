package relayer

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"

	"github/chapool/vault-relayer/internal/api"
	"github/chapool/vault-relayer/internal/types"
	"github/chapool/vault-relayer/internal/util"
)

func GetBatchesRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Relayer.GET("/batches/:caller", getBatchesHandler(s))
}

// getBatchesHandler lists audited batch executions of a caller, newest
// first. Without an audit database the list is always empty.
func getBatchesHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		callerParam := c.Param("caller")
		if !common.IsHexAddress(callerParam) {
			return echo.NewHTTPError(http.StatusBadRequest, "caller must be a hex address")
		}
		caller := common.HexToAddress(callerParam)

		limit := 0
		if raw := c.QueryParam("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
			}
			limit = parsed
		}

		records, err := s.Audit.ListBatches(ctx, caller.Hex(), limit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list batch records")
			return err
		}

		items := make([]*types.BatchRecordItem, 0, len(records))
		for _, rec := range records {
			id := strfmt.UUID(rec.ID)
			createdAt := strfmt.DateTime(rec.CreatedAt)

			item := &types.BatchRecordItem{
				ID:            &id,
				Caller:        swag.String(rec.Caller),
				Status:        swag.String(rec.Status),
				CallCount:     swag.Int64(int64(rec.CallCount)),
				FailureReason: rec.FailureReason,
				AttachedValue: rec.AttachedValue,
				CreatedAt:     &createdAt,
			}
			if rec.FailedIndex != nil {
				item.FailedIndex = swag.Int64(int64(*rec.FailedIndex))
			}

			items = append(items, item)
		}

		return util.ValidateAndReturn(c, http.StatusOK, &types.GetBatchesResponse{Batches: items})
	}
}
