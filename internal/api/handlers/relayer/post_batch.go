package relayer

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github/chapool/vault-relayer/internal/api"
	"github/chapool/vault-relayer/internal/api/httperrors"
	relayererrors "github/chapool/vault-relayer/internal/relayer"
	"github/chapool/vault-relayer/internal/relayer/audit"
	"github/chapool/vault-relayer/internal/relayer/batch"
	"github/chapool/vault-relayer/internal/types"
	"github/chapool/vault-relayer/internal/util"
)

func PostBatchRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Relayer.POST("/batch", postBatchHandler(s))
}

func postBatchHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body types.PostBatchPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		caller, err := parseAddress("caller", body.Caller)
		if err != nil {
			return err
		}
		attached, err := parseOptionalAmount("attached_value", body.AttachedValue)
		if err != nil {
			return err
		}

		calls := make([]batch.Call, 0, len(body.Calls))
		for _, p := range body.Calls {
			call, err := callFromPayload(p)
			if err != nil {
				return err
			}
			calls = append(calls, call)
		}

		results, execErr := s.Executor.Execute(ctx, caller, calls, attached)

		recordBatchAudit(ctx, s, caller, body.AttachedValue, len(calls), execErr)

		if execErr != nil {
			log.Debug().Err(execErr).Str("caller", caller.Hex()).Msg("Batch execution failed")
			return mapExecuteError(execErr)
		}

		items := make([]*types.BatchCallResult, 0, len(results))
		for _, r := range results {
			item := &types.BatchCallResult{Kind: swag.String(string(r.Kind))}
			if r.AmountOut != nil {
				item.AmountOut = r.AmountOut.String()
			}
			items = append(items, item)
		}

		return util.ValidateAndReturn(c, http.StatusOK, &types.BatchResponse{Results: items})
	}
}

func recordBatchAudit(ctx context.Context, s *api.Server, caller common.Address, attachedValue string, callCount int, execErr error) {
	rec := &audit.Record{
		Caller:        caller.Hex(),
		Status:        "ok",
		CallCount:     callCount,
		AttachedValue: attachedValue,
	}

	if execErr != nil {
		rec.Status = "aborted"
		rec.FailureReason = execErr.Error()

		var batchErr *batch.Error
		if errors.As(execErr, &batchErr) {
			idx := batchErr.Index
			rec.FailedIndex = &idx
		}
	}

	if err := s.Audit.RecordBatch(ctx, rec); err != nil {
		util.LogFromContext(ctx).Warn().Err(err).Msg("Failed to record batch audit entry")
	}
}

// mapExecuteError translates executor failures into public HTTP errors. When
// the failure is tied to a sub-call, its position and kind are carried in the
// error payload's additional data.
func mapExecuteError(err error) error {
	mapped := mapExecuteCause(err)

	var batchErr *batch.Error
	if !errors.As(err, &batchErr) {
		return mapped
	}

	withPosition := httperrors.NewHTTPError(int(*mapped.Code), *mapped.Type, *mapped.Title)
	withPosition.Internal = err
	withPosition.AdditionalData = map[string]interface{}{
		"failedCallIndex": batchErr.Index,
		"failedCallKind":  string(batchErr.Kind),
	}

	return withPosition
}

func mapExecuteCause(err error) *httperrors.HTTPError {
	switch {
	case errors.Is(err, relayererrors.ErrAuthorizationExpired):
		return httperrors.ErrBadRequestAuthorizationExpired
	case errors.Is(err, relayererrors.ErrNonceUsed):
		return httperrors.ErrConflictNonceUsed
	case errors.Is(err, relayererrors.ErrInvalidSignature), errors.Is(err, relayererrors.ErrBadSignature):
		return httperrors.ErrBadRequestInvalidSignature
	case errors.Is(err, relayererrors.ErrNotApproved), errors.Is(err, relayererrors.ErrRelayerNotGranted):
		return httperrors.ErrForbiddenNotApproved
	case errors.Is(err, relayererrors.ErrInsufficientValue):
		return httperrors.ErrBadRequestInsufficientValue
	case errors.Is(err, relayererrors.ErrRefundFailed):
		return httperrors.ErrBadGatewayRefundFailed
	case errors.Is(err, relayererrors.ErrUnknownToken):
		return httperrors.ErrBadRequestUnknownToken
	case errors.Is(err, relayererrors.ErrReentrantCall):
		return httperrors.ErrConflictReentrantCall
	default:
		return httperrors.NewHTTPError(http.StatusBadRequest, types.PublicHTTPErrorTypeBatchAborted, err.Error())
	}
}
