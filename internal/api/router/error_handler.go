package router

import (
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github/chapool/vault-relayer/internal/api/httperrors"
	"github/chapool/vault-relayer/internal/types"
)

type HTTPErrorHandlerConfig struct {
	HideInternalServerErrorDetails bool
}

// HTTPErrorHandlerWithConfig renders every error as a types.PublicHTTPError
// (or its validation variant), hiding internal server error details when
// configured.
func HTTPErrorHandlerWithConfig(cfg HTTPErrorHandlerConfig) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var code int
		var payload interface{}

		var httpError *httperrors.HTTPError
		var validationError *httperrors.HTTPValidationError
		var echoError *echo.HTTPError

		switch {
		case errors.As(err, &validationError):
			code = int(*validationError.Code)
			payload = validationError
		case errors.As(err, &httpError):
			code = int(*httpError.Code)
			payload = httpError
		case errors.As(err, &echoError):
			code = echoError.Code
			payload = &types.PublicHTTPError{
				Code:  swag.Int64(int64(echoError.Code)),
				Title: swag.String(http.StatusText(echoError.Code)),
				Type:  swag.String(types.PublicHTTPErrorTypeGeneric),
			}
		default:
			code = http.StatusInternalServerError
			title := err.Error()
			if cfg.HideInternalServerErrorDetails {
				title = http.StatusText(http.StatusInternalServerError)
			}
			payload = &types.PublicHTTPError{
				Code:  swag.Int64(http.StatusInternalServerError),
				Title: swag.String(title),
				Type:  swag.String(types.PublicHTTPErrorTypeGeneric),
			}
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, payload)
		}

		if writeErr != nil {
			log.Error().Err(writeErr).Msg("Failed to write error response")
		}
	}
}
