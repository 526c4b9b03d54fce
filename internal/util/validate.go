package util

import (
	"net/http"

	openapierrors "github.com/go-openapi/errors"
	"github.com/go-openapi/runtime"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"

	"github/chapool/vault-relayer/internal/api/httperrors"
	"github/chapool/vault-relayer/internal/types"
)

// BindAndValidateBody binds the request body to the given payload and runs
// its validation, turning validation failures into a public HTTP error.
func BindAndValidateBody(c echo.Context, v runtime.Validatable) error {
	binder := c.Echo().Binder.(*echo.DefaultBinder)

	if err := binder.BindBody(c, v); err != nil {
		return err
	}

	return validatePayload(c, v)
}

func validatePayload(c echo.Context, v runtime.Validatable) error {
	if err := v.Validate(strfmt.Default); err != nil {
		switch e := err.(type) {
		case *openapierrors.CompositeError:
			LogFromEchoContext(c).Debug().Errs("validation_errors", e.Errors).Msg("Payload did match schema, returning HTTP validation error")

			valErrs := formatValidationErrors(e.Errors)

			return httperrors.NewHTTPValidationError(http.StatusBadRequest, types.PublicHTTPErrorTypeGeneric, http.StatusText(http.StatusBadRequest), valErrs)
		case *openapierrors.Validation:
			LogFromEchoContext(c).Debug().AnErr("validation_error", e).Msg("Payload did match schema, returning HTTP validation error")

			valErrs := []*types.HTTPValidationErrorDetail{
				{
					Key:   &e.Name,
					In:    &e.In,
					Error: swag.String(e.Error()),
				},
			}

			return httperrors.NewHTTPValidationError(http.StatusBadRequest, types.PublicHTTPErrorTypeGeneric, http.StatusText(http.StatusBadRequest), valErrs)
		default:
			LogFromEchoContext(c).Error().Err(err).Msg("Failed to validate payload, returning generic HTTP error")
			return err
		}
	}

	return nil
}

// ValidateAndReturn writes the response payload after validating it, catching
// malformed responses before they reach a client.
func ValidateAndReturn(c echo.Context, code int, v runtime.Validatable) error {
	if err := v.Validate(strfmt.Default); err != nil {
		return err
	}

	return c.JSON(code, v)
}

func formatValidationErrors(errs []error) []*types.HTTPValidationErrorDetail {
	valErrs := make([]*types.HTTPValidationErrorDetail, 0, len(errs))

	for _, err := range errs {
		switch e := err.(type) {
		case *openapierrors.Validation:
			valErrs = append(valErrs, &types.HTTPValidationErrorDetail{
				Key:   &e.Name,
				In:    &e.In,
				Error: swag.String(e.Error()),
			})
		case *openapierrors.CompositeError:
			valErrs = append(valErrs, formatValidationErrors(e.Errors)...)
		default:
			valErrs = append(valErrs, &types.HTTPValidationErrorDetail{
				Key:   swag.String("unknown"),
				In:    swag.String("body"),
				Error: swag.String(err.Error()),
			})
		}
	}

	return valErrs
}
