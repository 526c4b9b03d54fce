package httperrors

import (
	"net/http"

	"github/chapool/vault-relayer/internal/types"
)

var (
	ErrBadRequestInvalidSignature     = NewHTTPError(http.StatusBadRequest, types.PublicHTTPErrorTypeInvalidSignature, "Signature is malformed or does not match the signer.")
	ErrBadRequestAuthorizationExpired = NewHTTPError(http.StatusBadRequest, types.PublicHTTPErrorTypeAuthorizationExpired, "Authorization deadline has passed.")
	ErrConflictNonceUsed              = NewHTTPError(http.StatusConflict, types.PublicHTTPErrorTypeNonceUsed, "Authorization nonce was already consumed.")
	ErrForbiddenNotApproved           = NewHTTPError(http.StatusForbidden, types.PublicHTTPErrorTypeNotApproved, "Signer has not approved this relayer.")
	ErrBadRequestInsufficientValue    = NewHTTPError(http.StatusBadRequest, types.PublicHTTPErrorTypeInsufficientValue, "Attached value does not cover the batch's requirements.")
	ErrBadGatewayRefundFailed         = NewHTTPError(http.StatusBadGateway, types.PublicHTTPErrorTypeRefundFailed, "Refund of unspent value failed, batch was rolled back.")
	ErrBadRequestUnknownToken         = NewHTTPError(http.StatusBadRequest, types.PublicHTTPErrorTypeUnknownToken, "Token is not known to this relayer.")
	ErrConflictReentrantCall          = NewHTTPError(http.StatusConflict, types.PublicHTTPErrorTypeGeneric, "Nested batch execution is not allowed.")
)
