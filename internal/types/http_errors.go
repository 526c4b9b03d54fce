// Package types holds the public request and response payloads of the HTTP
// API. Every payload implements runtime.Validatable so handlers can bind and
// validate with a single call.
package types

import (
	openapierrors "github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

// Public error type discriminators returned in the "type" field.
const (
	PublicHTTPErrorTypeGeneric              = "generic"
	PublicHTTPErrorTypeInvalidSignature     = "INVALID_SIGNATURE"
	PublicHTTPErrorTypeAuthorizationExpired = "AUTHORIZATION_EXPIRED"
	PublicHTTPErrorTypeNonceUsed            = "NONCE_USED"
	PublicHTTPErrorTypeNotApproved          = "NOT_APPROVED"
	PublicHTTPErrorTypeInsufficientValue    = "INSUFFICIENT_VALUE"
	PublicHTTPErrorTypeRefundFailed         = "REFUND_FAILED"
	PublicHTTPErrorTypeUnknownToken         = "UNKNOWN_TOKEN"
	PublicHTTPErrorTypeBatchAborted         = "BATCH_ABORTED"
)

// PublicHTTPError is the wire representation of an error response.
type PublicHTTPError struct {
	Code  *int64  `json:"status"`
	Title *string `json:"title"`
	Type  *string `json:"type"`
}

func (m *PublicHTTPError) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("status", "body", m.Code); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("title", "body", m.Title); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("type", "body", m.Type); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return openapierrors.CompositeValidationError(res...)
	}

	return nil
}

// HTTPValidationErrorDetail describes one failed payload field.
type HTTPValidationErrorDetail struct {
	Key   *string `json:"key"`
	In    *string `json:"in"`
	Error *string `json:"error"`
}

func (m *HTTPValidationErrorDetail) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("key", "body", m.Key); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("in", "body", m.In); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("error", "body", m.Error); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return openapierrors.CompositeValidationError(res...)
	}

	return nil
}

// PublicHTTPValidationError extends PublicHTTPError with per-field details.
type PublicHTTPValidationError struct {
	PublicHTTPError

	ValidationErrors []*HTTPValidationErrorDetail `json:"validationErrors"`
}

func (m *PublicHTTPValidationError) Validate(formats strfmt.Registry) error {
	var res []error

	if err := m.PublicHTTPError.Validate(formats); err != nil {
		res = append(res, err)
	}

	for _, detail := range m.ValidationErrors {
		if detail == nil {
			continue
		}
		if err := detail.Validate(formats); err != nil {
			res = append(res, err)
		}
	}

	if len(res) > 0 {
		return openapierrors.CompositeValidationError(res...)
	}

	return nil
}
