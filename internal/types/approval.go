package types

import (
	openapierrors "github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

// RelayerApprovalPayload is a signed relayer approval grant as submitted by a
// client. Numbers that exceed int64 range are not expected here: nonces and
// deadlines are plain counters and unix timestamps.
type RelayerApprovalPayload struct {
	Signer    *string `json:"signer"`
	Relayer   *string `json:"relayer"`
	Approved  *bool   `json:"approved"`
	Nonce     *int64  `json:"nonce"`
	Deadline  *int64  `json:"deadline"`
	Signature *string `json:"signature"`
}

func (m *RelayerApprovalPayload) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("signer", "body", m.Signer); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("relayer", "body", m.Relayer); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("approved", "body", m.Approved); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("nonce", "body", m.Nonce); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("deadline", "body", m.Deadline); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("signature", "body", m.Signature); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return openapierrors.CompositeValidationError(res...)
	}

	return nil
}

// PostApprovalPayload is the body of POST /api/v1/relayer/approval.
type PostApprovalPayload struct {
	Approval *RelayerApprovalPayload `json:"approval"`
}

func (m *PostApprovalPayload) Validate(formats strfmt.Registry) error {
	if err := validate.Required("approval", "body", m.Approval); err != nil {
		return err
	}

	return m.Approval.Validate(formats)
}

// ApprovalResponse reports the current approval state of a (signer, relayer)
// pair.
type ApprovalResponse struct {
	Signer   *string `json:"signer"`
	Relayer  *string `json:"relayer"`
	Approved *bool   `json:"approved"`
}

func (m *ApprovalResponse) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("signer", "body", m.Signer); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("relayer", "body", m.Relayer); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("approved", "body", m.Approved); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return openapierrors.CompositeValidationError(res...)
	}

	return nil
}
