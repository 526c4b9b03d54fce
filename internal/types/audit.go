package types

import (
	openapierrors "github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

// BatchRecordItem is one audited batch execution.
type BatchRecordItem struct {
	ID            *strfmt.UUID     `json:"id"`
	Caller        *string          `json:"caller"`
	Status        *string          `json:"status"`
	CallCount     *int64           `json:"call_count"`
	FailedIndex   *int64           `json:"failed_index,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	AttachedValue string           `json:"attached_value,omitempty"`
	CreatedAt     *strfmt.DateTime `json:"created_at"`
}

func (m *BatchRecordItem) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("id", "body", m.ID); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("caller", "body", m.Caller); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("status", "body", m.Status); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("call_count", "body", m.CallCount); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("created_at", "body", m.CreatedAt); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return openapierrors.CompositeValidationError(res...)
	}

	return nil
}

// GetBatchesResponse lists audited batches of a caller, newest first.
type GetBatchesResponse struct {
	Batches []*BatchRecordItem `json:"batches"`
}

func (m *GetBatchesResponse) Validate(formats strfmt.Registry) error {
	var res []error

	if m.Batches == nil {
		res = append(res, openapierrors.Required("batches", "body", nil))
	}
	for _, item := range m.Batches {
		if item == nil {
			continue
		}
		if err := item.Validate(formats); err != nil {
			res = append(res, err)
		}
	}

	if len(res) > 0 {
		return openapierrors.CompositeValidationError(res...)
	}

	return nil
}
