package types

import (
	"fmt"

	openapierrors "github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

// KnownBatchCallKinds lists the accepted values of BatchCallPayload.Kind.
var KnownBatchCallKinds = []string{
	"relayer_approval",
	"permit",
	"permit_allowed",
	"swap",
	"batch_swap",
	"join_pool",
	"exit_pool",
	"manage_user_balance",
}

// PostBatchPayload is the body of POST /api/v1/relayer/batch. All amounts are
// decimal strings in the asset's smallest unit.
type PostBatchPayload struct {
	Caller        *string             `json:"caller"`
	AttachedValue string              `json:"attached_value,omitempty"`
	Calls         []*BatchCallPayload `json:"calls"`
}

func (m *PostBatchPayload) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("caller", "body", m.Caller); err != nil {
		res = append(res, err)
	}
	if len(m.Calls) == 0 {
		res = append(res, openapierrors.Required("calls", "body", nil))
	}

	for i, call := range m.Calls {
		if call == nil {
			res = append(res, openapierrors.Required(fmt.Sprintf("calls.%d", i), "body", nil))
			continue
		}
		if err := call.Validate(formats); err != nil {
			res = append(res, err)
		}
	}

	if len(res) > 0 {
		return openapierrors.CompositeValidationError(res...)
	}

	return nil
}

// BatchCallPayload is one sub-call of a batch. Kind selects which payload
// field must be set; the server rejects calls whose declared kind has no
// matching payload.
type BatchCallPayload struct {
	Kind  *string `json:"kind"`
	Value string  `json:"value,omitempty"`

	Approval       *RelayerApprovalPayload `json:"approval,omitempty"`
	Permit         *ValuePermitPayload     `json:"permit,omitempty"`
	PermitAllowed  *AllowedPermitPayload   `json:"permit_allowed,omitempty"`
	Swap           *SwapPayload            `json:"swap,omitempty"`
	BatchSwap      *BatchSwapPayload       `json:"batch_swap,omitempty"`
	Join           *JoinPoolPayload        `json:"join,omitempty"`
	Exit           *ExitPoolPayload        `json:"exit,omitempty"`
	UserBalanceOps []*UserBalanceOpPayload `json:"user_balance_ops,omitempty"`
}

func (m *BatchCallPayload) Validate(formats strfmt.Registry) error {
	if err := validate.Required("kind", "body", m.Kind); err != nil {
		return err
	}
	if err := validate.Enum("kind", "body", *m.Kind, KnownBatchCallKinds); err != nil {
		return err
	}

	var res []error

	validatables := []struct {
		set bool
		v   interface{ Validate(strfmt.Registry) error }
	}{
		{m.Approval != nil, m.Approval},
		{m.Permit != nil, m.Permit},
		{m.PermitAllowed != nil, m.PermitAllowed},
		{m.Swap != nil, m.Swap},
		{m.BatchSwap != nil, m.BatchSwap},
		{m.Join != nil, m.Join},
		{m.Exit != nil, m.Exit},
	}
	for _, entry := range validatables {
		if !entry.set {
			continue
		}
		if err := entry.v.Validate(formats); err != nil {
			res = append(res, err)
		}
	}
	for _, op := range m.UserBalanceOps {
		if op == nil {
			continue
		}
		if err := op.Validate(formats); err != nil {
			res = append(res, err)
		}
	}

	if len(res) > 0 {
		return openapierrors.CompositeValidationError(res...)
	}

	return nil
}

// ValuePermitPayload is an EIP-2612 style permit.
type ValuePermitPayload struct {
	Token     *string `json:"token"`
	Owner     *string `json:"owner"`
	Spender   *string `json:"spender"`
	Value     *string `json:"value"`
	Deadline  *int64  `json:"deadline"`
	Signature *string `json:"signature"`
}

func (m *ValuePermitPayload) Validate(formats strfmt.Registry) error {
	return requireAll("body", map[string]interface{}{
		"token":     m.Token,
		"owner":     m.Owner,
		"spender":   m.Spender,
		"value":     m.Value,
		"deadline":  m.Deadline,
		"signature": m.Signature,
	})
}

// AllowedPermitPayload is a boolean permit. Expiry zero means the permit
// never expires.
type AllowedPermitPayload struct {
	Token     *string `json:"token"`
	Holder    *string `json:"holder"`
	Spender   *string `json:"spender"`
	Nonce     *int64  `json:"nonce"`
	Expiry    int64   `json:"expiry,omitempty"`
	Allowed   *bool   `json:"allowed"`
	Signature *string `json:"signature"`
}

func (m *AllowedPermitPayload) Validate(formats strfmt.Registry) error {
	return requireAll("body", map[string]interface{}{
		"token":     m.Token,
		"holder":    m.Holder,
		"spender":   m.Spender,
		"nonce":     m.Nonce,
		"allowed":   m.Allowed,
		"signature": m.Signature,
	})
}

// SwapPayload is a single-hop swap request.
type SwapPayload struct {
	PoolID       *string `json:"pool_id"`
	AssetIn      *string `json:"asset_in"`
	AssetOut     *string `json:"asset_out"`
	AmountIn     *string `json:"amount_in"`
	MinAmountOut string  `json:"min_amount_out,omitempty"`
	Sender       *string `json:"sender"`
	Recipient    *string `json:"recipient"`
}

func (m *SwapPayload) Validate(formats strfmt.Registry) error {
	return requireAll("body", map[string]interface{}{
		"pool_id":   m.PoolID,
		"asset_in":  m.AssetIn,
		"asset_out": m.AssetOut,
		"amount_in": m.AmountIn,
		"sender":    m.Sender,
		"recipient": m.Recipient,
	})
}

// BatchSwapStepPayload is one hop of a multi-hop swap.
type BatchSwapStepPayload struct {
	PoolID   *string `json:"pool_id"`
	AssetIn  *string `json:"asset_in"`
	AssetOut *string `json:"asset_out"`
}

func (m *BatchSwapStepPayload) Validate(formats strfmt.Registry) error {
	return requireAll("body", map[string]interface{}{
		"pool_id":   m.PoolID,
		"asset_in":  m.AssetIn,
		"asset_out": m.AssetOut,
	})
}

// BatchSwapPayload is an ordered multi-hop swap request.
type BatchSwapPayload struct {
	Steps        []*BatchSwapStepPayload `json:"steps"`
	AmountIn     *string                 `json:"amount_in"`
	MinAmountOut string                  `json:"min_amount_out,omitempty"`
	Sender       *string                 `json:"sender"`
	Recipient    *string                 `json:"recipient"`
}

func (m *BatchSwapPayload) Validate(formats strfmt.Registry) error {
	var res []error

	if len(m.Steps) == 0 {
		res = append(res, openapierrors.Required("steps", "body", nil))
	}
	for _, step := range m.Steps {
		if step == nil {
			continue
		}
		if err := step.Validate(formats); err != nil {
			res = append(res, err)
		}
	}
	if err := requireAll("body", map[string]interface{}{
		"amount_in": m.AmountIn,
		"sender":    m.Sender,
		"recipient": m.Recipient,
	}); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return openapierrors.CompositeValidationError(res...)
	}

	return nil
}

// AssetAmountPayload pairs an asset address with an amount.
type AssetAmountPayload struct {
	Asset  *string `json:"asset"`
	Amount *string `json:"amount"`
}

func (m *AssetAmountPayload) Validate(formats strfmt.Registry) error {
	return requireAll("body", map[string]interface{}{
		"asset":  m.Asset,
		"amount": m.Amount,
	})
}

// JoinPoolPayload supplies assets to a pool.
type JoinPoolPayload struct {
	PoolID    *string               `json:"pool_id"`
	Sender    *string               `json:"sender"`
	Recipient *string               `json:"recipient"`
	AssetsIn  []*AssetAmountPayload `json:"assets_in"`
}

func (m *JoinPoolPayload) Validate(formats strfmt.Registry) error {
	var res []error

	if len(m.AssetsIn) == 0 {
		res = append(res, openapierrors.Required("assets_in", "body", nil))
	}
	for _, asset := range m.AssetsIn {
		if asset == nil {
			continue
		}
		if err := asset.Validate(formats); err != nil {
			res = append(res, err)
		}
	}
	if err := requireAll("body", map[string]interface{}{
		"pool_id":   m.PoolID,
		"sender":    m.Sender,
		"recipient": m.Recipient,
	}); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return openapierrors.CompositeValidationError(res...)
	}

	return nil
}

// ExitPoolPayload burns pool shares for the underlying assets.
type ExitPoolPayload struct {
	PoolID    *string `json:"pool_id"`
	Sender    *string `json:"sender"`
	Recipient *string `json:"recipient"`
	SharesIn  *string `json:"shares_in"`
}

func (m *ExitPoolPayload) Validate(formats strfmt.Registry) error {
	return requireAll("body", map[string]interface{}{
		"pool_id":   m.PoolID,
		"sender":    m.Sender,
		"recipient": m.Recipient,
		"shares_in": m.SharesIn,
	})
}

// UserBalanceOpPayload is one internal-balance management step.
type UserBalanceOpPayload struct {
	Kind      *string `json:"kind"`
	Asset     *string `json:"asset"`
	Amount    *string `json:"amount"`
	Sender    *string `json:"sender"`
	Recipient *string `json:"recipient"`
}

func (m *UserBalanceOpPayload) Validate(formats strfmt.Registry) error {
	return requireAll("body", map[string]interface{}{
		"kind":      m.Kind,
		"asset":     m.Asset,
		"amount":    m.Amount,
		"sender":    m.Sender,
		"recipient": m.Recipient,
	})
}

// BatchCallResult is one sub-call's result in a batch response.
type BatchCallResult struct {
	Kind      *string `json:"kind"`
	AmountOut string  `json:"amount_out,omitempty"`
}

func (m *BatchCallResult) Validate(formats strfmt.Registry) error {
	if err := validate.Required("kind", "body", m.Kind); err != nil {
		return err
	}

	return nil
}

// BatchResponse is the body of a successful batch execution.
type BatchResponse struct {
	Results []*BatchCallResult `json:"results"`
}

func (m *BatchResponse) Validate(formats strfmt.Registry) error {
	var res []error

	if m.Results == nil {
		res = append(res, openapierrors.Required("results", "body", nil))
	}
	for _, result := range m.Results {
		if result == nil {
			continue
		}
		if err := result.Validate(formats); err != nil {
			res = append(res, err)
		}
	}

	if len(res) > 0 {
		return openapierrors.CompositeValidationError(res...)
	}

	return nil
}

func requireAll(in string, fields map[string]interface{}) error {
	var res []error

	for name, value := range fields {
		if err := validate.Required(name, in, value); err != nil {
			res = append(res, err)
		}
	}

	if len(res) > 0 {
		return openapierrors.CompositeValidationError(res...)
	}

	return nil
}

