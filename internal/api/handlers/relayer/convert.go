package relayer

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-openapi/swag"

	"github/chapool/vault-relayer/internal/api/httperrors"
	"github/chapool/vault-relayer/internal/relayer/authz"
	"github/chapool/vault-relayer/internal/relayer/batch"
	"github/chapool/vault-relayer/internal/relayer/permit"
	"github/chapool/vault-relayer/internal/relayer/vault"
	"github/chapool/vault-relayer/internal/types"
)

func newFieldError(key, msg string) error {
	return httperrors.NewHTTPValidationError(
		http.StatusBadRequest,
		types.PublicHTTPErrorTypeGeneric,
		http.StatusText(http.StatusBadRequest),
		[]*types.HTTPValidationErrorDetail{
			{
				Key:   swag.String(key),
				In:    swag.String("body"),
				Error: swag.String(msg),
			},
		},
	)
}

func parseAddress(key string, value *string) (common.Address, error) {
	if value == nil || !common.IsHexAddress(*value) {
		return common.Address{}, newFieldError(key, "must be a hex address")
	}

	return common.HexToAddress(*value), nil
}

// parseAmount parses a required non-negative decimal string.
func parseAmount(key string, value *string) (*big.Int, error) {
	if value == nil {
		return nil, newFieldError(key, "required")
	}

	amount, ok := new(big.Int).SetString(*value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, newFieldError(key, "must be a non-negative decimal number")
	}

	return amount, nil
}

// parseOptionalAmount parses an optional decimal string; empty means nil.
func parseOptionalAmount(key, value string) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}

	return parseAmount(key, &value)
}

func parseSignature(key string, value *string) ([]byte, error) {
	if value == nil {
		return nil, newFieldError(key, "required")
	}

	sig, err := hexutil.Decode(*value)
	if err != nil {
		return nil, newFieldError(key, "must be a 0x-prefixed hex string")
	}

	return sig, nil
}

func grantFromPayload(p *types.RelayerApprovalPayload) (*authz.Grant, error) {
	signer, err := parseAddress("signer", p.Signer)
	if err != nil {
		return nil, err
	}
	relayerAddr, err := parseAddress("relayer", p.Relayer)
	if err != nil {
		return nil, err
	}
	sig, err := parseSignature("signature", p.Signature)
	if err != nil {
		return nil, err
	}
	if *p.Nonce < 0 || *p.Deadline < 0 {
		return nil, newFieldError("nonce", "must be non-negative")
	}

	return &authz.Grant{
		Signer:    signer,
		Relayer:   relayerAddr,
		Approved:  *p.Approved,
		Nonce:     uint64(*p.Nonce),
		Deadline:  uint64(*p.Deadline),
		Signature: sig,
	}, nil
}

func valuePermitFromPayload(p *types.ValuePermitPayload) (*permit.ValuePermit, error) {
	token, err := parseAddress("token", p.Token)
	if err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", p.Owner)
	if err != nil {
		return nil, err
	}
	spender, err := parseAddress("spender", p.Spender)
	if err != nil {
		return nil, err
	}
	value, err := parseAmount("value", p.Value)
	if err != nil {
		return nil, err
	}
	sig, err := parseSignature("signature", p.Signature)
	if err != nil {
		return nil, err
	}
	if *p.Deadline < 0 {
		return nil, newFieldError("deadline", "must be non-negative")
	}

	return &permit.ValuePermit{
		Token:     token,
		Owner:     owner,
		Spender:   spender,
		Value:     value,
		Deadline:  uint64(*p.Deadline),
		Signature: sig,
	}, nil
}

func allowedPermitFromPayload(p *types.AllowedPermitPayload) (*permit.AllowedPermit, error) {
	token, err := parseAddress("token", p.Token)
	if err != nil {
		return nil, err
	}
	holder, err := parseAddress("holder", p.Holder)
	if err != nil {
		return nil, err
	}
	spender, err := parseAddress("spender", p.Spender)
	if err != nil {
		return nil, err
	}
	sig, err := parseSignature("signature", p.Signature)
	if err != nil {
		return nil, err
	}
	if *p.Nonce < 0 || p.Expiry < 0 {
		return nil, newFieldError("nonce", "must be non-negative")
	}

	return &permit.AllowedPermit{
		Token:     token,
		Holder:    holder,
		Spender:   spender,
		Nonce:     uint64(*p.Nonce),
		Expiry:    uint64(p.Expiry),
		Allowed:   *p.Allowed,
		Signature: sig,
	}, nil
}

func swapFromPayload(p *types.SwapPayload) (*vault.SwapRequest, error) {
	assetIn, err := parseAddress("asset_in", p.AssetIn)
	if err != nil {
		return nil, err
	}
	assetOut, err := parseAddress("asset_out", p.AssetOut)
	if err != nil {
		return nil, err
	}
	amountIn, err := parseAmount("amount_in", p.AmountIn)
	if err != nil {
		return nil, err
	}
	minAmountOut, err := parseOptionalAmount("min_amount_out", p.MinAmountOut)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddress("sender", p.Sender)
	if err != nil {
		return nil, err
	}
	recipient, err := parseAddress("recipient", p.Recipient)
	if err != nil {
		return nil, err
	}

	return &vault.SwapRequest{
		PoolID:       *p.PoolID,
		AssetIn:      assetIn,
		AssetOut:     assetOut,
		AmountIn:     amountIn,
		MinAmountOut: minAmountOut,
		Sender:       sender,
		Recipient:    recipient,
	}, nil
}

func batchSwapFromPayload(p *types.BatchSwapPayload) (*vault.BatchSwapRequest, error) {
	steps := make([]vault.BatchSwapStep, 0, len(p.Steps))
	for _, step := range p.Steps {
		assetIn, err := parseAddress("asset_in", step.AssetIn)
		if err != nil {
			return nil, err
		}
		assetOut, err := parseAddress("asset_out", step.AssetOut)
		if err != nil {
			return nil, err
		}
		steps = append(steps, vault.BatchSwapStep{
			PoolID:   *step.PoolID,
			AssetIn:  assetIn,
			AssetOut: assetOut,
		})
	}

	amountIn, err := parseAmount("amount_in", p.AmountIn)
	if err != nil {
		return nil, err
	}
	minAmountOut, err := parseOptionalAmount("min_amount_out", p.MinAmountOut)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddress("sender", p.Sender)
	if err != nil {
		return nil, err
	}
	recipient, err := parseAddress("recipient", p.Recipient)
	if err != nil {
		return nil, err
	}

	return &vault.BatchSwapRequest{
		Steps:        steps,
		AmountIn:     amountIn,
		MinAmountOut: minAmountOut,
		Sender:       sender,
		Recipient:    recipient,
	}, nil
}

func joinFromPayload(p *types.JoinPoolPayload) (*vault.JoinRequest, error) {
	sender, err := parseAddress("sender", p.Sender)
	if err != nil {
		return nil, err
	}
	recipient, err := parseAddress("recipient", p.Recipient)
	if err != nil {
		return nil, err
	}

	assetsIn := make([]vault.AssetAmount, 0, len(p.AssetsIn))
	for _, asset := range p.AssetsIn {
		addr, err := parseAddress("asset", asset.Asset)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", asset.Amount)
		if err != nil {
			return nil, err
		}
		assetsIn = append(assetsIn, vault.AssetAmount{Asset: addr, Amount: amount})
	}

	return &vault.JoinRequest{
		PoolID:    *p.PoolID,
		Sender:    sender,
		Recipient: recipient,
		AssetsIn:  assetsIn,
	}, nil
}

func exitFromPayload(p *types.ExitPoolPayload) (*vault.ExitRequest, error) {
	sender, err := parseAddress("sender", p.Sender)
	if err != nil {
		return nil, err
	}
	recipient, err := parseAddress("recipient", p.Recipient)
	if err != nil {
		return nil, err
	}
	sharesIn, err := parseAmount("shares_in", p.SharesIn)
	if err != nil {
		return nil, err
	}

	return &vault.ExitRequest{
		PoolID:    *p.PoolID,
		Sender:    sender,
		Recipient: recipient,
		SharesIn:  sharesIn,
	}, nil
}

func userBalanceOpsFromPayload(ops []*types.UserBalanceOpPayload) ([]vault.UserBalanceOp, error) {
	res := make([]vault.UserBalanceOp, 0, len(ops))

	for _, op := range ops {
		asset, err := parseAddress("asset", op.Asset)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", op.Amount)
		if err != nil {
			return nil, err
		}
		sender, err := parseAddress("sender", op.Sender)
		if err != nil {
			return nil, err
		}
		recipient, err := parseAddress("recipient", op.Recipient)
		if err != nil {
			return nil, err
		}

		res = append(res, vault.UserBalanceOp{
			Kind:      vault.UserBalanceOpKind(*op.Kind),
			Asset:     asset,
			Amount:    amount,
			Sender:    sender,
			Recipient: recipient,
		})
	}

	return res, nil
}

// callFromPayload decodes one sub-call, requiring the payload variant that
// matches the declared kind.
func callFromPayload(p *types.BatchCallPayload) (batch.Call, error) {
	call := batch.Call{Kind: batch.Kind(*p.Kind)}

	value, err := parseOptionalAmount("value", p.Value)
	if err != nil {
		return call, err
	}
	call.Value = value

	switch call.Kind {
	case batch.KindRelayerApproval:
		if p.Approval == nil {
			return call, newFieldError("approval", "required for kind relayer_approval")
		}
		call.Approval, err = grantFromPayload(p.Approval)
	case batch.KindValuePermit:
		if p.Permit == nil {
			return call, newFieldError("permit", "required for kind permit")
		}
		call.ValuePermit, err = valuePermitFromPayload(p.Permit)
	case batch.KindAllowedPermit:
		if p.PermitAllowed == nil {
			return call, newFieldError("permit_allowed", "required for kind permit_allowed")
		}
		call.AllowedPermit, err = allowedPermitFromPayload(p.PermitAllowed)
	case batch.KindSwap:
		if p.Swap == nil {
			return call, newFieldError("swap", "required for kind swap")
		}
		call.Swap, err = swapFromPayload(p.Swap)
	case batch.KindBatchSwap:
		if p.BatchSwap == nil {
			return call, newFieldError("batch_swap", "required for kind batch_swap")
		}
		call.BatchSwap, err = batchSwapFromPayload(p.BatchSwap)
	case batch.KindJoinPool:
		if p.Join == nil {
			return call, newFieldError("join", "required for kind join_pool")
		}
		call.Join, err = joinFromPayload(p.Join)
	case batch.KindExitPool:
		if p.Exit == nil {
			return call, newFieldError("exit", "required for kind exit_pool")
		}
		call.Exit, err = exitFromPayload(p.Exit)
	case batch.KindManageUserBalance:
		if len(p.UserBalanceOps) == 0 {
			return call, newFieldError("user_balance_ops", "required for kind manage_user_balance")
		}
		call.UserBalance, err = userBalanceOpsFromPayload(p.UserBalanceOps)
	default:
		return call, newFieldError("kind", "unknown call kind")
	}

	return call, err
}
