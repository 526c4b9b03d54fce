// Package permit normalizes the two incompatible token permit shapes into one
// decode-and-dispatch surface for the batch executor.
//
// No signature verification happens here: each permit is forwarded to the
// token's own permit mechanism, and token-reported failures propagate
// unchanged. The variant is selected by the caller-declared call kind, never
// by payload sniffing.
package permit

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Both permit shapes share the "Permit" primary type; they are distinguished
// by their field layout and by the caller-declared call kind.
const (
	ValuePermitPrimaryType   = "Permit"
	AllowedPermitPrimaryType = "Permit"
)

// ValuePermitFields is the EIP-2612 message layout.
var ValuePermitFields = []apitypes.Type{
	{Name: "owner", Type: "address"},
	{Name: "spender", Type: "address"},
	{Name: "value", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
}

// AllowedPermitFields is the boolean (DAI-style) message layout, keyed by a
// per-holder incrementing nonce instead of a value.
var AllowedPermitFields = []apitypes.Type{
	{Name: "holder", Type: "address"},
	{Name: "spender", Type: "address"},
	{Name: "nonce", Type: "uint256"},
	{Name: "expiry", Type: "uint256"},
	{Name: "allowed", Type: "bool"},
}

// ValuePermit grants spender an allowance of up to Value, expiring at
// Deadline.
type ValuePermit struct {
	Token     common.Address
	Owner     common.Address
	Spender   common.Address
	Value     *big.Int
	Deadline  uint64 // unix seconds
	Signature []byte
}

// Message returns the EIP-712 message for the given owner nonce.
func (p *ValuePermit) Message(nonce uint64) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"owner":    p.Owner.Hex(),
		"spender":  p.Spender.Hex(),
		"value":    (*math.HexOrDecimal256)(p.Value),
		"nonce":    (*math.HexOrDecimal256)(new(big.Int).SetUint64(nonce)),
		"deadline": (*math.HexOrDecimal256)(new(big.Int).SetUint64(p.Deadline)),
	}
}

// AllowedPermit grants (or revokes) an unlimited allowance to Spender.
// Expiry zero means the permit message never expires.
type AllowedPermit struct {
	Token     common.Address
	Holder    common.Address
	Spender   common.Address
	Nonce     uint64
	Expiry    uint64 // unix seconds, 0 = no expiry
	Allowed   bool
	Signature []byte
}

// Message returns the EIP-712 message of the permit.
func (p *AllowedPermit) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"holder":  p.Holder.Hex(),
		"spender": p.Spender.Hex(),
		"nonce":   (*math.HexOrDecimal256)(new(big.Int).SetUint64(p.Nonce)),
		"expiry":  (*math.HexOrDecimal256)(new(big.Int).SetUint64(p.Expiry)),
		"allowed": p.Allowed,
	}
}

// Token is the external token collaborator. Permit verification and allowance
// bookkeeping are the token's own responsibility.
type Token interface {
	// Permit applies a value-based (EIP-2612) permit.
	Permit(ctx context.Context, owner, spender common.Address, value *big.Int, deadline uint64, sig []byte) error

	// PermitAllowed applies a boolean (DAI-style) permit.
	PermitAllowed(ctx context.Context, holder, spender common.Address, nonce, expiry uint64, allowed bool, sig []byte) error

	// Allowance returns the current allowance from owner to spender.
	Allowance(owner, spender common.Address) *big.Int

	// Nonce returns the holder's next permit nonce.
	Nonce(holder common.Address) uint64

	// BalanceOf returns the holder's token balance.
	BalanceOf(holder common.Address) *big.Int

	// Transfer moves tokens out of the caller's own balance.
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error

	// TransferFrom moves tokens from `from` to `to` using the allowance
	// granted to `spender`.
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
}

// Service is the permit adapter consumed by the batch executor.
type Service interface {
	ApplyValuePermit(ctx context.Context, p *ValuePermit) error
	ApplyAllowedPermit(ctx context.Context, p *AllowedPermit) error
}
