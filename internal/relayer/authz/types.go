package authz

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// GrantPrimaryType is the EIP-712 primary type of a relayer approval grant.
const GrantPrimaryType = "RelayerApproval"

// GrantFields is the EIP-712 type layout of a relayer approval grant. The
// signer is not part of the message; it is recovered from the signature.
var GrantFields = []apitypes.Type{
	{Name: "relayer", Type: "address"},
	{Name: "approved", Type: "bool"},
	{Name: "nonce", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
}

// Grant is a one-time, time-bounded authorization in which a signer grants or
// revokes the relayer's permission to act on their behalf at the vault. It is
// created off-chain by the signer and consumed exactly once.
type Grant struct {
	Signer    common.Address
	Relayer   common.Address
	Approved  bool
	Nonce     uint64
	Deadline  uint64 // unix seconds
	Signature []byte
}

// Message returns the EIP-712 message representation of the grant.
func (g *Grant) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"relayer":  g.Relayer.Hex(),
		"approved": g.Approved,
		"nonce":    (*math.HexOrDecimal256)(new(big.Int).SetUint64(g.Nonce)),
		"deadline": (*math.HexOrDecimal256)(new(big.Int).SetUint64(g.Deadline)),
	}
}

// Service owns all replay protection and approval state for relayer grants.
//
// Mutations are journaled: Snapshot/RevertToSnapshot let the batch executor
// undo nonce consumption and approval changes when an enclosing batch aborts.
type Service interface {
	// SetApproval verifies a signed grant, consumes its nonce and applies the
	// approval or revocation to the (signer, relayer) pair.
	SetApproval(ctx context.Context, grant *Grant) error

	// IsApproved reports whether signer has currently approved relayer.
	IsApproved(signer, relayer common.Address) bool

	// Snapshot marks the current journal position.
	Snapshot() int

	// RevertToSnapshot undoes every mutation made after the given snapshot.
	RevertToSnapshot(id int)
}
