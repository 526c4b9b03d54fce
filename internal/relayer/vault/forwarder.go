package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github/chapool/vault-relayer/internal/relayer"
	"github/chapool/vault-relayer/internal/relayer/authz"
	"github/chapool/vault-relayer/internal/relayer/value"
)

// Forwarder relays vault operations on behalf of a signer using the
// relayer's own identity. Every forwarded call passes two independent gates:
// the vault's coarse relayer grant for the operation, and the signer's
// per-relayer approval held by the Authorization Manager. Vault failures
// propagate verbatim.
type Forwarder struct {
	vault   Vault
	authz   authz.Service
	relayer common.Address
}

// NewForwarder creates a forwarder acting as relayerAddr.
func NewForwarder(v Vault, a authz.Service, relayerAddr common.Address) *Forwarder {
	return &Forwarder{
		vault:   v,
		authz:   a,
		relayer: relayerAddr,
	}
}

// Relayer returns the identity the forwarder acts as.
func (f *Forwarder) Relayer() common.Address {
	return f.relayer
}

func (f *Forwarder) checkAccess(sender common.Address, op Op) error {
	if !f.vault.IsRelayerGranted(f.relayer, op) {
		return errors.Wrapf(relayer.ErrRelayerNotGranted, "operation %s", op)
	}
	if !f.authz.IsApproved(sender, f.relayer) {
		return errors.Wrapf(relayer.ErrNotApproved, "signer %s", sender.Hex())
	}

	return nil
}

// Swap forwards a single-hop swap, allocating callValue from the accountant
// before touching the vault.
func (f *Forwarder) Swap(ctx context.Context, req *SwapRequest, acct *value.Accountant, callValue *big.Int) (*SwapResult, error) {
	if err := f.checkAccess(req.Sender, OpSwap); err != nil {
		return nil, err
	}
	if err := acct.Allocate(callValue); err != nil {
		return nil, err
	}

	return f.vault.Swap(ctx, req, callValue)
}

// BatchSwap forwards a multi-hop swap.
func (f *Forwarder) BatchSwap(ctx context.Context, req *BatchSwapRequest, acct *value.Accountant, callValue *big.Int) (*SwapResult, error) {
	if err := f.checkAccess(req.Sender, OpBatchSwap); err != nil {
		return nil, err
	}
	if err := acct.Allocate(callValue); err != nil {
		return nil, err
	}

	return f.vault.BatchSwap(ctx, req, callValue)
}

// JoinPool forwards a pool join. The minted shares go to the recipient named
// in the request; the forwarder never substitutes its own identity.
func (f *Forwarder) JoinPool(ctx context.Context, req *JoinRequest, acct *value.Accountant, callValue *big.Int) error {
	if err := f.checkAccess(req.Sender, OpJoinPool); err != nil {
		return err
	}
	if err := acct.Allocate(callValue); err != nil {
		return err
	}

	return f.vault.JoinPool(ctx, req, callValue)
}

// ExitPool forwards a pool exit. Exits never carry native value.
func (f *Forwarder) ExitPool(ctx context.Context, req *ExitRequest) error {
	if err := f.checkAccess(req.Sender, OpExitPool); err != nil {
		return err
	}

	return f.vault.ExitPool(ctx, req)
}

// ManageUserBalance forwards a sequence of internal-balance operations. Every
// op is checked against its own sender.
func (f *Forwarder) ManageUserBalance(ctx context.Context, ops []UserBalanceOp, acct *value.Accountant, callValue *big.Int) error {
	for _, op := range ops {
		if err := f.checkAccess(op.Sender, OpManageUserBalance); err != nil {
			return err
		}
	}
	if err := acct.Allocate(callValue); err != nil {
		return err
	}

	return f.vault.ManageUserBalance(ctx, ops, callValue)
}
