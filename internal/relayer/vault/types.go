// Package vault exposes the external value-custody ledger to the batch
// executor: the collaborator interface, the call-relay forwarder and an
// in-memory ledger used by tests and the dev server.
package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the sentinel address marking the chain's native asset in
// asset positions.
var NativeAsset = common.Address{}

// Op identifies a vault operation for capability checks.
type Op string

const (
	OpSwap              Op = "swap"
	OpBatchSwap         Op = "batch_swap"
	OpJoinPool          Op = "join_pool"
	OpExitPool          Op = "exit_pool"
	OpManageUserBalance Op = "manage_user_balance"
)

// Ops lists every forwardable vault operation.
var Ops = []Op{OpSwap, OpBatchSwap, OpJoinPool, OpExitPool, OpManageUserBalance}

// AssetAmount pairs an asset with an amount.
type AssetAmount struct {
	Asset  common.Address
	Amount *big.Int
}

// SwapRequest is a single-hop swap performed on behalf of Sender, paying out
// to Recipient.
type SwapRequest struct {
	PoolID       string
	AssetIn      common.Address
	AssetOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Sender       common.Address
	Recipient    common.Address
}

// SwapResult carries the amount produced by a swap.
type SwapResult struct {
	AmountOut *big.Int
}

// BatchSwapStep is one hop of a multi-hop swap; the input amount of every hop
// after the first is the previous hop's output.
type BatchSwapStep struct {
	PoolID   string
	AssetIn  common.Address
	AssetOut common.Address
}

// BatchSwapRequest is an ordered multi-hop swap.
type BatchSwapRequest struct {
	Steps        []BatchSwapStep
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Sender       common.Address
	Recipient    common.Address
}

// JoinRequest supplies assets to a pool; the minted pool shares are credited
// to Recipient, never to the relayer.
type JoinRequest struct {
	PoolID    string
	Sender    common.Address
	Recipient common.Address
	AssetsIn  []AssetAmount
}

// ExitRequest burns SharesIn of Sender's pool shares, paying the underlying
// assets out to Recipient.
type ExitRequest struct {
	PoolID    string
	Sender    common.Address
	Recipient common.Address
	SharesIn  *big.Int
}

// UserBalanceOpKind selects a vault-internal balance operation.
type UserBalanceOpKind string

const (
	// DepositInternal pulls external tokens from Sender into Recipient's
	// vault-internal balance.
	DepositInternal UserBalanceOpKind = "deposit_internal"
	// WithdrawInternal pays Sender's vault-internal balance out to Recipient
	// as external tokens.
	WithdrawInternal UserBalanceOpKind = "withdraw_internal"
	// TransferInternal moves vault-internal balance between accounts.
	TransferInternal UserBalanceOpKind = "transfer_internal"
	// TransferExternal moves external tokens from Sender to Recipient using
	// the vault's allowance.
	TransferExternal UserBalanceOpKind = "transfer_external"
)

// UserBalanceOp is one internal-balance management step.
type UserBalanceOp struct {
	Kind      UserBalanceOpKind
	Asset     common.Address
	Amount    *big.Int
	Sender    common.Address
	Recipient common.Address
}

// Vault is the external ledger collaborator. Every operation takes the
// acting-for identity inside its request and, where value-bearing, the native
// amount the relayer forwards with the call. Snapshot/RevertToSnapshot bound
// the batch transaction: the executor reverts the vault together with its own
// state when a batch aborts.
type Vault interface {
	Swap(ctx context.Context, req *SwapRequest, val *big.Int) (*SwapResult, error)
	BatchSwap(ctx context.Context, req *BatchSwapRequest, val *big.Int) (*SwapResult, error)
	JoinPool(ctx context.Context, req *JoinRequest, val *big.Int) error
	ExitPool(ctx context.Context, req *ExitRequest) error
	ManageUserBalance(ctx context.Context, ops []UserBalanceOp, val *big.Int) error

	// IsRelayerGranted reports the coarse, governance-provisioned capability
	// of the relayer for one operation.
	IsRelayerGranted(relayer common.Address, op Op) bool

	// SendNative moves native value between accounts.
	SendNative(from, to common.Address, amount *big.Int) error

	Snapshot() int
	RevertToSnapshot(id int)
}
