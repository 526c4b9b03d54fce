// Package batch executes an ordered sequence of relayer sub-calls as one
// all-or-nothing unit.
package batch

import (
	"fmt"
	"math/big"

	"github/chapool/vault-relayer/internal/relayer/authz"
	"github/chapool/vault-relayer/internal/relayer/permit"
	"github/chapool/vault-relayer/internal/relayer/vault"
)

// Kind selects a sub-call variant.
type Kind string

const (
	KindRelayerApproval   Kind = "relayer_approval"
	KindValuePermit       Kind = "permit"
	KindAllowedPermit     Kind = "permit_allowed"
	KindSwap              Kind = "swap"
	KindBatchSwap         Kind = "batch_swap"
	KindJoinPool          Kind = "join_pool"
	KindExitPool          Kind = "exit_pool"
	KindManageUserBalance Kind = "manage_user_balance"
)

// Call is one decoded sub-call of a batch: a tagged variant whose payload
// field is selected by Kind. Value is the native amount the call forwards to
// the vault; calls that forward no value leave it nil. A Call has no
// identity beyond the invocation it belongs to.
type Call struct {
	Kind  Kind
	Value *big.Int

	Approval      *authz.Grant
	ValuePermit   *permit.ValuePermit
	AllowedPermit *permit.AllowedPermit
	Swap          *vault.SwapRequest
	BatchSwap     *vault.BatchSwapRequest
	Join          *vault.JoinRequest
	Exit          *vault.ExitRequest
	UserBalance   []vault.UserBalanceOp
}

// Result is one sub-call's return data. AmountOut is set for swap kinds.
type Result struct {
	Kind      Kind
	AmountOut *big.Int
}

// Error reports which sub-call aborted the batch, with the failure reason
// unchanged.
type Error struct {
	Index int
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("batch call %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
