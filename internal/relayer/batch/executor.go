package batch

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github/chapool/vault-relayer/internal/relayer"
	"github/chapool/vault-relayer/internal/relayer/authz"
	"github/chapool/vault-relayer/internal/relayer/permit"
	"github/chapool/vault-relayer/internal/relayer/value"
	"github/chapool/vault-relayer/internal/relayer/vault"
)

type ctxKey int

// inFlightKey marks a context whose call path already runs a batch. A vault
// callback re-entering Execute inherits the marker and is rejected, while an
// unrelated concurrent invocation carries its own context and merely
// serializes on the executor mutex.
const inFlightKey ctxKey = 0

// Executor runs batches of sub-calls atomically. Distinct invocations are
// serialized; within one invocation sub-calls run strictly in the order
// supplied.
// Observer receives execution telemetry. All methods must be fast and must
// not fail; a nil observer disables telemetry.
type Observer interface {
	ObserveBatch(status string, duration time.Duration)
	CountSubCall(kind string)
	AddRefundedValue(wei *big.Int)
}

type Executor struct {
	mu sync.Mutex

	relayer   common.Address
	authz     authz.Service
	permits   permit.Service
	registry  *permit.Registry
	forwarder *vault.Forwarder
	vault     vault.Vault
	observer  Observer
}

// NewExecutor wires the executor over its collaborating components.
func NewExecutor(
	relayerAddr common.Address,
	authzService authz.Service,
	permitService permit.Service,
	registry *permit.Registry,
	forwarder *vault.Forwarder,
	v vault.Vault,
) *Executor {
	return &Executor{
		relayer:   relayerAddr,
		authz:     authzService,
		permits:   permitService,
		registry:  registry,
		forwarder: forwarder,
		vault:     v,
	}
}

// Relayer returns the identity the executor acts as.
func (e *Executor) Relayer() common.Address {
	return e.relayer
}

// SetObserver attaches execution telemetry. Must be called before the first
// Execute.
func (e *Executor) SetObserver(o Observer) {
	e.observer = o
}

// Execute runs the calls in order as one transaction. On success it returns
// every sub-call's result in order and refunds unallocated attached value to
// the caller. On any sub-call failure every mutation of this batch — nonce
// consumption, approvals, token allowances, ledger balances — is rolled back
// and a *batch.Error surfaces the failing position and cause.
//
// The rollback snapshots are plain journal marks: they only stay correct
// because every write to relayer state, including standalone approvals, is
// submitted through Execute and therefore serialized on the same mutex.
func (e *Executor) Execute(ctx context.Context, caller common.Address, calls []Call, attached *big.Int) ([]Result, error) {
	if ctx.Value(inFlightKey) != nil {
		return nil, relayer.ErrReentrantCall
	}
	ctx = context.WithValue(ctx, inFlightKey, struct{}{})

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()

	authzSnap := e.authz.Snapshot()
	vaultSnap := e.vault.Snapshot()
	tokenSnap := e.registry.Snapshot()
	revert := func() {
		e.registry.RevertToSnapshot(tokenSnap)
		e.vault.RevertToSnapshot(vaultSnap)
		e.authz.RevertToSnapshot(authzSnap)
	}

	acct := value.NewAccountant(attached)

	// take custody of the attached value for the duration of the batch
	if attached != nil && attached.Sign() > 0 {
		if err := e.vault.SendNative(caller, e.relayer, attached); err != nil {
			revert()
			e.finish("collect_failed", start)

			return nil, errors.Wrap(err, "failed to collect attached value")
		}
	}

	results := make([]Result, 0, len(calls))
	for i := range calls {
		res, err := e.dispatch(ctx, &calls[i], acct)
		if err != nil {
			revert()
			e.finish("aborted", start)
			log.Debug().Int("call", i).Str("kind", string(calls[i].Kind)).Err(err).Msg("Batch aborted")

			return nil, &Error{Index: i, Kind: calls[i].Kind, Err: err}
		}
		if e.observer != nil {
			e.observer.CountSubCall(string(calls[i].Kind))
		}
		results = append(results, res)
	}

	if refund := acct.Refund(); refund.Sign() > 0 {
		if err := e.vault.SendNative(e.relayer, caller, refund); err != nil {
			revert()
			e.finish("refund_failed", start)

			return nil, errors.Wrap(relayer.ErrRefundFailed, err.Error())
		}
		if e.observer != nil {
			e.observer.AddRefundedValue(refund)
		}
	}

	e.finish("ok", start)

	return results, nil
}

func (e *Executor) finish(status string, start time.Time) {
	if e.observer != nil {
		e.observer.ObserveBatch(status, time.Since(start))
	}
}

func (e *Executor) dispatch(ctx context.Context, call *Call, acct *value.Accountant) (Result, error) {
	res := Result{Kind: call.Kind}

	switch call.Kind {
	case KindRelayerApproval:
		if call.Approval == nil {
			return res, errors.New("missing approval payload")
		}
		if call.Approval.Relayer != e.relayer {
			return res, errors.Wrapf(relayer.ErrBadSignature, "grant targets %s, not this relayer", call.Approval.Relayer.Hex())
		}

		return res, e.authz.SetApproval(ctx, call.Approval)

	case KindValuePermit:
		if call.ValuePermit == nil {
			return res, errors.New("missing permit payload")
		}

		return res, e.permits.ApplyValuePermit(ctx, call.ValuePermit)

	case KindAllowedPermit:
		if call.AllowedPermit == nil {
			return res, errors.New("missing permit payload")
		}

		return res, e.permits.ApplyAllowedPermit(ctx, call.AllowedPermit)

	case KindSwap:
		if call.Swap == nil {
			return res, errors.New("missing swap payload")
		}
		out, err := e.forwarder.Swap(ctx, call.Swap, acct, call.Value)
		if err != nil {
			return res, err
		}
		res.AmountOut = out.AmountOut

		return res, nil

	case KindBatchSwap:
		if call.BatchSwap == nil {
			return res, errors.New("missing batch swap payload")
		}
		out, err := e.forwarder.BatchSwap(ctx, call.BatchSwap, acct, call.Value)
		if err != nil {
			return res, err
		}
		res.AmountOut = out.AmountOut

		return res, nil

	case KindJoinPool:
		if call.Join == nil {
			return res, errors.New("missing join payload")
		}

		return res, e.forwarder.JoinPool(ctx, call.Join, acct, call.Value)

	case KindExitPool:
		if call.Exit == nil {
			return res, errors.New("missing exit payload")
		}

		return res, e.forwarder.ExitPool(ctx, call.Exit)

	case KindManageUserBalance:
		if len(call.UserBalance) == 0 {
			return res, errors.New("missing user balance ops")
		}

		return res, e.forwarder.ManageUserBalance(ctx, call.UserBalance, acct, call.Value)

	default:
		return res, errors.Errorf("unknown call kind %q", call.Kind)
	}
}
