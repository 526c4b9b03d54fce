package batch_test

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/vault-relayer/internal/relayer"
	"github/chapool/vault-relayer/internal/relayer/authz"
	"github/chapool/vault-relayer/internal/relayer/batch"
	"github/chapool/vault-relayer/internal/relayer/permit"
	"github/chapool/vault-relayer/internal/relayer/typeddata"
	"github/chapool/vault-relayer/internal/relayer/vault"
)

var (
	chainID     = big.NewInt(31337)
	relayerAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	vaultAddr   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	tokenAAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenBAddr  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

type fixture struct {
	clock    *clock.Mock
	verifier *typeddata.Verifier
	authz    authz.Service
	registry *permit.Registry
	tokenA   *permit.MemoryToken
	tokenB   *permit.MemoryToken
	vault    *vault.MemoryVault
	executor *batch.Executor
}

// newFixture builds a fully wired executor over the in-memory ledger. When
// wrap is non-nil the executor sees the wrapped vault while the fixture keeps
// direct access to the underlying ledger.
func newFixture(t *testing.T, wrap func(vault.Vault) vault.Vault) *fixture {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(time.Unix(1_000_000, 0))

	verifier := typeddata.NewVerifier("VaultRelayer", "1", chainID, relayerAddr)
	authzSvc := authz.NewService(verifier, mock)

	registry := permit.NewRegistry()
	tokenA := permit.NewMemoryToken("Token A", chainID, tokenAAddr, mock)
	tokenB := permit.NewMemoryToken("Token B", chainID, tokenBAddr, mock)
	registry.Register(tokenAAddr, tokenA)
	registry.Register(tokenBAddr, tokenB)

	memVault := vault.NewMemoryVault(vaultAddr, relayerAddr, registry)
	memVault.GrantRelayer(relayerAddr, vault.Ops...)
	memVault.CreatePool("pool-ab", 2, 1)

	var v vault.Vault = memVault
	if wrap != nil {
		v = wrap(memVault)
	}

	forwarder := vault.NewForwarder(v, authzSvc, relayerAddr)
	executor := batch.NewExecutor(relayerAddr, authzSvc, permit.NewService(registry), registry, forwarder, v)

	return &fixture{
		clock:    mock,
		verifier: verifier,
		authz:    authzSvc,
		registry: registry,
		tokenA:   tokenA,
		tokenB:   tokenB,
		vault:    memVault,
		executor: executor,
	}
}

func (f *fixture) approvalCall(t *testing.T, key *ecdsa.PrivateKey, nonce uint64) batch.Call {
	t.Helper()

	grant := &authz.Grant{
		Signer:   crypto.PubkeyToAddress(key.PublicKey),
		Relayer:  relayerAddr,
		Approved: true,
		Nonce:    nonce,
		Deadline: 2_000_000,
	}

	sig, err := f.verifier.Sign(key, authz.GrantPrimaryType, authz.GrantFields, grant.Message())
	require.NoError(t, err)
	grant.Signature = sig

	return batch.Call{Kind: batch.KindRelayerApproval, Approval: grant}
}

func (f *fixture) allowedPermitCall(t *testing.T, key *ecdsa.PrivateKey) batch.Call {
	t.Helper()

	holder := crypto.PubkeyToAddress(key.PublicKey)
	p := &permit.AllowedPermit{
		Token:   tokenAAddr,
		Holder:  holder,
		Spender: vaultAddr,
		Nonce:   f.tokenA.Nonce(holder),
		Allowed: true,
	}

	sig, err := f.tokenA.Verifier().Sign(key, permit.AllowedPermitPrimaryType, permit.AllowedPermitFields, p.Message())
	require.NoError(t, err)
	p.Signature = sig

	return batch.Call{Kind: batch.KindAllowedPermit, AllowedPermit: p}
}

func swapCall(signer common.Address, amountIn int64) batch.Call {
	return batch.Call{
		Kind: batch.KindSwap,
		Swap: &vault.SwapRequest{
			PoolID:   "pool-ab",
			AssetIn:  tokenAAddr,
			AssetOut: tokenBAddr,
			AmountIn: big.NewInt(amountIn),
			Sender:   signer, Recipient: signer,
		},
	}
}

func TestExecutePermitAndSwapFirstTransaction(t *testing.T) {
	f := newFixture(t, nil)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.tokenA.Mint(signer, big.NewInt(1_000))

	// the signer has never approved the relayer: approval, permit and swap
	// all ride in one batch
	calls := []batch.Call{
		f.approvalCall(t, key, 1),
		f.allowedPermitCall(t, key),
		swapCall(signer, 100),
	}

	results, err := f.executor.Execute(t.Context(), signer, calls, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, batch.KindSwap, results[2].Kind)
	assert.Zero(t, results[2].AmountOut.Cmp(big.NewInt(200)))

	assert.Zero(t, f.tokenA.Allowance(signer, vaultAddr).Cmp(math.MaxBig256))
	assert.Zero(t, f.vault.InternalBalance(signer, tokenBAddr).Cmp(big.NewInt(200)))

	effects := f.vault.Effects()
	require.Len(t, effects, 1)
	assert.Equal(t, "swap", effects[0].Kind)
	assert.Zero(t, effects[0].AmountIn.Cmp(big.NewInt(100)))
	assert.Zero(t, effects[0].AmountOut.Cmp(big.NewInt(200)))
}

func TestExecuteOrderingIsCallersResponsibility(t *testing.T) {
	f := newFixture(t, nil)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.tokenA.Mint(signer, big.NewInt(1_000))

	// the swap precedes the approval it depends on
	calls := []batch.Call{
		f.allowedPermitCall(t, key),
		swapCall(signer, 100),
		f.approvalCall(t, key, 1),
	}

	_, err = f.executor.Execute(t.Context(), signer, calls, nil)
	require.Error(t, err)

	var batchErr *batch.Error
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 1, batchErr.Index)
	assert.Equal(t, batch.KindSwap, batchErr.Kind)
	assert.True(t, errors.Is(err, relayer.ErrNotApproved))
}

func TestExecuteAtomicRollback(t *testing.T) {
	f := newFixture(t, nil)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.tokenA.Mint(signer, big.NewInt(1_000))

	approval := f.approvalCall(t, key, 1)
	calls := []batch.Call{
		approval,
		f.allowedPermitCall(t, key),
		swapCall(signer, 100),
		{Kind: batch.KindSwap, Swap: &vault.SwapRequest{
			PoolID:   "no-such-pool",
			AssetIn:  tokenAAddr,
			AssetOut: tokenBAddr,
			AmountIn: big.NewInt(1),
			Sender:   signer, Recipient: signer,
		}},
	}

	_, err = f.executor.Execute(t.Context(), signer, calls, nil)
	require.Error(t, err)

	var batchErr *batch.Error
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 3, batchErr.Index)

	// nothing from calls 0..2 is observable
	assert.False(t, f.authz.IsApproved(signer, relayerAddr))
	assert.Zero(t, f.tokenA.Allowance(signer, vaultAddr).Sign())
	assert.Equal(t, uint64(0), f.tokenA.Nonce(signer))
	assert.Zero(t, f.tokenA.BalanceOf(signer).Cmp(big.NewInt(1_000)))
	assert.Zero(t, f.vault.InternalBalance(signer, tokenBAddr).Sign())
	assert.Empty(t, f.vault.Effects())

	// the approval nonce was rolled back and is usable again
	_, err = f.executor.Execute(t.Context(), signer, []batch.Call{approval}, nil)
	require.NoError(t, err)
	assert.True(t, f.authz.IsApproved(signer, relayerAddr))
}

func TestExecuteJoinConsumesExactAttachedValue(t *testing.T) {
	f := newFixture(t, nil)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.vault.FundNative(signer, big.NewInt(1_000))

	calls := []batch.Call{
		f.approvalCall(t, key, 1),
		{
			Kind:  batch.KindJoinPool,
			Value: big.NewInt(100),
			Join: &vault.JoinRequest{
				PoolID:    "pool-ab",
				Sender:    signer,
				Recipient: signer,
				AssetsIn:  []vault.AssetAmount{{Asset: vault.NativeAsset, Amount: big.NewInt(100)}},
			},
		},
	}

	_, err = f.executor.Execute(t.Context(), signer, calls, big.NewInt(100))
	require.NoError(t, err)

	assert.Zero(t, f.vault.NativeBalance(signer).Cmp(big.NewInt(900)))
	assert.Zero(t, f.vault.NativeBalance(relayerAddr).Sign(), "forwarder must hold zero leftover value")
	assert.Zero(t, f.vault.PoolShares("pool-ab", signer).Cmp(big.NewInt(100)))
}

func TestExecuteRefundsUnallocatedValue(t *testing.T) {
	f := newFixture(t, nil)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.vault.FundNative(signer, big.NewInt(1_000))

	calls := []batch.Call{
		f.approvalCall(t, key, 1),
		{
			Kind:  batch.KindSwap,
			Value: big.NewInt(100),
			Swap: &vault.SwapRequest{
				PoolID:   "pool-ab",
				AssetIn:  vault.NativeAsset,
				AssetOut: tokenBAddr,
				AmountIn: big.NewInt(100),
				Sender:   signer, Recipient: signer,
			},
		},
	}

	// 120 attached, only 100 required: exactly 20 comes back
	_, err = f.executor.Execute(t.Context(), signer, calls, big.NewInt(120))
	require.NoError(t, err)

	assert.Zero(t, f.vault.NativeBalance(signer).Cmp(big.NewInt(900)))
	assert.Zero(t, f.vault.NativeBalance(relayerAddr).Sign(), "forwarder must retain zero")
	assert.Zero(t, f.vault.NativeBalance(vaultAddr).Cmp(big.NewInt(100)))
}

func TestExecuteOverAllocationFailsCall(t *testing.T) {
	f := newFixture(t, nil)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.vault.FundNative(signer, big.NewInt(1_000))

	calls := []batch.Call{
		f.approvalCall(t, key, 1),
		{
			Kind:  batch.KindSwap,
			Value: big.NewInt(100),
			Swap: &vault.SwapRequest{
				PoolID:   "pool-ab",
				AssetIn:  vault.NativeAsset,
				AssetOut: tokenBAddr,
				AmountIn: big.NewInt(100),
				Sender:   signer, Recipient: signer,
			},
		},
	}

	_, err = f.executor.Execute(t.Context(), signer, calls, big.NewInt(50))
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayer.ErrInsufficientValue))

	// full rollback, including the attached-value custody transfer
	assert.Zero(t, f.vault.NativeBalance(signer).Cmp(big.NewInt(1_000)))
	assert.Zero(t, f.vault.NativeBalance(relayerAddr).Sign())
}

// failingRefundVault lets the custody transfer through, then fails the
// refund leg.
type failingRefundVault struct {
	vault.Vault
	sends int
}

func (v *failingRefundVault) SendNative(from, to common.Address, amount *big.Int) error {
	v.sends++
	if v.sends > 1 {
		return errors.New("vault: native transfer rejected")
	}

	return v.Vault.SendNative(from, to, amount)
}

func TestExecuteRefundFailureAbortsInvocation(t *testing.T) {
	var wrapped *failingRefundVault
	f := newFixture(t, func(v vault.Vault) vault.Vault {
		wrapped = &failingRefundVault{Vault: v}
		return wrapped
	})

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.vault.FundNative(signer, big.NewInt(1_000))

	calls := []batch.Call{f.approvalCall(t, key, 1)}

	_, err = f.executor.Execute(t.Context(), signer, calls, big.NewInt(30))
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayer.ErrRefundFailed))

	// the caller lost nothing
	assert.Zero(t, f.vault.NativeBalance(signer).Cmp(big.NewInt(1_000)))
	assert.False(t, f.authz.IsApproved(signer, relayerAddr))
}

// reenteringVault simulates a malicious ledger callback that re-enters the
// executor mid-batch.
type reenteringVault struct {
	vault.Vault
	executor **batch.Executor
	caller   common.Address
	inner    error
}

func (v *reenteringVault) Swap(ctx context.Context, req *vault.SwapRequest, val *big.Int) (*vault.SwapResult, error) {
	_, v.inner = (*v.executor).Execute(ctx, v.caller, nil, nil)

	return v.Vault.Swap(ctx, req, val)
}

func TestExecuteRejectsReentrancy(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	var executor *batch.Executor
	wrapped := &reenteringVault{executor: &executor, caller: signer}
	f := newFixture(t, func(v vault.Vault) vault.Vault {
		wrapped.Vault = v
		return wrapped
	})
	executor = f.executor

	f.tokenA.Mint(signer, big.NewInt(1_000))

	calls := []batch.Call{
		f.approvalCall(t, key, 1),
		f.allowedPermitCall(t, key),
		swapCall(signer, 100),
	}

	_, err = f.executor.Execute(t.Context(), signer, calls, nil)
	require.NoError(t, err, "outer batch proceeds, the nested attempt is what gets rejected")

	require.Error(t, wrapped.inner)
	assert.True(t, errors.Is(wrapped.inner, relayer.ErrReentrantCall))
}

func TestExecuteConcurrentSameNonce(t *testing.T) {
	f := newFixture(t, nil)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	call := f.approvalCall(t, key, 7)

	const racers = 2
	results := make([]error, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.executor.Execute(context.Background(), signer, []batch.Call{call}, nil)
		}(i)
	}
	wg.Wait()

	var wins, replays int
	for _, res := range results {
		switch {
		case res == nil:
			wins++
		case errors.Is(res, relayer.ErrNonceUsed):
			replays++
		default:
			t.Fatalf("unexpected error: %v", res)
		}
	}

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, replays)
}

func TestExecuteCollectFailsWhenCallerUnderfunded(t *testing.T) {
	f := newFixture(t, nil)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	_, err = f.executor.Execute(t.Context(), signer, []batch.Call{f.approvalCall(t, key, 1)}, big.NewInt(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to collect attached value")
}

func TestExecuteUnknownKind(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.executor.Execute(t.Context(), common.HexToAddress("0x01"), []batch.Call{{Kind: "bogus"}}, nil)
	require.Error(t, err)

	var batchErr *batch.Error
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 0, batchErr.Index)
}

func TestExecuteWrongRelayerGrantRejected(t *testing.T) {
	f := newFixture(t, nil)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	call := f.approvalCall(t, key, 1)
	call.Approval.Relayer = common.HexToAddress("0xdead")

	_, err = f.executor.Execute(t.Context(), crypto.PubkeyToAddress(key.PublicKey), []batch.Call{call}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayer.ErrBadSignature))
}

// stallingVault blocks the first swap until released, holding its batch open
// so another invocation can be submitted while it is in flight.
type stallingVault struct {
	vault.Vault
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (v *stallingVault) Swap(ctx context.Context, req *vault.SwapRequest, val *big.Int) (*vault.SwapResult, error) {
	v.once.Do(func() { close(v.entered) })
	<-v.release

	return v.Vault.Swap(ctx, req, val)
}

func TestExecuteAbortDoesNotRevertOtherApprovals(t *testing.T) {
	stalling := &stallingVault{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, func(v vault.Vault) vault.Vault {
		stalling.Vault = v
		return stalling
	})

	keyA, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerA := crypto.PubkeyToAddress(keyA.PublicKey)
	f.tokenA.Mint(signerA, big.NewInt(1_000))

	keyB, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerB := crypto.PubkeyToAddress(keyB.PublicKey)

	// signer A's batch stalls in the swap and then aborts on the unknown pool
	badSwap := swapCall(signerA, 100)
	badSwap.Swap.PoolID = "no-such-pool"
	batchCalls := []batch.Call{f.approvalCall(t, keyA, 1), f.allowedPermitCall(t, keyA), badSwap}
	approvalB := []batch.Call{f.approvalCall(t, keyB, 1)}

	var wg sync.WaitGroup
	var batchErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, batchErr = f.executor.Execute(context.Background(), signerA, batchCalls, nil)
	}()

	<-stalling.entered

	// signer B's standalone approval arrives while the batch is in flight; it
	// must serialize behind it instead of interleaving with its journal
	approvalDone := make(chan error, 1)
	go func() {
		_, err := f.executor.Execute(context.Background(), signerB, approvalB, nil)
		approvalDone <- err
	}()

	close(stalling.release)
	wg.Wait()
	require.NoError(t, <-approvalDone)

	var abortErr *batch.Error
	require.True(t, errors.As(batchErr, &abortErr))
	assert.Equal(t, 2, abortErr.Index)

	// the abort took signer A's state with it and nothing of signer B's
	assert.False(t, f.authz.IsApproved(signerA, relayerAddr))
	assert.True(t, f.authz.IsApproved(signerB, relayerAddr))

	// signer B's nonce was consumed exactly once
	_, err = f.executor.Execute(t.Context(), signerB, []batch.Call{f.approvalCall(t, keyB, 1)}, nil)
	assert.True(t, errors.Is(err, relayer.ErrNonceUsed))
}
