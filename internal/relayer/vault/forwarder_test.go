package vault_test

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/vault-relayer/internal/relayer"
	"github/chapool/vault-relayer/internal/relayer/authz"
	"github/chapool/vault-relayer/internal/relayer/permit"
	"github/chapool/vault-relayer/internal/relayer/typeddata"
	"github/chapool/vault-relayer/internal/relayer/value"
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
	clock     *clock.Mock
	verifier  *typeddata.Verifier
	authz     authz.Service
	registry  *permit.Registry
	tokenA    *permit.MemoryToken
	tokenB    *permit.MemoryToken
	vault     *vault.MemoryVault
	forwarder *vault.Forwarder
}

func newFixture(t *testing.T) *fixture {
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
	memVault.CreatePool("pool-ab", 2, 1) // 1 in -> 2 out

	return &fixture{
		clock:     mock,
		verifier:  verifier,
		authz:     authzSvc,
		registry:  registry,
		tokenA:    tokenA,
		tokenB:    tokenB,
		vault:     memVault,
		forwarder: vault.NewForwarder(memVault, authzSvc, relayerAddr),
	}
}

func (f *fixture) approve(t *testing.T, key *ecdsa.PrivateKey, nonce uint64) {
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

	require.NoError(t, f.authz.SetApproval(context.Background(), grant))
}

func (f *fixture) permitTokenA(t *testing.T, key *ecdsa.PrivateKey, amount *big.Int) {
	t.Helper()

	owner := crypto.PubkeyToAddress(key.PublicKey)
	p := &permit.ValuePermit{
		Token:    tokenAAddr,
		Owner:    owner,
		Spender:  vaultAddr,
		Value:    amount,
		Deadline: 2_000_000,
	}

	sig, err := f.tokenA.Verifier().Sign(key, permit.ValuePermitPrimaryType, permit.ValuePermitFields, p.Message(f.tokenA.Nonce(owner)))
	require.NoError(t, err)

	require.NoError(t, f.tokenA.Permit(context.Background(), p.Owner, p.Spender, p.Value, p.Deadline, sig))
}

func TestForwarderRequiresApproval(t *testing.T) {
	f := newFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	req := &vault.SwapRequest{
		PoolID:   "pool-ab",
		AssetIn:  tokenAAddr,
		AssetOut: tokenBAddr,
		AmountIn: big.NewInt(100),
		Sender:   signer, Recipient: signer,
	}

	_, err = f.forwarder.Swap(t.Context(), req, value.NewAccountant(nil), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayer.ErrNotApproved))
}

func TestForwarderRequiresVaultGrant(t *testing.T) {
	f := newFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	f.approve(t, key, 1)

	// a forwarder the vault never heard of
	stranger := vault.NewForwarder(f.vault, f.authz, common.HexToAddress("0xdead"))

	req := &vault.SwapRequest{
		PoolID:   "pool-ab",
		AssetIn:  tokenAAddr,
		AssetOut: tokenBAddr,
		AmountIn: big.NewInt(100),
		Sender:   signer, Recipient: signer,
	}

	_, err = stranger.Swap(t.Context(), req, value.NewAccountant(nil), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayer.ErrRelayerNotGranted))
}

func TestForwarderSwapWithPermit(t *testing.T) {
	f := newFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.approve(t, key, 1)
	f.tokenA.Mint(signer, big.NewInt(1_000))
	f.permitTokenA(t, key, big.NewInt(100))

	req := &vault.SwapRequest{
		PoolID:       "pool-ab",
		AssetIn:      tokenAAddr,
		AssetOut:     tokenBAddr,
		AmountIn:     big.NewInt(100),
		MinAmountOut: big.NewInt(200),
		Sender:       signer, Recipient: signer,
	}

	res, err := f.forwarder.Swap(t.Context(), req, value.NewAccountant(nil), nil)
	require.NoError(t, err)
	assert.Zero(t, res.AmountOut.Cmp(big.NewInt(200)))

	assert.Zero(t, f.tokenA.BalanceOf(signer).Cmp(big.NewInt(900)))
	assert.Zero(t, f.vault.InternalBalance(signer, tokenBAddr).Cmp(big.NewInt(200)))

	effects := f.vault.Effects()
	require.Len(t, effects, 1)
	assert.Equal(t, "swap", effects[0].Kind)
	assert.Zero(t, effects[0].AmountIn.Cmp(big.NewInt(100)))
	assert.Zero(t, effects[0].AmountOut.Cmp(big.NewInt(200)))
}

func TestForwarderSwapWithoutAllowanceFailsVerbatim(t *testing.T) {
	f := newFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.approve(t, key, 1)
	f.tokenA.Mint(signer, big.NewInt(1_000))

	req := &vault.SwapRequest{
		PoolID:   "pool-ab",
		AssetIn:  tokenAAddr,
		AssetOut: tokenBAddr,
		AmountIn: big.NewInt(100),
		Sender:   signer, Recipient: signer,
	}

	_, err = f.forwarder.Swap(t.Context(), req, value.NewAccountant(nil), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient allowance")
}

func TestForwarderNativeSwapAllocatesValue(t *testing.T) {
	f := newFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.approve(t, key, 1)
	f.vault.FundNative(relayerAddr, big.NewInt(100))

	req := &vault.SwapRequest{
		PoolID:   "pool-ab",
		AssetIn:  vault.NativeAsset,
		AssetOut: tokenBAddr,
		AmountIn: big.NewInt(100),
		Sender:   signer, Recipient: signer,
	}

	acct := value.NewAccountant(big.NewInt(100))
	res, err := f.forwarder.Swap(t.Context(), req, acct, big.NewInt(100))
	require.NoError(t, err)
	assert.Zero(t, res.AmountOut.Cmp(big.NewInt(200)))
	assert.Zero(t, acct.Refund().Sign())
	assert.Zero(t, f.vault.NativeBalance(relayerAddr).Sign())
	assert.Zero(t, f.vault.NativeBalance(vaultAddr).Cmp(big.NewInt(100)))
}

func TestForwarderAllocationOverAttachedValue(t *testing.T) {
	f := newFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.approve(t, key, 1)

	req := &vault.SwapRequest{
		PoolID:   "pool-ab",
		AssetIn:  vault.NativeAsset,
		AssetOut: tokenBAddr,
		AmountIn: big.NewInt(100),
		Sender:   signer, Recipient: signer,
	}

	_, err = f.forwarder.Swap(t.Context(), req, value.NewAccountant(big.NewInt(50)), big.NewInt(100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayer.ErrInsufficientValue))
}

func TestForwarderJoinCreditsRecipientNotRelayer(t *testing.T) {
	f := newFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.approve(t, key, 1)
	f.tokenA.Mint(signer, big.NewInt(500))
	f.permitTokenA(t, key, big.NewInt(500))

	req := &vault.JoinRequest{
		PoolID:    "pool-ab",
		Sender:    signer,
		Recipient: signer,
		AssetsIn:  []vault.AssetAmount{{Asset: tokenAAddr, Amount: big.NewInt(500)}},
	}

	require.NoError(t, f.forwarder.JoinPool(t.Context(), req, value.NewAccountant(nil), nil))

	assert.Zero(t, f.vault.PoolShares("pool-ab", signer).Cmp(big.NewInt(500)))
	assert.Zero(t, f.vault.PoolShares("pool-ab", relayerAddr).Sign())
}

func TestForwarderExitPaysOutProportionally(t *testing.T) {
	f := newFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.approve(t, key, 1)
	f.tokenA.Mint(signer, big.NewInt(400))
	f.permitTokenA(t, key, big.NewInt(400))

	join := &vault.JoinRequest{
		PoolID:    "pool-ab",
		Sender:    signer,
		Recipient: signer,
		AssetsIn:  []vault.AssetAmount{{Asset: tokenAAddr, Amount: big.NewInt(400)}},
	}
	require.NoError(t, f.forwarder.JoinPool(t.Context(), join, value.NewAccountant(nil), nil))

	exit := &vault.ExitRequest{
		PoolID:    "pool-ab",
		Sender:    signer,
		Recipient: signer,
		SharesIn:  big.NewInt(100),
	}
	require.NoError(t, f.forwarder.ExitPool(t.Context(), exit))

	assert.Zero(t, f.vault.PoolShares("pool-ab", signer).Cmp(big.NewInt(300)))
	assert.Zero(t, f.vault.InternalBalance(signer, tokenAAddr).Cmp(big.NewInt(100)))
}

func TestForwarderManageUserBalance(t *testing.T) {
	f := newFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	other := common.HexToAddress("0x77")

	f.approve(t, key, 1)
	f.tokenA.Mint(signer, big.NewInt(300))
	f.permitTokenA(t, key, big.NewInt(300))

	ops := []vault.UserBalanceOp{
		{Kind: vault.DepositInternal, Asset: tokenAAddr, Amount: big.NewInt(300), Sender: signer, Recipient: signer},
		{Kind: vault.TransferInternal, Asset: tokenAAddr, Amount: big.NewInt(120), Sender: signer, Recipient: other},
	}

	require.NoError(t, f.forwarder.ManageUserBalance(t.Context(), ops, value.NewAccountant(nil), nil))

	assert.Zero(t, f.vault.InternalBalance(signer, tokenAAddr).Cmp(big.NewInt(180)))
	assert.Zero(t, f.vault.InternalBalance(other, tokenAAddr).Cmp(big.NewInt(120)))
	assert.Zero(t, f.tokenA.BalanceOf(signer).Sign())
}

func TestMemoryVaultFailedOpLeavesNoTrace(t *testing.T) {
	f := newFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	f.approve(t, key, 1)
	f.tokenA.Mint(signer, big.NewInt(300))
	f.permitTokenA(t, key, big.NewInt(300))

	// second op fails, the deposit from the first must be rolled back
	ops := []vault.UserBalanceOp{
		{Kind: vault.DepositInternal, Asset: tokenAAddr, Amount: big.NewInt(300), Sender: signer, Recipient: signer},
		{Kind: vault.WithdrawInternal, Asset: tokenBAddr, Amount: big.NewInt(1), Sender: signer, Recipient: signer},
	}

	err = f.forwarder.ManageUserBalance(t.Context(), ops, value.NewAccountant(nil), nil)
	require.Error(t, err)

	assert.Zero(t, f.vault.InternalBalance(signer, tokenAAddr).Sign())
	assert.Empty(t, f.vault.Effects())
}
