package authz_test

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
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
	"github/chapool/vault-relayer/internal/relayer/typeddata"
)

var relayerAddr = common.HexToAddress("0x00000000000000000000000000000000000000AA")

func newTestService(t *testing.T) (authz.Service, *typeddata.Verifier, *clock.Mock) {
	t.Helper()

	verifier := typeddata.NewVerifier("VaultRelayer", "1", big.NewInt(31337), relayerAddr)
	mock := clock.NewMock()
	mock.Set(time.Unix(1_000_000, 0))

	return authz.NewService(verifier, mock), verifier, mock
}

func signedGrant(t *testing.T, verifier *typeddata.Verifier, key *ecdsa.PrivateKey, approved bool, nonce, deadline uint64) *authz.Grant {
	t.Helper()

	grant := &authz.Grant{
		Signer:   crypto.PubkeyToAddress(key.PublicKey),
		Relayer:  relayerAddr,
		Approved: approved,
		Nonce:    nonce,
		Deadline: deadline,
	}

	sig, err := verifier.Sign(key, authz.GrantPrimaryType, authz.GrantFields, grant.Message())
	require.NoError(t, err)
	grant.Signature = sig

	return grant
}

func TestSetApprovalGrantAndRevoke(t *testing.T) {
	svc, verifier, _ := newTestService(t)
	ctx := t.Context()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	require.False(t, svc.IsApproved(signer, relayerAddr))

	require.NoError(t, svc.SetApproval(ctx, signedGrant(t, verifier, key, true, 1, 2_000_000)))
	assert.True(t, svc.IsApproved(signer, relayerAddr))

	require.NoError(t, svc.SetApproval(ctx, signedGrant(t, verifier, key, false, 2, 2_000_000)))
	assert.False(t, svc.IsApproved(signer, relayerAddr))
}

func TestSetApprovalConsumesNonceExactlyOnce(t *testing.T) {
	svc, verifier, _ := newTestService(t)
	ctx := t.Context()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	grant := signedGrant(t, verifier, key, true, 7, 2_000_000)

	require.NoError(t, svc.SetApproval(ctx, grant))

	err = svc.SetApproval(ctx, grant)
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayer.ErrNonceUsed))
}

func TestSetApprovalExpired(t *testing.T) {
	svc, verifier, mock := newTestService(t)
	ctx := t.Context()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	grant := signedGrant(t, verifier, key, true, 1, 1_000_010)

	mock.Set(time.Unix(1_000_011, 0))

	err = svc.SetApproval(ctx, grant)
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayer.ErrAuthorizationExpired))

	// expiry wins regardless of nonce state: the nonce stays usable but a
	// fresh attempt still fails on the deadline
	err = svc.SetApproval(ctx, grant)
	assert.True(t, errors.Is(err, relayer.ErrAuthorizationExpired))
}

func TestSetApprovalSignerMismatch(t *testing.T) {
	svc, verifier, _ := newTestService(t)
	ctx := t.Context()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	grant := signedGrant(t, verifier, key, true, 1, 2_000_000)
	grant.Signer = common.HexToAddress("0xBEEF")

	err = svc.SetApproval(ctx, grant)
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayer.ErrBadSignature))
}

func TestSetApprovalMalformedSignature(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := t.Context()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	grant := &authz.Grant{
		Signer:    crypto.PubkeyToAddress(key.PublicKey),
		Relayer:   relayerAddr,
		Approved:  true,
		Nonce:     1,
		Deadline:  2_000_000,
		Signature: []byte{0x01, 0x02, 0x03},
	}

	err = svc.SetApproval(ctx, grant)
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayer.ErrInvalidSignature))
}

func TestSnapshotRevertRestoresNonceAndApproval(t *testing.T) {
	svc, verifier, _ := newTestService(t)
	ctx := t.Context()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	snap := svc.Snapshot()

	grant := signedGrant(t, verifier, key, true, 1, 2_000_000)
	require.NoError(t, svc.SetApproval(ctx, grant))
	require.True(t, svc.IsApproved(signer, relayerAddr))

	svc.RevertToSnapshot(snap)

	assert.False(t, svc.IsApproved(signer, relayerAddr))

	// the reverted nonce is usable again
	require.NoError(t, svc.SetApproval(ctx, grant))
	assert.True(t, svc.IsApproved(signer, relayerAddr))
}

func TestSetApprovalConcurrentSameNonce(t *testing.T) {
	svc, verifier, _ := newTestService(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	grant := signedGrant(t, verifier, key, true, 42, 2_000_000)

	const racers = 2
	results := make([]error, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.SetApproval(context.Background(), grant)
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
