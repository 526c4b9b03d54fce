package typeddata_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/vault-relayer/internal/relayer"
	"github/chapool/vault-relayer/internal/relayer/typeddata"
)

var testFields = []apitypes.Type{
	{Name: "spender", Type: "address"},
	{Name: "amount", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
}

func testMessage(spender common.Address, amount, nonce int64) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"spender": spender.Hex(),
		"amount":  (*math.HexOrDecimal256)(big.NewInt(amount)),
		"nonce":   (*math.HexOrDecimal256)(big.NewInt(nonce)),
	}
}

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerAddr := crypto.PubkeyToAddress(key.PublicKey)

	verifier := typeddata.NewVerifier("TestDomain", "1", big.NewInt(31337), common.HexToAddress("0x01"))

	message := testMessage(common.HexToAddress("0x02"), 100, 1)
	sig, err := verifier.Sign(key, "Grant", testFields, message)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	recovered, err := verifier.Recover("Grant", testFields, message, sig)
	require.NoError(t, err)
	assert.Equal(t, signerAddr, recovered)
}

func TestRecoverAcceptsRawRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	verifier := typeddata.NewVerifier("TestDomain", "1", big.NewInt(31337), common.HexToAddress("0x01"))

	message := testMessage(common.HexToAddress("0x02"), 100, 1)
	sig, err := verifier.Sign(key, "Grant", testFields, message)
	require.NoError(t, err)

	// strip the +27 offset back to the raw recovery id
	sig[64] -= 27

	recovered, err := verifier.Recover("Grant", testFields, message, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), recovered)
}

func TestRecoverTamperedMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerAddr := crypto.PubkeyToAddress(key.PublicKey)

	verifier := typeddata.NewVerifier("TestDomain", "1", big.NewInt(31337), common.HexToAddress("0x01"))

	sig, err := verifier.Sign(key, "Grant", testFields, testMessage(common.HexToAddress("0x02"), 100, 1))
	require.NoError(t, err)

	// same signature over a different amount recovers a different address
	recovered, err := verifier.Recover("Grant", testFields, testMessage(common.HexToAddress("0x02"), 999, 1), sig)
	require.NoError(t, err)
	assert.NotEqual(t, signerAddr, recovered)
}

func TestRecoverDomainSeparation(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerAddr := crypto.PubkeyToAddress(key.PublicKey)

	relayerDomain := typeddata.NewVerifier("TestDomain", "1", big.NewInt(31337), common.HexToAddress("0x01"))
	tokenDomain := typeddata.NewVerifier("TestDomain", "1", big.NewInt(31337), common.HexToAddress("0x02"))

	message := testMessage(common.HexToAddress("0x03"), 100, 1)
	sig, err := relayerDomain.Sign(key, "Grant", testFields, message)
	require.NoError(t, err)

	// a signature bound to one verifying contract must not verify under another
	recovered, err := tokenDomain.Recover("Grant", testFields, message, sig)
	require.NoError(t, err)
	assert.NotEqual(t, signerAddr, recovered)
}

func TestRecoverMalformedSignature(t *testing.T) {
	verifier := typeddata.NewVerifier("TestDomain", "1", big.NewInt(31337), common.HexToAddress("0x01"))
	message := testMessage(common.HexToAddress("0x02"), 100, 1)

	t.Run("wrong length", func(t *testing.T) {
		_, err := verifier.Recover("Grant", testFields, message, []byte{0x01, 0x02})
		require.Error(t, err)
		assert.True(t, errors.Is(err, relayer.ErrInvalidSignature))
	})

	t.Run("invalid recovery id", func(t *testing.T) {
		sig := make([]byte, 65)
		sig[64] = 5
		_, err := verifier.Recover("Grant", testFields, message, sig)
		require.Error(t, err)
		assert.True(t, errors.Is(err, relayer.ErrInvalidSignature))
	})
}
