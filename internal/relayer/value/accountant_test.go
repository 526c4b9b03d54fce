package value_test

import (
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/vault-relayer/internal/relayer"
	"github/chapool/vault-relayer/internal/relayer/value"
)

func TestAllocateAndRefund(t *testing.T) {
	acct := value.NewAccountant(big.NewInt(120))

	require.NoError(t, acct.Allocate(big.NewInt(100)))
	assert.Zero(t, acct.Allocated().Cmp(big.NewInt(100)))
	assert.Zero(t, acct.Refund().Cmp(big.NewInt(20)))
}

func TestAllocateExact(t *testing.T) {
	acct := value.NewAccountant(big.NewInt(100))

	require.NoError(t, acct.Allocate(big.NewInt(60)))
	require.NoError(t, acct.Allocate(big.NewInt(40)))
	assert.Zero(t, acct.Refund().Sign())
}

func TestAllocateOverAttachedFails(t *testing.T) {
	acct := value.NewAccountant(big.NewInt(100))

	require.NoError(t, acct.Allocate(big.NewInt(80)))

	err := acct.Allocate(big.NewInt(21))
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayer.ErrInsufficientValue))

	// the failed allocation must not count
	assert.Zero(t, acct.Allocated().Cmp(big.NewInt(80)))
	assert.Zero(t, acct.Refund().Cmp(big.NewInt(20)))
}

func TestAllocateNilAndZero(t *testing.T) {
	acct := value.NewAccountant(nil)

	require.NoError(t, acct.Allocate(nil))
	require.NoError(t, acct.Allocate(new(big.Int)))
	assert.Zero(t, acct.Attached().Sign())
	assert.Zero(t, acct.Refund().Sign())
}

func TestNewAccountantCopiesAttached(t *testing.T) {
	attached := big.NewInt(50)
	acct := value.NewAccountant(attached)

	attached.SetInt64(0)

	assert.Zero(t, acct.Attached().Cmp(big.NewInt(50)))
}
