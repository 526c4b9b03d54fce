// Package typeddata implements EIP-712 typed data signing and recovery.
//
// A Verifier is bound to one signing domain (name, version, chain ID and
// verifying contract). The domain separator is mixed into every digest, so a
// signature produced for one authorization type or contract cannot be
// replayed against another.
package typeddata

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"

	"github/chapool/vault-relayer/internal/relayer"
)

// domainFields is the canonical EIP712Domain type used by all messages.
var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// Verifier recovers signer identities from typed data signatures. It is
// stateless and safe for concurrent use.
type Verifier struct {
	domain apitypes.TypedDataDomain
}

// NewVerifier creates a Verifier bound to the given signing domain.
func NewVerifier(name, version string, chainID *big.Int, verifyingContract common.Address) *Verifier {
	return &Verifier{
		domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: verifyingContract.Hex(),
		},
	}
}

// Digest computes the EIP-712 digest keccak256(0x19 0x01 || domainSeparator ||
// hashStruct(message)) for the given primary type.
func (v *Verifier) Digest(primaryType string, fields []apitypes.Type, message apitypes.TypedDataMessage) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainFields,
			primaryType:    fields,
		},
		PrimaryType: primaryType,
		Domain:      v.domain,
		Message:     message,
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash domain")
	}

	messageHash, err := typedData.HashStruct(primaryType, typedData.Message)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to hash %s message", primaryType)
	}

	rawData := append([]byte{0x19, 0x01}, append(domainSeparator, messageHash...)...)

	return crypto.Keccak256(rawData), nil
}

// Recover returns the address that signed the given typed data message.
// It fails with relayer.ErrInvalidSignature if the signature is malformed or
// recovers to the zero address.
func (v *Verifier) Recover(primaryType string, fields []apitypes.Type, message apitypes.TypedDataMessage, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.Wrapf(relayer.ErrInvalidSignature, "signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	digest, err := v.Digest(primaryType, fields, message)
	if err != nil {
		return common.Address{}, err
	}

	// Accept both the raw recovery id (0/1) and the Ethereum convention (27/28)
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, errors.Wrap(relayer.ErrInvalidSignature, "invalid recovery id")
	}

	pubKey, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, errors.Wrap(relayer.ErrInvalidSignature, err.Error())
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	if recovered == (common.Address{}) {
		return common.Address{}, errors.Wrap(relayer.ErrInvalidSignature, "recovered zero address")
	}

	return recovered, nil
}

// Sign produces a 65-byte signature over the typed data message with V in
// {27,28}. It is the client-side counterpart of Recover, used by tests and
// by tooling that prepares authorizations.
func (v *Verifier) Sign(privateKey *ecdsa.PrivateKey, primaryType string, fields []apitypes.Type, message apitypes.TypedDataMessage) ([]byte, error) {
	digest, err := v.Digest(primaryType, fields, message)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign digest")
	}

	signature[crypto.RecoveryIDOffset] += 27

	return signature, nil
}
