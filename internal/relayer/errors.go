// Package relayer holds the shared error taxonomy of the vault relayer core.
//
// None of these errors are recovered locally: any of them aborts the whole
// enclosing batch and rolls back all intermediate state.
package relayer

import "github.com/pkg/errors"

var (
	// ErrInvalidSignature indicates a malformed signature or one that
	// recovers to the zero address.
	ErrInvalidSignature = errors.New("relayer: invalid signature")

	// ErrBadSignature indicates a well-formed signature that recovers to an
	// address other than the claimed signer.
	ErrBadSignature = errors.New("relayer: signature does not match signer")

	// ErrAuthorizationExpired indicates the authorization deadline has passed.
	ErrAuthorizationExpired = errors.New("relayer: authorization expired")

	// ErrNonceUsed indicates the authorization nonce was already consumed.
	ErrNonceUsed = errors.New("relayer: nonce already used")

	// ErrNotApproved indicates the signer has not approved the relayer.
	ErrNotApproved = errors.New("relayer: signer has not approved relayer")

	// ErrRelayerNotGranted indicates the vault has not granted the relayer
	// the capability for the requested operation.
	ErrRelayerNotGranted = errors.New("relayer: relayer not granted by vault")

	// ErrInsufficientValue indicates a sub-call tried to allocate more
	// native value than was attached to the invocation.
	ErrInsufficientValue = errors.New("relayer: insufficient attached value")

	// ErrRefundFailed indicates the final refund transfer to the caller failed.
	ErrRefundFailed = errors.New("relayer: refund transfer failed")

	// ErrReentrantCall indicates a nested batch execution was attempted
	// while one is already in flight on the same call path.
	ErrReentrantCall = errors.New("relayer: reentrant batch execution")

	// ErrUnknownToken indicates a permit referenced a token the relayer
	// cannot resolve.
	ErrUnknownToken = errors.New("relayer: unknown token")
)
