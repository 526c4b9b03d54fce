package authz

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github/chapool/vault-relayer/internal/relayer"
	"github/chapool/vault-relayer/internal/relayer/typeddata"
)

type pairKey struct {
	signer  common.Address
	relayer common.Address
}

type nonceKey struct {
	pair  pairKey
	nonce uint64
}

// service implements Service with an in-memory keyed store. All access is
// guarded by one mutex so the nonce check-and-consume is atomic with respect
// to concurrent invocations.
type service struct {
	verifier *typeddata.Verifier
	clock    clock.Clock

	mu         sync.Mutex
	approvals  map[pairKey]bool
	usedNonces map[nonceKey]struct{}
	journal    []func()
}

// NewService creates an Authorization Manager verifying grants against the
// given domain verifier.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(verifier *typeddata.Verifier, clk clock.Clock) Service {
	return &service{
		verifier:   verifier,
		clock:      clk,
		approvals:  make(map[pairKey]bool),
		usedNonces: make(map[nonceKey]struct{}),
	}
}

// SetApproval verifies and consumes a signed grant.
//
// The nonce is consumed immediately on success. The consumption is journaled,
// so it is undone together with everything else if the enclosing batch later
// reverts; within a committed batch it is permanent regardless of what the
// approval was used for.
func (s *service) SetApproval(_ context.Context, grant *Grant) error {
	recovered, err := s.verifier.Recover(GrantPrimaryType, GrantFields, grant.Message(), grant.Signature)
	if err != nil {
		return err
	}

	if recovered != grant.Signer {
		return errors.Wrapf(relayer.ErrBadSignature, "recovered %s, claimed %s", recovered.Hex(), grant.Signer.Hex())
	}

	//nolint:gosec // unix seconds never go negative
	if uint64(s.clock.Now().Unix()) > grant.Deadline {
		return errors.Wrapf(relayer.ErrAuthorizationExpired, "deadline %d", grant.Deadline)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pair := pairKey{signer: grant.Signer, relayer: grant.Relayer}
	nonce := nonceKey{pair: pair, nonce: grant.Nonce}

	if _, used := s.usedNonces[nonce]; used {
		return errors.Wrapf(relayer.ErrNonceUsed, "nonce %d", grant.Nonce)
	}

	s.usedNonces[nonce] = struct{}{}
	s.journal = append(s.journal, func() {
		delete(s.usedNonces, nonce)
	})

	prev, existed := s.approvals[pair]
	s.approvals[pair] = grant.Approved
	s.journal = append(s.journal, func() {
		if existed {
			s.approvals[pair] = prev
		} else {
			delete(s.approvals, pair)
		}
	})

	return nil
}

func (s *service) IsApproved(signer, relayerAddr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.approvals[pairKey{signer: signer, relayer: relayerAddr}]
}

func (s *service) Snapshot() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.journal)
}

func (s *service) RevertToSnapshot(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i]()
	}
	s.journal = s.journal[:id]
}
