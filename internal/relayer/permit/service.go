package permit

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github/chapool/vault-relayer/internal/relayer"
)

// Registry resolves token collaborators by address.
type Registry struct {
	mu     sync.RWMutex
	tokens map[common.Address]Token
}

func NewRegistry() *Registry {
	return &Registry{tokens: make(map[common.Address]Token)}
}

func (r *Registry) Register(addr common.Address, token Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[addr] = token
}

func (r *Registry) Resolve(addr common.Address) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.tokens[addr]
	if !ok {
		return nil, errors.Wrapf(relayer.ErrUnknownToken, "token %s", addr.Hex())
	}

	return token, nil
}

// Snapshotter is implemented by tokens whose state can roll back with an
// enclosing batch.
type Snapshotter interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

// Snapshot marks the journal position of every snapshottable token.
func (r *Registry) Snapshot() map[common.Address]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := make(map[common.Address]int)
	for addr, token := range r.tokens {
		if s, ok := token.(Snapshotter); ok {
			snaps[addr] = s.Snapshot()
		}
	}

	return snaps
}

// RevertToSnapshot undoes token mutations made after a Snapshot call.
func (r *Registry) RevertToSnapshot(snaps map[common.Address]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for addr, id := range snaps {
		if s, ok := r.tokens[addr].(Snapshotter); ok {
			s.RevertToSnapshot(id)
		}
	}
}

// service forwards decoded permits to the token's own permit mechanism.
type service struct {
	registry *Registry
}

// NewService creates the permit adapter.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(registry *Registry) Service {
	return &service{registry: registry}
}

func (s *service) ApplyValuePermit(ctx context.Context, p *ValuePermit) error {
	token, err := s.registry.Resolve(p.Token)
	if err != nil {
		return err
	}

	return token.Permit(ctx, p.Owner, p.Spender, p.Value, p.Deadline, p.Signature)
}

func (s *service) ApplyAllowedPermit(ctx context.Context, p *AllowedPermit) error {
	token, err := s.registry.Resolve(p.Token)
	if err != nil {
		return err
	}

	return token.PermitAllowed(ctx, p.Holder, p.Spender, p.Nonce, p.Expiry, p.Allowed, p.Signature)
}
