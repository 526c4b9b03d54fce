package permit

import (
	"context"
	"math/big"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"

	"github/chapool/vault-relayer/internal/relayer/typeddata"
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// MemoryToken is an in-memory token collaborator supporting both permit
// shapes. It performs real EIP-712 verification within its own signing domain
// and keeps per-holder incrementing nonces, so it stands in for a deployed
// token in tests and in the dev server.
type MemoryToken struct {
	address  common.Address
	verifier *typeddata.Verifier
	clock    clock.Clock

	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	nonces     map[common.Address]uint64
	journal    []func()
}

// NewMemoryToken creates a token with the given EIP-712 domain name at addr.
func NewMemoryToken(name string, chainID *big.Int, addr common.Address, clk clock.Clock) *MemoryToken {
	return &MemoryToken{
		address:    addr,
		verifier:   typeddata.NewVerifier(name, "1", chainID, addr),
		clock:      clk,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		nonces:     make(map[common.Address]uint64),
	}
}

// Verifier exposes the token's signing domain so clients can produce permit
// signatures.
func (t *MemoryToken) Verifier() *typeddata.Verifier {
	return t.verifier
}

func (t *MemoryToken) Address() common.Address {
	return t.address
}

func (t *MemoryToken) Permit(_ context.Context, owner, spender common.Address, value *big.Int, deadline uint64, sig []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	//nolint:gosec // unix seconds never go negative
	if uint64(t.clock.Now().Unix()) > deadline {
		return errors.New("token: permit expired")
	}

	p := &ValuePermit{Token: t.address, Owner: owner, Spender: spender, Value: value, Deadline: deadline}

	recovered, err := t.verifier.Recover(ValuePermitPrimaryType, ValuePermitFields, p.Message(t.nonces[owner]), sig)
	if err != nil {
		return errors.Wrap(err, "token: invalid permit signature")
	}
	if recovered != owner {
		return errors.New("token: permit signer mismatch")
	}

	t.consumeNonce(owner)
	t.setAllowance(owner, spender, value)

	return nil
}

func (t *MemoryToken) PermitAllowed(_ context.Context, holder, spender common.Address, nonce, expiry uint64, allowed bool, sig []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	//nolint:gosec // unix seconds never go negative
	if expiry != 0 && uint64(t.clock.Now().Unix()) > expiry {
		return errors.New("token: permit expired")
	}
	if nonce != t.nonces[holder] {
		return errors.New("token: invalid permit nonce")
	}

	p := &AllowedPermit{Token: t.address, Holder: holder, Spender: spender, Nonce: nonce, Expiry: expiry, Allowed: allowed}

	recovered, err := t.verifier.Recover(AllowedPermitPrimaryType, AllowedPermitFields, p.Message(), sig)
	if err != nil {
		return errors.Wrap(err, "token: invalid permit signature")
	}
	if recovered != holder {
		return errors.New("token: permit signer mismatch")
	}

	t.consumeNonce(holder)
	if allowed {
		t.setAllowance(holder, spender, math.MaxBig256)
	} else {
		t.setAllowance(holder, spender, new(big.Int))
	}

	return nil
}

func (t *MemoryToken) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok := t.allowances[allowanceKey{owner: owner, spender: spender}]; ok {
		return new(big.Int).Set(a)
	}

	return new(big.Int)
}

func (t *MemoryToken) Nonce(holder common.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.nonces[holder]
}

func (t *MemoryToken) BalanceOf(holder common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if b, ok := t.balances[holder]; ok {
		return new(big.Int).Set(b)
	}

	return new(big.Int)
}

// Mint credits freshly created tokens to an account. Test setup only.
func (t *MemoryToken) Mint(to common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.setBalance(to, new(big.Int).Add(t.balance(to), amount))
}

func (t *MemoryToken) Transfer(_ context.Context, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.move(from, to, amount)
}

func (t *MemoryToken) TransferFrom(_ context.Context, spender, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowance := t.allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return errors.Errorf("token: insufficient allowance for %s", spender.Hex())
	}

	if err := t.move(from, to, amount); err != nil {
		return err
	}

	// unlimited allowances are not decremented (EIP-2612 convention)
	if allowance.Cmp(math.MaxBig256) != 0 {
		t.setAllowance(from, spender, new(big.Int).Sub(allowance, amount))
	}

	return nil
}

func (t *MemoryToken) Snapshot() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.journal)
}

func (t *MemoryToken) RevertToSnapshot(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.journal) - 1; i >= id; i-- {
		t.journal[i]()
	}
	t.journal = t.journal[:id]
}

// callers must hold t.mu for everything below

func (t *MemoryToken) move(from, to common.Address, amount *big.Int) error {
	fromBalance := t.balance(from)
	if fromBalance.Cmp(amount) < 0 {
		return errors.Errorf("token: insufficient balance for %s", from.Hex())
	}

	t.setBalance(from, new(big.Int).Sub(fromBalance, amount))
	t.setBalance(to, new(big.Int).Add(t.balance(to), amount))

	return nil
}

func (t *MemoryToken) balance(addr common.Address) *big.Int {
	if b, ok := t.balances[addr]; ok {
		return b
	}

	return new(big.Int)
}

func (t *MemoryToken) setBalance(addr common.Address, amount *big.Int) {
	prev, existed := t.balances[addr]
	t.balances[addr] = amount
	t.journal = append(t.journal, func() {
		if existed {
			t.balances[addr] = prev
		} else {
			delete(t.balances, addr)
		}
	})
}

func (t *MemoryToken) allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.allowances[allowanceKey{owner: owner, spender: spender}]; ok {
		return a
	}

	return new(big.Int)
}

func (t *MemoryToken) setAllowance(owner, spender common.Address, amount *big.Int) {
	key := allowanceKey{owner: owner, spender: spender}
	prev, existed := t.allowances[key]
	t.allowances[key] = new(big.Int).Set(amount)
	t.journal = append(t.journal, func() {
		if existed {
			t.allowances[key] = prev
		} else {
			delete(t.allowances, key)
		}
	})
}

func (t *MemoryToken) consumeNonce(holder common.Address) {
	prev := t.nonces[holder]
	t.nonces[holder] = prev + 1
	t.journal = append(t.journal, func() {
		t.nonces[holder] = prev
	})
}
