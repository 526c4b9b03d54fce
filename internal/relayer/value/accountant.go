// Package value tracks native value attached to one batch invocation.
package value

import (
	"math/big"

	"github.com/pkg/errors"

	"github/chapool/vault-relayer/internal/relayer"
)

// Accountant allocates attached native value to sub-calls and computes the
// refund owed to the caller. It is transient: one accountant lives exactly as
// long as one batch invocation and is confined to it, so no locking is
// needed.
type Accountant struct {
	attached  *big.Int
	allocated *big.Int
}

// NewAccountant creates an accountant for the given attached value. A nil
// amount means no value was attached.
func NewAccountant(attached *big.Int) *Accountant {
	a := new(big.Int)
	if attached != nil {
		a.Set(attached)
	}

	return &Accountant{
		attached:  a,
		allocated: new(big.Int),
	}
}

// Allocate reserves amount for a sub-call. It fails with
// relayer.ErrInsufficientValue when the reservation would exceed the attached
// value; the allocated total never overshoots.
func (a *Accountant) Allocate(amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errors.Wrap(relayer.ErrInsufficientValue, "negative allocation")
	}

	next := new(big.Int).Add(a.allocated, amount)
	if next.Cmp(a.attached) > 0 {
		return errors.Wrapf(relayer.ErrInsufficientValue, "requested %s of %s attached (%s already allocated)",
			amount.String(), a.attached.String(), a.allocated.String())
	}

	a.allocated = next

	return nil
}

// Attached returns the total value supplied with the invocation.
func (a *Accountant) Attached() *big.Int {
	return new(big.Int).Set(a.attached)
}

// Allocated returns the value forwarded to sub-calls so far.
func (a *Accountant) Allocated() *big.Int {
	return new(big.Int).Set(a.allocated)
}

// Refund returns the unallocated remainder owed back to the caller.
func (a *Accountant) Refund() *big.Int {
	return new(big.Int).Sub(a.attached, a.allocated)
}
