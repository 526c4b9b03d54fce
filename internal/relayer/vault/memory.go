package vault

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github/chapool/vault-relayer/internal/relayer/permit"
)

type internalKey struct {
	asset   common.Address
	account common.Address
}

type grantKey struct {
	relayer common.Address
	op      Op
}

type pool struct {
	rateNum     *big.Int
	rateDen     *big.Int
	balances    map[common.Address]*big.Int
	shares      map[common.Address]*big.Int
	totalShares *big.Int
}

// Effect is one observable ledger mutation, recorded for assertions.
type Effect struct {
	Kind      string
	PoolID    string
	AssetIn   common.Address
	AssetOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	Asset     common.Address
	Amount    *big.Int
	Sender    common.Address
	Recipient common.Address
}

// MemoryVault is a deterministic in-memory ledger standing in for the real
// vault in tests and the dev server. Pool math is a fixed-rate stand-in, not
// part of the relayer's contract: swaps pay amountIn*rateNum/rateDen and
// joins mint shares 1:1 with the supplied amounts.
//
// All calls are made by one relayer account, configured at construction;
// native value forwarded with an operation is debited from that account.
// Swap and exit proceeds are credited to the recipient's vault-internal
// balance.
type MemoryVault struct {
	address common.Address
	relayer common.Address
	tokens  *permit.Registry

	mu       sync.Mutex
	native   map[common.Address]*big.Int
	internal map[internalKey]*big.Int
	pools    map[string]*pool
	grants   map[grantKey]bool
	effects  []Effect
	journal  []func()
}

// NewMemoryVault creates an empty ledger at vaultAddr called by relayerAddr.
func NewMemoryVault(vaultAddr, relayerAddr common.Address, tokens *permit.Registry) *MemoryVault {
	return &MemoryVault{
		address:  vaultAddr,
		relayer:  relayerAddr,
		tokens:   tokens,
		native:   make(map[common.Address]*big.Int),
		internal: make(map[internalKey]*big.Int),
		pools:    make(map[string]*pool),
		grants:   make(map[grantKey]bool),
	}
}

func (v *MemoryVault) Address() common.Address {
	return v.address
}

// CreatePool registers a pool with a fixed output rate. Setup only.
func (v *MemoryVault) CreatePool(id string, rateNum, rateDen int64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.pools[id] = &pool{
		rateNum:     big.NewInt(rateNum),
		rateDen:     big.NewInt(rateDen),
		balances:    make(map[common.Address]*big.Int),
		shares:      make(map[common.Address]*big.Int),
		totalShares: new(big.Int),
	}
}

// GrantRelayer provisions the coarse capability for the given operations,
// standing in for the vault's governance grant.
func (v *MemoryVault) GrantRelayer(relayerAddr common.Address, ops ...Op) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, op := range ops {
		v.grants[grantKey{relayer: relayerAddr, op: op}] = true
	}
}

func (v *MemoryVault) IsRelayerGranted(relayerAddr common.Address, op Op) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.grants[grantKey{relayer: relayerAddr, op: op}]
}

// FundNative credits native balance to an account. Setup only.
func (v *MemoryVault) FundNative(addr common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.setNative(addr, new(big.Int).Add(v.nativeOf(addr), amount))
}

// NativeBalance returns an account's native balance.
func (v *MemoryVault) NativeBalance(addr common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return new(big.Int).Set(v.nativeOf(addr))
}

// InternalBalance returns an account's vault-internal balance of an asset.
func (v *MemoryVault) InternalBalance(account, asset common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return new(big.Int).Set(v.internalOf(account, asset))
}

// PoolShares returns an account's shares in a pool.
func (v *MemoryVault) PoolShares(id string, account common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, ok := v.pools[id]
	if !ok {
		return new(big.Int)
	}
	if s, ok := p.shares[account]; ok {
		return new(big.Int).Set(s)
	}

	return new(big.Int)
}

// Effects returns the ledger mutations observed so far, oldest first.
func (v *MemoryVault) Effects() []Effect {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Effect, len(v.effects))
	copy(out, v.effects)

	return out
}

func (v *MemoryVault) SendNative(from, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.moveNative(from, to, amount)
}

func (v *MemoryVault) Swap(ctx context.Context, req *SwapRequest, val *big.Int) (*SwapResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	mark := len(v.journal)
	res, err := v.swap(ctx, req, val)
	if err != nil {
		v.revertLocked(mark)
		return nil, err
	}

	return res, nil
}

func (v *MemoryVault) swap(ctx context.Context, req *SwapRequest, val *big.Int) (*SwapResult, error) {
	p, ok := v.pools[req.PoolID]
	if !ok {
		return nil, errors.Errorf("vault: unknown pool %s", req.PoolID)
	}

	if err := v.settleInput(ctx, req.Sender, req.AssetIn, req.AmountIn, val); err != nil {
		return nil, err
	}

	amountOut := rate(p, req.AmountIn)
	if req.MinAmountOut != nil && amountOut.Cmp(req.MinAmountOut) < 0 {
		return nil, errors.Errorf("vault: swap limit: %s < %s", amountOut.String(), req.MinAmountOut.String())
	}

	v.setInternal(req.Recipient, req.AssetOut, new(big.Int).Add(v.internalOf(req.Recipient, req.AssetOut), amountOut))

	v.appendEffect(Effect{
		Kind:      "swap",
		PoolID:    req.PoolID,
		AssetIn:   req.AssetIn,
		AssetOut:  req.AssetOut,
		AmountIn:  new(big.Int).Set(req.AmountIn),
		AmountOut: new(big.Int).Set(amountOut),
		Sender:    req.Sender,
		Recipient: req.Recipient,
	})

	return &SwapResult{AmountOut: amountOut}, nil
}

func (v *MemoryVault) BatchSwap(ctx context.Context, req *BatchSwapRequest, val *big.Int) (*SwapResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	mark := len(v.journal)
	res, err := v.batchSwap(ctx, req, val)
	if err != nil {
		v.revertLocked(mark)
		return nil, err
	}

	return res, nil
}

func (v *MemoryVault) batchSwap(ctx context.Context, req *BatchSwapRequest, val *big.Int) (*SwapResult, error) {
	if len(req.Steps) == 0 {
		return nil, errors.New("vault: empty batch swap")
	}
	for i := 1; i < len(req.Steps); i++ {
		if req.Steps[i].AssetIn != req.Steps[i-1].AssetOut {
			return nil, errors.Errorf("vault: discontinuous batch swap at step %d", i)
		}
	}

	if err := v.settleInput(ctx, req.Sender, req.Steps[0].AssetIn, req.AmountIn, val); err != nil {
		return nil, err
	}

	amount := new(big.Int).Set(req.AmountIn)
	for i, step := range req.Steps {
		p, ok := v.pools[step.PoolID]
		if !ok {
			return nil, errors.Errorf("vault: unknown pool %s", step.PoolID)
		}

		amountOut := rate(p, amount)
		v.appendEffect(Effect{
			Kind:      "swap",
			PoolID:    step.PoolID,
			AssetIn:   step.AssetIn,
			AssetOut:  step.AssetOut,
			AmountIn:  new(big.Int).Set(amount),
			AmountOut: new(big.Int).Set(amountOut),
			Sender:    req.Sender,
			Recipient: req.Recipient,
		})
		amount = amountOut

		if i == len(req.Steps)-1 {
			if req.MinAmountOut != nil && amount.Cmp(req.MinAmountOut) < 0 {
				return nil, errors.Errorf("vault: swap limit: %s < %s", amount.String(), req.MinAmountOut.String())
			}
			v.setInternal(req.Recipient, step.AssetOut, new(big.Int).Add(v.internalOf(req.Recipient, step.AssetOut), amount))
		}
	}

	return &SwapResult{AmountOut: amount}, nil
}

func (v *MemoryVault) JoinPool(ctx context.Context, req *JoinRequest, val *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	mark := len(v.journal)
	if err := v.joinPool(ctx, req, val); err != nil {
		v.revertLocked(mark)
		return err
	}

	return nil
}

func (v *MemoryVault) joinPool(ctx context.Context, req *JoinRequest, val *big.Int) error {
	p, ok := v.pools[req.PoolID]
	if !ok {
		return errors.Errorf("vault: unknown pool %s", req.PoolID)
	}

	nativeNeeded := new(big.Int)
	minted := new(big.Int)
	for _, in := range req.AssetsIn {
		if in.Asset == NativeAsset {
			nativeNeeded.Add(nativeNeeded, in.Amount)
		} else {
			token, err := v.tokens.Resolve(in.Asset)
			if err != nil {
				return err
			}
			if err := token.TransferFrom(ctx, v.address, req.Sender, v.address, in.Amount); err != nil {
				return err
			}
		}

		bal, ok := p.balances[in.Asset]
		if !ok {
			bal = new(big.Int)
		}
		v.setPoolBalance(p, in.Asset, new(big.Int).Add(bal, in.Amount))
		minted.Add(minted, in.Amount)
	}

	if err := v.consumeNative(nativeNeeded, val); err != nil {
		return err
	}

	shares, ok := p.shares[req.Recipient]
	if !ok {
		shares = new(big.Int)
	}
	v.setPoolShares(p, req.Recipient, new(big.Int).Add(shares, minted))
	v.setPoolTotal(p, new(big.Int).Add(p.totalShares, minted))

	v.appendEffect(Effect{
		Kind:      "join",
		PoolID:    req.PoolID,
		Amount:    new(big.Int).Set(minted),
		Sender:    req.Sender,
		Recipient: req.Recipient,
	})

	return nil
}

func (v *MemoryVault) ExitPool(_ context.Context, req *ExitRequest) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	mark := len(v.journal)
	if err := v.exitPool(req); err != nil {
		v.revertLocked(mark)
		return err
	}

	return nil
}

func (v *MemoryVault) exitPool(req *ExitRequest) error {
	p, ok := v.pools[req.PoolID]
	if !ok {
		return errors.Errorf("vault: unknown pool %s", req.PoolID)
	}

	held, ok := p.shares[req.Sender]
	if !ok || held.Cmp(req.SharesIn) < 0 {
		return errors.Errorf("vault: insufficient pool shares for %s", req.Sender.Hex())
	}

	// proportional payout against the pre-burn share supply
	for asset, bal := range p.balances {
		out := new(big.Int).Mul(bal, req.SharesIn)
		out.Div(out, p.totalShares)
		if out.Sign() == 0 {
			continue
		}

		v.setPoolBalance(p, asset, new(big.Int).Sub(bal, out))
		v.setInternal(req.Recipient, asset, new(big.Int).Add(v.internalOf(req.Recipient, asset), out))
	}

	v.setPoolShares(p, req.Sender, new(big.Int).Sub(held, req.SharesIn))
	v.setPoolTotal(p, new(big.Int).Sub(p.totalShares, req.SharesIn))

	v.appendEffect(Effect{
		Kind:      "exit",
		PoolID:    req.PoolID,
		Amount:    new(big.Int).Set(req.SharesIn),
		Sender:    req.Sender,
		Recipient: req.Recipient,
	})

	return nil
}

func (v *MemoryVault) ManageUserBalance(ctx context.Context, ops []UserBalanceOp, val *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	mark := len(v.journal)
	if err := v.manageUserBalance(ctx, ops, val); err != nil {
		v.revertLocked(mark)
		return err
	}

	return nil
}

func (v *MemoryVault) manageUserBalance(ctx context.Context, ops []UserBalanceOp, val *big.Int) error {
	nativeNeeded := new(big.Int)
	for _, op := range ops {
		if err := v.applyUserBalanceOp(ctx, op, nativeNeeded); err != nil {
			return err
		}
	}

	return v.consumeNative(nativeNeeded, val)
}

func (v *MemoryVault) applyUserBalanceOp(ctx context.Context, op UserBalanceOp, nativeNeeded *big.Int) error {
	switch op.Kind {
	case DepositInternal:
		if op.Asset == NativeAsset {
			nativeNeeded.Add(nativeNeeded, op.Amount)
		} else {
			token, err := v.tokens.Resolve(op.Asset)
			if err != nil {
				return err
			}
			if err := token.TransferFrom(ctx, v.address, op.Sender, v.address, op.Amount); err != nil {
				return err
			}
		}
		v.setInternal(op.Recipient, op.Asset, new(big.Int).Add(v.internalOf(op.Recipient, op.Asset), op.Amount))

	case WithdrawInternal:
		held := v.internalOf(op.Sender, op.Asset)
		if held.Cmp(op.Amount) < 0 {
			return errors.Errorf("vault: insufficient internal balance for %s", op.Sender.Hex())
		}
		v.setInternal(op.Sender, op.Asset, new(big.Int).Sub(held, op.Amount))
		if op.Asset == NativeAsset {
			if err := v.moveNative(v.address, op.Recipient, op.Amount); err != nil {
				return err
			}
		} else {
			token, err := v.tokens.Resolve(op.Asset)
			if err != nil {
				return err
			}
			if err := token.Transfer(ctx, v.address, op.Recipient, op.Amount); err != nil {
				return err
			}
		}

	case TransferInternal:
		held := v.internalOf(op.Sender, op.Asset)
		if held.Cmp(op.Amount) < 0 {
			return errors.Errorf("vault: insufficient internal balance for %s", op.Sender.Hex())
		}
		v.setInternal(op.Sender, op.Asset, new(big.Int).Sub(held, op.Amount))
		v.setInternal(op.Recipient, op.Asset, new(big.Int).Add(v.internalOf(op.Recipient, op.Asset), op.Amount))

	case TransferExternal:
		token, err := v.tokens.Resolve(op.Asset)
		if err != nil {
			return err
		}
		if err := token.TransferFrom(ctx, v.address, op.Sender, op.Recipient, op.Amount); err != nil {
			return err
		}

	default:
		return errors.Errorf("vault: unknown user balance op %q", op.Kind)
	}

	v.appendEffect(Effect{
		Kind:      string(op.Kind),
		Asset:     op.Asset,
		Amount:    new(big.Int).Set(op.Amount),
		Sender:    op.Sender,
		Recipient: op.Recipient,
	})

	return nil
}

func (v *MemoryVault) Snapshot() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return len(v.journal)
}

func (v *MemoryVault) RevertToSnapshot(id int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.revertLocked(id)
}

func (v *MemoryVault) revertLocked(id int) {
	for i := len(v.journal) - 1; i >= id; i-- {
		v.journal[i]()
	}
	v.journal = v.journal[:id]
}

// callers must hold v.mu for everything below

// settleInput pulls the swap input: attached native value for the native
// asset, an allowance-backed transfer otherwise.
func (v *MemoryVault) settleInput(ctx context.Context, sender, assetIn common.Address, amountIn, val *big.Int) error {
	if assetIn == NativeAsset {
		return v.consumeNative(amountIn, val)
	}

	if val != nil && val.Sign() > 0 {
		return errors.New("vault: unexpected native value")
	}

	token, err := v.tokens.Resolve(assetIn)
	if err != nil {
		return err
	}

	return token.TransferFrom(ctx, v.address, sender, v.address, amountIn)
}

// consumeNative requires the forwarded value to match the operation's native
// need exactly and moves it from the relayer into the vault.
func (v *MemoryVault) consumeNative(needed, val *big.Int) error {
	attached := new(big.Int)
	if val != nil {
		attached.Set(val)
	}
	if attached.Cmp(needed) != 0 {
		return errors.Errorf("vault: incorrect native value: got %s, need %s", attached.String(), needed.String())
	}
	if needed.Sign() == 0 {
		return nil
	}

	return v.moveNative(v.relayer, v.address, needed)
}

func (v *MemoryVault) moveNative(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}

	fromBal := v.nativeOf(from)
	if fromBal.Cmp(amount) < 0 {
		return errors.Errorf("vault: insufficient native balance for %s", from.Hex())
	}

	v.setNative(from, new(big.Int).Sub(fromBal, amount))
	v.setNative(to, new(big.Int).Add(v.nativeOf(to), amount))

	return nil
}

func (v *MemoryVault) nativeOf(addr common.Address) *big.Int {
	if b, ok := v.native[addr]; ok {
		return b
	}

	return new(big.Int)
}

func (v *MemoryVault) setNative(addr common.Address, amount *big.Int) {
	prev, existed := v.native[addr]
	v.native[addr] = amount
	v.journal = append(v.journal, func() {
		if existed {
			v.native[addr] = prev
		} else {
			delete(v.native, addr)
		}
	})
}

func (v *MemoryVault) internalOf(account, asset common.Address) *big.Int {
	if b, ok := v.internal[internalKey{asset: asset, account: account}]; ok {
		return b
	}

	return new(big.Int)
}

func (v *MemoryVault) setInternal(account, asset common.Address, amount *big.Int) {
	key := internalKey{asset: asset, account: account}
	prev, existed := v.internal[key]
	v.internal[key] = amount
	v.journal = append(v.journal, func() {
		if existed {
			v.internal[key] = prev
		} else {
			delete(v.internal, key)
		}
	})
}

func (v *MemoryVault) setPoolBalance(p *pool, asset common.Address, amount *big.Int) {
	prev, existed := p.balances[asset]
	p.balances[asset] = amount
	v.journal = append(v.journal, func() {
		if existed {
			p.balances[asset] = prev
		} else {
			delete(p.balances, asset)
		}
	})
}

func (v *MemoryVault) setPoolShares(p *pool, account common.Address, amount *big.Int) {
	prev, existed := p.shares[account]
	p.shares[account] = amount
	v.journal = append(v.journal, func() {
		if existed {
			p.shares[account] = prev
		} else {
			delete(p.shares, account)
		}
	})
}

func (v *MemoryVault) setPoolTotal(p *pool, amount *big.Int) {
	prev := p.totalShares
	p.totalShares = amount
	v.journal = append(v.journal, func() {
		p.totalShares = prev
	})
}

func (v *MemoryVault) appendEffect(e Effect) {
	v.effects = append(v.effects, e)
	v.journal = append(v.journal, func() {
		v.effects = v.effects[:len(v.effects)-1]
	})
}

func rate(p *pool, amountIn *big.Int) *big.Int {
	out := new(big.Int).Mul(amountIn, p.rateNum)

	return out.Div(out, p.rateDen)
}
