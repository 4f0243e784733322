// Package token implements the asset token: a fixed-supply balance ledger
// representing fractional ownership of a real-world asset, purchasable and
// refundable at a fixed unit-of-account price through the controller's
// oracles, with per-block reward accrual for holders.
//
// Every balance-affecting operation settles the reward ledger for both
// touched accounts using their pre-mutation balances, then mutates
// balances, and performs any external value transfer last
// (checks-effects-interactions). A reentrancy guard covers the operations
// that send native currency to untrusted recipients.
//
// Concurrency: the engine serializes all access; the token itself is not
// locked.
package token

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/terrafund/asset-engine/internal/controller"
	"github.com/terrafund/asset-engine/internal/emath"
	"github.com/terrafund/asset-engine/internal/model"
	"github.com/terrafund/asset-engine/internal/reward"
)

var (
	ErrRestrictedToAdmin       = errors.New("token: restricted to admin")
	ErrRestrictedToWhitelist   = errors.New("token: restricted to whitelist")
	ErrPaused                  = errors.New("token: paused")
	ErrReentrancy              = errors.New("token: reentrant call")
	ErrInsufficientBalance     = errors.New("token: insufficient balance")
	ErrInsufficientSellerBalance = errors.New("token: insufficient seller balance")
	ErrInsufficientAllowance   = errors.New("token: insufficient allowance")
	ErrInsufficientPayment     = errors.New("token: insufficient payment")
	ErrInsufficientContractBalance = errors.New("token: insufficient contract balance")
)

// Receipt reports what a state-changing operation did.
type Receipt struct {
	Events  []model.Event
	Payment *uint256.Int // payment-currency units moved, nil when none
}

// AssetToken is one deployed asset token. The unsold supply sits on the
// token's own treasury account.
type AssetToken struct {
	cfg   model.TokenConfig
	addr  model.Address
	admin model.Address
	ctrl  *controller.Controller

	price       *uint256.Int // unit-of-account per token, WAD
	totalSupply *uint256.Int
	balances    map[model.Address]*uint256.Int
	allowances  map[model.Address]map[model.Address]*uint256.Int

	rewards *reward.Ledger
	pay     PaymentMethod

	initialBlock uint64
	paused       bool
	entered      bool
}

// New deploys an asset token, minting the full supply to its treasury.
func New(cfg model.TokenConfig, addr, admin model.Address, ctrl *controller.Controller, pay PaymentMethod, initialBlock uint64) (*AssetToken, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	price, err := cfg.PriceWad()
	if err != nil {
		return nil, fmt.Errorf("token %s: %w", cfg.Symbol, err)
	}
	rewardPerBlock, err := cfg.RewardPerBlockWad()
	if err != nil {
		return nil, fmt.Errorf("token %s: %w", cfg.Symbol, err)
	}
	supply := cfg.SupplyWad()

	t := &AssetToken{
		cfg:          cfg,
		addr:         addr,
		admin:        admin,
		ctrl:         ctrl,
		price:        price,
		totalSupply:  supply,
		balances:     map[model.Address]*uint256.Int{addr: supply.Clone()},
		allowances:   make(map[model.Address]map[model.Address]*uint256.Int),
		rewards:      reward.NewLedger(supply, rewardPerBlock, initialBlock, cfg.BlockRemaining),
		pay:          pay,
		initialBlock: initialBlock,
	}
	return t, nil
}

// --- Views ---

func (t *AssetToken) Addr() model.Address      { return t.addr }
func (t *AssetToken) Admin() model.Address     { return t.admin }
func (t *AssetToken) Symbol() string           { return t.cfg.Symbol }
func (t *AssetToken) Name() string             { return t.cfg.Name }
func (t *AssetToken) Currency() model.Currency { return t.pay.Currency() }
func (t *AssetToken) Config() model.TokenConfig { return t.cfg }
func (t *AssetToken) Paused() bool             { return t.paused }
func (t *AssetToken) InitialBlock() uint64     { return t.initialBlock }

// Price returns the unit-of-account price per token.
func (t *AssetToken) Price() *uint256.Int { return t.price.Clone() }

// TotalSupply is fixed at construction; no mint or burn afterwards.
func (t *AssetToken) TotalSupply() *uint256.Int { return t.totalSupply.Clone() }

// RewardPerBlock returns the current accrual rate.
func (t *AssetToken) RewardPerBlock() *uint256.Int { return t.rewards.RewardPerBlock() }

// BalanceOf returns an account's asset-token balance.
func (t *AssetToken) BalanceOf(account model.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return b.Clone()
	}
	return uint256.NewInt(0)
}

// PaymentBalance returns the treasury's payment-currency balance.
func (t *AssetToken) PaymentBalance() *uint256.Int { return t.pay.Balance() }

// Matured reports whether the reward-accrual window has closed.
func (t *AssetToken) Matured(currentBlock uint64) bool { return t.rewards.Matured(currentBlock) }

// GetReward returns an account's reward including accrual pending for the
// current block, without mutating state.
func (t *AssetToken) GetReward(account model.Address, currentBlock uint64) (*uint256.Int, error) {
	return t.rewards.GetReward(account, t.BalanceOf(account), currentBlock)
}

// RewardSnapshot exposes the persisted form of an account's reward entry.
func (t *AssetToken) RewardSnapshot(account model.Address) (reward.Entry, bool) {
	return t.rewards.Snapshot(account)
}

// RestoreRewardEntry installs a persisted reward entry.
func (t *AssetToken) RestoreRewardEntry(account model.Address, e reward.Entry) {
	t.rewards.Restore(account, e)
}

// RestoreBalance installs a persisted balance.
func (t *AssetToken) RestoreBalance(account model.Address, amount *uint256.Int) {
	t.balances[account] = amount.Clone()
}

// PaymentFor converts an asset-token amount into payment-currency units:
// value = price*amount/1e18, then through the currency's oracle.
func (t *AssetToken) PaymentFor(amount *uint256.Int) (*uint256.Int, error) {
	value, err := emath.WadMul(t.price, amount)
	if err != nil {
		return nil, err
	}
	return t.ctrl.MulPrice(value, t.pay.Currency())
}

// --- Reentrancy guard ---

func (t *AssetToken) enter() error {
	if t.entered {
		return ErrReentrancy
	}
	t.entered = true
	return nil
}

func (t *AssetToken) leave() { t.entered = false }

// --- Internal ledger helpers ---

// settleAndMove settles reward for both sides with pre-mutation balances,
// then moves the asset-token balance.
func (t *AssetToken) settleAndMove(from, to model.Address, amount *uint256.Int, block uint64) error {
	if err := t.rewards.Settle(from, t.BalanceOf(from), block); err != nil {
		return err
	}
	if err := t.rewards.Settle(to, t.BalanceOf(to), block); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	src, ok := t.balances[from]
	if !ok || src.Lt(amount) {
		return ErrInsufficientBalance
	}
	src.Sub(src, amount)
	dst, ok := t.balances[to]
	if !ok {
		dst = uint256.NewInt(0)
		t.balances[to] = dst
	}
	dst.Add(dst, amount)
	return nil
}

// snapshot captures balances and reward entries for the given accounts and
// returns a restore closure, so an operation can unwind its internal
// mutations when a trailing external transfer fails.
func (t *AssetToken) snapshot(accounts ...model.Address) func() {
	balances := make(map[model.Address]*uint256.Int, len(accounts))
	entries := make(map[model.Address]*reward.Entry, len(accounts))
	for _, a := range accounts {
		balances[a] = t.BalanceOf(a)
		if e, ok := t.rewards.Snapshot(a); ok {
			entries[a] = &e
		}
	}
	return func() {
		for a, b := range balances {
			t.balances[a] = b
		}
		for a, e := range entries {
			t.rewards.Restore(a, *e)
		}
	}
}

// --- Operations ---

// Purchase sells amount asset tokens from the treasury to the caller for
// price*amount/1e18 converted into the payment currency. attachedValue is
// the native value sent with the call; nil for fungible currencies.
// A zero amount is a permitted no-op.
func (t *AssetToken) Purchase(caller model.Address, amount, attachedValue *uint256.Int, block uint64) (*Receipt, error) {
	if err := t.enter(); err != nil {
		return nil, err
	}
	defer t.leave()
	if t.paused {
		return nil, ErrPaused
	}

	pmt, err := t.PaymentFor(amount)
	if err != nil {
		return nil, err
	}
	if t.BalanceOf(t.addr).Lt(amount) {
		return nil, ErrInsufficientContractBalance
	}
	if err := t.pay.CheckPull(caller, pmt, attachedValue); err != nil {
		return nil, err
	}

	// Pull the payment in before touching the asset ledger, so a payment
	// failure leaves no partial state. Everything after the pull unwinds
	// through restore plus a payment push-back.
	if err := t.pay.Pull(caller, pmt); err != nil {
		return nil, err
	}
	restore := t.snapshot(t.addr, caller)
	undo := func(opErr error) error {
		restore()
		if pushErr := t.pay.Push(caller, pmt); pushErr != nil {
			return errors.Join(opErr, pushErr)
		}
		return opErr
	}
	if err := t.settleAndMove(t.addr, caller, amount, block); err != nil {
		return nil, undo(err)
	}

	rcpt := &Receipt{Payment: pmt}
	rcpt.Events = append(rcpt.Events,
		model.Event{Type: model.EventPurchase, Token: t.cfg.Symbol, Account: caller, Value: amount.Dec(), Block: block})

	forwarded, err := t.pay.DepositExcess(pmt)
	if err != nil {
		return nil, undo(err)
	}
	if forwarded != nil && !forwarded.IsZero() {
		rcpt.Events = append(rcpt.Events,
			model.Event{Type: model.EventReserveDeposited, Token: t.cfg.Symbol, Account: t.addr, Value: forwarded.Dec(), Block: block})
	}
	return rcpt, nil
}

// Refund buys amount asset tokens back from the caller at the same price,
// paying out of the treasury (topped up from the controller reserve for
// native-currency tokens).
func (t *AssetToken) Refund(caller model.Address, amount *uint256.Int, block uint64) (*Receipt, error) {
	if err := t.enter(); err != nil {
		return nil, err
	}
	defer t.leave()
	if t.paused {
		return nil, ErrPaused
	}

	if t.BalanceOf(caller).Lt(amount) {
		return nil, ErrInsufficientSellerBalance
	}
	pmt, err := t.PaymentFor(amount)
	if err != nil {
		return nil, err
	}

	rcpt := &Receipt{Payment: pmt}
	if released, err := t.ensurePayable(pmt); err != nil {
		return nil, err
	} else if released != nil && !released.IsZero() {
		rcpt.Events = append(rcpt.Events,
			model.Event{Type: model.EventReserveReleased, Token: t.cfg.Symbol, Account: t.addr, Value: released.Dec(), Block: block})
	}

	restore := t.snapshot(caller, t.addr)
	if err := t.settleAndMove(caller, t.addr, amount, block); err != nil {
		return nil, err
	}
	if err := t.pay.Push(caller, pmt); err != nil {
		restore()
		return nil, err
	}

	rcpt.Events = append(rcpt.Events,
		model.Event{Type: model.EventRefund, Token: t.cfg.Symbol, Account: caller, Value: amount.Dec(), Block: block})
	return rcpt, nil
}

// Transfer moves asset tokens between holders, settling reward for both
// sides with their pre-transfer balances.
func (t *AssetToken) Transfer(caller, to model.Address, amount *uint256.Int, block uint64) (*Receipt, error) {
	if t.paused {
		return nil, ErrPaused
	}
	if err := t.settleAndMove(caller, to, amount, block); err != nil {
		return nil, err
	}
	return &Receipt{Events: []model.Event{{
		Type: model.EventTransfer, Token: t.cfg.Symbol,
		Account: caller, Target: to, Value: amount.Dec(), Block: block,
	}}}, nil
}

// Approve sets spender's allowance over the caller's balance.
func (t *AssetToken) Approve(caller, spender model.Address, amount *uint256.Int) {
	if t.allowances[caller] == nil {
		t.allowances[caller] = make(map[model.Address]*uint256.Int)
	}
	t.allowances[caller][spender] = amount.Clone()
}

// Allowance returns spender's remaining allowance over owner.
func (t *AssetToken) Allowance(owner, spender model.Address) *uint256.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return a.Clone()
	}
	return uint256.NewInt(0)
}

// TransferFrom moves tokens on behalf of the owner, decrementing the
// spender's allowance atomically with the transfer.
func (t *AssetToken) TransferFrom(spender, from, to model.Address, amount *uint256.Int, block uint64) (*Receipt, error) {
	if t.paused {
		return nil, ErrPaused
	}
	allowance, ok := t.allowances[from][spender]
	if !ok && !amount.IsZero() {
		return nil, ErrInsufficientAllowance
	}
	if ok && allowance.Lt(amount) {
		return nil, ErrInsufficientAllowance
	}
	if err := t.settleAndMove(from, to, amount, block); err != nil {
		return nil, err
	}
	if ok {
		allowance.Sub(allowance, amount)
	}
	return &Receipt{Events: []model.Event{{
		Type: model.EventTransfer, Token: t.cfg.Symbol,
		Account: from, Target: to, Value: amount.Dec(), Block: block,
	}}}, nil
}

// ClaimReward settles the caller's reward up to the current block,
// converts it into payment currency, clears the ledger entry, and pays
// out. Restricted to whitelisted accounts.
func (t *AssetToken) ClaimReward(caller model.Address, block uint64) (*Receipt, error) {
	if err := t.enter(); err != nil {
		return nil, err
	}
	defer t.leave()
	if t.paused {
		return nil, ErrPaused
	}
	if !t.ctrl.IsWhitelisted(caller) {
		return nil, ErrRestrictedToWhitelist
	}

	if err := t.rewards.Settle(caller, t.BalanceOf(caller), block); err != nil {
		return nil, err
	}
	entry, _ := t.rewards.Snapshot(caller)
	accrued := entry.Accrued
	if accrued == nil {
		accrued = uint256.NewInt(0)
	}
	pmt, err := t.ctrl.MulPrice(accrued, t.pay.Currency())
	if err != nil {
		return nil, err
	}

	rcpt := &Receipt{Payment: pmt}
	if released, err := t.ensurePayable(pmt); err != nil {
		return nil, err
	} else if released != nil && !released.IsZero() {
		rcpt.Events = append(rcpt.Events,
			model.Event{Type: model.EventReserveReleased, Token: t.cfg.Symbol, Account: t.addr, Value: released.Dec(), Block: block})
	}

	// Clear before the external payout so a reentrant claim sees zero.
	restore := t.snapshot(caller)
	t.rewards.ClearReward(caller, block)
	if err := t.pay.Push(caller, pmt); err != nil {
		restore()
		return nil, err
	}

	rcpt.Events = append(rcpt.Events,
		model.Event{Type: model.EventRewardClaimed, Token: t.cfg.Symbol, Account: caller, Value: pmt.Dec(), Block: block})
	return rcpt, nil
}

// WithdrawToAdmin sweeps the treasury's entire payment-currency balance
// to the admin.
func (t *AssetToken) WithdrawToAdmin(caller model.Address, block uint64) (*Receipt, error) {
	if err := t.enter(); err != nil {
		return nil, err
	}
	defer t.leave()
	if caller != t.admin {
		return nil, ErrRestrictedToAdmin
	}
	amount := t.pay.Balance()
	if err := t.pay.Push(t.admin, amount); err != nil {
		return nil, err
	}
	return &Receipt{Payment: amount, Events: []model.Event{{
		Type: model.EventWithdrawal, Token: t.cfg.Symbol, Account: t.admin, Value: amount.Dec(), Block: block,
	}}}, nil
}

// SetRewardPerBlock replaces the accrual rate. Admin only. Every holder
// is settled at the old rate first, so the change applies prospectively.
func (t *AssetToken) SetRewardPerBlock(caller model.Address, v *uint256.Int, block uint64) (*Receipt, error) {
	if caller != t.admin {
		return nil, ErrRestrictedToAdmin
	}
	for account, balance := range t.balances {
		if err := t.rewards.Settle(account, balance, block); err != nil {
			return nil, err
		}
	}
	t.rewards.SetRewardPerBlock(v)
	return &Receipt{Events: []model.Event{{
		Type: model.EventNewRewardPerBlock, Token: t.cfg.Symbol, Value: v.Dec(), Block: block,
	}}}, nil
}

// SetController repoints the token at a new controller. Admin only.
func (t *AssetToken) SetController(caller model.Address, ctrl *controller.Controller, block uint64) (*Receipt, error) {
	if caller != t.admin {
		return nil, ErrRestrictedToAdmin
	}
	t.ctrl = ctrl
	return &Receipt{Events: []model.Event{{
		Type: model.EventNewController, Token: t.cfg.Symbol, Account: ctrl.Addr(), Block: block,
	}}}, nil
}

// SetPaused toggles the paused state. Callable by the admin or by the
// controller (batch pause).
func (t *AssetToken) SetPaused(caller model.Address, paused bool) error {
	if caller != t.admin && caller != t.ctrl.Addr() {
		return ErrRestrictedToAdmin
	}
	t.paused = paused
	return nil
}

// ensurePayable tops the treasury up from the controller reserve when the
// payout exceeds the treasury balance.
func (t *AssetToken) ensurePayable(pmt *uint256.Int) (*uint256.Int, error) {
	balance := t.pay.Balance()
	if !balance.Lt(pmt) {
		return nil, nil
	}
	shortfall := new(uint256.Int).Sub(pmt, balance)
	return t.pay.CoverShortfall(shortfall)
}
