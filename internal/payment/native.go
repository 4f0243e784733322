package payment

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"

	"github.com/terrafund/asset-engine/internal/model"
)

// ErrSendFailed is returned when a native transfer is rejected by the
// recipient's receive hook. The enclosing operation must unwind entirely.
var ErrSendFailed = errors.New("payment: native send failed")

// ReceiveHook runs when an account receives native currency. A non-nil
// error rejects the transfer. Hooks model the "untrusted callback during a
// state-changing operation" hazard: they may re-enter the sender.
type ReceiveHook func(from model.Address, amount *uint256.Int) error

// NativeBank holds native-currency balances. Unlike the fungible Ledger,
// a send may execute arbitrary recipient code via its receive hook, so
// callers must finish their own ledger mutations before sending, or hold
// a reentrancy guard across the call.
type NativeBank struct {
	mu       sync.RWMutex
	balances map[model.Address]*uint256.Int
	hooks    map[model.Address]ReceiveHook
}

// NewNativeBank creates an empty bank.
func NewNativeBank() *NativeBank {
	return &NativeBank{
		balances: make(map[model.Address]*uint256.Int),
		hooks:    make(map[model.Address]ReceiveHook),
	}
}

// Mint credits an account out of thin air. Deployment/test use only.
func (b *NativeBank) Mint(account model.Address, amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(account, amount)
}

// BalanceOf returns an account's native balance.
func (b *NativeBank) BalanceOf(account model.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.balances[account]; ok {
		return v.Clone()
	}
	return uint256.NewInt(0)
}

// RegisterHook installs a receive hook for an account.
func (b *NativeBank) RegisterHook(account model.Address, hook ReceiveHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks[account] = hook
}

// Send moves native currency and invokes the recipient's receive hook.
// If the hook rejects, the transfer is undone and ErrSendFailed returned.
func (b *NativeBank) Send(from, to model.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	b.mu.Lock()
	src, ok := b.balances[from]
	if !ok || src.Lt(amount) {
		b.mu.Unlock()
		return ErrInsufficientBalance
	}
	src.Sub(src, amount)
	b.credit(to, amount)
	hook := b.hooks[to]
	b.mu.Unlock()

	if hook == nil {
		return nil
	}
	// Hook runs outside the lock: it may re-enter the bank.
	if err := hook(from, amount); err != nil {
		b.mu.Lock()
		dst := b.balances[to]
		dst.Sub(dst, amount)
		b.credit(from, amount)
		b.mu.Unlock()
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}

// credit mutates balances. Caller holds the write lock.
func (b *NativeBank) credit(account model.Address, amount *uint256.Int) {
	dst, ok := b.balances[account]
	if !ok {
		dst = uint256.NewInt(0)
		b.balances[account] = dst
	}
	dst.Add(dst, amount)
}
