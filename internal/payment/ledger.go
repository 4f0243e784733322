// Package payment models the payment-currency collaborators of the asset
// engine: a standard fungible-token ledger (balanceOf/transfer/approve/
// transferFrom semantics) and a native-currency bank whose transfers may
// invoke recipient callbacks.
package payment

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"

	"github.com/terrafund/asset-engine/internal/model"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the
	// sender's balance.
	ErrInsufficientBalance = errors.New("payment: insufficient balance")

	// ErrInsufficientAllowance is returned when transferFrom exceeds the
	// spender's approved allowance.
	ErrInsufficientAllowance = errors.New("payment: insufficient allowance")
)

// Ledger is a fungible-token balance ledger with allowance semantics.
// Supply is fixed at construction. Invariant: sum(balances) == totalSupply.
type Ledger struct {
	mu          sync.RWMutex
	name        string
	symbol      string
	totalSupply *uint256.Int
	balances    map[model.Address]*uint256.Int
	allowances  map[model.Address]map[model.Address]*uint256.Int
}

// NewLedger mints the full supply to the given holder.
func NewLedger(name, symbol string, totalSupply *uint256.Int, holder model.Address) *Ledger {
	l := &Ledger{
		name:        name,
		symbol:      symbol,
		totalSupply: totalSupply.Clone(),
		balances:    make(map[model.Address]*uint256.Int),
		allowances:  make(map[model.Address]map[model.Address]*uint256.Int),
	}
	l.balances[holder] = totalSupply.Clone()
	return l
}

// Name returns the currency name.
func (l *Ledger) Name() string { return l.name }

// Symbol returns the currency symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// TotalSupply returns the fixed supply.
func (l *Ledger) TotalSupply() *uint256.Int {
	return l.totalSupply.Clone()
}

// BalanceOf returns the balance of an account.
func (l *Ledger) BalanceOf(account model.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[account]; ok {
		return b.Clone()
	}
	return uint256.NewInt(0)
}

// Transfer moves amount from the sender to the recipient.
func (l *Ledger) Transfer(from, to model.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// Approve sets the spender's allowance over the owner's balance.
func (l *Ledger) Approve(owner, spender model.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[model.Address]*uint256.Int)
	}
	l.allowances[owner][spender] = amount.Clone()
}

// Allowance returns the remaining allowance of spender over owner.
func (l *Ledger) Allowance(owner, spender model.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a, ok := l.allowances[owner][spender]; ok {
		return a.Clone()
	}
	return uint256.NewInt(0)
}

// TransferFrom moves amount from owner to recipient on behalf of spender,
// checking and decrementing the allowance atomically with the transfer.
func (l *Ledger) TransferFrom(spender, owner, to model.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount.IsZero() {
		return nil
	}
	allowance, ok := l.allowances[owner][spender]
	if !ok || allowance.Lt(amount) {
		return ErrInsufficientAllowance
	}
	if err := l.move(owner, to, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return nil
}

// move mutates balances. Caller holds the write lock.
func (l *Ledger) move(from, to model.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	src, ok := l.balances[from]
	if !ok || src.Lt(amount) {
		return ErrInsufficientBalance
	}
	src.Sub(src, amount)
	dst, ok := l.balances[to]
	if !ok {
		dst = uint256.NewInt(0)
		l.balances[to] = dst
	}
	dst.Add(dst, amount)
	return nil
}
