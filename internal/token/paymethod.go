package token

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/terrafund/asset-engine/internal/controller"
	"github.com/terrafund/asset-engine/internal/emath"
	"github.com/terrafund/asset-engine/internal/model"
	"github.com/terrafund/asset-engine/internal/payment"
)

// PaymentMethod is the capability that moves payment currency for one
// asset token: a fungible token ledger or the native bank. Selected at
// construction, replacing the per-currency contract duplication of older
// designs.
type PaymentMethod interface {
	Currency() model.Currency

	// Balance is the token treasury's payment-currency balance.
	Balance() *uint256.Int

	// CheckPull verifies the payer can fund amount, mapping the failure
	// to the token error taxonomy. attachedValue is the native value sent
	// along with the call; ignored by fungible methods.
	CheckPull(payer model.Address, amount, attachedValue *uint256.Int) error

	// Pull moves amount from the payer to the treasury.
	Pull(payer model.Address, amount *uint256.Int) error

	// Push moves amount from the treasury to the recipient. For native
	// methods this may run recipient code; callers must mutate their own
	// ledgers first and hold a reentrancy guard.
	Push(to model.Address, amount *uint256.Int) error

	// DepositExcess forwards the non-retained part of an incoming payment
	// to the controller reserve, returning the forwarded amount.
	DepositExcess(amount *uint256.Int) (*uint256.Int, error)

	// CoverShortfall tops the treasury up by shortfall from the reserve,
	// returning the released amount.
	CoverShortfall(shortfall *uint256.Int) (*uint256.Int, error)
}

// FungiblePayment pays through a fungible-token ledger. The payer must
// pre-approve the token treasury as spender.
type FungiblePayment struct {
	ledger   *payment.Ledger
	currency model.Currency
	self     model.Address
}

// NewFungiblePayment creates the fungible-ledger capability.
func NewFungiblePayment(ledger *payment.Ledger, currency model.Currency, self model.Address) *FungiblePayment {
	return &FungiblePayment{ledger: ledger, currency: currency, self: self}
}

func (p *FungiblePayment) Currency() model.Currency { return p.currency }

func (p *FungiblePayment) Balance() *uint256.Int {
	return p.ledger.BalanceOf(p.self)
}

func (p *FungiblePayment) CheckPull(payer model.Address, amount, _ *uint256.Int) error {
	if p.ledger.Allowance(payer, p.self).Lt(amount) {
		return ErrInsufficientAllowance
	}
	if p.ledger.BalanceOf(payer).Lt(amount) {
		return ErrInsufficientBalance
	}
	return nil
}

func (p *FungiblePayment) Pull(payer model.Address, amount *uint256.Int) error {
	err := p.ledger.TransferFrom(p.self, payer, p.self, amount)
	switch {
	case errors.Is(err, payment.ErrInsufficientAllowance):
		return ErrInsufficientAllowance
	case errors.Is(err, payment.ErrInsufficientBalance):
		return ErrInsufficientBalance
	}
	return err
}

func (p *FungiblePayment) Push(to model.Address, amount *uint256.Int) error {
	err := p.ledger.Transfer(p.self, to, amount)
	if errors.Is(err, payment.ErrInsufficientBalance) {
		return ErrInsufficientContractBalance
	}
	return err
}

func (p *FungiblePayment) DepositExcess(*uint256.Int) (*uint256.Int, error) {
	return uint256.NewInt(0), nil
}

func (p *FungiblePayment) CoverShortfall(*uint256.Int) (*uint256.Int, error) {
	return nil, ErrInsufficientContractBalance
}

// NativePayment pays in the chain's own currency. Incoming payments are
// split against the cash reserve ratio: the treasury retains
// reserveRatio*amount and forwards the rest to the controller reserve,
// pulling it back on demand to cover payouts.
type NativePayment struct {
	bank         *payment.NativeBank
	ctrl         *controller.Controller
	self         model.Address
	reserveRatio *uint256.Int // WAD fraction retained by the treasury
}

// NewNativePayment creates the native-currency capability.
func NewNativePayment(bank *payment.NativeBank, ctrl *controller.Controller, self model.Address, reserveRatio *uint256.Int) *NativePayment {
	return &NativePayment{bank: bank, ctrl: ctrl, self: self, reserveRatio: reserveRatio.Clone()}
}

func (p *NativePayment) Currency() model.Currency { return model.NativeCurrency }

func (p *NativePayment) Balance() *uint256.Int {
	return p.bank.BalanceOf(p.self)
}

func (p *NativePayment) CheckPull(payer model.Address, amount, attachedValue *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if attachedValue == nil || attachedValue.Lt(amount) {
		return ErrInsufficientPayment
	}
	if p.bank.BalanceOf(payer).Lt(amount) {
		return ErrInsufficientPayment
	}
	return nil
}

func (p *NativePayment) Pull(payer model.Address, amount *uint256.Int) error {
	err := p.bank.Send(payer, p.self, amount)
	if errors.Is(err, payment.ErrInsufficientBalance) {
		return ErrInsufficientPayment
	}
	return err
}

func (p *NativePayment) Push(to model.Address, amount *uint256.Int) error {
	err := p.bank.Send(p.self, to, amount)
	if errors.Is(err, payment.ErrInsufficientBalance) {
		return ErrInsufficientContractBalance
	}
	return err
}

func (p *NativePayment) DepositExcess(amount *uint256.Int) (*uint256.Int, error) {
	retained, err := emath.WadMul(amount, p.reserveRatio)
	if err != nil {
		return nil, err
	}
	forwarded := new(uint256.Int).Sub(amount, retained)
	if forwarded.IsZero() {
		return forwarded, nil
	}
	// Verify the deposit will be accepted before moving the value, so a
	// rejection cannot strand it on the controller's bank account.
	if !p.ctrl.IsAssetToken(p.self) {
		return nil, controller.ErrRestrictedToAssetToken
	}
	if err := p.bank.Send(p.self, p.ctrl.Addr(), forwarded); err != nil {
		return nil, err
	}
	if err := p.ctrl.DepositReserve(p.self, forwarded); err != nil {
		return nil, err
	}
	return forwarded, nil
}

func (p *NativePayment) CoverShortfall(shortfall *uint256.Int) (*uint256.Int, error) {
	err := p.ctrl.WithdrawReserve(p.self, shortfall)
	switch {
	case errors.Is(err, controller.ErrInsufficientReserve):
		return nil, ErrInsufficientContractBalance
	case err != nil:
		return nil, err
	}
	return shortfall.Clone(), nil
}
