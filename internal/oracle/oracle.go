// Package oracle holds per-payment-currency price oracles. An oracle
// quotes payment-currency units per unit of account, 18-decimal fixed
// point, and is only ever updated by its admin — prices are never
// interpolated or time-decayed.
package oracle

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/terrafund/asset-engine/internal/emath"
	"github.com/terrafund/asset-engine/internal/model"
)

var (
	// ErrRestrictedToAdmin is returned when a non-admin sets the price.
	ErrRestrictedToAdmin = errors.New("oracle: restricted to admin")

	// ErrZeroPrice is returned when converting through an unset price.
	ErrZeroPrice = errors.New("oracle: price not set")
)

// PriceOracle holds a single admin-settable price for one payment currency.
type PriceOracle struct {
	admin model.Address
	price *uint256.Int
}

// NewPriceOracle creates an oracle with an initial price. A zero initial
// price is allowed; conversions fail until the admin sets one.
func NewPriceOracle(admin model.Address, initial *uint256.Int) *PriceOracle {
	p := uint256.NewInt(0)
	if initial != nil {
		p = initial.Clone()
	}
	return &PriceOracle{admin: admin, price: p}
}

// SetPrice replaces the price. Only the admin may call this.
func (o *PriceOracle) SetPrice(caller model.Address, newPrice *uint256.Int) error {
	if caller != o.admin {
		return ErrRestrictedToAdmin
	}
	o.price = newPrice.Clone()
	return nil
}

// GetPrice returns the current price. Callable by anyone.
func (o *PriceOracle) GetPrice() *uint256.Int {
	return o.price.Clone()
}

// MulPrice converts a unit-of-account amount into payment-currency units:
// amount*price/1e18, failing on 256-bit overflow of the product.
func (o *PriceOracle) MulPrice(amount *uint256.Int) (*uint256.Int, error) {
	if o.price.IsZero() {
		return nil, ErrZeroPrice
	}
	return emath.WadMul(amount, o.price)
}

// ToValue is the inverse conversion: payment-currency units back into
// unit-of-account, amount*1e18/price.
func (o *PriceOracle) ToValue(amount *uint256.Int) (*uint256.Int, error) {
	if o.price.IsZero() {
		return nil, ErrZeroPrice
	}
	return emath.WadDiv(amount, o.price)
}
