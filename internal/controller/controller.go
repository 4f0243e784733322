// Package controller implements the platform registry: the whitelist of
// recognized asset tokens, per-currency price oracles, role management,
// and native-currency reserve custody.
//
// Concurrency: the engine serializes all access; the controller itself is
// not locked.
package controller

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/terrafund/asset-engine/internal/model"
	"github.com/terrafund/asset-engine/internal/oracle"
	"github.com/terrafund/asset-engine/internal/payment"
)

var (
	// ErrRestrictedToAdmin is returned for admin-only operations.
	ErrRestrictedToAdmin = errors.New("controller: restricted to admin")

	// ErrRestrictedToAssetToken is returned when a reserve operation is
	// attempted by anything but a registered asset token.
	ErrRestrictedToAssetToken = errors.New("controller: restricted to asset token")

	// ErrNotWhitelisted is returned when a non-whitelisted account tries
	// to rotate its whitelist role.
	ErrNotWhitelisted = errors.New("controller: caller is not whitelisted")

	// ErrNoOracleRegistered is returned when a price lookup targets a
	// currency with no configured oracle. Configuration errors fail
	// loudly — never a zero or stale default.
	ErrNoOracleRegistered = errors.New("controller: no price oracle registered")

	// ErrInsufficientReserve is returned when a reserve release exceeds
	// the held reserve.
	ErrInsufficientReserve = errors.New("controller: insufficient reserve")

	// ErrUnknownAssetToken is returned by batch pause for an address that
	// was never registered.
	ErrUnknownAssetToken = errors.New("controller: unknown asset token")
)

// Token is the controller's view of a registered asset token.
type Token interface {
	Addr() model.Address
	Symbol() string
	SetPaused(caller model.Address, paused bool) error
}

// Controller is the central registry referenced by every asset token.
type Controller struct {
	addr  model.Address
	admin model.Address

	oracles   map[model.Currency]*oracle.PriceOracle
	tokens    map[model.Address]Token
	whitelist map[model.Address]bool

	// Native reserve held on behalf of native-currency asset tokens.
	bank    *payment.NativeBank
	reserve *uint256.Int
}

// New creates a controller. The bank may be nil when no native-currency
// tokens are deployed.
func New(addr, admin model.Address, bank *payment.NativeBank) *Controller {
	return &Controller{
		addr:      addr,
		admin:     admin,
		oracles:   make(map[model.Currency]*oracle.PriceOracle),
		tokens:    make(map[model.Address]Token),
		whitelist: make(map[model.Address]bool),
		bank:      bank,
		reserve:   uint256.NewInt(0),
	}
}

// Addr returns the controller's own identity.
func (c *Controller) Addr() model.Address { return c.addr }

// Admin returns the admin identity.
func (c *Controller) Admin() model.Address { return c.admin }

// --- Price oracle dispatch ---

// SetPriceOracle records the oracle for a payment currency.
func (c *Controller) SetPriceOracle(caller model.Address, currency model.Currency, o *oracle.PriceOracle) (model.Event, error) {
	if caller != c.admin {
		return model.Event{}, ErrRestrictedToAdmin
	}
	c.oracles[currency] = o
	return model.Event{Type: model.EventNewPriceOracle, Currency: currency}, nil
}

// Oracle returns the oracle for a currency.
func (c *Controller) Oracle(currency model.Currency) (*oracle.PriceOracle, error) {
	o, ok := c.oracles[currency]
	if !ok {
		return nil, ErrNoOracleRegistered
	}
	return o, nil
}

// GetPrice returns the registered oracle's price for a currency.
func (c *Controller) GetPrice(currency model.Currency) (*uint256.Int, error) {
	o, err := c.Oracle(currency)
	if err != nil {
		return nil, err
	}
	return o.GetPrice(), nil
}

// MulPrice converts a unit-of-account amount into payment-currency units
// through the currency's oracle.
func (c *Controller) MulPrice(amount *uint256.Int, currency model.Currency) (*uint256.Int, error) {
	o, err := c.Oracle(currency)
	if err != nil {
		return nil, err
	}
	return o.MulPrice(amount)
}

// ToValue converts payment-currency units back into unit-of-account.
func (c *Controller) ToValue(amount *uint256.Int, currency model.Currency) (*uint256.Int, error) {
	o, err := c.Oracle(currency)
	if err != nil {
		return nil, err
	}
	return o.ToValue(amount)
}

// --- Asset token registry ---

// SetAssetTokens registers tokens, one NewAssetToken event per entry.
// Re-adding an already-registered token is tolerated.
func (c *Controller) SetAssetTokens(caller model.Address, tokens []Token) ([]model.Event, error) {
	if caller != c.admin {
		return nil, ErrRestrictedToAdmin
	}
	events := make([]model.Event, 0, len(tokens))
	for _, t := range tokens {
		c.tokens[t.Addr()] = t
		events = append(events, model.Event{
			Type:    model.EventNewAssetToken,
			Token:   t.Symbol(),
			Account: t.Addr(),
		})
	}
	return events, nil
}

// IsAssetToken reports whether addr is a registered asset token.
func (c *Controller) IsAssetToken(addr model.Address) bool {
	_, ok := c.tokens[addr]
	return ok
}

// PauseAssetTokens pauses each listed token, propagating Paused events.
func (c *Controller) PauseAssetTokens(caller model.Address, addrs []model.Address) ([]model.Event, error) {
	return c.setTokensPaused(caller, addrs, true)
}

// UnpauseAssetTokens unpauses each listed token.
func (c *Controller) UnpauseAssetTokens(caller model.Address, addrs []model.Address) ([]model.Event, error) {
	return c.setTokensPaused(caller, addrs, false)
}

func (c *Controller) setTokensPaused(caller model.Address, addrs []model.Address, paused bool) ([]model.Event, error) {
	if caller != c.admin {
		return nil, ErrRestrictedToAdmin
	}
	typ := model.EventPaused
	if !paused {
		typ = model.EventUnpaused
	}
	events := make([]model.Event, 0, len(addrs))
	for _, addr := range addrs {
		t, ok := c.tokens[addr]
		if !ok {
			return nil, ErrUnknownAssetToken
		}
		if err := t.SetPaused(c.addr, paused); err != nil {
			return nil, err
		}
		events = append(events, model.Event{Type: typ, Token: t.Symbol(), Account: addr})
	}
	return events, nil
}

// --- Whitelist role management ---

// AddAddressToWhitelist grants the whitelist role.
func (c *Controller) AddAddressToWhitelist(caller, addr model.Address) (model.Event, error) {
	if caller != c.admin {
		return model.Event{}, ErrRestrictedToAdmin
	}
	c.whitelist[addr] = true
	return model.Event{Type: model.EventRoleGranted, Account: addr}, nil
}

// AddAddressesToWhitelist grants the role to each listed address.
func (c *Controller) AddAddressesToWhitelist(caller model.Address, addrs []model.Address) ([]model.Event, error) {
	if caller != c.admin {
		return nil, ErrRestrictedToAdmin
	}
	events := make([]model.Event, 0, len(addrs))
	for _, addr := range addrs {
		c.whitelist[addr] = true
		events = append(events, model.Event{Type: model.EventRoleGranted, Account: addr})
	}
	return events, nil
}

// RemoveAddressFromWhitelist revokes the whitelist role.
func (c *Controller) RemoveAddressFromWhitelist(caller, addr model.Address) (model.Event, error) {
	if caller != c.admin {
		return model.Event{}, ErrRestrictedToAdmin
	}
	delete(c.whitelist, addr)
	return model.Event{Type: model.EventRoleRevoked, Account: addr}, nil
}

// ChangeWhitelistedAccount atomically moves the caller's whitelist role to
// newAddr. Self-service: callable by the whitelisted account itself.
func (c *Controller) ChangeWhitelistedAccount(caller, newAddr model.Address) ([]model.Event, error) {
	if !c.whitelist[caller] {
		return nil, ErrNotWhitelisted
	}
	delete(c.whitelist, caller)
	c.whitelist[newAddr] = true
	return []model.Event{
		{Type: model.EventRoleRevoked, Account: caller},
		{Type: model.EventRoleGranted, Account: newAddr},
	}, nil
}

// IsWhitelisted reports whether addr holds the whitelist role.
func (c *Controller) IsWhitelisted(addr model.Address) bool {
	return c.whitelist[addr]
}

// Whitelisted returns all role holders, for persistence.
func (c *Controller) Whitelisted() []model.Address {
	out := make([]model.Address, 0, len(c.whitelist))
	for addr := range c.whitelist {
		out = append(out, addr)
	}
	return out
}

// --- Native reserve custody ---

// ReserveBalance returns the native reserve held by the controller.
func (c *Controller) ReserveBalance() *uint256.Int {
	return c.reserve.Clone()
}

// DepositReserve records native value already sent to the controller by a
// registered asset token.
func (c *Controller) DepositReserve(caller model.Address, amount *uint256.Int) error {
	if !c.IsAssetToken(caller) {
		return ErrRestrictedToAssetToken
	}
	c.reserve.Add(c.reserve, amount)
	return nil
}

// WithdrawReserve releases reserve back to the requesting asset token.
// Authorization is by caller identity, not admin role.
func (c *Controller) WithdrawReserve(caller model.Address, amount *uint256.Int) error {
	if !c.IsAssetToken(caller) {
		return ErrRestrictedToAssetToken
	}
	if c.reserve.Lt(amount) {
		return ErrInsufficientReserve
	}
	if err := c.bank.Send(c.addr, caller, amount); err != nil {
		return err
	}
	c.reserve.Sub(c.reserve, amount)
	return nil
}
