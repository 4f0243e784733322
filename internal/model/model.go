// Package model defines the core domain types shared across the asset engine.
// All on-ledger values use holiman/uint256 — never float64 for money.
package model

import (
	"time"

	"github.com/holiman/uint256"
)

// Address identifies an account, a contract, or an admin on the platform.
// The zero value is never a valid participant.
type Address string

// AddressZero is the null identity.
const AddressZero Address = ""

// Currency names a payment currency, e.g. "EL" or the native currency.
type Currency string

// NativeCurrency is the chain's own currency, moved through the native
// bank rather than a fungible token ledger.
const NativeCurrency Currency = "NATIVE"

// Event types emitted by state-changing operations. Each is emitted exactly
// once per successful call that changes the corresponding attribute.
const (
	EventNewPrice          = "NewPrice"
	EventNewPriceOracle    = "NewPriceOracle"
	EventNewAssetToken     = "NewAssetToken"
	EventNewController     = "NewController"
	EventNewRewardPerBlock = "NewRewardPerBlock"
	EventPaused            = "Paused"
	EventUnpaused          = "Unpaused"
	EventReserveDeposited  = "ReserveDeposited"
	EventReserveReleased   = "ReserveReleased"
	EventRoleGranted       = "RoleGranted"
	EventRoleRevoked       = "RoleRevoked"
	EventTransfer          = "Transfer"
	EventPurchase          = "Purchase"
	EventRefund            = "Refund"
	EventRewardClaimed     = "RewardClaimed"
	EventWithdrawal        = "Withdrawal"
)

// Event is a notification emitted by a contract operation.
type Event struct {
	Type     string   `json:"type"`
	Token    string   `json:"token,omitempty"`    // asset token symbol
	Currency Currency `json:"currency,omitempty"` // payment currency
	Account  Address  `json:"account,omitempty"`
	Target   Address  `json:"target,omitempty"` // transfer recipient, rotated identity
	Value    string   `json:"value,omitempty"`  // decimal string of the changed amount
	Block    uint64   `json:"block"`
}

// NewEvent builds an event with an optional uint256 value.
func NewEvent(typ, token string, account Address, value *uint256.Int, block uint64) Event {
	ev := Event{Type: typ, Token: token, Account: account, Block: block}
	if value != nil {
		ev.Value = value.Dec()
	}
	return ev
}

// JournalEntry is an immutable record of an executed operation.
// Once created, these are never modified or deleted.
type JournalEntry struct {
	ID        string    `json:"id" db:"id"`
	Kind      string    `json:"kind" db:"kind"` // purchase, refund, transfer, claim, withdraw, admin
	Token     string    `json:"token" db:"token"`
	Account   Address   `json:"account" db:"account"`
	Target    Address   `json:"target,omitempty" db:"target"`
	Amount    string    `json:"amount" db:"amount"`   // asset-token units, decimal string
	Payment   string    `json:"payment" db:"payment"` // payment-currency units, decimal string
	Block     uint64    `json:"block" db:"block"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// TokenState is the persistable snapshot of an asset token's mutable state.
type TokenState struct {
	Symbol         string `json:"symbol" db:"symbol"`
	Paused         bool   `json:"paused" db:"paused"`
	RewardPerBlock string `json:"reward_per_block" db:"reward_per_block"`
}

// BalanceRecord is one persisted (token, account) balance. Amount is the
// decimal string of the raw 18-decimal integer.
type BalanceRecord struct {
	Token   string  `json:"token" db:"token"`
	Account Address `json:"account" db:"account"`
	Amount  string  `json:"amount" db:"amount"`
}

// RewardRecord is one persisted reward ledger entry.
type RewardRecord struct {
	Token            string  `json:"token" db:"token"`
	Account          Address `json:"account" db:"account"`
	Accrued          string  `json:"accrued" db:"accrued"`
	LastSettledBlock uint64  `json:"last_settled_block" db:"last_settled_block"`
}
