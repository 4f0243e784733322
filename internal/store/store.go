// Package store defines the persistence interface for the asset engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// Large integers (balances, accrued reward, oracle prices) cross the store
// boundary as decimal strings of the raw 18-decimal integer, so no
// implementation ever rounds them.
package store

import (
	"context"
	"errors"

	"github.com/terrafund/asset-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Block height ---

	// SaveBlockHeight persists the logical clock.
	SaveBlockHeight(ctx context.Context, height uint64) error

	// GetBlockHeight returns the persisted clock, ErrNotFound when never saved.
	GetBlockHeight(ctx context.Context) (uint64, error)

	// --- Token state ---

	// SaveTokenState upserts a token's mutable attributes.
	SaveTokenState(ctx context.Context, st *model.TokenState) error

	// GetTokenState retrieves a token's state by symbol.
	GetTokenState(ctx context.Context, symbol string) (*model.TokenState, error)

	// ListTokenStates returns all persisted token states.
	ListTokenStates(ctx context.Context) ([]model.TokenState, error)

	// --- Balances ---

	// SaveBalance upserts one (token, account) balance.
	SaveBalance(ctx context.Context, rec *model.BalanceRecord) error

	// GetBalances returns all balances of one token.
	GetBalances(ctx context.Context, token string) ([]model.BalanceRecord, error)

	// --- Reward entries ---

	// SaveRewardEntry upserts one reward ledger entry.
	SaveRewardEntry(ctx context.Context, rec *model.RewardRecord) error

	// GetRewardEntries returns all reward entries of one token.
	GetRewardEntries(ctx context.Context, token string) ([]model.RewardRecord, error)

	// --- Oracle prices ---

	// SaveOraclePrice upserts a currency's oracle price.
	SaveOraclePrice(ctx context.Context, currency model.Currency, price string) error

	// GetOraclePrices returns all persisted oracle prices.
	GetOraclePrices(ctx context.Context) (map[model.Currency]string, error)

	// --- Whitelist ---

	// SaveWhitelist replaces the full set of whitelisted accounts.
	SaveWhitelist(ctx context.Context, addrs []model.Address) error

	// GetWhitelist returns all whitelisted accounts.
	GetWhitelist(ctx context.Context) ([]model.Address, error)

	// --- Immutable journal ---

	// InsertJournalEntry appends an immutable operation record.
	InsertJournalEntry(ctx context.Context, entry *model.JournalEntry) error

	// GetJournalByToken returns all operations on a token, oldest first.
	GetJournalByToken(ctx context.Context, token string) ([]model.JournalEntry, error)

	// GetJournalByAccount returns all operations touching an account.
	GetJournalByAccount(ctx context.Context, account model.Address) ([]model.JournalEntry, error)
}
