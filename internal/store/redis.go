package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terrafund/asset-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SaveBlockHeight(ctx context.Context, height uint64) error {
	if err := s.primary.SaveBlockHeight(ctx, height); err != nil {
		return err
	}
	s.rdb.Set(ctx, blockHeightKey(), height, s.ttl)
	return nil
}

func (s *CachedStore) SaveTokenState(ctx context.Context, st *model.TokenState) error {
	if err := s.primary.SaveTokenState(ctx, st); err != nil {
		return err
	}
	s.cacheTokenState(ctx, st)
	return nil
}

func (s *CachedStore) SaveBalance(ctx context.Context, rec *model.BalanceRecord) error {
	if err := s.primary.SaveBalance(ctx, rec); err != nil {
		return err
	}
	// Invalidate the per-token balance set; next read re-populates.
	s.rdb.Del(ctx, balancesKey(rec.Token))
	return nil
}

func (s *CachedStore) SaveRewardEntry(ctx context.Context, rec *model.RewardRecord) error {
	if err := s.primary.SaveRewardEntry(ctx, rec); err != nil {
		return err
	}
	s.rdb.Del(ctx, rewardsKey(rec.Token))
	return nil
}

func (s *CachedStore) SaveOraclePrice(ctx context.Context, currency model.Currency, price string) error {
	if err := s.primary.SaveOraclePrice(ctx, currency, price); err != nil {
		return err
	}
	s.rdb.Del(ctx, oraclePricesKey())
	return nil
}

func (s *CachedStore) SaveWhitelist(ctx context.Context, addrs []model.Address) error {
	if err := s.primary.SaveWhitelist(ctx, addrs); err != nil {
		return err
	}
	s.rdb.Del(ctx, whitelistKey())
	return nil
}

func (s *CachedStore) InsertJournalEntry(ctx context.Context, entry *model.JournalEntry) error {
	return s.primary.InsertJournalEntry(ctx, entry)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetBlockHeight(ctx context.Context) (uint64, error) {
	height, err := s.rdb.Get(ctx, blockHeightKey()).Uint64()
	if err == nil {
		return height, nil
	}

	height, err = s.primary.GetBlockHeight(ctx)
	if err != nil {
		return 0, err
	}
	s.rdb.Set(ctx, blockHeightKey(), height, s.ttl)
	return height, nil
}

func (s *CachedStore) GetTokenState(ctx context.Context, symbol string) (*model.TokenState, error) {
	data, err := s.rdb.Get(ctx, tokenStateKey(symbol)).Bytes()
	if err == nil {
		var st model.TokenState
		if json.Unmarshal(data, &st) == nil {
			return &st, nil
		}
	}

	st, err := s.primary.GetTokenState(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.cacheTokenState(ctx, st)
	return st, nil
}

func (s *CachedStore) GetBalances(ctx context.Context, token string) ([]model.BalanceRecord, error) {
	data, err := s.rdb.Get(ctx, balancesKey(token)).Bytes()
	if err == nil {
		var recs []model.BalanceRecord
		if json.Unmarshal(data, &recs) == nil {
			return recs, nil
		}
	}

	recs, err := s.primary.GetBalances(ctx, token)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(recs); err == nil {
		s.rdb.Set(ctx, balancesKey(token), data, s.ttl)
	}
	return recs, nil
}

func (s *CachedStore) GetOraclePrices(ctx context.Context) (map[model.Currency]string, error) {
	data, err := s.rdb.Get(ctx, oraclePricesKey()).Bytes()
	if err == nil {
		var prices map[model.Currency]string
		if json.Unmarshal(data, &prices) == nil {
			return prices, nil
		}
	}

	prices, err := s.primary.GetOraclePrices(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(prices); err == nil {
		s.rdb.Set(ctx, oraclePricesKey(), data, s.ttl)
	}
	return prices, nil
}

func (s *CachedStore) GetWhitelist(ctx context.Context) ([]model.Address, error) {
	data, err := s.rdb.Get(ctx, whitelistKey()).Bytes()
	if err == nil {
		var addrs []model.Address
		if json.Unmarshal(data, &addrs) == nil {
			return addrs, nil
		}
	}

	addrs, err := s.primary.GetWhitelist(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(addrs); err == nil {
		s.rdb.Set(ctx, whitelistKey(), data, s.ttl)
	}
	return addrs, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListTokenStates(ctx context.Context) ([]model.TokenState, error) {
	return s.primary.ListTokenStates(ctx)
}

func (s *CachedStore) GetRewardEntries(ctx context.Context, token string) ([]model.RewardRecord, error) {
	return s.primary.GetRewardEntries(ctx, token)
}

func (s *CachedStore) GetJournalByToken(ctx context.Context, token string) ([]model.JournalEntry, error) {
	return s.primary.GetJournalByToken(ctx, token)
}

func (s *CachedStore) GetJournalByAccount(ctx context.Context, account model.Address) ([]model.JournalEntry, error) {
	return s.primary.GetJournalByAccount(ctx, account)
}

// --- Cache helpers ---

func (s *CachedStore) cacheTokenState(ctx context.Context, st *model.TokenState) {
	if data, err := json.Marshal(st); err == nil {
		s.rdb.Set(ctx, tokenStateKey(st.Symbol), data, s.ttl)
	}
}

func blockHeightKey() string           { return "chain:height" }
func tokenStateKey(symbol string) string { return fmt.Sprintf("token:%s", symbol) }
func balancesKey(token string) string  { return fmt.Sprintf("balances:%s", token) }
func rewardsKey(token string) string   { return fmt.Sprintf("rewards:%s", token) }
func oraclePricesKey() string          { return "oracle:prices" }
func whitelistKey() string             { return "whitelist" }
