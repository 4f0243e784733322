package store

import (
	"context"
	"sync"

	"github.com/terrafund/asset-engine/internal/model"
)

type balanceKey struct {
	token   string
	account model.Address
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	blockHeight uint64
	blockSaved  bool
	tokens      map[string]*model.TokenState
	balances    map[balanceKey]string
	rewards     map[balanceKey]*model.RewardRecord
	prices      map[model.Currency]string
	whitelist   []model.Address
	journal     []model.JournalEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:   make(map[string]*model.TokenState),
		balances: make(map[balanceKey]string),
		rewards:  make(map[balanceKey]*model.RewardRecord),
		prices:   make(map[model.Currency]string),
	}
}

func (s *MemoryStore) SaveBlockHeight(_ context.Context, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blockHeight = height
	s.blockSaved = true
	return nil
}

func (s *MemoryStore) GetBlockHeight(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.blockSaved {
		return 0, ErrNotFound
	}
	return s.blockHeight, nil
}

func (s *MemoryStore) SaveTokenState(_ context.Context, st *model.TokenState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *st
	s.tokens[st.Symbol] = &copy
	return nil
}

func (s *MemoryStore) GetTokenState(_ context.Context, symbol string) (*model.TokenState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.tokens[symbol]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *st
	return &copy, nil
}

func (s *MemoryStore) ListTokenStates(_ context.Context) ([]model.TokenState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]model.TokenState, 0, len(s.tokens))
	for _, st := range s.tokens {
		states = append(states, *st)
	}
	return states, nil
}

func (s *MemoryStore) SaveBalance(_ context.Context, rec *model.BalanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[balanceKey{rec.Token, rec.Account}] = rec.Amount
	return nil
}

func (s *MemoryStore) GetBalances(_ context.Context, token string) ([]model.BalanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.BalanceRecord
	for k, amount := range s.balances {
		if k.token == token {
			out = append(out, model.BalanceRecord{Token: k.token, Account: k.account, Amount: amount})
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveRewardEntry(_ context.Context, rec *model.RewardRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *rec
	s.rewards[balanceKey{rec.Token, rec.Account}] = &copy
	return nil
}

func (s *MemoryStore) GetRewardEntries(_ context.Context, token string) ([]model.RewardRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.RewardRecord
	for k, rec := range s.rewards {
		if k.token == token {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveOraclePrice(_ context.Context, currency model.Currency, price string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[currency] = price
	return nil
}

func (s *MemoryStore) GetOraclePrices(_ context.Context) (map[model.Currency]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.Currency]string, len(s.prices))
	for c, p := range s.prices {
		out[c] = p
	}
	return out, nil
}

func (s *MemoryStore) SaveWhitelist(_ context.Context, addrs []model.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.whitelist = append([]model.Address(nil), addrs...)
	return nil
}

func (s *MemoryStore) GetWhitelist(_ context.Context) ([]model.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.Address(nil), s.whitelist...), nil
}

func (s *MemoryStore) InsertJournalEntry(_ context.Context, entry *model.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.journal = append(s.journal, *entry)
	return nil
}

func (s *MemoryStore) GetJournalByToken(_ context.Context, token string) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.JournalEntry
	for _, e := range s.journal {
		if e.Token == token {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetJournalByAccount(_ context.Context, account model.Address) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.JournalEntry
	for _, e := range s.journal {
		if e.Account == account || e.Target == account {
			result = append(result, e)
		}
	}
	return result, nil
}
