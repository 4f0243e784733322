package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terrafund/asset-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Raw 18-decimal integers are stored as NUMERIC(78,0), wide enough for any
// 256-bit value, and always read back through ::TEXT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveBlockHeight(ctx context.Context, height uint64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chain_state (id, block_height) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET block_height = $1`,
		height,
	)
	return err
}

func (s *PostgresStore) GetBlockHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := s.pool.QueryRow(ctx,
		`SELECT block_height FROM chain_state WHERE id = 1`).Scan(&height)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get block height: %w", err)
	}
	return height, nil
}

func (s *PostgresStore) SaveTokenState(ctx context.Context, st *model.TokenState) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO token_states (symbol, paused, reward_per_block)
		 VALUES ($1, $2, $3::NUMERIC)
		 ON CONFLICT (symbol) DO UPDATE SET paused = $2, reward_per_block = $3::NUMERIC`,
		st.Symbol, st.Paused, st.RewardPerBlock,
	)
	return err
}

func (s *PostgresStore) GetTokenState(ctx context.Context, symbol string) (*model.TokenState, error) {
	var st model.TokenState
	err := s.pool.QueryRow(ctx,
		`SELECT symbol, paused, reward_per_block::TEXT
		 FROM token_states WHERE symbol = $1`, symbol).
		Scan(&st.Symbol, &st.Paused, &st.RewardPerBlock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token state %s: %w", symbol, err)
	}
	return &st, nil
}

func (s *PostgresStore) ListTokenStates(ctx context.Context) ([]model.TokenState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, paused, reward_per_block::TEXT FROM token_states ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []model.TokenState
	for rows.Next() {
		var st model.TokenState
		if err := rows.Scan(&st.Symbol, &st.Paused, &st.RewardPerBlock); err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func (s *PostgresStore) SaveBalance(ctx context.Context, rec *model.BalanceRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO balances (token, account, amount)
		 VALUES ($1, $2, $3::NUMERIC)
		 ON CONFLICT (token, account) DO UPDATE SET amount = $3::NUMERIC`,
		rec.Token, rec.Account, rec.Amount,
	)
	return err
}

func (s *PostgresStore) GetBalances(ctx context.Context, token string) ([]model.BalanceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT token, account, amount::TEXT FROM balances WHERE token = $1`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BalanceRecord
	for rows.Next() {
		var rec model.BalanceRecord
		if err := rows.Scan(&rec.Token, &rec.Account, &rec.Amount); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveRewardEntry(ctx context.Context, rec *model.RewardRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reward_entries (token, account, accrued, last_settled_block)
		 VALUES ($1, $2, $3::NUMERIC, $4)
		 ON CONFLICT (token, account) DO UPDATE
		 SET accrued = $3::NUMERIC, last_settled_block = $4`,
		rec.Token, rec.Account, rec.Accrued, rec.LastSettledBlock,
	)
	return err
}

func (s *PostgresStore) GetRewardEntries(ctx context.Context, token string) ([]model.RewardRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT token, account, accrued::TEXT, last_settled_block
		 FROM reward_entries WHERE token = $1`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RewardRecord
	for rows.Next() {
		var rec model.RewardRecord
		if err := rows.Scan(&rec.Token, &rec.Account, &rec.Accrued, &rec.LastSettledBlock); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveOraclePrice(ctx context.Context, currency model.Currency, price string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO oracle_prices (currency, price)
		 VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (currency) DO UPDATE SET price = $2::NUMERIC`,
		currency, price,
	)
	return err
}

func (s *PostgresStore) GetOraclePrices(ctx context.Context) (map[model.Currency]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT currency, price::TEXT FROM oracle_prices`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.Currency]string)
	for rows.Next() {
		var currency model.Currency
		var price string
		if err := rows.Scan(&currency, &price); err != nil {
			return nil, err
		}
		out[currency] = price
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveWhitelist(ctx context.Context, addrs []model.Address) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM whitelist`); err != nil {
		return err
	}
	for _, addr := range addrs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO whitelist (account) VALUES ($1)`, addr); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetWhitelist(ctx context.Context) ([]model.Address, error) {
	rows, err := s.pool.Query(ctx, `SELECT account FROM whitelist ORDER BY account`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Address
	for rows.Next() {
		var addr model.Address
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertJournalEntry(ctx context.Context, e *model.JournalEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO journal_entries (id, kind, token, account, target, amount, payment, block, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9)`,
		e.ID, e.Kind, e.Token, e.Account, e.Target,
		e.Amount, e.Payment, e.Block, e.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetJournalByToken(ctx context.Context, token string) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, token, account, target, amount::TEXT, payment::TEXT, block, timestamp
		 FROM journal_entries WHERE token = $1 ORDER BY timestamp`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

func (s *PostgresStore) GetJournalByAccount(ctx context.Context, account model.Address) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, token, account, target, amount::TEXT, payment::TEXT, block, timestamp
		 FROM journal_entries WHERE account = $1 OR target = $1 ORDER BY timestamp`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

func scanJournalEntries(rows pgx.Rows) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Token, &e.Account, &e.Target,
			&e.Amount, &e.Payment, &e.Block, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
