// Package engine assembles the platform and exposes it over HTTP: it owns
// the logical block clock, serializes every state-changing operation,
// persists state write-through to the store, journals each operation, and
// broadcasts contract events to the WebSocket hub.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/terrafund/asset-engine/internal/chain"
	"github.com/terrafund/asset-engine/internal/controller"
	"github.com/terrafund/asset-engine/internal/emath"
	"github.com/terrafund/asset-engine/internal/events"
	"github.com/terrafund/asset-engine/internal/metrics"
	"github.com/terrafund/asset-engine/internal/model"
	"github.com/terrafund/asset-engine/internal/oracle"
	"github.com/terrafund/asset-engine/internal/payment"
	"github.com/terrafund/asset-engine/internal/reward"
	"github.com/terrafund/asset-engine/internal/store"
	"github.com/terrafund/asset-engine/internal/token"
)

var (
	// ErrUnknownToken is returned for operations on an unknown symbol.
	ErrUnknownToken = errors.New("engine: unknown asset token")

	// ErrUnknownCurrency is returned when a request names a currency the
	// platform was not deployed with.
	ErrUnknownCurrency = errors.New("engine: unknown payment currency")

	// ErrRestrictedToAdmin is returned for admin-only engine operations.
	ErrRestrictedToAdmin = errors.New("engine: restricted to admin")
)

// ControllerAddr is the controller's well-known identity.
const ControllerAddr model.Address = "controller"

// Service owns the deployed platform. Uses a mutex for serialized
// operation execution (single-instance); every state-changing operation
// runs in its own logical block.
type Service struct {
	mu    sync.Mutex
	store store.Store
	hub   *events.Hub
	clock *chain.Counter

	admin   model.Address
	ctrl    *controller.Controller
	bank    *payment.NativeBank
	ledgers map[model.Currency]*payment.Ledger
	tokens  map[string]*token.AssetToken
	order   []string // deployment order, for stable listings
}

// NewPlatform deploys the platform described by cfg: the native bank, one
// fungible ledger per non-native currency, one oracle per currency, the
// controller, and every configured asset token. Each token deployment
// consumes one block.
func NewPlatform(cfg *model.PlatformConfig, st store.Store, hub *events.Hub) (*Service, error) {
	s := &Service{
		store:   st,
		hub:     hub,
		clock:   chain.NewCounter(0),
		admin:   cfg.Admin,
		bank:    payment.NewNativeBank(),
		ledgers: make(map[model.Currency]*payment.Ledger),
		tokens:  make(map[string]*token.AssetToken),
	}
	s.ctrl = controller.New(ControllerAddr, cfg.Admin, s.bank)

	for currency, cc := range cfg.Currencies {
		if currency != model.NativeCurrency {
			supply, err := emath.WadFromDecimal(cc.Supply)
			if err != nil {
				return nil, fmt.Errorf("engine: currency %s supply: %w", currency, err)
			}
			s.ledgers[currency] = payment.NewLedger(string(currency), string(currency), supply, cfg.Admin)
		}
		price, err := emath.WadFromDecimal(cc.OraclePrice)
		if err != nil {
			return nil, fmt.Errorf("engine: currency %s oracle price: %w", currency, err)
		}
		o := oracle.NewPriceOracle(cfg.Admin, price)
		if _, err := s.ctrl.SetPriceOracle(cfg.Admin, currency, o); err != nil {
			return nil, err
		}
	}

	for _, tc := range cfg.Tokens {
		if err := s.deployToken(tc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) deployToken(tc model.TokenConfig) error {
	addr := model.Address("token:" + tc.Symbol)
	pay, err := s.paymentMethod(tc, addr)
	if err != nil {
		return err
	}

	t, err := token.New(tc, addr, s.admin, s.ctrl, pay, s.clock.Next())
	if err != nil {
		return err
	}
	if _, err := s.ctrl.SetAssetTokens(s.admin, []controller.Token{t}); err != nil {
		return err
	}
	s.tokens[tc.Symbol] = t
	s.order = append(s.order, tc.Symbol)

	slog.Info("asset token deployed",
		"symbol", tc.Symbol,
		"currency", tc.Payment,
		"supply", t.TotalSupply().Dec(),
		"initial_block", t.InitialBlock(),
	)
	return nil
}

func (s *Service) paymentMethod(tc model.TokenConfig, addr model.Address) (token.PaymentMethod, error) {
	if tc.Payment == model.NativeCurrency {
		ratio, err := tc.CashReserveRatioWad()
		if err != nil {
			return nil, err
		}
		return token.NewNativePayment(s.bank, s.ctrl, addr, ratio), nil
	}
	ledger, ok := s.ledgers[tc.Payment]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurrency, tc.Payment)
	}
	return token.NewFungiblePayment(ledger, tc.Payment, addr), nil
}

// Admin returns the platform admin identity.
func (s *Service) Admin() model.Address { return s.admin }

// Controller returns the platform controller.
func (s *Service) Controller() *controller.Controller { return s.ctrl }

// Bank returns the native bank.
func (s *Service) Bank() *payment.NativeBank { return s.bank }

// Ledger returns the fungible ledger for a currency.
func (s *Service) Ledger(currency model.Currency) (*payment.Ledger, error) {
	l, ok := s.ledgers[currency]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
	return l, nil
}

// Token returns the asset token for a symbol.
func (s *Service) Token(symbol string) (*token.AssetToken, error) {
	t, ok := s.tokens[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return t, nil
}

// BlockHeight returns the current logical block.
func (s *Service) BlockHeight() uint64 { return s.clock.Current() }

// --- State restore ---

// RestoreState loads persisted state into the deployed platform: block
// height, token mutable state, balances, reward entries, oracle prices,
// and the whitelist. Called once at startup, before serving.
func (s *Service) RestoreState(ctx context.Context) error {
	height, err := s.store.GetBlockHeight(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Fresh deployment, nothing persisted yet.
		return s.persistGenesis(ctx)
	case err != nil:
		return fmt.Errorf("engine: restore block height: %w", err)
	}
	if current := s.clock.Current(); height > current {
		s.clock.Advance(height - current)
	}
	metrics.BlockHeight.Set(float64(s.clock.Current()))

	prices, err := s.store.GetOraclePrices(ctx)
	if err != nil {
		return fmt.Errorf("engine: restore oracle prices: %w", err)
	}
	for currency, priceStr := range prices {
		price, err := emath.FromDecimal(priceStr)
		if err != nil {
			return err
		}
		o, err := s.ctrl.Oracle(currency)
		if err != nil {
			continue // currency no longer configured
		}
		if err := o.SetPrice(s.admin, price); err != nil {
			return err
		}
	}

	whitelist, err := s.store.GetWhitelist(ctx)
	if err != nil {
		return fmt.Errorf("engine: restore whitelist: %w", err)
	}
	if len(whitelist) > 0 {
		if _, err := s.ctrl.AddAddressesToWhitelist(s.admin, whitelist); err != nil {
			return err
		}
	}

	for symbol, t := range s.tokens {
		if err := s.restoreToken(ctx, symbol, t); err != nil {
			return err
		}
	}

	slog.Info("state restored", "block", s.clock.Current(), "tokens", len(s.tokens))
	return nil
}

func (s *Service) restoreToken(ctx context.Context, symbol string, t *token.AssetToken) error {
	st, err := s.store.GetTokenState(ctx, symbol)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("engine: restore token %s: %w", symbol, err)
	}

	if err := t.SetPaused(s.admin, st.Paused); err != nil {
		return err
	}
	rpb, err := emath.FromDecimal(st.RewardPerBlock)
	if err != nil {
		return err
	}
	if _, err := t.SetRewardPerBlock(s.admin, rpb, s.clock.Current()); err != nil {
		return err
	}

	balances, err := s.store.GetBalances(ctx, symbol)
	if err != nil {
		return err
	}
	for _, rec := range balances {
		amount, err := emath.FromDecimal(rec.Amount)
		if err != nil {
			return err
		}
		t.RestoreBalance(rec.Account, amount)
	}

	rewards, err := s.store.GetRewardEntries(ctx, symbol)
	if err != nil {
		return err
	}
	for _, rec := range rewards {
		accrued, err := emath.FromDecimal(rec.Accrued)
		if err != nil {
			return err
		}
		t.RestoreRewardEntry(rec.Account, reward.Entry{Accrued: accrued, LastSettledBlock: rec.LastSettledBlock})
	}
	return nil
}

// persistGenesis writes the initial deployment state.
func (s *Service) persistGenesis(ctx context.Context) error {
	if err := s.store.SaveBlockHeight(ctx, s.clock.Current()); err != nil {
		return err
	}
	for currency := range s.ledgers {
		s.persistOraclePrice(ctx, currency)
	}
	if _, err := s.ctrl.Oracle(model.NativeCurrency); err == nil {
		s.persistOraclePrice(ctx, model.NativeCurrency)
	}
	for symbol, t := range s.tokens {
		s.persistTokenState(ctx, symbol, t)
		s.persistAccounts(ctx, t, t.Addr())
	}
	return nil
}

// --- Serialized operations ---

// opResult is what a state-changing operation hands back to the HTTP layer.
type opResult struct {
	Block   uint64
	Events  []model.Event
	Payment *uint256.Int
}

// execute runs one state-changing token operation in its own block,
// persisting and broadcasting on success. The block is consumed whether
// the operation succeeds or not, matching a chain where a failed
// transaction still occupies its block.
func (s *Service) execute(ctx context.Context, symbol, kind string, account, target model.Address, amount *uint256.Int,
	op func(t *token.AssetToken, block uint64) (*token.Receipt, error)) (*opResult, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.Token(symbol)
	if err != nil {
		return nil, err
	}

	block := s.clock.Next()
	metrics.BlockHeight.Set(float64(block))

	rcpt, err := op(t, block)
	if err != nil {
		s.persistHeight(ctx)
		metrics.OperationRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	s.persistHeight(ctx)
	s.persistTokenState(ctx, symbol, t)
	touched := []model.Address{t.Addr()}
	if account != model.AddressZero {
		touched = append(touched, account)
	}
	if target != model.AddressZero {
		touched = append(touched, target)
	}
	s.persistAccounts(ctx, t, touched...)
	s.journal(ctx, kind, symbol, account, target, amount, rcpt.Payment, block)

	for i := range rcpt.Events {
		if rcpt.Events[i].Block == 0 {
			rcpt.Events[i].Block = block
		}
	}
	s.hub.PublishAll(rcpt.Events)
	metrics.OperationsTotal.WithLabelValues(kind, symbol).Inc()
	metrics.ReserveBalance.Set(reserveGauge(s.ctrl.ReserveBalance()))

	slog.Info("operation executed",
		"kind", kind,
		"token", symbol,
		"account", account,
		"block", block,
	)
	return &opResult{Block: block, Events: rcpt.Events, Payment: rcpt.Payment}, nil
}

// executeAdmin runs a controller-level operation in its own block.
func (s *Service) executeAdmin(ctx context.Context, kind string, account model.Address,
	op func(block uint64) ([]model.Event, error)) (*opResult, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	block := s.clock.Next()
	metrics.BlockHeight.Set(float64(block))

	evs, err := op(block)
	if err != nil {
		s.persistHeight(ctx)
		metrics.OperationRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	s.persistHeight(ctx)
	s.journal(ctx, kind, "", account, model.AddressZero, nil, nil, block)

	for i := range evs {
		if evs[i].Block == 0 {
			evs[i].Block = block
		}
	}
	s.hub.PublishAll(evs)
	metrics.OperationsTotal.WithLabelValues(kind, "").Inc()

	slog.Info("operation executed", "kind", kind, "account", account, "block", block)
	return &opResult{Block: block, Events: evs}, nil
}

// AdvanceBlocks mines n empty blocks. Admin only.
func (s *Service) AdvanceBlocks(ctx context.Context, caller model.Address, n uint64) (uint64, error) {
	if caller != s.admin {
		return 0, ErrRestrictedToAdmin
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	height := s.clock.Advance(n)
	metrics.BlockHeight.Set(float64(height))
	s.persistHeight(ctx)
	slog.Info("empty blocks mined", "n", n, "block", height)
	return height, nil
}

// --- Persistence helpers ---
//
// The in-memory platform is authoritative within a process lifetime;
// persistence failures are logged and surfaced via metrics rather than
// unwinding an already-applied operation.

func (s *Service) persistHeight(ctx context.Context) {
	if err := s.store.SaveBlockHeight(ctx, s.clock.Current()); err != nil {
		slog.Error("persist block height failed", "err", err)
	}
}

func (s *Service) persistTokenState(ctx context.Context, symbol string, t *token.AssetToken) {
	st := &model.TokenState{
		Symbol:         symbol,
		Paused:         t.Paused(),
		RewardPerBlock: t.RewardPerBlock().Dec(),
	}
	if err := s.store.SaveTokenState(ctx, st); err != nil {
		slog.Error("persist token state failed", "token", symbol, "err", err)
	}
}

func (s *Service) persistAccounts(ctx context.Context, t *token.AssetToken, accounts ...model.Address) {
	for _, account := range accounts {
		rec := &model.BalanceRecord{
			Token:   t.Symbol(),
			Account: account,
			Amount:  t.BalanceOf(account).Dec(),
		}
		if err := s.store.SaveBalance(ctx, rec); err != nil {
			slog.Error("persist balance failed", "token", t.Symbol(), "account", account, "err", err)
		}
		if entry, ok := t.RewardSnapshot(account); ok {
			rr := &model.RewardRecord{
				Token:            t.Symbol(),
				Account:          account,
				Accrued:          entry.Accrued.Dec(),
				LastSettledBlock: entry.LastSettledBlock,
			}
			if err := s.store.SaveRewardEntry(ctx, rr); err != nil {
				slog.Error("persist reward entry failed", "token", t.Symbol(), "account", account, "err", err)
			}
		}
	}
}

func (s *Service) persistOraclePrice(ctx context.Context, currency model.Currency) {
	price, err := s.ctrl.GetPrice(currency)
	if err != nil {
		return
	}
	if err := s.store.SaveOraclePrice(ctx, currency, price.Dec()); err != nil {
		slog.Error("persist oracle price failed", "currency", currency, "err", err)
	}
}

func (s *Service) persistWhitelist(ctx context.Context) {
	if err := s.store.SaveWhitelist(ctx, s.ctrl.Whitelisted()); err != nil {
		slog.Error("persist whitelist failed", "err", err)
	}
}

func (s *Service) journal(ctx context.Context, kind, symbol string, account, target model.Address, amount, pmt *uint256.Int, block uint64) {
	entry := &model.JournalEntry{
		ID:        uuid.New().String(),
		Kind:      kind,
		Token:     symbol,
		Account:   account,
		Target:    target,
		Amount:    decOrZero(amount),
		Payment:   decOrZero(pmt),
		Block:     block,
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.InsertJournalEntry(ctx, entry); err != nil {
		slog.Error("journal append failed", "kind", kind, "err", err)
	}
}

func decOrZero(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// reserveGauge renders the reserve for the gauge; precision loss beyond
// float64 is acceptable for monitoring.
func reserveGauge(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
