package engine

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/terrafund/asset-engine/internal/controller"
	"github.com/terrafund/asset-engine/internal/emath"
	"github.com/terrafund/asset-engine/internal/model"
	"github.com/terrafund/asset-engine/internal/oracle"
	"github.com/terrafund/asset-engine/internal/token"
)

// --- Request/Response types ---

// AmountRequest is the common body for account+amount operations. Amounts
// are human-denominated decimal strings ("20", "0.005") scaled to 18
// decimals at the boundary.
type AmountRequest struct {
	Account model.Address   `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
	Value   decimal.Decimal `json:"value"` // attached native value, purchases only
}

// TransferRequest is the body for POST .../transfer.
type TransferRequest struct {
	From   model.Address   `json:"from"`
	To     model.Address   `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// AccountRequest is the body for claim/withdraw style operations.
type AccountRequest struct {
	Account model.Address `json:"account"`
}

// AdminValueRequest is the body for admin parameter changes.
type AdminValueRequest struct {
	Admin model.Address   `json:"admin"`
	Value decimal.Decimal `json:"value"`
}

// OracleRequest is the body for POST /controller/oracles.
type OracleRequest struct {
	Admin    model.Address   `json:"admin"`
	Currency model.Currency  `json:"currency"`
	Price    decimal.Decimal `json:"price"`
}

// WhitelistRequest is the body for whitelist management.
type WhitelistRequest struct {
	Admin      model.Address `json:"admin"`
	Account    model.Address `json:"account"`
	NewAccount model.Address `json:"new_account"` // rotation only
}

// AdvanceRequest is the body for POST /chain/advance.
type AdvanceRequest struct {
	Admin  model.Address `json:"admin"`
	Blocks uint64        `json:"blocks"`
}

// OperationResponse is returned from every state-changing operation.
type OperationResponse struct {
	Block   uint64          `json:"block"`
	Payment decimal.Decimal `json:"payment"` // payment-currency units moved
	Events  []model.Event   `json:"events"`
}

// TokenResponse describes one asset token.
type TokenResponse struct {
	Symbol          string          `json:"symbol"`
	Name            string          `json:"name"`
	Currency        model.Currency  `json:"currency"`
	Price           decimal.Decimal `json:"price"`
	TotalSupply     decimal.Decimal `json:"total_supply"`
	TreasuryBalance decimal.Decimal `json:"treasury_balance"`
	RewardPerBlock  decimal.Decimal `json:"reward_per_block"`
	Paused          bool            `json:"paused"`
	Matured         bool            `json:"matured"`
	InitialBlock    uint64          `json:"initial_block"`
}

// --- Views ---

// GetChain handles GET /api/v1/chain
func (s *Service) GetChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"block": s.clock.Current()})
}

// AdvanceChain handles POST /api/v1/chain/advance
func (s *Service) AdvanceChain(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Blocks == 0 {
		writeError(w, "blocks must be positive", http.StatusBadRequest)
		return
	}
	height, err := s.AdvanceBlocks(r.Context(), req.Admin, req.Blocks)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"block": height})
}

// ListTokens handles GET /api/v1/tokens
func (s *Service) ListTokens(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TokenResponse, 0, len(s.order))
	for _, symbol := range s.order {
		out = append(out, s.tokenResponse(s.tokens[symbol]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetToken handles GET /api/v1/tokens/{symbol}
func (s *Service) GetToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.Token(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.tokenResponse(t))
}

func (s *Service) tokenResponse(t *token.AssetToken) TokenResponse {
	return TokenResponse{
		Symbol:          t.Symbol(),
		Name:            t.Name(),
		Currency:        t.Currency(),
		Price:           emath.DecimalFromWad(t.Price()),
		TotalSupply:     emath.DecimalFromWad(t.TotalSupply()),
		TreasuryBalance: emath.DecimalFromWad(t.BalanceOf(t.Addr())),
		RewardPerBlock:  emath.DecimalFromWad(t.RewardPerBlock()),
		Paused:          t.Paused(),
		Matured:         t.Matured(s.clock.Current()),
		InitialBlock:    t.InitialBlock(),
	}
}

// GetBalance handles GET /api/v1/tokens/{symbol}/balances/{account}
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.Token(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	account := model.Address(chi.URLParam(r, "account"))
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"balance": emath.DecimalFromWad(t.BalanceOf(account)),
	})
}

// GetReward handles GET /api/v1/tokens/{symbol}/reward/{account}
// Includes accrual pending for the current block without mutating state.
func (s *Service) GetReward(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.Token(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	account := model.Address(chi.URLParam(r, "account"))
	reward, err := t.GetReward(account, s.clock.Current())
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"reward": emath.DecimalFromWad(reward),
	})
}

// GetJournal handles GET /api/v1/journal?token=&account=
func (s *Service) GetJournal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var entries []model.JournalEntry
	var err error
	switch {
	case r.URL.Query().Get("token") != "":
		entries, err = s.store.GetJournalByToken(ctx, r.URL.Query().Get("token"))
	case r.URL.Query().Get("account") != "":
		entries, err = s.store.GetJournalByAccount(ctx, model.Address(r.URL.Query().Get("account")))
	default:
		writeError(w, "token or account query parameter is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, "failed to load journal", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Token operations ---

// Purchase handles POST /api/v1/tokens/{symbol}/purchase
func (s *Service) Purchase(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == model.AddressZero {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}
	amount, err := emath.WadFromDecimal(req.Amount)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var value *uint256.Int
	if !req.Value.IsZero() {
		if value, err = emath.WadFromDecimal(req.Value); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	symbol := chi.URLParam(r, "symbol")
	res, err := s.execute(r.Context(), symbol, "purchase", req.Account, model.AddressZero, amount,
		func(t *token.AssetToken, block uint64) (*token.Receipt, error) {
			return t.Purchase(req.Account, amount, value, block)
		})
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeOperation(w, res)
}

// Refund handles POST /api/v1/tokens/{symbol}/refund
func (s *Service) Refund(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	amount, err := emath.WadFromDecimal(req.Amount)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	symbol := chi.URLParam(r, "symbol")
	res, err := s.execute(r.Context(), symbol, "refund", req.Account, model.AddressZero, amount,
		func(t *token.AssetToken, block uint64) (*token.Receipt, error) {
			return t.Refund(req.Account, amount, block)
		})
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeOperation(w, res)
}

// Transfer handles POST /api/v1/tokens/{symbol}/transfer
func (s *Service) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.From == model.AddressZero || req.To == model.AddressZero {
		writeError(w, "from and to are required", http.StatusBadRequest)
		return
	}
	amount, err := emath.WadFromDecimal(req.Amount)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	symbol := chi.URLParam(r, "symbol")
	res, err := s.execute(r.Context(), symbol, "transfer", req.From, req.To, amount,
		func(t *token.AssetToken, block uint64) (*token.Receipt, error) {
			return t.Transfer(req.From, req.To, amount, block)
		})
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeOperation(w, res)
}

// Claim handles POST /api/v1/tokens/{symbol}/claim
func (s *Service) Claim(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	symbol := chi.URLParam(r, "symbol")
	res, err := s.execute(r.Context(), symbol, "claim", req.Account, model.AddressZero, nil,
		func(t *token.AssetToken, block uint64) (*token.Receipt, error) {
			return t.ClaimReward(req.Account, block)
		})
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeOperation(w, res)
}

// Withdraw handles POST /api/v1/tokens/{symbol}/withdraw
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	symbol := chi.URLParam(r, "symbol")
	res, err := s.execute(r.Context(), symbol, "withdraw", req.Account, model.AddressZero, nil,
		func(t *token.AssetToken, block uint64) (*token.Receipt, error) {
			return t.WithdrawToAdmin(req.Account, block)
		})
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeOperation(w, res)
}

// SetRewardPerBlock handles POST /api/v1/tokens/{symbol}/reward-per-block
func (s *Service) SetRewardPerBlock(w http.ResponseWriter, r *http.Request) {
	var req AdminValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	value, err := emath.WadFromDecimal(req.Value)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	symbol := chi.URLParam(r, "symbol")
	res, err := s.execute(r.Context(), symbol, "set-reward-per-block", req.Admin, model.AddressZero, nil,
		func(t *token.AssetToken, block uint64) (*token.Receipt, error) {
			return t.SetRewardPerBlock(req.Admin, value, block)
		})
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeOperation(w, res)
}

// SetController handles POST /api/v1/tokens/{symbol}/controller
// Reattaches the token to the platform controller, emitting NewController.
// Admin only.
func (s *Service) SetController(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	symbol := chi.URLParam(r, "symbol")
	res, err := s.execute(r.Context(), symbol, "set-controller", req.Account, model.AddressZero, nil,
		func(t *token.AssetToken, block uint64) (*token.Receipt, error) {
			return t.SetController(req.Account, s.ctrl, block)
		})
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeOperation(w, res)
}

// Pause handles POST /api/v1/tokens/{symbol}/pause
func (s *Service) Pause(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, true)
}

// Unpause handles POST /api/v1/tokens/{symbol}/unpause
func (s *Service) Unpause(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, false)
}

func (s *Service) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	kind := "pause"
	typ := model.EventPaused
	if !paused {
		kind = "unpause"
		typ = model.EventUnpaused
	}

	symbol := chi.URLParam(r, "symbol")
	res, err := s.execute(r.Context(), symbol, kind, req.Account, model.AddressZero, nil,
		func(t *token.AssetToken, block uint64) (*token.Receipt, error) {
			if err := t.SetPaused(req.Account, paused); err != nil {
				return nil, err
			}
			return &token.Receipt{Events: []model.Event{
				{Type: typ, Token: t.Symbol(), Block: block},
			}}, nil
		})
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeOperation(w, res)
}

// --- Controller operations ---

// SetOraclePrice handles POST /api/v1/controller/oracles
func (s *Service) SetOraclePrice(w http.ResponseWriter, r *http.Request) {
	var req OracleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	price, err := emath.WadFromDecimal(req.Price)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.executeAdmin(r.Context(), "set-oracle-price", req.Admin,
		func(block uint64) ([]model.Event, error) {
			o, err := s.ctrl.Oracle(req.Currency)
			if err != nil {
				return nil, err
			}
			if err := o.SetPrice(req.Admin, price); err != nil {
				return nil, err
			}
			return []model.Event{
				{Type: model.EventNewPrice, Currency: req.Currency, Value: price.Dec(), Block: block},
			}, nil
		})
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	s.persistOraclePrice(r.Context(), req.Currency)
	writeOperation(w, res)
}

// AddWhitelist handles POST /api/v1/controller/whitelist
func (s *Service) AddWhitelist(w http.ResponseWriter, r *http.Request) {
	var req WhitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.executeAdmin(r.Context(), "whitelist-add", req.Account,
		func(block uint64) ([]model.Event, error) {
			ev, err := s.ctrl.AddAddressToWhitelist(req.Admin, req.Account)
			if err != nil {
				return nil, err
			}
			return []model.Event{ev}, nil
		})
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	s.persistWhitelist(r.Context())
	writeOperation(w, res)
}

// RemoveWhitelist handles DELETE /api/v1/controller/whitelist
func (s *Service) RemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	var req WhitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.executeAdmin(r.Context(), "whitelist-remove", req.Account,
		func(block uint64) ([]model.Event, error) {
			ev, err := s.ctrl.RemoveAddressFromWhitelist(req.Admin, req.Account)
			if err != nil {
				return nil, err
			}
			return []model.Event{ev}, nil
		})
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	s.persistWhitelist(r.Context())
	writeOperation(w, res)
}

// RotateWhitelist handles POST /api/v1/controller/whitelist/rotate
// Self-service: the whitelisted account moves its own role.
func (s *Service) RotateWhitelist(w http.ResponseWriter, r *http.Request) {
	var req WhitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.NewAccount == model.AddressZero {
		writeError(w, "new_account is required", http.StatusBadRequest)
		return
	}

	res, err := s.executeAdmin(r.Context(), "whitelist-rotate", req.Account,
		func(block uint64) ([]model.Event, error) {
			return s.ctrl.ChangeWhitelistedAccount(req.Account, req.NewAccount)
		})
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	s.persistWhitelist(r.Context())
	writeOperation(w, res)
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOperation(w http.ResponseWriter, res *opResult) {
	resp := OperationResponse{Block: res.Block, Events: res.Events}
	if res.Payment != nil {
		resp.Payment = emath.DecimalFromWad(res.Payment)
	}
	if resp.Events == nil {
		resp.Events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// errStatus maps domain errors onto HTTP status codes: role violations to
// 403, economic preconditions to 409/402, arithmetic failures to 422,
// missing entities to 404.
func errStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnknownToken):
		return http.StatusNotFound
	case errors.Is(err, token.ErrRestrictedToAdmin),
		errors.Is(err, token.ErrRestrictedToWhitelist),
		errors.Is(err, controller.ErrRestrictedToAdmin),
		errors.Is(err, controller.ErrRestrictedToAssetToken),
		errors.Is(err, controller.ErrNotWhitelisted),
		errors.Is(err, oracle.ErrRestrictedToAdmin),
		errors.Is(err, ErrRestrictedToAdmin):
		return http.StatusForbidden
	case errors.Is(err, token.ErrInsufficientPayment):
		return http.StatusPaymentRequired
	case errors.Is(err, token.ErrPaused),
		errors.Is(err, token.ErrReentrancy),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientSellerBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, token.ErrInsufficientContractBalance),
		errors.Is(err, controller.ErrInsufficientReserve),
		errors.Is(err, controller.ErrNoOracleRegistered),
		errors.Is(err, controller.ErrUnknownAssetToken):
		return http.StatusConflict
	case errors.Is(err, emath.ErrOverflow),
		errors.Is(err, emath.ErrZeroDivisor),
		errors.Is(err, emath.ErrNotWad),
		errors.Is(err, oracle.ErrZeroPrice):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// rejectionReason buckets errors for the rejection counter.
func rejectionReason(err error) string {
	switch errStatus(err) {
	case http.StatusForbidden:
		return "access"
	case http.StatusPaymentRequired, http.StatusConflict:
		return "economic"
	case http.StatusUnprocessableEntity:
		return "overflow"
	default:
		return "other"
	}
}
