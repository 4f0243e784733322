package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/terrafund/asset-engine/internal/emath"
	"github.com/terrafund/asset-engine/internal/engine"
	"github.com/terrafund/asset-engine/internal/events"
	"github.com/terrafund/asset-engine/internal/model"
	"github.com/terrafund/asset-engine/internal/store"
)

const (
	admin = model.Address("admin")
	alice = model.Address("alice")
	bob   = model.Address("bob")
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func platformConfig() *model.PlatformConfig {
	return &model.PlatformConfig{
		Admin: admin,
		Currencies: map[model.Currency]model.CurrencyConfig{
			"EL": {OraclePrice: d("25"), Supply: d("1000000")},
		},
		Tokens: []model.TokenConfig{{
			Name:           "Asset One",
			Symbol:         "EA1",
			TotalSupply:    10000,
			Payment:        "EL",
			Price:          d("5"),
			RewardPerBlock: d("0.0005"),
		}},
	}
}

// newTestEnv deploys a platform over an in-memory store and wires the
// full route table.
func newTestEnv(t *testing.T) (*engine.Service, *store.MemoryStore, chi.Router) {
	t.Helper()

	ms := store.NewMemoryStore()
	hub := events.NewHub()
	svc, err := engine.NewPlatform(platformConfig(), ms, hub)
	if err != nil {
		t.Fatalf("platform deployment failed: %v", err)
	}
	if err := svc.RestoreState(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	// Fund alice with EL and pre-approve the token treasury.
	ledger, err := svc.Ledger("EL")
	if err != nil {
		t.Fatal(err)
	}
	if err := ledger.Transfer(admin, alice, emath.Wad(10000)); err != nil {
		t.Fatal(err)
	}
	tok, err := svc.Token("EA1")
	if err != nil {
		t.Fatal(err)
	}
	ledger.Approve(alice, tok.Addr(), emath.Wad(10000))

	r := chi.NewRouter()
	r.Get("/api/v1/chain", svc.GetChain)
	r.Post("/api/v1/chain/advance", svc.AdvanceChain)
	r.Get("/api/v1/tokens", svc.ListTokens)
	r.Get("/api/v1/tokens/{symbol}", svc.GetToken)
	r.Get("/api/v1/tokens/{symbol}/balances/{account}", svc.GetBalance)
	r.Get("/api/v1/tokens/{symbol}/reward/{account}", svc.GetReward)
	r.Post("/api/v1/tokens/{symbol}/purchase", svc.Purchase)
	r.Post("/api/v1/tokens/{symbol}/refund", svc.Refund)
	r.Post("/api/v1/tokens/{symbol}/transfer", svc.Transfer)
	r.Post("/api/v1/tokens/{symbol}/claim", svc.Claim)
	r.Post("/api/v1/tokens/{symbol}/controller", svc.SetController)
	r.Post("/api/v1/tokens/{symbol}/pause", svc.Pause)
	r.Post("/api/v1/tokens/{symbol}/unpause", svc.Unpause)
	r.Post("/api/v1/controller/oracles", svc.SetOraclePrice)
	r.Post("/api/v1/controller/whitelist", svc.AddWhitelist)
	r.Post("/api/v1/controller/whitelist/rotate", svc.RotateWhitelist)
	r.Get("/api/v1/journal", svc.GetJournal)

	return svc, ms, r
}

func post(t *testing.T, router chi.Router, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// --- Purchase / refund over HTTP ---

func TestPurchase_HTTP(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := post(t, router, "/api/v1/tokens/EA1/purchase", engine.AmountRequest{
		Account: alice, Amount: d("20"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp engine.OperationResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Payment.Equal(d("2500")) {
		t.Errorf("expected payment 2500, got %s", resp.Payment)
	}
	if resp.Block == 0 {
		t.Error("expected a non-zero block")
	}

	// Balance endpoint reflects the purchase.
	w = get(t, router, "/api/v1/tokens/EA1/balances/alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var bal map[string]decimal.Decimal
	json.Unmarshal(w.Body.Bytes(), &bal)
	if !bal["balance"].Equal(d("20")) {
		t.Errorf("expected balance 20, got %s", bal["balance"])
	}
}

func TestPurchase_UnknownToken(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := post(t, router, "/api/v1/tokens/NOPE/purchase", engine.AmountRequest{
		Account: alice, Amount: d("1"),
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestPurchase_InsufficientFunds(t *testing.T) {
	_, _, router := newTestEnv(t)

	// Bob holds no EL at all.
	w := post(t, router, "/api/v1/tokens/EA1/purchase", engine.AmountRequest{
		Account: bob, Amount: d("1"),
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRefund_HTTP(t *testing.T) {
	_, _, router := newTestEnv(t)

	post(t, router, "/api/v1/tokens/EA1/purchase", engine.AmountRequest{Account: alice, Amount: d("20")})
	w := post(t, router, "/api/v1/tokens/EA1/refund", engine.AmountRequest{Account: alice, Amount: d("20")})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp engine.OperationResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Payment.Equal(d("2500")) {
		t.Errorf("expected refund 2500, got %s", resp.Payment)
	}
}

// --- Claim and whitelist ---

func TestClaim_RequiresWhitelist(t *testing.T) {
	_, _, router := newTestEnv(t)
	post(t, router, "/api/v1/tokens/EA1/purchase", engine.AmountRequest{Account: alice, Amount: d("20")})

	w := post(t, router, "/api/v1/tokens/EA1/claim", engine.AccountRequest{Account: alice})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d: %s", w.Code, w.Body.String())
	}

	// Whitelist alice (admin), then claim succeeds.
	w = post(t, router, "/api/v1/controller/whitelist", engine.WhitelistRequest{Admin: admin, Account: alice})
	if w.Code != http.StatusOK {
		t.Fatalf("whitelist add failed: %d %s", w.Code, w.Body.String())
	}
	w = post(t, router, "/api/v1/tokens/EA1/claim", engine.AccountRequest{Account: alice})
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWhitelist_NonAdmin(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := post(t, router, "/api/v1/controller/whitelist", engine.WhitelistRequest{Admin: alice, Account: alice})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestWhitelist_Rotate(t *testing.T) {
	svc, _, router := newTestEnv(t)
	post(t, router, "/api/v1/controller/whitelist", engine.WhitelistRequest{Admin: admin, Account: alice})

	w := post(t, router, "/api/v1/controller/whitelist/rotate", engine.WhitelistRequest{
		Account: alice, NewAccount: bob,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("rotate failed: %d %s", w.Code, w.Body.String())
	}
	if svc.Controller().IsWhitelisted(alice) {
		t.Error("old account still whitelisted")
	}
	if !svc.Controller().IsWhitelisted(bob) {
		t.Error("new account not whitelisted")
	}
}

// --- Pause ---

func TestPause_HTTP(t *testing.T) {
	_, _, router := newTestEnv(t)

	// Only the admin (or controller) may pause.
	w := post(t, router, "/api/v1/tokens/EA1/pause", engine.AccountRequest{Account: alice})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}

	w = post(t, router, "/api/v1/tokens/EA1/pause", engine.AccountRequest{Account: admin})
	if w.Code != http.StatusOK {
		t.Fatalf("pause failed: %d %s", w.Code, w.Body.String())
	}

	w = post(t, router, "/api/v1/tokens/EA1/purchase", engine.AmountRequest{Account: alice, Amount: d("1")})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 while paused, got %d", w.Code)
	}

	post(t, router, "/api/v1/tokens/EA1/unpause", engine.AccountRequest{Account: admin})
	w = post(t, router, "/api/v1/tokens/EA1/purchase", engine.AmountRequest{Account: alice, Amount: d("1")})
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 after unpause, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSetController_HTTP(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := post(t, router, "/api/v1/tokens/EA1/controller", engine.AccountRequest{Account: alice})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", w.Code)
	}

	w = post(t, router, "/api/v1/tokens/EA1/controller", engine.AccountRequest{Account: admin})
	if w.Code != http.StatusOK {
		t.Fatalf("set controller failed: %d %s", w.Code, w.Body.String())
	}
	var resp engine.OperationResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Events) != 1 || resp.Events[0].Type != model.EventNewController {
		t.Errorf("expected NewController event, got %+v", resp.Events)
	}
}

// --- Chain ---

func TestChainAdvance(t *testing.T) {
	svc, _, router := newTestEnv(t)
	before := svc.BlockHeight()

	w := post(t, router, "/api/v1/chain/advance", engine.AdvanceRequest{Admin: alice, Blocks: 5})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", w.Code)
	}

	w = post(t, router, "/api/v1/chain/advance", engine.AdvanceRequest{Admin: admin, Blocks: 5})
	if w.Code != http.StatusOK {
		t.Fatalf("advance failed: %d %s", w.Code, w.Body.String())
	}
	if svc.BlockHeight() != before+5 {
		t.Errorf("expected height %d, got %d", before+5, svc.BlockHeight())
	}
}

func TestEachOperationConsumesOneBlock(t *testing.T) {
	svc, _, router := newTestEnv(t)
	before := svc.BlockHeight()

	post(t, router, "/api/v1/tokens/EA1/purchase", engine.AmountRequest{Account: alice, Amount: d("1")})
	post(t, router, "/api/v1/tokens/EA1/transfer", engine.TransferRequest{From: alice, To: bob, Amount: d("1")})

	if svc.BlockHeight() != before+2 {
		t.Errorf("expected 2 blocks consumed, got %d", svc.BlockHeight()-before)
	}
}

// --- Reward accrual through the API ---

func TestRewardAccrual_HTTP(t *testing.T) {
	_, _, router := newTestEnv(t)

	post(t, router, "/api/v1/tokens/EA1/purchase", engine.AmountRequest{Account: alice, Amount: d("20")})
	post(t, router, "/api/v1/chain/advance", engine.AdvanceRequest{Admin: admin, Blocks: 2})

	// 20/10000 of 0.0005 per block over two blocks: 2e-6.
	w := get(t, router, "/api/v1/tokens/EA1/reward/alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]decimal.Decimal
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp["reward"].Equal(d("0.000002")) {
		t.Errorf("expected reward 0.000002, got %s", resp["reward"])
	}
}

// --- Oracle updates ---

func TestSetOraclePrice_HTTP(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := post(t, router, "/api/v1/controller/oracles", engine.OracleRequest{
		Admin: alice, Currency: "EL", Price: d("30"),
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", w.Code)
	}

	w = post(t, router, "/api/v1/controller/oracles", engine.OracleRequest{
		Admin: admin, Currency: "EL", Price: d("30"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("oracle update failed: %d %s", w.Code, w.Body.String())
	}

	// New price drives the next purchase: 20 tokens now cost 3000 EL.
	w = post(t, router, "/api/v1/tokens/EA1/purchase", engine.AmountRequest{Account: alice, Amount: d("20")})
	var resp engine.OperationResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Payment.Equal(d("3000")) {
		t.Errorf("expected payment 3000 at new price, got %s", resp.Payment)
	}
}

// --- Journal ---

func TestJournal_RecordsOperations(t *testing.T) {
	_, ms, router := newTestEnv(t)

	post(t, router, "/api/v1/tokens/EA1/purchase", engine.AmountRequest{Account: alice, Amount: d("20")})
	post(t, router, "/api/v1/tokens/EA1/transfer", engine.TransferRequest{From: alice, To: bob, Amount: d("5")})

	entries, err := ms.GetJournalByToken(context.Background(), "EA1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(entries))
	}
	if entries[0].Kind != "purchase" || entries[1].Kind != "transfer" {
		t.Errorf("unexpected kinds: %s, %s", entries[0].Kind, entries[1].Kind)
	}
	if entries[0].ID == "" {
		t.Error("expected a journal entry id")
	}

	w := get(t, router, "/api/v1/journal?account=bob")
	if w.Code != http.StatusOK {
		t.Fatalf("journal query failed: %d", w.Code)
	}
	var byAccount []model.JournalEntry
	json.Unmarshal(w.Body.Bytes(), &byAccount)
	if len(byAccount) != 1 {
		t.Errorf("expected 1 entry touching bob, got %d", len(byAccount))
	}
}

// --- Persistence round trip ---

func TestRestoreState_RoundTrip(t *testing.T) {
	svc, ms, router := newTestEnv(t)

	post(t, router, "/api/v1/tokens/EA1/purchase", engine.AmountRequest{Account: alice, Amount: d("20")})
	height := svc.BlockHeight()

	// A second platform over the same store resumes where the first left off.
	hub := events.NewHub()
	svc2, err := engine.NewPlatform(platformConfig(), ms, hub)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc2.RestoreState(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	if svc2.BlockHeight() != height {
		t.Errorf("height not restored: %d != %d", svc2.BlockHeight(), height)
	}
	tok, err := svc2.Token("EA1")
	if err != nil {
		t.Fatal(err)
	}
	if !tok.BalanceOf(alice).Eq(emath.Wad(20)) {
		t.Errorf("balance not restored: %s", tok.BalanceOf(alice).Dec())
	}
}

// --- Token listing ---

func TestListTokens(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := get(t, router, "/api/v1/tokens")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var tokens []engine.TokenResponse
	json.Unmarshal(w.Body.Bytes(), &tokens)
	if len(tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(tokens))
	}
	if tokens[0].Symbol != "EA1" || tokens[0].Currency != "EL" {
		t.Errorf("unexpected token: %+v", tokens[0])
	}
	if !tokens[0].TotalSupply.Equal(d("10000")) {
		t.Errorf("expected supply 10000, got %s", tokens[0].TotalSupply)
	}
}
