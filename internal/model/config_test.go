package model_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/terrafund/asset-engine/internal/model"
)

func validToken() model.TokenConfig {
	return model.TokenConfig{
		Name:           "Asset One",
		Symbol:         "EA1",
		TotalSupply:    10000,
		Payment:        "EL",
		Price:          decimal.RequireFromString("5"),
		RewardPerBlock: decimal.RequireFromString("0.0005"),
	}
}

func TestTokenConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.TokenConfig)
		ok     bool
	}{
		{"valid", func(*model.TokenConfig) {}, true},
		{"missing symbol", func(c *model.TokenConfig) { c.Symbol = "" }, false},
		{"zero supply", func(c *model.TokenConfig) { c.TotalSupply = 0 }, false},
		{"missing currency", func(c *model.TokenConfig) { c.Payment = "" }, false},
		{"zero price", func(c *model.TokenConfig) { c.Price = decimal.Zero }, false},
		{"negative reward", func(c *model.TokenConfig) {
			c.RewardPerBlock = decimal.RequireFromString("-1")
		}, false},
		{"ratio above one", func(c *model.TokenConfig) {
			c.CashReserveRatio = decimal.RequireFromString("1.5")
		}, false},
		{"ratio of one", func(c *model.TokenConfig) {
			c.CashReserveRatio = decimal.RequireFromString("1")
		}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validToken()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, model.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadPlatformConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platform.json")
	data := `{
		"admin": "admin",
		"currencies": {
			"EL": {"oracle_price": "25", "supply": "1000000"}
		},
		"tokens": [{
			"name": "Asset One",
			"symbol": "EA1",
			"total_supply": 10000,
			"payment": "EL",
			"price": "5",
			"reward_per_block": "0.0005"
		}]
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := model.LoadPlatformConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Admin != "admin" {
		t.Errorf("unexpected admin: %s", cfg.Admin)
	}
	if len(cfg.Tokens) != 1 || cfg.Tokens[0].Symbol != "EA1" {
		t.Errorf("unexpected tokens: %+v", cfg.Tokens)
	}
	if !cfg.Currencies["EL"].OraclePrice.Equal(decimal.RequireFromString("25")) {
		t.Errorf("unexpected oracle price: %s", cfg.Currencies["EL"].OraclePrice)
	}
}

func TestLoadPlatformConfig_UnknownCurrency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platform.json")
	data := `{
		"admin": "admin",
		"currencies": {},
		"tokens": [{
			"name": "Asset One",
			"symbol": "EA1",
			"total_supply": 10000,
			"payment": "EL",
			"price": "5"
		}]
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := model.LoadPlatformConfig(path); !errors.Is(err, model.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadPlatformConfig_MissingAdmin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platform.json")
	if err := os.WriteFile(path, []byte(`{"currencies": {}, "tokens": []}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := model.LoadPlatformConfig(path); !errors.Is(err, model.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
