package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/terrafund/asset-engine/internal/emath"
)

var (
	ErrInvalidConfig = errors.New("model: invalid token configuration")
)

// TokenConfig is the deployment-time configuration of one asset token.
// Human-denominated amounts are decimal strings ("0.005") converted to WAD
// at load time. Everything here is immutable after deployment except
// RewardPerBlock, which the admin may change at runtime.
type TokenConfig struct {
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	TotalSupply uint64   `json:"total_supply"` // whole tokens, scaled to WAD at load
	Payment     Currency `json:"payment"`

	Price          decimal.Decimal `json:"price"`            // unit-of-account per token
	RewardPerBlock decimal.Decimal `json:"reward_per_block"` // unit-of-account per block
	InterestRate   decimal.Decimal `json:"interest_rate"`
	AssetPrice     decimal.Decimal `json:"asset_price"`

	// Informational coordinates of the backing asset.
	Latitude  decimal.Decimal `json:"latitude"`
	Longitude decimal.Decimal `json:"longitude"`

	// Native-currency tokens retain this WAD fraction of incoming
	// payments and forward the rest to the controller reserve.
	CashReserveRatio decimal.Decimal `json:"cash_reserve_ratio"`

	// Reward accrual stops BlockRemaining blocks after deployment.
	// Zero means the token never matures.
	BlockRemaining uint64 `json:"block_remaining"`
}

// Validate checks the configuration before deployment.
func (c *TokenConfig) Validate() error {
	if c.Name == "" || c.Symbol == "" {
		return fmt.Errorf("%w: name and symbol are required", ErrInvalidConfig)
	}
	if c.TotalSupply == 0 {
		return fmt.Errorf("%w: total supply must be positive", ErrInvalidConfig)
	}
	if c.Payment == "" {
		return fmt.Errorf("%w: payment currency is required", ErrInvalidConfig)
	}
	if c.Price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: price must be positive", ErrInvalidConfig)
	}
	if c.RewardPerBlock.IsNegative() {
		return fmt.Errorf("%w: reward per block cannot be negative", ErrInvalidConfig)
	}
	one := decimal.NewFromInt(1)
	if c.CashReserveRatio.IsNegative() || c.CashReserveRatio.GreaterThan(one) {
		return fmt.Errorf("%w: cash reserve ratio must be in [0, 1]", ErrInvalidConfig)
	}
	return nil
}

// SupplyWad returns the total supply scaled to WAD units.
func (c *TokenConfig) SupplyWad() *uint256.Int {
	return emath.Wad(c.TotalSupply)
}

// PriceWad returns the token price in WAD.
func (c *TokenConfig) PriceWad() (*uint256.Int, error) {
	return emath.WadFromDecimal(c.Price)
}

// RewardPerBlockWad returns the reward rate in WAD.
func (c *TokenConfig) RewardPerBlockWad() (*uint256.Int, error) {
	return emath.WadFromDecimal(c.RewardPerBlock)
}

// CashReserveRatioWad returns the reserve ratio in WAD.
func (c *TokenConfig) CashReserveRatioWad() (*uint256.Int, error) {
	return emath.WadFromDecimal(c.CashReserveRatio)
}

// PlatformConfig is the full deployment configuration: the admin identity,
// the payment currencies with their initial oracle prices, and the asset
// tokens to deploy. Modeled as explicit typed configuration passed into
// the deployment routine, never as shared mutable globals.
type PlatformConfig struct {
	Admin      Address                     `json:"admin"`
	Currencies map[Currency]CurrencyConfig `json:"currencies"`
	Tokens     []TokenConfig               `json:"tokens"`
}

// CurrencyConfig describes one payment currency.
type CurrencyConfig struct {
	// OraclePrice quotes payment-currency units per unit of account.
	OraclePrice decimal.Decimal `json:"oracle_price"`
	// Supply is minted to the admin for fungible (non-native) currencies.
	Supply decimal.Decimal `json:"supply"`
}

// LoadPlatformConfig reads and validates a JSON platform configuration.
func LoadPlatformConfig(path string) (*PlatformConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read config: %w", err)
	}
	var cfg PlatformConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("model: parse config: %w", err)
	}
	if cfg.Admin == AddressZero {
		return nil, fmt.Errorf("%w: admin is required", ErrInvalidConfig)
	}
	for i := range cfg.Tokens {
		if err := cfg.Tokens[i].Validate(); err != nil {
			return nil, fmt.Errorf("token %s: %w", cfg.Tokens[i].Symbol, err)
		}
		if _, ok := cfg.Currencies[cfg.Tokens[i].Payment]; !ok {
			return nil, fmt.Errorf("%w: token %s references unknown currency %s",
				ErrInvalidConfig, cfg.Tokens[i].Symbol, cfg.Tokens[i].Payment)
		}
	}
	return &cfg, nil
}
