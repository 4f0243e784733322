package oracle_test

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/terrafund/asset-engine/internal/emath"
	"github.com/terrafund/asset-engine/internal/oracle"
)

const admin = "admin"

func TestSetPrice_AdminOnly(t *testing.T) {
	o := oracle.NewPriceOracle(admin, nil)

	if err := o.SetPrice("mallory", emath.Wad(25)); !errors.Is(err, oracle.ErrRestrictedToAdmin) {
		t.Errorf("expected ErrRestrictedToAdmin, got %v", err)
	}
	if err := o.SetPrice(admin, emath.Wad(25)); err != nil {
		t.Fatalf("admin SetPrice failed: %v", err)
	}
	if !o.GetPrice().Eq(emath.Wad(25)) {
		t.Errorf("expected 25e18, got %s", o.GetPrice().Dec())
	}
}

func TestMulPrice(t *testing.T) {
	// 25 payment units per unit of account: 100 units of account cost 2500.
	o := oracle.NewPriceOracle(admin, emath.Wad(25))

	got, err := o.MulPrice(emath.Wad(100))
	if err != nil {
		t.Fatalf("MulPrice failed: %v", err)
	}
	if !got.Eq(emath.Wad(2500)) {
		t.Errorf("expected 2500e18, got %s", got.Dec())
	}
}

func TestToValue_InvertsMulPrice(t *testing.T) {
	o := oracle.NewPriceOracle(admin, emath.Wad(25))

	pmt, err := o.MulPrice(emath.Wad(100))
	if err != nil {
		t.Fatal(err)
	}
	back, err := o.ToValue(pmt)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Eq(emath.Wad(100)) {
		t.Errorf("expected 100e18 back, got %s", back.Dec())
	}
}

func TestMulPrice_ZeroPrice(t *testing.T) {
	o := oracle.NewPriceOracle(admin, nil)
	if _, err := o.MulPrice(emath.Wad(1)); !errors.Is(err, oracle.ErrZeroPrice) {
		t.Errorf("expected ErrZeroPrice, got %v", err)
	}
	if _, err := o.ToValue(emath.Wad(1)); !errors.Is(err, oracle.ErrZeroPrice) {
		t.Errorf("expected ErrZeroPrice, got %v", err)
	}
}

func TestMulPrice_Overflow(t *testing.T) {
	o := oracle.NewPriceOracle(admin, new(uint256.Int).SetAllOne())
	if _, err := o.MulPrice(new(uint256.Int).SetAllOne()); !errors.Is(err, emath.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}
