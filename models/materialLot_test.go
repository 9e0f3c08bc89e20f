package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestValidateLotAdjustmentBounds(t *testing.T) {
	target := &MaterialLot{
		QuantityImport: decimal.NewFromInt(10),
		QuantityRemain: decimal.NewFromInt(4),
	}

	if err := validateLotAdjustment(target, decimal.NewFromInt(-4)); err != nil {
		t.Fatalf("draining to exactly zero must be allowed: %v", err)
	}
	if err := validateLotAdjustment(target, decimal.NewFromInt(6)); err != nil {
		t.Fatalf("restoring to exactly the imported quantity must be allowed: %v", err)
	}
	if err := validateLotAdjustment(target, decimal.NewFromInt(-5)); err == nil {
		t.Fatal("expected error when remain would go negative")
	}
	if err := validateLotAdjustment(target, decimal.NewFromInt(7)); err == nil {
		t.Fatal("expected error when remain would exceed the imported quantity")
	}
	if err := validateLotAdjustment(target, decimal.Zero); err == nil {
		t.Fatal("expected error for a zero delta")
	}
}

func TestNewMaterialLotValidate(t *testing.T) {
	importDate := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

	valid := &NewMaterialLot{
		QuantityImport: decimal.NewFromInt(10),
		ImportPrice:    decimal.NewFromInt(1000),
		ImportDate:     &importDate,
		ExpireDate:     importDate.AddDate(0, 0, 7),
	}
	if err := valid.validate(); err != nil {
		t.Fatalf("expected valid lot input to pass, got %v", err)
	}

	zeroQty := *valid
	zeroQty.QuantityImport = decimal.Zero
	if err := zeroQty.validate(); err == nil {
		t.Fatal("expected error for zero import quantity")
	}

	negativePrice := *valid
	negativePrice.ImportPrice = decimal.NewFromInt(-1)
	if err := negativePrice.validate(); err == nil {
		t.Fatal("expected error for negative import price")
	}

	expired := *valid
	expired.ExpireDate = importDate.AddDate(0, 0, -1)
	if err := expired.validate(); err == nil {
		t.Fatal("expected error when expiry precedes the import date")
	}
}
