package utils

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNotFoundErrorUnwrapsRecordNotFound(t *testing.T) {
	err := &NotFoundError{Resource: "material", Id: 7}
	if !errors.Is(err, ErrorRecordNotFound) {
		t.Fatal("NotFoundError must unwrap to ErrorRecordNotFound")
	}
	if err.Error() != "material 7 not found" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestNotFoundErrorWithoutId(t *testing.T) {
	err := &NotFoundError{Resource: "flower"}
	if err.Error() != "flower not found" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError("password", "is incorrect")
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if err.Error() != "password: is incorrect" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestConcurrencyConflictErrorNamesResource(t *testing.T) {
	lotErr := &ConcurrencyConflictError{Resource: "lot", Id: 3}
	if lotErr.Error() != "lot 3 was modified concurrently, retry the operation" {
		t.Fatalf("unexpected message: %q", lotErr.Error())
	}
	orderErr := &ConcurrencyConflictError{Resource: "order", Id: 12}
	if orderErr.Error() != "order 12 was modified concurrently, retry the operation" {
		t.Fatalf("unexpected message: %q", orderErr.Error())
	}
}

func TestInsufficientStockErrorMessage(t *testing.T) {
	err := &InsufficientStockError{
		MaterialId:   1,
		MaterialName: "Red Rose",
		Shortfall:    decimal.NewFromInt(2),
	}
	if err.Error() != `not enough stock for material "Red Rose" (short 2)` {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
