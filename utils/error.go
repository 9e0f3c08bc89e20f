package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError reports malformed input. No state change has happened.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func NewValidationError(field string, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports a missing referenced resource.
type NotFoundError struct {
	Resource string
	Id       int
}

func (e *NotFoundError) Error() string {
	if e.Id == 0 {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %d not found", e.Resource, e.Id)
}

func (e *NotFoundError) Unwrap() error {
	return ErrorRecordNotFound
}

// InsufficientStockError names the first material an allocation fell short on.
// The enclosing transaction must be rolled back by the caller.
type InsufficientStockError struct {
	MaterialId   int
	MaterialName string
	Shortfall    decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for material %q (short %s)", e.MaterialName, e.Shortfall)
}

// InvalidTransitionError reports an order status change that is not a legal edge.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// ConcurrencyConflictError means two operations raced on the same row;
// the caller should retry the whole operation.
type ConcurrencyConflictError struct {
	Resource string
	Id       int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s %d was modified concurrently, retry the operation", e.Resource, e.Id)
}
