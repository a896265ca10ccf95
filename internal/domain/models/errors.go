package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrAmountExceedsAvailable  = errors.New("amount exceeds available")
	ErrAlreadyResolved         = errors.New("already resolved")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrPoolNotFound            = errors.New("pool not found")
	ErrNotFound                = errors.New("not found")
	ErrPoolClosed              = errors.New("pool closed")
	ErrDuplicatePaymentPeriod  = errors.New("duplicate payment period")
	ErrConcurrentModification  = errors.New("concurrent modification")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidPeriod           = errors.New("invalid payment period")
	ErrPaymentNotDue           = errors.New("payment not due")
	ErrDeliveryFailed          = errors.New("message delivery failed")
)

// CapacityError is returned when an allocation asks for more than a pool holds.
type CapacityError struct {
	PoolID    string
	Unit      string
	Requested decimal.Decimal
	Limit     decimal.Decimal
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("requested %s%s, only %s%s remaining", e.Requested.String(), e.Unit, e.Limit.String(), e.Unit)
}

func (e *CapacityError) Unwrap() error {
	return ErrAmountExceedsAvailable
}

// WarningQuantityMismatch flags an accepted amount far from the declared one.
const WarningQuantityMismatch = "quantity_mismatch"

// Warning is a non-fatal observation returned next to a successful result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
