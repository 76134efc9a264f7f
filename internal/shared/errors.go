package shared

import (
	"errors"
	"fmt"
)

// Machine-readable error codes surfaced to calling layers. Every
// precondition failure carries one of these plus the entities involved so
// the UI can render a specific message.
const (
	CodeValidation         = "VALIDATION"
	CodeNotFound           = "NOT_FOUND"
	CodePeriodNotOpen      = "PERIOD_NOT_OPEN"
	CodeMissingPeriodPrice = "MISSING_PERIOD_PRICE"
	CodeInsufficientStock  = "INSUFFICIENT_STOCK"
	CodeInvalidState       = "INVALID_STATE"
	CodeConsistency        = "CONSISTENCY"
	CodeIdempotency        = "IDEMPOTENCY_CONFLICT"
)

// AppError is the structured error type used across the engine.
// Validation and precondition failures abort a movement transaction before
// any write; consistency failures abort it mid-flight with a rollback.
type AppError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a key/value pair to the error details.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause records the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// NewValidation builds a validation error. Rejected before any ledger access.
func NewValidation(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

// NewNotFound builds a missing-entity error.
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// NewPeriodNotOpen signals a movement against a location whose period is
// not open for posting.
func NewPeriodNotOpen(periodID, locationID int64, status string) *AppError {
	return &AppError{
		Code:    CodePeriodNotOpen,
		Message: "period is not open for this location",
		Details: map[string]any{
			"period_id":   periodID,
			"location_id": locationID,
			"status":      status,
		},
	}
}

// NewMissingPeriodPrice lists every item missing a locked price for the
// period. Raised before any write occurs.
func NewMissingPeriodPrice(periodID int64, itemIDs []int64) *AppError {
	return &AppError{
		Code:    CodeMissingPeriodPrice,
		Message: "no locked period price for one or more items",
		Details: map[string]any{"period_id": periodID, "item_ids": itemIDs},
	}
}

// NewInsufficientStock reports how much stock was requested versus held.
func NewInsufficientStock(locationID, itemID int64, requested, available string) *AppError {
	return &AppError{
		Code:    CodeInsufficientStock,
		Message: "insufficient stock",
		Details: map[string]any{
			"location_id": locationID,
			"item_id":     itemID,
			"requested":   requested,
			"available":   available,
		},
	}
}

// NewInvalidState reports a status-machine violation.
func NewInvalidState(entity, current, attempted string) *AppError {
	return &AppError{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("%s cannot move from %s to %s", entity, current, attempted),
		Details: map[string]any{"entity": entity, "from": current, "to": attempted},
	}
}

// NewConsistency flags an internal invariant breach mid-transaction. The
// whole movement aborts; nothing is persisted.
func NewConsistency(message string) *AppError {
	return &AppError{Code: CodeConsistency, Message: message}
}

// AsAppError extracts an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the AppError code, or empty for plain errors.
func CodeOf(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}
