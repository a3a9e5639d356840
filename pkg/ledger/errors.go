package ledger

import (
	"errors"
	"fmt"
)

// Error categories. Every domain error wraps exactly one of these.
var (
	ErrValidation        = errors.New("validation")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInternal          = errors.New("internal")
)

// Domain-level error values returned by the ledger services.
var (
	ErrInvalidAccountID       = fmt.Errorf("%w: invalid account id", ErrValidation)
	ErrInvalidBetID           = fmt.Errorf("%w: invalid bet id", ErrValidation)
	ErrInvalidEntryID         = fmt.Errorf("%w: invalid entry id", ErrValidation)
	ErrInvalidRaceID          = fmt.Errorf("%w: invalid race id", ErrValidation)
	ErrInvalidAmount          = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidEntryKind       = fmt.Errorf("%w: invalid entry kind", ErrValidation)
	ErrInvalidBetType         = fmt.Errorf("%w: invalid bet type", ErrValidation)
	ErrInvalidBetStatus       = fmt.Errorf("%w: invalid bet status", ErrValidation)
	ErrInvalidRaceStatus      = fmt.Errorf("%w: invalid race status", ErrValidation)
	ErrSelectionCountMismatch = fmt.Errorf("%w: selection count mismatch", ErrValidation)
	ErrInvalidSelection       = fmt.Errorf("%w: invalid selection", ErrValidation)
	ErrAmountOutOfRange       = fmt.Errorf("%w: amount out of range", ErrValidation)
	ErrInvalidOdds            = fmt.Errorf("%w: invalid odds", ErrValidation)
	ErrOddsUnsupported        = fmt.Errorf("%w: odds unsupported for bet type in v1", ErrValidation)
	ErrUnknownHorse           = fmt.Errorf("%w: horse not entered in race", ErrValidation)
	ErrInvalidCalendarDay     = fmt.Errorf("%w: invalid calendar day", ErrValidation)
	ErrInvalidRaceResult      = fmt.Errorf("%w: invalid race result", ErrValidation)
	ErrInvalidListFilter      = fmt.Errorf("%w: invalid list filter", ErrValidation)
	ErrInvalidRules           = fmt.Errorf("%w: invalid rules", ErrValidation)

	ErrUnknownAccount = fmt.Errorf("%w: unknown account", ErrNotFound)
	ErrUnknownBet     = fmt.Errorf("%w: unknown bet", ErrNotFound)
	ErrRaceNotFound   = fmt.Errorf("%w: race not found", ErrNotFound)

	ErrAccountExists           = fmt.Errorf("%w: account already registered", ErrConflict)
	ErrBonusAlreadyClaimed     = fmt.Errorf("%w: bonus already claimed today", ErrConflict)
	ErrAdViewLimitReached      = fmt.Errorf("%w: ad view limit reached", ErrConflict)
	ErrRaceNotOpenForBetting   = fmt.Errorf("%w: race not open for betting", ErrConflict)
	ErrRaceNotSettleable       = fmt.Errorf("%w: race not finished or cancelled", ErrConflict)
	ErrBetAlreadySettled       = fmt.Errorf("%w: bet already settled", ErrConflict)
	ErrDuplicateIdempotencyKey = fmt.Errorf("%w: duplicate idempotency key", ErrConflict)
	ErrDuplicateBet            = fmt.Errorf("%w: duplicate bet", ErrConflict)

	ErrInvalidServiceConfig = fmt.Errorf("%w: invalid service config", ErrInternal)
	ErrBalanceMismatch      = fmt.Errorf("%w: balance does not match ledger entries", ErrInternal)
	ErrCorruptRecord        = fmt.Errorf("%w: stored record is invalid", ErrInternal)
)

// ErrorCategory is the coarse classification surfaced to callers.
type ErrorCategory string

const (
	CategoryValidation        ErrorCategory = "validation"
	CategoryNotFound          ErrorCategory = "not_found"
	CategoryConflict          ErrorCategory = "conflict"
	CategoryInsufficientFunds ErrorCategory = "insufficient_funds"
	CategoryInternal          ErrorCategory = "internal"
)

// Category classifies err. Errors that wrap no category are internal.
func Category(err error) ErrorCategory {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CategoryValidation
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrConflict):
		return CategoryConflict
	case errors.Is(err, ErrInsufficientFunds):
		return CategoryInsufficientFunds
	default:
		return CategoryInternal
	}
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
