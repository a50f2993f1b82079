package market

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies why an operation was rejected. Every rejection
// happens before any state change; callers can branch on the category to
// decide whether a retry makes sense.
type ErrorCategory uint8

const (
	// ErrCategoryValidation covers malformed input: empty fingerprint,
	// empty commit hash, unknown tier or problem kind.
	ErrCategoryValidation ErrorCategory = iota + 1
	// ErrCategoryAuthorization covers wrong caller role or identity.
	ErrCategoryAuthorization
	// ErrCategoryState covers operations invalid for the order's current
	// status.
	ErrCategoryState
	// ErrCategoryTemporal covers deadline and window violations.
	ErrCategoryTemporal
	// ErrCategoryEconomic covers failed balance transfers.
	ErrCategoryEconomic
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryValidation:
		return "validation"
	case ErrCategoryAuthorization:
		return "authorization"
	case ErrCategoryState:
		return "state"
	case ErrCategoryTemporal:
		return "temporal"
	case ErrCategoryEconomic:
		return "economic"
	default:
		return "unknown"
	}
}

// Error is the typed rejection returned by every market operation.
type Error struct {
	Category ErrorCategory
	msg      string
	wrapped  error
}

func (e *Error) Error() string {
	if e == nil {
		return "market: <nil>"
	}
	if e.wrapped != nil {
		return fmt.Sprintf("market: %s: %s: %v", e.Category, e.msg, e.wrapped)
	}
	return fmt.Sprintf("market: %s: %s", e.Category, e.msg)
}

func (e *Error) Unwrap() error { return e.wrapped }

// CategoryOf extracts the error category, or zero when err is not a market
// rejection.
func CategoryOf(err error) ErrorCategory {
	var me *Error
	if errors.As(err, &me) {
		return me.Category
	}
	return 0
}

func errValidation(format string, args ...any) *Error {
	return &Error{Category: ErrCategoryValidation, msg: fmt.Sprintf(format, args...)}
}

func errAuthorization(format string, args ...any) *Error {
	return &Error{Category: ErrCategoryAuthorization, msg: fmt.Sprintf(format, args...)}
}

func errState(format string, args ...any) *Error {
	return &Error{Category: ErrCategoryState, msg: fmt.Sprintf(format, args...)}
}

func errTemporal(format string, args ...any) *Error {
	return &Error{Category: ErrCategoryTemporal, msg: fmt.Sprintf(format, args...)}
}

func errEconomic(msg string, wrapped error) *Error {
	return &Error{Category: ErrCategoryEconomic, msg: msg, wrapped: wrapped}
}

var (
	// ErrOrderNotFound is returned when no order exists for the id.
	ErrOrderNotFound = errState("order not found")
	// ErrInvalidReveal distinguishes a wrong payload/salt guess from
	// protocol misuse; state is unchanged when it is returned.
	ErrInvalidReveal = errValidation("invalid reveal")
	// ErrInsufficientBalance is wrapped into economic rejections by the
	// payment rail.
	ErrInsufficientBalance = errors.New("insufficient balance")
)
