package apperr

import (
	"errors"
	"fmt"
)

// Error kinds. Every checkout failure wraps exactly one of these.
var (
	ErrValidation         = errors.New("validation_error")
	ErrNotFound           = errors.New("not_found")
	ErrInsufficientStock  = errors.New("insufficient_stock")
	ErrInsufficientPoints = errors.New("insufficient_points")
	ErrPaymentMismatch    = errors.New("payment_mismatch")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrConflict           = errors.New("conflict")
	ErrPersistence        = errors.New("persistence_failure")
)

// Error is a classified failure with a human message and optional details.
type Error struct {
	Kind    error
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// WithDetail returns e with one more detail attached.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

func newf(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(ErrValidation, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(ErrNotFound, format, args...)
}

func InsufficientStock(productID int64, requested int) *Error {
	return newf(ErrInsufficientStock, "insufficient stock for product %d", productID).
		WithDetail("product_id", productID).
		WithDetail("requested", requested)
}

func InsufficientPoints(balance, requested int64) *Error {
	return newf(ErrInsufficientPoints, "insufficient points: balance=%d, requested=%d", balance, requested).
		WithDetail("balance", balance).
		WithDetail("requested", requested)
}

func PaymentMismatch(format string, args ...interface{}) *Error {
	return newf(ErrPaymentMismatch, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(ErrForbidden, format, args...)
}

func Unauthenticated(format string, args ...interface{}) *Error {
	return newf(ErrUnauthenticated, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(ErrConflict, format, args...)
}

// Persistence hides the underlying cause from callers but keeps it for logs.
func Persistence(cause error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, cause)
}

// Kind returns the classification of err, or ErrPersistence when unknown.
func Kind(err error) error {
	for _, k := range []error{
		ErrValidation, ErrNotFound, ErrInsufficientStock, ErrInsufficientPoints,
		ErrPaymentMismatch, ErrForbidden, ErrUnauthenticated, ErrConflict,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrPersistence
}

// Message is the client-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// Details returns structured details when err carries any.
func Details(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) && e.Details != nil {
		return e.Details
	}
	return map[string]interface{}{}
}
