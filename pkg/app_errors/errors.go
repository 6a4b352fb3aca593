package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrTicketTypeNotFound  = fmt.Errorf("ticket type %w", ErrNotFound)
	ErrCouponNotFound      = fmt.Errorf("coupon %w", ErrNotFound)
	ErrPromotionNotFound   = fmt.Errorf("promotion %w", ErrNotFound)
	ErrEventNotFound       = fmt.Errorf("event %w", ErrNotFound)

	ErrUnauthorized        = errors.New("actor is not allowed to act on this transaction")
	ErrInvalidState        = errors.New("invalid transaction state")
	ErrInsufficientSeats   = errors.New("insufficient seats")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrInvalidPromotion    = errors.New("invalid or expired promotion")
	ErrInvalidOrUsedCoupon = errors.New("invalid or used coupon")
	ErrTransactionExpired  = errors.New("transaction expired")
	ErrValidation          = errors.New("validation error")
	ErrInternalServerError = errors.New("internal server error")
)

// InsufficientPointsError reports the balance a deduction was checked against.
type InsufficientPointsError struct {
	Available int64
	Required  int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: available %d, required %d", e.Available, e.Required)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}

// Validation wraps ErrValidation with a field-level reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InvalidTransition wraps ErrInvalidState with the attempted transition.
func InvalidTransition(from, to string) error {
	return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidState, from, to)
}

// Kind 將錯誤歸類成固定的標籤 (metrics、log 用)
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInsufficientSeats):
		return "insufficient_seats"
	case errors.Is(err, ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, ErrInvalidPromotion):
		return "invalid_promotion"
	case errors.Is(err, ErrInvalidOrUsedCoupon):
		return "invalid_coupon"
	case errors.Is(err, ErrTransactionExpired):
		return "transaction_expired"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}
