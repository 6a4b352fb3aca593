package apperrors_test

import (
	"errors"
	"fmt"
	"testing"

	apperrors "ticket-transaction-engine/pkg/app_errors"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundFamily(t *testing.T) {
	for _, err := range []error{
		apperrors.ErrTransactionNotFound,
		apperrors.ErrTicketTypeNotFound,
		apperrors.ErrCouponNotFound,
		apperrors.ErrPromotionNotFound,
		apperrors.ErrEventNotFound,
	} {
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.Equal(t, "not_found", apperrors.Kind(err))
	}
	assert.Equal(t, "coupon not found", apperrors.ErrCouponNotFound.Error())
}

func TestInsufficientPointsError(t *testing.T) {
	var err error = fmt.Errorf("create: %w", &apperrors.InsufficientPointsError{Available: 10, Required: 25})

	assert.ErrorIs(t, err, apperrors.ErrInsufficientPoints)

	var detail *apperrors.InsufficientPointsError
	assert.True(t, errors.As(err, &detail))
	assert.Equal(t, int64(10), detail.Available)
	assert.Equal(t, int64(25), detail.Required)
	assert.Equal(t, "insufficient_points", apperrors.Kind(err))
}

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", apperrors.Kind(nil))
	assert.Equal(t, "invalid_state", apperrors.Kind(apperrors.InvalidTransition("DONE", "REJECTED")))
	assert.Equal(t, "validation", apperrors.Kind(apperrors.Validation("qty %d", 9)))
	assert.Equal(t, "internal", apperrors.Kind(errors.New("boom")))
}
