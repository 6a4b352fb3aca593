package postgres

import (
	"context"
	"errors"

	"ticket-transaction-engine/internal/model"
	apperrors "ticket-transaction-engine/pkg/app_errors"

	"github.com/jackc/pgx/v5"
)

const couponColumns = `id, user_id, code, percentage, expires_at, is_used, created_at`

type CouponRepositoryImpl struct {
	db querier
}

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var c model.Coupon
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Code,
		&c.Percentage,
		&c.ExpiresAt,
		&c.IsUsed,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrCouponNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *CouponRepositoryImpl) Create(ctx context.Context, coupon *model.Coupon) (*model.Coupon, error) {
	query := `
		INSERT INTO coupons (user_id, code, percentage, expires_at, is_used)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + couponColumns

	return scanCoupon(r.db.QueryRow(ctx, query,
		coupon.UserID, coupon.Code, coupon.Percentage, coupon.ExpiresAt, coupon.IsUsed,
	))
}

func (r *CouponRepositoryImpl) FindByID(ctx context.Context, id int64) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	return scanCoupon(r.db.QueryRow(ctx, query, id))
}

func (r *CouponRepositoryImpl) FindByIDWithLock(ctx context.Context, id int64) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1 FOR UPDATE`
	return scanCoupon(r.db.QueryRow(ctx, query, id))
}

func (r *CouponRepositoryImpl) FindByUserAndCodeWithLock(ctx context.Context, userID int64, code string) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE user_id = $1 AND code = $2 FOR UPDATE`
	return scanCoupon(r.db.QueryRow(ctx, query, userID, code))
}

func (r *CouponRepositoryImpl) SetUsed(ctx context.Context, id int64, used bool) error {
	result, err := r.db.Exec(ctx, `UPDATE coupons SET is_used = $1 WHERE id = $2`, used, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrCouponNotFound
	}

	return nil
}
