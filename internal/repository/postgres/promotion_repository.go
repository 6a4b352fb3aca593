package postgres

import (
	"context"
	"errors"

	"ticket-transaction-engine/internal/model"
	apperrors "ticket-transaction-engine/pkg/app_errors"

	"github.com/jackc/pgx/v5"
)

const promotionColumns = `id, event_id, code, type, value, start_date, end_date, max_usage, created_at`

type PromotionRepositoryImpl struct {
	db querier
}

func scanPromotion(row pgx.Row) (*model.Promotion, error) {
	var p model.Promotion
	err := row.Scan(
		&p.ID,
		&p.EventID,
		&p.Code,
		&p.Type,
		&p.Value,
		&p.StartDate,
		&p.EndDate,
		&p.MaxUsage,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrPromotionNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PromotionRepositoryImpl) Create(ctx context.Context, promotion *model.Promotion) (*model.Promotion, error) {
	query := `
		INSERT INTO promotions (event_id, code, type, value, start_date, end_date, max_usage)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + promotionColumns

	return scanPromotion(r.db.QueryRow(ctx, query,
		promotion.EventID, promotion.Code, promotion.Type, promotion.Value,
		promotion.StartDate, promotion.EndDate, promotion.MaxUsage,
	))
}

func (r *PromotionRepositoryImpl) FindByEventAndCode(ctx context.Context, eventID int64, code string) (*model.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE event_id = $1 AND code = $2`
	return scanPromotion(r.db.QueryRow(ctx, query, eventID, code))
}
