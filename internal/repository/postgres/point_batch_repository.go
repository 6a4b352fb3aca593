package postgres

import (
	"context"
	"fmt"
	"time"

	"ticket-transaction-engine/internal/model"

	"github.com/jackc/pgx/v5"
)

const pointBatchColumns = `id, user_id, amount, expires_at, is_redeemed, created_at`

type PointBatchRepositoryImpl struct {
	db querier
}

func scanPointBatch(row pgx.Row) (*model.PointBatch, error) {
	var b model.PointBatch
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.Amount,
		&b.ExpiresAt,
		&b.IsRedeemed,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PointBatchRepositoryImpl) list(ctx context.Context, query string, args ...any) ([]*model.PointBatch, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]*model.PointBatch, 0)
	for rows.Next() {
		batch, err := scanPointBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return batches, nil
}

func (r *PointBatchRepositoryImpl) Create(ctx context.Context, batch *model.PointBatch) (*model.PointBatch, error) {
	query := `
		INSERT INTO point_batches (user_id, amount, expires_at, is_redeemed)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + pointBatchColumns

	created, err := scanPointBatch(r.db.QueryRow(ctx, query,
		batch.UserID, batch.Amount, batch.ExpiresAt, batch.IsRedeemed,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create point batch: %w", err)
	}
	return created, nil
}

func (r *PointBatchRepositoryImpl) ListSpendableWithLock(ctx context.Context, userID int64, now time.Time) ([]*model.PointBatch, error) {
	query := `
		SELECT ` + pointBatchColumns + `
		FROM point_batches
		WHERE user_id = $1 AND is_redeemed = FALSE AND expires_at > $2
		ORDER BY expires_at ASC, id ASC
		FOR UPDATE
	`
	return r.list(ctx, query, userID, now)
}

func (r *PointBatchRepositoryImpl) ListByUserID(ctx context.Context, userID int64) ([]*model.PointBatch, error) {
	query := `
		SELECT ` + pointBatchColumns + `
		FROM point_batches
		WHERE user_id = $1
		ORDER BY expires_at ASC, id ASC
	`
	return r.list(ctx, query, userID)
}

func (r *PointBatchRepositoryImpl) UpdateAmount(ctx context.Context, id int64, amount int64, redeemed bool) error {
	query := `
		UPDATE point_batches
		SET amount = $1, is_redeemed = $2
		WHERE id = $3
	`

	result, err := r.db.Exec(ctx, query, amount, redeemed, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("point batch %d not updated", id)
	}

	return nil
}
