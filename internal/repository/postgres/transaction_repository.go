package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-transaction-engine/internal/model"
	apperrors "ticket-transaction-engine/pkg/app_errors"

	"github.com/jackc/pgx/v5"
)

const transactionColumns = `
	id, user_id, event_id, ticket_type_id, qty, total_price, final_price, points_used,
	coupon_id, promotion_id, status, payment_proof, payment_proof_uploaded_at, expires_at,
	organizer_response_deadline, reminder_sent, created_at, updated_at`

type TransactionRepositoryImpl struct {
	db querier
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.EventID,
		&t.TicketTypeID,
		&t.Qty,
		&t.TotalPrice,
		&t.FinalPrice,
		&t.PointsUsed,
		&t.CouponID,
		&t.PromotionID,
		&t.Status,
		&t.PaymentProof,
		&t.PaymentProofUploadedAt,
		&t.ExpiresAt,
		&t.OrganizerResponseDeadline,
		&t.ReminderSent,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepositoryImpl) list(ctx context.Context, query string, args ...any) ([]*model.Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]*model.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return transactions, nil
}

func (r *TransactionRepositoryImpl) Create(ctx context.Context, t *model.Transaction) (*model.Transaction, error) {
	query := `
		INSERT INTO transactions (
			user_id, event_id, ticket_type_id, qty, total_price, final_price, points_used,
			coupon_id, promotion_id, status, expires_at, reminder_sent
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + transactionColumns

	created, err := scanTransaction(r.db.QueryRow(ctx, query,
		t.UserID, t.EventID, t.TicketTypeID, t.Qty, t.TotalPrice, t.FinalPrice, t.PointsUsed,
		t.CouponID, t.PromotionID, t.Status, t.ExpiresAt, t.ReminderSent,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return created, nil
}

func (r *TransactionRepositoryImpl) FindByID(ctx context.Context, id int64) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, id))
}

func (r *TransactionRepositoryImpl) FindByIDWithLock(ctx context.Context, id int64) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	return scanTransaction(r.db.QueryRow(ctx, query, id))
}

func (r *TransactionRepositoryImpl) ListByUserID(ctx context.Context, userID int64) ([]*model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	return r.list(ctx, query, userID)
}

func (r *TransactionRepositoryImpl) Update(ctx context.Context, t *model.Transaction, expected model.TransactionStatus) (*model.Transaction, error) {
	query := `
		UPDATE transactions
		SET status = $1,
			payment_proof = $2,
			payment_proof_uploaded_at = $3,
			organizer_response_deadline = $4,
			reminder_sent = $5,
			updated_at = $6
		WHERE id = $7 AND status = $8
		RETURNING ` + transactionColumns

	updated, err := scanTransaction(r.db.QueryRow(ctx, query,
		t.Status, t.PaymentProof, t.PaymentProofUploadedAt, t.OrganizerResponseDeadline,
		t.ReminderSent, time.Now().UTC(), t.ID, expected,
	))
	if err != nil {
		if errors.Is(err, apperrors.ErrTransactionNotFound) {
			// 列存在但狀態已被其他人改變
			if _, findErr := r.FindByID(ctx, t.ID); findErr == nil {
				return nil, apperrors.InvalidTransition(string(expected), string(t.Status))
			}
		}
		return nil, err
	}
	return updated, nil
}

func (r *TransactionRepositoryImpl) MarkReminderSent(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE transactions
		SET reminder_sent = TRUE, updated_at = $1
		WHERE id = $2 AND status = $3 AND reminder_sent = FALSE
	`

	result, err := r.db.Exec(ctx, query, time.Now().UTC(), id, model.TransactionStatusWaitingPayment)
	if err != nil {
		return false, err
	}

	return result.RowsAffected() == 1, nil
}

func (r *TransactionRepositoryImpl) ListDueForReminder(ctx context.Context, from, to time.Time) ([]*model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1 AND reminder_sent = FALSE AND expires_at BETWEEN $2 AND $3
		ORDER BY expires_at ASC
	`
	return r.list(ctx, query, model.TransactionStatusWaitingPayment, from, to)
}

func (r *TransactionRepositoryImpl) ListPaymentExpired(ctx context.Context, now time.Time) ([]*model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at ASC
	`
	return r.list(ctx, query, model.TransactionStatusWaitingPayment, now)
}

func (r *TransactionRepositoryImpl) ListConfirmationOverdue(ctx context.Context, now time.Time) ([]*model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1 AND organizer_response_deadline < $2
		ORDER BY organizer_response_deadline ASC
	`
	return r.list(ctx, query, model.TransactionStatusWaitingConfirmation, now)
}
