package postgres

import (
	"context"
	"errors"
	"time"

	"ticket-transaction-engine/internal/model"
	apperrors "ticket-transaction-engine/pkg/app_errors"

	"github.com/jackc/pgx/v5"
)

const ticketTypeColumns = `id, event_id, name, price, seats, created_at, updated_at`

type TicketTypeRepositoryImpl struct {
	db querier
}

func scanTicketType(row pgx.Row) (*model.TicketType, error) {
	var t model.TicketType
	err := row.Scan(
		&t.ID,
		&t.EventID,
		&t.Name,
		&t.Price,
		&t.Seats,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTicketTypeNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TicketTypeRepositoryImpl) Create(ctx context.Context, ticketType *model.TicketType) (*model.TicketType, error) {
	query := `
		INSERT INTO ticket_types (event_id, name, price, seats)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + ticketTypeColumns

	return scanTicketType(r.db.QueryRow(ctx, query,
		ticketType.EventID, ticketType.Name, ticketType.Price, ticketType.Seats,
	))
}

func (r *TicketTypeRepositoryImpl) FindByID(ctx context.Context, id int64) (*model.TicketType, error) {
	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE id = $1`
	return scanTicketType(r.db.QueryRow(ctx, query, id))
}

func (r *TicketTypeRepositoryImpl) FindByIDWithLock(ctx context.Context, id int64) (*model.TicketType, error) {
	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE id = $1 FOR UPDATE`
	return scanTicketType(r.db.QueryRow(ctx, query, id))
}

func (r *TicketTypeRepositoryImpl) DecrementSeats(ctx context.Context, id int64, qty int) error {
	query := `
		UPDATE ticket_types
		SET seats = seats - $1, updated_at = $2
		WHERE id = $3 AND seats >= $1
	`

	result, err := r.db.Exec(ctx, query, qty, time.Now().UTC(), id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		// 區分票種不存在與座位不足
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return apperrors.ErrInsufficientSeats
	}

	return nil
}

func (r *TicketTypeRepositoryImpl) IncrementSeats(ctx context.Context, id int64, qty int) error {
	query := `
		UPDATE ticket_types
		SET seats = seats + $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.Exec(ctx, query, qty, time.Now().UTC(), id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrTicketTypeNotFound
	}

	return nil
}
