package postgres

import (
	"context"
	"errors"

	"ticket-transaction-engine/internal/model"
	apperrors "ticket-transaction-engine/pkg/app_errors"

	"github.com/jackc/pgx/v5"
)

type EventRepositoryImpl struct {
	db querier
}

func (r *EventRepositoryImpl) Create(ctx context.Context, event *model.Event) (*model.Event, error) {
	query := `
		INSERT INTO events (organizer_id, name)
		VALUES ($1, $2)
		RETURNING id, organizer_id, name, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, event.OrganizerID, event.Name).Scan(
		&event.ID,
		&event.OrganizerID,
		&event.Name,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (r *EventRepositoryImpl) FindByID(ctx context.Context, id int64) (*model.Event, error) {
	query := `
		SELECT id, organizer_id, name, created_at, updated_at
		FROM events
		WHERE id = $1
	`

	var event model.Event
	err := r.db.QueryRow(ctx, query, id).Scan(
		&event.ID,
		&event.OrganizerID,
		&event.Name,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrEventNotFound
		}
		return nil, err
	}

	return &event, nil
}
