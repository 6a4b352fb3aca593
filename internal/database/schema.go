package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		organizer_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ticket_types (
		id BIGSERIAL PRIMARY KEY,
		event_id BIGINT NOT NULL REFERENCES events(id),
		name TEXT NOT NULL,
		price BIGINT NOT NULL CHECK (price >= 0),
		seats INTEGER NOT NULL CHECK (seats >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS point_batches (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		amount BIGINT NOT NULL CHECK (amount >= 0),
		expires_at TIMESTAMPTZ NOT NULL,
		is_redeemed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_point_batches_user_expires ON point_batches(user_id, expires_at) WHERE is_redeemed = FALSE`,
	`CREATE TABLE IF NOT EXISTS coupons (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		code TEXT NOT NULL,
		percentage BIGINT NOT NULL CHECK (percentage BETWEEN 0 AND 100),
		expires_at TIMESTAMPTZ NOT NULL,
		is_used BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS promotions (
		id BIGSERIAL PRIMARY KEY,
		event_id BIGINT NOT NULL REFERENCES events(id),
		code TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('FLAT', 'PERCENTAGE')),
		value BIGINT NOT NULL CHECK (value >= 0),
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		max_usage INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (event_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		event_id BIGINT NOT NULL REFERENCES events(id),
		ticket_type_id BIGINT NOT NULL REFERENCES ticket_types(id),
		qty INTEGER NOT NULL CHECK (qty > 0),
		total_price BIGINT NOT NULL,
		final_price BIGINT NOT NULL CHECK (final_price >= 0),
		points_used BIGINT NOT NULL DEFAULT 0,
		coupon_id BIGINT REFERENCES coupons(id),
		promotion_id BIGINT REFERENCES promotions(id),
		status TEXT NOT NULL,
		payment_proof TEXT,
		payment_proof_uploaded_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ NOT NULL,
		organizer_response_deadline TIMESTAMPTZ,
		reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_status_expires ON transactions(status, expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_status_deadline ON transactions(status, organizer_response_deadline)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at DESC)`,
}

// EnsureSchema 建立交易引擎需要的資料表 (已存在則略過)
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
