package postgres

import (
	"context"
	"fmt"

	"ticket-transaction-engine/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier 同時由 *pgxpool.Pool 與 pgx.Tx 實作
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type StoreImpl struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) repository.Store {
	return &StoreImpl{pool: pool}
}

func (s *StoreImpl) WithAtomicUnit(ctx context.Context, fn func(ctx context.Context, uow repository.UnitOfWork) error) error {
	// read committed + SELECT ... FOR UPDATE 鎖住所有會被修改的列
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin atomic unit: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, newUnit(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit atomic unit: %w", err)
	}
	return nil
}

func (s *StoreImpl) View(ctx context.Context, fn func(ctx context.Context, uow repository.UnitOfWork) error) error {
	return fn(ctx, newUnit(s.pool))
}

type unit struct {
	events       *EventRepositoryImpl
	ticketTypes  *TicketTypeRepositoryImpl
	pointBatches *PointBatchRepositoryImpl
	coupons      *CouponRepositoryImpl
	promotions   *PromotionRepositoryImpl
	transactions *TransactionRepositoryImpl
}

func newUnit(q querier) *unit {
	return &unit{
		events:       &EventRepositoryImpl{db: q},
		ticketTypes:  &TicketTypeRepositoryImpl{db: q},
		pointBatches: &PointBatchRepositoryImpl{db: q},
		coupons:      &CouponRepositoryImpl{db: q},
		promotions:   &PromotionRepositoryImpl{db: q},
		transactions: &TransactionRepositoryImpl{db: q},
	}
}

func (u *unit) Events() repository.EventRepository             { return u.events }
func (u *unit) TicketTypes() repository.TicketTypeRepository   { return u.ticketTypes }
func (u *unit) PointBatches() repository.PointBatchRepository  { return u.pointBatches }
func (u *unit) Coupons() repository.CouponRepository           { return u.coupons }
func (u *unit) Promotions() repository.PromotionRepository     { return u.promotions }
func (u *unit) Transactions() repository.TransactionRepository { return u.transactions }
